package sender

import (
	"sync"

	"audiosync/internal/transport"
	"audiosync/internal/wire"
)

// UDPSink implements Sink by writing to a transport.Conn, optionally
// wrapping payloads in an RTP header instead of the native frame format.
type UDPSink struct {
	Conn *transport.Conn

	mu  sync.Mutex
	rtp wire.RTPStream
}

// NewUDPSink builds a sink ready to send either native AudioFrames or, if
// the caller later calls SendRTP, RTP packets from a freshly seeded stream.
func NewUDPSink(conn *transport.Conn) *UDPSink {
	return &UDPSink{Conn: conn, rtp: wire.NewRTPStream()}
}

func (s *UDPSink) SendAudioFrame(frame wire.AudioFrame) error {
	_, err := s.Conn.WriteToUDP(wire.EncodeAudioFrame(frame), s.Conn.RemoteAddr())
	return err
}

func (s *UDPSink) SendRTP(payload []byte, samplesPerPeriod uint32) error {
	s.mu.Lock()
	pkt := s.rtp.EncodePacket(payload, samplesPerPeriod)
	s.mu.Unlock()
	_, err := s.Conn.WriteToUDP(pkt, s.Conn.RemoteAddr())
	return err
}
