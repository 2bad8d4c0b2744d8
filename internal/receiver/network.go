package receiver

import (
	"log"
	"net"

	"audiosync/internal/jitterbuf"
	"audiosync/internal/metrics"
	"audiosync/internal/timesync"
	"audiosync/internal/transport"
	"audiosync/internal/wire"
)

// NetworkTask owns the receiver's socket and is the sole writer of both
// the jitter buffer and the shared clock offset.
type NetworkTask struct {
	Conn           *transport.Conn
	Buffer         *jitterbuf.Buffer
	Offset         *timesync.Offset
	Verbose        bool
	Metrics        *metrics.Counters
	EnableTimeSync bool

	lastTimeSent    wire.Timestamp
	haveLastTimeReq bool
}

// Run reads datagrams until the socket is closed or a fatal error occurs.
func (n *NetworkTask) Run() error {
	buf := make([]byte, 65536)
	for {
		nRead, addr, err := n.Conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		n.handle(buf[:nRead], addr)
	}
}

func (n *NetworkTask) handle(b []byte, from *net.UDPAddr) {
	switch len(b) {
	case wire.TimeReplySize:
		n.handleTimeReply(b)
	case wire.TimeRequestSize:
		// A 12-byte datagram on the receiver's socket can only be its
		// own request echoed by a misbehaving peer; ignore it.
	default:
		n.handleAudioFrame(b, from)
	}
}

func (n *NetworkTask) handleAudioFrame(b []byte, from *net.UDPAddr) {
	frame, err := wire.ParseAudioFrame(b)
	if err != nil {
		log.Printf("[receiver] parse audio frame: %v", err)
		return
	}
	if n.Metrics != nil {
		n.Metrics.Received.Add(1)
	}
	// frame.Payload aliases the receive buffer, which the next ReadFromUDP
	// overwrites; the jitter buffer holds frames for several periods, so it
	// must own a copy.
	payload := append([]byte(nil), frame.Payload...)
	n.Buffer.Insert(jitterbuf.Entry{Timestamp: frame.Timestamp, Payload: payload})

	n.maybeSendTimeRequest(from)
}

// maybeSendTimeRequest piggybacks time sync on the audio stream: at most
// one TimeRequest per wall-clock second, sent to whichever address last
// sent us a non-reply datagram.
func (n *NetworkTask) maybeSendTimeRequest(from *net.UDPAddr) {
	if !n.EnableTimeSync {
		return
	}
	now := nowTimestamp()
	if n.haveLastTimeReq && n.lastTimeSent.Sec == now.Sec {
		return
	}
	n.lastTimeSent = now
	n.haveLastTimeReq = true

	req := wire.EncodeTimeRequest(wire.TimeRequest{T1: now})
	if _, err := n.Conn.WriteToUDP(req, from); err != nil {
		log.Printf("[receiver] send time request: %v", err)
	}
}

func (n *NetworkTask) handleTimeReply(b []byte) {
	reply, err := wire.ParseTimeReply(b)
	if err != nil {
		log.Printf("[receiver] parse time reply: %v", err)
		return
	}
	if !n.haveLastTimeReq || !reply.T1.Equal(n.lastTimeSent) {
		log.Printf("[receiver] stale time reply (t1=%s, expected %s), dropping", reply.T1, n.lastTimeSent)
		return
	}

	recvNow := nowTimestamp()
	offset := timesync.ComputeOffset(n.lastTimeSent, reply, recvNow)
	n.Offset.Store(offset)
}
