package wire

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pion/rtp"
)

// RTPPayloadType is the dynamic payload type mtx uses for its Opus/48000
// RTP stream.
const RTPPayloadType = 96

// RTPStream tracks the sequence number, SSRC and sample-count timestamp of
// an outgoing RTP stream. The sender disables time sync while this is in
// use: the RTP packet carries no sender wall clock.
type RTPStream struct {
	seq  uint16
	ssrc uint32
	ts   uint32
}

// NewRTPStream seeds the initial sequence number and SSRC from a
// cryptographically random source.
func NewRTPStream() RTPStream {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the OS entropy source is broken; fall
		// back to a fixed, non-zero seed rather than crash a streaming
		// process over packet sequencing randomness.
		b = [6]byte{1, 2, 3, 4, 5, 6}
	}
	return RTPStream{
		seq:  binary.BigEndian.Uint16(b[0:2]),
		ssrc: binary.BigEndian.Uint32(b[2:6]),
	}
}

// EncodePacket builds an RTP packet (12-byte header + Opus payload) for one
// frame of samplesPerPeriod samples and advances the stream's sequence
// number and sample timestamp.
func (s *RTPStream) EncodePacket(payload []byte, samplesPerPeriod uint32) []byte {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    RTPPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.seq++
	s.ts += samplesPerPeriod

	out, err := pkt.Marshal()
	if err != nil {
		// rtp.Packet.Marshal only fails on malformed extension/CSRC data,
		// neither of which this stream ever sets.
		panic(err)
	}
	return out
}
