// Package wire encodes and parses the three packet types exchanged by mtx
// and mrx: AudioFrame, TimeRequest and TimeReply. All integers are
// big-endian and the layouts are packed, with no padding, so peers on any
// platform agree byte for byte.
package wire

import (
	"encoding/binary"
	"fmt"
)

// TimeRequestSize is the exact size of a TimeRequest datagram.
const TimeRequestSize = 12

// TimeReplySize is the exact size of a TimeReply datagram.
const TimeReplySize = 24

// audioHeaderSize is the fixed portion of an AudioFrame ahead of the
// variable-length Opus payload.
const audioHeaderSize = 12

// Timestamp is a grid-aligned sender wall-clock instant.
type Timestamp struct {
	Sec  int64
	Nsec uint32
}

// Less reports whether t sorts strictly before o.
func (t Timestamp) Less(o Timestamp) bool {
	if t.Sec != o.Sec {
		return t.Sec < o.Sec
	}
	return t.Nsec < o.Nsec
}

// Equal reports whether t and o name the same instant.
func (t Timestamp) Equal(o Timestamp) bool {
	return t.Sec == o.Sec && t.Nsec == o.Nsec
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%09d", t.Sec, t.Nsec)
}

// AudioFrame is a sender-to-receiver audio datagram: a grid-aligned
// timestamp followed by an Opus-encoded payload whose length is inferred
// from the datagram size.
type AudioFrame struct {
	Timestamp Timestamp
	Payload   []byte
}

// TimeRequest is sent by the receiver to the sender to begin a time-sync
// round trip.
type TimeRequest struct {
	T1 Timestamp
}

// TimeReply is the sender's response to a TimeRequest: it echoes T1 and adds
// its own wall clock at reply time, T2.
type TimeReply struct {
	T1 Timestamp
	T2 Timestamp
}

// EncodeAudioFrame serialises an AudioFrame into a freshly allocated buffer.
func EncodeAudioFrame(f AudioFrame) []byte {
	buf := make([]byte, audioHeaderSize+len(f.Payload))
	putTimestamp(buf, f.Timestamp)
	copy(buf[audioHeaderSize:], f.Payload)
	return buf
}

// ParseAudioFrame accepts any datagram longer than the fixed header and
// treats the remainder as the Opus payload. Callers on the receiver's
// socket must first rule out the TimeRequest/TimeReply sizes (12 and 24
// bytes), since packet types are distinguished only by datagram length.
func ParseAudioFrame(b []byte) (AudioFrame, error) {
	if len(b) <= audioHeaderSize {
		return AudioFrame{}, fmt.Errorf("wire: audio frame too short: %d bytes", len(b))
	}
	return AudioFrame{
		Timestamp: getTimestamp(b),
		Payload:   b[audioHeaderSize:],
	}, nil
}

// EncodeTimeRequest serialises a 12-byte TimeRequest.
func EncodeTimeRequest(r TimeRequest) []byte {
	buf := make([]byte, TimeRequestSize)
	putTimestamp(buf, r.T1)
	return buf
}

// ParseTimeRequest parses an exactly-12-byte datagram.
func ParseTimeRequest(b []byte) (TimeRequest, error) {
	if len(b) != TimeRequestSize {
		return TimeRequest{}, fmt.Errorf("wire: time request must be %d bytes, got %d", TimeRequestSize, len(b))
	}
	return TimeRequest{T1: getTimestamp(b)}, nil
}

// EncodeTimeReply serialises a 24-byte TimeReply.
func EncodeTimeReply(r TimeReply) []byte {
	buf := make([]byte, TimeReplySize)
	putTimestamp(buf[0:8+4], r.T1)
	putTimestamp(buf[12:12+8+4], r.T2)
	return buf
}

// ParseTimeReply parses an exactly-24-byte datagram.
func ParseTimeReply(b []byte) (TimeReply, error) {
	if len(b) != TimeReplySize {
		return TimeReply{}, fmt.Errorf("wire: time reply must be %d bytes, got %d", TimeReplySize, len(b))
	}
	return TimeReply{
		T1: getTimestamp(b[0:12]),
		T2: getTimestamp(b[12:24]),
	}, nil
}

func putTimestamp(b []byte, t Timestamp) {
	binary.BigEndian.PutUint64(b[0:8], uint64(t.Sec))
	binary.BigEndian.PutUint32(b[8:12], t.Nsec)
}

func getTimestamp(b []byte) Timestamp {
	return Timestamp{
		Sec:  int64(binary.BigEndian.Uint64(b[0:8])),
		Nsec: binary.BigEndian.Uint32(b[8:12]),
	}
}
