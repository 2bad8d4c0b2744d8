// Package clockgrid quantises wall-clock instants onto the packet-period
// grid shared by the sender's pacing loop and the receiver's playback
// loop.
package clockgrid

import "audiosync/internal/wire"

// Grid quantises instants to a fixed nanosecond period, optionally shifted
// by a device-latency correction so that the receiver's tick lands a fixed
// offset before the moment a decoded frame must reach the device.
type Grid struct {
	PeriodNs int64 // audio_packet_duration, in nanoseconds
	OffsetNs int64 // device-latency correction; 0 on the sender/RTP path
}

// New returns a Grid for periodMs with no correction (sender/RTP path).
func New(periodMs int) Grid {
	return Grid{PeriodNs: int64(periodMs) * 1_000_000}
}

// NewWithOffset returns a Grid with a device-latency correction (receiver
// path). offsetNs is reduced modulo the period and may be negative; the
// normalised correction always lands in (-period, period).
func NewWithOffset(periodMs int, offsetNs int64) Grid {
	g := New(periodMs)
	g.OffsetNs = offsetNs % g.PeriodNs
	return g
}

// Next returns the smallest grid-aligned instant strictly after prev and
// greater than or equal to t+period, i.e. the next tick after t that is
// also strictly later than the previously emitted tick. All arithmetic
// combines the delta into one int64 nanosecond count and divides/mods
// once.
func (g Grid) Next(t, prev wire.Timestamp) wire.Timestamp {
	next := g.quantiseForward(addNs(t, g.PeriodNs))
	for !prev.Less(next) {
		next = g.addPeriod(next)
	}
	return next
}

// Quantise truncates t down to the grid without the monotonicity check,
// used by the sender's capture loop, which quantises downward rather than
// forward.
func (g Grid) Quantise(t wire.Timestamp) wire.Timestamp {
	total := t.Sec*1_000_000_000 + int64(t.Nsec)
	total -= g.OffsetNs
	total -= floorMod(total, g.PeriodNs)
	total += g.OffsetNs
	return fromNs(total)
}

// quantiseForward rounds t up to the next instant satisfying
// (result.Nsec mod P) == offset.
func (g Grid) quantiseForward(t wire.Timestamp) wire.Timestamp {
	total := t.Sec*1_000_000_000 + int64(t.Nsec)
	rem := floorMod(total-g.OffsetNs, g.PeriodNs)
	if rem != 0 {
		total += g.PeriodNs - rem
	}
	return fromNs(total)
}

func (g Grid) addPeriod(t wire.Timestamp) wire.Timestamp {
	return addNs(t, g.PeriodNs)
}

func addNs(t wire.Timestamp, deltaNs int64) wire.Timestamp {
	total := t.Sec*1_000_000_000 + int64(t.Nsec) + deltaNs
	return fromNs(total)
}

func fromNs(total int64) wire.Timestamp {
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

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}
