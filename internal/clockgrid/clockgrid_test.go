package clockgrid

import (
	"testing"

	"audiosync/internal/wire"
)

func TestNextAlignsToPeriod(t *testing.T) {
	g := New(20)
	now := wire.Timestamp{Sec: 100, Nsec: 7_341_009}

	tick := g.Next(now, now)
	if int64(tick.Nsec)%g.PeriodNs != 0 {
		t.Fatalf("tick %s not aligned to %d ns period", tick, g.PeriodNs)
	}
	if !now.Less(tick) {
		t.Fatalf("tick %s not after now %s", tick, now)
	}
}

func TestNextIsStrictlyMonotonic(t *testing.T) {
	g := New(20)
	now := wire.Timestamp{Sec: 100, Nsec: 0}

	prev := g.Next(now, now)
	for i := 0; i < 10; i++ {
		// Calling with the same "now" must still advance past prev.
		tick := g.Next(now, prev)
		if !prev.Less(tick) {
			t.Fatalf("tick %s did not advance past previous tick %s", tick, prev)
		}
		prev = tick
	}
}

func TestNextCrossesSecondBoundary(t *testing.T) {
	g := New(20)
	now := wire.Timestamp{Sec: 100, Nsec: 995_000_000}

	tick := g.Next(now, now)
	if tick.Sec != 101 {
		t.Fatalf("tick = %s, want next second", tick)
	}
	if int64(tick.Nsec)%g.PeriodNs != 0 {
		t.Fatalf("tick %s not aligned", tick)
	}
}

func TestNextWithOffsetHonoursCorrection(t *testing.T) {
	// A receiver with delay2 of +3 ms (grid offset -delay2 = -3 ms)
	// quantises so that tick + 3 ms lands on the sender's pure grid.
	offset := int64(-3_000_000)
	g := NewWithOffset(20, offset)
	now := wire.Timestamp{Sec: 50, Nsec: 123_456_789}

	tick := g.Next(now, now)
	total := int64(tick.Nsec) - offset
	if ((total%g.PeriodNs)+g.PeriodNs)%g.PeriodNs != 0 {
		t.Fatalf("(tick.Nsec - correction) mod P != 0 for tick %s", tick)
	}
}

func TestQuantiseTruncatesDownward(t *testing.T) {
	g := New(20)
	cases := []struct {
		in   wire.Timestamp
		want wire.Timestamp
	}{
		{wire.Timestamp{Sec: 10, Nsec: 0}, wire.Timestamp{Sec: 10, Nsec: 0}},
		{wire.Timestamp{Sec: 10, Nsec: 19_999_999}, wire.Timestamp{Sec: 10, Nsec: 0}},
		{wire.Timestamp{Sec: 10, Nsec: 20_000_000}, wire.Timestamp{Sec: 10, Nsec: 20_000_000}},
		{wire.Timestamp{Sec: 10, Nsec: 999_999_999}, wire.Timestamp{Sec: 10, Nsec: 980_000_000}},
	}
	for _, c := range cases {
		if got := g.Quantise(c.in); !got.Equal(c.want) {
			t.Errorf("Quantise(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestOffsetReducedModuloPeriod(t *testing.T) {
	g := NewWithOffset(20, 75_000_000)
	if g.OffsetNs != 15_000_000 {
		t.Fatalf("OffsetNs = %d, want 15000000", g.OffsetNs)
	}
}
