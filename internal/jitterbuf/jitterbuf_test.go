package jitterbuf

import (
	"testing"

	"audiosync/internal/wire"
)

func ts(ms int64) wire.Timestamp {
	return wire.Timestamp{Sec: ms / 1000, Nsec: uint32((ms % 1000) * 1_000_000)}
}

func entry(ms int64) Entry {
	return Entry{Timestamp: ts(ms), Payload: []byte{byte(ms)}}
}

func TestMaxEntries(t *testing.T) {
	cases := []struct {
		delayMs int
		want    int
	}{
		{0, 50},
		{149, 50},
		{150, 50},
		{300, 100},
		{900, 300},
	}
	for _, c := range cases {
		if got := MaxEntries(c.delayMs); got != c.want {
			t.Errorf("MaxEntries(%d) = %d, want %d", c.delayMs, got, c.want)
		}
	}
}

func TestInsertOrdersOutOfOrderPackets(t *testing.T) {
	b := New(50, false)
	b.Insert(entry(30))
	b.Insert(entry(10))
	b.Insert(entry(20))

	if got := b.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	for _, want := range []int64{10, 20, 30} {
		e, ok := b.ConsumeAt(ts(want))
		if !ok {
			t.Fatalf("ConsumeAt(%d): not found", want)
		}
		if e.Timestamp != ts(want) {
			t.Fatalf("ConsumeAt(%d) returned %s", want, e.Timestamp)
		}
	}
}

func TestInsertDropsDuplicate(t *testing.T) {
	b := New(50, false)
	b.Insert(entry(10))
	b.Insert(entry(10))
	if got := b.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 after duplicate insert", got)
	}
}

func TestInsertFlushesOnFarFuturePacket(t *testing.T) {
	b := New(3, false)
	b.Insert(entry(10))
	b.Insert(entry(20))
	b.Insert(entry(30))

	// This packet sorts after all three pending entries and exhausts the
	// step budget (3), so the whole buffer is discarded in its favor.
	b.Insert(entry(1000))

	if got := b.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 after far-future flush", got)
	}
	e, ok := b.ConsumeAt(ts(1000))
	if !ok || e.Timestamp != ts(1000) {
		t.Fatalf("expected surviving entry at 1000, got %+v ok=%v", e, ok)
	}
}

func TestReorderDuplicateAndPastConsume(t *testing.T) {
	b := New(50, false)
	b.Insert(Entry{Timestamp: ts(100), Payload: []byte{1}})
	b.Insert(entry(80))
	b.Insert(entry(120))
	b.Insert(Entry{Timestamp: ts(100), Payload: []byte{2}})

	if got := b.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3 (duplicate 100 rejected)", got)
	}

	// Consuming at 100 silently drops the stale 80 and returns the frame
	// from the first insert at 100, not the duplicate's payload.
	e, ok := b.ConsumeAt(ts(100))
	if !ok {
		t.Fatal("ConsumeAt(100): not found")
	}
	if len(e.Payload) != 1 || e.Payload[0] != 1 {
		t.Fatalf("ConsumeAt(100) payload = %v, want the first-arrived frame", e.Payload)
	}

	// 80 is now before last_played and long gone.
	if _, ok := b.ConsumeAt(ts(80)); ok {
		t.Fatal("ConsumeAt(80) after playing 100 must return nothing")
	}

	last, played := b.LastPlayed()
	if !played || last != ts(100) {
		t.Fatalf("LastPlayed() = %s, %v, want 100ms, true", last, played)
	}
}

func TestInsertRejectsPastPacketAfterConsume(t *testing.T) {
	b := New(50, false)
	b.Insert(entry(10))
	if _, ok := b.ConsumeAt(ts(10)); !ok {
		t.Fatal("expected to consume entry at 10")
	}

	// 20 is queued first, so 5 arrives at a non-empty buffer, sorts behind
	// the head and is not after the last played timestamp (10): it is
	// rejected as "in the past". The rejection needs an existing head; a
	// past packet arriving at an empty buffer is not rejected.
	b.Insert(entry(20))
	b.Insert(entry(5))

	if got := b.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 (stale packet 5 rejected, 20 kept)", got)
	}
}

func TestConsumeAtDropsStaleHeads(t *testing.T) {
	b := New(50, false)
	b.Insert(entry(10))
	b.Insert(entry(20))

	// Asking for 30 should drop both stale heads and report not found,
	// since neither equals 30.
	if _, ok := b.ConsumeAt(ts(30)); ok {
		t.Fatal("ConsumeAt(30) should not find an exact match")
	}
	if got := b.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0 after stale heads drained", got)
	}
}

func TestConsumeAtReturnsFalseOnFuturePacket(t *testing.T) {
	b := New(50, false)
	b.Insert(entry(100))
	if _, ok := b.ConsumeAt(ts(50)); ok {
		t.Fatal("ConsumeAt should not return a frame scheduled for the future")
	}
	if got := b.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 (future frame must stay queued)", got)
	}
}
