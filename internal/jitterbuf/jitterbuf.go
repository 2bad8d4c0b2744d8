// Package jitterbuf implements the receiver's jitter buffer: an ordered,
// bounded queue of pending audio frames keyed by sender timestamp, with a
// drop-late / reject-duplicate / flush-on-far-future insertion policy.
package jitterbuf

import (
	"log"
	"sync"

	"audiosync/internal/metrics"
	"audiosync/internal/wire"
)

// Entry is one pending audio frame, ordered ascending by Timestamp.
type Entry struct {
	Timestamp wire.Timestamp
	Payload   []byte
}

// Buffer is a mutex-protected, strictly-ordered queue of Entry. The network
// goroutine calls Insert; the playback goroutine calls ConsumeAt. Both take
// the same lock, which is held only while walking the slice, never across
// I/O.
type Buffer struct {
	maxEntries int

	mu         sync.Mutex
	entries    []Entry
	lastPlayed wire.Timestamp
	havePlayed bool
	verbose    bool
	counters   *metrics.Counters
}

// MaxEntries caps pending frames as a function of the configured playback
// delay, so the buffer stays bounded when the consumer falls behind.
func MaxEntries(delayMs int) int {
	if delayMs < 150 {
		return 50
	}
	return delayMs / 3
}

// New returns an empty Buffer bounded to maxEntries pending frames.
func New(maxEntries int, verbose bool) *Buffer {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Buffer{maxEntries: maxEntries, verbose: verbose}
}

// SetCounters attaches drop counters. Call before the network and playback
// goroutines start; the buffer increments them under its own lock.
func (b *Buffer) SetCounters(c *metrics.Counters) {
	b.counters = c
}

// Insert adds frame to the buffer:
//
//   - If the buffer is non-empty, the head sorts after frame, AND frame is
//     not after the last played timestamp: reject as "in the past".
//   - Otherwise walk from the head, skipping entries that sort before
//     frame, for at most maxEntries steps.
//   - Exhausting the step budget means frame is "too far in the future":
//     the whole buffer is discarded and frame becomes the sole entry.
//   - Landing on an entry with an equal timestamp is a duplicate: discard.
//   - Otherwise splice frame in at that position.
func (b *Buffer) Insert(frame Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) > 0 && frame.Timestamp.Less(b.entries[0].Timestamp) &&
		(b.havePlayed && !b.lastPlayed.Less(frame.Timestamp)) {
		if b.verbose {
			log.Printf("[jitterbuf] dropping frame %s: in the past (last played %s)", frame.Timestamp, b.lastPlayed)
		}
		return
	}

	pos := 0
	steps := b.maxEntries
	for pos < len(b.entries) && b.entries[pos].Timestamp.Less(frame.Timestamp) {
		pos++
		steps--
		if steps <= 0 {
			log.Printf("[jitterbuf] frame %s too far in the future, flushing buffer", frame.Timestamp)
			if b.counters != nil {
				b.counters.FarFuture.Add(1)
			}
			b.entries = []Entry{frame}
			return
		}
	}

	if pos < len(b.entries) && b.entries[pos].Timestamp.Equal(frame.Timestamp) {
		log.Printf("[jitterbuf] dropping duplicate frame %s", frame.Timestamp)
		if b.counters != nil {
			b.counters.Duplicate.Add(1)
		}
		return
	}

	b.entries = append(b.entries, Entry{})
	copy(b.entries[pos+1:], b.entries[pos:])
	b.entries[pos] = frame
}

// ConsumeAt repeatedly inspects the head until it finds an exact match
// (returned, last played advances), finds a future packet (returns
// ok=false, nothing is dropped), or drops stale heads and keeps looking.
func (b *Buffer) ConsumeAt(now wire.Timestamp) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.entries) > 0 {
		head := b.entries[0]
		switch {
		case head.Timestamp.Equal(now):
			b.entries = b.entries[1:]
			b.lastPlayed = now
			b.havePlayed = true
			return head, true
		case now.Less(head.Timestamp):
			return Entry{}, false
		default:
			if b.verbose {
				log.Printf("[jitterbuf] dropping stale frame %s (now %s)", head.Timestamp, now)
			}
			if b.counters != nil {
				b.counters.Stale.Add(1)
			}
			b.entries = b.entries[1:]
		}
	}
	return Entry{}, false
}

// Len returns the current number of pending entries, for diagnostics.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// LastPlayed returns the most recently consumed timestamp and whether any
// frame has been consumed yet.
func (b *Buffer) LastPlayed() (wire.Timestamp, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPlayed, b.havePlayed
}
