// Package metrics tracks lightweight atomic counters for packet-handling
// anomalies (duplicate, stale, far-future, concealed) and periodically
// logs a summary line.
package metrics

import (
	"log"
	"sync/atomic"
	"time"
)

// Counters tracks packet-handling outcomes for one stream.
type Counters struct {
	Duplicate atomic.Uint64
	Stale     atomic.Uint64
	FarFuture atomic.Uint64
	Concealed atomic.Uint64
	Received  atomic.Uint64
}

// LogPeriodically logs a summary line every interval until stop is closed.
// Intended to run in its own goroutine for the lifetime of the process.
func (c *Counters) LogPeriodically(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			log.Printf("[metrics] received=%d duplicate=%d stale=%d far_future=%d concealed=%d",
				c.Received.Load(), c.Duplicate.Load(), c.Stale.Load(), c.FarFuture.Load(), c.Concealed.Load())
		}
	}
}
