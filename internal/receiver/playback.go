// Package receiver implements the receive half: a network task that feeds
// the jitter buffer and clock offset, and a playback scheduler that drains
// the buffer on a wall-clock grid aligned to the sender.
package receiver

import (
	"context"
	"errors"
	"log"
	"time"

	"audiosync/internal/clockgrid"
	"audiosync/internal/codec"
	"audiosync/internal/jitterbuf"
	"audiosync/internal/metrics"
	"audiosync/internal/pcmdevice"
	"audiosync/internal/timesync"
	"audiosync/internal/wire"
)

// PlaybackScheduler drives the fixed-period grid tick, consumes frames from
// the JitterBuffer and writes PCM to the device, concealing losses via the
// decoder's PLC path.
type PlaybackScheduler struct {
	Device           pcmdevice.Device
	Decoder          codec.Decoder
	Buffer           *jitterbuf.Buffer
	Offset           *timesync.Offset
	Grid clockgrid.Grid
	// SamplesPerPeriod counts frames per channel in one period; PCM
	// buffers hold SamplesPerPeriod * Channels interleaved samples.
	SamplesPerPeriod int
	Channels         int
	// BufferFrames is the device buffer size in frames; a freshly
	// prepared device is primed with this much silence before
	// steady-state writes begin.
	BufferFrames int
	// Delay2Ns is the full device-latency correction added to each tick
	// to name the frame that must be decoded now so it reaches the
	// speaker on time: -delay_ms*1e6 + buffer_frames*1e9/rate for a sound
	// card; on the stdio path the buffer term is left out and it is
	// -delay_ms*1e6. The Grid carries only the mod-period residue of its
	// negation for quantisation.
	Delay2Ns int64
	Verbose  bool
	Metrics  *metrics.Counters

	lastTick wire.Timestamp
	haveTick bool
}

// Run drives the loop until ctx is cancelled.
func (p *PlaybackScheduler) Run(ctx context.Context) error {
	pcm := make([]int16, p.SamplesPerPeriod*p.Channels)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		tickSender := p.nextSenderTick()
		tickReal := addNs(tickSender, -p.Offset.Load())

		if err := sleepUntil(ctx, tickReal); err != nil {
			return nil
		}

		playAtSender := addNs(tickSender, p.Delay2Ns)

		avail, delayFrames, err := p.Device.AvailDelay()
		if err != nil {
			log.Printf("[playback] avail/delay query: %v", err)
		} else if delayFrames < -1 {
			// The driver's delay report went negative past what rounding
			// can explain; drop and re-prepare, then restart the
			// iteration on a fresh tick.
			if p.Verbose {
				log.Printf("[playback] bad device delay %d, resetting", delayFrames)
			}
			if err := p.Device.Prepare(); err != nil {
				log.Printf("[playback] prepare: %v", err)
			}
			continue
		}

		if p.Device.State() == pcmdevice.Prepared {
			// Prime with one full device buffer of silence, written in
			// period-sized chunks so the device accepts each write.
			silence := make([]int16, p.SamplesPerPeriod*p.Channels)
			frames := p.BufferFrames
			if frames <= 0 {
				frames = p.SamplesPerPeriod
			}
			for primed := 0; primed < frames; primed += p.SamplesPerPeriod {
				if err := p.Device.Write(ctx, silence); err != nil {
					log.Printf("[playback] priming write: %v", err)
					break
				}
			}
		}

		entry, ok := p.Buffer.ConsumeAt(playAtSender)
		if ok {
			if p.Verbose {
				log.Printf("[playback] got packet %s", entry.Timestamp)
			}
			n, err := p.Decoder.Decode(entry.Payload, pcm)
			if err != nil || n != p.SamplesPerPeriod {
				log.Printf("[playback] decode: n=%d %v", n, err)
				p.conceal(pcm)
			}
		} else {
			if p.Verbose {
				log.Printf("[playback] no packet for %s", playAtSender)
			}
			p.conceal(pcm)
		}

		if err := p.Device.Write(ctx, pcm); err != nil {
			p.handleWriteError(err, avail)
		}
	}
}

// handleWriteError keeps the loop running through device trouble: recover
// from underruns, re-prepare after a zero-progress write that left the
// buffer one frame short of full (the stream stopped underneath us), and
// log anything else.
func (p *PlaybackScheduler) handleWriteError(err error, avail int) {
	switch {
	case errors.Is(err, pcmdevice.ErrUnderrun):
		if p.Verbose {
			log.Printf("[playback] underrun, recovering")
		}
		if rerr := p.Device.Recover(); rerr != nil {
			log.Printf("[playback] recover: %v", rerr)
		}
	case errors.Is(err, pcmdevice.ErrWouldBlock):
		if avail == p.SamplesPerPeriod-1 {
			if perr := p.Device.Prepare(); perr != nil {
				log.Printf("[playback] prepare after would-block: %v", perr)
			}
		}
	default:
		log.Printf("[playback] device write: %v", err)
	}
}

// conceal fills pcm via the decoder's packet-loss-concealment path.
func (p *PlaybackScheduler) conceal(pcm []int16) {
	if err := p.Decoder.DecodePLC(pcm); err != nil {
		for i := range pcm {
			pcm[i] = 0
		}
	}
	if p.Metrics != nil {
		p.Metrics.Concealed.Add(1)
	}
}

// nextSenderTick adds the current clock offset to the local wall clock,
// quantises forward to the next grid tick, and enforces strict
// monotonicity against the previous tick.
func (p *PlaybackScheduler) nextSenderTick() wire.Timestamp {
	nowReal := nowTimestamp()
	nowSender := addNs(nowReal, p.Offset.Load())

	var tick wire.Timestamp
	if p.haveTick {
		tick = p.Grid.Next(nowSender, p.lastTick)
	} else {
		tick = p.Grid.Next(nowSender, nowSender)
	}
	p.lastTick = tick
	p.haveTick = true
	return tick
}

func nowTimestamp() wire.Timestamp {
	now := time.Now()
	return wire.Timestamp{Sec: now.Unix(), Nsec: uint32(now.Nanosecond())}
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

// sleepUntil blocks until tick or ctx is done. See sender.sleepUntil for
// why this retries rather than trusting a single timer fire.
func sleepUntil(ctx context.Context, tick wire.Timestamp) error {
	target := time.Unix(tick.Sec, int64(tick.Nsec))
	for {
		d := time.Until(target)
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
