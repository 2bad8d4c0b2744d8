// Package sender implements the transmit half: the fixed-period capture ->
// encode -> paced-send loop, including device resync after stalls or
// buffer overruns, and the time-sync reply task.
package sender

import (
	"context"
	"log"
	"time"

	"audiosync/internal/clockgrid"
	"audiosync/internal/codec"
	"audiosync/internal/pcmdevice"
	"audiosync/internal/wire"
)

// maxResyncDrainFrames bounds a single resync drain read.
const maxResyncDrainFrames = 100000

// Sink is how the CaptureScheduler emits an encoded frame: either the
// native wire format or the RTP variant, each driven by its own send
// function so this package does not need to know about sockets.
type Sink interface {
	SendAudioFrame(frame wire.AudioFrame) error
	SendRTP(payload []byte, samplesPerPeriod uint32) error
}

// Scheduler runs the capture -> encode -> send loop for one stream.
type Scheduler struct {
	Device  pcmdevice.Device
	Encoder codec.Encoder
	Sink    Sink
	Grid    clockgrid.Grid
	// SamplesPerPeriod counts frames per channel in one period
	// (period_ms * rate / 1000); PCM buffers hold SamplesPerPeriod *
	// Channels interleaved samples.
	SamplesPerPeriod int
	Channels         int
	BufferFrames     int
	RTP              bool
	Verbose          bool

	resync       bool
	lastTick     wire.Timestamp
	haveTick     bool
	lastIterTime time.Time
}

// Run drives the loop until ctx is cancelled or a fatal device error
// occurs.
func (s *Scheduler) Run(ctx context.Context) error {
	pcm := make([]int16, s.SamplesPerPeriod*s.Channels)
	opusBuf := make([]byte, codec.OpusMaxPacketBytes)
	period := time.Duration(s.Grid.PeriodNs)

	// Start with a resync so the first iteration drains whatever the
	// device buffered before the loop began.
	s.resync = true

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if s.resync {
			if err := s.drainOverrun(ctx); err != nil {
				log.Printf("[sender] resync drain: %v", err)
			}
			s.resync = false
		}

		if err := s.Device.Read(ctx, pcm); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[sender] device read: %v", err)
			if rerr := s.Device.Recover(); rerr != nil {
				log.Printf("[sender] device recover: %v", rerr)
			}
			continue
		}

		n, err := s.Encoder.Encode(pcm, opusBuf)
		if err != nil {
			log.Printf("[sender] encode: %v", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, opusBuf[:n])

		tick := s.nextTick(period)

		if err := sleepUntil(ctx, tick); err != nil {
			return nil
		}

		if err := s.send(tick, payload); err != nil {
			log.Printf("[sender] send: %v", err)
		}
	}
}

// nextTick truncates now down to the grid, bumps by one period if that
// does not sort strictly after the previous tick, and flags a resync if
// this tick crosses a 5-second boundary or the wall-clock gap since the
// last iteration exceeds one period (the process was suspended).
func (s *Scheduler) nextTick(period time.Duration) wire.Timestamp {
	now := nowTimestamp()
	tick := s.Grid.Quantise(now)
	if s.haveTick && !s.lastTick.Less(tick) {
		tick = s.Grid.Quantise(addDuration(tick, period))
	}

	if tick.Nsec == 0 && tick.Sec%5 == 0 {
		s.resync = true
	}
	if !s.lastIterTime.IsZero() && time.Since(s.lastIterTime) > period {
		s.resync = true
	}
	s.lastIterTime = time.Now()

	s.lastTick = tick
	s.haveTick = true
	return tick
}

func (s *Scheduler) send(tick wire.Timestamp, payload []byte) error {
	if s.RTP {
		return s.Sink.SendRTP(payload, uint32(s.SamplesPerPeriod))
	}
	return s.Sink.SendAudioFrame(wire.AudioFrame{Timestamp: tick, Payload: payload})
}

// drainOverrun discards accumulated device backlog: when the device has
// buffered more audio than the configured buffer size, it is read and
// thrown away in bounded chunks until the backlog shrinks to at most one
// period.
func (s *Scheduler) drainOverrun(ctx context.Context) error {
	_, delay, err := s.Device.AvailDelay()
	if err != nil {
		return err
	}
	if delay <= s.BufferFrames {
		return nil
	}

	var scratch []int16
	for delay > s.SamplesPerPeriod {
		avail, d, err := s.Device.AvailDelay()
		if err != nil {
			return err
		}
		delay = d

		chunk := avail
		if chunk < s.SamplesPerPeriod {
			chunk = s.SamplesPerPeriod
		}
		if chunk > delay {
			chunk = delay
		}
		if chunk > maxResyncDrainFrames {
			chunk = maxResyncDrainFrames
		}
		if chunk <= 0 {
			break
		}

		samples := chunk * s.Channels
		if cap(scratch) < samples {
			scratch = make([]int16, samples)
		}
		if err := s.Device.Read(ctx, scratch[:samples]); err != nil {
			return err
		}
	}
	return nil
}

func nowTimestamp() wire.Timestamp {
	now := time.Now()
	return wire.Timestamp{Sec: now.Unix(), Nsec: uint32(now.Nanosecond())}
}

func addDuration(t wire.Timestamp, d time.Duration) wire.Timestamp {
	total := t.Sec*1_000_000_000 + int64(t.Nsec) + int64(d)
	sec := total / 1_000_000_000
	nsec := total - sec*1_000_000_000
	return wire.Timestamp{Sec: sec, Nsec: uint32(nsec)}
}

// sleepUntil blocks until tick (interpreted as a local wall-clock instant)
// or ctx is done. The loop re-checks the deadline after every timer fire,
// so an early wakeup re-sleeps against the same absolute target.
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
