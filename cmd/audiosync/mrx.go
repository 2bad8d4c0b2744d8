package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"audiosync/internal/clockgrid"
	"audiosync/internal/codec"
	"audiosync/internal/config"
	"audiosync/internal/jitterbuf"
	"audiosync/internal/metrics"
	"audiosync/internal/pcmdevice"
	"audiosync/internal/receiver"
	"audiosync/internal/rtprio"
	"audiosync/internal/timesync"
	"audiosync/internal/transport"
)

// runReceiver wires up and runs the receiver: a network task feeding the
// jitter buffer and clock offset, and a playback scheduler draining it on
// the wall-clock grid.
func runReceiver(args []string) int {
	cfg, err := config.Parse(config.RoleReceiver, args)
	if err != nil {
		log.Printf("mrx: %v", err)
		return 1
	}

	conn, err := transport.ListenReceiver(cfg.Addr, cfg.Port)
	if err != nil {
		log.Printf("mrx: %v", err)
		return 1
	}
	defer conn.Close()

	runtime.LockOSThread()
	rtprio.SetRealtime()
	if err := rtprio.DropPrivileges("nobody"); err != nil {
		log.Printf("mrx: %v", err)
		return 1
	}

	params := pcmdevice.Params{
		SampleRate: cfg.Rate,
		Channels:   cfg.Channels,
		FrameSize:  cfg.SamplesPerPeriod(),
		Float:      cfg.Format == config.FormatFloat,
	}

	// delay2 is the correction between a grid tick and the sender
	// timestamp whose frame must be decoded at that tick: the configured
	// delay pulls playback later, the device's own buffering pulls the
	// decode earlier.
	delay2 := -int64(cfg.DelayMs) * 1_000_000
	bufferFrames := cfg.SamplesPerPeriod()

	var dev pcmdevice.Device
	if cfg.Device == "-" {
		dev = pcmdevice.NewStdioPlayback(os.Stdout, params)
	} else {
		if err := portaudio.Initialize(); err != nil {
			log.Printf("mrx: portaudio: %v", err)
			return 1
		}
		defer portaudio.Terminate()
		idx, err := pcmdevice.DeviceIndex(cfg.Device)
		if err != nil {
			log.Printf("mrx: %v", err)
			return 1
		}
		playback, err := pcmdevice.OpenPlayback(idx, params)
		if err != nil {
			log.Printf("mrx: %v", err)
			return 1
		}
		dev = playback

		bufferFrames = cfg.SamplesPerPeriod() * cfg.BufferMult
		delay2 += int64(bufferFrames) * 1_000_000_000 / int64(cfg.Rate)
		if remaining := int64(cfg.DelayMs) - int64(bufferFrames)*1000/int64(cfg.Rate); remaining < 0 {
			log.Printf("mrx: total audio delay minus device delay (%d ms) cannot be negative", remaining)
			return 1
		}
	}
	defer dev.Close()

	dec, err := codec.NewDecoder(cfg.Rate, cfg.Channels)
	if err != nil {
		log.Printf("mrx: opus decoder: %v", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	buf := jitterbuf.New(jitterbuf.MaxEntries(cfg.DelayMs), cfg.Verbose)
	offset := &timesync.Offset{}
	counters := &metrics.Counters{}
	buf.SetCounters(counters)
	if cfg.Verbose {
		go counters.LogPeriodically(10*time.Second, ctx.Done())
	}

	netTask := &receiver.NetworkTask{
		Conn:           conn,
		Buffer:         buf,
		Offset:         offset,
		Verbose:        cfg.Verbose,
		Metrics:        counters,
		EnableTimeSync: cfg.TimeSync,
	}
	go func() {
		if err := netTask.Run(); err != nil && ctx.Err() == nil {
			log.Printf("mrx: network: %v", err)
			cancel()
		}
	}()

	sched := &receiver.PlaybackScheduler{
		Device:           dev,
		Decoder:          dec,
		Buffer:           buf,
		Offset:           offset,
		Grid:             clockgrid.NewWithOffset(cfg.PeriodMs, -delay2),
		SamplesPerPeriod: cfg.SamplesPerPeriod(),
		Channels:         cfg.Channels,
		BufferFrames:     bufferFrames,
		Delay2Ns:         delay2,
		Verbose:          cfg.Verbose,
		Metrics:          counters,
	}

	if err := sched.Run(ctx); err != nil {
		log.Printf("mrx: %v", err)
		return 1
	}
	return 0
}
