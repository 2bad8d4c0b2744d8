package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gordonklaus/portaudio"

	"audiosync/internal/clockgrid"
	"audiosync/internal/codec"
	"audiosync/internal/config"
	"audiosync/internal/pcmdevice"
	"audiosync/internal/rtprio"
	"audiosync/internal/sender"
	"audiosync/internal/transport"
)

// runSender wires up and runs the capture scheduler: device -> Opus ->
// paced UDP send, with the optional time-sync reply task on the same
// socket.
func runSender(args []string) int {
	cfg, err := config.Parse(config.RoleSender, args)
	if err != nil {
		log.Printf("mtx: %v", err)
		return 1
	}

	conn, err := transport.DialSender(cfg.Addr, cfg.Port)
	if err != nil {
		log.Printf("mtx: %v", err)
		return 1
	}
	defer conn.Close()

	// Realtime priority before dropping privileges: SCHED_FIFO needs the
	// capabilities we are about to give up.
	runtime.LockOSThread()
	rtprio.SetRealtime()
	if err := rtprio.DropPrivileges("nobody"); err != nil {
		log.Printf("mtx: %v", err)
		return 1
	}

	params := pcmdevice.Params{
		SampleRate: cfg.Rate,
		Channels:   cfg.Channels,
		FrameSize:  cfg.SamplesPerPeriod(),
		Float:      cfg.Format == config.FormatFloat,
	}

	var dev pcmdevice.Device
	if cfg.Device == "-" {
		dev = pcmdevice.NewStdioCapture(os.Stdin, params)
	} else {
		if err := portaudio.Initialize(); err != nil {
			log.Printf("mtx: portaudio: %v", err)
			return 1
		}
		defer portaudio.Terminate()
		idx, err := pcmdevice.DeviceIndex(cfg.Device)
		if err != nil {
			log.Printf("mtx: %v", err)
			return 1
		}
		capture, err := pcmdevice.OpenCapture(idx, params)
		if err != nil {
			log.Printf("mtx: %v", err)
			return 1
		}
		dev = capture
	}
	defer dev.Close()

	enc, err := codec.NewEncoder(cfg.Rate, cfg.Channels, cfg.Kbps*1000)
	if err != nil {
		log.Printf("mtx: opus encoder: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TimeSync {
		replier := &sender.TimeSyncReplier{Conn: conn}
		go func() {
			if err := replier.Run(); err != nil && ctx.Err() == nil {
				log.Printf("mtx: time sync: %v", err)
			}
		}()
	}

	sched := &sender.Scheduler{
		Device:           dev,
		Encoder:          enc,
		Sink:             sender.NewUDPSink(conn),
		Grid:             clockgrid.New(cfg.PeriodMs),
		SamplesPerPeriod: cfg.SamplesPerPeriod(),
		Channels:         cfg.Channels,
		BufferFrames:     cfg.SamplesPerPeriod() * cfg.BufferMult,
		RTP:              cfg.RTP,
		Verbose:          cfg.Verbose,
	}

	if err := sched.Run(ctx); err != nil {
		log.Printf("mtx: %v", err)
		return 1
	}
	return 0
}
