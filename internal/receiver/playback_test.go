package receiver

import (
	"context"
	"errors"
	"testing"

	"audiosync/internal/clockgrid"
	"audiosync/internal/jitterbuf"
	"audiosync/internal/pcmdevice"
	"audiosync/internal/timesync"
	"audiosync/internal/wire"
)

type fakeDevice struct {
	state    pcmdevice.State
	written  [][]int16
	writeErr error
	prepares int
	recovers int
}

func (f *fakeDevice) Read(ctx context.Context, pcm []int16) error { return nil }
func (f *fakeDevice) Write(ctx context.Context, pcm []int16) error {
	if f.writeErr != nil {
		err := f.writeErr
		f.writeErr = nil
		return err
	}
	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	f.written = append(f.written, cp)
	f.state = pcmdevice.Running
	return nil
}
func (f *fakeDevice) AvailDelay() (avail, delay int, err error) { return 0, 0, nil }
func (f *fakeDevice) State() pcmdevice.State                    { return f.state }
func (f *fakeDevice) Prepare() error {
	f.prepares++
	f.state = pcmdevice.Prepared
	return nil
}
func (f *fakeDevice) Recover() error {
	f.recovers++
	f.state = pcmdevice.Running
	return nil
}
func (f *fakeDevice) Close() error { return nil }

type fakeDecoder struct {
	decodeCalls int
	plcCalls    int
}

func (d *fakeDecoder) Decode(data []byte, pcm []int16) (int, error) {
	d.decodeCalls++
	for i := range pcm {
		pcm[i] = 1
	}
	return len(pcm), nil
}

func (d *fakeDecoder) DecodeFEC(data []byte, pcm []int16) error { return nil }

func (d *fakeDecoder) DecodePLC(pcm []int16) error {
	d.plcCalls++
	for i := range pcm {
		pcm[i] = 2
	}
	return nil
}

func TestPlaybackSchedulerConcealsOnEmptyBuffer(t *testing.T) {
	dev := &fakeDevice{state: pcmdevice.Running}
	dec := &fakeDecoder{}
	buf := jitterbuf.New(50, false)
	var offset timesync.Offset

	p := &PlaybackScheduler{
		Device:           dev,
		Decoder:          dec,
		Buffer:           buf,
		Offset:           &offset,
		Grid:             clockgrid.New(20),
		SamplesPerPeriod: 4,
	}

	tick := p.nextSenderTick()
	entry, ok := buf.ConsumeAt(addNs(tick, p.Delay2Ns))
	if ok {
		t.Fatalf("expected no entry in an empty buffer, got %+v", entry)
	}

	pcm := make([]int16, 4)
	p.conceal(pcm)

	if dec.plcCalls != 1 {
		t.Fatalf("expected one PLC concealment call, got %d", dec.plcCalls)
	}
	for _, v := range pcm {
		if v != 2 {
			t.Fatalf("expected concealed PCM to come from DecodePLC, got %v", pcm)
		}
	}
}

func TestPlaybackSchedulerDecodesAvailableFrame(t *testing.T) {
	dec := &fakeDecoder{}
	buf := jitterbuf.New(50, false)

	ts := wire.Timestamp{Sec: 10, Nsec: 0}
	buf.Insert(jitterbuf.Entry{Timestamp: ts, Payload: []byte{0xAA}})

	entry, ok := buf.ConsumeAt(ts)
	if !ok {
		t.Fatal("expected to consume the inserted frame")
	}
	pcm := make([]int16, 4)
	n, err := dec.Decode(entry.Payload, pcm)
	if err != nil || n != 4 {
		t.Fatalf("Decode() = %d, %v", n, err)
	}
	if dec.decodeCalls != 1 {
		t.Fatalf("expected one Decode call, got %d", dec.decodeCalls)
	}
}

func TestPlaybackSchedulerRecoversFromUnderrun(t *testing.T) {
	dev := &fakeDevice{state: pcmdevice.Running}
	p := &PlaybackScheduler{Device: dev, SamplesPerPeriod: 4}

	p.handleWriteError(pcmdevice.ErrUnderrun, 0)
	if dev.recovers != 1 {
		t.Fatalf("expected one Recover call, got %d", dev.recovers)
	}
}

func TestPlaybackSchedulerRepreparesOnStoppedStream(t *testing.T) {
	dev := &fakeDevice{state: pcmdevice.Running}
	p := &PlaybackScheduler{Device: dev, SamplesPerPeriod: 4}

	// avail one frame short of full with zero progress means the stream
	// stopped; anything else is just a busy driver.
	p.handleWriteError(pcmdevice.ErrWouldBlock, 3)
	if dev.prepares != 1 {
		t.Fatalf("expected one Prepare call, got %d", dev.prepares)
	}
	p.handleWriteError(pcmdevice.ErrWouldBlock, 0)
	if dev.prepares != 1 {
		t.Fatalf("expected no further Prepare calls, got %d", dev.prepares)
	}
}

func TestPlaybackSchedulerLogsOtherWriteErrors(t *testing.T) {
	dev := &fakeDevice{state: pcmdevice.Running}
	p := &PlaybackScheduler{Device: dev, SamplesPerPeriod: 4}

	p.handleWriteError(errors.New("short write"), 0)
	if dev.prepares != 0 || dev.recovers != 0 {
		t.Fatalf("expected no device action on a generic error, got prepares=%d recovers=%d", dev.prepares, dev.recovers)
	}
}
