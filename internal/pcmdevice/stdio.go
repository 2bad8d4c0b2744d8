package pcmdevice

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// StdioDevice reads or writes raw little-endian PCM on an io.Reader or
// io.Writer, selected with device name "-" in place of a sound card.
// Samples are S16 by default, or 32-bit float when Params.Float is set.
type StdioDevice struct {
	params Params

	mu    sync.Mutex
	r     io.Reader
	w     io.Writer
	state State
}

// NewStdioCapture builds a capture Device that reads raw PCM from r.
func NewStdioCapture(r io.Reader, p Params) *StdioDevice {
	return &StdioDevice{params: p, r: r, state: Running}
}

// NewStdioPlayback builds a playback Device that writes raw PCM to w.
func NewStdioPlayback(w io.Writer, p Params) *StdioDevice {
	return &StdioDevice{params: p, w: w, state: Running}
}

func (d *StdioDevice) sampleBytes() int {
	if d.params.Float {
		return 4
	}
	return 2
}

func (d *StdioDevice) Read(ctx context.Context, pcm []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, d.sampleBytes()*len(pcm))
	if _, err := io.ReadFull(d.r, buf); err != nil {
		d.state = XRun
		return err
	}
	if d.params.Float {
		for i := range pcm {
			f := math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i : 4*i+4]))
			if f > 1 {
				f = 1
			} else if f < -1 {
				f = -1
			}
			pcm[i] = int16(f * 32767)
		}
		return nil
	}
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(buf[2*i : 2*i+2]))
	}
	return nil
}

func (d *StdioDevice) Write(ctx context.Context, pcm []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, d.sampleBytes()*len(pcm))
	if d.params.Float {
		for i, v := range pcm {
			binary.LittleEndian.PutUint32(buf[4*i:4*i+4], math.Float32bits(float32(v)/32768))
		}
	} else {
		for i, v := range pcm {
			binary.LittleEndian.PutUint16(buf[2*i:2*i+2], uint16(v))
		}
	}
	// io.Writer retries partial writes internally; a zero or negative
	// return surfaces as an error here, which callers on the stdio path
	// treat as fatal.
	if _, err := d.w.Write(buf); err != nil {
		d.state = XRun
		return err
	}
	return nil
}

// AvailDelay reports the configured period size: stdio has no device queue
// to measure, so capture is always "ready" and playback never backs up.
func (d *StdioDevice) AvailDelay() (avail, delay int, err error) {
	return d.params.FrameSize, 0, nil
}

func (d *StdioDevice) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Prepare clears an XRun; a pipe has no buffers to drop or re-prime.
func (d *StdioDevice) Prepare() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Closed {
		d.state = Running
	}
	return nil
}

// Recover is identical to Prepare for a pipe.
func (d *StdioDevice) Recover() error {
	return d.Prepare()
}

func (d *StdioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Closed
	if c, ok := d.r.(io.Closer); ok {
		return c.Close()
	}
	if c, ok := d.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
