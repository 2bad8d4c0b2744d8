package pcmdevice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// DeviceIndex resolves a CLI device name to a PortAudio device index:
// "default" (or empty) selects the system default, a decimal number selects
// by index, anything else matches a substring of the device name.
func DeviceIndex(name string) (int, error) {
	if name == "" || name == "default" {
		return -1, nil
	}
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return 0, err
	}
	for i, d := range devices {
		if strings.Contains(d.Name, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("pcmdevice: no device matching %q", name)
}

// stream abstracts the portaudio.Stream methods this package uses, as a
// seam for tests.
type stream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	Write() error
}

// CaptureDevice reads from a PortAudio input stream.
type CaptureDevice struct {
	params Params

	mu     sync.Mutex
	stream stream
	buf    []float32
	state  State
}

// OpenCapture opens the input device identified by deviceIndex (-1 for the
// system default) with the given Params at the device's default low input
// latency.
func OpenCapture(deviceIndex int, p Params) (*CaptureDevice, error) {
	dev, err := resolveInputDevice(deviceIndex)
	if err != nil {
		return nil, err
	}

	buf := make([]float32, p.FrameSize*p.Channels)
	sp := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: p.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(p.SampleRate),
		FramesPerBuffer: p.FrameSize,
	}
	s, err := portaudio.OpenStream(sp, buf)
	if err != nil {
		return nil, fmt.Errorf("pcmdevice: open capture %s: %w", dev.Name, err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("pcmdevice: start capture %s: %w", dev.Name, err)
	}
	return &CaptureDevice{params: p, stream: s, buf: buf, state: Running}, nil
}

func (c *CaptureDevice) Read(ctx context.Context, pcm []int16) error {
	if len(pcm) != len(c.buf) {
		return fmt.Errorf("pcmdevice: Read wants %d samples, got buffer of %d", len(c.buf), len(pcm))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stream.Read(); err != nil {
		c.state = XRun
		if errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("%w: %v", ErrUnderrun, err)
		}
		return err
	}
	c.state = Running
	floatToInt16(c.buf, pcm)
	return nil
}

func (c *CaptureDevice) Write(ctx context.Context, pcm []int16) error {
	return fmt.Errorf("pcmdevice: capture device does not support Write")
}

// AvailDelay on a PortAudio stream has no ALSA-style avail/delay query: the
// library exposes only blocking Read/Write. It reports the configured period
// size as avail and 0 as delay, so the capture scheduler's resync drain
// never finds a backlog to discard on this device.
func (c *CaptureDevice) AvailDelay() (avail, delay int, err error) {
	return c.params.FrameSize, 0, nil
}

func (c *CaptureDevice) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Prepare restarts the stream, discarding whatever the driver buffered.
func (c *CaptureDevice) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream.Stop()
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("pcmdevice: restart capture: %w", err)
	}
	c.state = Running
	return nil
}

// Recover is the same restart for a PortAudio stream; there is no separate
// lighter-weight recovery path.
func (c *CaptureDevice) Recover() error {
	return c.Prepare()
}

func (c *CaptureDevice) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Closed
	c.stream.Stop()
	return c.stream.Close()
}

// PlaybackDevice writes to a PortAudio output stream.
type PlaybackDevice struct {
	params Params

	mu     sync.Mutex
	stream stream
	buf    []float32
	state  State
}

// OpenPlayback opens the output device identified by deviceIndex (-1 for
// the system default) with the given Params.
func OpenPlayback(deviceIndex int, p Params) (*PlaybackDevice, error) {
	dev, err := resolveOutputDevice(deviceIndex)
	if err != nil {
		return nil, err
	}

	buf := make([]float32, p.FrameSize*p.Channels)
	sp := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: p.Channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(p.SampleRate),
		FramesPerBuffer: p.FrameSize,
	}
	s, err := portaudio.OpenStream(sp, buf)
	if err != nil {
		return nil, fmt.Errorf("pcmdevice: open playback %s: %w", dev.Name, err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("pcmdevice: start playback %s: %w", dev.Name, err)
	}
	// The stream starts Prepared, not Running: the playback scheduler
	// primes it with one buffer of silence before steady-state writes.
	return &PlaybackDevice{params: p, stream: s, buf: buf, state: Prepared}, nil
}

func (p *PlaybackDevice) Read(ctx context.Context, pcm []int16) error {
	return fmt.Errorf("pcmdevice: playback device does not support Read")
}

func (p *PlaybackDevice) Write(ctx context.Context, pcm []int16) error {
	if len(pcm) != len(p.buf) {
		return fmt.Errorf("pcmdevice: Write wants %d samples, got buffer of %d", len(p.buf), len(pcm))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	int16ToFloat(pcm, p.buf)
	if err := p.stream.Write(); err != nil {
		p.state = XRun
		if errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("%w: %v", ErrUnderrun, err)
		}
		return err
	}
	p.state = Running
	return nil
}

func (p *PlaybackDevice) AvailDelay() (avail, delay int, err error) {
	return 0, p.params.FrameSize, nil
}

func (p *PlaybackDevice) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Prepare restarts the stream and leaves it waiting for a priming write,
// mirroring ALSA's SND_PCM_STATE_PREPARED.
func (p *PlaybackDevice) Prepare() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream.Stop()
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("pcmdevice: restart playback: %w", err)
	}
	p.state = Prepared
	return nil
}

// Recover brings the stream back from an underrun without requiring a
// fresh priming write.
func (p *PlaybackDevice) Recover() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stream.Stop()
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("pcmdevice: recover playback: %w", err)
	}
	p.state = Running
	return nil
}

func (p *PlaybackDevice) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Closed
	p.stream.Stop()
	return p.stream.Close()
}

func resolveInputDevice(idx int) (*portaudio.DeviceInfo, error) {
	if idx < 0 {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if idx >= len(devices) {
		return nil, fmt.Errorf("pcmdevice: input device index %d out of range", idx)
	}
	return devices[idx], nil
}

func resolveOutputDevice(idx int) (*portaudio.DeviceInfo, error) {
	if idx < 0 {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if idx >= len(devices) {
		return nil, fmt.Errorf("pcmdevice: output device index %d out of range", idx)
	}
	return devices[idx], nil
}

func floatToInt16(src []float32, dst []int16) {
	for i, v := range src {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = int16(v * 32767)
	}
}

func int16ToFloat(src []int16, dst []float32) {
	for i, v := range src {
		dst[i] = float32(v) / 32768
	}
}
