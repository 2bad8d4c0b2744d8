package pcmdevice

import (
	"bytes"
	"context"
	"testing"
)

func TestStdioDeviceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	params := Params{SampleRate: 48000, Channels: 1, FrameSize: 4}

	playback := NewStdioPlayback(&buf, params)
	in := []int16{1, -1, 32767, -32768}
	if err := playback.Write(context.Background(), in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	capture := NewStdioCapture(&buf, params)
	out := make([]int16, 4)
	if err := capture.Read(context.Background(), out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d: wrote %d, read %d", i, in[i], out[i])
		}
	}
}

func TestStdioDeviceReadShortBufferErrors(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0}) // only one sample's worth

	capture := NewStdioCapture(&buf, Params{FrameSize: 2})
	out := make([]int16, 2)
	if err := capture.Read(context.Background(), out); err == nil {
		t.Fatal("expected error reading past EOF")
	}
	if capture.State() != XRun {
		t.Fatalf("State() = %v, want XRun after short read", capture.State())
	}
}

func TestStdioDeviceRespectsContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	capture := NewStdioCapture(&buf, Params{FrameSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := capture.Read(ctx, make([]int16, 1)); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestFloatInt16Conversion(t *testing.T) {
	src := []float32{0, 0.5, -0.5, 1, -1, 2, -2}
	dst := make([]int16, len(src))
	floatToInt16(src, dst)

	back := make([]float32, len(src))
	int16ToFloat(dst, back)

	for i := range src {
		clamped := src[i]
		if clamped > 1 {
			clamped = 1
		} else if clamped < -1 {
			clamped = -1
		}
		diff := back[i] - clamped
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.01 {
			t.Errorf("sample %d: round trip %v -> %v -> %v off by %v", i, src[i], dst[i], back[i], diff)
		}
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{Closed: "closed", Open: "open", Prepared: "prepared", Running: "running", XRun: "xrun"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
