package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillscribe/quill/pkg/types"
)

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name string
		want types.AudioSource
	}{
		{"MacBook Pro Microphone", types.SourceMic},
		{"Built-in Audio Analog Stereo", types.SourceMic},
		{"default", types.SourceMic},
		{"USB Audio Device Input", types.SourceMic},
		{"BlackHole 2ch", types.SourceSystem},
		{"VB-Cable Virtual Audio", types.SourceSystem},
		{"Monitor of Built-in Audio", types.SourceSystem},
		{"Stereo Mix (Realtek)", types.SourceSystem},
		{"Soundflower (2ch)", types.SourceSystem},
		{"HDMI Output", ""},
	}
	for _, tt := range tests {
		if got := classifyDevice(tt.name); got != tt.want {
			t.Errorf("classifyDevice(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// A Start that brings up no device must leave the capturer as if Start had
// never been called: the run context cancelled and the started flag clear,
// since the session runner never calls Stop after a failed Start.
func TestCapturerFailedStartUnwinds(t *testing.T) {
	c := &Capturer{sampleRate: 16000, chunkDur: 250 * time.Millisecond}

	// Mirror Start's prologue up to the point where device bring-up fails.
	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.started = true
	c.cancel = cancel
	c.sink = NewBuffer(4, 0)
	c.mu.Unlock()

	if err := c.failStart(ErrNoCaptureDevice); !errors.Is(err, ErrNoCaptureDevice) {
		t.Fatalf("failStart error = %v, want ErrNoCaptureDevice", err)
	}

	select {
	case <-runCtx.Done():
	default:
		t.Error("run context still live after failed start")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		t.Error("started flag still set after failed start")
	}
	if c.cancel != nil || c.sink != nil {
		t.Error("capture state not cleared after failed start")
	}
}
