package whisper_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/quillscribe/quill/pkg/provider/stt"
	"github.com/quillscribe/quill/pkg/provider/stt/whisper"
	"github.com/quillscribe/quill/pkg/types"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyTinyPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("", "")
	if err == nil {
		t.Fatal("expected error for empty tiny model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("/nonexistent/path/to/model.bin", "")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNewNative_TinyOnly_DoesNotError(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath, "", whisper.WithNativeLanguage("en"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	if p == nil {
		t.Fatal("expected non-nil NativeProvider")
	}
}

func TestNativeTranscribe_SmallFallsBackToTiny(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath, "")
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	w := stt.Window{
		Samples:    make([]float32, 16000), // one second of silence
		SampleRate: 16000,
		Duration:   time.Second,
		Source:     types.SourceMic,
	}
	res, err := p.Transcribe(context.Background(), w, types.ProfileSmall)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Profile != types.ProfileTiny {
		t.Errorf("Profile = %q, want fallback to %q", res.Profile, types.ProfileTiny)
	}
}

func TestNativeTranscribe_AfterClose_ReturnsModelUnavailable(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath, "")
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w := stt.Window{Samples: make([]float32, 1600), SampleRate: 16000}
	if _, err := p.Transcribe(context.Background(), w, types.ProfileTiny); err == nil {
		t.Fatal("expected error after Close, got nil")
	}
}

func TestNativeTranscribe_EmptyWindow_ReturnsEmptyResult(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath, "")
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	res, err := p.Transcribe(context.Background(), stt.Window{SampleRate: 16000}, types.ProfileTiny)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
}
