package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, yaml string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestNewWatcher_InitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.yaml")
	writeConfig(t, path, minimalYAML)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current() == nil {
		t.Fatal("Current() = nil after successful initial load")
	}
}

func TestNewWatcher_InvalidInitialConfig_ReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.yaml")
	writeConfig(t, path, "log_level: [not, a, string]\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config, got nil")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.yaml")
	writeConfig(t, path, minimalYAML)

	var (
		mu     sync.Mutex
		gotNew *Config
	)
	done := make(chan struct{})
	w, err := NewWatcher(path, func(old, new *Config) {
		mu.Lock()
		if gotNew == nil {
			gotNew = new
			close(done)
		}
		mu.Unlock()
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Ensure a different mtime even on coarse filesystem clocks.
	time.Sleep(20 * time.Millisecond)
	changed := strings.Replace(minimalYAML, "log_level: info", "log_level: debug", 1)
	writeConfig(t, path, changed)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("onChange was not called within 5s")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotNew.LogLevel != LogDebug {
		t.Errorf("new LogLevel = %q, want debug", gotNew.LogLevel)
	}
	if w.Current().LogLevel != LogDebug {
		t.Errorf("Current().LogLevel = %q, want debug", w.Current().LogLevel)
	}
}

func TestWatcher_InvalidChange_KeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.yaml")
	writeConfig(t, path, minimalYAML)

	w, err := NewWatcher(path, func(old, new *Config) {
		t.Error("onChange must not fire for an invalid config")
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "log_level: {bad\n")
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if w.Current().LogLevel != LogInfo {
		t.Errorf("Current().LogLevel = %q, want previous value info", w.Current().LogLevel)
	}
}
