package detect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"github.com/quillscribe/quill/pkg/types"
)

// Entry is one process/window observation inside a snapshot.
type Entry struct {
	// ProcessName is the executable name (e.g. "zoom.exe", "zoom"). May be
	// empty when only window evidence is available.
	ProcessName string

	// WindowTitle is the window's title text. Empty when the source cannot
	// observe window titles (the procfs source cannot).
	WindowTitle string

	// Handle is the opaque identity of the process/window. Sessions bind to
	// it; the same handle reappearing means the same meeting instance.
	Handle types.Handle
}

// Snapshot is one complete observation of the machine's processes/windows.
type Snapshot struct {
	TakenAt time.Time
	Entries []Entry
}

// SignalSource is the capability that yields snapshots. The OS enumeration
// primitive stays behind this interface; tests and platform ports supply
// their own.
type SignalSource interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// ProcSource is the Linux SignalSource backed by /proc. It observes process
// names only; window titles require a desktop-environment source layered on
// top.
type ProcSource struct {
	fs procfs.FS
}

// NewProcSource mounts the default /proc filesystem.
func NewProcSource() (*ProcSource, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("detect: mount procfs: %w", err)
	}
	return &ProcSource{fs: fs}, nil
}

// Snapshot enumerates running processes. Processes that disappear between
// listing and reading are skipped, not errors.
func (s *ProcSource) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	procs, err := s.fs.AllProcs()
	if err != nil {
		return Snapshot{}, fmt.Errorf("detect: list processes: %w", err)
	}

	snap := Snapshot{TakenAt: time.Now(), Entries: make([]Entry, 0, len(procs))}
	for _, p := range procs {
		comm, err := p.Comm()
		if err != nil {
			continue
		}
		comm = strings.TrimSpace(comm)
		if comm == "" {
			continue
		}
		snap.Entries = append(snap.Entries, Entry{
			ProcessName: comm,
			Handle:      types.Handle(fmt.Sprintf("pid:%d", p.PID)),
		})
	}
	return snap, nil
}

// Ensure ProcSource implements SignalSource at compile time.
var _ SignalSource = (*ProcSource)(nil)
