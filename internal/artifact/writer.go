// Package artifact persists session transcripts and summaries as plain-text
// files. Every write goes to a temp file in the destination directory first
// and is renamed into place, so readers never observe a partial artifact and
// a crash mid-write leaves at most a stray temp file.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quillscribe/quill/internal/session"
	"github.com/quillscribe/quill/pkg/types"
)

// Writer renders and persists session artifacts under a single directory.
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed and returns a Writer
// rooted at it.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact: output directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create output directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Write persists the transcript and, when one exists, the summary. It returns
// the resolved paths and records them on the session. The transcript is
// written even when the summary failed or was skipped.
func (w *Writer) Write(sess *session.Session) (session.OutputPaths, error) {
	var paths session.OutputPaths

	tp, err := w.writeTranscript(sess)
	if err != nil {
		return paths, err
	}
	paths.Transcript = tp

	if sess.Summary() != nil {
		sp, err := w.writeSummary(sess)
		if err != nil {
			return paths, err
		}
		paths.Summary = sp
	}

	sess.SetOutputs(paths)
	return paths, nil
}

func (w *Writer) writeTranscript(sess *session.Session) (string, error) {
	path := filepath.Join(w.dir, sess.ID+"_transcript.txt")
	if err := atomicWrite(path, renderTranscript(sess)); err != nil {
		return "", fmt.Errorf("artifact: write transcript: %w", err)
	}
	return path, nil
}

func (w *Writer) writeSummary(sess *session.Session) (string, error) {
	path := filepath.Join(w.dir, sess.ID+"_summary.txt")
	if err := atomicWrite(path, renderSummary(sess)); err != nil {
		return "", fmt.Errorf("artifact: write summary: %w", err)
	}
	return path, nil
}

// atomicWrite writes data to a temp file next to path and renames it into
// place. The temp file lands in the same directory so the rename never
// crosses a filesystem boundary.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func renderTranscript(sess *session.Session) []byte {
	var sb strings.Builder

	sb.WriteString("Session: " + sess.ID + "\n")
	sb.WriteString("Platform: " + string(sess.Platform) + "\n")
	sb.WriteString("Started: " + sess.StartedAt().UTC().Format(time.RFC3339) + "\n")
	if ended := sess.EndedAt(); !ended.IsZero() {
		sb.WriteString("Ended: " + ended.UTC().Format(time.RFC3339) + "\n")
	}
	sb.WriteString("\n")

	if text := sess.TranscriptText(); text != "" {
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	for _, seg := range sess.Transcript() {
		if seg.IsGap() {
			sb.WriteString(fmt.Sprintf("[%s → %s] (%s) [audio lost]\n",
				formatOffset(seg.StartOffsetMs),
				formatOffset(seg.EndOffsetMs),
				sourceLabel(seg.Source)))
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s → %s] (%s) %s\n",
			formatOffset(seg.StartOffsetMs),
			formatOffset(seg.EndOffsetMs),
			sourceLabel(seg.Source),
			seg.Text))
	}

	return []byte(sb.String())
}

func renderSummary(sess *session.Session) []byte {
	sum := sess.Summary()
	var sb strings.Builder

	sb.WriteString("Session: " + sess.ID + "\n")
	sb.WriteString("Generated: " + sum.GeneratedAt.UTC().Format(time.RFC3339) + "\n\n")

	for i, sec := range sum.Sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(sec.Title + "\n")
		sb.WriteString(strings.Repeat("-", len(sec.Title)) + "\n")
		sb.WriteString(sec.Body + "\n")
	}

	return []byte(sb.String())
}

// formatOffset renders milliseconds as MM:SS.cc. Hours roll into minutes;
// meetings rarely need more.
func formatOffset(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / 60000
	seconds := (ms % 60000) / 1000
	centis := (ms % 1000) / 10
	return fmt.Sprintf("%02d:%02d.%02d", minutes, seconds, centis)
}

func sourceLabel(s types.AudioSource) string {
	if s == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(string(s))
}
