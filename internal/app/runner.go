package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quillscribe/quill/internal/audio"
	"github.com/quillscribe/quill/internal/consent"
	"github.com/quillscribe/quill/internal/session"
	"github.com/quillscribe/quill/pkg/types"
)

// summaryTimeout bounds the single summarization attempt after the
// transcript closes. A slow local model must not hold the session open
// forever; on expiry the session completes transcript-only.
const summaryTimeout = 2 * time.Minute

// runner tracks one live session goroutine. end fires when the meeting
// disappears from detection or the app shuts down.
type runner struct {
	sess    *session.Session
	end     chan struct{}
	endOnce sync.Once
}

func (r *runner) meetingEnded() {
	r.endOnce.Do(func() { close(r.end) })
}

// runSession drives one session from detected to a terminal state. Every
// exit path leaves the session terminal and evicted from the live registry
// (abandoned sessions stay retained for one write retry).
func (a *App) runSession(ctx context.Context, r *runner) {
	sess := r.sess
	log := slog.With("session", sess.ID, "platform", sess.Platform)

	a.metrics.ActiveSessions.Add(ctx, 1)
	defer func() {
		a.mu.Lock()
		// A replacement session may already own the handle's slot; only
		// unregister our own entries.
		if a.runners[sess.Handle] == r {
			delete(a.runners, sess.Handle)
		}
		select {
		case <-r.end:
			// Meeting already gone; nothing to mute.
		default:
			a.suppressed[sess.Handle] = struct{}{}
		}
		a.mu.Unlock()
		a.registry.Evict(sess)
		a.metrics.ActiveSessions.Add(ctx, -1)
		a.metrics.RecordSessionOutcome(ctx, string(sess.Platform), string(sess.State()))
		log.Info("session finished", "state", sess.State())
	}()

	if err := sess.Transition(session.StatePrompted); err != nil {
		log.Error("session prompt transition failed", "error", err)
		return
	}

	decision, err := a.consent.Decide(ctx, consent.Request{
		SessionID: sess.ID,
		Platform:  sess.Platform,
		Handle:    sess.Handle,
	})
	if err != nil {
		log.Warn("consent prompt error", "error", err)
	}
	sess.SetConsent(decision)
	a.metrics.RecordConsentDecision(ctx, string(decision))
	a.publish(sess, "consent", string(decision))

	if decision != types.ConsentAccepted {
		// Timed out and disabled end the same way: no capture ever starts
		// and nothing is written to disk.
		if terr := sess.Transition(session.StateDisabled); terr != nil {
			log.Error("disable transition failed", "error", terr)
		}
		return
	}

	if err := sess.Transition(session.StateActive); err != nil {
		log.Error("activate transition failed", "error", err)
		return
	}
	a.publish(sess, "recording", "")

	cfg := a.cfg.Load()
	buf := audio.NewBuffer(cfg.Audio.Capacity(), cfg.Audio.Grace())

	// An unusable capture device is fatal to recording but not to the
	// session: it finalizes with an empty transcript and the error flag set.
	src, err := a.captureFactory()
	if err == nil {
		err = src.Start(ctx, buf)
	}
	if err != nil {
		log.Error("audio capture unavailable", "error", err)
		sess.MarkFailed(err)
		if terr := sess.Transition(session.StateFinalizing); terr != nil {
			log.Error("finalize transition failed", "error", terr)
			return
		}
		a.publish(sess, "finalizing", "")
		sess.CloseTranscript()
		a.finish(ctx, sess, log)
		return
	}

	// Meeting end, app shutdown, or pipeline exit all stop capture exactly
	// once; closing the buffer then lets the pipeline drain and return.
	pipelineDone := make(chan struct{})
	var stopWG sync.WaitGroup
	stopWG.Add(1)
	go func() {
		defer stopWG.Done()
		select {
		case <-ctx.Done():
		case <-r.end:
		case <-pipelineDone:
		}
		if terr := sess.Transition(session.StateFinalizing); terr != nil {
			log.Error("finalize transition failed", "error", terr)
		} else {
			a.publish(sess, "finalizing", "")
		}
		src.Stop()
	}()

	// Recognition drains independently of ctx so a shutdown still flushes
	// buffered audio; the coordinator's finalize timeout bounds the drain.
	runErr := a.coord.Run(context.WithoutCancel(ctx), sess.ID, buf, sess)
	close(pipelineDone)
	stopWG.Wait()

	sess.CloseTranscript()
	a.recordSegments(ctx, sess)

	if runErr != nil {
		// Escalated recognition failure or an expired drain deadline ends
		// recording, but whatever was transcribed up to that point still
		// ships: the error flag is set and the session completes with the
		// partial transcript. Only a failed artifact write abandons.
		log.Error("recognition stopped early, keeping partial transcript", "error", runErr)
		sess.MarkFailed(runErr)
	}

	a.finish(ctx, sess, log)
}

// finish runs the at-most-once summarization and the artifact write for a
// session whose transcript is closed, then moves it to Completed. An artifact
// write failure is the one path left to Abandoned.
func (a *App) finish(ctx context.Context, sess *session.Session, log *slog.Logger) {
	if a.summarizer != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
		start := time.Now()
		serr := a.summarizer.Summarize(sctx, sess)
		cancel()
		a.metrics.SummaryDuration.Record(ctx, time.Since(start).Seconds())
		if serr != nil {
			// Summary failure is not fatal; the transcript still ships.
			log.Warn("summarization failed", "error", serr)
		}
	} else {
		sess.MarkSummarySkipped()
	}

	a.writerMu.Lock()
	w := a.writer
	a.writerMu.Unlock()
	paths, werr := w.Write(sess)
	if werr != nil {
		a.abandon(sess, log, werr)
		return
	}

	if err := sess.Transition(session.StateCompleted); err != nil {
		log.Error("complete transition failed", "error", err)
		return
	}
	a.publish(sess, "complete", paths.Transcript)
}

// abandon marks a finalizing session failed and terminal after its artifact
// write failed. The registry retains it for one operator-initiated retry.
func (a *App) abandon(sess *session.Session, log *slog.Logger, cause error) {
	log.Error("session abandoned", "error", cause)
	sess.MarkFailed(cause)
	if err := sess.Transition(session.StateAbandoned); err != nil {
		log.Error("abandon transition failed", "error", err)
	}
	a.publish(sess, "failed", cause.Error())
}

// recordSegments feeds the finished transcript into the segment counters.
func (a *App) recordSegments(ctx context.Context, sess *session.Session) {
	for _, seg := range sess.Transcript() {
		a.metrics.RecordSegment(ctx, string(seg.Source), seg.IsGap())
	}
}

// publish pushes a status event to connected WebSocket clients, when the
// hub is the prompter in use.
func (a *App) publish(sess *session.Session, event, detail string) {
	if a.hub != nil {
		a.hub.Publish(sess.ID, sess.Platform, event, detail)
	}
}
