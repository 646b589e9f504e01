package session

import (
	"errors"
	"testing"

	"github.com/quillscribe/quill/pkg/types"
)

func activeSession(t *testing.T) *Session {
	t.Helper()
	s := New(types.PlatformZoom, "pid:1", types.ProfileTiny)
	for _, st := range []State{StatePrompted, StateActive} {
		if err := s.Transition(st); err != nil {
			t.Fatalf("Transition(%s): %v", st, err)
		}
	}
	return s
}

func TestNew_StartsDetected(t *testing.T) {
	s := New(types.PlatformTeams, "pid:42", types.ProfileSmall)
	if s.State() != StateDetected {
		t.Errorf("State = %s, want detected", s.State())
	}
	if s.Consent() != types.ConsentPending {
		t.Errorf("Consent = %s, want pending", s.Consent())
	}
	if s.Profile() != types.ProfileSmall {
		t.Errorf("Profile = %s, want small", s.Profile())
	}
	if s.ID == "" {
		t.Error("ID must not be empty")
	}
}

func TestNew_IDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s := New(types.PlatformZoom, "pid:1", types.ProfileTiny)
		if seen[s.ID] {
			t.Fatalf("duplicate session id %q", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestTransition_HappyPath(t *testing.T) {
	s := New(types.PlatformZoom, "pid:1", types.ProfileTiny)
	for _, st := range []State{StatePrompted, StateActive, StateFinalizing, StateCompleted} {
		if err := s.Transition(st); err != nil {
			t.Fatalf("Transition(%s): %v", st, err)
		}
	}
	if !s.State().Terminal() {
		t.Error("completed session must be terminal")
	}
	if s.EndedAt().IsZero() {
		t.Error("EndedAt must be set on terminal transition")
	}
}

func TestTransition_InvalidEdgesRejected(t *testing.T) {
	tests := []struct {
		name string
		prep []State
		to   State
	}{
		{"detected straight to active", nil, StateActive},
		{"detected to finalizing", nil, StateFinalizing},
		{"prompted to completed", []State{StatePrompted}, StateCompleted},
		{"active to disabled", []State{StatePrompted, StateActive}, StateDisabled},
		{"finalizing back to active", []State{StatePrompted, StateActive, StateFinalizing}, StateActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(types.PlatformZoom, "pid:1", types.ProfileTiny)
			for _, st := range tt.prep {
				if err := s.Transition(st); err != nil {
					t.Fatal(err)
				}
			}
			if err := s.Transition(tt.to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%s) err = %v, want ErrInvalidTransition", tt.to, err)
			}
		})
	}
}

func TestTransition_TerminalExactlyOnce(t *testing.T) {
	s := New(types.PlatformZoom, "pid:1", types.ProfileTiny)
	if err := s.Transition(StateDisabled); err != nil {
		t.Fatal(err)
	}
	for _, to := range []State{StatePrompted, StateActive, StateCompleted, StateAbandoned, StateDisabled} {
		if err := s.Transition(to); !errors.Is(err, ErrTerminal) {
			t.Errorf("Transition(%s) after terminal = %v, want ErrTerminal", to, err)
		}
	}
}

func TestAppend_SequenceNumbersContiguousFromZero(t *testing.T) {
	s := activeSession(t)

	texts := []string{"hello", "", "world", "", "again"}
	for i, text := range texts {
		seg, err := s.Append(int64(i*1000), int64((i+1)*1000), text, 0, types.SourceMic)
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		if seg.SequenceNumber != i {
			t.Errorf("segment %d got sequence %d", i, seg.SequenceNumber)
		}
	}

	segs := s.Transcript()
	if len(segs) != len(texts) {
		t.Fatalf("len(Transcript) = %d, want %d", len(segs), len(texts))
	}
	for i, seg := range segs {
		if seg.SequenceNumber != i {
			t.Errorf("transcript[%d].SequenceNumber = %d", i, seg.SequenceNumber)
		}
		if seg.IsGap() != (texts[i] == "") {
			t.Errorf("transcript[%d].IsGap() = %v", i, seg.IsGap())
		}
	}
}

func TestAppend_AfterClose_Rejected(t *testing.T) {
	s := activeSession(t)
	s.CloseTranscript()
	if _, err := s.Append(0, 1000, "late", 0, types.SourceMic); !errors.Is(err, ErrTranscriptClosed) {
		t.Errorf("err = %v, want ErrTranscriptClosed", err)
	}
}

func TestSetSummary_RequiresClosedTranscript_AtMostOnce(t *testing.T) {
	s := activeSession(t)

	if err := s.SetSummary(&types.Summary{}); !errors.Is(err, ErrTranscriptOpen) {
		t.Fatalf("err = %v, want ErrTranscriptOpen", err)
	}

	s.CloseTranscript()
	if err := s.SetSummary(&types.Summary{}); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}
	if err := s.SetSummary(&types.Summary{}); !errors.Is(err, ErrSummarySet) {
		t.Errorf("second SetSummary err = %v, want ErrSummarySet", err)
	}
}

func TestTranscriptText_SkipsGaps(t *testing.T) {
	s := activeSession(t)
	s.Append(0, 1000, "one", 0, types.SourceMic)
	s.Append(1000, 2000, "", 0, types.SourceMic)
	s.Append(2000, 3000, "two", 0, types.SourceSystem)
	if got := s.TranscriptText(); got != "one two" {
		t.Errorf("TranscriptText = %q, want %q", got, "one two")
	}
}

func TestMarkFailed_KeepsFirstCause(t *testing.T) {
	s := activeSession(t)
	first := errors.New("first")
	s.MarkFailed(first)
	s.MarkFailed(errors.New("second"))
	failed, cause := s.Failed()
	if !failed || !errors.Is(cause, first) {
		t.Errorf("Failed() = %v, %v; want true, first", failed, cause)
	}
}
