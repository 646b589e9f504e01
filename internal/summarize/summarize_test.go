package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quillscribe/quill/pkg/provider/llm"
	"github.com/quillscribe/quill/pkg/provider/llm/mock"
	"github.com/quillscribe/quill/pkg/types"
)

type fakeTarget struct {
	text       string
	summary    *types.Summary
	setErr     error
	skipped    bool
	summaryErr error
}

func (f *fakeTarget) TranscriptText() string { return f.text }
func (f *fakeTarget) SetSummary(sum *types.Summary) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.summary = sum
	return nil
}
func (f *fakeTarget) MarkSummarySkipped() { f.skipped = true }

func (f *fakeTarget) SetSummaryErr(err error) { f.summaryErr = err }

const longTranscript = "we agreed to ship the beta on thursday and maya will own the " +
	"rollout checklist while the platform team finishes the migration runbook"

func TestSummarize_AttachesParsedSections(t *testing.T) {
	provider := &mock.Provider{
		Response: &llm.CompletionResponse{
			Content: "## Overview\nShort sync about the beta.\n\n## Decisions\nShip thursday.\n\n## Action Items\n- Maya: rollout checklist\n",
		},
	}
	s := New(provider)

	target := &fakeTarget{text: longTranscript}
	if err := s.Summarize(context.Background(), target); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if target.summary == nil {
		t.Fatal("no summary attached")
	}
	if target.summary.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}

	sections := target.summary.Sections
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3: %+v", len(sections), sections)
	}
	wantTitles := []string{"Overview", "Decisions", "Action Items"}
	for i, sec := range sections {
		if sec.Title != wantTitles[i] {
			t.Errorf("section %d title = %q, want %q", i, sec.Title, wantTitles[i])
		}
		if sec.Body == "" {
			t.Errorf("section %d has empty body", i)
		}
	}

	if provider.CallCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.CallCount())
	}
	req := provider.CompleteCalls[0]
	if req.SystemPrompt == "" {
		t.Error("system prompt missing")
	}
	if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, longTranscript) {
		t.Error("transcript not in the user message")
	}
}

func TestSummarize_HeadinglessContentBecomesSingleSection(t *testing.T) {
	provider := &mock.Provider{
		Response: &llm.CompletionResponse{Content: "Everyone agreed to ship on thursday."},
	}
	target := &fakeTarget{text: longTranscript}
	if err := New(provider).Summarize(context.Background(), target); err != nil {
		t.Fatal(err)
	}

	sections := target.summary.Sections
	if len(sections) != 1 || sections[0].Title != "Summary" {
		t.Fatalf("sections = %+v, want single Summary section", sections)
	}
	if sections[0].Body != "Everyone agreed to ship on thursday." {
		t.Errorf("body = %q", sections[0].Body)
	}
}

func TestSummarize_ShortTranscriptSkipsWithoutError(t *testing.T) {
	provider := &mock.Provider{Response: &llm.CompletionResponse{Content: "x"}}
	s := New(provider, WithMinRunes(80))

	target := &fakeTarget{text: "too short to bother"}
	if err := s.Summarize(context.Background(), target); err != nil {
		t.Fatalf("Summarize on short transcript = %v, want nil", err)
	}
	if !target.skipped {
		t.Error("short transcript not marked skipped")
	}
	if target.summary != nil {
		t.Error("summary attached despite skip")
	}
	if provider.CallCount() != 0 {
		t.Errorf("provider called %d times for a skipped transcript", provider.CallCount())
	}
}

func TestSummarize_ProviderFailureRecordedNotRetried(t *testing.T) {
	provider := &mock.Provider{Err: errors.New("ollama unreachable")}
	s := New(provider)

	target := &fakeTarget{text: longTranscript}
	err := s.Summarize(context.Background(), target)
	if err == nil {
		t.Fatal("Summarize = nil, want error")
	}
	if target.summaryErr == nil {
		t.Error("failure not recorded on the session")
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider called %d times, want exactly 1 (no retry)", provider.CallCount())
	}
}

func TestParseSections_PreambleKept(t *testing.T) {
	sections := parseSections("A quick note first.\n\n## Decisions\nShip it.")
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if sections[0].Title != "Summary" || sections[0].Body != "A quick note first." {
		t.Errorf("preamble section = %+v", sections[0])
	}
	if sections[1].Title != "Decisions" || sections[1].Body != "Ship it." {
		t.Errorf("heading section = %+v", sections[1])
	}
}
