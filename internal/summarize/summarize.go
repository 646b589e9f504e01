// Package summarize produces the post-meeting summary from a finalized
// transcript. Summarization runs at most once per session: a failed attempt
// is recorded on the session and never retried automatically, and transcripts
// too short to summarize are skipped rather than treated as errors.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/quillscribe/quill/pkg/provider/llm"
	"github.com/quillscribe/quill/pkg/types"
)

const systemPrompt = `You summarize meeting transcripts. Produce concise markdown with these second-level headings, in this order: "## Overview", "## Decisions", "## Action Items". Under Action Items use one bullet per item with an owner when one is named. Base everything strictly on the transcript; never invent facts.`

// Target is the slice of a session the summarizer writes to. Implemented by
// session.Session.
type Target interface {
	TranscriptText() string
	SetSummary(sum *types.Summary) error
	MarkSummarySkipped()
	SetSummaryErr(err error)
}

// Summarizer drives one LLM completion per finalized session.
type Summarizer struct {
	provider    llm.Provider
	minRunes    int
	maxTokens   int
	temperature float64
	now         func() time.Time
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithMinRunes sets the transcript length below which summarization is
// skipped.
func WithMinRunes(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.minRunes = n
		}
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Summarizer) {
		if t >= 0 {
			s.temperature = t
		}
	}
}

// New creates a Summarizer around the given provider.
func New(provider llm.Provider, opts ...Option) *Summarizer {
	s := &Summarizer{
		provider:    provider,
		minRunes:    80,
		maxTokens:   1024,
		temperature: 0.2,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize generates and attaches the summary for target. Short transcripts
// are marked skipped and return nil. A provider failure is recorded on the
// target and returned; the caller must not retry within the session.
func (s *Summarizer) Summarize(ctx context.Context, target Target) error {
	text := strings.TrimSpace(target.TranscriptText())
	if utf8.RuneCountInString(text) < s.minRunes {
		target.MarkSummarySkipped()
		return nil
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Transcript:\n\n" + text},
		},
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		err = fmt.Errorf("summarize: completion: %w", err)
		target.SetSummaryErr(err)
		return err
	}

	sum := &types.Summary{
		GeneratedAt: s.now().UTC(),
		Sections:    parseSections(resp.Content),
	}
	if err := target.SetSummary(sum); err != nil {
		return fmt.Errorf("summarize: attach summary: %w", err)
	}
	return nil
}

// parseSections splits markdown content on second-level headings. Content
// without headings becomes a single untitled-by-structure section.
func parseSections(content string) []types.SummarySection {
	var sections []types.SummarySection
	var current *types.SummarySection
	var preamble []string

	flush := func() {
		if current != nil {
			current.Body = strings.TrimSpace(current.Body)
			sections = append(sections, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if title, ok := strings.CutPrefix(strings.TrimSpace(line), "## "); ok {
			flush()
			current = &types.SummarySection{Title: strings.TrimSpace(title)}
			continue
		}
		if current != nil {
			current.Body += line + "\n"
		} else if strings.TrimSpace(line) != "" {
			preamble = append(preamble, line)
		}
	}
	flush()

	if len(sections) == 0 {
		return []types.SummarySection{{
			Title: "Summary",
			Body:  strings.TrimSpace(content),
		}}
	}
	if len(preamble) > 0 {
		sections = append([]types.SummarySection{{
			Title: "Summary",
			Body:  strings.TrimSpace(strings.Join(preamble, "\n")),
		}}, sections...)
	}
	return sections
}
