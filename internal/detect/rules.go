// Package detect turns OS-level process/window snapshots into meeting
// platform detections.
//
// It has three parts: a SignalSource capability yielding periodic snapshots,
// a pure rule Matcher classifying snapshot entries, and a polling Loop that
// drives the two and reports matches and handle disappearance to its sink.
package detect

import (
	"strings"

	"github.com/quillscribe/quill/pkg/types"
)

// Rule is a static platform signature: a platform tag plus the process names
// and window-title substrings that identify it. Rules are read-only after
// load.
type Rule struct {
	Platform types.Platform

	// ProcessNames match an entry's process name exactly
	// (case-insensitive). This tier outranks title matching.
	ProcessNames []string

	// TitleSubstrings match anywhere in an entry's window title
	// (case-insensitive). Used for platforms that live inside a browser,
	// where the process name alone proves nothing.
	TitleSubstrings []string
}

// DefaultRules returns the built-in signatures. Declaration order is the
// tie-break order within a precedence tier, so it is part of the contract.
//
// Google Meet has no process-name signature on purpose: a bare browser
// process (chrome, msedge, firefox) merely mentioning Meet is not evidence of
// a meeting, only its window title is.
func DefaultRules() []Rule {
	return []Rule{
		{
			Platform:        types.PlatformZoom,
			ProcessNames:    []string{"zoom.exe", "cpthost.exe", "zoom"},
			TitleSubstrings: []string{"zoom meeting"},
		},
		{
			Platform:        types.PlatformTeams,
			ProcessNames:    []string{"ms-teams.exe", "teams.exe", "ms-teams", "teams"},
			TitleSubstrings: []string{"microsoft teams meeting"},
		},
		{
			Platform:        types.PlatformGoogleMeet,
			TitleSubstrings: []string{"meet.google.com", "meet - ", "meet – "},
		},
	}
}

// Matcher classifies snapshot entries against an ordered rule list. It is a
// pure function over its rules: no state, no side effects, the only failure
// mode is "no match".
type Matcher struct {
	rules []Rule
}

// NewMatcher builds a Matcher. The rule slice is not copied; callers must not
// mutate it afterwards.
func NewMatcher(rules []Rule) *Matcher {
	return &Matcher{rules: rules}
}

// Match returns the best-matching platform for one snapshot entry.
//
// An explicit process-name match outranks a window-title substring match, to
// avoid false positives from browser tabs merely mentioning a platform in a
// title. Ties within the same tier resolve by rule declaration order, so the
// result is deterministic even when one entry carries evidence for several
// platforms.
func (m *Matcher) Match(e Entry) (types.Platform, bool) {
	proc := strings.ToLower(strings.TrimSpace(e.ProcessName))
	title := strings.ToLower(e.WindowTitle)

	if proc != "" {
		for _, r := range m.rules {
			for _, name := range r.ProcessNames {
				if proc == strings.ToLower(name) {
					return r.Platform, true
				}
			}
		}
	}

	if title != "" {
		for _, r := range m.rules {
			for _, sub := range r.TitleSubstrings {
				if strings.Contains(title, strings.ToLower(sub)) {
					return r.Platform, true
				}
			}
		}
	}

	return types.PlatformUnknown, false
}
