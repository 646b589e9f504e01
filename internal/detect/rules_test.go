package detect

import (
	"testing"

	"github.com/quillscribe/quill/pkg/types"
)

func TestMatcher_Match(t *testing.T) {
	m := NewMatcher(DefaultRules())

	tests := []struct {
		name      string
		entry     Entry
		wantMatch bool
		want      types.Platform
	}{
		{
			name:      "zoom process name",
			entry:     Entry{ProcessName: "zoom.exe"},
			wantMatch: true,
			want:      types.PlatformZoom,
		},
		{
			name:      "zoom capture host process",
			entry:     Entry{ProcessName: "CptHost.exe"},
			wantMatch: true,
			want:      types.PlatformZoom,
		},
		{
			name:      "teams new client",
			entry:     Entry{ProcessName: "ms-teams.exe"},
			wantMatch: true,
			want:      types.PlatformTeams,
		},
		{
			name:      "teams classic client case-insensitive",
			entry:     Entry{ProcessName: "Teams.exe"},
			wantMatch: true,
			want:      types.PlatformTeams,
		},
		{
			name:      "linux zoom comm without extension",
			entry:     Entry{ProcessName: "zoom"},
			wantMatch: true,
			want:      types.PlatformZoom,
		},
		{
			name:      "google meet via browser title",
			entry:     Entry{ProcessName: "chrome.exe", WindowTitle: "meet.google.com/abc-defg-hij - Google Chrome"},
			wantMatch: true,
			want:      types.PlatformGoogleMeet,
		},
		{
			name:      "bare browser process never matches",
			entry:     Entry{ProcessName: "chrome.exe"},
			wantMatch: false,
		},
		{
			name:      "browser tab mentioning zoom in title is not zoom",
			entry:     Entry{ProcessName: "firefox", WindowTitle: "Download Zoom - Mozilla Firefox"},
			wantMatch: false,
		},
		{
			name:      "unrelated process",
			entry:     Entry{ProcessName: "systemd"},
			wantMatch: false,
		},
		{
			name:      "empty entry",
			entry:     Entry{},
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.entry)
			if ok != tt.wantMatch {
				t.Fatalf("Match() ok = %v, want %v", ok, tt.wantMatch)
			}
			if ok && got != tt.want {
				t.Errorf("Match() = %q, want %q", got, tt.want)
			}
		})
	}
}

// A process-name match must win over a title match even when the title rule
// is declared first.
func TestMatcher_ProcessTierOutranksTitleTier(t *testing.T) {
	rules := []Rule{
		{Platform: types.PlatformGoogleMeet, TitleSubstrings: []string{"meeting"}},
		{Platform: types.PlatformZoom, ProcessNames: []string{"zoom.exe"}},
	}
	m := NewMatcher(rules)

	got, ok := m.Match(Entry{ProcessName: "zoom.exe", WindowTitle: "meeting in progress"})
	if !ok {
		t.Fatal("expected a match")
	}
	if got != types.PlatformZoom {
		t.Errorf("Match() = %q, want zoom (process tier outranks title tier)", got)
	}
}

// Ties within a tier resolve by declaration order, first registered wins.
func TestMatcher_TieBreakByDeclarationOrder(t *testing.T) {
	rules := []Rule{
		{Platform: types.PlatformTeams, ProcessNames: []string{"shared.exe"}},
		{Platform: types.PlatformZoom, ProcessNames: []string{"shared.exe"}},
	}
	m := NewMatcher(rules)

	got, ok := m.Match(Entry{ProcessName: "shared.exe"})
	if !ok {
		t.Fatal("expected a match")
	}
	if got != types.PlatformTeams {
		t.Errorf("Match() = %q, want teams (first declared wins)", got)
	}
}
