package config

import (
	"testing"

	"github.com/quillscribe/quill/pkg/types"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		old  Config
		new  Config
		want ConfigDiff
	}{
		{
			name: "no changes",
			old:  Config{LogLevel: LogInfo},
			new:  Config{LogLevel: LogInfo},
			want: ConfigDiff{},
		},
		{
			name: "log level changed",
			old:  Config{LogLevel: LogInfo},
			new:  Config{LogLevel: LogDebug},
			want: ConfigDiff{LogLevelChanged: true, NewLogLevel: LogDebug},
		},
		{
			name: "output directory changed",
			old:  Config{OutputDirectory: "/a"},
			new:  Config{OutputDirectory: "/b"},
			want: ConfigDiff{OutputDirectoryChanged: true, NewOutputDirectory: "/b"},
		},
		{
			name: "platforms changed",
			old:  Config{EnabledPlatforms: []types.Platform{types.PlatformZoom}},
			new:  Config{EnabledPlatforms: []types.Platform{types.PlatformZoom, types.PlatformTeams}},
			want: ConfigDiff{EnabledPlatformsChanged: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(&tt.old, &tt.new)
			if got != tt.want {
				t.Errorf("Diff() = %+v, want %+v", got, tt.want)
			}
			if tt.want == (ConfigDiff{}) && !got.Empty() {
				t.Error("Empty() = false, want true")
			}
		})
	}
}
