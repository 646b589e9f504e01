package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (providers, pipeline geometry, listen address) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	OutputDirectoryChanged bool
	NewOutputDirectory     string

	EnabledPlatformsChanged bool
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.OutputDirectoryChanged && !d.EnabledPlatformsChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart. Changes take
// effect for future sessions; sessions already running keep the values they
// started with.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if old.OutputDirectory != new.OutputDirectory {
		d.OutputDirectoryChanged = true
		d.NewOutputDirectory = new.OutputDirectory
	}

	if !slices.Equal(old.EnabledPlatforms, new.EnabledPlatforms) {
		d.EnabledPlatformsChanged = true
	}

	return d
}
