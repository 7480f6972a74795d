package config

import "reflect"

// ConfigDiff describes what changed between two configs. Cleanup, audio and
// log level changes apply to the next episode; provider, queue and telemetry
// changes need a process restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CleanupChanged bool

	// CleanupSections names the cleanup sections that changed, in schema
	// order (fillers, flubber, intern, sfx, silence, fuzzy_keywords).
	CleanupSections []string

	AudioChanged     bool
	MediaChanged     bool
	ProvidersChanged bool
	QueueChanged     bool
	TelemetryChanged bool
}

// RestartRequired reports whether any change cannot be applied live.
func (d ConfigDiff) RestartRequired() bool {
	return d.ProvidersChanged || d.QueueChanged || d.TelemetryChanged
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		AudioChanged:     !reflect.DeepEqual(old.Audio, new.Audio),
		MediaChanged:     !reflect.DeepEqual(old.Media, new.Media),
		ProvidersChanged: !reflect.DeepEqual(old.Providers, new.Providers),
		QueueChanged:     old.Queue != new.Queue,
		TelemetryChanged: !reflect.DeepEqual(old.Telemetry, new.Telemetry),
	}
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	oc, nc := old.Cleanup, new.Cleanup
	sections := []struct {
		name    string
		changed bool
	}{
		{"fillers", !reflect.DeepEqual(oc.Fillers, nc.Fillers)},
		{"flubber", !reflect.DeepEqual(oc.Flubber, nc.Flubber)},
		{"intern", !reflect.DeepEqual(oc.Intern, nc.Intern)},
		{"sfx", !reflect.DeepEqual(oc.SFX, nc.SFX)},
		{"silence", !reflect.DeepEqual(oc.Silence, nc.Silence)},
		{"fuzzy_keywords", oc.FuzzyKeywords != nc.FuzzyKeywords},
	}
	for _, s := range sections {
		if s.changed {
			d.CleanupSections = append(d.CleanupSections, s.name)
		}
	}
	d.CleanupChanged = len(d.CleanupSections) > 0
	return d
}
