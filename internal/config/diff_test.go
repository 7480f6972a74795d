package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/castmix/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mutate       func(*config.Config)
		wantSections []string
		wantRestart  bool
		wantLogLevel bool
	}{
		{
			name:   "identical",
			mutate: func(*config.Config) {},
		},
		{
			name:         "log level",
			mutate:       func(c *config.Config) { c.LogLevel = config.LogDebug },
			wantLogLevel: true,
		},
		{
			name: "cleanup sections",
			mutate: func(c *config.Config) {
				c.Cleanup.Fillers = append(c.Cleanup.Fillers, "like")
				c.Cleanup.Silence.Enabled = true
			},
			wantSections: []string{"fillers", "silence"},
		},
		{
			name:        "providers need restart",
			mutate:      func(c *config.Config) { c.Providers.TTS.Name = "coqui" },
			wantRestart: true,
		},
		{
			name: "telemetry needs restart",
			mutate: func(c *config.Config) {
				r := 0.25
				c.Telemetry.TraceSampleRatio = &r
			},
			wantRestart: true,
		},
		{
			name:        "queue needs restart",
			mutate:      func(c *config.Config) { c.Queue.Concurrency = 8 },
			wantRestart: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			old.Cleanup.Fillers = []string{"um"}
			updated := config.Default()
			updated.Cleanup.Fillers = []string{"um"}
			tt.mutate(updated)

			d := config.Diff(old, updated)
			if !slices.Equal(d.CleanupSections, tt.wantSections) {
				t.Errorf("CleanupSections = %v, want %v", d.CleanupSections, tt.wantSections)
			}
			if d.CleanupChanged != (len(tt.wantSections) > 0) {
				t.Errorf("CleanupChanged = %v", d.CleanupChanged)
			}
			if d.RestartRequired() != tt.wantRestart {
				t.Errorf("RestartRequired() = %v, want %v", d.RestartRequired(), tt.wantRestart)
			}
			if d.LogLevelChanged != tt.wantLogLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.wantLogLevel)
			}
		})
	}
}
