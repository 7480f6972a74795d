package config

const (
	DefaultFrameRate      = 44100
	DefaultChannels       = 2
	DefaultSampleWidth    = 2
	DefaultMasterPeakDBFS = -1.0
	DefaultTTSFallbackMs  = 500

	DefaultFlubberKeyword  = "flubber"
	DefaultFlubberLookback = 100
	DefaultRestartPauseS   = 0.75

	DefaultInternKeyword       = "intern"
	DefaultMaxInstructionWords = 40
	DefaultFallbackSilenceMs   = 1000
	DefaultMaxResponseTokens   = 200

	DefaultMaxPauseS       = 1.5
	DefaultTargetPauseS    = 0.6
	DefaultRatio           = 0.5
	DefaultRemovalGuardPct = 10.0
	DefaultSimilarityGuard = 0.9
	DefaultSilenceRMS      = 300.0

	DefaultRedisAddr   = "localhost:6379"
	DefaultConcurrency = 2
	DefaultHealthAddr  = ":8081"
	DefaultOutputRoot  = "out"
	DefaultServiceName = "castmix"
)

// DefaultExtensions are tried by the media resolver for names without one.
var DefaultExtensions = []string{".wav", ".mp3"}

// ApplyDefaults fills every zero field that has a documented default.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}

	a := &cfg.Audio
	if a.FrameRate == 0 {
		a.FrameRate = DefaultFrameRate
	}
	if a.Channels == 0 {
		a.Channels = DefaultChannels
	}
	if a.SampleWidth == 0 {
		a.SampleWidth = DefaultSampleWidth
	}
	if a.TTSFallbackMs == 0 {
		a.TTSFallbackMs = DefaultTTSFallbackMs
	}

	if len(cfg.Media.Extensions) == 0 {
		cfg.Media.Extensions = append([]string(nil), DefaultExtensions...)
	}

	f := &cfg.Cleanup.Flubber
	if f.Keyword == "" {
		f.Keyword = DefaultFlubberKeyword
	}
	if f.RestartPauseS == 0 {
		f.RestartPauseS = DefaultRestartPauseS
	}

	in := &cfg.Cleanup.Intern
	if in.Keyword == "" {
		in.Keyword = DefaultInternKeyword
	}
	if in.MaxInstructionWords == 0 {
		in.MaxInstructionWords = DefaultMaxInstructionWords
	}
	if in.FallbackSilenceMs == 0 {
		in.FallbackSilenceMs = DefaultFallbackSilenceMs
	}
	if in.MaxResponseTokens == 0 {
		in.MaxResponseTokens = DefaultMaxResponseTokens
	}

	s := &cfg.Cleanup.Silence
	if s.MaxPauseS == 0 {
		s.MaxPauseS = DefaultMaxPauseS
	}
	if s.TargetPauseS == 0 {
		s.TargetPauseS = DefaultTargetPauseS
	}
	if s.Ratio == 0 {
		s.Ratio = DefaultRatio
	}
	if s.RemovalGuardPct == 0 {
		s.RemovalGuardPct = DefaultRemovalGuardPct
	}
	if s.SimilarityGuard == 0 {
		s.SimilarityGuard = DefaultSimilarityGuard
	}
	if s.SilenceRMS == 0 {
		s.SilenceRMS = DefaultSilenceRMS
	}

	q := &cfg.Queue
	if q.RedisAddr == "" {
		q.RedisAddr = DefaultRedisAddr
	}
	if q.Concurrency == 0 {
		q.Concurrency = DefaultConcurrency
	}
	if q.HealthAddr == "" {
		q.HealthAddr = DefaultHealthAddr
	}
	if q.OutputRoot == "" {
		q.OutputRoot = DefaultOutputRoot
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
