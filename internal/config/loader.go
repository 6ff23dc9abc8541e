package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper", "whisper-native"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"tts": {"elevenlabs", "coqui"},
	"vad": {"energy", "silero"},
}

// Load reads the YAML configuration file at path, applies environment
// variable overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays deployment-level environment variables onto cfg. Env vars
// win over file values so containerised deployments can reuse one config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		} else {
			slog.Warn("config: REDIS_PORT is not a number, ignoring", "value", v)
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		} else {
			slog.Warn("config: REDIS_DB is not a number, ignoring", "value", v)
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.IdleTimeout = d
		} else {
			slog.Warn("config: IDLE_TIMEOUT is not a duration, ignoring", "value", v)
		}
	}
	if v := os.Getenv("MAX_SESSION_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.MaxDuration = d
		} else {
			slog.Warn("config: MAX_SESSION_DURATION is not a duration, ignoring", "value", v)
		}
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Archive.PostgresDSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Redis
	if cfg.Redis.Port < 0 || cfg.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port %d is out of range [0, 65535]", cfg.Redis.Port))
	}

	// Session limits
	if cfg.Session.IdleTimeout < 0 {
		errs = append(errs, errors.New("session.idle_timeout must not be negative"))
	}
	if cfg.Session.MaxDuration < 0 {
		errs = append(errs, errors.New("session.max_duration must not be negative"))
	}
	if cfg.Session.IdleTimeout > 0 && cfg.Session.MaxDuration > 0 &&
		cfg.Session.IdleTimeout >= cfg.Session.MaxDuration {
		errs = append(errs, fmt.Errorf("session.idle_timeout (%s) must be shorter than session.max_duration (%s)",
			cfg.Session.IdleTimeout, cfg.Session.MaxDuration))
	}

	// Turn timings
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"turn.candidate_end", cfg.Turn.CandidateEnd},
		{"turn.final_end", cfg.Turn.FinalEnd},
		{"turn.min_speech", cfg.Turn.MinSpeech},
		{"turn.nudge", cfg.Turn.Nudge},
		{"turn.incomplete_wait", cfg.Turn.IncompleteWait},
		{"turn.comfort_wait", cfg.Turn.ComfortWait},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}
	if cfg.Turn.MaxNudges < 0 {
		errs = append(errs, errors.New("turn.max_nudges must not be negative"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// The cascaded pipeline cannot run without these three stages.
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; the voice pipeline cannot transcribe callers")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; the receptionist cannot generate replies")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; replies will not be spoken")
	}

	// Persona voice
	if sf := cfg.Persona.Voice.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
		errs = append(errs, fmt.Errorf("persona.voice.speed_factor %.2f is out of range [0.5, 2.0]", sf))
	}
	if ps := cfg.Persona.Voice.PitchShift; ps < -10 || ps > 10 {
		errs = append(errs, fmt.Errorf("persona.voice.pitch_shift %.2f is out of range [-10, 10]", ps))
	}

	// Archive availability
	if cfg.Archive.PostgresDSN == "" {
		slog.Warn("archive.postgres_dsn is empty; transcripts will not be archived after calls end")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
