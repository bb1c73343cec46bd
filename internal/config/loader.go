package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/choicerec/pkg/choice"
	"github.com/MrWong99/choicerec/pkg/rule"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultPhoneticThreshold = 0.85
	DefaultSampleRate        = 16000
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper", "whisper-native"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogText
	}
	if cfg.Recognition.Source == "" {
		cfg.Recognition.Source = SourceSTT
	}
	if cfg.Recognition.PhoneticThreshold == 0 {
		cfg.Recognition.PhoneticThreshold = DefaultPhoneticThreshold
	}
	if cfg.Recognition.SampleRate == 0 {
		cfg.Recognition.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Input == "" {
		cfg.Audio.Input = "-"
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
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
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Recognition
	rec := cfg.Recognition
	if rec.Source != "" && !rec.Source.IsValid() {
		errs = append(errs, fmt.Errorf("recognition.source %q is invalid; valid values: stt, replay", rec.Source))
	}
	if rec.Source == SourceReplay && rec.ReplayFile == "" {
		errs = append(errs, errors.New("recognition.replay_file is required when source is replay"))
	}
	if (rec.Source == SourceSTT || rec.Source == "") && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required when source is stt"))
	}
	if rec.Strategy != "" && !rec.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("recognition.strategy %q is invalid; valid values: words, vowels", rec.Strategy))
	}
	if rec.ExpectedConfidence != "" {
		if _, err := rule.ParseConfidence(rec.ExpectedConfidence); err != nil {
			errs = append(errs, fmt.Errorf("recognition.expected_confidence %q is invalid; valid values: low, normal, high", rec.ExpectedConfidence))
		}
	}
	if rec.Timeout < 0 {
		errs = append(errs, fmt.Errorf("recognition.timeout %s must not be negative", rec.Timeout))
	}
	if rec.PhoneticThreshold < 0 || rec.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("recognition.phonetic_threshold %.2f is out of range [0, 1]", rec.PhoneticThreshold))
	}
	if rec.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("recognition.sample_rate %d must not be negative", rec.SampleRate))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)
	if cfg.Providers.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.max_failures %d must not be negative", cfg.Providers.Breaker.MaxFailures))
	}
	if cfg.Providers.Breaker.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("providers.breaker.cooldown %s must not be negative", cfg.Providers.Breaker.Cooldown))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 {
		errs = append(errs, fmt.Errorf("audio.channels %d must not be negative", cfg.Audio.Channels))
	}

	// Choices
	if cfg.Choices.Locale != "" {
		if _, err := language.Parse(cfg.Choices.Locale); err != nil {
			errs = append(errs, fmt.Errorf("choices.locale %q is invalid: %w", cfg.Choices.Locale, err))
		}
	}
	if _, err := choice.ParseIntention(cfg.Choices.Intention); err != nil {
		errs = append(errs, fmt.Errorf("choices.intention %q is invalid; valid values: chat, confirm, decide", cfg.Choices.Intention))
	}
	if len(cfg.Choices.Items) == 0 {
		errs = append(errs, errors.New("choices.items must contain at least one choice"))
	}
	for i, it := range cfg.Choices.Items {
		if it.Text == "" {
			errs = append(errs, fmt.Errorf("choices.items[%d].text is required", i))
		}
	}
	if len(errs) == 0 {
		if _, err := cfg.Choices.Build(); err != nil {
			errs = append(errs, fmt.Errorf("choices: %w", err))
		}
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
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
