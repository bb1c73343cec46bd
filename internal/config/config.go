// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the choicerec service.
package config

import (
	"time"

	"golang.org/x/text/language"

	"github.com/MrWong99/choicerec/pkg/choice"
)

// LogLevel controls log verbosity for the choicerec server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Source selects where recognition events come from.
type Source string

const (
	// SourceSTT streams audio into a free-form STT provider and aligns its
	// transcripts with the grammar.
	SourceSTT Source = "stt"

	// SourceReplay reads recorded events from a JSONL file.
	SourceReplay Source = "replay"
)

// IsValid reports whether s is a recognised event source.
func (s Source) IsValid() bool {
	return s == SourceSTT || s == SourceReplay
}

// Strategy forces the threshold strategy. Empty selects by locale.
type Strategy string

const (
	StrategyWords  Strategy = "words"
	StrategyVowels Strategy = "vowels"
)

// IsValid reports whether s is a recognised strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyWords || s == StrategyVowels
}

// Config is the root configuration structure for choicerec.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Choices     ChoicesConfig     `yaml:"choices"`
	Audio       AudioConfig       `yaml:"audio"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the health, metrics and diagnostic
	// endpoints (e.g., ":8080"). Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat is "text" (default) or "json".
	LogFormat LogFormat `yaml:"log_format"`

	// LogFile additionally writes logs to a size-rotated file.
	LogFile string `yaml:"log_file"`
}

// ProvidersConfig declares the external recognition engine. The entry name
// selects a provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when the primary engine cannot start
	// a stream.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// Breaker tunes the circuit breaker in front of every engine.
	Breaker BreakerConfig `yaml:"breaker"`

	// VAD selects a local voice activity detector that marks utterance
	// onsets before the engine returns its first transcript. Empty disables
	// it.
	VAD ProviderEntry `yaml:"vad"`
}

// BreakerConfig tunes engine circuit breakers. Zero values select defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that take an engine
	// out of rotation.
	MaxFailures int `yaml:"max_failures"`

	// Cooldown is how long a failed engine is skipped before it is probed.
	Cooldown time.Duration `yaml:"cooldown"`
}

// ProviderEntry is the configuration block of a provider.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values.
	Options map[string]any `yaml:"options"`
}

// RecognitionConfig tunes the recognition pipeline.
type RecognitionConfig struct {
	// Source selects the event source. Defaults to "stt".
	Source Source `yaml:"source"`

	// ReplayFile is the JSONL event file read when Source is "replay".
	ReplayFile string `yaml:"replay_file"`

	// Strategy forces the threshold strategy. Empty selects it from the
	// locale of the choice set.
	Strategy Strategy `yaml:"strategy"`

	// ExpectedConfidence overrides the tier derived from the intention of
	// the choice set: "low", "normal" or "high".
	ExpectedConfidence string `yaml:"expected_confidence"`

	// Timeout rejects an utterance that has not ended after this long.
	// Zero disables the watchdog.
	Timeout time.Duration `yaml:"timeout"`

	// PhoneticThreshold is the minimum Jaro-Winkler similarity for snapping
	// an unknown transcript word onto a grammar word. Defaults to 0.85.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// SampleRate is the PCM sample rate of the audio sent to the STT
	// provider. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Output is the JSONL file recognition events are written to. "-" or
	// empty writes to stdout.
	Output string `yaml:"output"`
}

// AudioConfig describes the audio input streamed to the STT provider.
type AudioConfig struct {
	// Input is a ".wav" file, a raw PCM file or "-" for raw PCM on stdin.
	// Defaults to "-".
	Input string `yaml:"input"`

	// SampleRate and Channels describe raw PCM input. WAV input carries its
	// own format. Default: 16000 Hz mono.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Realtime paces file input at capture speed.
	Realtime bool `yaml:"realtime"`
}

// ChoicesConfig is the candidate set.
type ChoicesConfig struct {
	// Locale is the BCP-47 tag of the spoken language (e.g., "en-US").
	Locale string `yaml:"locale"`

	// Intention is one of "chat", "confirm" or "decide".
	Intention string `yaml:"intention"`

	// Items holds the choices in order.
	Items []ChoiceConfig `yaml:"items"`
}

// ChoiceConfig is one candidate answer.
type ChoiceConfig struct {
	Text    string   `yaml:"text"`
	Display string   `yaml:"display"`
	Phrases []string `yaml:"phrases"`
}

// Build converts the configured candidate set into [choice.Choices].
func (c ChoicesConfig) Build() (*choice.Choices, error) {
	locale := language.Und
	if c.Locale != "" {
		tag, err := language.Parse(c.Locale)
		if err != nil {
			return nil, err
		}
		locale = tag
	}
	intention, err := choice.ParseIntention(c.Intention)
	if err != nil {
		return nil, err
	}
	items := make([]choice.Choice, len(c.Items))
	for i, it := range c.Items {
		items[i] = choice.Choice{Text: it.Text, Display: it.Display, Phrases: it.Phrases}
	}
	return choice.New(locale, intention, items...)
}
