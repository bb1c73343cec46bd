package config

import (
	"reflect"
	"slices"
	"strings"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// requires a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ChoicesChanged is true if the candidate set changed in any way. The
	// grammar is rebuilt and the evaluator reloaded.
	ChoicesChanged bool
	ChoiceChanges  []ChoiceDiff

	// TuningChanged is true if the strategy, expected confidence or timeout
	// changed. These apply from the next utterance on.
	TuningChanged bool

	// RestartRequired is true if a provider, the source, the audio input,
	// the output or the HTTP or log setup changed.
	RestartRequired bool
}

// ChoiceDiff describes what changed for a single choice between two configs.
type ChoiceDiff struct {
	Text           string
	PhrasesChanged bool
	DisplayChanged bool
	Added          bool
	Removed        bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	o, n := old.Recognition, new.Recognition
	if o.Strategy != n.Strategy || o.ExpectedConfidence != n.ExpectedConfidence || o.Timeout != n.Timeout ||
		o.PhoneticThreshold != n.PhoneticThreshold {
		d.TuningChanged = true
	}
	if o.Source != n.Source || o.ReplayFile != n.ReplayFile || o.SampleRate != n.SampleRate || o.Output != n.Output ||
		old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFile != new.Server.LogFile ||
		old.Server.LogFormat != new.Server.LogFormat || old.Audio != new.Audio ||
		old.Providers.Breaker != new.Providers.Breaker ||
		!sameProvider(old.Providers.STT, new.Providers.STT) ||
		!sameProvider(old.Providers.VAD, new.Providers.VAD) ||
		!slices.EqualFunc(old.Providers.STTFallbacks, new.Providers.STTFallbacks, sameProvider) {
		d.RestartRequired = true
	}

	if old.Choices.Locale != new.Choices.Locale || old.Choices.Intention != new.Choices.Intention {
		d.ChoicesChanged = true
	}

	oldItems := make(map[string]*ChoiceConfig, len(old.Choices.Items))
	for i := range old.Choices.Items {
		oldItems[old.Choices.Items[i].Text] = &old.Choices.Items[i]
	}
	newItems := make(map[string]*ChoiceConfig, len(new.Choices.Items))
	for i := range new.Choices.Items {
		newItems[new.Choices.Items[i].Text] = &new.Choices.Items[i]
	}

	// Detect modified and removed choices.
	for text, oldItem := range oldItems {
		newItem, exists := newItems[text]
		if !exists {
			d.ChoiceChanges = append(d.ChoiceChanges, ChoiceDiff{Text: text, Removed: true})
			d.ChoicesChanged = true
			continue
		}
		cd := ChoiceDiff{
			Text:           text,
			PhrasesChanged: !slices.Equal(oldItem.Phrases, newItem.Phrases),
			DisplayChanged: oldItem.Display != newItem.Display,
		}
		if cd.PhrasesChanged || cd.DisplayChanged {
			d.ChoiceChanges = append(d.ChoiceChanges, cd)
			d.ChoicesChanged = true
		}
	}

	// Detect added choices.
	for text := range newItems {
		if _, exists := oldItems[text]; !exists {
			d.ChoiceChanges = append(d.ChoiceChanges, ChoiceDiff{Text: text, Added: true})
			d.ChoicesChanged = true
		}
	}

	// Order matters for choice indices.
	if !d.ChoicesChanged && !slices.EqualFunc(old.Choices.Items, new.Choices.Items, func(a, b ChoiceConfig) bool {
		return a.Text == b.Text
	}) {
		d.ChoicesChanged = true
	}

	slices.SortFunc(d.ChoiceChanges, func(a, b ChoiceDiff) int { return strings.Compare(a.Text, b.Text) })
	return d
}

func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model &&
		reflect.DeepEqual(a.Options, b.Options)
}
