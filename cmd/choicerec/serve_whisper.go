//go:build whisper

package main

import (
	"errors"

	"github.com/MrWong99/choicerec/internal/config"
	"github.com/MrWong99/choicerec/pkg/provider/stt"
	"github.com/MrWong99/choicerec/pkg/provider/stt/whisper"
)

func init() {
	extraProviders = append(extraProviders, func(reg *config.Registry) {
		// The model stays loaded until the process exits.
		reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
			if entry.Model == "" {
				return nil, errors.New("whisper-native: model must name a ggml model file")
			}
			n, err := whisper.NewNative(entry.Model)
			if err != nil {
				return nil, err
			}
			return whisper.New(n, whisperOptions(entry)...)
		})
	})
}
