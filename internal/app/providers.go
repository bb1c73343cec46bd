package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/choicerec/internal/config"
	"github.com/MrWong99/choicerec/internal/observe"
	"github.com/MrWong99/choicerec/internal/resilience"
)

// BuildProviders instantiates the providers named in cfg using the registry.
//
// The primary STT engine and every fallback are placed behind circuit
// breakers in a [resilience.Failover], so a failing engine is skipped until
// its cooldown has passed. A fallback whose name is not registered is
// skipped with a warning; an unregistered primary is an error. The VAD
// engine is optional. The replay source needs no provider and gets an empty
// set.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}
	if cfg.Recognition.Source == config.SourceReplay {
		return ps, nil
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}

	fo := resilience.NewFailover(
		resilience.BreakerConfig{
			MaxFailures: cfg.Providers.Breaker.MaxFailures,
			Cooldown:    cfg.Providers.Breaker.Cooldown,
		},
		resilience.WithErrorHook(func(name string, _ error) {
			m.RecordProviderError(context.Background(), name, "stt")
		}),
	)

	primary := cfg.Providers.STT
	if primary.Name == "" {
		return nil, errors.New("app: providers.stt.name is required for the stt source")
	}
	p, err := reg.CreateSTT(primary)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider %q: %w", primary.Name, err)
	}
	fo.Add(primary.Name, p)
	slog.Info("provider created", "kind", "stt", "name", primary.Name)

	for i, entry := range cfg.Providers.STTFallbacks {
		p, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("fallback provider not registered, skipping", "kind", "stt", "name", entry.Name, "index", i)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("app: create stt fallback %q: %w", entry.Name, err)
		}
		fo.Add(fmt.Sprintf("%s#%d", entry.Name, i+1), p)
		slog.Info("provider created", "kind", "stt", "name", entry.Name, "fallback", i+1)
	}

	ps.STT = fo

	if entry := cfg.Providers.VAD; entry.Name != "" {
		v, err := reg.CreateVAD(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create vad engine %q: %w", entry.Name, err)
		}
		ps.VAD = v
		slog.Info("provider created", "kind", "vad", "name", entry.Name)
	}
	return ps, nil
}
