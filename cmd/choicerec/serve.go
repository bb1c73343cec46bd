package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/choicerec/internal/app"
	"github.com/MrWong99/choicerec/internal/config"
	"github.com/MrWong99/choicerec/internal/observe"
	"github.com/MrWong99/choicerec/pkg/provider/stt"
	"github.com/MrWong99/choicerec/pkg/provider/stt/deepgram"
	"github.com/MrWong99/choicerec/pkg/provider/stt/whisper"
	"github.com/MrWong99/choicerec/pkg/provider/vad"
	"github.com/MrWong99/choicerec/pkg/provider/vad/energy"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(cfgPath *string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Recognize the configured choices until the input ends",
		Long: `serve runs the recognition pipeline with the configured source, the HTTP
endpoints on server.listen_addr and the config watcher. Choices, tuning and
the log level are reloaded when the config file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *cfgPath, func(cfg *config.Config) {
				if output != "" {
					cfg.Recognition.Output = output
				}
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write events to this file instead of recognition.output")
	return cmd
}

func newReplayCmd(cfgPath *string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Evaluate recorded recognizer events",
		Long: `replay reads recognizer events from a JSONL file instead of streaming
audio, runs them through the evaluator and writes the resulting events.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfgPath, func(cfg *config.Config) {
				cfg.Recognition.Source = config.SourceReplay
				cfg.Recognition.ReplayFile = args[0]
				if output != "" {
					cfg.Recognition.Output = output
				}
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write events to this file instead of recognition.output")
	return cmd
}

// serve loads the config, applies override and runs the application until
// the source ends or a signal arrives.
func serve(parent context.Context, cfgPath string, override func(*config.Config)) error {
	if parent == nil {
		parent = context.Background()
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	var application *app.App
	w, err := config.NewWatcher(cfgPath, func(old, new *config.Config) {
		if application != nil {
			application.ApplyConfig(old, new)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", cfgPath)
		}
		return err
	}
	cfg := *w.Current()
	override(&cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.Level(cfg.Server.LogLevel))
	logger, closeLog := newLogger(cfg.Server, level)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("choicerec starting",
		"version", version,
		"config", cfgPath,
		"source", cfg.Recognition.Source,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Locale:         cfg.Choices.Locale,
		Source:         string(cfg.Recognition.Source),
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(&cfg, reg, tel.Metrics)
	if err != nil {
		return err
	}

	application, err = app.New(ctx, &cfg, providers,
		app.WithMetrics(tel.Metrics),
		app.WithLevel(level),
		app.WithWatcher(w),
	)
	if err != nil {
		return err
	}

	runErr := application.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		slog.Info("shutdown signal received, stopping")
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(sctx); err != nil {
		slog.Error("shutdown error", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	if runErr == nil {
		slog.Info("goodbye")
	}
	return runErr
}

// extraProviders holds registrations of providers behind build tags.
var extraProviders []func(*config.Registry)

// registerBuiltinProviders wires the built-in STT and VAD factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "endpointing"); ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(ms))
		}
		if ms := optInt(entry.Options, "utterance_end_ms"); ms > 0 {
			opts = append(opts, deepgram.WithUtteranceEnd(ms))
		}
		return deepgram.New(entry.APIKey, opts...)
	})
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		srv, err := whisper.NewServer(entry.BaseURL, whisper.WithModel(entry.Model))
		if err != nil {
			return nil, err
		}
		return whisper.New(srv, whisperOptions(entry)...)
	})
	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if ms := optInt(entry.Options, "min_speech_ms"); ms > 0 {
			opts = append(opts, energy.WithMinSpeech(time.Duration(ms)*time.Millisecond))
		}
		if ms := optInt(entry.Options, "hangover_ms"); ms > 0 {
			opts = append(opts, energy.WithHangover(time.Duration(ms)*time.Millisecond))
		}
		return energy.New(opts...), nil
	})
	for _, register := range extraProviders {
		register(reg)
	}

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// whisperOptions maps the options shared by the whisper providers.
func whisperOptions(entry config.ProviderEntry) []whisper.Option {
	var opts []whisper.Option
	if lang := optString(entry.Options, "language"); lang != "" {
		opts = append(opts, whisper.WithLanguage(lang))
	}
	if ms := optInt(entry.Options, "max_utterance_ms"); ms > 0 {
		opts = append(opts, whisper.WithMaxUtterance(time.Duration(ms)*time.Millisecond))
	}
	if ms := optInt(entry.Options, "hangover_ms"); ms > 0 {
		opts = append(opts, whisper.WithVAD(energy.New(energy.WithHangover(time.Duration(ms)*time.Millisecond))))
	}
	return opts
}

// optString returns opts[key] if it is a string.
func optString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// optInt returns opts[key] if it is an integer. YAML decodes integers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
