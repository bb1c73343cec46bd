// Package app wires all choicerec subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the grammar, the
// evaluator and the event source from the config, Run executes the
// recognition pipeline alongside the config watcher and the HTTP server,
// and Shutdown releases files and provider sessions in order.
//
// For testing, inject doubles via functional options (WithReplay, WithAudio,
// WithOutput, etc.). When an option is not provided, New opens the real
// inputs and outputs named in the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/choicerec/internal/config"
	"github.com/MrWong99/choicerec/internal/observe"
	"github.com/MrWong99/choicerec/internal/server"
	"github.com/MrWong99/choicerec/internal/transcript"
	"github.com/MrWong99/choicerec/internal/transcript/phonetic"
	"github.com/MrWong99/choicerec/pkg/audio"
	"github.com/MrWong99/choicerec/pkg/grammar"
	"github.com/MrWong99/choicerec/pkg/hypothesis"
	"github.com/MrWong99/choicerec/pkg/provider/stt"
	"github.com/MrWong99/choicerec/pkg/provider/vad"
	"github.com/MrWong99/choicerec/pkg/recognition"
	"github.com/MrWong99/choicerec/pkg/rule"
	"github.com/MrWong99/choicerec/pkg/splitter"
	"github.com/MrWong99/choicerec/pkg/types"
)

// eventBuffer is the capacity of the channel between the event source and
// the evaluator.
const eventBuffer = 32

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by [BuildProviders].
type Providers struct {
	STT stt.Provider

	// VAD marks utterance onsets from the audio ahead of the first
	// transcript.
	VAD vad.Engine
}

// checker is implemented by providers that can report their readiness.
type checker interface {
	Check(ctx context.Context) error
}

// App owns all subsystem lifetimes and orchestrates the recognition
// pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar
	watcher   *config.Watcher

	// Inputs and outputs. Opened in New unless injected.
	audio  *audio.Reader
	replay io.Reader
	out    io.Writer
	enc    *recognition.Encoder

	aligner *transcript.Aligner

	// mu guards the fields swapped by ApplyConfig and the active session.
	mu       sync.RWMutex
	grammar  *grammar.Sliced
	artifact *grammar.Artifact
	eval     *hypothesis.Evaluator
	timeout  time.Duration
	session  stt.SessionHandle

	// stale is the number of aligner events emitted before the last grammar
	// switch. The evaluate loop drops those it has not consumed yet.
	stale uint64

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevel lets ApplyConfig change the log level of the handler built
// around lv.
func WithLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithWatcher runs w alongside the pipeline. The watcher's callback is
// expected to call [App.ApplyConfig].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithAudio injects the audio input instead of opening audio.input.
func WithAudio(r *audio.Reader) Option {
	return func(a *App) { a.audio = r }
}

// WithReplay injects the replayed event stream instead of opening
// recognition.replay_file.
func WithReplay(r io.Reader) Option {
	return func(a *App) { a.replay = r }
}

// WithOutput writes recognition events to w instead of recognition.output.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders]. Use Option functions to inject test doubles.
//
// New compiles the grammar and opens the configured input and output
// synchronously; a failure leaves nothing open.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		timeout:   cfg.Recognition.Timeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(Level(cfg.Server.LogLevel))
	}

	// ── 1. Grammar ───────────────────────────────────────────────────────
	g, art, err := compile(cfg.Choices)
	if err != nil {
		return nil, fmt.Errorf("app: build grammar: %w", err)
	}
	a.grammar, a.artifact = g, art

	// ── 2. Evaluator + aligner ───────────────────────────────────────────
	if a.eval, err = a.newEvaluator(cfg.Recognition, g); err != nil {
		return nil, fmt.Errorf("app: build evaluator: %w", err)
	}
	a.aligner = transcript.NewAligner(g, transcript.WithMatcher(matcherFor(cfg.Recognition)))

	// ── 3. Event source ──────────────────────────────────────────────────
	if err := a.initSource(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init source: %w", err)
	}

	// ── 4. Output ────────────────────────────────────────────────────────
	if err := a.initOutput(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init output: %w", err)
	}
	a.enc = recognition.NewEncoder(a.out)

	slog.Info("app: grammar compiled",
		"locale", art.Locale,
		"choices", g.Choices().Len(),
		"phrases", g.Len(),
		"slices", len(g.Slices()),
		"keywords", len(art.Keywords),
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// compile builds the sliced grammar and its recognizer artifact.
func compile(cc config.ChoicesConfig) (*grammar.Sliced, *grammar.Artifact, error) {
	c, err := cc.Build()
	if err != nil {
		return nil, nil, err
	}
	g, err := grammar.New(c)
	if err != nil {
		return nil, nil, err
	}
	art, err := g.Compile()
	if err != nil {
		return nil, nil, err
	}
	return g, art, nil
}

// newEvaluator creates an evaluator honouring the tuning overrides of rc.
func (a *App) newEvaluator(rc config.RecognitionConfig, g *grammar.Sliced) (*hypothesis.Evaluator, error) {
	opts := []hypothesis.Option{
		hypothesis.WithLogger(slog.Default()),
		hypothesis.WithObserver(a.metrics),
	}
	if rc.Strategy != "" {
		kind, err := splitter.ParseKind(string(rc.Strategy))
		if err != nil {
			return nil, err
		}
		opts = append(opts, hypothesis.WithSplitter(kind))
	}
	if rc.ExpectedConfidence != "" {
		c, err := rule.ParseConfidence(rc.ExpectedConfidence)
		if err != nil {
			return nil, err
		}
		opts = append(opts, hypothesis.WithExpected(c))
	}
	return hypothesis.New(g, opts...), nil
}

func matcherFor(rc config.RecognitionConfig) *phonetic.Matcher {
	var opts []phonetic.Option
	if rc.PhoneticThreshold > 0 {
		opts = append(opts, phonetic.WithFuzzyThreshold(rc.PhoneticThreshold))
	}
	return phonetic.New(opts...)
}

// initSource opens the replay file or the audio input, whichever the
// configured source reads.
func (a *App) initSource(ctx context.Context) error {
	switch a.cfg.Recognition.Source {
	case config.SourceReplay:
		if a.replay != nil {
			return nil
		}
		f, err := os.Open(a.cfg.Recognition.ReplayFile)
		if err != nil {
			return err
		}
		a.replay = f
		a.closers = append(a.closers, f.Close)
		slog.Info("app: replaying events", "file", a.cfg.Recognition.ReplayFile)
		return nil

	default:
		if a.providers.STT == nil {
			return errors.New("stt source requires an STT provider")
		}
		if a.audio != nil {
			return nil
		}
		in := audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: a.cfg.Audio.Channels}
		r, c, err := audio.Open(a.cfg.Audio.Input, in, a.cfg.Recognition.SampleRate, audio.DefaultFrame)
		if err != nil {
			return err
		}
		a.audio = r
		a.closers = append(a.closers, c.Close)
		slog.InfoContext(ctx, "app: audio input opened",
			"input", a.cfg.Audio.Input,
			"format", r.Source(),
			"rate", a.cfg.Recognition.SampleRate,
		)
		return nil
	}
}

// initOutput opens recognition.output for appending. "-" and the empty
// string select stdout.
func (a *App) initOutput() error {
	if a.out != nil {
		return nil
	}
	path := a.cfg.Recognition.Output
	if path == "" || path == "-" {
		a.out = os.Stdout
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	a.out = f
	a.closers = append(a.closers, f.Close)
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// State returns a snapshot of the evaluator. It implements [server.Source].
func (a *App) State() hypothesis.State {
	return a.evaluator().State()
}

// Artifact returns the compiled active grammar. It implements
// [server.Source].
func (a *App) Artifact() *grammar.Artifact {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.artifact
}

// Grammar returns the active grammar.
func (a *App) Grammar() *grammar.Sliced {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.grammar
}

func (a *App) staleEvents() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stale
}

func (a *App) evaluator() *hypothesis.Evaluator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.eval
}

func (a *App) utteranceTimeout() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.timeout
}

func (a *App) setSession(s stt.SessionHandle) {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}

// Checkers returns the readiness checks of the application: a compiled
// grammar, plus the STT provider when it can report its health.
func (a *App) Checkers() []server.Checker {
	cs := []server.Checker{{
		Name: "grammar",
		Check: func(context.Context) error {
			if a.Artifact() == nil {
				return errors.New("no grammar compiled")
			}
			return nil
		},
	}}
	if c, ok := a.providers.STT.(checker); ok {
		cs = append(cs, server.Checker{Name: "stt", Check: c.Check})
	}
	return cs
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the recognition pipeline and blocks until the event source
// is exhausted or ctx is cancelled. The config watcher and the HTTP server
// run for as long as the pipeline does.
//
// Run returns nil when the source ended, ctx.Err() when ctx was cancelled
// and the first failure of any subsystem otherwise.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if a.watcher != nil {
		g.Go(func() error {
			return ignoreCanceled(a.watcher.Run(gctx))
		})
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := server.New(a,
			server.WithCheckers(a.Checkers()...),
			server.WithMetrics(a.metrics),
		)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, addr)
		})
	}

	g.Go(func() error {
		defer cancel()
		return ignoreCanceled(a.pipeline(gctx))
	})

	slog.Info("app running",
		"source", a.cfg.Recognition.Source,
		"listen_addr", a.cfg.Server.ListenAddr,
	)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pipeline connects the event source to the evaluator.
func (a *App) pipeline(ctx context.Context) error {
	events := make(chan recognition.Event, eventBuffer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		if a.cfg.Recognition.Source == config.SourceReplay {
			return a.replayEvents(gctx, events)
		}
		return a.transcribe(gctx, events)
	})
	g.Go(func() error {
		return a.evaluate(gctx, events)
	})
	return g.Wait()
}

// replayEvents decodes recorded events and sends them downstream.
func (a *App) replayEvents(ctx context.Context, events chan<- recognition.Event) error {
	dec := recognition.NewDecoder(a.replay)
	for {
		ev, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("app: read replay: %w", err)
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// transcribe streams the audio input into an STT session and aligns its
// transcripts with the grammar.
func (a *App) transcribe(ctx context.Context, events chan<- recognition.Event) error {
	art := a.Artifact()
	sess, err := a.providers.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: a.cfg.Recognition.SampleRate,
		Channels:   1,
		Language:   art.Locale.String(),
		Keywords:   art.Keywords,
		Grammar:    art.SRGS,
	})
	if err != nil {
		return fmt.Errorf("app: start stt stream: %w", err)
	}
	a.setSession(sess)
	defer a.setSession(nil)

	mctx := context.WithoutCancel(ctx)
	a.metrics.ActiveStreams.Add(mctx, 1)
	defer a.metrics.ActiveStreams.Add(mctx, -1)

	onsets := make(chan struct{}, 1)
	onset, release, err := a.onsetDetector(onsets)
	if err != nil {
		_ = sess.Close()
		return err
	}
	defer release()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := audio.Stream(gctx, a.audio, a.cfg.Audio.Realtime, func(f types.AudioFrame) error {
			if err := sess.SendAudio(f.Data); err != nil {
				return err
			}
			onset(gctx, f)
			return nil
		})
		// Closing flushes the engine; the last transcripts still arrive.
		if cerr := sess.Close(); cerr != nil {
			slog.Warn("app: close stt session", "err", cerr)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			a.metrics.RecordProviderError(mctx, a.cfg.Providers.STT.Name, "stt")
			return fmt.Errorf("app: stream audio: %w", err)
		}
		return err
	})
	g.Go(func() error {
		partials := a.tap(gctx, sess.Partials(), false)
		finals := a.tap(gctx, sess.Finals(), true)
		return a.aligner.RunWithOnsets(gctx, onsets, partials, finals, events)
	})
	return g.Wait()
}

// onsetDetector returns a per-frame hook that signals onsets as soon as the
// VAD hears speech, and a func that releases the VAD session. Without a VAD
// engine the hook does nothing and the first transcript starts the
// utterance.
func (a *App) onsetDetector(onsets chan<- struct{}) (func(context.Context, types.AudioFrame), func(), error) {
	if a.providers.VAD == nil {
		return func(context.Context, types.AudioFrame) {}, func() {}, nil
	}
	opts := a.cfg.Providers.VAD.Options
	vs, err := a.providers.VAD.NewSession(vad.Config{
		SampleRate:       a.cfg.Recognition.SampleRate,
		FrameSizeMs:      int(audio.DefaultFrame / time.Millisecond),
		SpeechThreshold:  optFloat(opts, "speech_threshold"),
		SilenceThreshold: optFloat(opts, "silence_threshold"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("app: start vad session: %w", err)
	}

	hook := func(ctx context.Context, f types.AudioFrame) {
		ev, err := vs.ProcessFrame(f.Data)
		if err != nil {
			slog.DebugContext(ctx, "app: vad skipped frame", "at", f.Timestamp, "err", err)
			return
		}
		if ev.Type != vad.SpeechStart {
			return
		}
		slog.DebugContext(ctx, "app: speech onset", "at", f.Timestamp, "probability", ev.Probability)
		select {
		case onsets <- struct{}{}:
		default:
		}
	}
	release := func() {
		if err := vs.Close(); err != nil {
			slog.Warn("app: close vad session", "err", err)
		}
	}
	return hook, release, nil
}

// optFloat reads a numeric provider option. Missing or non-numeric values
// yield 0.
func optFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// tap counts transcripts on their way to the aligner.
func (a *App) tap(ctx context.Context, in <-chan types.Transcript, final bool) <-chan types.Transcript {
	out := make(chan types.Transcript, cap(in))
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-in:
				if !ok {
					return
				}
				a.metrics.RecordTranscript(ctx, final)
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// utterance tracks the span of the utterance in progress.
type utterance struct {
	ctx  context.Context
	span trace.Span
}

func (u *utterance) end(outcome recognition.Kind, attrs ...attribute.KeyValue) {
	if u.span == nil {
		return
	}
	u.span.SetAttributes(append(attrs, attribute.String("outcome", outcome.String()))...)
	u.span.End()
	u.ctx, u.span = nil, nil
}

// evaluate feeds events into the evaluator and writes its output. An
// utterance still open when the source ends, or when the watchdog fires, is
// rejected so the retained hypothesis can decide it.
func (a *App) evaluate(ctx context.Context, events <-chan recognition.Event) error {
	watchdog := time.NewTimer(time.Hour)
	watchdog.Stop()
	defer watchdog.Stop()

	var u utterance
	defer u.end(recognition.KindRejected, attribute.Bool("abandoned", true))

	// received counts the events read from the channel. Only the aligner
	// writes to it in transcription mode, so the count lines up with
	// Aligner.Swap's; in replay mode the aligner emits nothing and stale
	// stays zero.
	var received uint64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				if a.evaluator().State().Phase == hypothesis.Listening {
					slog.Info("app: source ended mid-utterance")
					return a.handle(ctx, recognition.Rejected{}, &u, watchdog)
				}
				return nil
			}
			received++
			if received <= a.staleEvents() {
				slog.Debug("app: dropped event aligned with the previous grammar", "kind", ev.Kind())
				continue
			}
			if err := a.handle(ctx, ev, &u, watchdog); err != nil {
				return err
			}

		case <-watchdog.C:
			slog.Info("app: utterance timed out", "timeout", a.utteranceTimeout())
			a.aligner.Reset()
			if err := a.handle(ctx, recognition.Rejected{}, &u, watchdog); err != nil {
				return err
			}
		}
	}
}

func (a *App) handle(ctx context.Context, ev recognition.Event, u *utterance, watchdog *time.Timer) error {
	eval := a.evaluator()
	hctx := ctx
	if u.ctx != nil {
		hctx = u.ctx
	}
	for _, out := range eval.Handle(hctx, ev) {
		k := out.Kind()
		if k == recognition.KindStarted {
			u.end(recognition.KindRejected, attribute.Bool("abandoned", true))
			u.ctx, u.span = observe.StartSpan(ctx, "recognition.utterance")
			if d := a.utteranceTimeout(); d > 0 {
				watchdog.Reset(d)
			}
		}
		if u.ctx != nil {
			observe.AnnotateEvent(u.ctx, out)
		}
		if k.IsTerminal() {
			watchdog.Stop()
			a.report(u, eval.Policy().Grammar(), out)
		}
		if err := a.enc.Encode(out); err != nil {
			return fmt.Errorf("app: write event: %w", err)
		}
	}
	return nil
}

// report logs a terminal event and closes the utterance span.
func (a *App) report(u *utterance, g *grammar.Sliced, ev recognition.Event) {
	log := slog.Default()
	if u.ctx != nil {
		log = observe.Logger(u.ctx)
	}
	r := recognition.Result(ev)
	if ev.Kind() == recognition.KindRejected {
		text := ""
		if r != nil {
			text = r.Text
		}
		log.Info("app: utterance rejected", "text", text)
		u.end(recognition.KindRejected)
		return
	}
	ci, ok := g.Choice(r)
	if !ok {
		log.Warn("app: completed result maps onto no choice", "text", r.Text)
		u.end(recognition.KindCompleted)
		return
	}
	log.Info("app: choice recognized",
		"choice", ci,
		"display", g.Choices().Items[ci].Display,
		"text", r.Text,
		"probability", r.Probability,
		"confidence", r.Confidence,
	)
	u.end(recognition.KindCompleted,
		attribute.Int("choice", ci),
		attribute.Float64("probability", r.Probability),
	)
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change. It is the
// callback handed to [config.NewWatcher]. Changes that need a restart are
// logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	ctx := context.Background()
	d := config.Diff(old, new)

	if d.LogLevelChanged {
		a.level.Set(Level(d.NewLogLevel))
		a.metrics.RecordReload(ctx, "log_level")
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}

	if d.ChoicesChanged || d.TuningChanged {
		if err := a.reload(ctx, new, d); err != nil {
			slog.Error("app: config reload failed, keeping previous grammar", "err", err)
		}
	}

	if d.RestartRequired {
		slog.Warn("app: config change requires a restart to take effect")
	}
}

func (a *App) reload(ctx context.Context, cfg *config.Config, d config.ConfigDiff) error {
	g, art, err := compile(cfg.Choices)
	if err != nil {
		return err
	}

	var fresh *hypothesis.Evaluator
	if d.TuningChanged {
		if fresh, err = a.newEvaluator(cfg.Recognition, g); err != nil {
			return err
		}
		a.aligner.SetMatcher(matcherFor(cfg.Recognition))
	}

	// Rules name the slices of the grammar they were aligned with, so the
	// evaluator must never see the other grammar's rules.
	var sess stt.SessionHandle
	a.aligner.Swap(g, func(emitted uint64) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.stale = emitted
		if fresh != nil {
			a.eval = fresh
		} else {
			a.eval.Reload(g)
		}
		a.grammar, a.artifact = g, art
		a.timeout = cfg.Recognition.Timeout
		sess = a.session
	})
	if d.TuningChanged {
		a.metrics.RecordReload(ctx, "tuning")
	}

	if d.ChoicesChanged {
		for _, c := range d.ChoiceChanges {
			slog.Info("app: choice changed",
				"text", c.Text,
				"added", c.Added,
				"removed", c.Removed,
				"phrases_changed", c.PhrasesChanged,
				"display_changed", c.DisplayChanged,
			)
		}
		if sess != nil {
			err := sess.SetKeywords(art.Keywords)
			switch {
			case errors.Is(err, stt.ErrNotSupported):
				slog.Debug("app: stt session keeps its keywords until restart")
			case err != nil:
				slog.Warn("app: update stt keywords", "err", err)
			}
		}
		a.metrics.RecordReload(ctx, "choices")
	}

	slog.Info("app: grammar reloaded",
		"choices", g.Choices().Len(),
		"phrases", g.Len(),
		"keywords", len(art.Keywords),
	)
	return nil
}

// Level maps a config log level onto slog.
func Level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the inputs and outputs opened by New. It is safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- a.close() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (a *App) close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
