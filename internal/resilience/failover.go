package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/choicerec/pkg/provider/stt"
)

// ErrNoEngine is returned when every engine of a [Failover] failed or is
// behind an open breaker.
var ErrNoEngine = errors.New("resilience: no speech engine available")

type engine struct {
	provider stt.Provider
	breaker  *Breaker
}

// Failover implements [stt.Provider] over an ordered list of engines. A
// stream is opened on the first engine whose breaker admits the call and
// which starts successfully.
type Failover struct {
	cfg     BreakerConfig
	engines []engine
	onError func(name string, err error)
}

var _ stt.Provider = (*Failover)(nil)

// FailoverOption configures a [Failover].
type FailoverOption func(*Failover)

// WithErrorHook registers fn to be called for every engine that fails to
// start a stream.
func WithErrorHook(fn func(name string, err error)) FailoverOption {
	return func(f *Failover) { f.onError = fn }
}

// NewFailover returns a failover whose breakers use cfg.
func NewFailover(cfg BreakerConfig, opts ...FailoverOption) *Failover {
	f := &Failover{cfg: cfg}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Add appends an engine. Engines are tried in the order they were added.
func (f *Failover) Add(name string, p stt.Provider) {
	f.engines = append(f.engines, engine{provider: p, breaker: NewBreaker(name, f.cfg)})
}

// Len returns the number of engines.
func (f *Failover) Len() int { return len(f.engines) }

// StartStream opens a stream on the first healthy engine.
func (f *Failover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	var errs []error
	for _, e := range f.engines {
		var sess stt.SessionHandle
		err := e.breaker.Do(func() error {
			var err error
			sess, err = e.provider.StartStream(ctx, cfg)
			return err
		})
		if err == nil {
			slog.Debug("resilience: stream started", "engine", e.breaker.Name())
			return sess, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrOpen) {
			slog.Warn("resilience: engine failed, trying next", "engine", e.breaker.Name(), "err", err)
			if f.onError != nil {
				f.onError(e.breaker.Name(), err)
			}
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.breaker.Name(), err))
	}
	if len(errs) == 0 {
		return nil, ErrNoEngine
	}
	return nil, fmt.Errorf("%w: %w", ErrNoEngine, errors.Join(errs...))
}

// Check reports an error when no engine would currently admit a call. It
// has the signature of a readiness check.
func (f *Failover) Check(context.Context) error {
	if len(f.engines) == 0 {
		return ErrNoEngine
	}
	for _, e := range f.engines {
		if e.breaker.State() != Open {
			return nil
		}
	}
	return ErrNoEngine
}

// States returns the breaker state per engine name.
func (f *Failover) States() map[string]State {
	out := make(map[string]State, len(f.engines))
	for _, e := range f.engines {
		out[e.breaker.Name()] = e.breaker.State()
	}
	return out
}
