package resilience

import (
	"errors"
	"testing"
	"time"
)

var errEngine = errors.New("engine down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *clock) {
	c := &clock{t: time.Unix(0, 0)}
	b := NewBreaker("test", cfg)
	b.now = c.now
	return b, c
}

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", BreakerConfig{})
	if b.cfg.MaxFailures != 3 || b.cfg.Cooldown != 30*time.Second || b.cfg.Probes != 1 {
		t.Errorf("defaults = %+v", b.cfg)
	}
	if b.State() != Closed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_Lifecycle(t *testing.T) {
	t.Parallel()

	b, c := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Minute, Probes: 2})
	fail := func() error { return errEngine }
	ok := func() error { return nil }

	_ = b.Do(fail)
	if b.State() != Closed {
		t.Fatalf("after 1 failure: %v, want closed", b.State())
	}
	_ = b.Do(fail)
	if b.State() != Open {
		t.Fatalf("after 2 failures: %v, want open", b.State())
	}

	called := false
	if err := b.Do(func() error { called = true; return nil }); !errors.Is(err, ErrOpen) || called {
		t.Fatalf("open breaker: err=%v called=%v, want ErrOpen without call", err, called)
	}

	c.advance(time.Minute)
	if b.State() != Probing {
		t.Fatalf("after cool-down: %v, want probing", b.State())
	}
	if err := b.Do(ok); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if b.State() != Probing {
		t.Fatalf("after one of two probes: %v, want probing", b.State())
	}
	if err := b.Do(ok); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("after probes: %v, want closed", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	b, c := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second})
	_ = b.Do(func() error { return errEngine })
	c.advance(time.Second)

	if err := b.Do(func() error { return errEngine }); !errors.Is(err, errEngine) {
		t.Fatalf("probe: got %v, want the engine error", err)
	}
	if b.State() != Open {
		t.Errorf("after failed probe: %v, want open", b.State())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 2})
	_ = b.Do(func() error { return errEngine })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errEngine })
	if b.State() != Closed {
		t.Errorf("state = %v, want closed; failures must be consecutive", b.State())
	}
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	t.Parallel()

	b, c := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second})
	_ = b.Do(func() error { return errEngine })
	c.advance(time.Second)

	err := b.Do(func() error {
		if inner := b.Do(func() error { return nil }); !errors.Is(inner, ErrOpen) {
			t.Errorf("concurrent probe: got %v, want ErrOpen", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	_ = b.Do(func() error { return errEngine })
	b.Reset()
	if b.State() != Closed {
		t.Errorf("after Reset: %v, want closed", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{Closed: "closed", Open: "open", Probing: "probing", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
