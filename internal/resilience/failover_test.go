package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/choicerec/internal/resilience"
	"github.com/MrWong99/choicerec/pkg/provider/stt"
	sttmock "github.com/MrWong99/choicerec/pkg/provider/stt/mock"
)

var streamCfg = stt.StreamConfig{SampleRate: 16000, Channels: 1}

func TestFailover_PrimaryServes(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	primary := &sttmock.Provider{Session: sess}
	secondary := &sttmock.Provider{}

	f := resilience.NewFailover(resilience.BreakerConfig{})
	f.Add("primary", primary)
	f.Add("secondary", secondary)

	got, err := f.StartStream(context.Background(), streamCfg)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if got != sess {
		t.Error("StartStream did not return the primary session")
	}
	if len(secondary.StartStreamCalls) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.StartStreamCalls))
	}
}

func TestFailover_FallsBack(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{StartStreamErr: errors.New("primary down")}
	sess := sttmock.NewSession()
	secondary := &sttmock.Provider{Session: sess}

	var failed []string
	f := resilience.NewFailover(resilience.BreakerConfig{MaxFailures: 1, Cooldown: time.Hour},
		resilience.WithErrorHook(func(name string, _ error) { failed = append(failed, name) }))
	f.Add("primary", primary)
	f.Add("secondary", secondary)

	for range 2 {
		got, err := f.StartStream(context.Background(), streamCfg)
		if err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		if got != sess {
			t.Fatal("StartStream did not return the secondary session")
		}
	}
	if n := len(primary.StartStreamCalls); n != 1 {
		t.Errorf("primary called %d times, want 1 (breaker open afterwards)", n)
	}
	if len(failed) != 1 || failed[0] != "primary" {
		t.Errorf("error hook calls = %v, want [primary]", failed)
	}
	if st := f.States()["primary"]; st != resilience.Open {
		t.Errorf("primary state = %v, want open", st)
	}
}

func TestFailover_AllFail(t *testing.T) {
	t.Parallel()

	f := resilience.NewFailover(resilience.BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	f.Add("a", &sttmock.Provider{StartStreamErr: errors.New("a down")})
	f.Add("b", &sttmock.Provider{StartStreamErr: errors.New("b down")})

	if err := f.Check(context.Background()); err != nil {
		t.Fatalf("Check before failures: %v", err)
	}
	_, err := f.StartStream(context.Background(), streamCfg)
	if !errors.Is(err, resilience.ErrNoEngine) {
		t.Fatalf("StartStream: got %v, want ErrNoEngine", err)
	}
	if err := f.Check(context.Background()); !errors.Is(err, resilience.ErrNoEngine) {
		t.Errorf("Check after failures: got %v, want ErrNoEngine", err)
	}
}

func TestFailover_Empty(t *testing.T) {
	t.Parallel()

	f := resilience.NewFailover(resilience.BreakerConfig{})
	if f.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.Len())
	}
	if _, err := f.StartStream(context.Background(), streamCfg); !errors.Is(err, resilience.ErrNoEngine) {
		t.Errorf("StartStream: got %v, want ErrNoEngine", err)
	}
	if err := f.Check(context.Background()); !errors.Is(err, resilience.ErrNoEngine) {
		t.Errorf("Check: got %v, want ErrNoEngine", err)
	}
}
