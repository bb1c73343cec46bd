// Package server exposes the HTTP surface of choicerec: liveness and
// readiness probes, the Prometheus scrape endpoint and read-only views of
// the recognition state.
//
// Routes:
//
//   - GET /healthz    liveness probe; always 200 OK.
//   - GET /readyz     readiness probe; 200 only when every [Checker] passes.
//   - GET /metrics    Prometheus exposition.
//   - GET /hypothesis JSON snapshot of the evaluator state.
//   - GET /grammar    the compiled SRGS grammar.
//   - GET /keywords   JSON keyword hints derived from the grammar.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/choicerec/internal/observe"
	"github.com/MrWong99/choicerec/pkg/grammar"
	"github.com/MrWong99/choicerec/pkg/hypothesis"
	"github.com/MrWong99/choicerec/pkg/rule"
)

const (
	// checkTimeout bounds a single readiness check.
	checkTimeout = 5 * time.Second

	shutdownTimeout = 10 * time.Second
)

// Checker is a named readiness check. Check returns nil when the dependency
// is healthy.
type Checker struct {
	// Name labels the check in the /readyz response (e.g. "stt").
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Source provides the recognition state served by the diagnostic routes.
type Source interface {
	// State returns a snapshot of the evaluator.
	State() hypothesis.State

	// Artifact returns the compiled form of the active grammar, or nil
	// before the first grammar is built.
	Artifact() *grammar.Artifact
}

// Option is a functional option for [New].
type Option func(*Server)

// WithCheckers adds readiness checks evaluated in order on each /readyz
// request.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// WithMetrics sets the instruments used by the request middleware.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler. Default:
// promhttp.Handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server serves the HTTP routes. It is safe for concurrent use; the checker
// list is fixed at construction time.
type Server struct {
	src            Source
	checkers       []Checker
	metrics        *observe.Metrics
	metricsHandler http.Handler
	log            *slog.Logger
}

// New returns a server reading recognition state from src.
func New(src Source, opts ...Option) *Server {
	s := &Server{src: src, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the routed handler wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /hypothesis", s.hypothesis)
	mux.HandleFunc("GET /grammar", s.grammar)
	mux.HandleFunc("GET /keywords", s.keywords)
	return observe.Middleware(s.metrics)(mux)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls [Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// status is the JSON body of the probe routes.
type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status{Status: "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checkers))
	allOK := true

	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := status{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !allOK {
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// Snapshot is the JSON body of GET /hypothesis.
type Snapshot struct {
	Phase      string     `json:"phase"`
	Candidates int        `json:"candidates"`
	Hypothesis *Candidate `json:"hypothesis,omitempty"`
}

// Candidate is the retained hypothesis within a [Snapshot].
type Candidate struct {
	Choice   int        `json:"choice"`
	Units    int        `json:"units"`
	Total    int        `json:"total"`
	Weighted float64    `json:"weighted"`
	Rule     *rule.Rule `json:"rule"`
}

func (s *Server) hypothesis(w http.ResponseWriter, _ *http.Request) {
	st := s.src.State()
	snap := Snapshot{Phase: st.Phase.String(), Candidates: st.Candidates}
	if c := st.Current; c != nil {
		snap.Hypothesis = &Candidate{
			Choice:   c.Choice,
			Units:    c.Units,
			Total:    c.Total,
			Weighted: c.Weighted,
			Rule:     c.Rule,
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) grammar(w http.ResponseWriter, _ *http.Request) {
	a := s.src.Artifact()
	if a == nil {
		http.Error(w, "no grammar loaded", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/srgs+xml")
	w.Header().Set("Content-Language", a.Locale.String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(a.SRGS); err != nil {
		s.log.Debug("write grammar", "err", err)
	}
}

// keyword is one entry of the GET /keywords body.
type keyword struct {
	Keyword string  `json:"keyword"`
	Boost   float64 `json:"boost"`
}

func (s *Server) keywords(w http.ResponseWriter, _ *http.Request) {
	a := s.src.Artifact()
	if a == nil {
		http.Error(w, "no grammar loaded", http.StatusServiceUnavailable)
		return
	}
	out := make([]keyword, len(a.Keywords))
	for i, k := range a.Keywords {
		out[i] = keyword{Keyword: k.Keyword, Boost: k.Boost}
	}
	writeJSON(w, http.StatusOK, out)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
