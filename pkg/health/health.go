// Package health serves liveness and readiness probes backed by periodic
// dependency checks.
//
// A probe flips to unhealthy only after failureThreshold consecutive
// failures and back after successThreshold consecutive successes, so a single
// slow ping does not take the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind int

const (
	// Liveness probes report whether the process should be restarted.
	Liveness Kind = iota
	// Readiness probes report whether the process should receive traffic.
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// Option tunes a single probe.
type Option func(*probe)

// WithTimeout bounds one execution of the check. Default is one second.
func WithTimeout(d time.Duration) Option {
	return func(p *probe) { p.timeout = d }
}

// WithThresholds sets how many consecutive failures mark the probe unhealthy
// and how many successes mark it healthy again. Defaults are 3 and 1.
func WithThresholds(failure, success int) Option {
	return func(p *probe) {
		if failure > 0 {
			p.failureThreshold = failure
		}
		if success > 0 {
			p.successThreshold = success
		}
	}
}

type probe struct {
	name             string
	kind             Kind
	check            CheckFunc
	timeout          time.Duration
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Owned by the probe's goroutine.
	fails, oks int
}

func (p *probe) lastError() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// run executes the check once. It must not be called concurrently for the
// same probe.
func (p *probe) run(ctx context.Context, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.failureThreshold && p.healthy.Swap(false) {
			lg.Warn("Health check failing",
				zap.String("check", p.name),
				zap.Stringer("kind", p.kind),
				zap.Int("failures", p.fails),
				zap.Error(err),
			)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= p.successThreshold && !p.healthy.Swap(true) {
		lg.Info("Health check recovered",
			zap.String("check", p.name),
			zap.Stringer("kind", p.kind),
		)
	}
}

// Health tracks probes and the manual readiness flag.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Health that is not ready until SetReady(true). lg may be nil.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg.Named("health")}
}

// Register adds a probe. Probes start healthy. Register all probes before
// calling Start.
func (h *Health) Register(kind Kind, name string, check CheckFunc, opts ...Option) {
	p := &probe{
		name:             name,
		kind:             kind,
		check:            check,
		timeout:          time.Second,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(p)
	}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// Start runs every probe once immediately and then every interval until Stop
// or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.mu.Unlock()
		cancel()
		return
	}
	h.cancel = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		h.wg.Add(1)
		go func(p *probe) {
			defer h.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.run(ctx, h.lg)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.run(ctx, h.lg)
				}
			}
		}(p)
	}
}

// Stop halts the probe goroutines and waits for them. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		h.wg.Wait()
	}
}

// SetReady sets the manual readiness flag. It is cleared during shutdown so
// load balancers drain the instance before the server stops.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the flag is set and every readiness probe passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

// IsLive reports whether every liveness probe passes.
func (h *Health) IsLive() bool {
	return len(h.failures(Liveness)) == 0
}

func (h *Health) snapshot(kind Kind) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*probe, 0, len(h.probes))
	for _, p := range h.probes {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func (h *Health) failures(kind Kind) map[string]string {
	failures := make(map[string]string)
	for _, p := range h.snapshot(kind) {
		if p.healthy.Load() {
			continue
		}
		if err := p.lastError(); err != nil {
			failures[p.name] = err.Error()
		} else {
			failures[p.name] = "check is unhealthy"
		}
	}
	return failures
}

// Report is the probe response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Health) report(kind Kind) (Report, bool) {
	probes := h.snapshot(kind)
	failures := h.failures(kind)
	if kind == Readiness && !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}

	r := Report{Status: "ok"}
	if len(probes) > 0 || len(failures) > 0 {
		r.Checks = make(map[string]string, len(probes)+1)
		for _, p := range probes {
			r.Checks[p.name] = "ok"
		}
		for name, msg := range failures {
			r.Checks[name] = msg
		}
	}
	if len(failures) > 0 {
		r.Status = "unhealthy"
	}
	return r, len(failures) == 0
}

// LiveEndpoint serves the liveness report.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	r, ok := h.report(Liveness)
	writeReport(w, r, ok)
}

// ReadyEndpoint serves the readiness report.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	r, ok := h.report(Readiness)
	writeReport(w, r, ok)
}

// Mount registers /livez and /readyz on mux.
func (h *Health) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /livez", h.LiveEndpoint)
	mux.HandleFunc("GET /readyz", h.ReadyEndpoint)
}

func writeReport(w http.ResponseWriter, r Report, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(r)
}
