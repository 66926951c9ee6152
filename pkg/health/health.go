// Package health implements liveness and readiness probes for the API
// server, in the style of Kubernetes probe configuration.
//
// Probes are registered once at startup and then evaluated on a shared
// ticker. A probe flips to unhealthy only after failAfter consecutive
// failures and recovers after recoverAfter consecutive passes, so a single
// slow database ping does not take the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Check reports whether a single component is healthy.
type Check func(ctx context.Context) error

// Probe flip thresholds. Matching kubelet defaults: three strikes out,
// one pass back in.
const (
	failAfter    = 3
	recoverAfter = 1
)

type probeKind int

const (
	liveness probeKind = iota
	readiness
)

// probe is one registered check plus its debounced state. State is guarded
// by mu; the scan loop writes it, HTTP handlers read it.
type probe struct {
	name    string
	kind    probeKind
	timeout time.Duration
	check   Check

	mu      sync.Mutex
	ok      bool
	fails   int
	passes  int
	lastErr error
}

func (p *probe) eval(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.check(ctx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErr = err
	if err != nil {
		p.passes = 0
		p.fails++
		if p.fails >= failAfter {
			p.ok = false
		}
		return
	}
	p.fails = 0
	p.passes++
	if p.passes >= recoverAfter {
		p.ok = true
	}
}

func (p *probe) status() (ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ok, p.lastErr
}

// Registry holds the registered probes and the traffic-acceptance gate.
type Registry struct {
	mu        sync.Mutex
	accepting bool
	probes    []*probe
	stop      context.CancelFunc
}

// New returns an empty Registry. The service reports not-ready until
// Accept is called, regardless of probe results.
func New() *Registry {
	return &Registry{}
}

// AddLiveness registers a liveness probe. Liveness failures mean the
// process itself is wedged (goroutine leak, runaway GC) and should be
// restarted.
func (r *Registry) AddLiveness(name string, timeout time.Duration, check Check) {
	r.add(name, liveness, timeout, check)
}

// AddReadiness registers a readiness probe. Readiness failures mean a
// dependency (the database, typically) is unavailable and traffic should
// be routed elsewhere until it recovers.
func (r *Registry) AddReadiness(name string, timeout time.Duration, check Check) {
	r.add(name, readiness, timeout, check)
}

func (r *Registry) add(name string, kind probeKind, timeout time.Duration, check Check) {
	p := &probe{name: name, kind: kind, timeout: timeout, check: check, ok: true}
	r.mu.Lock()
	r.probes = append(r.probes, p)
	r.mu.Unlock()
}

// Start evaluates every probe once immediately, then again on each tick of
// interval, until ctx is cancelled or Stop is called. Probes run
// sequentially on one goroutine; each gets its own timeout.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.stop = cancel
	probes := make([]*probe, len(r.probes))
	copy(probes, r.probes)
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			for _, p := range probes {
				p.eval(ctx)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the scan loop. Safe to call more than once.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

// Accept marks the service ready to take traffic. Call it once startup has
// finished.
func (r *Registry) Accept() {
	r.setAccepting(true)
}

// Drain marks the service not-ready so the load balancer stops sending new
// requests. Call it at the start of graceful shutdown.
func (r *Registry) Drain() {
	r.setAccepting(false)
}

func (r *Registry) setAccepting(v bool) {
	r.mu.Lock()
	r.accepting = v
	r.mu.Unlock()
}

// Ready reports whether the service is accepting traffic and every
// readiness probe is passing.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	accepting := r.accepting
	probes := r.snapshot(readiness)
	r.mu.Unlock()

	if !accepting {
		return false
	}
	for _, p := range probes {
		if ok, _ := p.status(); !ok {
			return false
		}
	}
	return true
}

// snapshot returns the probes of the given kind. Caller holds r.mu.
func (r *Registry) snapshot(kind probeKind) []*probe {
	var out []*probe
	for _, p := range r.probes {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// ServeLivez handles GET /livez: 200 while every liveness probe passes,
// 503 with per-probe errors otherwise.
func (r *Registry) ServeLivez(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	probes := r.snapshot(liveness)
	r.mu.Unlock()

	writeProbeResult(w, failing(probes))
}

// ServeReadyz handles GET /readyz: 200 while the service is accepting
// traffic and every readiness probe passes, 503 otherwise.
func (r *Registry) ServeReadyz(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	accepting := r.accepting
	probes := r.snapshot(readiness)
	r.mu.Unlock()

	fails := failing(probes)
	if !accepting {
		fails["_accepting"] = "service is draining or not yet started"
	}
	writeProbeResult(w, fails)
}

func failing(probes []*probe) map[string]string {
	fails := make(map[string]string)
	for _, p := range probes {
		ok, err := p.status()
		if ok {
			continue
		}
		if err != nil {
			fails[p.name] = err.Error()
		} else {
			fails[p.name] = "probe failing"
		}
	}
	return fails
}

type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeProbeResult(w http.ResponseWriter, fails map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	res := probeResult{Status: "ok"}
	code := http.StatusOK
	if len(fails) > 0 {
		res = probeResult{Status: "unhealthy", Checks: fails}
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res)
}
