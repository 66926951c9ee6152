package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeDebounce(t *testing.T) {
	errProbe := errors.New("down")
	fail := true
	p := &probe{
		name:    "db",
		kind:    readiness,
		timeout: time.Second,
		ok:      true,
		check: func(context.Context) error {
			if fail {
				return errProbe
			}
			return nil
		},
	}

	ctx := context.Background()

	// A probe stays healthy through the first failAfter-1 failures.
	for i := 0; i < failAfter-1; i++ {
		p.eval(ctx)
		ok, _ := p.status()
		assert.True(t, ok, "flipped after %d failures", i+1)
	}

	p.eval(ctx)
	ok, err := p.status()
	assert.False(t, ok)
	assert.ErrorIs(t, err, errProbe)

	// One pass brings it back.
	fail = false
	p.eval(ctx)
	ok, err = p.status()
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestProbeTimeout(t *testing.T) {
	p := &probe{
		name:    "slow",
		kind:    liveness,
		timeout: 10 * time.Millisecond,
		ok:      true,
		check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	ctx := context.Background()
	for i := 0; i < failAfter; i++ {
		p.eval(ctx)
	}

	ok, err := p.status()
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadyRequiresAccept(t *testing.T) {
	r := New()
	r.AddReadiness("always", time.Second, func(context.Context) error { return nil })

	assert.False(t, r.Ready(), "ready before Accept")

	r.Accept()
	assert.True(t, r.Ready())

	r.Drain()
	assert.False(t, r.Ready(), "ready after Drain")
}

func TestReadyRequiresPassingProbes(t *testing.T) {
	r := New()
	r.AddReadiness("db", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})
	r.Accept()

	// Probes default to healthy until evaluated past the threshold.
	assert.True(t, r.Ready())

	ctx := context.Background()
	for i := 0; i < failAfter; i++ {
		r.probes[0].eval(ctx)
	}
	assert.False(t, r.Ready())
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) probeResult {
	t.Helper()
	var res probeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestServeLivez(t *testing.T) {
	r := New()
	r.AddLiveness("goroutines", time.Second, func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	r.ServeLivez(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeResult(t, rec).Status)
}

func TestServeLivezFailing(t *testing.T) {
	r := New()
	r.AddLiveness("wedged", time.Second, func(context.Context) error {
		return errors.New("stuck")
	})

	ctx := context.Background()
	for i := 0; i < failAfter; i++ {
		r.probes[0].eval(ctx)
	}

	rec := httptest.NewRecorder()
	r.ServeLivez(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "unhealthy", res.Status)
	assert.Equal(t, "stuck", res.Checks["wedged"])
}

func TestServeReadyzDraining(t *testing.T) {
	r := New()
	r.Accept()
	r.Drain()

	rec := httptest.NewRecorder()
	r.ServeReadyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "unhealthy", res.Status)
	assert.Contains(t, res.Checks, "_accepting")
}

func TestStartEvaluatesImmediately(t *testing.T) {
	ran := make(chan struct{})
	var once bool

	r := New()
	r.AddReadiness("db", time.Second, func(context.Context) error {
		if !once {
			once = true
			close(ran)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx, time.Hour)
	defer r.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("probe not evaluated on Start")
	}
}

func TestMaxGoroutines(t *testing.T) {
	assert.NoError(t, MaxGoroutines(1_000_000)(context.Background()))
	assert.Error(t, MaxGoroutines(0)(context.Background()))
}
