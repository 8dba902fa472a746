package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, h *Health, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Mount(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var r Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&r))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, r
}

func runN(h *Health, kind Kind, idx, n int) {
	p := h.snapshot(kind)[idx]
	for range n {
		p.run(context.Background(), h.lg)
	}
}

func TestLivez_AllPassing(t *testing.T) {
	h := New(nil)
	h.Register(Liveness, "goroutines", passing)
	h.Register(Liveness, "other", passing)

	code, r := get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, map[string]string{"goroutines": "ok", "other": "ok"}, r.Checks)
}

func TestLivez_FailsAfterThreshold(t *testing.T) {
	h := New(nil)
	h.Register(Liveness, "db", failing("connection refused"))

	runN(h, Liveness, 0, 2)
	code, _ := get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code, "two failures stay under the default threshold")

	runN(h, Liveness, 0, 1)
	code, r := get(t, h, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", r.Status)
	assert.Equal(t, "connection refused", r.Checks["db"])
	assert.False(t, h.IsLive())
}

func TestWithThresholds(t *testing.T) {
	calls := 0
	h := New(nil)
	h.Register(Readiness, "postgres", func(context.Context) error {
		calls++
		if calls <= 1 {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(1, 2))
	h.SetReady(true)

	runN(h, Readiness, 0, 1)
	assert.False(t, h.IsReady())

	runN(h, Readiness, 0, 1)
	assert.False(t, h.IsReady(), "one success is below the recovery threshold")

	runN(h, Readiness, 0, 1)
	assert.True(t, h.IsReady())
}

func TestWithTimeout(t *testing.T) {
	h := New(nil)
	h.Register(Readiness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))

	runN(h, Readiness, 0, 1)
	err := h.snapshot(Readiness)[0].lastError()
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadyz_ManualFlag(t *testing.T) {
	h := New(nil)
	h.Register(Readiness, "cache", passing)

	code, r := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, r.Checks, "_readiness")

	h.SetReady(true)
	code, r = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", r.Status)

	h.SetReady(false)
	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyz_OneFailing(t *testing.T) {
	h := New(nil)
	h.Register(Readiness, "postgres", passing)
	h.Register(Readiness, "redis", failing("i/o timeout"))
	h.SetReady(true)

	runN(h, Readiness, 1, 3)

	code, r := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "ok", r.Checks["postgres"])
	assert.Equal(t, "i/o timeout", r.Checks["redis"])
}

func TestReadyz_LivenessProbesIgnored(t *testing.T) {
	h := New(nil)
	h.Register(Liveness, "goroutines", failing("too many"))
	h.SetReady(true)
	runN(h, Liveness, 0, 3)

	code, _ := get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestNoChecks(t *testing.T) {
	h := New(nil)

	code, r := get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, r.Checks)

	h.SetReady(true)
	code, _ = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestTransitionsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := New(zap.New(core))

	var down atomic.Bool
	down.Store(true)
	h.Register(Readiness, "kafka", func(context.Context) error {
		if down.Load() {
			return errors.New("dial tcp: refused")
		}
		return nil
	})

	runN(h, Readiness, 0, 5)
	down.Store(false)
	runN(h, Readiness, 0, 2)

	require.Equal(t, 2, logs.Len(), "only state changes are logged")
	entries := logs.All()
	assert.Equal(t, "Health check failing", entries[0].Message)
	assert.Equal(t, "kafka", entries[0].ContextMap()["check"])
	assert.Equal(t, "Health check recovered", entries[1].Message)
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := New(nil)
	h.Register(Liveness, "tick", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
	stopped := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestConcurrentAccess(t *testing.T) {
	h := New(nil)
	h.Register(Liveness, "l", failing("err"))
	h.Register(Readiness, "r", passing)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				h.IsLive()
				w := httptest.NewRecorder()
				h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold")
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	want := errors.New("pool closed")
	check := PingCheck(pingerFunc(func(context.Context) error { return want }))
	require.ErrorIs(t, check(context.Background()), want)
}

func TestDialCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := closed.Addr().String()
	require.NoError(t, closed.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, DialCheck(deadAddr, ln.Addr().String())(ctx))
	assert.Error(t, DialCheck(deadAddr)(ctx))
	assert.Error(t, DialCheck()(ctx))
}
