package httpserver_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefleet/pkg/httpserver"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func waitFor(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ln := listen(t)
	var hookCtxErr error
	stopped := false
	srv := httpserver.New(
		httpserver.WithShutdownTimeout(time.Second),
		httpserver.WithStopHook(func(ctx context.Context, _ *slog.Logger) error {
			stopped = true
			hookCtxErr = ctx.Err()
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
	}()

	waitFor(t, "http://"+ln.Addr().String())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "serve did not return")
	}
	assert.True(t, stopped)
	assert.NoError(t, hookCtxErr, "stop hook must not see the cancelled run context")
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestStopHookFailure(t *testing.T) {
	t.Parallel()

	errDrain := errors.New("drain timed out")
	calls := 0
	srv := httpserver.New(
		httpserver.WithStopHook(func(context.Context, *slog.Logger) error {
			calls++
			return errDrain
		}),
		httpserver.WithStopHook(func(context.Context, *slog.Logger) error {
			calls++
			return nil
		}),
	)

	ln := listen(t)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln, nil) }()
	waitFor(t, "http://"+ln.Addr().String())

	err := srv.Shutdown(context.Background())
	require.ErrorIs(t, err, httpserver.ErrShutdown)
	require.ErrorIs(t, err, errDrain)
	assert.Equal(t, 2, calls)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "serve did not return")
	}

	// Repeated shutdowns report the first result without rerunning hooks.
	require.ErrorIs(t, srv.Shutdown(context.Background()), errDrain)
	assert.Equal(t, 2, calls)
}

func TestStartHookFailure(t *testing.T) {
	t.Parallel()

	errBoot := errors.New("routes not loaded")
	srv := httpserver.New(httpserver.WithStartHook(func(context.Context, *slog.Logger) error { return errBoot }))

	err := srv.Serve(context.Background(), listen(t), nil)
	require.ErrorIs(t, err, httpserver.ErrStart)
	require.ErrorIs(t, err, errBoot)
}

func TestRunInvalidAddr(t *testing.T) {
	t.Parallel()

	srv := httpserver.New(httpserver.WithAddr("256.0.0.1:bad"))
	require.ErrorIs(t, srv.Run(context.Background(), nil), httpserver.ErrStart)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	custom := &http.Server{ReadTimeout: time.Second}
	srv := httpserver.NewFromConfig(httpserver.Config{ReadTimeout: time.Minute, WriteTimeout: time.Minute},
		httpserver.WithServer(custom))

	ctx, cancel := context.WithCancel(context.Background())
	ln := listen(t)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln, nil) }()
	waitFor(t, "http://"+ln.Addr().String())
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, time.Second, custom.ReadTimeout)
	assert.Equal(t, time.Minute, custom.WriteTimeout)
}

func TestNewFromConfig_ZeroConfig(t *testing.T) {
	t.Parallel()

	var srv *httpserver.Server
	require.NotPanics(t, func() { srv = httpserver.NewFromConfig(httpserver.Config{}) })
	require.NotNil(t, srv)
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	serve := func(h http.HandlerFunc) (int, string) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		body, _ := io.ReadAll(rec.Body)
		return rec.Code, string(body)
	}

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()
		code, body := serve(httpserver.HealthCheckHandler(nil))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ALIVE", body)
	})

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		ok := func(context.Context) error { return nil }
		code, body := serve(httpserver.HealthCheckHandler(nil, ok, ok))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "READY", body)
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))
		failing := func(context.Context) error { return errors.New("master database unreachable") }

		code, body := serve(httpserver.HealthCheckHandler(log, failing))
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "NOT_READY", body)
		assert.Contains(t, buf.String(), "master database unreachable")
	})
}
