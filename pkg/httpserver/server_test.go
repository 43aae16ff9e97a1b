package httpserver_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellcare/billing/pkg/httpserver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startServer(t *testing.T, srv *httpserver.Server, ctx context.Context, handler http.Handler, ready chan struct{}) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, handler) }()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		require.Fail(t, "server did not start listening")
	}
	return done
}

func TestServer_RunAndShutdown(t *testing.T) {
	t.Parallel()

	t.Run("serves until the context is cancelled", func(t *testing.T) {
		t.Parallel()
		addr := freeAddr(t)
		ready := make(chan struct{})
		srv := httpserver.New(
			httpserver.WithAddr(addr),
			httpserver.WithShutdownTimeout(100*time.Millisecond),
			httpserver.WithReadyHook(func() { close(ready) }),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := startServer(t, srv, ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}), ready)

		resp, err := http.Get("http://" + addr)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			require.Fail(t, "run did not finish")
		}
	})

	t.Run("manual shutdown stops the server", func(t *testing.T) {
		t.Parallel()
		addr := freeAddr(t)
		ready := make(chan struct{})
		srv := httpserver.New(
			httpserver.WithAddr(addr),
			httpserver.WithShutdownTimeout(100*time.Millisecond),
			httpserver.WithReadyHook(func() { close(ready) }),
		)
		done := startServer(t, srv, context.Background(), http.NewServeMux(), ready)

		require.NoError(t, srv.Shutdown(context.Background()))
		require.NoError(t, srv.Shutdown(context.Background()), "second shutdown must be a no-op")
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			require.Fail(t, "run did not finish")
		}
	})

	t.Run("listen failure is wrapped with ErrStart", func(t *testing.T) {
		t.Parallel()
		srv := httpserver.New(httpserver.WithAddr("127.0.0.1:-1"))
		err := srv.Run(context.Background(), http.NewServeMux())
		require.ErrorIs(t, err, httpserver.ErrStart)
	})

	t.Run("second run on the same server is rejected", func(t *testing.T) {
		t.Parallel()
		addr := freeAddr(t)
		ready := make(chan struct{})
		srv := httpserver.New(
			httpserver.WithAddr(addr),
			httpserver.WithShutdownTimeout(50*time.Millisecond),
			httpserver.WithReadyHook(func() { close(ready) }),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		startServer(t, srv, ctx, http.NewServeMux(), ready)

		err := srv.Run(context.Background(), http.NewServeMux())
		require.ErrorIs(t, err, httpserver.ErrStart)
	})
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, probes ...func(context.Context) error) (string, func()) {
		t.Helper()
		addr := freeAddr(t)
		r := chi.NewRouter()
		r.Get("/healthz", httpserver.HealthCheckHandler(context.Background(), discardLogger(), probes...))

		ready := make(chan struct{})
		srv := httpserver.New(
			httpserver.WithAddr(addr),
			httpserver.WithShutdownTimeout(50*time.Millisecond),
			httpserver.WithReadyHook(func() { close(ready) }),
		)
		ctx, cancel := context.WithCancel(context.Background())
		startServer(t, srv, ctx, r, ready)
		return addr, cancel
	}

	get := func(t *testing.T, addr string) (int, string) {
		t.Helper()
		resp, err := http.Get("http://" + addr + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	t.Run("liveness without probes", func(t *testing.T) {
		t.Parallel()
		addr, stop := serve(t)
		defer stop()
		code, body := get(t, addr)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ALIVE", body)
	})

	t.Run("ready when all probes pass", func(t *testing.T) {
		t.Parallel()
		addr, stop := serve(t, func(context.Context) error { return nil })
		defer stop()
		code, body := get(t, addr)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "READY", body)
	})

	t.Run("not ready when a probe fails", func(t *testing.T) {
		t.Parallel()
		addr, stop := serve(t,
			func(context.Context) error { return nil },
			func(context.Context) error { return errors.New("db unreachable") },
		)
		defer stop()
		code, body := get(t, addr)
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "NOT_READY", body)
	})
}
