package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *Server {
	return New(http.NotFoundHandler(), Config{Port: 0, ShutdownTimeout: 2 * time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestServer_ShutdownOrder(t *testing.T) {
	t.Parallel()
	srv := testServer()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	started := make(chan struct{})
	srv.Background("worker", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		record("worker")
		return ctx.Err()
	})
	srv.OnShutdown("cache", func(context.Context) error { record("cache"); return nil })
	srv.OnShutdown("database", func(context.Context) error { record("database"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- srv.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, []string{"worker", "database", "cache"}, order)
}

func TestServer_ComponentFailureStopsServer(t *testing.T) {
	t.Parallel()
	srv := testServer()
	boom := errors.New("subscription refused")
	srv.Background("listener", func(context.Context) error { return boom })

	hookRan := make(chan struct{})
	srv.OnShutdown("repo", func(context.Context) error { close(hookRan); return nil })

	result := make(chan error, 1)
	go func() { result <- srv.Run(context.Background()) }()

	select {
	case err := <-result:
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "listener")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	<-hookRan
}

func TestServer_ShutdownHookErrorsAreCombined(t *testing.T) {
	t.Parallel()
	srv := testServer()
	first := errors.New("first")
	second := errors.New("second")
	srv.OnShutdown("a", func(context.Context) error { return first })
	srv.OnShutdown("b", func(context.Context) error { return second })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.Run(ctx)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}
