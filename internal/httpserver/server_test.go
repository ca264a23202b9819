package httpserver_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/hypeindex/enhancement/internal/httpserver"
)

func TestServer_RunStopsOnContextCancel(t *testing.T) {
	srv := httpserver.New("127.0.0.1:0", http.NewServeMux(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	// Give ListenAndServe a moment to bind before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("graceful shutdown should not error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}

func TestServer_RunReturnsListenError(t *testing.T) {
	// An address that cannot be bound fails Run promptly.
	srv := httpserver.New("256.256.256.256:0", http.NewServeMux(), nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected a listen error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return on listen failure")
	}
}
