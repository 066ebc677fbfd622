package runtime

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func TestServeReturnsNilOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, slog.New(slog.DiscardHandler), time.Second) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReportsListenFailure(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1", Handler: http.NotFoundHandler()}
	err := Serve(context.Background(), srv, slog.New(slog.DiscardHandler), time.Second)
	if err == nil {
		t.Fatal("expected listen error")
	}
}
