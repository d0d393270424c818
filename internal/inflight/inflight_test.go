package inflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBeginEnd(t *testing.T) {
	var c Counter
	end1 := c.Begin()
	end2 := c.Begin()
	if got := c.Load(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	end1()
	end1()
	if got := c.Load(); got != 1 {
		t.Fatalf("double end should count once, got %d", got)
	}
	end2()
	if got := c.Load(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestWaitZeroValue(t *testing.T) {
	var c Counter
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if !c.Wait(ctx) {
		t.Fatalf("idle counter should not block")
	}
}

func TestWaitReleasesWhenDone(t *testing.T) {
	var c Counter
	end := c.Begin()
	done := make(chan bool, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- c.Wait(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	end()
	if !<-done {
		t.Fatalf("wait did not observe zero")
	}
}

func TestWaitTimesOut(t *testing.T) {
	var c Counter
	defer c.Begin()()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if c.Wait(ctx) {
		t.Fatalf("expected timeout while busy")
	}
}

func TestMiddleware(t *testing.T) {
	var c Counter
	var during int64
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = c.Load()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if during != 1 {
		t.Fatalf("expected 1 during request, got %d", during)
	}
	if c.Load() != 0 {
		t.Fatalf("expected 0 after request")
	}
}
