package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualEdgeTriggered(t *testing.T) {
	m := NewManual(false)

	var transitions []bool
	cancel := m.Subscribe(func(online bool) {
		transitions = append(transitions, online)
	})
	defer cancel()

	// Repeated same-state observations must not fire.
	m.SetOnline(false)
	m.SetOnline(false)
	if len(transitions) != 0 {
		t.Fatalf("expected no callbacks for repeated offline, got %d", len(transitions))
	}

	m.SetOnline(true)
	m.SetOnline(true)
	m.SetOnline(false)

	want := []bool{true, false}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(transitions))
	}
	for i, v := range want {
		if transitions[i] != v {
			t.Errorf("transition %d: expected %v, got %v", i, v, transitions[i])
		}
	}

	if m.IsOnline() {
		t.Error("expected offline after final observation")
	}
}

func TestSubscribeCancel(t *testing.T) {
	m := NewManual(false)

	var calls int32
	cancel := m.Subscribe(func(bool) { atomic.AddInt32(&calls, 1) })

	m.SetOnline(true)
	cancel()
	m.SetOnline(false)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 callback before cancel, got %d", got)
	}
}

func TestSubscriberMayReenterMonitor(t *testing.T) {
	m := NewManual(false)

	done := make(chan bool, 1)
	m.Subscribe(func(online bool) {
		// Must not deadlock.
		done <- m.IsOnline() == online
	})

	m.SetOnline(true)

	select {
	case ok := <-done:
		if !ok {
			t.Error("IsOnline disagreed with callback argument")
		}
	case <-time.After(time.Second):
		t.Fatal("callback deadlocked re-entering the monitor")
	}
}

func TestProbeDetectsTransitions(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			// Simulate a dead network by hijacking and dropping the
			// connection; a plain 500 would still count as reachable.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack failed: %v", err)
			}
			_ = conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProbe(ProbeConfig{
		URL:      srv.URL,
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	})

	flips := make(chan bool, 16)
	p.Subscribe(func(online bool) { flips <- online })

	p.Start(context.Background())
	defer p.Stop()

	waitFlip := func(want bool) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case got := <-flips:
				if got == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for online=%v", want)
			}
		}
	}

	waitFlip(true)

	healthy.Store(false)
	waitFlip(false)

	healthy.Store(true)
	waitFlip(true)
}

func TestProbeServerErrorStillOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProbe(ProbeConfig{URL: srv.URL, Interval: time.Hour, Timeout: time.Second})
	p.check(context.Background())

	if !p.IsOnline() {
		t.Error("a 5xx response still proves reachability")
	}
}
