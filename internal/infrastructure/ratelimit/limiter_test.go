package ratelimit

import (
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func TestLimiterDeniesAfterMaxWithinWindow(t *testing.T) {
	clock := newClock()
	l := New(300*time.Second, 2, clock.Now)

	first := l.Check("client-a")
	if !first.Allowed || first.Remaining != 1 {
		t.Fatalf("first request: got allowed=%v remaining=%d, want true/1", first.Allowed, first.Remaining)
	}

	clock.Advance(10 * time.Second)
	second := l.Check("client-a")
	if !second.Allowed || second.Remaining != 0 {
		t.Fatalf("second request: got allowed=%v remaining=%d, want true/0", second.Allowed, second.Remaining)
	}

	clock.Advance(20 * time.Second)
	third := l.Check("client-a")
	if third.Allowed {
		t.Fatalf("third request should be denied")
	}
	if got := third.RetryAfterSeconds(); got != 270 {
		t.Fatalf("RetryAfterSeconds() = %d, want 270", got)
	}
	if third.RetryAfterSeconds() > int(l.Window().Seconds()) {
		t.Fatalf("retry after exceeds window")
	}
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	clock := newClock()
	l := New(300*time.Second, 2, clock.Now)

	l.Check("k")
	l.Check("k")
	if l.Check("k").Allowed {
		t.Fatalf("expected denial inside window")
	}

	// Exactly at the reset instant the window is still closed.
	clock.Advance(300 * time.Second)
	if d := l.Check("k"); d.Allowed {
		t.Fatalf("expected denial at reset boundary")
	} else if d.RetryAfterSeconds() != 1 {
		t.Fatalf("RetryAfterSeconds() at boundary = %d, want 1", d.RetryAfterSeconds())
	}

	clock.Advance(time.Second)
	for i := 0; i < 2; i++ {
		if !l.Check("k").Allowed {
			t.Fatalf("request %d after reset should be allowed", i+1)
		}
	}
	if l.Check("k").Allowed {
		t.Fatalf("expected denial after second window filled")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New(time.Minute, 1, newClock().Now)

	if !l.Check("a").Allowed {
		t.Fatalf("a should be allowed")
	}
	if !l.Check("b").Allowed {
		t.Fatalf("b should be allowed")
	}
	if l.Check("a").Allowed {
		t.Fatalf("a should be denied")
	}
}

func TestLimiterConcurrentChecksNeverExceedMax(t *testing.T) {
	l := New(time.Minute, 5, newClock().Now)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 5 {
		t.Fatalf("allowed = %d, want 5", allowed)
	}
}

func TestLimiterPrune(t *testing.T) {
	clock := newClock()
	l := New(time.Minute, 2, clock.Now)

	l.Check("old")
	clock.Advance(30 * time.Second)
	l.Check("new")
	clock.Advance(31 * time.Second)

	if removed := l.Prune(); removed != 1 {
		t.Fatalf("Prune() = %d, want 1", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	l := New(0, 0, nil)
	if l.Window() != DefaultWindow {
		t.Fatalf("Window() = %v, want %v", l.Window(), DefaultWindow)
	}
	if l.MaxRequests() != DefaultMaxRequests {
		t.Fatalf("MaxRequests() = %d, want %d", l.MaxRequests(), DefaultMaxRequests)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{
			name:       "forwarded single ip",
			header:     "203.0.113.1",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "forwarded list uses first valid",
			header:     " bogus , 203.0.113.7 , 198.51.100.2 ",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.7",
		},
		{
			name:       "no header uses remote host",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "ipv6 remote",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::2",
		},
		{
			name:       "remote without port",
			remoteAddr: "203.0.113.9",
			want:       "203.0.113.9",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/generate", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				req.Header.Set("X-Forwarded-For", tc.header)
			}
			if got := ClientKey(req); got != tc.want {
				t.Fatalf("ClientKey() = %q, want %q", got, tc.want)
			}
		})
	}
}
