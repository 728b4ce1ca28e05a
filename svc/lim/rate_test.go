package lim

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_RejectsBadProxies(t *testing.T) {
	if _, err := New(60, 1, []string{"10.0.0.0/33"}); err == nil {
		t.Error("expected CIDR error")
	}
	if _, err := New(60, 1, []string{"not-an-ip"}); err == nil {
		t.Error("expected IP error")
	}
	if _, err := New(0, 1, nil); err == nil {
		t.Error("expected rpm error")
	}
}

func TestCheck_Burst(t *testing.T) {
	l, err := New(60, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	r := httptest.NewRequest("POST", "/pastes", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	for i := 0; i < 2; i++ {
		if res := l.Check(r, "create"); !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if res := l.Check(r, "create"); res.Allowed {
		t.Error("third request should be limited")
	}
	if res := l.Check(r, "open"); !res.Allowed {
		t.Error("endpoints are limited independently")
	}
	other := httptest.NewRequest("POST", "/pastes", nil)
	other.RemoteAddr = "192.0.2.2:1234"
	if res := l.Check(other, "create"); !res.Allowed {
		t.Error("clients are limited independently")
	}
}

func TestEvictIdle(t *testing.T) {
	l, _ := New(60, 1, nil)
	defer l.Stop()
	r := httptest.NewRequest("GET", "/", nil)
	l.Check(r, "x")
	if n := l.evictIdle(time.Now().Add(limiterTTL + time.Minute)); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
}

func TestGetRealIP(t *testing.T) {
	trusted := []string{"10.0.0.0/8"}
	tests := []struct {
		remote, xff string
		proxies     []string
		want        string
	}{
		{"192.0.2.1:80", "203.0.113.9", nil, "192.0.2.1"},
		{"192.0.2.1:80", "203.0.113.9", trusted, "192.0.2.1"},
		{"10.1.1.1:80", "203.0.113.9, 10.2.2.2", trusted, "203.0.113.9"},
		{"10.1.1.1:80", "garbage, 10.2.2.2", trusted, "10.1.1.1"},
		{"10.1.1.1:80", "", trusted, "10.1.1.1"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = tt.remote
		if tt.xff != "" {
			r.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := GetRealIP(r, tt.proxies); got != tt.want {
			t.Errorf("GetRealIP(%s, %q) = %s, want %s", tt.remote, tt.xff, got, tt.want)
		}
	}
}
