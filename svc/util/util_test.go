package util

import (
	"context"
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID failed: %v", err)
		}
		if !ValidID(id) {
			t.Fatalf("NewID produced invalid id %q", id)
		}
		if id[14] != '4' {
			t.Errorf("expected version 4 uuid, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestValidID(t *testing.T) {
	for _, s := range []string{"", "abc", "pst/123", "urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8"} {
		if ValidID(s) {
			t.Errorf("ValidID(%q) = true", s)
		}
	}
	if !ValidID("6ba7b810-9dad-41d1-80b4-00c04fd430c8") {
		t.Error("canonical uuid rejected")
	}
}

func TestRedact(t *testing.T) {
	a, b := RedactTransport("eyJhIjoxfQ=="), RedactTransport("eyJhIjoyfQ==")
	if a == b || !strings.HasPrefix(a, "sha256:") {
		t.Errorf("RedactTransport = %q, %q", a, b)
	}
	if got := RedactIP("192.168.1.77:5555"); got != "192.168.1.0" {
		t.Errorf("RedactIP = %q", got)
	}
	if got := RedactIP("not-an-ip"); !strings.HasPrefix(got, "hash:") {
		t.Errorf("RedactIP = %q", got)
	}
}

func TestWipe(t *testing.T) {
	b := []byte("sensitive")
	Wipe(b)
	for _, c := range b {
		if c != 0 {
			t.Fatal("Wipe left data behind")
		}
	}
}

func TestRequestID(t *testing.T) {
	ctx := SetRequestID(context.Background(), "req-1")
	if GetRequestID(ctx) != "req-1" {
		t.Error("request id not round-tripped")
	}
	bg := context.Background()
	if a, b := GetRequestID(bg), GetRequestID(bg); a != "" || b != "" {
		t.Errorf("background request id = %q, %q; want empty", a, b)
	}
}
