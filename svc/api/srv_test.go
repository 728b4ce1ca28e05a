package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cipherpaste/cfg"
	"cipherpaste/pkg/codec"
	"cipherpaste/pkg/domain"
	"cipherpaste/svc/lim"
	"cipherpaste/svc/store"
	"cipherpaste/svc/svc"

	"github.com/pkg/errors"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	pingErr error
}

func (m *memKV) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", domain.ErrPasteNotFound
	}
	return v, nil
}
func (m *memKV) Ping(ctx context.Context) error { return m.pingErr }

func testServer(t *testing.T, burst int) (*Server, *memKV) {
	t.Helper()
	c := &cfg.Cfg{
		Port:             "0",
		Host:             cfg.DefaultHost,
		DefaultExpiresAt: domain.NeverExpires,
		DefaultSyntax:    domain.DefaultSyntax,
		MaxPasteSize:     1024,
		ContextTimeout:   5 * time.Second,
	}
	kv := &memKV{data: map[string]string{}}
	st := store.New(kv, c.Host)
	l, err := lim.New(600, burst, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l.Stop)
	return NewServer(c, svc.NewPaste(codec.New(), st, c), l, kv), kv
}

func do(t *testing.T, s *Server, method, path string, body interface{}, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e errResp
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body not JSON: %s", rec.Body.String())
	}
	if e.RequestID == "" {
		t.Error("error body missing request_id")
	}
	return e.Code
}

func TestCreateAndGetPrivate(t *testing.T) {
	s, _ := testServer(t, 50)
	f := false
	rec := do(t, s, "POST", "/pastes", CreateReq{Content: "top secret", Public: &f, Password: "pw", Publish: true}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	var created CreateResp
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.ShareURL != cfg.DefaultHost+"pst/"+created.ID {
		t.Fatalf("CreateResp = %+v", created)
	}
	if !strings.HasPrefix(created.URL, cfg.DefaultHost) || created.URL != cfg.DefaultHost+created.Transport {
		t.Errorf("direct URL = %s", created.URL)
	}

	rec = do(t, s, "GET", "/pst/"+created.ID, nil, map[string]string{"X-Paste-Password": "pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d: %s", rec.Code, rec.Body.String())
	}
	var got PasteResp
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Content != "top secret" || got.IsPublic || got.Expired {
		t.Errorf("PasteResp = %+v", got)
	}

	rec = do(t, s, "GET", "/pst/"+created.ID, nil, nil)
	if rec.Code != http.StatusUnauthorized || errCode(t, rec) != domain.ErrAuthentication.Code {
		t.Errorf("missing password: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, "GET", "/pst/"+created.ID, nil, map[string]string{"X-Paste-Password": "bad"})
	if rec.Code != http.StatusUnprocessableEntity || errCode(t, rec) != domain.ErrSignatureMismatch.Code {
		t.Errorf("wrong password: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, "GET", "/pst/"+created.ID+"/raw", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != created.Transport {
		t.Errorf("raw: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("raw Content-Type = %s", ct)
	}
}

func TestCreateDefaultsToPublic(t *testing.T) {
	s, kv := testServer(t, 50)
	rec := do(t, s, "POST", "/pastes", CreateReq{Content: "hi"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var created CreateResp
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID != "" || len(kv.data) != 0 {
		t.Error("paste published without publish flag")
	}
	rec = do(t, s, "POST", "/decode", DecodeReq{Transport: created.Transport}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("decode status %d: %s", rec.Code, rec.Body.String())
	}
	var got PasteResp
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Content != "hi" || !got.IsPublic || got.Syntax != domain.DefaultSyntax {
		t.Errorf("PasteResp = %+v", got)
	}
}

func TestCreateErrors(t *testing.T) {
	s, _ := testServer(t, 50)
	f := false
	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"empty", CreateReq{}, http.StatusBadRequest, domain.ErrContentRequired.Code},
		{"no password", CreateReq{Content: "x", Public: &f}, http.StatusBadRequest, domain.ErrConfiguration.Code},
		{"bad expiry", CreateReq{Content: "x", ExpiresAt: "tomorrow"}, http.StatusBadRequest, domain.ErrConfiguration.Code},
		{"too large", CreateReq{Content: strings.Repeat("a", 1025)}, http.StatusBadRequest, domain.ErrPasteTooLarge.Code},
		{"unknown field", map[string]string{"content": "x", "bogus": "y"}, http.StatusBadRequest, domain.ErrInvalidRequest.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, "POST", "/pastes", tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
			}
			if code := errCode(t, rec); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
		})
	}
}

func TestCreateRequiresJSON(t *testing.T) {
	s, _ := testServer(t, 50)
	req := httptest.NewRequest("POST", "/pastes", strings.NewReader(`{"content":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status %d", rec.Code)
	}
}

func TestDecodeErrors(t *testing.T) {
	s, _ := testServer(t, 50)
	rec := do(t, s, "POST", "/decode", DecodeReq{Transport: "not base64!"}, nil)
	if rec.Code != http.StatusBadRequest || errCode(t, rec) != domain.ErrDecode.Code {
		t.Errorf("garbage transport: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetNotFound(t *testing.T) {
	s, _ := testServer(t, 50)
	rec := do(t, s, "GET", "/pst/0f8fad5b-d9cb-469f-a165-70867728950e", nil, nil)
	if rec.Code != http.StatusNotFound || errCode(t, rec) != domain.ErrPasteNotFound.Code {
		t.Errorf("missing id: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, "GET", "/pst/not-a-uuid", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("malformed id: %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := testServer(t, 1)
	if rec := do(t, s, "POST", "/pastes", CreateReq{Content: "a"}, nil); rec.Code != http.StatusCreated {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := do(t, s, "POST", "/pastes", CreateReq{Content: "b"}, nil)
	if rec.Code != http.StatusTooManyRequests || errCode(t, rec) != domain.ErrRateLimitExceeded.Code {
		t.Errorf("second request: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestHealthReady(t *testing.T) {
	s, kv := testServer(t, 50)
	if rec := do(t, s, "GET", "/health", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("health: %d", rec.Code)
	}
	if rec := do(t, s, "GET", "/ready", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("ready: %d", rec.Code)
	}
	kv.pingErr = errors.New("down")
	rec := do(t, s, "GET", "/ready", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with failed ping: %d", rec.Code)
	}
	var rr ReadyResponse
	json.Unmarshal(rec.Body.Bytes(), &rr)
	if rr.Ready || rr.Store != "down" {
		t.Errorf("ReadyResponse = %+v", rr)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	s, _ := testServer(t, 50)
	rec := do(t, s, "POST", "/pastes", CreateReq{Content: "x"}, nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
}

func TestMetricsBasicAuth(t *testing.T) {
	s, _ := testServer(t, 50)
	s.cfg.MetricsUser = "prom"
	s.cfg.MetricsPass = cfg.NewSecret("scrape")
	if rec := do(t, s, "GET", "/metrics", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated metrics: %d", rec.Code)
	}
	req := httptest.NewRequest("GET", "/metrics", nil)
	req.SetBasicAuth("prom", "scrape")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cipherpaste_") {
		t.Errorf("authenticated metrics: %d", rec.Code)
	}
}
