package lim

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"cipherpaste/svc/util"

	"golang.org/x/time/rate"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	limiterTTL      = 30 * time.Minute
)

// Limiter is a per-client token bucket keyed by IP and endpoint.
type Limiter struct {
	trustedProxies []string
	limiters       map[string]*limiterEntry
	mu             sync.Mutex
	rpm            int
	burst          int
	quit           chan struct{}
	stopOnce       sync.Once
}
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

func New(rpm, burst int, trustedProxies []string) (*Limiter, error) {
	for _, proxy := range trustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return nil, fmt.Errorf("invalid CIDR in trusted proxies: %s: %w", proxy, err)
			}
		} else if net.ParseIP(proxy) == nil {
			return nil, fmt.Errorf("invalid IP in trusted proxies: %s", proxy)
		}
	}
	if rpm <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rate limit rpm and burst must be positive")
	}
	l := &Limiter{
		trustedProxies: trustedProxies,
		limiters:       make(map[string]*limiterEntry),
		rpm:            rpm,
		burst:          burst,
		quit:           make(chan struct{}),
	}
	go l.cleanupLoop()
	return l, nil
}
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(time.Now())
		case <-l.quit:
			return
		}
	}
}
func (l *Limiter) evictIdle(now time.Time) int {
	l.mu.Lock()
	evicted := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(l.limiters, key)
			evicted++
		}
	}
	remaining := len(l.limiters)
	l.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("rate limiter cleanup")
	}
	return evicted
}
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

func (l *Limiter) Check(r *http.Request, endpoint string) Result {
	ip := GetRealIP(r, l.trustedProxies)
	now := time.Now()
	key := ip + ":" + endpoint
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLimiters {
			l.evictOldestLocked(maxLimiters / 10)
		}
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.burst),
		}
		l.limiters[key] = entry
	}
	entry.lastAccess = now
	res := Result{
		Limit: l.rpm,
		Reset: now.Add(time.Minute),
	}
	if !entry.limiter.AllowN(now, 1) {
		return res
	}
	res.Allowed = true
	res.Remaining = int(entry.limiter.TokensAt(now))
	return res
}
func (l *Limiter) evictOldestLocked(count int) {
	type kv struct {
		key        string
		lastAccess time.Time
	}
	entries := make([]kv, 0, len(l.limiters))
	for k, v := range l.limiters {
		entries = append(entries, kv{k, v.lastAccess})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastAccess.Before(entries[j].lastAccess)
	})
	for i := 0; i < count && i < len(entries); i++ {
		delete(l.limiters, entries[i].key)
	}
	util.Warn().Int("evicted", count).Msg("rate limiter at capacity, evicted oldest")
}

// GetRealIP trusts X-Forwarded-For only when the peer is a trusted proxy,
// and then takes the right-most untrusted hop.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	const maxIPsToParse = 100
	hops := strings.Split(xff, ",")
	parsed := 0
	for i := len(hops) - 1; i >= 0 && parsed < maxIPsToParse; i-- {
		ipStr := strings.TrimSpace(hops[i])
		if ipStr == "" {
			continue
		}
		parsed++
		if net.ParseIP(ipStr) == nil {
			util.Warn().Str("ip", util.RedactIP(ipStr)).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	return remoteIP
}
func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsedIP := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") && parsedIP != nil {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && subnet.Contains(parsedIP) {
				return true
			}
		}
	}
	return false
}
func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
