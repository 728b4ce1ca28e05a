// Package store publishes encoded pastes under short random identifiers and
// resolves them back. The only part of the encoded form it reads is the
// expiry, to bound how long a resolved paste stays cached.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cipherpaste/metrics"
	"cipherpaste/pkg/codec"
	"cipherpaste/pkg/domain"
	"cipherpaste/svc/cache"
	"cipherpaste/svc/util"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// KV is the backend contract. Get returns domain.ErrPasteNotFound when the
// key is absent or expired.
type KV interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

const refPath = "pst/"

type Handle struct {
	ID  string
	URL string
}

type Store struct {
	kv      KV
	host    string
	lru     *cache.LRU
	newID   util.IDGenerator
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group
}

type Option func(*Store)

func WithCache(c *cache.LRU) Option {
	return func(s *Store) { s.lru = c }
}
func WithIDGenerator(g util.IDGenerator) Option {
	return func(s *Store) { s.newID = g }
}

// WithTimeout bounds each backend call independently of the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(kv KV, host string, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		host:    host,
		newID:   util.NewID,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Host() string { return s.host }

// URL is the shareable link for a published identifier.
func (s *Store) URL(id string) string {
	return s.host + refPath + id
}

// Publish stores encoded under a fresh identifier. On backend failure the
// returned Handle still carries the identifier that was attempted.
func (s *Store) Publish(ctx context.Context, encoded, expiresAt string) (Handle, error) {
	id, err := s.newID()
	if err != nil {
		return Handle{}, unavailable(errors.Wrap(err, "generate id"))
	}
	h := Handle{ID: id, URL: s.URL(id)}
	ttl := s.ttl(expiresAt)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.kv.Put(ctx, id, encoded, ttl); err != nil {
		return h, unavailable(errors.Wrapf(err, "put %s", id))
	}
	if s.lru != nil {
		s.lru.Set(id, encoded, ttl)
	}
	return h, nil
}

// Resolve returns the encoded paste stored under id. Concurrent lookups of
// the same id share one backend call.
func (s *Store) Resolve(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", domain.ErrPasteNotFound
	}
	if s.lru != nil {
		if v, ok := s.lru.Get(ctx, id); ok {
			metrics.CacheHits.Inc()
			return v, nil
		}
		metrics.CacheMisses.Inc()
	}
	ch := s.group.DoChan(id, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.kv.Get(fetchCtx, id)
	})
	select {
	case <-ctx.Done():
		return "", unavailable(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, domain.ErrPasteNotFound) {
				return "", res.Err
			}
			return "", unavailable(errors.Wrapf(res.Err, "get %s", id))
		}
		v := res.Val.(string)
		s.fill(id, v)
		return v, nil
	}
}

// fill caches a resolved transport until its own expiry. Transports that do
// not decode, or are already past expiry, are not cached.
func (s *Store) fill(id, encoded string) {
	if s.lru == nil {
		return
	}
	p, err := codec.DecodeTransport(encoded)
	if err != nil {
		return
	}
	ttl := time.Duration(0)
	if t, ok := p.ExpiryTime(); ok {
		if ttl = t.Sub(s.now()); ttl <= 0 {
			return
		}
	}
	s.lru.Set(id, encoded, ttl)
}

// ttl derives a backend expiry from an ISO-8601 expiresAt. The never-expires
// sentinel and unparseable values map to zero, meaning no expiry.
func (s *Store) ttl(expiresAt string) time.Duration {
	p := domain.Paste{ExpiresAt: expiresAt}
	t, ok := p.ExpiryTime()
	if !ok {
		return 0
	}
	d := t.Sub(s.now())
	if d < time.Second {
		return time.Second
	}
	return d
}

func unavailable(cause error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, cause)
}

type RefKind int

const (
	RefTransport RefKind = iota
	RefID
)

// Ref is a classified user-supplied paste reference.
type Ref struct {
	Kind  RefKind
	Value string
}

// ParseRef accepts a bare identifier, a host+"pst/"+id link, a host+transport
// link or a raw transport string.
func ParseRef(host, ref string) Ref {
	ref = strings.TrimSpace(ref)
	if host != "" && strings.HasPrefix(ref, host) {
		rest := strings.TrimPrefix(ref, host)
		if strings.HasPrefix(rest, refPath) {
			return Ref{Kind: RefID, Value: strings.Trim(strings.TrimPrefix(rest, refPath), "/")}
		}
		return Ref{Kind: RefTransport, Value: rest}
	}
	if util.ValidID(ref) {
		return Ref{Kind: RefID, Value: ref}
	}
	return Ref{Kind: RefTransport, Value: ref}
}
