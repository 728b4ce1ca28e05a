package svc

import (
	"context"
	"time"

	"cipherpaste/cfg"
	"cipherpaste/metrics"
	"cipherpaste/pkg/codec"
	"cipherpaste/pkg/domain"
	"cipherpaste/svc/store"
	"cipherpaste/svc/util"

	"github.com/pkg/errors"
)

// Store is the subset of store.Store the service needs.
type Store interface {
	Publish(ctx context.Context, encoded, expiresAt string) (store.Handle, error)
	Resolve(ctx context.Context, id string) (string, error)
}

type Paste struct {
	codec            *codec.Codec
	store            Store
	host             string
	defaultExpiresAt string
	defaultSyntax    string
	maxSize          int64
	now              func() time.Time
}

// Created is the result of Create. URL embeds the transport directly;
// ShareURL is only set when the paste was also published.
type Created struct {
	Paste      *domain.Paste
	Transport  string
	URL        string
	ID         string
	ShareURL   string
	PublishErr error
}

type Opened struct {
	Plaintext string
	Paste     *domain.Paste
	Expired   bool
}

// NewPaste wires the codec to an optional store. A nil store disables
// publishing and identifier lookups.
func NewPaste(c *codec.Codec, st Store, conf *cfg.Cfg) *Paste {
	if c == nil || conf == nil {
		panic("paste service: nil dependency (codec or cfg)")
	}
	return &Paste{
		codec:            c,
		store:            st,
		host:             conf.Host,
		defaultExpiresAt: conf.DefaultExpiresAt,
		defaultSyntax:    conf.DefaultSyntax,
		maxSize:          conf.MaxPasteSize,
		now:              time.Now,
	}
}

func (p *Paste) Host() string { return p.host }

func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*Created, error) {
	if params.Content == "" {
		return nil, domain.ErrContentRequired
	}
	if p.maxSize > 0 && int64(len(params.Content)) > p.maxSize {
		return nil, domain.ErrPasteTooLarge
	}
	if params.Public && params.Password != "" {
		util.Warn().
			Str("request_id", util.GetRequestID(ctx)).
			Msg("password ignored for public paste")
	}
	expiresAt := params.ExpiresAt
	if expiresAt == "" {
		expiresAt = p.defaultExpiresAt
	}
	syntax := params.Syntax
	if syntax == "" {
		syntax = p.defaultSyntax
	}
	paste, err := p.codec.Construct(params.Content, codec.Options{
		Public:    params.Public,
		Password:  params.Password,
		ExpiresAt: expiresAt,
		Syntax:    syntax,
	})
	if err != nil {
		return nil, err
	}
	metrics.PasteConstructed.WithLabelValues(metrics.Visibility(paste.IsPublic)).Inc()
	transport := p.codec.EncodeTransport(paste)
	out := &Created{
		Paste:     paste,
		Transport: transport,
		URL:       p.host + transport,
	}
	if !params.Publish {
		return out, nil
	}
	if p.store == nil {
		out.PublishErr = errors.Wrap(domain.ErrStoreUnavailable, "no paste store configured")
		metrics.PublishFailures.Inc()
		return out, nil
	}
	h, err := p.store.Publish(ctx, transport, paste.ExpiresAt)
	out.ID = h.ID
	if err != nil {
		out.PublishErr = err
		metrics.PublishFailures.Inc()
		util.Warn().
			Err(err).
			Str("request_id", util.GetRequestID(ctx)).
			Str("id", h.ID).
			Msg("publish failed, returning direct link only")
		return out, nil
	}
	out.ShareURL = h.URL
	metrics.PastePublished.Inc()
	util.Debug().
		Str("request_id", util.GetRequestID(ctx)).
		Str("id", h.ID).
		Bool("public", paste.IsPublic).
		Msg("paste published")
	return out, nil
}

// Open resolves ref to a transport string when it names a stored paste,
// then verifies and decrypts it. Expiry is reported, not enforced.
func (p *Paste) Open(ctx context.Context, ref, password string) (*Opened, error) {
	r := store.ParseRef(p.host, ref)
	transport := r.Value
	if r.Kind == store.RefID {
		if p.store == nil {
			return nil, errors.Wrap(domain.ErrStoreUnavailable, "no paste store configured")
		}
		var err error
		if transport, err = p.store.Resolve(ctx, r.Value); err != nil {
			return nil, err
		}
	}
	return p.decode(ctx, transport, password)
}

// Raw returns the stored transport string for id without opening it.
func (p *Paste) Raw(ctx context.Context, id string) (string, error) {
	if p.store == nil {
		return "", errors.Wrap(domain.ErrStoreUnavailable, "no paste store configured")
	}
	return p.store.Resolve(ctx, id)
}

// Decode opens a transport string without consulting the store.
func (p *Paste) Decode(ctx context.Context, transport, password string) (*Opened, error) {
	return p.decode(ctx, transport, password)
}

func (p *Paste) decode(ctx context.Context, transport, password string) (*Opened, error) {
	plaintext, paste, err := p.codec.Open(transport, password)
	if err != nil {
		code := domain.Code(err)
		metrics.CodecFailures.WithLabelValues(code).Inc()
		util.Debug().
			Str("request_id", util.GetRequestID(ctx)).
			Str("code", code).
			Str("transport", util.RedactTransport(transport)).
			Msg("paste rejected")
		return nil, err
	}
	metrics.PasteOpened.WithLabelValues(metrics.Visibility(paste.IsPublic)).Inc()
	return &Opened{
		Plaintext: plaintext,
		Paste:     paste,
		Expired:   paste.Expired(p.now()),
	}, nil
}
