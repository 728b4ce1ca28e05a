// Package codec builds, signs, serializes and opens paste records.
//
// A transport string is base64(JSON) of the record; the JSON is written in a
// fixed canonical form so signatures computed by other clients verify here.
// A Codec holds no mutable state and is safe for concurrent use.
package codec

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"time"

	"cipherpaste/pkg/domain"

	"github.com/pkg/errors"
)

type Codec struct {
	keys KeySchedule
	now  func() time.Time
	rand io.Reader
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithRandom sets the IV source. Tests use it for fixed vectors.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) { c.rand = r }
}

func WithKeySchedule(ks KeySchedule) Option {
	return func(c *Codec) { c.keys = ks }
}

func New(opts ...Option) *Codec {
	c := &Codec{
		keys: LegacyKeys{},
		now:  time.Now,
		rand: rand.Reader,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Default uses the legacy key schedule so existing links keep verifying.
var Default = New()

func (c *Codec) KeySchedule() KeySchedule { return c.keys }

type Options struct {
	Public    bool
	Password  string
	ExpiresAt string
	Syntax    string
}

// Construct encodes or encrypts plaintext, fills the metadata and signs the
// result. Private pastes require a password.
func (c *Codec) Construct(plaintext string, opts Options) (*domain.Paste, error) {
	if !opts.Public && opts.Password == "" {
		return nil, errors.Wrap(domain.ErrConfiguration, "password required for private paste")
	}
	expiresAt := opts.ExpiresAt
	if expiresAt == "" {
		expiresAt = domain.NeverExpires
	}
	if _, err := domain.ParseExpiry(expiresAt); err != nil {
		return nil, errors.Wrapf(domain.ErrConfiguration, "expiresAt %q is not an ISO-8601 timestamp", expiresAt)
	}
	syntax := opts.Syntax
	if syntax == "" {
		syntax = domain.DefaultSyntax
	}

	encKey, macKey, err := signingKey(c.keys, opts.Public, opts.Password)
	if err != nil {
		return nil, errors.Wrap(err, "derive keys")
	}
	if !opts.Public {
		defer wipe(encKey)
		defer wipe(macKey)
	}

	var content string
	if opts.Public {
		content = base64.StdEncoding.EncodeToString([]byte(plaintext))
	} else {
		pt := []byte(plaintext)
		sealed, err := cbcSeal(pt, encKey, c.rand)
		wipe(pt)
		if err != nil {
			return nil, errors.Wrap(err, "encrypt content")
		}
		content = base64.StdEncoding.EncodeToString(sealed)
	}

	p := &domain.Paste{
		Content:   content,
		CreatedAt: c.now().UTC().Format(domain.TimeLayout),
		ExpiresAt: expiresAt,
		IsPublic:  opts.Public,
		Syntax:    syntax,
	}
	p.Signature = sign(p, macKey)
	return p, nil
}

// Sign returns the signature p should carry under the given password.
func (c *Codec) Sign(p *domain.Paste, password string) (string, error) {
	if !p.IsPublic && password == "" {
		return "", domain.ErrAuthentication
	}
	encKey, macKey, err := signingKey(c.keys, p.IsPublic, password)
	if err != nil {
		return "", errors.Wrap(err, "derive keys")
	}
	if !p.IsPublic {
		wipe(encKey)
		defer wipe(macKey)
	}
	return sign(p, macKey), nil
}

// Verify checks the stored signature without decrypting.
func (c *Codec) Verify(p *domain.Paste, password string) error {
	if !p.IsPublic && password == "" {
		return domain.ErrAuthentication
	}
	encKey, macKey, err := signingKey(c.keys, p.IsPublic, password)
	if err != nil {
		return errors.Wrap(err, "derive keys")
	}
	if !p.IsPublic {
		wipe(encKey)
		defer wipe(macKey)
	}
	return verify(p, macKey)
}

// VerifyAndDecrypt authenticates p and returns its plaintext. The signature
// check always runs first; padding errors only surface for records whose
// signature is valid.
func (c *Codec) VerifyAndDecrypt(p *domain.Paste, password string) (string, error) {
	if p.IsPublic {
		if err := verify(p, []byte(domain.PublicSigningKey)); err != nil {
			return "", err
		}
		raw, err := base64.StdEncoding.DecodeString(p.Content)
		if err != nil {
			return "", errors.Wrapf(domain.ErrDecode, "content: %v", err)
		}
		return string(raw), nil
	}

	if password == "" {
		return "", domain.ErrAuthentication
	}
	encKey, macKey, err := signingKey(c.keys, false, password)
	if err != nil {
		return "", errors.Wrap(err, "derive keys")
	}
	defer wipe(encKey)
	defer wipe(macKey)

	if err := verify(p, macKey); err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(p.Content)
	if err != nil {
		return "", errors.Wrapf(domain.ErrDecrypt, "content: %v", err)
	}
	plain, err := cbcOpen(sealed, encKey)
	if err != nil {
		return "", errors.Wrapf(domain.ErrDecrypt, "%v", err)
	}
	return string(plain), nil
}

// EncodeTransport serializes the full record and base64-encodes it.
func (c *Codec) EncodeTransport(p *domain.Paste) string {
	return base64.StdEncoding.EncodeToString([]byte(canonical(p, true)))
}

// wireFields mirrors domain.Paste with pointers so missing members are caught.
type wireFields struct {
	Content   *string `json:"content"`
	CreatedAt *string `json:"createdAt"`
	ExpiresAt *string `json:"expiresAt"`
	IsPublic  *bool   `json:"isPublic"`
	Syntax    *string `json:"syntax"`
	Signature *string `json:"signature"`
}

var wireKeys = map[string]bool{
	"content": true, "createdAt": true, "expiresAt": true,
	"isPublic": true, "syntax": true, "signature": true,
}

// DecodeTransport parses a transport string. It does not verify anything.
func (c *Codec) DecodeTransport(s string) (*domain.Paste, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(domain.ErrDecode, "base64: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var w wireFields
	if err := dec.Decode(&w); err != nil {
		return nil, errors.Wrapf(domain.ErrDecode, "json: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Wrap(domain.ErrDecode, "trailing data after record")
	}
	// encoding/json folds key case; the signed form does not.
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, errors.Wrapf(domain.ErrDecode, "json: %v", err)
	}
	for k := range members {
		if !wireKeys[k] {
			return nil, errors.Wrapf(domain.ErrDecode, "unexpected member %q", k)
		}
	}
	switch {
	case w.Content == nil:
		return nil, errors.Wrap(domain.ErrDecode, "missing content")
	case w.CreatedAt == nil:
		return nil, errors.Wrap(domain.ErrDecode, "missing createdAt")
	case w.ExpiresAt == nil:
		return nil, errors.Wrap(domain.ErrDecode, "missing expiresAt")
	case w.IsPublic == nil:
		return nil, errors.Wrap(domain.ErrDecode, "missing isPublic")
	case w.Syntax == nil:
		return nil, errors.Wrap(domain.ErrDecode, "missing syntax")
	case w.Signature == nil:
		return nil, errors.Wrap(domain.ErrDecode, "missing signature")
	}
	return &domain.Paste{
		Content:   *w.Content,
		CreatedAt: *w.CreatedAt,
		ExpiresAt: *w.ExpiresAt,
		IsPublic:  *w.IsPublic,
		Syntax:    *w.Syntax,
		Signature: *w.Signature,
	}, nil
}

// Open decodes, verifies and decrypts a transport string in one step.
func (c *Codec) Open(transport, password string) (string, *domain.Paste, error) {
	p, err := c.DecodeTransport(transport)
	if err != nil {
		return "", nil, err
	}
	plain, err := c.VerifyAndDecrypt(p, password)
	if err != nil {
		return "", p, err
	}
	return plain, p, nil
}

func sign(p *domain.Paste, macKey []byte) string {
	return base64.StdEncoding.EncodeToString(mac(p, macKey))
}

func mac(p *domain.Paste, macKey []byte) []byte {
	h := hmac.New(sha256.New, macKey)
	h.Write([]byte(canonical(p, false)))
	return h.Sum(nil)
}

func verify(p *domain.Paste, macKey []byte) error {
	got, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return errors.Wrap(domain.ErrSignatureMismatch, "signature is not base64")
	}
	if !hmac.Equal(got, mac(p, macKey)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}

func Construct(plaintext string, opts Options) (*domain.Paste, error) {
	return Default.Construct(plaintext, opts)
}
func EncodeTransport(p *domain.Paste) string { return Default.EncodeTransport(p) }
func DecodeTransport(s string) (*domain.Paste, error) {
	return Default.DecodeTransport(s)
}
func VerifyAndDecrypt(p *domain.Paste, password string) (string, error) {
	return Default.VerifyAndDecrypt(p, password)
}
func Open(transport, password string) (string, *domain.Paste, error) {
	return Default.Open(transport, password)
}
