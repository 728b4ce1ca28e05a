package domain

import (
	"time"
)

const (
	// NeverExpires is the expiry sentinel written when the caller gives none.
	NeverExpires  = "9999-12-31T23:59:59Z"
	DefaultSyntax = "plaintext"
	// PublicSigningKey signs public pastes. It is not a secret.
	PublicSigningKey = "public-secret"
	// TimeLayout is the createdAt format: UTC, millisecond precision.
	TimeLayout = "2006-01-02T15:04:05.000Z"
)

// Paste is the signed record exchanged between clients. Every field is kept
// exactly as serialized so the signature can be recomputed over the same bytes.
type Paste struct {
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt"`
	IsPublic  bool   `json:"isPublic"`
	Syntax    string `json:"syntax"`
	Signature string `json:"signature"`
}

// Expired reports advisory expiry. Nothing in the codec enforces it.
func (p *Paste) Expired(now time.Time) bool {
	if p.ExpiresAt == "" || p.ExpiresAt == NeverExpires {
		return false
	}
	t, ok := p.ExpiryTime()
	return ok && now.After(t)
}

// ExpiryTime returns the parsed expiry, or false for the sentinel and for
// values that do not parse.
func (p *Paste) ExpiryTime() (time.Time, bool) {
	if p.ExpiresAt == "" || p.ExpiresAt == NeverExpires {
		return time.Time{}, false
	}
	t, err := ParseExpiry(p.ExpiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseExpiry accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date, which
// is read as midnight UTC.
func ParseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

type CreateParams struct {
	Content   string
	Public    bool
	Password  string
	ExpiresAt string
	Syntax    string
	Publish   bool
}
