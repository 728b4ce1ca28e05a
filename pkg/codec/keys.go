package codec

import (
	"crypto/sha256"
	"io"
	"runtime"

	"cipherpaste/pkg/domain"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

// KeySchedule turns a paste password into the cipher key and the HMAC key.
// Callers own the returned slices and must wipe them.
type KeySchedule interface {
	Name() string
	Keys(password []byte) (encKey, macKey []byte, err error)
}

// LegacyKeys uses SHA-256(password) for both encryption and signing, which is
// what every existing client produces. Reusing one key for AES and HMAC is a
// known weakness of the format; SeparatedKeys is the hardened alternative.
type LegacyKeys struct{}

func (LegacyKeys) Name() string { return "legacy" }

func (LegacyKeys) Keys(password []byte) ([]byte, []byte, error) {
	sum := sha256.Sum256(password)
	enc := make([]byte, keySize)
	mac := make([]byte, keySize)
	copy(enc, sum[:])
	copy(mac, sum[:])
	wipe(sum[:])
	return enc, mac, nil
}

// SeparatedKeys derives independent keys with HKDF-SHA256 and distinct labels.
// Pastes produced with it cannot be read by legacy clients.
type SeparatedKeys struct {
	Salt []byte
}

const (
	encLabel = "cipherpaste enc v1"
	macLabel = "cipherpaste mac v1"
)

func (SeparatedKeys) Name() string { return "hkdf" }

func (s SeparatedKeys) Keys(password []byte) ([]byte, []byte, error) {
	enc := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, password, s.Salt, []byte(encLabel)), enc); err != nil {
		return nil, nil, err
	}
	mac := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, password, s.Salt, []byte(macLabel)), mac); err != nil {
		wipe(enc)
		return nil, nil, err
	}
	return enc, mac, nil
}

// ScheduleByName maps a configuration value to a KeySchedule.
func ScheduleByName(name string) (KeySchedule, bool) {
	switch name {
	case "", "legacy":
		return LegacyKeys{}, true
	case "hkdf":
		return SeparatedKeys{}, true
	}
	return nil, false
}

// signingKey picks the HMAC key: the public constant for public pastes, the
// schedule's MAC key otherwise. The cipher key is nil for public pastes.
func signingKey(ks KeySchedule, public bool, password string) (encKey, macKey []byte, err error) {
	if public {
		return nil, []byte(domain.PublicSigningKey), nil
	}
	pw := []byte(password)
	defer wipe(pw)
	return ks.Keys(pw)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
