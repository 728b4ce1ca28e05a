package util

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// IDGenerator produces store keys. Implementations must be uniform random
// with negligible collision probability.
type IDGenerator func() (string, error)

// NewID returns a version 4 UUID: 122 random bits.
func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "rand fail")
	}
	return id.String(), nil
}

// ValidID reports whether s looks like an identifier NewID could return.
func ValidID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
