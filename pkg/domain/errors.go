package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrConfiguration     = NewErr("CONFIGURATION_ERROR", "invalid paste configuration", http.StatusBadRequest)
	ErrDecode            = NewErr("DECODE_ERROR", "malformed paste", http.StatusBadRequest)
	ErrAuthentication    = NewErr("PASSWORD_REQUIRED", "password required", http.StatusUnauthorized)
	ErrDecrypt           = NewErr("DECRYPT_FAILED", "decryption failed", http.StatusUnauthorized)
	ErrSignatureMismatch = NewErr("SIGNATURE_MISMATCH", "signature mismatch", http.StatusUnprocessableEntity)
	ErrPasteNotFound     = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrStoreUnavailable  = NewErr("STORE_UNAVAILABLE", "paste store unavailable", http.StatusServiceUnavailable)
	ErrPasteTooLarge     = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusBadRequest)
	ErrInvalidRequest    = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrContentRequired   = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrRateLimitExceeded = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrInternalServer    = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code string                 `json:"code"`
	Msg  string                 `json:"message"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// Kind returns the taxonomy entry at the root of err, or nil.
func Kind(err error) *Err {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Err); ok {
		return e
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e
	}
	var e *Err
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Code is the stable error code for err, INTERNAL_ERROR when unclassified.
func Code(err error) string {
	if e := Kind(err); e != nil {
		return e.Code
	}
	return ErrInternalServer.Code
}

func ToResp(err error) ErrResp {
	if e := Kind(err); e != nil {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}
func Status(err error) int {
	if e := Kind(err); e != nil {
		return e.Status
	}
	return http.StatusInternalServerError
}
