package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrNotFound                = errors.New("not found")
	ErrEmptyPool               = errors.New("credential pool is empty")
	ErrAllCredentialsExhausted = errors.New("all credentials exhausted")
	ErrPrimaryUnavailable      = errors.New("primary backend unavailable")
	ErrNoBackend               = errors.New("no backend available")
	ErrUpstreamRateLimit       = errors.New("upstream rate limit")
	ErrUpstreamTimeout         = errors.New("upstream timeout")
)

// ErrorKind classifies a backend failure. Adapters assign it; the router only reads it.
type ErrorKind int

const (
	KindFatal ErrorKind = iota
	KindTransient
	KindQuota
	KindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindQuota:
		return "quota"
	case KindAuth:
		return "auth"
	default:
		return "fatal"
	}
}

// BackendError is the classified error returned by every backend client adapter.
type BackendError struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Err      error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is lets classified failures match the upstream sentinels.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrUpstreamRateLimit:
		return e.Kind == KindQuota
	case ErrUpstreamTimeout:
		return e.Status == http.StatusRequestTimeout || e.Status == http.StatusGatewayTimeout ||
			errors.Is(e.Err, context.DeadlineExceeded)
	}
	return false
}

// KindOf extracts the classification of err. Unclassified errors are fatal.
func KindOf(err error) ErrorKind {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindFatal
}

// IsRotatable reports whether err justifies switching to the next credential.
func IsRotatable(err error) bool {
	k := KindOf(err)
	return k == KindQuota || k == KindAuth
}

// KindFromStatus maps an HTTP status to an error kind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return KindQuota
	case status == 401 || status == 403:
		return KindAuth
	case status == 408 || status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}
