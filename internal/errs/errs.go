// Package errs holds the failure taxonomy shared by the pipeline stages.
// Call sites wrap these with context; classify with errors.Is.
package errs

import (
	"github.com/pkg/errors"
)

var (
	ErrMalformedMessage  = errors.New("malformed message")
	ErrMalformedVersion  = errors.New("malformed version")
	ErrVersionOutOfRange = errors.New("version part out of range")
	ErrWrite             = errors.New("write failed")
	ErrTransport         = errors.New("queue transport failure")
)

// Reason returns a short label for logs and stats.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, ErrVersionOutOfRange):
		return "version_out_of_range"
	case errors.Is(err, ErrMalformedVersion):
		return "malformed_version"
	case errors.Is(err, ErrWrite):
		return "write_error"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	default:
		return "unknown"
	}
}
