package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/yuanning6/etl-off-sqs/internal/errs"
	"github.com/yuanning6/etl-off-sqs/internal/mask"
	"github.com/yuanning6/etl-off-sqs/internal/version"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ParseError lists every invalid field of one message body. It never
// includes field values.
type ParseError struct {
	Fields []FieldError
}

func (e *ParseError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		parts[i] = fe.Error()
	}
	return "malformed message: " + strings.Join(parts, "; ")
}

func (e *ParseError) Unwrap() error { return errs.ErrMalformedMessage }

// ParseLoginEvent decodes body and checks that every field is present.
func ParseLoginEvent(body string) (RawLoginEvent, error) {
	var ev RawLoginEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return ev, errors.Wrapf(errs.ErrMalformedMessage, "decode body: %v", err)
	}
	if fes := ValidateLoginEvent(&ev); len(fes) > 0 {
		return ev, &ParseError{Fields: fes}
	}
	return ev, nil
}

// ValidateLoginEvent reports every field that is absent or null. Values are
// free-form strings and are not otherwise checked.
func ValidateLoginEvent(ev *RawLoginEvent) []FieldError {
	var errs []FieldError

	required := []struct {
		name string
		v    *string
	}{
		{"user_id", ev.UserID},
		{"device_type", ev.DeviceType},
		{"ip", ev.IP},
		{"device_id", ev.DeviceID},
		{"locale", ev.Locale},
		{"app_version", ev.AppVersion},
	}
	for _, r := range required {
		if r.v == nil {
			errs = append(errs, FieldError{r.name, "required"})
		}
	}
	return errs
}

// SanitizeOptions controls the transform step.
type SanitizeOptions struct {
	// StrictVersion rejects version parts that would overflow their field
	// instead of packing them as-is.
	StrictVersion bool
}

// Sanitize builds the persisted record. ev must have passed ParseLoginEvent.
func Sanitize(ev RawLoginEvent, key string, now time.Time, opts SanitizeOptions) (SanitizedLoginRecord, error) {
	if opts.StrictVersion {
		if err := version.Strict(*ev.AppVersion); err != nil {
			return SanitizedLoginRecord{}, errors.Wrap(err, "app_version")
		}
	}
	packed, err := version.Encode(*ev.AppVersion)
	if err != nil {
		return SanitizedLoginRecord{}, errors.Wrap(err, "app_version")
	}
	return SanitizedLoginRecord{
		EventKey:       key,
		UserID:         *ev.UserID,
		DeviceType:     *ev.DeviceType,
		MaskedIP:       mask.Value(*ev.IP),
		MaskedDeviceID: mask.Value(*ev.DeviceID),
		Locale:         *ev.Locale,
		AppVersion:     packed,
		CreatedAt:      now,
	}, nil
}
