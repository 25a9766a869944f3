package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/yuanning6/etl-off-sqs/internal/domain"
)

// DeriveKey returns the natural key of a login event: hex SHA-256 over every
// raw field. Queue message ids are not part of it, so a producer re-sending
// the same event maps to the same row. The key is fixed length and never
// holds raw PII.
func DeriveKey(ev domain.RawLoginEvent) string {
	composite := strings.Join([]string{
		deref(ev.UserID), deref(ev.DeviceType), deref(ev.IP),
		deref(ev.DeviceID), deref(ev.Locale), deref(ev.AppVersion),
	}, "\x1f")
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
