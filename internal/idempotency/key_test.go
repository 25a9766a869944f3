package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanning6/etl-off-sqs/internal/domain"
)

func event(t *testing.T, body string) domain.RawLoginEvent {
	t.Helper()
	ev, err := domain.ParseLoginEvent(body)
	require.NoError(t, err)
	return ev
}

const body = `{"user_id":"u1","device_type":"ios","ip":"1.2.3.4","device_id":"d1","locale":"en-US","app_version":"2.10.1"}`

func TestDeriveKeyStable(t *testing.T) {
	k1 := DeriveKey(event(t, body))
	assert.Len(t, k1, 64)
	assert.Equal(t, k1, DeriveKey(event(t, body)))
	assert.NotContains(t, k1, "1.2.3.4")
}

func TestDeriveKeyIgnoresFieldOrder(t *testing.T) {
	reordered := `{"app_version":"2.10.1","locale":"en-US","device_id":"d1","ip":"1.2.3.4","device_type":"ios","user_id":"u1"}`
	assert.Equal(t, DeriveKey(event(t, body)), DeriveKey(event(t, reordered)))
}

func TestDeriveKeyDistinguishesFields(t *testing.T) {
	k := DeriveKey(event(t, body))
	other := event(t, `{"user_id":"u1","device_type":"ios","ip":"1.2.3.5","device_id":"d1","locale":"en-US","app_version":"2.10.1"}`)
	assert.NotEqual(t, k, DeriveKey(other))

	// field boundaries matter: "ab"+"c" must not equal "a"+"bc"
	a := event(t, `{"user_id":"ab","device_type":"c","ip":"","device_id":"","locale":"","app_version":"1"}`)
	b := event(t, `{"user_id":"a","device_type":"bc","ip":"","device_id":"","locale":"","app_version":"1"}`)
	assert.NotEqual(t, DeriveKey(a), DeriveKey(b))
}
