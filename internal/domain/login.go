package domain

import "time"

// RawLoginEvent is the untrusted payload carried by one queue message.
// Fields are pointers so a missing key can be told apart from an empty value.
type RawLoginEvent struct {
	UserID     *string `json:"user_id"`
	DeviceType *string `json:"device_type"`
	IP         *string `json:"ip"`
	DeviceID   *string `json:"device_id"`
	Locale     *string `json:"locale"`
	AppVersion *string `json:"app_version"`
}

// SanitizedLoginRecord is the row written to user_logins. IP and device id
// exist only as digests.
type SanitizedLoginRecord struct {
	EventKey       string
	UserID         string
	DeviceType     string
	MaskedIP       string
	MaskedDeviceID string
	Locale         string
	AppVersion     uint32
	CreatedAt      time.Time
}

// QueueMessage is one received message. Handle is what the queue needs to
// delete it; ID may be empty when the queue does not report one.
type QueueMessage struct {
	ID           string
	Handle       string
	Body         string
	ReceiveCount int
}
