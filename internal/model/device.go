package model

import "time"

// Device is a registered push target for a user. Delivery to offline
// participants goes through the push dispatcher, not this core.
type Device struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"userId"`
	PushToken  string         `db:"push_token" json:"pushToken"`
	Platform   DevicePlatform `db:"platform" json:"platform"`
	LastSeenAt time.Time      `db:"last_seen_at" json:"lastSeenAt"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

type UpsertDeviceParams struct {
	UserID    string
	PushToken string
	Platform  DevicePlatform
}
