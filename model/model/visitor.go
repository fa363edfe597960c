package model

import (
	"time"
)

// Visitor is a de-duplicated browsing identity, keyed by a cookie or
// fingerprint derived opaque id generated by the tracking client.
type Visitor struct {
	// Composite primary key with instance_id.
	ID         string `gorm:"primary_key:true;type:varchar(64)" json:"id"`
	InstanceID int64  `gorm:"primary_key:true" json:"instance_id"`
	// unix epoch timestamps in seconds.
	FirstSeenAt int64 `json:"first_seen_at"`
	LastSeenAt  int64 `json:"last_seen_at"`
	// Email provided by an identify call or a form step. Used by the
	// completion matcher as fuzzy match metadata.
	CustomerEmail string    `gorm:"type:varchar(255);default:null" json:"customer_email"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
