package model

import (
	"time"
)

// Handoff statuses. Transitions are monotonic:
// created -> redirected -> {completed | abandoned}, with a time based
// created|redirected -> expired transition applied lazily at read time.
const (
	HandoffStatusCreated    = "created"
	HandoffStatusRedirected = "redirected"
	HandoffStatusCompleted  = "completed"
	HandoffStatusAbandoned  = "abandoned"
	HandoffStatusExpired    = "expired"
)

// Handoff bridges an on-site visitor to an off-site enrollment system.
// The token is embedded in the outbound redirect URL and is single-use
// for completion. The attribution columns snapshot the visitor's UTM
// state at issuance and are immutable after creation.
type Handoff struct {
	Token      string `gorm:"primary_key:true;type:varchar(64)" json:"token"`
	InstanceID int64  `json:"instance_id"`
	VisitorID  string `json:"visitor_id"`

	DestinationURL string `gorm:"type:varchar(2048)" json:"destination_url"`
	Status         string `gorm:"type:varchar(16)" json:"status"`

	// Filled on completion by the external system or the importer.
	AccountNumber *string `gorm:"type:varchar(128);default:null" json:"account_number"`

	AttrSource   string `gorm:"type:varchar(255);default:null" json:"attr_source"`
	AttrMedium   string `gorm:"type:varchar(255);default:null" json:"attr_medium"`
	AttrCampaign string `gorm:"type:varchar(255);default:null" json:"attr_campaign"`

	// unix epoch timestamps in seconds.
	CreatedTimestamp   int64     `json:"created_timestamp"`
	CompletedTimestamp *int64    `gorm:"default:null" json:"completed_timestamp"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func IsTerminalHandoffStatus(status string) bool {
	return status == HandoffStatusCompleted ||
		status == HandoffStatusAbandoned ||
		status == HandoffStatusExpired
}

// EffectiveStatus maps a non-terminal handoff older than the TTL to
// expired without a background sweep. Readers must use this instead of
// the raw status column.
func (h *Handoff) EffectiveStatus(nowUnix int64, ttlSeconds int64) string {
	if IsTerminalHandoffStatus(h.Status) {
		return h.Status
	}
	if ttlSeconds > 0 && nowUnix-h.CreatedTimestamp > ttlSeconds {
		return HandoffStatusExpired
	}
	return h.Status
}

// HandoffStats is the status aggregate reported over a date range.
type HandoffStats struct {
	Total              int64   `json:"total"`
	Created            int64   `json:"created"`
	Redirected         int64   `json:"redirected"`
	Completed          int64   `json:"completed"`
	Abandoned          int64   `json:"abandoned"`
	Expired            int64   `json:"expired"`
	CompletionRate     float64 `json:"completion_rate"`
	AvgHoursToComplete float64 `json:"avg_hours_to_complete"`
}
