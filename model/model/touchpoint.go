package model

import (
	"time"
)

// Touchpoint types. A form_complete touch is a conversion.
const (
	TouchpointTypePageView     = "page_view"
	TouchpointTypeFormStep     = "form_step"
	TouchpointTypeFormComplete = "form_complete"
	TouchpointTypeHandoff      = "handoff"
)

// Key used in attribution buckets for conversions that carry no
// preceding touchpoints, e.g. an external completion matched on account
// number alone with no on-site history.
const NoTouchpointsKey = "(no touchpoints)"

// Direct traffic key for touches without campaign parameters.
const NoneKey = "$none"

// Touchpoint is a single tracked event owned by exactly one visitor.
// Rows are append-only and immutable once written.
type Touchpoint struct {
	ID string `gorm:"primary_key:true;type:varchar(64)" json:"id"`
	// Monotonic insertion sequence. Tie breaker for touches sharing a
	// timestamp within a visitor+instance pair.
	Seq        uint64 `gorm:"auto_increment;unique_index" json:"seq"`
	InstanceID int64  `json:"instance_id"`
	VisitorID  string `json:"visitor_id"`
	Type       string `gorm:"type:varchar(32)" json:"type"`

	UTMSource   string `gorm:"type:varchar(255);default:null" json:"utm_source"`
	UTMMedium   string `gorm:"type:varchar(255);default:null" json:"utm_medium"`
	UTMCampaign string `gorm:"type:varchar(255);default:null" json:"utm_campaign"`

	PageURL  string `gorm:"type:varchar(2048);default:null" json:"page_url"`
	StepName string `gorm:"type:varchar(255);default:null" json:"step_name"`

	DeviceBrowser string `gorm:"type:varchar(64);default:null" json:"device_browser"`
	DeviceOS      string `gorm:"type:varchar(64);default:null" json:"device_os"`

	// Set for handoff touches and for conversions reconciled through a
	// handoff token.
	HandoffToken *string `gorm:"type:varchar(64);default:null" json:"handoff_token"`

	// unix epoch timestamp in seconds.
	Timestamp int64     `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

func (tp *Touchpoint) IsConversion() bool {
	return tp.Type == TouchpointTypeFormComplete
}

// SourceKey returns the bucket key for by_source rollups.
func (tp *Touchpoint) SourceKey() string {
	if tp.UTMSource == "" {
		return NoneKey
	}
	return tp.UTMSource
}

func (tp *Touchpoint) MediumKey() string {
	if tp.UTMMedium == "" {
		return NoneKey
	}
	return tp.UTMMedium
}

func (tp *Touchpoint) CampaignKey() string {
	if tp.UTMCampaign == "" {
		return NoneKey
	}
	return tp.UTMCampaign
}
