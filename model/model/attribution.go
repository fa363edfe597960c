package model

import (
	"fmt"
)

// Attribution models.
const (
	AttributionMethodFirstTouch    = "first_touch"
	AttributionMethodLastTouch     = "last_touch"
	AttributionMethodLinear        = "linear"
	AttributionMethodTimeDecay     = "time_decay"
	AttributionMethodPositionBased = "position_based"
)

// Time-to-conversion buckets, measured from the visitor's first_seen_at
// to the conversion timestamp.
const (
	TTCBucketSameSession = "same_session"
	TTCBucketSameDay     = "same_day"
	TTCBucketWithinWeek  = "within_week"
	TTCBucketWithinMonth = "within_month"
	TTCBucketOverMonth   = "over_month"
)

// AttributionQuery selects conversions between inclusive calendar dates,
// interpreted midnight-to-midnight in Timezone (UTC when empty).
type AttributionQuery struct {
	InstanceID int64  `json:"instance_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Timezone   string `json:"timezone"`
	Model      string `json:"model"`
}

func IsValidAttributionMethod(method string) bool {
	switch method {
	case AttributionMethodFirstTouch, AttributionMethodLastTouch,
		AttributionMethodLinear, AttributionMethodTimeDecay,
		AttributionMethodPositionBased:
		return true
	}
	return false
}

func (q *AttributionQuery) Validate() error {
	if q.InstanceID == 0 {
		return fmt.Errorf("invalid instance id")
	}
	if !IsValidAttributionMethod(q.Model) {
		return fmt.Errorf("invalid attribution model %s", q.Model)
	}
	if q.From == "" || q.To == "" {
		return fmt.Errorf("missing date range")
	}
	return nil
}

// ChannelPerformance reports one distinct (source, medium) pair.
// Conversions carries weighted credit under the selected model.
type ChannelPerformance struct {
	Source         string  `json:"source"`
	Medium         string  `json:"medium"`
	UniqueVisitors int64   `json:"unique_visitors"`
	Conversions    float64 `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

type TimeToConversionReport struct {
	Buckets   map[string]int64 `json:"buckets"`
	MeanHours float64          `json:"mean_hours"`
}

type TouchpointReport struct {
	Distribution    map[string]int64 `json:"distribution"`
	MeanTouchpoints float64          `json:"mean_touchpoints"`
}

// AttributionResult is the presentation contract. Every key is present
// even on empty input so renderers need no null checks.
type AttributionResult struct {
	Model            string                 `json:"model"`
	TotalConversions int64                  `json:"total_conversions"`
	BySource         map[string]float64     `json:"by_source"`
	ByMedium         map[string]float64     `json:"by_medium"`
	ByCampaign       map[string]float64     `json:"by_campaign"`
	Channels         []ChannelPerformance   `json:"channels"`
	TimeToConversion TimeToConversionReport `json:"time_to_conversion"`
	Touchpoints      TouchpointReport       `json:"touchpoint_analysis"`
}

// NewAttributionResult returns a zero-valued result with all buckets
// present.
func NewAttributionResult(method string) *AttributionResult {
	return &AttributionResult{
		Model:      method,
		BySource:   make(map[string]float64),
		ByMedium:   make(map[string]float64),
		ByCampaign: make(map[string]float64),
		Channels:   make([]ChannelPerformance, 0),
		TimeToConversion: TimeToConversionReport{
			Buckets: map[string]int64{
				TTCBucketSameSession: 0,
				TTCBucketSameDay:     0,
				TTCBucketWithinWeek:  0,
				TTCBucketWithinMonth: 0,
				TTCBucketOverMonth:   0,
			},
		},
		Touchpoints: TouchpointReport{
			Distribution: make(map[string]int64),
		},
	}
}

// TimeToConversionBucket buckets fractional hours from first seen to
// conversion. Boundaries are half-open: 45 minutes is same_session,
// not same_day.
func TimeToConversionBucket(hours float64) string {
	switch {
	case hours < 1:
		return TTCBucketSameSession
	case hours < 24:
		return TTCBucketSameDay
	case hours < 24*7:
		return TTCBucketWithinWeek
	case hours < 24*30:
		return TTCBucketWithinMonth
	default:
		return TTCBucketOverMonth
	}
}

// TouchpointCountBucket buckets a conversion path length as 1, 2, 3 or 4+.
func TouchpointCountBucket(count int) string {
	if count >= 4 {
		return "4+"
	}
	return fmt.Sprintf("%d", count)
}
