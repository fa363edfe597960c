package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"enrolltrack/model/model"
	"enrolltrack/model/store/memstore"
)

const testInstanceID = int64(1)

func unixAt(day, hour, minute int) int64 {
	return time.Date(2026, 1, day, hour, minute, 0, 0, time.UTC).Unix()
}

func januaryQuery(method string) *model.AttributionQuery {
	return &model.AttributionQuery{
		InstanceID: testInstanceID,
		From:       "2026-01-01",
		To:         "2026-01-31",
		Model:      method,
	}
}

func seedVisitor(s *memstore.MemStore, visitorID string, firstSeen int64) {
	s.CreateOrUpdateVisitor(&model.Visitor{
		ID:          visitorID,
		InstanceID:  testInstanceID,
		FirstSeenAt: firstSeen,
		LastSeenAt:  firstSeen,
	})
}

func seedTouch(s *memstore.MemStore, visitorID, touchType, source, medium, campaign string,
	ts int64) {
	s.CreateTouchpoint(&model.Touchpoint{
		InstanceID:  testInstanceID,
		VisitorID:   visitorID,
		Type:        touchType,
		UTMSource:   source,
		UTMMedium:   medium,
		UTMCampaign: campaign,
		Timestamp:   ts,
	})
}

func seedConversion(s *memstore.MemStore, visitorID string, handoffToken string, ts int64) {
	tp := &model.Touchpoint{
		InstanceID: testInstanceID,
		VisitorID:  visitorID,
		Type:       model.TouchpointTypeFormComplete,
		Timestamp:  ts,
	}
	if handoffToken != "" {
		tp.HandoffToken = &handoffToken
	}
	s.CreateTouchpoint(tp)
}

// Visitor arrives via google/cpc, returns via newsletter/email, then
// hands off and completes off-site.
func seedTwoTouchJourney(s *memstore.MemStore) {
	seedVisitor(s, "visitor-1", unixAt(5, 9, 0))
	seedTouch(s, "visitor-1", model.TouchpointTypePageView, "google", "cpc", "fall_2026",
		unixAt(5, 9, 0))
	seedTouch(s, "visitor-1", model.TouchpointTypePageView, "newsletter", "email", "",
		unixAt(7, 10, 0))

	s.CreateHandoff(&model.Handoff{
		Token:            "tok-1",
		InstanceID:       testInstanceID,
		VisitorID:        "visitor-1",
		DestinationURL:   "https://enroll.example.com",
		Status:           model.HandoffStatusCompleted,
		CreatedTimestamp: unixAt(7, 10, 30),
	})
	seedConversion(s, "visitor-1", "tok-1", unixAt(7, 11, 0))
}

func TestAttributionLinearSplitsEvenly(t *testing.T) {
	s := memstore.New()
	seedTwoTouchJourney(s)

	result, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodLinear))
	assert.Nil(t, err)
	assert.Equal(t, int64(1), result.TotalConversions)
	assert.InDelta(t, 0.5, result.BySource["google"], 1e-6)
	assert.InDelta(t, 0.5, result.BySource["newsletter"], 1e-6)
	assert.InDelta(t, 0.5, result.ByMedium["cpc"], 1e-6)
	assert.InDelta(t, 0.5, result.ByMedium["email"], 1e-6)
	assert.InDelta(t, 0.5, result.ByCampaign["fall_2026"], 1e-6)
	assert.InDelta(t, 0.5, result.ByCampaign[model.NoneKey], 1e-6)
}

func TestAttributionFirstAndLastTouch(t *testing.T) {
	s := memstore.New()
	seedTwoTouchJourney(s)

	first, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodFirstTouch))
	assert.Nil(t, err)
	assert.InDelta(t, 1.0, first.BySource["google"], 1e-6)
	assert.Zero(t, first.BySource["newsletter"])

	last, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodLastTouch))
	assert.Nil(t, err)
	assert.InDelta(t, 1.0, last.BySource["newsletter"], 1e-6)
	assert.Zero(t, last.BySource["google"])
}

func TestAttributionCreditConservation(t *testing.T) {
	s := memstore.New()
	seedTwoTouchJourney(s)

	for _, method := range []string{
		model.AttributionMethodFirstTouch,
		model.AttributionMethodLastTouch,
		model.AttributionMethodLinear,
		model.AttributionMethodTimeDecay,
		model.AttributionMethodPositionBased,
	} {
		result, err := ExecuteAttributionQuery(s,
			&Config{TimeDecayHalfLifeHours: model.DefaultTimeDecayHalfLifeHours},
			januaryQuery(method))
		assert.Nil(t, err)

		var total float64
		for _, credit := range result.BySource {
			total += credit
		}
		assert.InDelta(t, float64(result.TotalConversions), total, 1e-6,
			"method %s", method)
	}
}

func TestAttributionHandoffCutsPath(t *testing.T) {
	s := memstore.New()
	seedTwoTouchJourney(s)
	// A page view after the handoff left the site. It must carry no
	// credit for the handoff-mediated conversion.
	seedTouch(s, "visitor-1", model.TouchpointTypePageView, "bing", "organic", "",
		unixAt(7, 10, 45))

	result, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodLinear))
	assert.Nil(t, err)
	assert.Zero(t, result.BySource["bing"])
	assert.InDelta(t, 0.5, result.BySource["google"], 1e-6)
	assert.InDelta(t, 0.5, result.BySource["newsletter"], 1e-6)
}

func TestAttributionZeroTouchConversion(t *testing.T) {
	s := memstore.New()
	// Conversion with no on-site history at all, e.g. imported and
	// matched on account number alone.
	seedVisitor(s, "visitor-offline", unixAt(10, 12, 0))
	seedConversion(s, "visitor-offline", "", unixAt(10, 12, 0))

	result, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodLinear))
	assert.Nil(t, err)
	assert.Equal(t, int64(1), result.TotalConversions)
	assert.Equal(t, 1.0, result.BySource[model.NoTouchpointsKey])
	assert.Equal(t, 1.0, result.ByMedium[model.NoTouchpointsKey])
	assert.Equal(t, 1.0, result.ByCampaign[model.NoTouchpointsKey])
	assert.Equal(t, int64(1), result.Touchpoints.Distribution["0"])
}

func TestAttributionHandoffSnapshotBacksEmptyPath(t *testing.T) {
	s := memstore.New()
	// The visitor's only history is the handoff itself; the snapshot
	// UTM carries the credit instead of "(no touchpoints)".
	seedVisitor(s, "visitor-1", unixAt(5, 9, 0))
	s.CreateHandoff(&model.Handoff{
		Token:            "tok-1",
		InstanceID:       testInstanceID,
		VisitorID:        "visitor-1",
		DestinationURL:   "https://enroll.example.com",
		Status:           model.HandoffStatusCompleted,
		AttrSource:       "partner",
		AttrMedium:       "referral",
		CreatedTimestamp: unixAt(5, 9, 0),
	})
	seedConversion(s, "visitor-1", "tok-1", unixAt(5, 10, 0))

	result, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodLinear))
	assert.Nil(t, err)
	assert.InDelta(t, 1.0, result.BySource["partner"], 1e-6)
	assert.InDelta(t, 1.0, result.ByMedium["referral"], 1e-6)
	assert.Zero(t, result.BySource[model.NoTouchpointsKey])
}

func TestAttributionEmptyRangeIsFullyShaped(t *testing.T) {
	s := memstore.New()

	result, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodLinear))
	assert.Nil(t, err)
	assert.Equal(t, int64(0), result.TotalConversions)
	assert.NotNil(t, result.BySource)
	assert.NotNil(t, result.Channels)
	assert.Len(t, result.Channels, 0)
	// All buckets present at zero.
	assert.Len(t, result.TimeToConversion.Buckets, 5)
	for bucket, count := range result.TimeToConversion.Buckets {
		assert.Equal(t, int64(0), count, "bucket %s", bucket)
	}
}

func TestAttributionTimeToConversionBuckets(t *testing.T) {
	s := memstore.New()
	// First seen 09:00, converted 09:45: same_session.
	seedVisitor(s, "visitor-fast", unixAt(5, 9, 0))
	seedTouch(s, "visitor-fast", model.TouchpointTypePageView, "google", "cpc", "",
		unixAt(5, 9, 0))
	seedConversion(s, "visitor-fast", "", unixAt(5, 9, 45))

	// First seen Jan 2, converted Jan 5: within_week.
	seedVisitor(s, "visitor-slow", unixAt(2, 9, 0))
	seedTouch(s, "visitor-slow", model.TouchpointTypePageView, "bing", "organic", "",
		unixAt(2, 9, 0))
	seedConversion(s, "visitor-slow", "", unixAt(5, 9, 0))

	result, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodLinear))
	assert.Nil(t, err)
	assert.Equal(t, int64(1), result.TimeToConversion.Buckets[model.TTCBucketSameSession])
	assert.Equal(t, int64(1), result.TimeToConversion.Buckets[model.TTCBucketWithinWeek])
	assert.Equal(t, int64(0), result.TimeToConversion.Buckets[model.TTCBucketSameDay])
	// Mean of 0.75h and 72h.
	assert.InDelta(t, (0.75+72)/2, result.TimeToConversion.MeanHours, 1e-6)
}

func TestAttributionChannelPerformance(t *testing.T) {
	s := memstore.New()
	seedTwoTouchJourney(s)
	// A second visitor touched by google/cpc who never converts.
	seedVisitor(s, "visitor-2", unixAt(6, 9, 0))
	seedTouch(s, "visitor-2", model.TouchpointTypePageView, "google", "cpc", "",
		unixAt(6, 9, 0))

	result, err := ExecuteAttributionQuery(s, &Config{}, januaryQuery(model.AttributionMethodLinear))
	assert.Nil(t, err)
	assert.Len(t, result.Channels, 2)

	var google *model.ChannelPerformance
	for i := range result.Channels {
		if result.Channels[i].Source == "google" {
			google = &result.Channels[i]
		}
	}
	assert.NotNil(t, google)
	assert.Equal(t, "cpc", google.Medium)
	assert.Equal(t, int64(2), google.UniqueVisitors)
	assert.InDelta(t, 0.5, google.Conversions, 1e-6)
	// 0.5 weighted conversions over 2 unique visitors.
	assert.Equal(t, 25.0, google.ConversionRate)
}

func TestAttributionLookbackExcludesStaleTouches(t *testing.T) {
	s := memstore.New()
	seedVisitor(s, "visitor-1", unixAt(1, 9, 0))
	seedTouch(s, "visitor-1", model.TouchpointTypePageView, "google", "cpc", "",
		unixAt(1, 9, 0))
	seedTouch(s, "visitor-1", model.TouchpointTypePageView, "newsletter", "email", "",
		unixAt(28, 9, 0))
	seedConversion(s, "visitor-1", "", unixAt(29, 9, 0))

	conf := &Config{LookbackDays: 7}
	result, err := ExecuteAttributionQuery(s, conf, januaryQuery(model.AttributionMethodLinear))
	assert.Nil(t, err)
	assert.Zero(t, result.BySource["google"])
	assert.InDelta(t, 1.0, result.BySource["newsletter"], 1e-6)
}

func TestAttributionQueryValidation(t *testing.T) {
	s := memstore.New()

	_, err := ExecuteAttributionQuery(s, &Config{}, &model.AttributionQuery{
		InstanceID: testInstanceID,
		From:       "2026-01-01",
		To:         "2026-01-31",
		Model:      "markov_chain",
	})
	assert.NotNil(t, err)

	_, err = ExecuteAttributionQuery(s, &Config{}, &model.AttributionQuery{
		InstanceID: testInstanceID,
		Model:      model.AttributionMethodLinear,
	})
	assert.NotNil(t, err)
}
