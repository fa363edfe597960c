// Package analytics holds the read side of the engine: the multi-touch
// attribution calculator and the funnel aggregator. Both are pure
// computations over rows already committed to the store.
package analytics

import (
	"net/http"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
	"enrolltrack/model/store"
	U "enrolltrack/util"
)

// Config carries the policy knobs of the calculator, injected by the
// caller at construction instead of read from ambient state.
type Config struct {
	// Touches older than this relative to a conversion carry no
	// credit. Zero or negative disables the bound.
	LookbackDays int
	// Half-life of the time_decay model.
	TimeDecayHalfLifeHours float64
}

type channelKey struct {
	source string
	medium string
}

// ExecuteAttributionQuery assigns fractional conversion credit to the
// touchpoints preceding each conversion in range, under the selected
// model, and rolls it up by source, medium, campaign and channel. The
// result is fully shaped on empty input: zero counts, all bucket keys
// present.
func ExecuteAttributionQuery(s store.Store, conf *Config,
	query *model.AttributionQuery) (*model.AttributionResult, error) {

	logCtx := log.WithFields(log.Fields{
		"instance_id": query.InstanceID,
		"model":       query.Model,
	})

	if err := query.Validate(); err != nil {
		return nil, err
	}
	from, to, err := U.DateRangeIn(query.From, query.To, query.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "invalid date range")
	}

	conversions, errCode := s.GetConversionTouchpoints(query.InstanceID, from, to)
	if errCode != http.StatusFound {
		logCtx.WithField("err_code", errCode).Error("Failed to read conversions.")
		return nil, errors.New("failed to read conversions")
	}

	result := model.NewAttributionResult(query.Model)
	result.TotalConversions = int64(len(conversions))

	lookbackPeriod := int64(conf.LookbackDays) * U.SECONDS_IN_A_DAY
	channelCredit := make(map[channelKey]float64)
	var totalHoursToConvert float64
	var totalTouchCount int64

	for i := range conversions {
		conversion := &conversions[i]

		path, err := conversionPath(s, conversion)
		if err != nil {
			logCtx.WithError(err).Error("Failed to build conversion path.")
			return nil, err
		}

		weights := model.ApplyAttribution(query.Model, path, conversion.Timestamp,
			lookbackPeriod, conf.TimeDecayHalfLifeHours)

		if len(weights) == 0 {
			// Direct completion with no on-site history. Visible as its
			// own bucket, still part of total_conversions.
			result.BySource[model.NoTouchpointsKey]++
			result.ByMedium[model.NoTouchpointsKey]++
			result.ByCampaign[model.NoTouchpointsKey]++
		} else {
			for _, tw := range weights {
				result.BySource[tw.Touch.SourceKey()] += tw.Weight
				result.ByMedium[tw.Touch.MediumKey()] += tw.Weight
				result.ByCampaign[tw.Touch.CampaignKey()] += tw.Weight
				channelCredit[channelKey{tw.Touch.SourceKey(), tw.Touch.MediumKey()}] += tw.Weight
			}
		}

		// Time to conversion is measured from the visitor's first
		// sighting, not from the first attributed touch.
		visitor, errCode := s.GetVisitor(query.InstanceID, conversion.VisitorID)
		firstSeen := conversion.Timestamp
		if errCode == http.StatusFound {
			firstSeen = visitor.FirstSeenAt
		}
		hours := U.HoursBetween(firstSeen, conversion.Timestamp)
		result.TimeToConversion.Buckets[model.TimeToConversionBucket(hours)]++
		totalHoursToConvert += hours

		touchCount := len(weights)
		result.Touchpoints.Distribution[model.TouchpointCountBucket(touchCount)]++
		totalTouchCount += int64(touchCount)
	}

	if len(conversions) > 0 {
		result.TimeToConversion.MeanHours = totalHoursToConvert / float64(len(conversions))
		result.Touchpoints.MeanTouchpoints = float64(totalTouchCount) / float64(len(conversions))
	}

	channels, err := channelPerformance(s, query.InstanceID, from, to, channelCredit)
	if err != nil {
		return nil, err
	}
	result.Channels = channels

	return result, nil
}

// conversionPath gathers the ordered marketing touches preceding the
// conversion. Conversions reconciled through a handoff cut the path at
// the handoff's attribution snapshot time; touches after the visitor
// left for the external system carry no credit. When a handoff-mediated
// conversion has no marketing touches at all, the handoff's UTM
// snapshot stands in as the single credited touch.
func conversionPath(s store.Store, conversion *model.Touchpoint) ([]model.Touchpoint, error) {
	cutoff := conversion.Timestamp
	var viaHandoff *model.Handoff
	if conversion.HandoffToken != nil && *conversion.HandoffToken != "" {
		handoff, errCode := s.GetHandoff(*conversion.HandoffToken)
		if errCode == http.StatusFound {
			viaHandoff = handoff
			cutoff = handoff.CreatedTimestamp
		}
	}

	touches, errCode := s.GetTouchpoints(conversion.InstanceID, conversion.VisitorID, 0, cutoff)
	if errCode != http.StatusFound {
		return nil, errors.New("failed to read visitor touchpoints")
	}

	path := make([]model.Touchpoint, 0, len(touches))
	for _, touch := range touches {
		if isMarketingTouch(touch.Type) {
			path = append(path, touch)
		}
	}

	if len(path) == 0 && viaHandoff != nil {
		path = append(path, model.Touchpoint{
			InstanceID:  conversion.InstanceID,
			VisitorID:   conversion.VisitorID,
			Type:        model.TouchpointTypeHandoff,
			UTMSource:   viaHandoff.AttrSource,
			UTMMedium:   viaHandoff.AttrMedium,
			UTMCampaign: viaHandoff.AttrCampaign,
			Timestamp:   viaHandoff.CreatedTimestamp,
		})
	}
	return path, nil
}

// isMarketingTouch filters to the touch types that can hold credit.
// Handoff and conversion markers describe the outcome, not the journey.
func isMarketingTouch(touchType string) bool {
	return touchType == model.TouchpointTypePageView ||
		touchType == model.TouchpointTypeFormStep
}

// channelPerformance reports unique visitors touched and weighted
// conversions for each distinct (source, medium) pair in range.
func channelPerformance(s store.Store, instanceID int64, from, to int64,
	channelCredit map[channelKey]float64) ([]model.ChannelPerformance, error) {

	touches, errCode := s.GetTouchpointsInRange(instanceID, from, to)
	if errCode != http.StatusFound {
		return nil, errors.New("failed to read touchpoints in range")
	}

	visitorsByChannel := make(map[channelKey]map[string]bool)
	for i := range touches {
		touch := &touches[i]
		if !isMarketingTouch(touch.Type) {
			continue
		}
		key := channelKey{touch.SourceKey(), touch.MediumKey()}
		if visitorsByChannel[key] == nil {
			visitorsByChannel[key] = make(map[string]bool)
		}
		visitorsByChannel[key][touch.VisitorID] = true
	}

	channels := make([]model.ChannelPerformance, 0, len(visitorsByChannel))
	for key, visitors := range visitorsByChannel {
		performance := model.ChannelPerformance{
			Source:         key.source,
			Medium:         key.medium,
			UniqueVisitors: int64(len(visitors)),
			Conversions:    channelCredit[key],
		}
		if performance.UniqueVisitors > 0 {
			performance.ConversionRate = U.RoundToOneDecimal(
				performance.Conversions / float64(performance.UniqueVisitors) * 100)
		}
		channels = append(channels, performance)
	}

	sort.Slice(channels, func(i, j int) bool {
		if channels[i].Conversions == channels[j].Conversions {
			if channels[i].Source == channels[j].Source {
				return channels[i].Medium < channels[j].Medium
			}
			return channels[i].Source < channels[j].Source
		}
		return channels[i].Conversions > channels[j].Conversions
	})
	return channels, nil
}
