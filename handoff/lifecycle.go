// Package handoff tracks the token bridge between an on-site visitor
// and an off-site enrollment system through its lifecycle:
// created -> redirected -> {completed | abandoned}, with lazy time
// based expiry.
package handoff

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
	"enrolltrack/model/store"
	U "enrolltrack/util"
)

// handoff tokens carry 16 bytes (128 bits) of entropy to resist
// enumeration.
const tokenEntropyBytes = 16

type Lifecycle struct {
	store      store.Store
	ttlSeconds int64
}

func NewLifecycle(s store.Store, ttl time.Duration) *Lifecycle {
	return &Lifecycle{store: s, ttlSeconds: int64(ttl.Seconds())}
}

// IssueRequest carries the UTM snapshot at redirect time. The snapshot
// is immutable after creation and survives on the handoff row for
// attribution and matching even if the visitor browses on.
type IssueRequest struct {
	InstanceID     int64  `json:"instance_id"`
	VisitorID      string `json:"visitor_id"`
	DestinationURL string `json:"destination_url"`
	UTMSource      string `json:"utm_source"`
	UTMMedium      string `json:"utm_medium"`
	UTMCampaign    string `json:"utm_campaign"`
	// unix seconds, defaults to now.
	Timestamp int64 `json:"timestamp"`
}

// Issue creates the handoff with a fresh unguessable token and records
// the outbound redirect as a touchpoint on the visitor's timeline.
func (l *Lifecycle) Issue(request *IssueRequest) (*model.Handoff, error) {
	logCtx := log.WithFields(log.Fields{
		"instance_id": request.InstanceID,
		"visitor_id":  request.VisitorID,
	})

	if request.InstanceID == 0 || request.VisitorID == "" || request.DestinationURL == "" {
		return nil, errors.New("issue failed, missing instance, visitor or destination")
	}
	if request.Timestamp == 0 {
		request.Timestamp = U.TimeNowUnix()
	}

	token, err := U.RandomHexToken(tokenEntropyBytes)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate handoff token.")
		return nil, errors.Wrap(err, "generate handoff token")
	}

	handoff := &model.Handoff{
		Token:            token,
		InstanceID:       request.InstanceID,
		VisitorID:        request.VisitorID,
		DestinationURL:   request.DestinationURL,
		Status:           model.HandoffStatusCreated,
		AttrSource:       request.UTMSource,
		AttrMedium:       request.UTMMedium,
		AttrCampaign:     request.UTMCampaign,
		CreatedTimestamp: request.Timestamp,
	}
	created, errCode := l.store.CreateHandoff(handoff)
	if errCode != http.StatusCreated {
		logCtx.WithField("err_code", errCode).Error("Failed to create handoff.")
		return nil, errors.New("failed to create handoff")
	}

	_, errCode = l.store.CreateTouchpoint(&model.Touchpoint{
		InstanceID:   request.InstanceID,
		VisitorID:    request.VisitorID,
		Type:         model.TouchpointTypeHandoff,
		UTMSource:    request.UTMSource,
		UTMMedium:    request.UTMMedium,
		UTMCampaign:  request.UTMCampaign,
		PageURL:      request.DestinationURL,
		HandoffToken: &created.Token,
		Timestamp:    request.Timestamp,
	})
	if errCode != http.StatusCreated {
		// The handoff itself is usable, the timeline just misses the
		// redirect marker.
		logCtx.WithField("err_code", errCode).Error("Failed to create handoff touchpoint.")
	}

	return created, nil
}

// MarkRedirected records the outbound redirect firing. Redundant calls
// for an already redirected or terminal handoff are no-ops.
func (l *Lifecycle) MarkRedirected(token string) error {
	errCode := l.store.UpdateHandoffStatus(token, model.HandoffStatusRedirected,
		[]string{model.HandoffStatusCreated})
	switch errCode {
	case http.StatusAccepted, http.StatusConflict:
		return nil
	case http.StatusNotFound:
		return model.ErrNotFound
	}
	return errors.New("failed to mark handoff redirected")
}

// Complete transitions the handoff to completed, stamping completed_at
// and the external account number. Unknown tokens fail with
// ErrNotFound; a handoff already terminal (including lazily expired)
// fails with ErrAlreadyTerminal so the caller decides between
// idempotent success and conflict. Exactly one of two racing calls
// wins via the store's conditional update.
func (l *Lifecycle) Complete(token string, accountNumber string, completedAt int64) (*model.Handoff, error) {
	logCtx := log.WithField("token", token)

	handoff, errCode := l.store.GetHandoff(token)
	if errCode == http.StatusNotFound {
		return nil, model.ErrNotFound
	}
	if errCode != http.StatusFound {
		return nil, errors.New("failed to read handoff")
	}

	if completedAt == 0 {
		completedAt = U.TimeNowUnix()
	}
	if model.IsTerminalHandoffStatus(handoff.EffectiveStatus(U.TimeNowUnix(), l.ttlSeconds)) {
		return nil, model.ErrAlreadyTerminal
	}

	errCode = l.store.CompleteHandoff(token, accountNumber, completedAt)
	switch errCode {
	case http.StatusAccepted:
	case http.StatusConflict:
		return nil, model.ErrAlreadyTerminal
	case http.StatusNotFound:
		return nil, model.ErrNotFound
	default:
		logCtx.WithField("err_code", errCode).Error("Failed to complete handoff.")
		return nil, errors.New("failed to complete handoff")
	}

	_, errCode = l.store.CreateTouchpoint(&model.Touchpoint{
		InstanceID:   handoff.InstanceID,
		VisitorID:    handoff.VisitorID,
		Type:         model.TouchpointTypeFormComplete,
		UTMSource:    handoff.AttrSource,
		UTMMedium:    handoff.AttrMedium,
		UTMCampaign:  handoff.AttrCampaign,
		HandoffToken: &handoff.Token,
		Timestamp:    completedAt,
	})
	if errCode != http.StatusCreated {
		logCtx.WithField("err_code", errCode).Error("Failed to create conversion touchpoint.")
	}

	return l.Get(token)
}

// Abandon marks the handoff abandoned. Same idempotency contract as
// MarkRedirected: already terminal is a no-op.
func (l *Lifecycle) Abandon(token string) error {
	errCode := l.store.UpdateHandoffStatus(token, model.HandoffStatusAbandoned,
		[]string{model.HandoffStatusCreated, model.HandoffStatusRedirected})
	switch errCode {
	case http.StatusAccepted, http.StatusConflict:
		return nil
	case http.StatusNotFound:
		return model.ErrNotFound
	}
	return errors.New("failed to abandon handoff")
}

// Get returns the handoff with the lazily derived status applied.
func (l *Lifecycle) Get(token string) (*model.Handoff, error) {
	handoff, errCode := l.store.GetHandoff(token)
	if errCode == http.StatusNotFound {
		return nil, model.ErrNotFound
	}
	if errCode != http.StatusFound {
		return nil, errors.New("failed to read handoff")
	}
	handoff.Status = handoff.EffectiveStatus(U.TimeNowUnix(), l.ttlSeconds)
	return handoff, nil
}

// ExpireOverdue persists the expired status for handoffs past the TTL.
func (l *Lifecycle) ExpireOverdue(instanceID int64) (int64, error) {
	if l.ttlSeconds <= 0 {
		return 0, nil
	}
	expired, errCode := l.store.ExpireOverdueHandoffs(instanceID, U.TimeNowUnix()-l.ttlSeconds)
	if errCode != http.StatusAccepted {
		return 0, errors.New("failed to expire overdue handoffs")
	}
	return expired, nil
}

// Stats aggregates handoffs created in [from, to] by effective status.
func (l *Lifecycle) Stats(instanceID int64, from, to int64) (*model.HandoffStats, error) {
	handoffs, errCode := l.store.GetHandoffsInRange(instanceID, from, to)
	if errCode != http.StatusFound {
		return nil, errors.New("failed to read handoffs")
	}

	nowUnix := U.TimeNowUnix()
	stats := &model.HandoffStats{}
	var completedHours float64
	for i := range handoffs {
		handoff := &handoffs[i]
		stats.Total++
		switch handoff.EffectiveStatus(nowUnix, l.ttlSeconds) {
		case model.HandoffStatusCreated:
			stats.Created++
		case model.HandoffStatusRedirected:
			stats.Redirected++
		case model.HandoffStatusCompleted:
			stats.Completed++
			if handoff.CompletedTimestamp != nil {
				completedHours += U.HoursBetween(handoff.CreatedTimestamp, *handoff.CompletedTimestamp)
			}
		case model.HandoffStatusAbandoned:
			stats.Abandoned++
		case model.HandoffStatusExpired:
			stats.Expired++
		}
	}

	settled := stats.Completed + stats.Abandoned + stats.Expired
	if settled > 0 {
		stats.CompletionRate = U.RoundToOneDecimal(float64(stats.Completed) / float64(settled) * 100)
	}
	if stats.Completed > 0 {
		stats.AvgHoursToComplete = completedHours / float64(stats.Completed)
	}
	return stats, nil
}
