// Package sdk is the tracking hook: it turns client-side page and form
// step events into visitor and touchpoint rows. The engine assumes this
// collaborator runs on every tracked event.
package sdk

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/mssola/user_agent"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
	"enrolltrack/model/store"
	U "enrolltrack/util"
)

type TrackPayload struct {
	InstanceID int64  `json:"instance_id"`
	// VisitorID is generated when the client sends none.
	VisitorID   string `json:"visitor_id"`
	Type        string `json:"type"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	PageURL     string `json:"page_url"`
	StepName    string `json:"step_name"`
	// unix epoch timestamp in seconds, defaults to now.
	Timestamp int64  `json:"timestamp"`
	UserAgent string `json:"user_agent"`
}

type TrackResponse struct {
	VisitorID    string `json:"visitor_id,omitempty"`
	TouchpointID string `json:"touchpoint_id,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

type IdentifyPayload struct {
	InstanceID    int64  `json:"instance_id"`
	VisitorID     string `json:"visitor_id"`
	CustomerEmail string `json:"customer_email"`
	Timestamp     int64  `json:"timestamp"`
}

func isValidTouchType(touchType string) bool {
	switch touchType {
	case model.TouchpointTypePageView, model.TouchpointTypeFormStep,
		model.TouchpointTypeFormComplete:
		return true
	}
	return false
}

// Track upserts the visitor and appends the touchpoint. Returns the
// http status code alongside the response payload.
func Track(s store.Store, payload *TrackPayload) (int, *TrackResponse) {
	logCtx := log.WithFields(log.Fields{
		"instance_id": payload.InstanceID,
		"visitor_id":  payload.VisitorID,
	})

	if payload.InstanceID == 0 {
		return http.StatusBadRequest, &TrackResponse{Error: "Track failed. Invalid instance."}
	}
	if payload.Type == "" {
		payload.Type = model.TouchpointTypePageView
	}
	if !isValidTouchType(payload.Type) {
		return http.StatusBadRequest, &TrackResponse{Error: "Track failed. Invalid touchpoint type."}
	}
	if payload.Timestamp == 0 {
		payload.Timestamp = U.TimeNowUnix()
	}
	if payload.VisitorID == "" {
		payload.VisitorID = uuid.New().String()
	}

	_, errCode := s.CreateOrUpdateVisitor(&model.Visitor{
		ID:          payload.VisitorID,
		InstanceID:  payload.InstanceID,
		FirstSeenAt: payload.Timestamp,
		LastSeenAt:  payload.Timestamp,
	})
	if errCode != http.StatusCreated && errCode != http.StatusFound {
		logCtx.WithField("err_code", errCode).Error("Track failed. Visitor upsert failed.")
		return http.StatusInternalServerError, &TrackResponse{Error: "Track failed. Visitor upsert failed."}
	}

	touchpoint := &model.Touchpoint{
		InstanceID:  payload.InstanceID,
		VisitorID:   payload.VisitorID,
		Type:        payload.Type,
		UTMSource:   payload.UTMSource,
		UTMMedium:   payload.UTMMedium,
		UTMCampaign: payload.UTMCampaign,
		PageURL:     payload.PageURL,
		StepName:    payload.StepName,
		Timestamp:   payload.Timestamp,
	}
	fillDeviceProperties(touchpoint, payload.UserAgent)

	created, errCode := s.CreateTouchpoint(touchpoint)
	if errCode != http.StatusCreated {
		logCtx.WithField("err_code", errCode).Error("Track failed. Touchpoint create failed.")
		return http.StatusInternalServerError, &TrackResponse{Error: "Track failed. Touchpoint create failed."}
	}

	return http.StatusOK, &TrackResponse{
		VisitorID:    payload.VisitorID,
		TouchpointID: created.ID,
		Message:      "Tracked successfully.",
	}
}

// Identify attaches a customer email to the visitor, later usable as
// fuzzy match metadata by the completion importer.
func Identify(s store.Store, payload *IdentifyPayload) (int, *TrackResponse) {
	if payload.InstanceID == 0 || payload.VisitorID == "" || payload.CustomerEmail == "" {
		return http.StatusBadRequest, &TrackResponse{Error: "Identify failed. Missing visitor or email."}
	}
	if payload.Timestamp == 0 {
		payload.Timestamp = U.TimeNowUnix()
	}

	_, errCode := s.CreateOrUpdateVisitor(&model.Visitor{
		ID:            payload.VisitorID,
		InstanceID:    payload.InstanceID,
		FirstSeenAt:   payload.Timestamp,
		LastSeenAt:    payload.Timestamp,
		CustomerEmail: payload.CustomerEmail,
	})
	if errCode != http.StatusCreated && errCode != http.StatusFound {
		return http.StatusInternalServerError, &TrackResponse{Error: "Identify failed."}
	}
	return http.StatusOK, &TrackResponse{VisitorID: payload.VisitorID, Message: "Identified successfully."}
}

func fillDeviceProperties(touchpoint *model.Touchpoint, userAgent string) {
	if userAgent == "" {
		return
	}
	parsed := user_agent.New(userAgent)
	browser, _ := parsed.Browser()
	touchpoint.DeviceBrowser = browser
	touchpoint.DeviceOS = parsed.OSInfo().Name
}
