package memsql

import (
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
)

func (store *MemSQL) CreateTouchpoint(touchpoint *model.Touchpoint) (*model.Touchpoint, int) {
	logFields := log.Fields{
		"instance_id": touchpoint.InstanceID,
		"visitor_id":  touchpoint.VisitorID,
		"type":        touchpoint.Type,
	}
	if touchpoint.InstanceID == 0 || touchpoint.VisitorID == "" {
		log.WithFields(logFields).Error("CreateTouchpoint failed. Invalid visitor or instance.")
		return nil, http.StatusBadRequest
	}
	if touchpoint.ID == "" {
		touchpoint.ID = uuid.New().String()
	}

	if err := store.db.Create(touchpoint).Error; err != nil {
		log.WithFields(logFields).WithError(err).Error("Failed to create touchpoint.")
		return nil, http.StatusInternalServerError
	}
	return touchpoint, http.StatusCreated
}

// GetTouchpoints returns a visitor's touches for an instance ordered by
// timestamp with insertion sequence breaking ties. from/to of 0 leave
// that side unbounded.
func (store *MemSQL) GetTouchpoints(instanceID int64, visitorID string,
	from, to int64) ([]model.Touchpoint, int) {

	if instanceID == 0 || visitorID == "" {
		return nil, http.StatusBadRequest
	}

	query := store.db.Where("instance_id = ? AND visitor_id = ?", instanceID, visitorID)
	query = boundTimestamp(query, from, to)

	var touchpoints []model.Touchpoint
	err := query.Order("timestamp asc").Order("seq asc").Find(&touchpoints).Error
	if err != nil {
		log.WithFields(log.Fields{"instance_id": instanceID, "visitor_id": visitorID}).
			WithError(err).Error("Failed to get touchpoints.")
		return nil, http.StatusInternalServerError
	}
	return touchpoints, http.StatusFound
}

func (store *MemSQL) GetTouchpointsInRange(instanceID int64, from, to int64) ([]model.Touchpoint, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	query := boundTimestamp(store.db.Where("instance_id = ?", instanceID), from, to)

	var touchpoints []model.Touchpoint
	err := query.Order("timestamp asc").Order("seq asc").Find(&touchpoints).Error
	if err != nil {
		log.WithField("instance_id", instanceID).WithError(err).
			Error("Failed to get touchpoints in range.")
		return nil, http.StatusInternalServerError
	}
	return touchpoints, http.StatusFound
}

func (store *MemSQL) GetConversionTouchpoints(instanceID int64, from, to int64) ([]model.Touchpoint, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	query := store.db.Where("instance_id = ? AND type = ?",
		instanceID, model.TouchpointTypeFormComplete)
	query = boundTimestamp(query, from, to)

	var touchpoints []model.Touchpoint
	err := query.Order("timestamp asc").Order("seq asc").Find(&touchpoints).Error
	if err != nil {
		log.WithField("instance_id", instanceID).WithError(err).
			Error("Failed to get conversion touchpoints.")
		return nil, http.StatusInternalServerError
	}
	return touchpoints, http.StatusFound
}
