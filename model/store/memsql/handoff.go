package memsql

import (
	"net/http"

	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
)

func (store *MemSQL) CreateHandoff(handoff *model.Handoff) (*model.Handoff, int) {
	logFields := log.Fields{
		"instance_id": handoff.InstanceID,
		"visitor_id":  handoff.VisitorID,
	}
	if handoff.Token == "" || handoff.InstanceID == 0 || handoff.VisitorID == "" {
		log.WithFields(logFields).Error("CreateHandoff failed. Missing token, instance or visitor.")
		return nil, http.StatusBadRequest
	}
	if handoff.Status == "" {
		handoff.Status = model.HandoffStatusCreated
	}

	if err := store.db.Create(handoff).Error; err != nil {
		log.WithFields(logFields).WithError(err).Error("Failed to create handoff.")
		return nil, http.StatusInternalServerError
	}
	return handoff, http.StatusCreated
}

func (store *MemSQL) GetHandoff(token string) (*model.Handoff, int) {
	if token == "" {
		return nil, http.StatusBadRequest
	}

	var handoff model.Handoff
	err := store.db.Where("token = ?", token).First(&handoff).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}
		log.WithField("token", token).WithError(err).Error("Failed to get handoff.")
		return nil, http.StatusInternalServerError
	}
	return &handoff, http.StatusFound
}

// UpdateHandoffStatus transitions token to toStatus only from one of
// fromStatuses. The conditional update makes concurrent transitions
// single-winner; the loser sees StatusConflict.
func (store *MemSQL) UpdateHandoffStatus(token string, toStatus string, fromStatuses []string) int {
	if token == "" || toStatus == "" || len(fromStatuses) == 0 {
		return http.StatusBadRequest
	}

	update := store.db.Model(&model.Handoff{}).
		Where("token = ? AND status IN (?)", token, fromStatuses).
		Update(map[string]interface{}{"status": toStatus})
	if update.Error != nil {
		log.WithField("token", token).WithError(update.Error).
			Error("Failed to update handoff status.")
		return http.StatusInternalServerError
	}
	if update.RowsAffected == 0 {
		if _, errCode := store.GetHandoff(token); errCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusConflict
	}
	return http.StatusAccepted
}

// CompleteHandoff stamps completion atomically from a non-terminal
// status. Two concurrent completion calls for one token cannot both
// succeed: the guarded update admits exactly one winner.
func (store *MemSQL) CompleteHandoff(token string, accountNumber string, completedAt int64) int {
	if token == "" {
		return http.StatusBadRequest
	}

	update := store.db.Model(&model.Handoff{}).
		Where("token = ? AND status IN (?)", token,
			[]string{model.HandoffStatusCreated, model.HandoffStatusRedirected}).
		Update(map[string]interface{}{
			"status":              model.HandoffStatusCompleted,
			"account_number":      accountNumber,
			"completed_timestamp": completedAt,
		})
	if update.Error != nil {
		log.WithField("token", token).WithError(update.Error).
			Error("Failed to complete handoff.")
		return http.StatusInternalServerError
	}
	if update.RowsAffected == 0 {
		if _, errCode := store.GetHandoff(token); errCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusConflict
	}
	return http.StatusAccepted
}

func (store *MemSQL) GetHandoffsInRange(instanceID int64, from, to int64) ([]model.Handoff, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	query := store.db.Where("instance_id = ?", instanceID)
	if from > 0 {
		query = query.Where("created_timestamp >= ?", from)
	}
	if to > 0 {
		query = query.Where("created_timestamp <= ?", to)
	}

	var handoffs []model.Handoff
	err := query.Order("created_timestamp asc").Find(&handoffs).Error
	if err != nil {
		log.WithField("instance_id", instanceID).WithError(err).
			Error("Failed to get handoffs in range.")
		return nil, http.StatusInternalServerError
	}
	return handoffs, http.StatusFound
}

func (store *MemSQL) GetMatchableHandoffs(instanceID int64, from, to int64) ([]model.Handoff, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	query := store.db.Where("instance_id = ? AND status IN (?)", instanceID,
		[]string{model.HandoffStatusCreated, model.HandoffStatusRedirected})
	if from > 0 {
		query = query.Where("created_timestamp >= ?", from)
	}
	if to > 0 {
		query = query.Where("created_timestamp <= ?", to)
	}

	var handoffs []model.Handoff
	err := query.Order("created_timestamp asc").Find(&handoffs).Error
	if err != nil {
		log.WithField("instance_id", instanceID).WithError(err).
			Error("Failed to get matchable handoffs.")
		return nil, http.StatusInternalServerError
	}
	return handoffs, http.StatusFound
}

// ExpireOverdueHandoffs persists the lazily derived expired status for
// non-terminal handoffs created before the cutoff.
func (store *MemSQL) ExpireOverdueHandoffs(instanceID int64, createdBefore int64) (int64, int) {
	if instanceID == 0 || createdBefore == 0 {
		return 0, http.StatusBadRequest
	}

	update := store.db.Model(&model.Handoff{}).
		Where("instance_id = ? AND created_timestamp < ? AND status IN (?)",
			instanceID, createdBefore,
			[]string{model.HandoffStatusCreated, model.HandoffStatusRedirected}).
		Update(map[string]interface{}{"status": model.HandoffStatusExpired})
	if update.Error != nil {
		log.WithField("instance_id", instanceID).WithError(update.Error).
			Error("Failed to expire overdue handoffs.")
		return 0, http.StatusInternalServerError
	}
	return update.RowsAffected, http.StatusAccepted
}
