package memsql

import (
	"net/http"

	"github.com/jinzhu/gorm"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
)

func (store *MemSQL) CreateExternalCompletion(completion *model.ExternalCompletion) (*model.ExternalCompletion, int) {
	logFields := log.Fields{
		"instance_id": completion.InstanceID,
		"source":      completion.Source,
	}
	if completion.InstanceID == 0 || completion.AccountNumber == "" {
		log.WithFields(logFields).Error("CreateExternalCompletion failed. Missing instance or account number.")
		return nil, http.StatusBadRequest
	}
	if completion.ID == "" {
		completion.ID = xid.New().String()
	}

	if err := store.db.Create(completion).Error; err != nil {
		log.WithFields(logFields).WithError(err).Error("Failed to create external completion.")
		return nil, http.StatusInternalServerError
	}
	return completion, http.StatusCreated
}

func (store *MemSQL) GetExternalCompletionByHandoffToken(instanceID int64, token string) (*model.ExternalCompletion, int) {
	if instanceID == 0 || token == "" {
		return nil, http.StatusBadRequest
	}

	var completion model.ExternalCompletion
	err := store.db.Where("instance_id = ? AND handoff_token = ?", instanceID, token).
		First(&completion).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}
		log.WithField("token", token).WithError(err).
			Error("Failed to get external completion by handoff token.")
		return nil, http.StatusInternalServerError
	}
	return &completion, http.StatusFound
}

func (store *MemSQL) GetPendingExternalCompletions(instanceID int64) ([]model.ExternalCompletion, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	var completions []model.ExternalCompletion
	err := store.db.Where("instance_id = ? AND processed = ?", instanceID, false).
		Order("completion_timestamp asc").Find(&completions).Error
	if err != nil {
		log.WithField("instance_id", instanceID).WithError(err).
			Error("Failed to get pending external completions.")
		return nil, http.StatusInternalServerError
	}
	return completions, http.StatusFound
}

// UpdateExternalCompletionMatched records a match decision. Rows are
// never re-matched once processed.
func (store *MemSQL) UpdateExternalCompletionMatched(id string, handoffToken string) int {
	if id == "" || handoffToken == "" {
		return http.StatusBadRequest
	}

	update := store.db.Model(&model.ExternalCompletion{}).
		Where("id = ? AND processed = ?", id, false).
		Update(map[string]interface{}{
			"handoff_token": handoffToken,
			"processed":     true,
		})
	if update.Error != nil {
		log.WithField("id", id).WithError(update.Error).
			Error("Failed to mark external completion matched.")
		return http.StatusInternalServerError
	}
	if update.RowsAffected == 0 {
		return http.StatusConflict
	}
	return http.StatusAccepted
}
