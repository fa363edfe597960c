package memsql

import (
	"net/http"

	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	"enrolltrack/model/model"
)

// CreateOrUpdateVisitor creates the visitor on first sight, else bumps
// last_seen_at and fills the email when newly learned.
func (store *MemSQL) CreateOrUpdateVisitor(visitor *model.Visitor) (*model.Visitor, int) {
	logFields := log.Fields{
		"instance_id": visitor.InstanceID,
		"visitor_id":  visitor.ID,
	}
	if visitor.ID == "" || visitor.InstanceID == 0 {
		log.WithFields(logFields).Error("CreateOrUpdateVisitor failed. Invalid visitor or instance.")
		return nil, http.StatusBadRequest
	}

	var existing model.Visitor
	err := store.db.Where("instance_id = ? AND id = ?",
		visitor.InstanceID, visitor.ID).First(&existing).Error
	if err != nil {
		if !gorm.IsRecordNotFoundError(err) {
			log.WithFields(logFields).WithError(err).Error("Failed to read visitor.")
			return nil, http.StatusInternalServerError
		}
		if visitor.LastSeenAt < visitor.FirstSeenAt {
			visitor.LastSeenAt = visitor.FirstSeenAt
		}
		if err := store.db.Create(visitor).Error; err != nil {
			log.WithFields(logFields).WithError(err).Error("Failed to create visitor.")
			return nil, http.StatusInternalServerError
		}
		return visitor, http.StatusCreated
	}

	updates := map[string]interface{}{}
	if visitor.LastSeenAt > existing.LastSeenAt {
		updates["last_seen_at"] = visitor.LastSeenAt
	}
	if visitor.CustomerEmail != "" && visitor.CustomerEmail != existing.CustomerEmail {
		updates["customer_email"] = visitor.CustomerEmail
	}
	if len(updates) > 0 {
		err = store.db.Model(&model.Visitor{}).Where("instance_id = ? AND id = ?",
			visitor.InstanceID, visitor.ID).Update(updates).Error
		if err != nil {
			log.WithFields(logFields).WithError(err).Error("Failed to update visitor.")
			return nil, http.StatusInternalServerError
		}
	}

	err = store.db.Where("instance_id = ? AND id = ?",
		visitor.InstanceID, visitor.ID).First(&existing).Error
	if err != nil {
		log.WithFields(logFields).WithError(err).Error("Failed to re-read visitor.")
		return nil, http.StatusInternalServerError
	}
	return &existing, http.StatusFound
}

func (store *MemSQL) GetVisitor(instanceID int64, visitorID string) (*model.Visitor, int) {
	if instanceID == 0 || visitorID == "" {
		return nil, http.StatusBadRequest
	}

	var visitor model.Visitor
	err := store.db.Where("instance_id = ? AND id = ?", instanceID, visitorID).
		First(&visitor).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, http.StatusNotFound
		}
		log.WithFields(log.Fields{"instance_id": instanceID, "visitor_id": visitorID}).
			WithError(err).Error("Failed to get visitor.")
		return nil, http.StatusInternalServerError
	}
	return &visitor, http.StatusFound
}

// GetVisitorEmails returns visitor_id -> customer_email for visitors
// with a known email. Used as fuzzy match metadata by the importer.
func (store *MemSQL) GetVisitorEmails(instanceID int64, visitorIDs []string) (map[string]string, int) {
	emails := make(map[string]string)
	if len(visitorIDs) == 0 {
		return emails, http.StatusFound
	}

	var visitors []model.Visitor
	err := store.db.Where("instance_id = ? AND id IN (?) AND customer_email != ''",
		instanceID, visitorIDs).Find(&visitors).Error
	if err != nil {
		log.WithField("instance_id", instanceID).WithError(err).
			Error("Failed to get visitor emails.")
		return nil, http.StatusInternalServerError
	}
	for _, visitor := range visitors {
		emails[visitor.ID] = visitor.CustomerEmail
	}
	return emails, http.StatusFound
}
