// Package store defines the narrow persistence interface the engine
// computes over. Implementations: memsql (gorm) and memstore
// (in-memory, hermetic tests and development).
package store

import (
	"github.com/jinzhu/gorm"

	"enrolltrack/model/model"
	memSQL "enrolltrack/model/store/memsql"
)

// Store - Interface of all persistence methods to be implemented by
// the backing stores. CRUD methods return HTTP status codes alongside
// values; query helpers return ordered slices.
type Store interface {
	// visitor
	CreateOrUpdateVisitor(visitor *model.Visitor) (*model.Visitor, int)
	GetVisitor(instanceID int64, visitorID string) (*model.Visitor, int)
	GetVisitorEmails(instanceID int64, visitorIDs []string) (map[string]string, int)

	// touchpoint
	CreateTouchpoint(touchpoint *model.Touchpoint) (*model.Touchpoint, int)
	GetTouchpoints(instanceID int64, visitorID string, from, to int64) ([]model.Touchpoint, int)
	GetTouchpointsInRange(instanceID int64, from, to int64) ([]model.Touchpoint, int)
	GetConversionTouchpoints(instanceID int64, from, to int64) ([]model.Touchpoint, int)

	// handoff
	CreateHandoff(handoff *model.Handoff) (*model.Handoff, int)
	GetHandoff(token string) (*model.Handoff, int)
	// UpdateHandoffStatus transitions token to toStatus only when the
	// current status is one of fromStatuses, atomically.
	UpdateHandoffStatus(token string, toStatus string, fromStatuses []string) int
	// CompleteHandoff is the single-winner completion guard: the
	// conditional update stamps completed_timestamp and account number
	// only from a non-terminal status.
	CompleteHandoff(token string, accountNumber string, completedAt int64) int
	GetHandoffsInRange(instanceID int64, from, to int64) ([]model.Handoff, int)
	// GetMatchableHandoffs returns non-terminal handoffs created inside
	// [from, to], the fuzzy matcher's candidate set.
	GetMatchableHandoffs(instanceID int64, from, to int64) ([]model.Handoff, int)
	ExpireOverdueHandoffs(instanceID int64, createdBefore int64) (int64, int)

	// external_completion
	CreateExternalCompletion(completion *model.ExternalCompletion) (*model.ExternalCompletion, int)
	GetExternalCompletionByHandoffToken(instanceID int64, token string) (*model.ExternalCompletion, int)
	GetPendingExternalCompletions(instanceID int64) ([]model.ExternalCompletion, int)
	UpdateExternalCompletionMatched(id string, handoffToken string) int
}

// GetStore - Returns the gorm backed store for the given connection.
func GetStore(db *gorm.DB) Store {
	return memSQL.New(db)
}
