// Package memstore is the in-memory store implementation. It backs
// hermetic tests and local development where no MemSQL server is
// available, and holds the same single-winner completion guarantee as
// the gorm store by serializing transitions under one mutex.
package memstore

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"enrolltrack/model/model"
)

type visitorKey struct {
	instanceID int64
	visitorID  string
}

type MemStore struct {
	mu sync.Mutex

	visitors    map[visitorKey]*model.Visitor
	touchpoints []model.Touchpoint
	handoffs    map[string]*model.Handoff
	completions map[string]*model.ExternalCompletion

	seq uint64
}

func New() *MemStore {
	return &MemStore{
		visitors:    make(map[visitorKey]*model.Visitor),
		handoffs:    make(map[string]*model.Handoff),
		completions: make(map[string]*model.ExternalCompletion),
	}
}

func (store *MemStore) CreateOrUpdateVisitor(visitor *model.Visitor) (*model.Visitor, int) {
	if visitor.ID == "" || visitor.InstanceID == 0 {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	key := visitorKey{visitor.InstanceID, visitor.ID}
	existing, found := store.visitors[key]
	if !found {
		clone := *visitor
		if clone.LastSeenAt < clone.FirstSeenAt {
			clone.LastSeenAt = clone.FirstSeenAt
		}
		store.visitors[key] = &clone
		result := clone
		return &result, http.StatusCreated
	}

	if visitor.LastSeenAt > existing.LastSeenAt {
		existing.LastSeenAt = visitor.LastSeenAt
	}
	if visitor.CustomerEmail != "" {
		existing.CustomerEmail = visitor.CustomerEmail
	}
	result := *existing
	return &result, http.StatusFound
}

func (store *MemStore) GetVisitor(instanceID int64, visitorID string) (*model.Visitor, int) {
	if instanceID == 0 || visitorID == "" {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	visitor, found := store.visitors[visitorKey{instanceID, visitorID}]
	if !found {
		return nil, http.StatusNotFound
	}
	result := *visitor
	return &result, http.StatusFound
}

func (store *MemStore) GetVisitorEmails(instanceID int64, visitorIDs []string) (map[string]string, int) {
	store.mu.Lock()
	defer store.mu.Unlock()

	emails := make(map[string]string)
	for _, visitorID := range visitorIDs {
		if visitor, found := store.visitors[visitorKey{instanceID, visitorID}]; found &&
			visitor.CustomerEmail != "" {
			emails[visitorID] = visitor.CustomerEmail
		}
	}
	return emails, http.StatusFound
}

func (store *MemStore) CreateTouchpoint(touchpoint *model.Touchpoint) (*model.Touchpoint, int) {
	if touchpoint.InstanceID == 0 || touchpoint.VisitorID == "" {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	clone := *touchpoint
	if clone.ID == "" {
		clone.ID = uuid.New().String()
	}
	store.seq++
	clone.Seq = store.seq
	store.touchpoints = append(store.touchpoints, clone)

	result := clone
	return &result, http.StatusCreated
}

func (store *MemStore) getTouchpoints(filter func(*model.Touchpoint) bool) []model.Touchpoint {
	matched := make([]model.Touchpoint, 0)
	for i := range store.touchpoints {
		if filter(&store.touchpoints[i]) {
			matched = append(matched, store.touchpoints[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp == matched[j].Timestamp {
			return matched[i].Seq < matched[j].Seq
		}
		return matched[i].Timestamp < matched[j].Timestamp
	})
	return matched
}

func inRange(ts, from, to int64) bool {
	if from > 0 && ts < from {
		return false
	}
	if to > 0 && ts > to {
		return false
	}
	return true
}

func (store *MemStore) GetTouchpoints(instanceID int64, visitorID string, from, to int64) ([]model.Touchpoint, int) {
	if instanceID == 0 || visitorID == "" {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	return store.getTouchpoints(func(tp *model.Touchpoint) bool {
		return tp.InstanceID == instanceID && tp.VisitorID == visitorID &&
			inRange(tp.Timestamp, from, to)
	}), http.StatusFound
}

func (store *MemStore) GetTouchpointsInRange(instanceID int64, from, to int64) ([]model.Touchpoint, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	return store.getTouchpoints(func(tp *model.Touchpoint) bool {
		return tp.InstanceID == instanceID && inRange(tp.Timestamp, from, to)
	}), http.StatusFound
}

func (store *MemStore) GetConversionTouchpoints(instanceID int64, from, to int64) ([]model.Touchpoint, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	return store.getTouchpoints(func(tp *model.Touchpoint) bool {
		return tp.InstanceID == instanceID && tp.Type == model.TouchpointTypeFormComplete &&
			inRange(tp.Timestamp, from, to)
	}), http.StatusFound
}

func (store *MemStore) CreateHandoff(handoff *model.Handoff) (*model.Handoff, int) {
	if handoff.Token == "" || handoff.InstanceID == 0 || handoff.VisitorID == "" {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, exists := store.handoffs[handoff.Token]; exists {
		return nil, http.StatusConflict
	}
	clone := *handoff
	if clone.Status == "" {
		clone.Status = model.HandoffStatusCreated
	}
	store.handoffs[clone.Token] = &clone

	result := clone
	return &result, http.StatusCreated
}

func (store *MemStore) GetHandoff(token string) (*model.Handoff, int) {
	if token == "" {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	handoff, found := store.handoffs[token]
	if !found {
		return nil, http.StatusNotFound
	}
	result := *handoff
	return &result, http.StatusFound
}

func statusIn(status string, statuses []string) bool {
	for _, s := range statuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

func (store *MemStore) UpdateHandoffStatus(token string, toStatus string, fromStatuses []string) int {
	if token == "" || toStatus == "" || len(fromStatuses) == 0 {
		return http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	handoff, found := store.handoffs[token]
	if !found {
		return http.StatusNotFound
	}
	if !statusIn(handoff.Status, fromStatuses) {
		return http.StatusConflict
	}
	handoff.Status = toStatus
	return http.StatusAccepted
}

func (store *MemStore) CompleteHandoff(token string, accountNumber string, completedAt int64) int {
	if token == "" {
		return http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	handoff, found := store.handoffs[token]
	if !found {
		return http.StatusNotFound
	}
	if handoff.Status != model.HandoffStatusCreated &&
		handoff.Status != model.HandoffStatusRedirected {
		return http.StatusConflict
	}
	handoff.Status = model.HandoffStatusCompleted
	handoff.AccountNumber = &accountNumber
	handoff.CompletedTimestamp = &completedAt
	return http.StatusAccepted
}

func (store *MemStore) getHandoffs(filter func(*model.Handoff) bool) []model.Handoff {
	matched := make([]model.Handoff, 0)
	for _, handoff := range store.handoffs {
		if filter(handoff) {
			matched = append(matched, *handoff)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedTimestamp < matched[j].CreatedTimestamp
	})
	return matched
}

func (store *MemStore) GetHandoffsInRange(instanceID int64, from, to int64) ([]model.Handoff, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	return store.getHandoffs(func(h *model.Handoff) bool {
		return h.InstanceID == instanceID && inRange(h.CreatedTimestamp, from, to)
	}), http.StatusFound
}

func (store *MemStore) GetMatchableHandoffs(instanceID int64, from, to int64) ([]model.Handoff, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	return store.getHandoffs(func(h *model.Handoff) bool {
		return h.InstanceID == instanceID &&
			(h.Status == model.HandoffStatusCreated || h.Status == model.HandoffStatusRedirected) &&
			inRange(h.CreatedTimestamp, from, to)
	}), http.StatusFound
}

func (store *MemStore) ExpireOverdueHandoffs(instanceID int64, createdBefore int64) (int64, int) {
	if instanceID == 0 || createdBefore == 0 {
		return 0, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	var expired int64
	for _, handoff := range store.handoffs {
		if handoff.InstanceID == instanceID && handoff.CreatedTimestamp < createdBefore &&
			(handoff.Status == model.HandoffStatusCreated ||
				handoff.Status == model.HandoffStatusRedirected) {
			handoff.Status = model.HandoffStatusExpired
			expired++
		}
	}
	return expired, http.StatusAccepted
}

func (store *MemStore) CreateExternalCompletion(completion *model.ExternalCompletion) (*model.ExternalCompletion, int) {
	if completion.InstanceID == 0 || completion.AccountNumber == "" {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	clone := *completion
	if clone.ID == "" {
		clone.ID = xid.New().String()
	}
	store.completions[clone.ID] = &clone

	result := clone
	return &result, http.StatusCreated
}

func (store *MemStore) GetExternalCompletionByHandoffToken(instanceID int64, token string) (*model.ExternalCompletion, int) {
	if instanceID == 0 || token == "" {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	for _, completion := range store.completions {
		if completion.InstanceID == instanceID && completion.HandoffToken != nil &&
			*completion.HandoffToken == token {
			result := *completion
			return &result, http.StatusFound
		}
	}
	return nil, http.StatusNotFound
}

func (store *MemStore) GetPendingExternalCompletions(instanceID int64) ([]model.ExternalCompletion, int) {
	if instanceID == 0 {
		return nil, http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	pending := make([]model.ExternalCompletion, 0)
	for _, completion := range store.completions {
		if completion.InstanceID == instanceID && !completion.Processed {
			pending = append(pending, *completion)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CompletionTimestamp < pending[j].CompletionTimestamp
	})
	return pending, http.StatusFound
}

func (store *MemStore) UpdateExternalCompletionMatched(id string, handoffToken string) int {
	if id == "" || handoffToken == "" {
		return http.StatusBadRequest
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	completion, found := store.completions[id]
	if !found || completion.Processed {
		return http.StatusConflict
	}
	token := handoffToken
	completion.HandoffToken = &token
	completion.Processed = true
	return http.StatusAccepted
}
