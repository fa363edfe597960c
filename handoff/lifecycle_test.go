package handoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"enrolltrack/model/model"
	"enrolltrack/model/store/memstore"
	U "enrolltrack/util"
)

func newTestLifecycle(ttl time.Duration) (*Lifecycle, *memstore.MemStore) {
	s := memstore.New()
	return NewLifecycle(s, ttl), s
}

func issueTestHandoff(t *testing.T, l *Lifecycle) *model.Handoff {
	created, err := l.Issue(&IssueRequest{
		InstanceID:     1,
		VisitorID:      "visitor-1",
		DestinationURL: "https://enroll.example.com/start",
		UTMSource:      "google",
		UTMMedium:      "cpc",
		UTMCampaign:    "fall_2026",
	})
	assert.Nil(t, err)
	assert.NotNil(t, created)
	return created
}

func TestIssueHandoff(t *testing.T) {
	l, s := newTestLifecycle(72 * time.Hour)

	created := issueTestHandoff(t, l)
	assert.Len(t, created.Token, 32)
	assert.Equal(t, model.HandoffStatusCreated, created.Status)
	assert.Equal(t, "google", created.AttrSource)
	assert.Nil(t, created.AccountNumber)

	// Issuance records a handoff touchpoint on the visitor's timeline.
	touchpoints, _ := s.GetTouchpoints(1, "visitor-1", 0, U.TimeNowUnix())
	assert.Len(t, touchpoints, 1)
	assert.Equal(t, model.TouchpointTypeHandoff, touchpoints[0].Type)
	assert.NotNil(t, touchpoints[0].HandoffToken)
	assert.Equal(t, created.Token, *touchpoints[0].HandoffToken)

	// Tokens never repeat.
	second := issueTestHandoff(t, l)
	assert.NotEqual(t, created.Token, second.Token)
}

func TestIssueHandoffValidation(t *testing.T) {
	l, _ := newTestLifecycle(72 * time.Hour)
	_, err := l.Issue(&IssueRequest{InstanceID: 1, VisitorID: "visitor-1"})
	assert.NotNil(t, err)
}

func TestHandoffHappyPath(t *testing.T) {
	l, _ := newTestLifecycle(72 * time.Hour)
	created := issueTestHandoff(t, l)

	assert.Nil(t, l.MarkRedirected(created.Token))

	completed, err := l.Complete(created.Token, "ACC-1001", 0)
	assert.Nil(t, err)
	assert.Equal(t, model.HandoffStatusCompleted, completed.Status)
	assert.NotNil(t, completed.AccountNumber)
	assert.Equal(t, "ACC-1001", *completed.AccountNumber)
	assert.NotNil(t, completed.CompletedTimestamp)
}

func TestMarkRedirectedIsIdempotent(t *testing.T) {
	l, _ := newTestLifecycle(72 * time.Hour)
	created := issueTestHandoff(t, l)

	assert.Nil(t, l.MarkRedirected(created.Token))
	assert.Nil(t, l.MarkRedirected(created.Token))
	assert.Equal(t, model.ErrNotFound, l.MarkRedirected("no-such-token"))
}

func TestCompleteIsSingleWinner(t *testing.T) {
	l, _ := newTestLifecycle(72 * time.Hour)
	created := issueTestHandoff(t, l)

	first, err := l.Complete(created.Token, "ACC-1", 0)
	assert.Nil(t, err)
	assert.Equal(t, "ACC-1", *first.AccountNumber)

	// The second completion loses and the winner's account number stays.
	_, err = l.Complete(created.Token, "ACC-2", 0)
	assert.Equal(t, model.ErrAlreadyTerminal, err)

	current, err := l.Get(created.Token)
	assert.Nil(t, err)
	assert.Equal(t, "ACC-1", *current.AccountNumber)
}

func TestCompleteCreatesConversionTouchpoint(t *testing.T) {
	l, s := newTestLifecycle(72 * time.Hour)
	created := issueTestHandoff(t, l)

	_, err := l.Complete(created.Token, "ACC-1", 0)
	assert.Nil(t, err)

	touchpoints, _ := s.GetTouchpoints(1, "visitor-1", 0, U.TimeNowUnix())
	assert.Len(t, touchpoints, 2)
	conversion := touchpoints[1]
	assert.Equal(t, model.TouchpointTypeFormComplete, conversion.Type)
	// The conversion carries the UTM snapshot from issuance.
	assert.Equal(t, "google", conversion.UTMSource)
	assert.Equal(t, "cpc", conversion.UTMMedium)
	assert.Equal(t, created.Token, *conversion.HandoffToken)
}

func TestAbandonIsIdempotent(t *testing.T) {
	l, _ := newTestLifecycle(72 * time.Hour)
	created := issueTestHandoff(t, l)

	assert.Nil(t, l.Abandon(created.Token))
	assert.Nil(t, l.Abandon(created.Token))

	_, err := l.Complete(created.Token, "ACC-1", 0)
	assert.Equal(t, model.ErrAlreadyTerminal, err)
}

func seedBackdatedHandoff(t *testing.T, s *memstore.MemStore, token string, age int64) {
	_, errCode := s.CreateHandoff(&model.Handoff{
		Token:            token,
		InstanceID:       1,
		VisitorID:        "visitor-1",
		DestinationURL:   "https://enroll.example.com/start",
		Status:           model.HandoffStatusRedirected,
		CreatedTimestamp: U.TimeNowUnix() - age,
	})
	assert.Equal(t, 201, errCode)
}

func TestLazyExpiry(t *testing.T) {
	// 1s TTL against a handoff created 10s ago.
	l, s := newTestLifecycle(time.Second)
	seedBackdatedHandoff(t, s, "tok-overdue", 10)

	read, err := l.Get("tok-overdue")
	assert.Nil(t, err)
	assert.Equal(t, model.HandoffStatusExpired, read.Status)

	// Expired handoffs reject completion even though the raw status
	// column still says redirected.
	_, err = l.Complete("tok-overdue", "ACC-1", 0)
	assert.Equal(t, model.ErrAlreadyTerminal, err)
}

func TestExpireOverduePersists(t *testing.T) {
	l, s := newTestLifecycle(time.Second)
	seedBackdatedHandoff(t, s, "tok-overdue", 10)

	expired, err := l.ExpireOverdue(1)
	assert.Nil(t, err)
	assert.Equal(t, int64(1), expired)

	raw, _ := s.GetHandoff("tok-overdue")
	assert.Equal(t, model.HandoffStatusExpired, raw.Status)
}

func TestStats(t *testing.T) {
	l, _ := newTestLifecycle(72 * time.Hour)

	completedHandoff := issueTestHandoff(t, l)
	_, err := l.Complete(completedHandoff.Token, "ACC-1", 0)
	assert.Nil(t, err)

	abandonedHandoff := issueTestHandoff(t, l)
	assert.Nil(t, l.Abandon(abandonedHandoff.Token))

	issueTestHandoff(t, l) // stays created

	stats, err := l.Stats(1, 0, U.TimeNowUnix())
	assert.Nil(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Abandoned)
	assert.Equal(t, int64(1), stats.Created)
	// Open handoffs are excluded from the denominator.
	assert.Equal(t, 50.0, stats.CompletionRate)
}

func TestStatsEmptyRange(t *testing.T) {
	l, _ := newTestLifecycle(72 * time.Hour)
	stats, err := l.Stats(1, 0, U.TimeNowUnix())
	assert.Nil(t, err)
	assert.Equal(t, int64(0), stats.Total)
	assert.Equal(t, 0.0, stats.CompletionRate)
}
