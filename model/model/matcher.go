package model

import (
	"strings"
)

// CompletionRecord is a parsed, field-mapped import row handed to the
// matching policy.
type CompletionRecord struct {
	AccountNumber       string
	CustomerEmail       string
	ExternalID          string
	CompletionType      string
	HandoffToken        string
	CompletionTimestamp int64
}

// MatchCandidate is one matcher's proposal linking a record to a
// handoff, with the confidence the importer ranks by.
type MatchCandidate struct {
	Handoff    *Handoff
	Confidence float64
	Strategy   string
}

// HandoffMatcher is one strategy in the ordered fuzzy matching policy.
// Candidates are non-terminal handoffs of the record's instance whose
// creation time falls inside the lookback window before the record's
// completion date. visitorEmails maps visitor id to known email.
type HandoffMatcher interface {
	Name() string
	Match(record *CompletionRecord, candidates []Handoff, visitorEmails map[string]string) *MatchCandidate
}

// Strategy confidences. False positives are worse than missed links, so
// the last-resort recency match scores below the default acceptance
// threshold and only links when the caller lowers it deliberately.
const (
	ConfidenceAccountNumber = 0.95
	ConfidenceEmail         = 0.80
	ConfidenceMostRecent    = 0.30
)

// AccountNumberMatcher links on account number equality for handoffs
// that already carry one.
type AccountNumberMatcher struct{}

func (m *AccountNumberMatcher) Name() string { return "account_number" }

func (m *AccountNumberMatcher) Match(record *CompletionRecord, candidates []Handoff,
	visitorEmails map[string]string) *MatchCandidate {
	if record.AccountNumber == "" {
		return nil
	}
	for i := range candidates {
		handoff := &candidates[i]
		if handoff.AccountNumber != nil && *handoff.AccountNumber == record.AccountNumber {
			return &MatchCandidate{Handoff: handoff, Confidence: ConfidenceAccountNumber, Strategy: m.Name()}
		}
	}
	return nil
}

// EmailMatcher links on case-insensitive email equality against the
// originating visitor's known email.
type EmailMatcher struct{}

func (m *EmailMatcher) Name() string { return "customer_email" }

func (m *EmailMatcher) Match(record *CompletionRecord, candidates []Handoff,
	visitorEmails map[string]string) *MatchCandidate {
	if record.CustomerEmail == "" {
		return nil
	}
	for i := range candidates {
		handoff := &candidates[i]
		email := visitorEmails[handoff.VisitorID]
		if email != "" && strings.EqualFold(email, record.CustomerEmail) {
			return &MatchCandidate{Handoff: handoff, Confidence: ConfidenceEmail, Strategy: m.Name()}
		}
	}
	return nil
}

// MostRecentMatcher is the last resort: the newest handoff in the
// window, with the lowest confidence.
type MostRecentMatcher struct{}

func (m *MostRecentMatcher) Name() string { return "most_recent" }

func (m *MostRecentMatcher) Match(record *CompletionRecord, candidates []Handoff,
	visitorEmails map[string]string) *MatchCandidate {
	var newest *Handoff
	for i := range candidates {
		handoff := &candidates[i]
		if newest == nil || handoff.CreatedTimestamp > newest.CreatedTimestamp {
			newest = handoff
		}
	}
	if newest == nil {
		return nil
	}
	return &MatchCandidate{Handoff: newest, Confidence: ConfidenceMostRecent, Strategy: m.Name()}
}

// DefaultMatchers is the ordered matching policy of the importer.
func DefaultMatchers() []HandoffMatcher {
	return []HandoffMatcher{
		&AccountNumberMatcher{},
		&EmailMatcher{},
		&MostRecentMatcher{},
	}
}

// BestMatch runs the ordered strategies and returns the highest
// confidence candidate at or above minConfidence, nil when none
// qualifies. Earlier strategies win ties.
func BestMatch(record *CompletionRecord, candidates []Handoff, visitorEmails map[string]string,
	matchers []HandoffMatcher, minConfidence float64) *MatchCandidate {

	var best *MatchCandidate
	for _, matcher := range matchers {
		candidate := matcher.Match(record, candidates, visitorEmails)
		if candidate == nil {
			continue
		}
		if best == nil || candidate.Confidence > best.Confidence {
			best = candidate
		}
	}
	if best == nil || best.Confidence < minConfidence {
		return nil
	}
	return best
}
