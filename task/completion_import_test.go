package task

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"enrolltrack/handoff"
	"enrolltrack/model/model"
	"enrolltrack/model/store/memstore"
	U "enrolltrack/util"
)

const testInstanceID = int64(1)

func newTestImporter() (*CompletionImporter, *memstore.MemStore, *handoff.Lifecycle) {
	s := memstore.New()
	lifecycle := handoff.NewLifecycle(s, 72*time.Hour)
	importer := NewCompletionImporter(s, lifecycle, ImportConfig{
		LookbackDays:       30,
		MinMatchConfidence: 0.5,
	})
	return importer, s, lifecycle
}

func testImportRequest() *model.ImportRequest {
	return &model.ImportRequest{
		InstanceID: testInstanceID,
		Source:     "state_exchange",
		Mapping: map[string]string{
			"Account Number":  model.FieldAccountNumber,
			"Email":           model.FieldCustomerEmail,
			"Completion Date": model.FieldCompletionDate,
			"Reference Token": model.FieldHandoffToken,
		},
		MatchHandoffs: true,
	}
}

func testCSV(rows ...string) *strings.Reader {
	lines := append([]string{"Account Number,Email,Completion Date,Reference Token"}, rows...)
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

func issueRedirectedHandoff(t *testing.T, l *handoff.Lifecycle, visitorID string) *model.Handoff {
	// Issued two days back so the fuzzy window around a date-only
	// completion timestamp still covers it.
	created, err := l.Issue(&handoff.IssueRequest{
		InstanceID:     testInstanceID,
		VisitorID:      visitorID,
		DestinationURL: "https://enroll.example.com/start",
		UTMSource:      "google",
		UTMMedium:      "cpc",
		Timestamp:      U.TimeNowUnix() - 2*U.SECONDS_IN_A_DAY,
	})
	assert.Nil(t, err)
	assert.Nil(t, l.MarkRedirected(created.Token))
	return created
}

func completionDate() string {
	return time.Unix(U.TimeNowUnix(), 0).UTC().Format("2006-01-02")
}

func TestPreview(t *testing.T) {
	importer, _, _ := newTestImporter()
	file := testCSV(
		"ACC-1,jane@example.com,2026-01-10,",
		"ACC-2,bob@example.com,2026-01-11,",
		"ACC-3,amy@example.com,2026-01-12,",
	)

	preview, err := importer.Preview(file, 2)
	assert.Nil(t, err)
	assert.Equal(t, []string{"Account Number", "Email", "Completion Date", "Reference Token"},
		preview.Headers)
	assert.Equal(t, 3, preview.TotalRows)
	assert.Len(t, preview.SampleRows, 2)
	assert.Equal(t, model.FieldAccountNumber, preview.SuggestedMapping["Account Number"])
	assert.Equal(t, model.FieldCustomerEmail, preview.SuggestedMapping["Email"])
	assert.Equal(t, model.FieldHandoffToken, preview.SuggestedMapping["Reference Token"])
}

func TestPreviewStripsBOM(t *testing.T) {
	importer, _, _ := newTestImporter()
	file := strings.NewReader("\ufeffAccount Number,Email\nACC-1,jane@example.com\n")

	preview, err := importer.Preview(file, 5)
	assert.Nil(t, err)
	assert.Equal(t, "Account Number", preview.Headers[0])
	assert.Equal(t, 1, preview.TotalRows)
}

func TestImportTokenMatchCompletesHandoff(t *testing.T) {
	importer, s, lifecycle := newTestImporter()
	created := issueRedirectedHandoff(t, lifecycle, "visitor-1")

	file := testCSV(fmt.Sprintf("ACC-100,jane@example.com,%s,%s", completionDate(), created.Token))
	result, err := importer.Import(file, testImportRequest())
	assert.Nil(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Errors)

	completed, err := lifecycle.Get(created.Token)
	assert.Nil(t, err)
	assert.Equal(t, model.HandoffStatusCompleted, completed.Status)
	assert.Equal(t, "ACC-100", *completed.AccountNumber)

	stored, errCode := s.GetExternalCompletionByHandoffToken(testInstanceID, created.Token)
	assert.Equal(t, 302, errCode)
	assert.True(t, stored.Processed)
}

func TestImportSkipsRowsMissingAccountNumber(t *testing.T) {
	importer, _, _ := newTestImporter()

	// Ten rows, row 5 has no account number.
	rows := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		account := fmt.Sprintf("ACC-%d", i)
		if i == 5 {
			account = ""
		}
		rows = append(rows, fmt.Sprintf("%s,user%d@example.com,%s,", account, i, completionDate()))
	}
	result, err := importer.Import(testCSV(rows...), testImportRequest())
	assert.Nil(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 9, result.Imported)
	assert.Equal(t, 0, result.Matched)
	// 9 unmatched rows plus the invalid one.
	assert.Equal(t, 10, result.Skipped)
	assert.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 5")
	assert.Contains(t, result.Errors[0], "missing account_number")
}

func TestImportEmailFuzzyMatch(t *testing.T) {
	importer, s, lifecycle := newTestImporter()
	created := issueRedirectedHandoff(t, lifecycle, "visitor-1")
	s.CreateOrUpdateVisitor(&model.Visitor{
		ID:            "visitor-1",
		InstanceID:    testInstanceID,
		CustomerEmail: "jane@example.com",
		FirstSeenAt:   U.TimeNowUnix() - 3600,
	})

	// No token column value; the email strategy links the row.
	file := testCSV(fmt.Sprintf("ACC-200,JANE@example.com,%s,", completionDate()))
	result, err := importer.Import(file, testImportRequest())
	assert.Nil(t, err)
	assert.Equal(t, 1, result.Matched)

	completed, err := lifecycle.Get(created.Token)
	assert.Nil(t, err)
	assert.Equal(t, model.HandoffStatusCompleted, completed.Status)
}

func TestImportUnmatchedRowIsSkippedButPersisted(t *testing.T) {
	importer, s, _ := newTestImporter()

	file := testCSV(fmt.Sprintf("ACC-300,stranger@example.com,%s,", completionDate()))
	result, err := importer.Import(file, testImportRequest())
	assert.Nil(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 1, result.Skipped)

	pending, errCode := s.GetPendingExternalCompletions(testInstanceID)
	assert.Equal(t, 302, errCode)
	assert.Len(t, pending, 1)
	assert.Equal(t, "ACC-300", pending[0].AccountNumber)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	importer, s, lifecycle := newTestImporter()
	created := issueRedirectedHandoff(t, lifecycle, "visitor-1")

	file := testCSV(fmt.Sprintf("ACC-100,jane@example.com,%s,%s", completionDate(), created.Token))
	request := testImportRequest()
	request.DryRun = true

	result, err := importer.Import(file, request)
	assert.Nil(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Matched)

	// Nothing persisted, nothing completed.
	_, errCode := s.GetExternalCompletionByHandoffToken(testInstanceID, created.Token)
	assert.Equal(t, 404, errCode)
	current, err := lifecycle.Get(created.Token)
	assert.Nil(t, err)
	assert.Equal(t, model.HandoffStatusRedirected, current.Status)
}

func TestImportIsIdempotentPerToken(t *testing.T) {
	importer, _, lifecycle := newTestImporter()
	created := issueRedirectedHandoff(t, lifecycle, "visitor-1")

	row := fmt.Sprintf("ACC-100,jane@example.com,%s,%s", completionDate(), created.Token)
	first, err := importer.Import(testCSV(row), testImportRequest())
	assert.Nil(t, err)
	assert.Equal(t, 1, first.Matched)

	// Re-importing the same feed must not double count or flip the
	// winner's account number.
	second, err := importer.Import(testCSV(row), testImportRequest())
	assert.Nil(t, err)
	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, second.Errors, 1)
	assert.Contains(t, second.Errors[0], "already matched")

	completed, err := lifecycle.Get(created.Token)
	assert.Nil(t, err)
	assert.Equal(t, "ACC-100", *completed.AccountNumber)
}

func TestImportStructuralFailures(t *testing.T) {
	importer, _, _ := newTestImporter()

	// Mapped column absent from the file.
	request := testImportRequest()
	file := strings.NewReader("Some Column,Another\nvalue,value\n")
	result, err := importer.Import(file, request)
	assert.Nil(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)

	// account_number not mapped at all.
	unmapped := &model.ImportRequest{
		InstanceID: testInstanceID,
		Mapping:    map[string]string{"Email": model.FieldCustomerEmail},
	}
	result, err = importer.Import(testCSV("ACC-1,jane@example.com,,"), unmapped)
	assert.Nil(t, err)
	assert.False(t, result.Success)
}

func TestImportToleratesRaggedRows(t *testing.T) {
	importer, _, _ := newTestImporter()

	// Short row: unmapped trailing columns default to empty.
	file := testCSV("ACC-1,jane@example.com")
	result, err := importer.Import(file, testImportRequest())
	assert.Nil(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Imported)
}

func TestRematchPendingCompletions(t *testing.T) {
	importer, s, lifecycle := newTestImporter()

	// Feed arrives before any matchable handoff exists.
	file := testCSV(fmt.Sprintf("ACC-400,jane@example.com,%s,", completionDate()))
	result, err := importer.Import(file, testImportRequest())
	assert.Nil(t, err)
	assert.Equal(t, 0, result.Matched)

	// The handoff shows up afterwards with a matching account number.
	created := issueRedirectedHandoff(t, lifecycle, "visitor-1")
	s.CreateOrUpdateVisitor(&model.Visitor{
		ID:            "visitor-1",
		InstanceID:    testInstanceID,
		CustomerEmail: "jane@example.com",
		FirstSeenAt:   U.TimeNowUnix() - 3600,
	})

	rematch, err := importer.RematchPendingCompletions(testInstanceID)
	assert.Nil(t, err)
	assert.Equal(t, 1, rematch.Matched)
	assert.Equal(t, 0, rematch.Skipped)

	completed, err := lifecycle.Get(created.Token)
	assert.Nil(t, err)
	assert.Equal(t, model.HandoffStatusCompleted, completed.Status)

	// The second pass finds nothing pending.
	again, err := importer.RematchPendingCompletions(testInstanceID)
	assert.Nil(t, err)
	assert.Equal(t, 0, again.Matched)
}

func TestParseCompletionDateLayouts(t *testing.T) {
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC).Unix(),
		parseCompletionDate("2026-01-10"))
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC).Unix(),
		parseCompletionDate("01/10/2026"))
	assert.Equal(t, time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC).Unix(),
		parseCompletionDate("2026-01-10 14:30:00"))

	// Unparseable values fall back to import time.
	now := U.TimeNowUnix()
	parsed := parseCompletionDate("not-a-date")
	assert.InDelta(t, now, parsed, 2)
}
