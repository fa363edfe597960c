// Package task holds batch operations. The completion importer
// reconciles operator-supplied CSV feeds of off-site enrollments back
// to the handoffs and visitors that originated them.
package task

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"enrolltrack/handoff"
	"enrolltrack/model/model"
	"enrolltrack/model/store"
	U "enrolltrack/util"
)

// ImportConfig carries the matching policy knobs, injected by the
// caller. Thresholds are deliberately configuration, not constants.
type ImportConfig struct {
	// Fuzzy candidates must have been created within this many days
	// before a row's completion date.
	LookbackDays int
	// Candidates below this confidence are left unmatched. False
	// positives are worse than missed links.
	MinMatchConfidence float64
}

type CompletionImporter struct {
	store     store.Store
	lifecycle *handoff.Lifecycle
	matchers  []model.HandoffMatcher
	conf      ImportConfig
}

func NewCompletionImporter(s store.Store, lifecycle *handoff.Lifecycle,
	conf ImportConfig) *CompletionImporter {
	return &CompletionImporter{
		store:     s,
		lifecycle: lifecycle,
		matchers:  model.DefaultMatchers(),
		conf:      conf,
	}
}

// accepted layouts for mapped completion_date columns.
var completionDateLayouts = []string{
	U.DATETIME_FORMAT_YYYYMMDD_HYPHEN,
	U.DATETIME_FORMAT_DB,
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
}

// newCSVReader strips an optional UTF-8 BOM and returns a reader
// tolerant of ragged rows; column count is enforced per mapped field,
// not per record.
func newCSVReader(r io.Reader) *csv.Reader {
	buffered := bufio.NewReader(r)
	if lead, err := buffered.Peek(3); err == nil &&
		lead[0] == 0xEF && lead[1] == 0xBB && lead[2] == 0xBF {
		buffered.Discard(3)
	}
	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

// Preview reads the header row and up to sampleSize data rows. It
// persists nothing and also returns the auto-mapping suggestion the
// caller confirms or overrides before import.
func (importer *CompletionImporter) Preview(r io.Reader, sampleSize int) (*model.ImportPreview, error) {
	reader := newCSVReader(r)

	headers, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv header")
	}

	preview := &model.ImportPreview{
		Headers:          headers,
		SampleRows:       make([][]string, 0, sampleSize),
		SuggestedMapping: model.AutoMapColumns(headers),
	}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read csv row")
		}
		preview.TotalRows++
		if len(preview.SampleRows) < sampleSize {
			preview.SampleRows = append(preview.SampleRows, row)
		}
	}
	return preview, nil
}

// Import runs the confirmed mapping over every data row. One bad row
// never aborts the batch; a storage failure stops it and the partial
// counters are returned alongside the error. With DryRun the exact
// match and skip outcome is computed with zero writes.
func (importer *CompletionImporter) Import(r io.Reader,
	request *model.ImportRequest) (*model.ImportResult, error) {

	logCtx := log.WithFields(log.Fields{
		"instance_id": request.InstanceID,
		"source":      request.Source,
		"dry_run":     request.DryRun,
	})

	result := &model.ImportResult{Errors: make([]string, 0)}
	if err := request.Validate(); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	reader := newCSVReader(r)
	headers, err := reader.Read()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to read csv header: %v", err))
		return result, nil
	}

	fieldColumns, err := resolveMapping(headers, request.Mapping)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	result.Success = true
	rowNumber := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowNumber++
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNumber, err))
			continue
		}
		rowNumber++

		record, rawData := parseRow(row, headers, fieldColumns)
		if record.AccountNumber == "" {
			result.Skipped++
			result.Errors = append(result.Errors,
				fmt.Sprintf("row %d: missing %s", rowNumber, model.FieldAccountNumber))
			continue
		}

		if err := importer.importRecord(request, record, rawData, result); err != nil {
			logCtx.WithError(err).WithField("row", rowNumber).Error("Import stopped on storage failure.")
			return result, err
		}
	}

	logCtx.WithFields(log.Fields{
		"imported": result.Imported,
		"matched":  result.Matched,
		"skipped":  result.Skipped,
	}).Info("Completion import finished.")
	return result, nil
}

// importRecord matches and persists one valid row. Counter semantics:
// imported counts persisted rows, matched the subset linked to a
// handoff, skipped the rows left unmatched or invalid.
func (importer *CompletionImporter) importRecord(request *model.ImportRequest,
	record *model.CompletionRecord, rawData string, result *model.ImportResult) error {

	match, alreadyClaimed := importer.matchRecord(request.InstanceID, record)

	if alreadyClaimed {
		result.Skipped++
		result.Errors = append(result.Errors,
			fmt.Sprintf("handoff %s already matched to another completion", record.HandoffToken))
	} else if match != nil {
		result.Matched++
	} else {
		result.Skipped++
	}

	if request.DryRun {
		if !alreadyClaimed {
			result.Imported++
		}
		return nil
	}

	completion := &model.ExternalCompletion{
		InstanceID:          request.InstanceID,
		Source:              request.Source,
		AccountNumber:       record.AccountNumber,
		CustomerEmail:       record.CustomerEmail,
		ExternalID:          record.ExternalID,
		CompletionType:      record.CompletionType,
		RawData:             rawData,
		CompletionTimestamp: record.CompletionTimestamp,
	}
	if match != nil {
		completion.HandoffToken = &match.Handoff.Token
		completion.Processed = true
	}
	if _, errCode := importer.store.CreateExternalCompletion(completion); errCode != http.StatusCreated {
		return errors.New("failed to persist external completion")
	}
	if !alreadyClaimed {
		result.Imported++
	}

	if match != nil && request.MatchHandoffs {
		_, err := importer.lifecycle.Complete(match.Handoff.Token, record.AccountNumber,
			record.CompletionTimestamp)
		if err != nil && err != model.ErrAlreadyTerminal {
			return errors.Wrap(err, "failed to complete matched handoff")
		}
	}
	return nil
}

// matchRecord resolves a row to a handoff: exact token match first,
// then the ordered fuzzy strategies within the lookback window.
// alreadyClaimed reports a token that another completion row holds;
// such rows are never re-matched.
func (importer *CompletionImporter) matchRecord(instanceID int64,
	record *model.CompletionRecord) (match *model.MatchCandidate, alreadyClaimed bool) {

	if record.HandoffToken != "" {
		handoffRow, errCode := importer.store.GetHandoff(record.HandoffToken)
		if errCode == http.StatusFound && handoffRow.InstanceID == instanceID {
			if _, errCode := importer.store.GetExternalCompletionByHandoffToken(
				instanceID, record.HandoffToken); errCode == http.StatusFound {
				return nil, true
			}
			return &model.MatchCandidate{Handoff: handoffRow, Confidence: 1, Strategy: "handoff_token"}, false
		}
		// Unknown token. Fall through to the fuzzy strategies.
	}

	windowFrom := record.CompletionTimestamp - int64(importer.conf.LookbackDays)*U.SECONDS_IN_A_DAY
	candidates, errCode := importer.store.GetMatchableHandoffs(instanceID,
		windowFrom, record.CompletionTimestamp)
	if errCode != http.StatusFound || len(candidates) == 0 {
		return nil, false
	}

	visitorIDs := make([]string, 0, len(candidates))
	for i := range candidates {
		visitorIDs = append(visitorIDs, candidates[i].VisitorID)
	}
	visitorEmails, _ := importer.store.GetVisitorEmails(instanceID, visitorIDs)

	return model.BestMatch(record, candidates, visitorEmails, importer.matchers,
		importer.conf.MinMatchConfidence), false
}

// RematchPendingCompletions is the explicit second pass over rows left
// unmatched by earlier runs, for handoffs that arrived late. Unmatched
// rows are otherwise terminal for their import run.
func (importer *CompletionImporter) RematchPendingCompletions(instanceID int64) (*model.ImportResult, error) {
	result := &model.ImportResult{Success: true, Errors: make([]string, 0)}

	pending, errCode := importer.store.GetPendingExternalCompletions(instanceID)
	if errCode != http.StatusFound {
		return nil, errors.New("failed to read pending completions")
	}

	for i := range pending {
		completion := &pending[i]
		record := &model.CompletionRecord{
			AccountNumber:       completion.AccountNumber,
			CustomerEmail:       completion.CustomerEmail,
			ExternalID:          completion.ExternalID,
			CompletionType:      completion.CompletionType,
			CompletionTimestamp: completion.CompletionTimestamp,
		}

		match, _ := importer.matchRecord(instanceID, record)
		if match == nil {
			result.Skipped++
			continue
		}

		if errCode := importer.store.UpdateExternalCompletionMatched(completion.ID,
			match.Handoff.Token); errCode != http.StatusAccepted {
			result.Skipped++
			result.Errors = append(result.Errors,
				fmt.Sprintf("completion %s: failed to record match", completion.ID))
			continue
		}
		result.Matched++

		_, err := importer.lifecycle.Complete(match.Handoff.Token,
			completion.AccountNumber, completion.CompletionTimestamp)
		if err != nil && err != model.ErrAlreadyTerminal {
			return result, errors.Wrap(err, "failed to complete matched handoff")
		}
	}
	return result, nil
}

// resolveMapping turns the header->field mapping into field->column
// indexes. A mapped header missing from the file is a structural
// failure, as is an absent account_number column.
func resolveMapping(headers []string, mapping map[string]string) (map[string]int, error) {
	columnIndex := make(map[string]int, len(headers))
	for i, header := range headers {
		columnIndex[strings.TrimSpace(header)] = i
	}

	fieldColumns := make(map[string]int)
	for header, field := range mapping {
		index, present := columnIndex[strings.TrimSpace(header)]
		if !present {
			return nil, fmt.Errorf("mapped column %q not found in csv header", header)
		}
		fieldColumns[field] = index
	}
	if _, present := fieldColumns[model.FieldAccountNumber]; !present {
		return nil, fmt.Errorf("required field %s is not mapped", model.FieldAccountNumber)
	}
	return fieldColumns, nil
}

func parseRow(row []string, headers []string, fieldColumns map[string]int) (*model.CompletionRecord, string) {
	value := func(field string) string {
		index, present := fieldColumns[field]
		if !present || index >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[index])
	}

	record := &model.CompletionRecord{
		AccountNumber:       value(model.FieldAccountNumber),
		CustomerEmail:       value(model.FieldCustomerEmail),
		ExternalID:          value(model.FieldExternalID),
		CompletionType:      value(model.FieldCompletionType),
		HandoffToken:        value(model.FieldHandoffToken),
		CompletionTimestamp: parseCompletionDate(value(model.FieldCompletionDate)),
	}

	raw := make(map[string]string, len(headers))
	for i, header := range headers {
		if i < len(row) {
			raw[header] = row[i]
		}
	}
	rawData, _ := json.Marshal(raw)
	return record, string(rawData)
}

// parseCompletionDate tries the accepted layouts, import time when the
// column is absent or unparseable.
func parseCompletionDate(value string) int64 {
	if value == "" {
		return U.TimeNowUnix()
	}
	for _, layout := range completionDateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.Unix()
		}
	}
	return U.TimeNowUnix()
}
