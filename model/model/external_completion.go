package model

import (
	"strings"
	"time"
)

// Canonical fields an imported completion column can map to.
const (
	FieldAccountNumber  = "account_number"
	FieldCustomerEmail  = "customer_email"
	FieldExternalID     = "external_id"
	FieldCompletionType = "completion_type"
	FieldCompletionDate = "completion_date"
	FieldHandoffToken   = "handoff_token"
	FieldFirstName      = "first_name"
	FieldLastName       = "last_name"
	FieldPhone          = "phone"
	FieldAddress        = "address"
	FieldCity           = "city"
	FieldState          = "state"
	FieldZip            = "zip"
)

// ExternalCompletion is one row of an imported off-site completion
// feed. handoff_token is set only after a successful match; processed
// stays false until a match decision is recorded.
type ExternalCompletion struct {
	ID         string `gorm:"primary_key:true;type:varchar(32)" json:"id"`
	InstanceID int64  `json:"instance_id"`
	Source     string `gorm:"type:varchar(255)" json:"source"`

	AccountNumber  string `gorm:"type:varchar(128)" json:"account_number"`
	CustomerEmail  string `gorm:"type:varchar(255);default:null" json:"customer_email"`
	ExternalID     string `gorm:"type:varchar(255);default:null" json:"external_id"`
	CompletionType string `gorm:"type:varchar(64);default:null" json:"completion_type"`

	HandoffToken *string `gorm:"type:varchar(64);default:null" json:"handoff_token"`

	// Original CSV row, marshaled as json, kept for audit.
	RawData   string `gorm:"type:text" json:"raw_data"`
	Processed bool   `gorm:"default:false" json:"processed"`

	// unix epoch timestamp in seconds, from the mapped completion_date
	// column, import time when absent.
	CompletionTimestamp int64     `json:"completion_timestamp"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Header synonyms for auto mapping, in canonical field order. The first
// field whose synonym matches the normalized header wins.
var fieldSynonyms = []struct {
	field    string
	synonyms []string
}{
	{FieldHandoffToken, []string{"handofftoken", "handoff", "referencetoken", "reference", "token"}},
	{FieldAccountNumber, []string{"accountnumber", "accountno", "accountnum", "acctnumber", "acctno", "memberno", "membernumber"}},
	{FieldCustomerEmail, []string{"customeremail", "emailaddress", "email"}},
	{FieldExternalID, []string{"externalid", "recordid", "confirmationid", "confirmationnumber"}},
	{FieldCompletionType, []string{"completiontype", "enrollmenttype", "ordertype", "type"}},
	{FieldCompletionDate, []string{"completiondate", "completedat", "enrollmentdate", "orderdate", "date"}},
	{FieldFirstName, []string{"firstname", "fname", "givenname"}},
	{FieldLastName, []string{"lastname", "lname", "surname", "familyname"}},
	{FieldPhone, []string{"phonenumber", "phone", "telephone", "mobile"}},
	{FieldAddress, []string{"streetaddress", "address"}},
	{FieldCity, []string{"city", "town"}},
	{FieldState, []string{"state", "province"}},
	{FieldZip, []string{"zipcode", "zip", "postalcode", "postcode"}},
}

func normalizeHeader(header string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(header) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AutoMapColumns guesses a canonical field per CSV header. The result
// is a suggestion only; the caller confirms or overrides before import.
// "account" alone is ambiguous between account_number and external_id,
// so a bare "account" header is deliberately left unmapped rather than
// guessed (the importer requires an explicit account_number mapping).
func AutoMapColumns(headers []string) map[string]string {
	mapping := make(map[string]string)
	taken := make(map[string]bool)

	for _, header := range headers {
		normalized := normalizeHeader(header)
		if normalized == "" || normalized == "account" {
			continue
		}
		for _, fs := range fieldSynonyms {
			if taken[fs.field] {
				continue
			}
			matched := false
			for _, syn := range fs.synonyms {
				if strings.Contains(normalized, syn) {
					matched = true
					break
				}
			}
			if matched {
				mapping[header] = fs.field
				taken[fs.field] = true
				break
			}
		}
	}
	return mapping
}
