package model

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

type PeriodType string

const (
	PeriodWeekly       PeriodType = "Weekly"
	PeriodBiWeekly     PeriodType = "BiWeekly"
	PeriodMonthly      PeriodType = "Monthly"
	PeriodBiMonthly    PeriodType = "BiMonthly"
	PeriodQuarterly    PeriodType = "Quarterly"
	PeriodSemiAnnually PeriodType = "SemiAnnually"
	PeriodAnnually     PeriodType = "Annually"
)

var periodTypeDays = map[PeriodType]int{
	PeriodWeekly:       7,
	PeriodBiWeekly:     14,
	PeriodMonthly:      30,
	PeriodBiMonthly:    60,
	PeriodQuarterly:    91,
	PeriodSemiAnnually: 182,
	PeriodAnnually:     365,
}

// DefaultDays returns the nominal period length, or 0 for an unknown type.
func (p PeriodType) DefaultDays() int {
	return periodTypeDays[p]
}

type NextRunStatus string

const (
	NextRunStatusRunNow  NextRunStatus = "RunNow"
	NextRunStatusDueSoon NextRunStatus = "DueSoon"
	NextRunStatusFuture  NextRunStatus = "Future"
)

type HistoricalBillingStatus string

const (
	BillingStatusInsufficient HistoricalBillingStatus = "Insufficient"
	BillingStatusRegular      HistoricalBillingStatus = "Regular"
	BillingStatusIrregular    HistoricalBillingStatus = "Irregular"
	BillingStatusOverdue      HistoricalBillingStatus = "Overdue"
)

// DateLayout is the storage format of invoice history entries.
const DateLayout = "2006-01-02"

// AdrAccount is a vendor account whose invoices are retrieved automatically.
// Accounts are never deleted; IsActive is cleared instead.
type AdrAccount struct {
	ID                      uint                        `gorm:"primaryKey" json:"id"`
	VendorCode              string                      `gorm:"type:varchar(50);not null;index" json:"vendor_code"`
	AccountNumber           string                      `gorm:"type:varchar(100);not null" json:"account_number"`
	ExternalAccountID       string                      `gorm:"type:varchar(100);not null;uniqueIndex" json:"external_account_id"`
	CredentialID            string                      `gorm:"type:varchar(100)" json:"credential_id"`
	PeriodType              PeriodType                  `gorm:"type:varchar(20)" json:"period_type"`
	PeriodDays              *int                        `json:"period_days"`
	MedianDays              *int                        `json:"median_days"`
	InvoiceHistory          datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"invoice_history"`
	LastInvoiceDate         *time.Time                  `gorm:"type:date" json:"last_invoice_date"`
	ExpectedNextDate        *time.Time                  `gorm:"type:date" json:"expected_next_date"`
	ExpectedRangeStart      *time.Time                  `gorm:"type:date" json:"expected_range_start"`
	ExpectedRangeEnd        *time.Time                  `gorm:"type:date" json:"expected_range_end"`
	NextRunDate             *time.Time                  `gorm:"type:date" json:"next_run_date"`
	NextRangeStart          *time.Time                  `gorm:"type:date" json:"next_range_start"`
	NextRangeEnd            *time.Time                  `gorm:"type:date" json:"next_range_end"`
	CredentialCheckDate     *time.Time                  `gorm:"type:date" json:"credential_check_date"`
	NextRunStatus           NextRunStatus               `gorm:"type:varchar(20)" json:"next_run_status"`
	HistoricalBillingStatus HistoricalBillingStatus     `gorm:"type:varchar(20)" json:"historical_billing_status"`
	IsManualOverride        bool                        `gorm:"not null" json:"is_manual_override"`
	ManualOverrideBy        string                      `gorm:"type:varchar(100)" json:"manual_override_by"`
	ManualOverrideAt        *time.Time                  `json:"manual_override_at"`
	IsMissing               bool                        `gorm:"not null" json:"is_missing"`
	IsActive                bool                        `gorm:"not null" json:"is_active"`
	LastSyncedAt            *time.Time                  `json:"last_synced_at"`
	CreatedAt               time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AdrAccount) TableName() string {
	return "adr_accounts"
}

// InvoiceDates parses InvoiceHistory, skipping malformed entries, sorted ascending.
func (a AdrAccount) InvoiceDates() []time.Time {
	dates := make([]time.Time, 0, len(a.InvoiceHistory))
	for _, raw := range a.InvoiceHistory {
		d, err := time.Parse(DateLayout, raw)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// AddInvoiceDate appends d unless the day is already recorded. It reports
// whether the history changed.
func (a *AdrAccount) AddInvoiceDate(d time.Time) bool {
	day := d.UTC().Format(DateLayout)
	for _, existing := range a.InvoiceHistory {
		if existing == day {
			return false
		}
	}
	a.InvoiceHistory = append(a.InvoiceHistory, day)
	sort.Strings(a.InvoiceHistory)
	return true
}

type GetAdrAccountParam struct {
	IDs                 []uint   `json:"ids"`
	ExternalAccountIDs  []string `json:"external_account_ids"`
	IsActive            *bool    `json:"is_active"`
	IsMissing           *bool    `json:"is_missing"`
	CredentialCheckDue  *time.Time
	NextRangeEndOnAfter *time.Time
	Limit               *int `json:"limit"`
}
