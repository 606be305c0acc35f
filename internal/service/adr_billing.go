package service

import (
	"math"
	"sort"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"
)

// BillingWindow holds the window parameters of the billing calculator.
type BillingWindow struct {
	DaysBefore          int
	DaysAfter           int
	CredentialLeadDays  int
	RegularityTolerance int
}

func NewBillingWindow(cfg config.ADR) BillingWindow {
	return BillingWindow{
		DaysBefore:          cfg.WindowDaysBefore,
		DaysAfter:           cfg.WindowDaysAfter,
		CredentialLeadDays:  cfg.CredentialLeadDays,
		RegularityTolerance: cfg.RegularityToleranceDays,
	}
}

// BillingResult is the derived billing state of an account. Date fields are
// nil when the account has no invoice to project from.
type BillingResult struct {
	MedianDays              *int
	PeriodLength            int
	LastInvoiceDate         *time.Time
	ExpectedNextDate        *time.Time
	ExpectedRangeStart      *time.Time
	ExpectedRangeEnd        *time.Time
	NextRunDate             *time.Time
	NextRangeStart          *time.Time
	NextRangeEnd            *time.Time
	CredentialCheckDate     *time.Time
	NextRunStatus           model.NextRunStatus
	HistoricalBillingStatus model.HistoricalBillingStatus
}

// CalculateBilling projects the next billing window from invoice history.
// The result depends only on its inputs.
func (w BillingWindow) CalculateBilling(invoices []time.Time, periodType model.PeriodType, periodDays *int, now time.Time) BillingResult {
	today := utils.TruncateDay(now)
	days := distinctDays(invoices)
	gaps := invoiceGaps(days)

	result := BillingResult{
		NextRunStatus:           model.NextRunStatusFuture,
		HistoricalBillingStatus: model.BillingStatusInsufficient,
	}

	median, hasMedian := medianGap(gaps)
	switch {
	case hasMedian && median > 0:
		result.MedianDays = utils.ToPointer(median)
		result.PeriodLength = median
	case periodDays != nil && *periodDays > 0:
		result.PeriodLength = *periodDays
	default:
		result.PeriodLength = periodType.DefaultDays()
	}

	if hasMedian {
		result.HistoricalBillingStatus = model.BillingStatusRegular
		for _, g := range gaps {
			if absInt(g-median) > w.RegularityTolerance {
				result.HistoricalBillingStatus = model.BillingStatusIrregular
				break
			}
		}
	}

	if len(days) == 0 || result.PeriodLength <= 0 {
		return result
	}

	last := days[len(days)-1]
	expected := last.AddDate(0, 0, result.PeriodLength)
	rangeStart := expected.AddDate(0, 0, -w.DaysBefore)
	rangeEnd := expected.AddDate(0, 0, w.DaysAfter)

	result.LastInvoiceDate = utils.ToPointer(last)
	result.ExpectedNextDate = utils.ToPointer(expected)
	result.ExpectedRangeStart = utils.ToPointer(rangeStart)
	result.ExpectedRangeEnd = utils.ToPointer(rangeEnd)

	if today.After(rangeEnd) {
		result.HistoricalBillingStatus = model.BillingStatusOverdue
	}

	// Roll a stale window forward by whole periods until it ends today or later.
	nextRun, nextStart, nextEnd := expected, rangeStart, rangeEnd
	if nextEnd.Before(today) {
		periods := int(math.Ceil(float64(utils.DaysBetween(nextEnd, today)) / float64(result.PeriodLength)))
		shift := periods * result.PeriodLength
		nextRun = nextRun.AddDate(0, 0, shift)
		nextStart = nextStart.AddDate(0, 0, shift)
		nextEnd = nextEnd.AddDate(0, 0, shift)
	}
	credentialCheck := nextStart.AddDate(0, 0, -w.CredentialLeadDays)

	result.NextRunDate = utils.ToPointer(nextRun)
	result.NextRangeStart = utils.ToPointer(nextStart)
	result.NextRangeEnd = utils.ToPointer(nextEnd)
	result.CredentialCheckDate = utils.ToPointer(credentialCheck)

	switch {
	case !today.Before(nextStart) && !today.After(nextEnd):
		result.NextRunStatus = model.NextRunStatusRunNow
	case !today.Before(credentialCheck) && today.Before(nextStart):
		result.NextRunStatus = model.NextRunStatusDueSoon
	default:
		result.NextRunStatus = model.NextRunStatusFuture
	}
	return result
}

// ApplyBilling recomputes the billing fields of account. Manually overridden
// accounts are left untouched and false is returned.
func (w BillingWindow) ApplyBilling(account *model.AdrAccount, now time.Time) bool {
	if account.IsManualOverride {
		return false
	}
	r := w.CalculateBilling(account.InvoiceDates(), account.PeriodType, account.PeriodDays, now)
	account.MedianDays = r.MedianDays
	account.LastInvoiceDate = r.LastInvoiceDate
	account.ExpectedNextDate = r.ExpectedNextDate
	account.ExpectedRangeStart = r.ExpectedRangeStart
	account.ExpectedRangeEnd = r.ExpectedRangeEnd
	account.NextRunDate = r.NextRunDate
	account.NextRangeStart = r.NextRangeStart
	account.NextRangeEnd = r.NextRangeEnd
	account.CredentialCheckDate = r.CredentialCheckDate
	account.NextRunStatus = r.NextRunStatus
	account.HistoricalBillingStatus = r.HistoricalBillingStatus
	return true
}

func distinctDays(invoices []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(invoices))
	days := make([]time.Time, 0, len(invoices))
	for _, inv := range invoices {
		d := utils.TruncateDay(inv)
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func invoiceGaps(days []time.Time) []int {
	if len(days) < 2 {
		return nil
	}
	gaps := make([]int, 0, len(days)-1)
	for i := 1; i < len(days); i++ {
		gaps = append(gaps, utils.DaysBetween(days[i-1], days[i]))
	}
	return gaps
}

// medianGap returns the median gap; an even count uses the rounded mean of
// the middle pair.
func medianGap(gaps []int) (int, bool) {
	if len(gaps) == 0 {
		return 0, false
	}
	sorted := append([]int(nil), gaps...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return int(math.Round(float64(sorted[mid-1]+sorted[mid]) / 2)), true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
