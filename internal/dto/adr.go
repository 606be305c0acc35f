package dto

import (
	"time"

	"automation-scheduler/internal/model"
)

type ListAdrAccountsRequest struct {
	IsActive  *bool `query:"is_active"`
	IsMissing *bool `query:"is_missing"`
	Limit     int   `query:"limit" validate:"min=0,max=1000"`
}

// AdrAccountOverrideRequest pins the billing window of an account. Dates use
// the 2006-01-02 layout.
type AdrAccountOverrideRequest struct {
	By             string `json:"by" validate:"required,max=100"`
	PeriodType     string `json:"period_type" validate:"omitempty,oneof=Weekly BiWeekly Monthly BiMonthly Quarterly SemiAnnually Annually"`
	PeriodDays     *int   `json:"period_days" validate:"omitempty,min=1,max=366"`
	NextRangeStart string `json:"next_range_start" validate:"required,datetime=2006-01-02"`
	NextRangeEnd   string `json:"next_range_end" validate:"required,datetime=2006-01-02"`
}

// Range parses the requested window.
func (r AdrAccountOverrideRequest) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(model.DateLayout, r.NextRangeStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(model.DateLayout, r.NextRangeEnd)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

type HistoryRequest struct {
	Limit int `query:"limit" validate:"min=0,max=200"`
}
