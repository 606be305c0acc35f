package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobType string

const (
	JobTypeProcess         JobType = "Process"
	JobTypeStoredProcedure JobType = "StoredProcedure"
	JobTypeApiCall         JobType = "ApiCall"
)

func (t JobType) IsValid() bool {
	switch t {
	case JobTypeProcess, JobTypeStoredProcedure, JobTypeApiCall:
		return true
	}
	return false
}

// Schedule is a recurring job definition. NextRunTime is the earliest future
// cron occurrence, the pending retry instant while a retry is armed, or null
// while the schedule is disabled.
type Schedule struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	TenantID          string         `gorm:"type:varchar(100);index" json:"tenant_id"`
	Name              string         `gorm:"type:varchar(255);not null" json:"name"`
	Description       string         `gorm:"type:text" json:"description"`
	JobType           JobType        `gorm:"type:varchar(50);not null" json:"job_type"`
	CronExpression    string         `gorm:"type:varchar(100);not null" json:"cron_expression"`
	TimeZone          string         `gorm:"type:varchar(64);not null" json:"time_zone"`
	IsEnabled         bool           `gorm:"not null" json:"is_enabled"`
	IsSystem          bool           `gorm:"not null" json:"is_system"`
	MaxRetries        int            `gorm:"not null" json:"max_retries"`
	RetryDelayMinutes int            `gorm:"not null" json:"retry_delay_minutes"`
	TimeoutMinutes    *int           `json:"timeout_minutes"`
	JobConfiguration  datatypes.JSON `gorm:"type:jsonb;not null" json:"job_configuration"`
	NotifyOnSuccess   bool           `gorm:"not null" json:"notify_on_success"`
	NotifyOnFailure   bool           `gorm:"not null" json:"notify_on_failure"`
	NextRunTime       sql.NullTime   `gorm:"index" json:"-"`
	LastRunTime       sql.NullTime   `json:"-"`
	CurrentRetryCount int            `gorm:"not null" json:"current_retry_count"`
	CreatedBy         string         `gorm:"type:varchar(100)" json:"created_by"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	Parameters []JobParameter `gorm:"foreignKey:ScheduleID" json:"parameters,omitempty"`
}

func (Schedule) TableName() string {
	return "schedules"
}

// Timeout returns the per-run timeout, falling back to def.
func (s Schedule) Timeout(def time.Duration) time.Duration {
	if s.TimeoutMinutes != nil && *s.TimeoutMinutes > 0 {
		return time.Duration(*s.TimeoutMinutes) * time.Minute
	}
	return def
}

type GetScheduleParam struct {
	IDs       []uint     `json:"ids"`
	TenantID  *string    `json:"tenant_id"`
	IsEnabled *bool      `json:"is_enabled"`
	JobType   *JobType   `json:"job_type"`
	DueBefore *time.Time `json:"due_before"`
	Limit     *int       `json:"limit"`
	Offset    *int       `json:"offset"`
}

// ScheduleTiming is the set of columns the scheduler loop writes. Writing only
// these keeps concurrent edits of the definition intact.
type ScheduleTiming struct {
	NextRunTime       sql.NullTime
	LastRunTime       sql.NullTime
	CurrentRetryCount int
}
