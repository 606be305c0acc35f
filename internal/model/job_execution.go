package model

import (
	"database/sql"
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "Running"
	ExecutionStatusCompleted ExecutionStatus = "Completed"
	ExecutionStatusFailed    ExecutionStatus = "Failed"
	ExecutionStatusCancelled ExecutionStatus = "Cancelled"
)

func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// JobExecution is one attempt of a schedule. At most one Running row exists
// per schedule.
type JobExecution struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ScheduleID   uint            `gorm:"not null;index" json:"schedule_id"`
	StartTime    time.Time       `gorm:"not null" json:"start_time"`
	EndTime      sql.NullTime    `json:"-"`
	Status       ExecutionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Output       string          `gorm:"type:text" json:"output"`
	ErrorMessage string          `gorm:"type:text" json:"error_message"`
	ErrorTag     string          `gorm:"type:varchar(64)" json:"error_tag"`
	RetryCount   int             `gorm:"not null" json:"retry_count"`
	DurationMs   sql.NullInt64   `json:"-"`
	TriggeredBy  string          `gorm:"type:varchar(100)" json:"triggered_by"`
	CancelledBy  string          `gorm:"type:varchar(100)" json:"cancelled_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (JobExecution) TableName() string {
	return "job_executions"
}

type GetJobExecutionParam struct {
	IDs           []uint           `json:"ids"`
	ScheduleID    *uint            `json:"schedule_id"`
	Status        *ExecutionStatus `json:"status"`
	StartedBefore *time.Time       `json:"started_before"`
	Limit         *int             `json:"limit"`
}
