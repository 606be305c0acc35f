package model

import (
	"time"

	"gorm.io/datatypes"
)

type OrchestrationStatus string

const (
	OrchestrationStatusRunning   OrchestrationStatus = "Running"
	OrchestrationStatusCompleted OrchestrationStatus = "Completed"
	OrchestrationStatusFailed    OrchestrationStatus = "Failed"
	OrchestrationStatusCancelled OrchestrationStatus = "Cancelled"
)

type OrchestrationStep string

const (
	StepCheckStatuses     OrchestrationStep = "CheckStatuses"
	StepSendRequests      OrchestrationStep = "SendRequests"
	StepVerifyCredentials OrchestrationStep = "VerifyCredentials"
	StepCreateJobs        OrchestrationStep = "CreateJobs"
	StepSyncAccounts      OrchestrationStep = "SyncAccounts"
	StepCleanup           OrchestrationStep = "Cleanup"
)

// FullCycleSteps is the order of a full orchestration run.
var FullCycleSteps = []OrchestrationStep{
	StepCheckStatuses,
	StepSendRequests,
	StepVerifyCredentials,
	StepCreateJobs,
	StepSyncAccounts,
	StepCleanup,
}

const (
	OrchestrationModeSync       = "Sync"
	OrchestrationModeBackground = "Background"
	orchestrationModeStepPrefix = "Step:"
)

func OrchestrationModeStep(step OrchestrationStep) string {
	return orchestrationModeStepPrefix + string(step)
}

type StepResult struct {
	Step        OrchestrationStep `json:"step"`
	Processed   int               `json:"processed"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	Errors      []string          `json:"errors,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// AdrOrchestrationRun is the persisted record of one orchestration run.
type AdrOrchestrationRun struct {
	ID           uint                            `gorm:"primaryKey" json:"-"`
	RequestID    string                          `gorm:"type:varchar(36);not null;uniqueIndex" json:"request_id"`
	Mode         string                          `gorm:"type:varchar(50);not null" json:"mode"`
	Status       OrchestrationStatus             `gorm:"type:varchar(20);not null;index" json:"status"`
	CurrentStep  OrchestrationStep               `gorm:"type:varchar(30)" json:"current_step"`
	StepResults  datatypes.JSONSlice[StepResult] `gorm:"type:jsonb" json:"step_results"`
	StartedAt    time.Time                       `gorm:"not null" json:"started_at"`
	CompletedAt  *time.Time                      `json:"completed_at"`
	TriggeredBy  string                          `gorm:"type:varchar(100)" json:"triggered_by"`
	CancelledBy  string                          `gorm:"type:varchar(100)" json:"cancelled_by"`
	ErrorMessage string                          `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time                       `gorm:"autoCreateTime" json:"-"`
}

func (AdrOrchestrationRun) TableName() string {
	return "adr_orchestration_runs"
}
