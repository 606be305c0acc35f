package model

import "time"

type AdrRequestType string

const (
	AdrRequestTypeSendRequest AdrRequestType = "SendRequest"
	AdrRequestTypeCheckStatus AdrRequestType = "CheckStatus"
)

// AdrJobExecution is an append-only log of vendor calls made for an AdrJob.
type AdrJobExecution struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	AdrJobID        uint           `gorm:"not null;index" json:"adr_job_id"`
	RequestType     AdrRequestType `gorm:"type:varchar(20);not null" json:"request_type"`
	IsSuccess       bool           `gorm:"not null" json:"is_success"`
	IsError         bool           `gorm:"not null" json:"is_error"`
	HttpStatusCode  int            `json:"http_status_code"`
	RequestPayload  string         `gorm:"type:text" json:"request_payload"`
	ResponsePayload string         `gorm:"type:text" json:"response_payload"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message"`
	IsFinal         bool           `gorm:"not null" json:"is_final"`
	StartedAt       time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt     time.Time      `gorm:"not null" json:"completed_at"`
}

func (AdrJobExecution) TableName() string {
	return "adr_job_executions"
}
