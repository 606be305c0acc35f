package model

import (
	"time"

	"gorm.io/gorm"
)

type AdrJobStatus string

const (
	AdrJobStatusPending            AdrJobStatus = "Pending"
	AdrJobStatusCredentialVerified AdrJobStatus = "CredentialVerified"
	AdrJobStatusCredentialFailed   AdrJobStatus = "CredentialFailed"
	AdrJobStatusRequestSent        AdrJobStatus = "ADRRequestSent"
	AdrJobStatusCompleted          AdrJobStatus = "Completed"
	AdrJobStatusFailed             AdrJobStatus = "Failed"
	AdrJobStatusNeedsReview        AdrJobStatus = "NeedsReview"
)

func (s AdrJobStatus) IsTerminal() bool {
	return s == AdrJobStatusCompleted || s == AdrJobStatusFailed
}

// AdrJob tracks retrieval of one invoice for one account and billing period.
type AdrJob struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	AdrAccountID         uint           `gorm:"not null;uniqueIndex:idx_adr_jobs_account_period" json:"adr_account_id"`
	BillingPeriodStart   time.Time      `gorm:"type:date;not null;uniqueIndex:idx_adr_jobs_account_period" json:"billing_period_start"`
	BillingPeriodEnd     time.Time      `gorm:"type:date;not null;uniqueIndex:idx_adr_jobs_account_period" json:"billing_period_end"`
	Status               AdrJobStatus   `gorm:"type:varchar(30);not null;index" json:"status"`
	IsMissing            bool           `gorm:"not null" json:"is_missing"`
	RetryCount           int            `gorm:"not null" json:"retry_count"`
	ErrorMessage         string         `gorm:"type:text" json:"error_message"`
	CredentialVerifiedAt *time.Time     `json:"credential_verified_at"`
	ScrapingCompletedAt  *time.Time     `json:"scraping_completed_at"`
	LastRequestSentAt    *time.Time     `json:"last_request_sent_at"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`

	Account *AdrAccount `gorm:"foreignKey:AdrAccountID" json:"account,omitempty"`
}

func (AdrJob) TableName() string {
	return "adr_jobs"
}

type GetAdrJobParam struct {
	IDs             []uint         `json:"ids"`
	AdrAccountID    *uint          `json:"adr_account_id"`
	Statuses        []AdrJobStatus `json:"statuses"`
	PeriodEndBefore *time.Time     `json:"period_end_before"`
	WithAccount     bool           `json:"with_account"`
	Limit           *int           `json:"limit"`
}
