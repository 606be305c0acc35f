package dto

import "time"

// Vendor-side status values returned by the retrieval API.
const (
	VendorStatusCompleted   = "completed"
	VendorStatusPending     = "pending"
	VendorStatusNeedsReview = "needs_review"
	VendorStatusFailed      = "failed"
)

type AdrVendorRequest struct {
	JobID              uint   `json:"job_id"`
	VendorCode         string `json:"vendor_code"`
	AccountNumber      string `json:"account_number"`
	ExternalAccountID  string `json:"external_account_id"`
	CredentialID       string `json:"credential_id"`
	BillingPeriodStart string `json:"billing_period_start"`
	BillingPeriodEnd   string `json:"billing_period_end"`
	Attempt            int    `json:"attempt"`
}

type AdrVendorRequestResponse struct {
	RequestID string `json:"request_id"`
	Accepted  bool   `json:"accepted"`
	Message   string `json:"message"`
}

type AdrVendorStatusResponse struct {
	Status      string `json:"status"`
	InvoiceDate string `json:"invoice_date"`
	Message     string `json:"message"`
}

// AdrVendorCall is what the orchestrator logs for every vendor round-trip.
type AdrVendorCall struct {
	HTTPStatusCode  int
	RequestPayload  string
	ResponsePayload string
	StartedAt       time.Time
	CompletedAt     time.Time
}

type AdrStatusResult struct {
	AdrVendorCall
	Status      string
	InvoiceDate *time.Time
	Message     string
}

type CredentialVerifyResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// AdrAccountSourceRow is one invoice row of the external account source.
// An account without invoices appears once with an empty InvoiceDate.
type AdrAccountSourceRow struct {
	VendorCode        string
	AccountNumber     string
	ExternalAccountID string
	CredentialID      string
	PeriodType        string
	PeriodDays        *int
	IsMissing         bool
	InvoiceDate       *time.Time
}
