package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/httpclient"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"
)

const maxPayloadLog = 8 * 1024

// AdrVendorRepository calls the invoice retrieval API.
type AdrVendorRepository interface {
	SendRequest(ctx context.Context, job model.AdrJob, account model.AdrAccount) (*dto.AdrVendorCall, error)
	CheckStatus(ctx context.Context, job model.AdrJob, account model.AdrAccount) (*dto.AdrStatusResult, error)
}

type adrVendorRepository struct {
	log        *logger.Logger
	httpClient httpclient.HTTPClient
	apiKey     string
	now        func() time.Time
}

func NewAdrVendorRepository(cfg *config.Config, log *logger.Logger) AdrVendorRepository {
	return &adrVendorRepository{
		log:        log,
		httpClient: httpclient.New(cfg.ADR.VendorBaseURL, cfg.ADR.RequestTimeout, ""),
		apiKey:     cfg.ADR.VendorAPIKey,
		now:        utils.TimeNowUTC,
	}
}

func (r *adrVendorRepository) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if r.apiKey != "" {
		h["X-API-Key"] = r.apiKey
	}
	return h
}

// SendRequest asks the vendor to retrieve the invoice of job's billing period.
// The returned call is non-nil whenever a request was attempted.
func (r *adrVendorRepository) SendRequest(ctx context.Context, job model.AdrJob, account model.AdrAccount) (*dto.AdrVendorCall, error) {
	body := dto.AdrVendorRequest{
		JobID:              job.ID,
		VendorCode:         account.VendorCode,
		AccountNumber:      account.AccountNumber,
		ExternalAccountID:  account.ExternalAccountID,
		CredentialID:       account.CredentialID,
		BillingPeriodStart: job.BillingPeriodStart.Format(model.DateLayout),
		BillingPeriodEnd:   job.BillingPeriodEnd.Format(model.DateLayout),
		Attempt:            job.RetryCount + 1,
	}
	payload, _ := json.Marshal(body)

	call := &dto.AdrVendorCall{RequestPayload: string(payload), StartedAt: r.now()}
	var out dto.AdrVendorRequestResponse
	resp, err := r.httpClient.Post(ctx, "/adr/requests", body, r.headers(), &out)
	call.CompletedAt = r.now()
	if resp != nil {
		call.HTTPStatusCode = resp.StatusCode
		call.ResponsePayload = utils.Truncate(string(resp.Body), maxPayloadLog)
	}
	if err != nil {
		return call, errors.Wrapf(err, "send adr request for job %d", job.ID)
	}
	if !resp.IsSuccess() {
		return call, errors.Newf("send adr request for job %d: vendor returned %d", job.ID, resp.StatusCode)
	}
	if !out.Accepted {
		return call, errors.Newf("send adr request for job %d: vendor rejected request: %s", job.ID, out.Message)
	}
	return call, nil
}

// CheckStatus asks the vendor whether the invoice for job has been retrieved.
func (r *adrVendorRepository) CheckStatus(ctx context.Context, job model.AdrJob, account model.AdrAccount) (*dto.AdrStatusResult, error) {
	endpoint := fmt.Sprintf("/adr/requests/%d/status", job.ID)
	query := map[string]string{
		"external_account_id":  account.ExternalAccountID,
		"billing_period_start": job.BillingPeriodStart.Format(model.DateLayout),
		"billing_period_end":   job.BillingPeriodEnd.Format(model.DateLayout),
	}

	result := &dto.AdrStatusResult{}
	result.RequestPayload = endpoint + "?" + encodeQuery(query)
	result.StartedAt = r.now()

	var out dto.AdrVendorStatusResponse
	resp, err := r.httpClient.Get(ctx, endpoint, query, r.headers(), &out)
	result.CompletedAt = r.now()
	if resp != nil {
		result.HTTPStatusCode = resp.StatusCode
		result.ResponsePayload = utils.Truncate(string(resp.Body), maxPayloadLog)
	}
	if err != nil {
		return result, errors.Wrapf(err, "check adr status for job %d", job.ID)
	}
	if !resp.IsSuccess() {
		return result, errors.Newf("check adr status for job %d: vendor returned %d", job.ID, resp.StatusCode)
	}

	result.Status = out.Status
	result.Message = out.Message
	if out.InvoiceDate != "" {
		d, err := time.Parse(model.DateLayout, out.InvoiceDate)
		if err != nil {
			r.log.WarnContext(ctx, "Vendor returned unparsable invoice date",
				logger.UintField("adr_job_id", job.ID),
				logger.StringField("invoice_date", out.InvoiceDate),
			)
		} else {
			result.InvoiceDate = &d
		}
	}
	return result, nil
}

func encodeQuery(q map[string]string) string {
	values := url.Values{}
	for k, v := range q {
		values.Set(k, v)
	}
	return values.Encode()
}
