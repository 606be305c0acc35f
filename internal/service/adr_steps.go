package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/common"
	"automation-scheduler/pkg/cache"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"

	"golang.org/x/sync/errgroup"
)

const (
	credentialLimiterKey = "credential-service"
	maxStepErrors        = 20
)

type stepFunc func(ctx context.Context, counter *stepCounter) error

// stepCounter aggregates per-item outcomes of a step across workers.
type stepCounter struct {
	mu  sync.Mutex
	res model.StepResult
}

func (c *stepCounter) succeeded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Processed++
	c.res.Succeeded++
}

func (c *stepCounter) skipped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Skipped++
}

func (c *stepCounter) failed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Processed++
	c.res.Failed++
	if len(c.res.Errors) < maxStepErrors {
		c.res.Errors = append(c.res.Errors, err.Error())
	}
}

func (c *stepCounter) result() model.StepResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.res
	res.Errors = append([]string(nil), c.res.Errors...)
	return res
}

func (s *adrOrchestratorService) stepFunc(step model.OrchestrationStep) (stepFunc, bool) {
	switch step {
	case model.StepCheckStatuses:
		return s.checkStatuses, true
	case model.StepSendRequests:
		return s.sendRequests, true
	case model.StepVerifyCredentials:
		return s.verifyCredentials, true
	case model.StepCreateJobs:
		return s.createJobs, true
	case model.StepSyncAccounts:
		return s.syncAccounts, true
	case model.StepCleanup:
		return s.cleanup, true
	}
	return nil, false
}

// fanOut runs fn for every item with at most adr.max_concurrency workers.
// Item errors are counted, never returned, so one account cannot stop a step.
func fanOut[T any](ctx context.Context, limit int, items []T, counter *stepCounter, fn func(ctx context.Context, item T) (bool, error)) {
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range items {
		item := items[i]
		g.Go(func() error {
			done, err := fn(gctx, item)
			switch {
			case err != nil:
				counter.failed(err)
			case done:
				counter.succeeded()
			default:
				counter.skipped()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// checkStatuses polls the vendor for every sent request.
func (s *adrOrchestratorService) checkStatuses(ctx context.Context, counter *stepCounter) error {
	jobs, err := s.repo.AdrJobRepo.Get(ctx, &model.GetAdrJobParam{
		Statuses:    []model.AdrJobStatus{model.AdrJobStatusRequestSent, model.AdrJobStatusNeedsReview},
		WithAccount: true,
	})
	if err != nil {
		return errors.Wrap(err, "load sent adr jobs")
	}
	fanOut(ctx, s.cfg.ADR.MaxConcurrency, jobs, counter, s.checkJobStatus)
	return nil
}

func (s *adrOrchestratorService) checkJobStatus(ctx context.Context, job model.AdrJob) (bool, error) {
	if job.Account == nil {
		return false, errors.Newf("adr job %d has no account", job.ID)
	}
	account := *job.Account
	if err := s.limiters.Wait(ctx, account.VendorCode); err != nil {
		return false, errors.Wrapf(err, "throttle vendor %s", account.VendorCode)
	}

	res, callErr := s.repo.AdrVendorRepo.CheckStatus(ctx, job, account)

	var (
		target  model.AdrJobStatus
		message string
	)
	if callErr == nil {
		switch res.Status {
		case dto.VendorStatusCompleted:
			target = model.AdrJobStatusCompleted
		case dto.VendorStatusNeedsReview:
			if job.Status != model.AdrJobStatusNeedsReview {
				target = model.AdrJobStatusNeedsReview
				message = res.Message
			}
		case dto.VendorStatusFailed:
			message = res.Message
		}
	}

	now := s.now()
	err := s.repo.UnitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		if err := s.repo.AdrJobExecutionRepo.Create(ctx, vendorExecution(job.ID, model.AdrRequestTypeCheckStatus, statusCall(res), callErr, target.IsTerminal()), opts...); err != nil {
			return errors.Wrapf(err, "log status check of adr job %d", job.ID)
		}
		if callErr != nil {
			return nil
		}
		if target == "" {
			if message != "" && message != job.ErrorMessage {
				job.ErrorMessage = message
				return s.repo.AdrJobRepo.Update(ctx, &job, opts...)
			}
			return nil
		}
		if err := s.lifecycle.Transition(ctx, &job, target, message, opts...); err != nil {
			return err
		}
		if target == model.AdrJobStatusCompleted && res.InvoiceDate != nil {
			if account.AddInvoiceDate(*res.InvoiceDate) {
				s.billing.ApplyBilling(&account, now)
				if err := s.repo.AdrAccountRepo.Save(ctx, &account, opts...); err != nil {
					return errors.Wrapf(err, "record invoice of account %d", account.ID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if callErr != nil {
		return false, callErr
	}
	return target != "", nil
}

// sendRequests asks the vendor to retrieve invoices for verified jobs whose
// window is open. Each job is sent at most once per day.
func (s *adrOrchestratorService) sendRequests(ctx context.Context, counter *stepCounter) error {
	jobs, err := s.repo.AdrJobRepo.Get(ctx, &model.GetAdrJobParam{
		Statuses:    []model.AdrJobStatus{model.AdrJobStatusCredentialVerified, model.AdrJobStatusRequestSent},
		WithAccount: true,
	})
	if err != nil {
		return errors.Wrap(err, "load verified adr jobs")
	}

	today := utils.TruncateDay(s.now())
	eligible := make([]model.AdrJob, 0, len(jobs))
	for _, job := range jobs {
		switch {
		case job.IsMissing || (job.Account != nil && job.Account.IsMissing):
		case today.Before(utils.TruncateDay(job.BillingPeriodStart)) || today.After(utils.TruncateDay(job.BillingPeriodEnd)):
		case job.LastRequestSentAt != nil && utils.SameDay(*job.LastRequestSentAt, today):
		default:
			eligible = append(eligible, job)
			continue
		}
		counter.skipped()
	}

	fanOut(ctx, s.cfg.ADR.MaxConcurrency, eligible, counter, s.sendJobRequest)
	return nil
}

func (s *adrOrchestratorService) sendJobRequest(ctx context.Context, job model.AdrJob) (bool, error) {
	if job.Account == nil {
		return false, errors.Newf("adr job %d has no account", job.ID)
	}
	account := *job.Account
	if err := s.limiters.Wait(ctx, account.VendorCode); err != nil {
		return false, errors.Wrapf(err, "throttle vendor %s", account.VendorCode)
	}

	call, callErr := s.repo.AdrVendorRepo.SendRequest(ctx, job, account)
	resend := job.Status == model.AdrJobStatusRequestSent

	err := s.repo.UnitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		if err := s.repo.AdrJobExecutionRepo.Create(ctx, vendorExecution(job.ID, model.AdrRequestTypeSendRequest, call, callErr, false), opts...); err != nil {
			return errors.Wrapf(err, "log request of adr job %d", job.ID)
		}
		if callErr != nil {
			job.RetryCount++
			job.ErrorMessage = callErr.Error()
			return s.repo.AdrJobRepo.Update(ctx, &job, opts...)
		}
		if resend {
			job.RetryCount++
		}
		return s.lifecycle.Transition(ctx, &job, model.AdrJobStatusRequestSent, "", opts...)
	})
	if err != nil {
		return false, err
	}
	if callErr != nil {
		return false, callErr
	}
	return true, nil
}

// verifyCredentials checks credentials of jobs whose window starts within the
// credential lead time. Jobs of accounts reaching their check date today are
// opened first, so the check runs on that day.
func (s *adrOrchestratorService) verifyCredentials(ctx context.Context, counter *stepCounter) error {
	today := utils.TruncateDay(s.now())
	accounts, err := s.dueAccounts(ctx, today)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		if _, err := s.ensureJob(ctx, account); err != nil {
			s.log.WarnContext(ctx, "Failed to open adr job for credential check",
				logger.ErrorField(err),
				logger.UintField("adr_account_id", account.ID),
			)
		}
	}

	jobs, err := s.repo.AdrJobRepo.Get(ctx, &model.GetAdrJobParam{
		Statuses:    []model.AdrJobStatus{model.AdrJobStatusPending, model.AdrJobStatusCredentialFailed},
		WithAccount: true,
	})
	if err != nil {
		return errors.Wrap(err, "load pending adr jobs")
	}

	eligible := make([]model.AdrJob, 0, len(jobs))
	for _, job := range jobs {
		checkFrom := utils.AddDays(job.BillingPeriodStart, -s.cfg.ADR.CredentialLeadDays)
		if today.Before(checkFrom) || today.After(utils.TruncateDay(job.BillingPeriodEnd)) {
			counter.skipped()
			continue
		}
		eligible = append(eligible, job)
	}

	fanOut(ctx, s.cfg.ADR.MaxConcurrency, eligible, counter, s.verifyJobCredential)
	return nil
}

func (s *adrOrchestratorService) verifyJobCredential(ctx context.Context, job model.AdrJob) (bool, error) {
	if job.Account == nil {
		return false, errors.Newf("adr job %d has no account", job.ID)
	}
	valid, err := s.credentialValid(ctx, job.Account.CredentialID)
	if err != nil {
		return false, err
	}

	if valid {
		if err := s.lifecycle.Transition(ctx, &job, model.AdrJobStatusCredentialVerified, ""); err != nil {
			return false, err
		}
		return true, nil
	}

	failure := errors.Mark(errors.Newf("credential %s of account %d is invalid", job.Account.CredentialID, job.AdrAccountID), errors.ErrCredentialVerificationFailed)
	if job.Status == model.AdrJobStatusCredentialFailed {
		job.RetryCount++
		job.ErrorMessage = failure.Error()
		if err := s.repo.AdrJobRepo.Update(ctx, &job); err != nil {
			return false, errors.Wrapf(err, "update adr job %d", job.ID)
		}
	} else if err := s.lifecycle.Transition(ctx, &job, model.AdrJobStatusCredentialFailed, failure.Error()); err != nil {
		return false, err
	}
	s.log.WarnContext(ctx, "Adr credential verification failed",
		logger.UintField("adr_job_id", job.ID),
		logger.UintField("adr_account_id", job.AdrAccountID),
		logger.StringField("credential_id", job.Account.CredentialID),
	)
	return false, failure
}

// credentialValid asks the credential service, caching answers per credential.
func (s *adrOrchestratorService) credentialValid(ctx context.Context, credentialID string) (bool, error) {
	if strings.TrimSpace(credentialID) == "" {
		return false, nil
	}
	key := fmt.Sprintf(common.KEY_CREDENTIAL_RESULT, credentialID)
	if valid, ok := cache.GetFromCache[bool](s.credentialCache, key); ok {
		return valid, nil
	}
	if err := s.limiters.Wait(ctx, credentialLimiterKey); err != nil {
		return false, errors.Wrap(err, "throttle credential service")
	}
	valid, err := s.repo.CredentialRepo.VerifyCredentials(ctx, credentialID)
	if err != nil {
		return false, errors.Wrapf(err, "verify credential %s", credentialID)
	}
	s.credentialCache.Set(key, valid, s.cfg.ADR.CredentialCacheTTL)
	return valid, nil
}

// createJobs opens a job for every active account whose credential check
// date has come and whose window has not closed.
func (s *adrOrchestratorService) createJobs(ctx context.Context, counter *stepCounter) error {
	accounts, err := s.dueAccounts(ctx, utils.TruncateDay(s.now()))
	if err != nil {
		return err
	}
	fanOut(ctx, s.cfg.ADR.MaxConcurrency, accounts, counter, s.ensureJob)
	return nil
}

func (s *adrOrchestratorService) dueAccounts(ctx context.Context, today time.Time) ([]model.AdrAccount, error) {
	accounts, err := s.repo.AdrAccountRepo.Get(ctx, &model.GetAdrAccountParam{
		IsActive:            utils.ToPointer(true),
		IsMissing:           utils.ToPointer(false),
		CredentialCheckDue:  &today,
		NextRangeEndOnAfter: &today,
	})
	if err != nil {
		return nil, errors.Wrap(err, "load due adr accounts")
	}
	return accounts, nil
}

// ensureJob reports whether a job was created for the account's next window.
func (s *adrOrchestratorService) ensureJob(ctx context.Context, account model.AdrAccount) (bool, error) {
	if account.NextRangeStart == nil || account.NextRangeEnd == nil {
		return false, nil
	}
	_, created, err := s.lifecycle.EnsureJob(ctx, account, *account.NextRangeStart, *account.NextRangeEnd)
	return created, err
}

type sourceAccount struct {
	row      dto.AdrAccountSourceRow
	invoices []time.Time
}

// syncAccounts upserts accounts from the external source of truth and
// deactivates accounts the source no longer lists.
func (s *adrOrchestratorService) syncAccounts(ctx context.Context, counter *stepCounter) error {
	rows, err := s.repo.AdrAccountSourceRepo.FetchAccounts(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch source accounts")
	}
	if len(rows) == 0 {
		return errors.New("account source returned no rows, deactivation skipped")
	}

	grouped := make(map[string]*sourceAccount)
	ids := make([]string, 0)
	for _, row := range rows {
		acc, ok := grouped[row.ExternalAccountID]
		if !ok {
			acc = &sourceAccount{row: row}
			grouped[row.ExternalAccountID] = acc
			ids = append(ids, row.ExternalAccountID)
		}
		if row.InvoiceDate != nil {
			acc.invoices = append(acc.invoices, *row.InvoiceDate)
		}
	}

	existing, err := s.repo.AdrAccountRepo.Get(ctx, &model.GetAdrAccountParam{ExternalAccountIDs: ids})
	if err != nil {
		return errors.Wrap(err, "load adr accounts")
	}
	byExternalID := make(map[string]model.AdrAccount, len(existing))
	for _, a := range existing {
		byExternalID[a.ExternalAccountID] = a
	}

	items := make([]*sourceAccount, 0, len(ids))
	for _, id := range ids {
		items = append(items, grouped[id])
	}

	now := s.now()
	fanOut(ctx, s.cfg.ADR.MaxConcurrency, items, counter, func(ctx context.Context, src *sourceAccount) (bool, error) {
		account, ok := byExternalID[src.row.ExternalAccountID]
		if !ok {
			account = model.AdrAccount{ExternalAccountID: src.row.ExternalAccountID}
		}
		mergeSourceAccount(&account, src, now)
		s.billing.ApplyBilling(&account, now)
		if err := s.repo.AdrAccountRepo.Save(ctx, &account); err != nil {
			return false, errors.Wrapf(err, "save account %s", src.row.ExternalAccountID)
		}
		return true, nil
	})

	deactivated, err := s.repo.AdrAccountRepo.DeactivateMissing(ctx, ids, now)
	if err != nil {
		return errors.Wrap(err, "deactivate absent accounts")
	}
	if deactivated > 0 {
		s.log.InfoContext(ctx, "Adr accounts deactivated", logger.Int64Field("count", deactivated))
	}
	return nil
}

// mergeSourceAccount copies source fields onto account. Period settings of a
// manually overridden account are kept.
func mergeSourceAccount(account *model.AdrAccount, src *sourceAccount, now time.Time) {
	account.VendorCode = src.row.VendorCode
	account.AccountNumber = src.row.AccountNumber
	account.CredentialID = src.row.CredentialID
	account.IsMissing = src.row.IsMissing
	account.IsActive = true
	account.LastSyncedAt = utils.ToPointer(now)
	if !account.IsManualOverride {
		account.PeriodType = model.PeriodType(src.row.PeriodType)
		account.PeriodDays = src.row.PeriodDays
	}
	for _, d := range src.invoices {
		account.AddInvoiceDate(d)
	}
}

func (s *adrOrchestratorService) cleanup(ctx context.Context, counter *stepCounter) error {
	n, err := s.lifecycle.Cleanup(ctx, s.now())
	for i := 0; i < n; i++ {
		counter.succeeded()
	}
	return err
}

func statusCall(res *dto.AdrStatusResult) *dto.AdrVendorCall {
	if res == nil {
		return nil
	}
	return &res.AdrVendorCall
}

func vendorExecution(jobID uint, requestType model.AdrRequestType, call *dto.AdrVendorCall, callErr error, final bool) *model.AdrJobExecution {
	exec := &model.AdrJobExecution{
		AdrJobID:    jobID,
		RequestType: requestType,
		IsSuccess:   callErr == nil,
		IsError:     callErr != nil,
		IsFinal:     final,
	}
	if call != nil {
		exec.HttpStatusCode = call.HTTPStatusCode
		exec.RequestPayload = call.RequestPayload
		exec.ResponsePayload = call.ResponsePayload
		exec.StartedAt = call.StartedAt
		exec.CompletedAt = call.CompletedAt
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = utils.TimeNowUTC()
	}
	if exec.CompletedAt.IsZero() {
		exec.CompletedAt = exec.StartedAt
	}
	if callErr != nil {
		exec.ErrorMessage = callErr.Error()
	}
	return exec
}
