package service

import (
	"context"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/internal/repository"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"

	"gorm.io/gorm"
)

const windowClosedMessage = "billing window closed"

var adrJobTransitions = map[model.AdrJobStatus][]model.AdrJobStatus{
	model.AdrJobStatusPending:            {model.AdrJobStatusCredentialVerified, model.AdrJobStatusCredentialFailed},
	model.AdrJobStatusCredentialFailed:   {model.AdrJobStatusCredentialVerified},
	model.AdrJobStatusCredentialVerified: {model.AdrJobStatusRequestSent},
	model.AdrJobStatusRequestSent: {
		model.AdrJobStatusRequestSent,
		model.AdrJobStatusCompleted,
		model.AdrJobStatusFailed,
		model.AdrJobStatusNeedsReview,
	},
	model.AdrJobStatusNeedsReview: {model.AdrJobStatusCompleted},
}

// CanTransition reports whether an AdrJob may move from one status to
// another. Every non-terminal status may move to Failed.
func CanTransition(from, to model.AdrJobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == model.AdrJobStatusFailed {
		return true
	}
	for _, allowed := range adrJobTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type AdrJobLifecycle interface {
	// Transition validates and applies a status change, stamps the matching
	// timestamp and persists the job.
	Transition(ctx context.Context, job *model.AdrJob, to model.AdrJobStatus, message string, opts ...utils.DBOption) error
	// EnsureJob returns the job of account for the period, creating it when
	// absent. Missing accounts never get a job: nil, false, nil is returned.
	EnsureJob(ctx context.Context, account model.AdrAccount, start, end time.Time) (*model.AdrJob, bool, error)
	// Cleanup fails every non-terminal job whose billing period ended before today.
	Cleanup(ctx context.Context, today time.Time) (int, error)
}

type adrJobLifecycle struct {
	log        *logger.Logger
	adrJobRepo repository.AdrJobRepository
	now        func() time.Time
}

func NewAdrJobLifecycle(log *logger.Logger, adrJobRepo repository.AdrJobRepository) AdrJobLifecycle {
	return &adrJobLifecycle{
		log:        log,
		adrJobRepo: adrJobRepo,
		now:        utils.TimeNowUTC,
	}
}

func (l *adrJobLifecycle) Transition(ctx context.Context, job *model.AdrJob, to model.AdrJobStatus, message string, opts ...utils.DBOption) error {
	if !CanTransition(job.Status, to) {
		return errors.Mark(errors.Newf("adr job %d cannot move from %s to %s", job.ID, job.Status, to), errors.ErrInvalidTransition)
	}

	now := l.now()
	from := job.Status
	job.Status = to
	job.ErrorMessage = message
	switch to {
	case model.AdrJobStatusCredentialVerified:
		job.CredentialVerifiedAt = &now
	case model.AdrJobStatusRequestSent:
		job.LastRequestSentAt = &now
	case model.AdrJobStatusCompleted:
		job.ScrapingCompletedAt = &now
	}

	if err := l.adrJobRepo.Update(ctx, job, opts...); err != nil {
		return errors.Wrapf(err, "update adr job %d", job.ID)
	}
	l.log.DebugContext(ctx, "Adr job transitioned",
		logger.UintField("adr_job_id", job.ID),
		logger.StringField("from", string(from)),
		logger.StringField("to", string(to)),
	)
	return nil
}

func (l *adrJobLifecycle) EnsureJob(ctx context.Context, account model.AdrAccount, start, end time.Time) (*model.AdrJob, bool, error) {
	if account.IsMissing {
		return nil, false, nil
	}
	start, end = utils.TruncateDay(start), utils.TruncateDay(end)

	existing, err := l.adrJobRepo.FindByAccountPeriod(ctx, account.ID, start, end)
	if err != nil {
		return nil, false, errors.Wrapf(err, "find adr job of account %d", account.ID)
	}
	if existing != nil {
		return existing, false, nil
	}

	job := &model.AdrJob{
		AdrAccountID:       account.ID,
		BillingPeriodStart: start,
		BillingPeriodEnd:   end,
		Status:             model.AdrJobStatusPending,
		IsMissing:          account.IsMissing,
	}
	if err := l.adrJobRepo.Create(ctx, job); err != nil {
		// Another run created it between lookup and insert.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := l.adrJobRepo.FindByAccountPeriod(ctx, account.ID, start, end)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, errors.Wrapf(err, "create adr job of account %d", account.ID)
	}
	l.log.InfoContext(ctx, "Adr job created",
		logger.UintField("adr_job_id", job.ID),
		logger.UintField("adr_account_id", account.ID),
		logger.StringField("period_start", start.Format(model.DateLayout)),
		logger.StringField("period_end", end.Format(model.DateLayout)),
	)
	return job, true, nil
}

func (l *adrJobLifecycle) Cleanup(ctx context.Context, today time.Time) (int, error) {
	cutoff := utils.TruncateDay(today)
	jobs, err := l.adrJobRepo.Get(ctx, &model.GetAdrJobParam{
		Statuses: []model.AdrJobStatus{
			model.AdrJobStatusPending,
			model.AdrJobStatusCredentialVerified,
			model.AdrJobStatusCredentialFailed,
			model.AdrJobStatusRequestSent,
			model.AdrJobStatusNeedsReview,
		},
		PeriodEndBefore: &cutoff,
	})
	if err != nil {
		return 0, errors.Wrap(err, "find expired adr jobs")
	}

	failed := 0
	var firstErr error
	for i := range jobs {
		if err := l.Transition(ctx, &jobs[i], model.AdrJobStatusFailed, windowClosedMessage); err != nil {
			l.log.ErrorContext(ctx, "Failed to close expired adr job", logger.ErrorField(err), logger.UintField("adr_job_id", jobs[i].ID))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		failed++
	}
	if failed > 0 {
		l.log.InfoContext(ctx, "Expired adr jobs failed", logger.IntField("count", failed))
	}
	return failed, firstErr
}
