package service

import (
	"context"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/repository"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"
)

type AdrAccountService interface {
	List(ctx context.Context, param model.GetAdrAccountParam) ([]model.AdrAccount, error)
	Get(ctx context.Context, id uint) (*model.AdrAccount, error)
	// SetOverride pins the account's next window; automated recompute leaves
	// it alone until ClearOverride.
	SetOverride(ctx context.Context, id uint, req dto.AdrAccountOverrideRequest) (*model.AdrAccount, error)
	ClearOverride(ctx context.Context, id uint, by string) (*model.AdrAccount, error)
}

type adrAccountService struct {
	log         *logger.Logger
	accountRepo repository.AdrAccountRepository
	billing     BillingWindow
	now         func() time.Time
}

func NewAdrAccountService(cfg *config.Config, log *logger.Logger, accountRepo repository.AdrAccountRepository) AdrAccountService {
	return &adrAccountService{
		log:         log,
		accountRepo: accountRepo,
		billing:     NewBillingWindow(cfg.ADR),
		now:         utils.TimeNowUTC,
	}
}

func (s *adrAccountService) List(ctx context.Context, param model.GetAdrAccountParam) ([]model.AdrAccount, error) {
	return s.accountRepo.Get(ctx, &param)
}

func (s *adrAccountService) Get(ctx context.Context, id uint) (*model.AdrAccount, error) {
	return s.accountRepo.FindByID(ctx, id)
}

func (s *adrAccountService) SetOverride(ctx context.Context, id uint, req dto.AdrAccountOverrideRequest) (*model.AdrAccount, error) {
	start, end, err := req.Range()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse override window"), errors.ErrValidation)
	}
	if end.Before(start) {
		return nil, errors.Mark(errors.Newf("override window ends %s before it starts %s", req.NextRangeEnd, req.NextRangeStart), errors.ErrValidation)
	}

	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := utils.TruncateDay(now)
	check := utils.AddDays(start, -s.billing.CredentialLeadDays)

	if req.PeriodType != "" {
		account.PeriodType = model.PeriodType(req.PeriodType)
	}
	if req.PeriodDays != nil {
		account.PeriodDays = req.PeriodDays
	}
	account.NextRunDate = utils.ToPointer(start)
	account.NextRangeStart = utils.ToPointer(start)
	account.NextRangeEnd = utils.ToPointer(end)
	account.CredentialCheckDate = utils.ToPointer(check)
	switch {
	case !today.Before(start) && !today.After(end):
		account.NextRunStatus = model.NextRunStatusRunNow
	case !today.Before(check) && today.Before(start):
		account.NextRunStatus = model.NextRunStatusDueSoon
	default:
		account.NextRunStatus = model.NextRunStatusFuture
	}
	account.IsManualOverride = true
	account.ManualOverrideBy = req.By
	account.ManualOverrideAt = utils.ToPointer(now)

	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, errors.Wrapf(err, "save override of adr account %d", id)
	}
	s.log.InfoContext(ctx, "Adr account override set",
		logger.UintField("adr_account_id", id),
		logger.StringField("by", req.By),
		logger.StringField("next_range_start", req.NextRangeStart),
		logger.StringField("next_range_end", req.NextRangeEnd),
	)
	return account, nil
}

func (s *adrAccountService) ClearOverride(ctx context.Context, id uint, by string) (*model.AdrAccount, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !account.IsManualOverride {
		return account, nil
	}

	account.IsManualOverride = false
	account.ManualOverrideBy = ""
	account.ManualOverrideAt = nil
	s.billing.ApplyBilling(account, s.now())

	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, errors.Wrapf(err, "clear override of adr account %d", id)
	}
	s.log.InfoContext(ctx, "Adr account override cleared",
		logger.UintField("adr_account_id", id),
		logger.StringField("by", by),
	)
	return account, nil
}
