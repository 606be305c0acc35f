package service

import (
	"context"
	"testing"
	"time"

	"automation-scheduler/config"
	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestAccountService(t *testing.T, now time.Time, accounts ...model.AdrAccount) (AdrAccountService, *fakeAdrAccountRepo) {
	t.Helper()
	repo := newFakeAdrAccountRepo(accounts...)
	svc := NewAdrAccountService(config.Default(), logger.NewNop(), repo)
	svc.(*adrAccountService).now = func() time.Time { return now }
	return svc, repo
}

func monthlyAccount() model.AdrAccount {
	return model.AdrAccount{
		VendorCode:        "ACME",
		AccountNumber:     "100-200",
		ExternalAccountID: "ext-1",
		CredentialID:      "cred-1",
		PeriodType:        model.PeriodMonthly,
		InvoiceHistory:    datatypes.JSONSlice[string]{"2025-10-03", "2025-11-02", "2025-12-02", "2026-01-01"},
		IsActive:          true,
	}
}

func TestAdrAccountService_SetOverride(t *testing.T) {
	now := date(2026, time.February, 10)
	svc, repo := newTestAccountService(t, now, monthlyAccount())

	account, err := svc.SetOverride(context.Background(), 1, dto.AdrAccountOverrideRequest{
		By:             "analyst",
		PeriodType:     string(model.PeriodQuarterly),
		NextRangeStart: "2026-02-12",
		NextRangeEnd:   "2026-02-20",
	})
	require.NoError(t, err)
	assert.True(t, account.IsManualOverride)

	stored := repo.get(1)
	assert.True(t, stored.IsManualOverride)
	assert.Equal(t, "analyst", stored.ManualOverrideBy)
	assert.Equal(t, now, *stored.ManualOverrideAt)
	assert.Equal(t, model.PeriodQuarterly, stored.PeriodType)
	assert.Equal(t, date(2026, time.February, 12), *stored.NextRunDate)
	assert.Equal(t, date(2026, time.February, 12), *stored.NextRangeStart)
	assert.Equal(t, date(2026, time.February, 20), *stored.NextRangeEnd)
	assert.Equal(t, date(2026, time.February, 5), *stored.CredentialCheckDate)
	assert.Equal(t, model.NextRunStatusDueSoon, stored.NextRunStatus)
}

func TestAdrAccountService_SetOverrideRejectsInvertedWindow(t *testing.T) {
	svc, repo := newTestAccountService(t, date(2026, time.February, 10), monthlyAccount())

	_, err := svc.SetOverride(context.Background(), 1, dto.AdrAccountOverrideRequest{
		By:             "analyst",
		NextRangeStart: "2026-02-20",
		NextRangeEnd:   "2026-02-12",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.False(t, repo.get(1).IsManualOverride)
}

func TestAdrAccountService_SetOverrideUnknownAccount(t *testing.T) {
	svc, _ := newTestAccountService(t, date(2026, time.February, 10))

	_, err := svc.SetOverride(context.Background(), 7, dto.AdrAccountOverrideRequest{
		By:             "analyst",
		NextRangeStart: "2026-02-12",
		NextRangeEnd:   "2026-02-20",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAdrAccountService_ClearOverrideRecomputes(t *testing.T) {
	account := monthlyAccount()
	account.IsManualOverride = true
	account.ManualOverrideBy = "analyst"
	account.ManualOverrideAt = utils.ToPointer(date(2026, time.January, 2))
	account.NextRangeStart = utils.ToPointer(date(2026, time.March, 1))
	account.NextRangeEnd = utils.ToPointer(date(2026, time.March, 3))
	svc, repo := newTestAccountService(t, date(2026, time.January, 10), account)

	_, err := svc.ClearOverride(context.Background(), 1, "analyst")
	require.NoError(t, err)

	stored := repo.get(1)
	assert.False(t, stored.IsManualOverride)
	assert.Empty(t, stored.ManualOverrideBy)
	assert.Nil(t, stored.ManualOverrideAt)
	assert.Equal(t, date(2026, time.January, 31), *stored.NextRangeStart)
	assert.Equal(t, date(2026, time.February, 4), *stored.NextRangeEnd)
	assert.Equal(t, date(2026, time.January, 24), *stored.CredentialCheckDate)
}

func TestAdrAccountService_ListFilters(t *testing.T) {
	inactive := monthlyAccount()
	inactive.ExternalAccountID = "ext-2"
	inactive.IsActive = false
	svc, _ := newTestAccountService(t, date(2026, time.January, 10), monthlyAccount(), inactive)

	got, err := svc.List(context.Background(), model.GetAdrAccountParam{IsActive: utils.ToPointer(true)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ext-1", got[0].ExternalAccountID)
}
