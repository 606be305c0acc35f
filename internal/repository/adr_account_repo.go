package repository

import (
	"context"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"

	"gorm.io/gorm"
)

type AdrAccountRepository interface {
	Get(ctx context.Context, param *model.GetAdrAccountParam, opts ...utils.DBOption) ([]model.AdrAccount, error)
	FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.AdrAccount, error)
	Save(ctx context.Context, account *model.AdrAccount, opts ...utils.DBOption) error
	DeactivateMissing(ctx context.Context, presentExternalIDs []string, now time.Time, opts ...utils.DBOption) (int64, error)
}

type adrAccountRepository struct {
	db *gorm.DB
}

func NewAdrAccountRepository(db *gorm.DB) AdrAccountRepository {
	return &adrAccountRepository{db: db}
}

func (r *adrAccountRepository) Get(ctx context.Context, param *model.GetAdrAccountParam, opts ...utils.DBOption) ([]model.AdrAccount, error) {
	var accounts []model.AdrAccount
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.AdrAccount{})
	if param != nil {
		if len(param.IDs) > 0 {
			db = db.Where("id IN ?", param.IDs)
		}
		if len(param.ExternalAccountIDs) > 0 {
			db = db.Where("external_account_id IN ?", param.ExternalAccountIDs)
		}
		if param.IsActive != nil {
			db = db.Where("is_active = ?", *param.IsActive)
		}
		if param.IsMissing != nil {
			db = db.Where("is_missing = ?", *param.IsMissing)
		}
		if param.CredentialCheckDue != nil {
			db = db.Where("credential_check_date <= ?", *param.CredentialCheckDue)
		}
		if param.NextRangeEndOnAfter != nil {
			db = db.Where("next_range_end >= ?", *param.NextRangeEndOnAfter)
		}
		if param.Limit != nil {
			db = db.Limit(*param.Limit)
		}
	}
	if err := db.Order("id ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *adrAccountRepository) FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.AdrAccount, error) {
	var account model.AdrAccount
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).First(&account, id).Error; err != nil {
		return nil, notFound(err, "adr account", id)
	}
	return &account, nil
}

// Save inserts a new account or rewrites every column of an existing one.
func (r *adrAccountRepository) Save(ctx context.Context, account *model.AdrAccount, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Save(account).Error
}

// DeactivateMissing clears IsActive on active accounts absent from presentExternalIDs.
func (r *adrAccountRepository) DeactivateMissing(ctx context.Context, presentExternalIDs []string, now time.Time, opts ...utils.DBOption) (int64, error) {
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.AdrAccount{}).
		Where("is_active = ?", true)
	if len(presentExternalIDs) > 0 {
		db = db.Where("external_account_id NOT IN ?", presentExternalIDs)
	}
	res := db.Updates(map[string]interface{}{
		"is_active":      false,
		"last_synced_at": now,
	})
	return res.RowsAffected, res.Error
}
