package repository

import (
	"context"
	"database/sql"

	"automation-scheduler/config"
	"automation-scheduler/internal/dto"
	"automation-scheduler/pkg/datasource"
	"automation-scheduler/pkg/errors"
)

// AdrAccountSourceRepository reads the external source of truth for ADR accounts.
type AdrAccountSourceRepository interface {
	FetchAccounts(ctx context.Context) ([]dto.AdrAccountSourceRow, error)
}

type adrAccountSourceRepository struct {
	registry   datasource.Registry
	connection string
	routine    string
}

func NewAdrAccountSourceRepository(cfg *config.Config, registry datasource.Registry) AdrAccountSourceRepository {
	return &adrAccountSourceRepository{
		registry:   registry,
		connection: cfg.ADR.SyncDataSource,
		routine:    cfg.ADR.SyncRoutine,
	}
}

// FetchAccounts calls the configured routine. Its result set must expose, in
// order: vendor_code, account_number, external_account_id, credential_id,
// period_type, period_days, is_missing, invoice_date.
func (r *adrAccountSourceRepository) FetchAccounts(ctx context.Context) ([]dto.AdrAccountSourceRow, error) {
	if r.connection == "" {
		return nil, errors.Mark(errors.New("adr.sync_datasource is not configured"), errors.ErrScheduleConfiguration)
	}
	if err := datasource.ValidateRoutineName(r.routine); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "adr.sync_routine"), errors.ErrScheduleConfiguration)
	}

	conn, err := r.registry.Get(ctx, r.connection)
	if err != nil {
		return nil, err
	}

	rows, err := conn.DB.QueryContext(ctx, conn.Dialect.RowsCall(r.routine, 0))
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", r.routine)
	}
	defer rows.Close()

	var out []dto.AdrAccountSourceRow
	for rows.Next() {
		var (
			vendorCode, accountNumber, externalID sql.NullString
			credentialID, periodType              sql.NullString
			periodDays                            sql.NullInt64
			isMissing                             sql.NullBool
			invoiceDate                           sql.NullTime
		)
		if err := rows.Scan(&vendorCode, &accountNumber, &externalID, &credentialID, &periodType, &periodDays, &isMissing, &invoiceDate); err != nil {
			return nil, errors.Wrapf(err, "scan %s row", r.routine)
		}
		if !externalID.Valid || externalID.String == "" {
			continue
		}

		row := dto.AdrAccountSourceRow{
			VendorCode:        vendorCode.String,
			AccountNumber:     accountNumber.String,
			ExternalAccountID: externalID.String,
			CredentialID:      credentialID.String,
			PeriodType:        periodType.String,
			IsMissing:         isMissing.Valid && isMissing.Bool,
		}
		if periodDays.Valid {
			days := int(periodDays.Int64)
			row.PeriodDays = &days
		}
		if invoiceDate.Valid {
			d := invoiceDate.Time.UTC()
			row.InvoiceDate = &d
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s rows", r.routine)
	}
	return out, nil
}
