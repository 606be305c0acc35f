package datasource

import (
	"context"
	"testing"

	"automation-scheduler/config"
	"automation-scheduler/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoutineName(t *testing.T) {
	valid := []string{"get_batch_date", "reporting.next_business_day", "_x1"}
	for _, name := range valid {
		assert.NoError(t, ValidateRoutineName(name), name)
	}

	invalid := []string{
		"",
		"SELECT 1",
		"get_date(); DROP TABLE schedules",
		"a.b.c",
		"1abc",
		"name--comment",
	}
	for _, name := range invalid {
		assert.Error(t, ValidateRoutineName(name), name)
	}
}

func TestDialectStatements(t *testing.T) {
	assert.Equal(t, "SELECT get_date()", DialectPostgres.ScalarCall("get_date", 0))
	assert.Equal(t, "SELECT rpt.fn($1, $2)", DialectPostgres.ScalarCall("rpt.fn", 2))
	assert.Equal(t, "CALL refresh($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)", DialectPostgres.ProcedureCall("refresh", 10))
	assert.Equal(t, "SELECT * FROM adr_account_source()", DialectPostgres.RowsCall("adr_account_source", 0))
	assert.Equal(t, "CALL get_date()", DialectMySQL.ScalarCall("get_date", 0))
	assert.Equal(t, "CALL refresh(?, ?)", DialectMySQL.ProcedureCall("refresh", 2))
}

func TestRegistry_UnknownAndUnsupported(t *testing.T) {
	reg := NewRegistry(map[string]config.DataSource{
		"legacy": {Driver: "sqlserver", DSN: "sqlserver://x"},
	})

	_, err := reg.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrScheduleConfiguration))

	_, err = reg.Get(context.Background(), "legacy")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrScheduleConfiguration))
}
