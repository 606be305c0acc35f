package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.MaxBackoff)
	assert.Equal(t, 2*time.Hour, cfg.Scheduler.RecoveryCeiling)
	assert.Equal(t, 0, cfg.ADR.WindowDaysBefore)
	assert.Equal(t, 4, cfg.ADR.WindowDaysAfter)
	assert.Equal(t, 7, cfg.ADR.CredentialLeadDays)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
scheduler:
  max_concurrency: 3
  allowed_parameter_sources:
    - get_batch_date
datasources:
  reporting:
    driver: mysql
    dsn: "user:pw@tcp(localhost:3306)/reporting"
adr:
  vendor_base_url: "http://vendor.local"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("ADR_CREDENTIAL_LEAD_DAYS", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrency)
	assert.Equal(t, []string{"get_batch_date"}, cfg.Scheduler.AllowedParameterSources)
	require.Contains(t, cfg.DataSources, "reporting")
	assert.Equal(t, "mysql", cfg.DataSources["reporting"].Driver)
	assert.Equal(t, "http://vendor.local", cfg.ADR.VendorBaseURL)
	assert.Equal(t, 10, cfg.ADR.CredentialLeadDays)
	assert.Equal(t, 4, cfg.ADR.WindowDaysAfter)
}
