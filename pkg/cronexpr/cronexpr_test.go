package cronexpr

import (
	"testing"
	"time"

	"automation-scheduler/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestNext(t *testing.T) {
	ny := mustZone(t, "America/New_York")

	tests := []struct {
		name     string
		expr     string
		timezone string
		ref      time.Time
		want     time.Time
	}{
		{
			name:     "six field quartz style with question mark",
			expr:     "0 0 2 * * ?",
			timezone: "UTC",
			ref:      time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC),
			want:     time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name:     "five field",
			expr:     "30 6 * * 1",
			timezone: "",
			ref:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), // Wednesday
			want:     time.Date(2025, 1, 6, 6, 30, 0, 0, time.UTC),
		},
		{
			name:     "strictly after reference on exact match",
			expr:     "0 0 2 * * *",
			timezone: "UTC",
			ref:      time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC),
			want:     time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC),
		},
		{
			name:     "descriptor",
			expr:     "@daily",
			timezone: "UTC",
			ref:      time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
			want:     time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "evaluated in local zone, returned in utc",
			expr:     "0 0 9 * * *",
			timezone: "America/New_York",
			ref:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			want:     time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC),
		},
		{
			name:     "spring forward gap day is skipped",
			expr:     "0 0 2 * * *",
			timezone: "America/New_York",
			ref:      time.Date(2024, 3, 10, 0, 0, 0, 0, ny),
			want:     time.Date(2024, 3, 11, 2, 0, 0, 0, ny).UTC(),
		},
		{
			name:     "fall back day fires once at standard time",
			expr:     "0 0 2 * * *",
			timezone: "America/New_York",
			ref:      time.Date(2024, 11, 3, 0, 0, 0, 0, ny),
			want:     time.Date(2024, 11, 3, 7, 0, 0, 0, time.UTC),
		},
		{
			name:     "day after fall back",
			expr:     "0 0 2 * * *",
			timezone: "America/New_York",
			ref:      time.Date(2024, 11, 3, 7, 0, 0, 0, time.UTC),
			want:     time.Date(2024, 11, 4, 7, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.expr, tt.timezone, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(tt.ref))
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestNext_IsIdempotent(t *testing.T) {
	ref := time.Date(2025, 6, 1, 12, 34, 56, 0, time.UTC)
	a, err := Next("*/15 * * * *", "Europe/Berlin", ref)
	require.NoError(t, err)
	b, err := Next("*/15 * * * *", "Europe/Berlin", ref)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNext_Errors(t *testing.T) {
	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expr     string
		timezone string
		noFuture bool
	}{
		{name: "empty", expr: "  "},
		{name: "garbage", expr: "every day at noon"},
		{name: "out of range", expr: "0 0 25 * * *"},
		{name: "unknown zone", expr: "0 0 2 * * *", timezone: "Mars/Olympus"},
		{name: "embedded zone", expr: "CRON_TZ=UTC 0 2 * * *"},
		{name: "never fires", expr: "0 0 0 30 2 *", noFuture: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Next(tt.expr, tt.timezone, ref)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrScheduleConfiguration))
			assert.Equal(t, tt.noFuture, errors.Is(err, ErrNoFutureOccurrence))
		})
	}
}
