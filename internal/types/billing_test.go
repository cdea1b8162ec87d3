package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestNextBillingDate(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		cycle BillingCycle
		want  time.Time
	}{
		{
			name:  "mid month monthly",
			start: date(2025, time.March, 15),
			cycle: BILLING_CYCLE_MONTHLY,
			want:  date(2025, time.April, 15),
		},
		{
			name:  "jan 31 clamps to feb 28",
			start: date(2025, time.January, 31),
			cycle: BILLING_CYCLE_MONTHLY,
			want:  date(2025, time.February, 28),
		},
		{
			name:  "jan 31 clamps to feb 29 in leap year",
			start: date(2024, time.January, 31),
			cycle: BILLING_CYCLE_MONTHLY,
			want:  date(2024, time.February, 29),
		},
		{
			name:  "dec 15 rolls into next year",
			start: date(2025, time.December, 15),
			cycle: BILLING_CYCLE_MONTHLY,
			want:  date(2026, time.January, 15),
		},
		{
			name:  "annual",
			start: date(2025, time.June, 1),
			cycle: BILLING_CYCLE_ANNUAL,
			want:  date(2026, time.June, 1),
		},
		{
			name:  "annual from leap day clamps to feb 28",
			start: date(2024, time.February, 29),
			cycle: BILLING_CYCLE_ANNUAL,
			want:  date(2025, time.February, 28),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextBillingDate(tt.start, tt.cycle)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s, want %s", got, tt.want)
		})
	}
}

func TestNextBillingDateInvalidCycle(t *testing.T) {
	_, err := NextBillingDate(date(2025, time.March, 1), BillingCycle("WEEKLY"))
	require.Error(t, err)
}

func TestNextBillingDatePreservesClock(t *testing.T) {
	start := time.Date(2025, time.May, 10, 23, 59, 58, 123, time.UTC)
	got, err := NextBillingDate(start, BILLING_CYCLE_MONTHLY)
	require.NoError(t, err)
	assert.Equal(t, 23, got.Hour())
	assert.Equal(t, 59, got.Minute())
	assert.Equal(t, 58, got.Second())
	assert.Equal(t, 123, got.Nanosecond())
}

func TestAddClampedDateMonthRollover(t *testing.T) {
	got := AddClampedDate(date(2025, time.November, 30), 0, 2, 0)
	assert.True(t, got.Equal(date(2026, time.January, 30)), "got %s", got)

	got = AddClampedDate(date(2025, time.October, 31), 0, 1, 0)
	assert.True(t, got.Equal(date(2025, time.November, 30)), "got %s", got)
}
