package recurring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ajmal023/Afghan-Topup-sub000/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextRunAt(t *testing.T) {
	cases := []struct {
		name    string
		cadence model.Cadence
		anchor  time.Time
		after   time.Time
		want    time.Time
	}{
		{"monthly leap clamp", model.CadenceMonthly, day(2024, 1, 31), day(2024, 1, 31), day(2024, 2, 29)},
		{"monthly keeps anchor day", model.CadenceMonthly, day(2024, 1, 31), day(2024, 2, 29), day(2024, 3, 31)},
		{"monthly thirty day month", model.CadenceMonthly, day(2024, 1, 31), day(2024, 3, 31), day(2024, 4, 30)},
		{"weekly", model.CadenceWeekly, day(2024, 1, 1), day(2024, 1, 1), day(2024, 1, 8)},
		{"weekly catches up", model.CadenceWeekly, day(2024, 1, 1), day(2024, 1, 20), day(2024, 1, 22)},
		{"quarterly", model.CadenceQuarterly, day(2023, 11, 30), day(2023, 11, 30), day(2024, 2, 29)},
		{"yearly leap day", model.CadenceYearly, day(2024, 2, 29), day(2024, 2, 29), day(2025, 2, 28)},
		{"anchor truncated to midnight", model.CadenceWeekly, time.Date(2024, 1, 1, 17, 30, 0, 0, time.UTC), day(2024, 1, 1), day(2024, 1, 8)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, active, err := NextRunAt(tc.cadence, tc.anchor, tc.after)
			require.NoError(t, err)
			assert.True(t, active)
			assert.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
		})
	}
}

func TestNextRunAtOneOff(t *testing.T) {
	_, active, err := NextRunAt(model.CadenceDate, day(2024, 5, 1), day(2024, 5, 1))
	require.NoError(t, err)
	assert.False(t, active)

	_, _, err = NextRunAt(model.Cadence("daily"), day(2024, 5, 1), day(2024, 5, 1))
	assert.Error(t, err)
}
