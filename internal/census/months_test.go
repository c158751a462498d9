package census

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthRange(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		want     []string
	}{
		{"single month", "2024-05", "2024-05", []string{"2024-05"}},
		{"within year", "2024-01", "2024-03", []string{"2024-01", "2024-02", "2024-03"}},
		{"year rollover", "2023-11", "2024-02", []string{"2023-11", "2023-12", "2024-01", "2024-02"}},
		{"unpadded month", "2024-9", "2024-10", []string{"2024-09", "2024-10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			months, err := MonthRange(tt.from, tt.to)
			require.NoError(t, err)
			got := make([]string, len(months))
			for i, m := range months {
				got[i] = m.String()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonthRange_Invalid(t *testing.T) {
	for _, tc := range [][2]string{
		{"2024-03", "2024-01"},
		{"2024", "2024-01"},
		{"2024-13", "2025-01"},
		{"2024-01", "abc-01"},
	} {
		_, err := MonthRange(tc[0], tc[1])
		assert.Error(t, err, "MonthRange(%q, %q)", tc[0], tc[1])
	}
}

func TestMonthRange_EightYears(t *testing.T) {
	months, err := MonthRange("2017-10", "2025-10")
	require.NoError(t, err)
	assert.Len(t, months, 97)
}

func TestYearMonth_AddMonths(t *testing.T) {
	ym := YearMonth{Year: 2025, Month: time.March}
	assert.Equal(t, "2017-03", ym.AddMonths(-96).String())
	assert.Equal(t, "2024-12", ym.AddMonths(-3).String())
	assert.Equal(t, "2026-01", ym.AddMonths(10).String())
}
