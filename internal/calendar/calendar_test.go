package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/registry"
)

func d(s string) time.Time {
	t, err := time.Parse(config.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// January 2024: the 1st is a Monday holiday, the 6th/7th a weekend
func january(t *testing.T) *Calendar {
	t.Helper()
	c, err := BuildStatus(d("2024-01-01"), d("2024-01-10"), []time.Time{d("2024-01-01")})
	require.NoError(t, err)
	return c
}

func TestBuildStatus(t *testing.T) {
	c := january(t)

	tests := []struct {
		date string
		want Status
	}{
		{"2024-01-01", Holiday},
		{"2024-01-02", Trading},
		{"2024-01-06", Weekend},
		{"2024-01-07", Weekend},
		{"2024-01-08", Trading},
	}
	for _, tt := range tests {
		s, ok := c.StatusOf(d(tt.date))
		require.True(t, ok, tt.date)
		assert.Equal(t, tt.want, s, tt.date)
	}

	assert.Equal(t, 10, c.Len())
	_, err := BuildStatus(d("2024-01-10"), d("2024-01-01"), nil)
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))
}

func TestTradingDays(t *testing.T) {
	c := january(t)

	days := c.TradingDays(d("2024-01-01"), d("2024-01-08"))
	require.Len(t, days, 5)
	assert.True(t, d("2024-01-02").Equal(days[0]))
	assert.True(t, d("2024-01-08").Equal(days[4]))

	assert.Empty(t, c.TradingDays(d("2024-01-06"), d("2024-01-07")))
	assert.Len(t, c.AllTradingDays(), 7)
	assert.True(t, c.IsTradingDay(d("2024-01-05")))
	assert.False(t, c.IsTradingDay(d("2024-01-06")))
	assert.False(t, c.IsTradingDay(d("2025-01-06")))
}

func TestClosest(t *testing.T) {
	c := january(t)

	tests := []struct {
		name        string
		date        string
		dir         Direction
		includeSelf bool
		want        string
		notFound    bool
	}{
		{"trading day includes itself", "2024-01-05", Last, true, "2024-01-05", false},
		{"trading day excluded", "2024-01-05", Last, false, "2024-01-04", false},
		{"weekend looks back", "2024-01-07", Last, true, "2024-01-05", false},
		{"weekend looks forward", "2024-01-06", Next, true, "2024-01-08", false},
		{"holiday at range start", "2024-01-01", Last, true, "", true},
		{"past range end", "2024-01-10", Next, false, "", true},
		{"outside range", "2023-06-01", Next, true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Closest(d(tt.date), tt.dir, tt.includeSelf)
			if tt.notFound {
				assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}

	next, err := c.Next(d("2024-01-05"))
	require.NoError(t, err)
	assert.True(t, d("2024-01-08").Equal(next))

	prev, err := c.Prev(d("2024-01-08"))
	require.NoError(t, err)
	assert.True(t, d("2024-01-05").Equal(prev))
}

func TestFromTradingDays(t *testing.T) {
	c := FromTradingDays([]time.Time{d("2024-01-05"), d("2024-01-02"), d("2024-01-08")})

	first, ok := c.First()
	require.True(t, ok)
	assert.True(t, d("2024-01-02").Equal(first))

	s, _ := c.StatusOf(d("2024-01-03"))
	assert.Equal(t, Holiday, s)
	s, _ = c.StatusOf(d("2024-01-06"))
	assert.Equal(t, Weekend, s)
	assert.Len(t, c.AllTradingDays(), 3)

	empty := FromTradingDays(nil)
	_, ok = empty.Last()
	assert.False(t, ok)
}

func TestSaveAndLoad(t *testing.T) {
	c := january(t)
	path := filepath.Join(t.TempDir(), "market_status.csv")

	require.NoError(t, c.Save(path, nil))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "date,status\n2024-01-01,-1\n2024-01-02,1\n")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.AllTradingDays(), loaded.AllTradingDays())
	assert.Equal(t, c.Len(), loaded.Len())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.csv"))
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("date,status\n2024-01-01,7\n"), 0644))
	_, err = Load(bad)
	assert.Equal(t, apperrors.ErrTypeParsing, apperrors.TypeOf(err))

	floats := filepath.Join(dir, "floats.csv")
	require.NoError(t, os.WriteFile(floats, []byte("date,status\n2024-01-02,1.0\n2024-01-03,-1.0\n"), 0644))
	c, err := Load(floats)
	require.NoError(t, err)
	assert.True(t, c.IsTradingDay(d("2024-01-02")))
}

func TestRegistryLocation(t *testing.T) {
	layout, err := config.NewLayout(t.TempDir())
	require.NoError(t, err)
	reg, err := registry.New(layout, []registry.Item{{Stack: "us_stock", Name: "trade_date", Kind: registry.KindCalendar}})
	require.NoError(t, err)

	require.NoError(t, january(t).SaveToRegistry(reg, "us_stock", "trade_date", nil))
	c, err := LoadFromRegistry(reg, "us_stock", "trade_date")
	require.NoError(t, err)
	assert.Len(t, c.AllTradingDays(), 7)

	_, err = LoadFromRegistry(reg, "us_stock", "nope")
	assert.True(t, apperrors.IsUnknownItem(err))
}
