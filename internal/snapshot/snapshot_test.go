package snapshot

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/registry"
	"mdwarehouse/internal/shared/testutil"
)

func d(s string) time.Time {
	t, err := time.Parse(config.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	layout, err := config.NewLayout(t.TempDir())
	require.NoError(t, err)
	reg, err := registry.New(layout, []registry.Item{
		{Stack: "us_stock", Name: "close", Path: []string{"price", "close"}, Kind: registry.KindOHLC},
		{Stack: "us_stock", Name: "universe", Kind: registry.KindUniverse},
	})
	require.NoError(t, err)
	logger, _ := testutil.NewTestLogger(t)
	return NewStore(reg, logger)
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "BRK_B", NormalizeID("BRK.B"))
	assert.Equal(t, "BTC_USD", NormalizeID("BTC/USD"))
	assert.Equal(t, "AAPL", NormalizeID(" AAPL "))
}

func TestWriteAndReadSnapshot(t *testing.T) {
	s := newTestStore(t)

	values := map[string]float64{"MSFT": 370.5, "BRK.B": 360, "GAP": math.NaN()}
	require.NoError(t, s.WriteSnapshot("us_stock", "close", d("2024-01-02"), values))

	path, err := s.Path("us_stock", "close", d("2024-01-02"))
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "entity,2024-01-02\nBRK_B,360\nGAP,\nMSFT,370.5\n", string(content))

	got, err := s.ReadSnapshot("us_stock", "close", d("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, 360.0, got["BRK_B"])
	assert.Equal(t, 370.5, got["MSFT"])
	assert.True(t, math.IsNaN(got["GAP"]))
}

func TestWriteSnapshot_RewriteIsByteIdentical(t *testing.T) {
	s := newTestStore(t)
	values := map[string]float64{"C": 3, "A": 1, "B": 2}

	require.NoError(t, s.WriteSnapshot("us_stock", "close", d("2024-01-02"), values))
	path, _ := s.Path("us_stock", "close", d("2024-01-02"))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, s.WriteSnapshot("us_stock", "close", d("2024-01-02"), values))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteMembership(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteMembership("us_stock", "universe", d("2024-01-02"), []string{"B", "A", "A"}))
	got, err := s.ReadSnapshot("us_stock", "universe", d("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 1, "B": 1}, got)
}

func TestReadSnapshot_Errors(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadSnapshot("us_stock", "close", d("2024-01-02"))
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))

	_, err = s.ReadSnapshot("us_stock", "nope", d("2024-01-02"))
	assert.True(t, apperrors.IsUnknownItem(err))

	path, _ := s.Path("us_stock", "close", d("2024-01-03"))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("entity,2024-01-03\nA,abc\n"), 0644))
	_, err = s.ReadSnapshot("us_stock", "close", d("2024-01-03"))
	assert.Equal(t, apperrors.ErrTypeParsing, apperrors.TypeOf(err))
}

func TestStatus(t *testing.T) {
	s := newTestStore(t)

	t.Run("missing directory is empty", func(t *testing.T) {
		status, err := s.Status("us_stock", "close")
		require.NoError(t, err)
		assert.False(t, status.HasData())
		assert.True(t, status.Start.IsZero())
		assert.True(t, status.End.IsZero())
		assert.Equal(t, 0, status.Count)
	})

	t.Run("empty directory is empty", func(t *testing.T) {
		dir, err := s.Dir("us_stock", "close")
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(dir, 0755))

		status, err := s.Status("us_stock", "close")
		require.NoError(t, err)
		assert.Equal(t, Status{}, status)
	})

	t.Run("derived from file names", func(t *testing.T) {
		dir, err := s.Dir("us_stock", "close")
		require.NoError(t, err)
		for _, name := range []string{"2020-03-05.csv", "2020-01-01.csv", ".DS_Store", "notes.txt"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("entity,x\n"), 0644))
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, "2020-02-01.csv"), 0755))

		status, err := s.Status("us_stock", "close")
		require.NoError(t, err)
		assert.True(t, d("2020-01-01").Equal(status.Start))
		assert.True(t, d("2020-03-05").Equal(status.End))
		assert.Equal(t, 2, status.Count)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := s.Status("us_stock", "missing")
		assert.True(t, apperrors.IsUnknownItem(err))
	})
}

func TestNextFetchStart(t *testing.T) {
	floor := d("2000-01-01")
	assert.True(t, floor.Equal(NextFetchStart(Status{}, floor)))

	status := Status{Start: d("2020-01-01"), End: d("2020-03-05"), Count: 2}
	assert.True(t, d("2020-03-06").Equal(NextFetchStart(status, floor)))
}

func TestStartByCount(t *testing.T) {
	s := newTestStore(t)
	for _, date := range []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		require.NoError(t, s.WriteSnapshot("us_stock", "close", d(date), map[string]float64{"A": 1}))
	}

	got, err := s.StartByCount("us_stock", "close", d("2024-01-04"), 2)
	require.NoError(t, err)
	assert.True(t, d("2024-01-03").Equal(got))

	got, err = s.StartByCount("us_stock", "close", d("2024-01-10"), 10)
	require.NoError(t, err)
	assert.True(t, d("2024-01-02").Equal(got))

	_, err = s.StartByCount("us_stock", "close", d("2023-12-31"), 1)
	assert.Equal(t, apperrors.ErrTypeNotFound, apperrors.TypeOf(err))

	_, err = s.StartByCount("us_stock", "close", d("2024-01-04"), 0)
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))
}

func TestDates(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteSnapshot("us_stock", "close", d("2024-01-05"), nil))
	require.NoError(t, s.WriteSnapshot("us_stock", "close", d("2024-01-02"), nil))

	dates, err := s.Dates("us_stock", "close")
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.True(t, d("2024-01-02").Equal(dates[0]))
}

func TestWriteSnapshot_CollisionsResolveDeterministically(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	s := NewStore(newTestStore(t).Registry(), logger)
	values := map[string]float64{"BRK.B": 1, "BRK/B": 2, "BRK_B": 3}

	path, err := s.Path("us_stock", "close", d("2024-01-02"))
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 50; i++ {
		require.NoError(t, s.WriteSnapshot("us_stock", "close", d("2024-01-02"), values))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		if first == nil {
			first = data
			continue
		}
		require.Equal(t, string(first), string(data), "write %d", i)
	}

	got, err := s.ReadSnapshot("us_stock", "close", d("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BRK_B": 1}, got)
	assert.True(t, handler.ContainsMessage("Identifier collides after normalization, value dropped"))
}

func TestFilesAndFingerprint(t *testing.T) {
	s := newTestStore(t)
	for _, day := range []string{"2024-01-02", "2024-01-03", "2024-01-05"} {
		require.NoError(t, s.WriteSnapshot("us_stock", "close", d(day), map[string]float64{"A": 1}))
	}

	found, err := s.Files("us_stock", "close", d("2024-01-03"), d("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, d("2024-01-03"), found[0].Date)
	assert.Equal(t, d("2024-01-05"), found[1].Date)

	before := s.Fingerprint("us_stock", "close", found)
	assert.Equal(t, before, s.Fingerprint("us_stock", "close", found))

	// same size and date set, new write
	require.NoError(t, s.WriteSnapshot("us_stock", "close", d("2024-01-03"), map[string]float64{"A": 2}))
	found, err = s.Files("us_stock", "close", d("2024-01-03"), d("2024-01-31"))
	require.NoError(t, err)
	assert.NotEqual(t, before, s.Fingerprint("us_stock", "close", found))

	none, err := s.Files("us_stock", "close", d("2025-01-01"), d("2025-01-31"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
