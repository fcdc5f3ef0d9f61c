package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
)

func testLayout(t *testing.T) *config.Layout {
	t.Helper()
	layout, err := config.NewLayout(t.TempDir())
	require.NoError(t, err)
	return layout
}

func TestResolve(t *testing.T) {
	layout := testLayout(t)
	reg, err := New(layout, []Item{
		{Stack: "us_stock", Name: "close", Path: []string{"price", "close"}, Kind: KindOHLC},
		{Stack: "us_stock", Name: "universe", Kind: KindUniverse},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		item string
		tier Tier
		want string
	}{
		{"snapshot directory", "close", TierSnapshot, filepath.Join(layout.RawDataDir, "us_stock", "price", "close")},
		{"raw table file", "close", TierRawTable, filepath.Join(layout.RawTableDir, "us_stock", "price", "close.csv")},
		{"table file", "close", TierTable, filepath.Join(layout.TableDir, "us_stock", "price", "close.csv")},
		{"default path is the item name", "universe", TierSnapshot, filepath.Join(layout.RawDataDir, "us_stock", "universe")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := reg.Resolve("us_stock", tt.item, tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.Path)
			assert.Equal(t, tt.tier, loc.Tier)
		})
	}
}

func TestResolve_UnknownItem(t *testing.T) {
	reg, err := New(testLayout(t), []Item{{Stack: "us_stock", Name: "close"}})
	require.NoError(t, err)

	_, err = reg.Resolve("us_stock", "nope", TierSnapshot)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnknownItem(err))
	assert.Equal(t, apperrors.ErrTypeConfig, apperrors.TypeOf(err))

	_, err = reg.Resolve("tw_stock", "close", TierTable)
	assert.True(t, apperrors.IsUnknownItem(err))

	_, err = reg.Resolve("us_stock", "close", Tier(42))
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))
}

func TestNew_RejectsBadEntries(t *testing.T) {
	layout := testLayout(t)

	tests := []struct {
		name  string
		items []Item
	}{
		{"duplicate", []Item{{Stack: "s", Name: "a"}, {Stack: "s", Name: "a"}}},
		{"missing stack", []Item{{Name: "a"}}},
		{"path escape", []Item{{Stack: "s", Name: "a", Path: []string{".."}}}},
		{"separator in path", []Item{{Stack: "s", Name: "a", Path: []string{"x/y"}}}},
		{"unknown kind", []Item{{Stack: "s", Name: "a", Kind: Kind("weird")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(layout, tt.items)
			assert.Error(t, err)
			assert.Equal(t, apperrors.ErrTypeConfig, apperrors.TypeOf(err))
		})
	}

	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestRegistry_IsImmutable(t *testing.T) {
	path := []string{"price", "close"}
	reg, err := New(testLayout(t), []Item{{Stack: "s", Name: "close", Path: path}})
	require.NoError(t, err)

	path[1] = "hacked"
	it, err := reg.Item("s", "close")
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "close"}, it.Path)
}

func TestItemsAndStacks(t *testing.T) {
	reg, err := New(testLayout(t), []Item{
		{Stack: "us_stock", Name: "volume", Kind: KindVolume},
		{Stack: "us_stock", Name: "close", Kind: KindOHLC},
		{Stack: "us_stock", Name: "open", Kind: KindOHLC},
		{Stack: "macro", Name: "cpi", Kind: KindMacro},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"macro", "us_stock"}, reg.Stacks())

	items, err := reg.Items("us_stock")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "close", items[0].Name)

	ohlc, err := reg.ItemsOfKind("us_stock", KindOHLC)
	require.NoError(t, err)
	assert.Len(t, ohlc, 2)

	_, err = reg.Items("nope")
	assert.True(t, apperrors.IsUnknownItem(err))
}

func TestEnsureLayout(t *testing.T) {
	layout := testLayout(t)
	reg, err := New(layout, []Item{{Stack: "us_stock", Name: "close"}})
	require.NoError(t, err)

	require.NoError(t, reg.EnsureLayout())
	for _, dir := range []string{layout.RawDataDir, layout.RawTableDir, layout.TableDir} {
		_, err := os.Stat(filepath.Join(dir, "us_stock"))
		assert.NoError(t, err)
	}
}

func TestParseTier(t *testing.T) {
	for input, want := range map[string]Tier{
		"raw_snapshot": TierSnapshot,
		"snapshot":     TierSnapshot,
		"RAW_TABLE":    TierRawTable,
		"table":        TierTable,
	} {
		got, err := ParseTier(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := ParseTier("warehouse")
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))
	assert.Equal(t, "raw_table", TierRawTable.String())
}

func TestKind_Dense(t *testing.T) {
	assert.True(t, KindOHLC.Dense())
	assert.True(t, KindUniverse.Dense())
	assert.False(t, KindDividend.Dense())
	assert.False(t, KindSplit.Dense())

	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindGeneric, k)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "registry.yaml")
	content := `
stacks:
  us_stock:
    items:
      close: {path: [price, close], kind: ohlc}
      stock_splits: {path: [corporate, splits], kind: split}
  macro:
    items:
      cpi: {kind: macro}
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	reg, err := Load(testLayout(t), file)
	require.NoError(t, err)

	it, err := reg.Item("us_stock", "stock_splits")
	require.NoError(t, err)
	assert.Equal(t, KindSplit, it.Kind)
	assert.Equal(t, []string{"corporate", "splits"}, it.Path)

	it, err = reg.Item("macro", "cpi")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpi"}, it.Path)
}

func TestLoad_Workbook(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tw_stock.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"item", "folder", "sub", "type"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"close", "price", "close", "ohlc"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"universe", "universe", "", "universe"}))
	require.NoError(t, f.SaveAs(file))
	require.NoError(t, f.Close())

	reg, err := Load(testLayout(t), file)
	require.NoError(t, err)

	it, err := reg.Item("tw_stock", "close")
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "close"}, it.Path)
	assert.Equal(t, KindOHLC, it.Kind)

	it, err = reg.Item("tw_stock", "universe")
	require.NoError(t, err)
	assert.Equal(t, []string{"universe"}, it.Path)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(testLayout(t), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(testLayout(t), filepath.Join(dir, "registry.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("stacks:\n  s:\n    items:\n      a: {kind: nonsense}\n"), 0644))
	_, err = Load(testLayout(t), bad)
	assert.Error(t, err)
}
