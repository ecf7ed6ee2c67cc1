package xlsx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/basket/pkg/types"
)

func newSheet(t *testing.T) *Sheet {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "basket.xlsx"), "items")
	require.NoError(t, err)
	return s
}

func TestNewRejectsEmptySheetName(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "basket.xlsx"), "")
	assert.ErrorIs(t, err, types.ErrSheetNameEmpty)
}

func TestRowsOnMissingWorkbookIsEmpty(t *testing.T) {
	rows, err := newSheet(t).Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReplaceCreatesWorkbookWithNamedWorksheet(t *testing.T) {
	ctx := context.Background()
	s := newSheet(t)
	want := [][]string{types.Header, {"a", "Milk", "False", "Dairy", "Aldi"}}
	require.NoError(t, s.Replace(ctx, want))

	f, err := excelize.OpenFile(s.Path())
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"items"}, f.GetSheetList())

	got, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIncrementalEdits(t *testing.T) {
	ctx := context.Background()
	s := newSheet(t)
	require.NoError(t, s.Replace(ctx, [][]string{types.Header}))

	require.NoError(t, s.Append(ctx, []string{"a", "Milk", "False", "Dairy", "Aldi"}))
	require.NoError(t, s.Append(ctx, []string{"b", "Eggs", "False", "Dairy", "Lidl"}))
	require.NoError(t, s.Append(ctx, []string{"c", "Soap", "False", "Household", "Lidl"}))
	require.NoError(t, s.Update(ctx, 2, []string{"b", "Eggs", "True", "Dairy", "Lidl"}))
	require.NoError(t, s.Delete(ctx, 1))

	got, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		types.Header,
		{"b", "Eggs", "True", "Dairy", "Lidl"},
		{"c", "Soap", "False", "Household", "Lidl"},
	}, got)
}

func TestReplaceShrinksSheet(t *testing.T) {
	ctx := context.Background()
	s := newSheet(t)
	require.NoError(t, s.Replace(ctx, [][]string{
		types.Header,
		{"a", "Milk", "False", "Dairy", "Aldi"},
		{"b", "Eggs", "False", "Dairy", "Aldi"},
	}))
	require.NoError(t, s.Replace(ctx, [][]string{types.Header}))

	got, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{types.Header}, got)
}

func TestOtherWorksheetsSurvive(t *testing.T) {
	ctx := context.Background()
	s := newSheet(t)

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "budget"))
	require.NoError(t, f.SaveAs(s.Path()))
	require.NoError(t, f.Close())

	require.NoError(t, s.Append(ctx, types.Header))

	f, err := excelize.OpenFile(s.Path())
	require.NoError(t, err)
	defer f.Close()
	assert.ElementsMatch(t, []string{"Sheet1", "items"}, f.GetSheetList())
	v, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "budget", v)
}

func TestOutOfRange(t *testing.T) {
	ctx := context.Background()
	s := newSheet(t)
	require.NoError(t, s.Replace(ctx, [][]string{types.Header}))
	assert.ErrorIs(t, s.Update(ctx, 3, []string{"x"}), types.ErrRowOutOfRange)
	assert.ErrorIs(t, s.Delete(ctx, 3), types.ErrRowOutOfRange)
}

func TestEncodeOpenRoundTrip(t *testing.T) {
	f, err := Open(nil)
	require.NoError(t, err)
	require.NoError(t, ReplaceRows(f, "items", [][]string{types.Header}))
	buf, err := Encode(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	g, err := Open(buf)
	require.NoError(t, err)
	defer g.Close()
	rows, err := ReadRows(g, "items")
	require.NoError(t, err)
	assert.Equal(t, [][]string{types.Header}, rows)
}
