package sqlsheet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/basket/pkg/types"
)

func openSQLite(t *testing.T) *Sheet {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "basket.db"), "items")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRejectsBadTableNames(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "basket.db")
	_, err := Open(context.Background(), DriverSQLite, dsn, "")
	assert.ErrorIs(t, err, types.ErrSheetNameEmpty)

	_, err = Open(context.Background(), DriverSQLite, dsn, "items; DROP TABLE x")
	assert.ErrorIs(t, err, types.ErrSheetNameInvalid)
}

func TestEmptyTableHasNoRows(t *testing.T) {
	rows, err := openSQLite(t).Rows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReplaceAndIncrementalEdits(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	require.NoError(t, s.Replace(ctx, [][]string{types.Header, {"a", "Milk", "False", "Dairy", "Aldi"}}))
	require.NoError(t, s.Append(ctx, []string{"b", "Eggs", "False", "Dairy", "Lidl"}))
	require.NoError(t, s.Append(ctx, []string{"c", "Soap", "False", "Household", "Lidl"}))
	require.NoError(t, s.Update(ctx, 2, []string{"b", "Eggs", "True", "Dairy", "Lidl"}))
	require.NoError(t, s.Delete(ctx, 1))

	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		types.Header,
		{"b", "Eggs", "True", "Dairy", "Lidl"},
		{"c", "Soap", "False", "Household", "Lidl"},
	}, rows)

	// Positions stay dense after a delete.
	require.NoError(t, s.Update(ctx, 2, []string{"c", "Soap", "True", "Household", "Lidl"}))
	assert.ErrorIs(t, s.Update(ctx, 3, []string{"x"}), types.ErrRowOutOfRange)
	assert.ErrorIs(t, s.Delete(ctx, 3), types.ErrRowOutOfRange)
}

func TestMalformedRowKeepsPositions(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	require.NoError(t, s.Replace(ctx, [][]string{{"sid", "item"}, {"a", "Milk"}, {"b", "Eggs"}}))
	_, err := s.db.ExecContext(ctx, s.q("UPDATE %s SET cells = ? WHERE pos = ?"), "not json", 1)
	require.NoError(t, err)

	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sid", "item"}, {}, {"b", "Eggs"}}, rows)

	require.NoError(t, s.Update(ctx, 2, []string{"b", "Eggs!"}))
	rows, err = s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sid", "item"}, {}, {"b", "Eggs!"}}, rows)
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "basket.db")

	s1, err := Open(ctx, DriverSQLite, dsn, "items")
	require.NoError(t, err)
	require.NoError(t, s1.Replace(ctx, [][]string{types.Header, {"a", "Milk", "False", "Dairy", "Aldi"}}))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, DriverSQLite, dsn, "items")
	require.NoError(t, err)
	defer s2.Close()
	rows, err := s2.Rows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "UPDATE t SET cells = $1 WHERE pos = $2", rebind("UPDATE t SET cells = ? WHERE pos = ?"))
	assert.Equal(t, "SELECT 1", rebind("SELECT 1"))
}
