package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
)

func testTable(t *testing.T) *beach.Table {
	t.Helper()
	spec := beach.FieldSpec{
		{Selector: "navbar-title-text", Label: "Beach name"},
		{Selector: "bw-alert-text", Label: "Alert", Multi: true},
	}
	table := beach.NewTable(spec)
	at := time.Date(2024, 6, 3, 7, 40, 0, 0, time.UTC)
	require.NoError(t, table.Append(beach.Record{
		RetrievedAt: at,
		Region:      "Sydney",
		Values:      []beach.Value{beach.ScalarValue("Bondi"), beach.ListValue([]string{"Shark", "Closed"})},
	}))
	require.NoError(t, table.Append(beach.Record{
		RetrievedAt: at,
		Region:      "Hunter",
		Values:      []beach.Value{beach.ScalarValue("Merewether"), beach.ListValue(nil)},
	}))
	table.Freeze()
	return table
}

func TestAppendCopiesRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTableStoreWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://beaches", store.Location())

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"beaches"}, []string{"Retrieved at", "Region", "Beach name", "Alert"}).
		WillReturnResult(2)
	mock.ExpectCommit()

	n, err := store.Append(context.Background(), testTable(t))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRollsBackOnCopyFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTableStoreWithPool(mock, "beach_rows")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"beach_rows"}, []string{"Retrieved at", "Region", "Beach name", "Alert"}).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	_, err = store.Append(context.Background(), testTable(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendBeginFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTableStoreWithPool(mock, "beaches")
	require.NoError(t, err)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err = store.Append(context.Background(), testTable(t))
	require.ErrorContains(t, err, "begin tx")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewTableStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewTableStoreWithPool(nil, "beaches")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewTableStoreWithPool(mock, "beaches; DROP TABLE x")
	require.Error(t, err)

	_, err = NewTableStore(context.Background(), TableStoreConfig{})
	require.Error(t, err)
	_, err = NewTableStore(context.Background(), TableStoreConfig{DSN: "::not a dsn::"})
	require.Error(t, err)
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got := createTableSQL("beaches", []string{"Retrieved at", "Region"})
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "beaches" ("Retrieved at" TIMESTAMPTZ, "Region" TEXT)`, got)

	rows := copyRows(testTable(t))
	require.Len(t, rows, 2)
	assert.Equal(t, "Shark Closed", rows[0][3])
	assert.Equal(t, "", rows[1][3])
	assert.IsType(t, time.Time{}, rows[0][0])
}
