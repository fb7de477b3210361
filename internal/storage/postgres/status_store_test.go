package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusStorePutUpsertsSortedKeys(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStatusStore(mock, "")
	require.NoError(t, err)
	now := time.Unix(1700000000, 0).UTC()
	store.now = func() time.Time { return now }

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO status (key,value,updated_at) VALUES ($1,$2,$3),($4,$5,$6) " +
			"ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at",
	)).
		WithArgs("existence.document.index", int64(7), now, "existence.start", int64(1700000000000), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	err = store.Put(context.Background(), map[string]int64{
		"existence.start":          1700000000000,
		"existence.document.index": 7,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusStorePutEmptyIsNoop(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStatusStore(mock, "status")
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusStoreAll(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStatusStore(mock, "status")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value FROM status WHERE key LIKE $1 ORDER BY key")).
		WithArgs("existence.%").
		WillReturnRows(mock.NewRows([]string{"key", "value"}).
			AddRow("existence.document.amount", int64(3)).
			AddRow("existence.document.suspects", int64(2)))

	got, err := store.All(context.Background(), "existence.")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"existence.document.amount":   3,
		"existence.document.suspects": 2,
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStatusStoreRejectsBadTable(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewStatusStore(mock, "1status")
	require.Error(t, err)
}
