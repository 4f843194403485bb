package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/org/legacyvault/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db), mock
}

func TestSQLiteStore_InitSettingsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO kdf_settings").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.InitSettings(context.Background(), &models.KDFSettings{Salt: []byte("s"), Iterations: 1})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_InitSettingsExecError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO kdf_settings").WillReturnError(errors.New("disk full"))

	err := s.InitSettings(context.Background(), &models.KDFSettings{Salt: []byte("s"), Iterations: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting kdf settings")
	assert.Contains(t, err.Error(), "disk full")
}

func TestSQLiteStore_GetRecordQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, category, cipher_text, nonce, last_modified FROM records").
		WithArgs("x").
		WillReturnError(errors.New("locked"))

	_, err := s.GetRecord(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "reading record")
}

func TestSQLiteStore_ListRecordsRowError(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "category", "cipher_text", "nonce", "last_modified"}).
		AddRow("a", "digital-accounts", []byte("ct"), []byte("n"), int64(1000)).
		RowError(0, errors.New("corrupt page"))
	mock.ExpectQuery("SELECT id, category, cipher_text, nonce, last_modified FROM records").WillReturnRows(rows)

	_, err := s.ListRecords(context.Background())
	assert.Error(t, err)
}

func TestSQLiteStore_DeleteMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM trustees").WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteTrustee(context.Background(), "gone"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_PutReleaseConditionsError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO release_conditions").WillReturnError(errors.New("readonly"))

	err := s.PutReleaseConditions(context.Background(), models.DefaultReleaseConditions(t0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing release conditions")
}
