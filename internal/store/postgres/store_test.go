package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/store"
)

func TestStore_InTxSharesTransaction(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM organizations WHERE id = \$1 FOR UPDATE`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at"}).AddRow("org-1", "Acme", now))
	mock.ExpectQuery(`FROM memberships`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(2, 1))
	mock.ExpectCommit()

	s := New(conn, time.Second)
	err = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Organizations().LockOrganization(ctx, "org-1")
		if err != nil || o == nil {
			return errors.New("lock failed")
		}
		c, err := tx.Memberships().CountByOrg(ctx, "org-1")
		if err != nil {
			return err
		}
		assert.Equal(t, 1, c.Admins)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTxRollsBackTypedError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = New(conn, 0).InTx(context.Background(), func(context.Context, store.Tx) error {
		return apperr.New(apperr.CodeInvariantViolation, "last admin")
	})
	assert.True(t, errors.Is(err, apperr.ErrInvariantViolation), "err = %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Ping(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	s := New(conn, time.Second)
	require.NoError(t, s.Ping(context.Background()))
	assert.Error(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
