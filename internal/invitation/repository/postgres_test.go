package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgauth/backend/internal/invitation/domain"
)

var invitationRowColumns = []string{"id", "email", "org_id", "inviter_id", "token_hash", "status", "accepted_by_user_id", "created_at", "updated_at"}

func TestPostgresRepository_GetByTokenHash_LocksRow(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM invitations WHERE token_hash = \$1 FOR UPDATE`).
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows(invitationRowColumns).
			AddRow("inv-1", "bob@example.com", "org-1", "u1", "hash-1", "pending", nil, now, now))

	inv, err := NewPostgresRepository(conn).GetByTokenHash(context.Background(), "hash-1")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, domain.StatusPending, inv.Status)
	assert.Empty(t, inv.AcceptedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	at := time.Now().UTC()

	t.Run("Pending", func(t *testing.T) {
		mock.ExpectExec(`UPDATE invitations SET status = \$2, accepted_by_user_id = \$3, updated_at = \$4 WHERE id = \$1 AND status = 'pending'`).
			WithArgs("inv-1", "accepted", "u2", at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		ok, err := repo.UpdateStatus(context.Background(), "inv-1", domain.StatusAccepted, "u2", at)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("AlreadyTerminal", func(t *testing.T) {
		mock.ExpectExec(`UPDATE invitations SET status`).
			WithArgs("inv-1", "revoked", nil, at).
			WillReturnResult(sqlmock.NewResult(0, 0))
		ok, err := repo.UpdateStatus(context.Background(), "inv-1", domain.StatusRevoked, "", at)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ExpirePendingBefore(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	at := time.Now().UTC()
	cutoff := at.Add(-domain.DefaultTTL)
	mock.ExpectExec(`UPDATE invitations SET status = 'expired'`).
		WithArgs(cutoff, at).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewPostgresRepository(conn).ExpirePendingBefore(context.Background(), cutoff, at)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
