package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgauth/backend/internal/passwordreset/domain"
)

func TestPostgresRepository_GetByTokenHash(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	exp := time.Date(2026, 4, 1, 12, 30, 0, 0, time.UTC)

	t.Run("Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT token_hash, user_id, expires_at, created_at FROM password_reset_tokens WHERE token_hash = \$1 FOR UPDATE`).
			WithArgs("h1").
			WillReturnRows(sqlmock.NewRows([]string{"token_hash", "user_id", "expires_at", "created_at"}).
				AddRow("h1", "u1", exp, exp.Add(-30*time.Minute)))

		tok, err := repo.GetByTokenHash(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, tok)
		assert.Equal(t, "u1", tok.UserID)
		assert.True(t, tok.Expired(exp))
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectQuery(`FROM password_reset_tokens WHERE token_hash`).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"token_hash", "user_id", "expires_at", "created_at"}))

		tok, err := repo.GetByTokenHash(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, tok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateAndDelete(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO password_reset_tokens`).
		WithArgs("h1", "u1", now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM password_reset_tokens WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM password_reset_tokens WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	require.NoError(t, repo.Create(ctx, &domain.ResetToken{TokenHash: "h1", UserID: "u1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}))
	require.NoError(t, repo.DeleteByUser(ctx, "u1"))
	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
