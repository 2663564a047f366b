package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenCols = []string{"id", "user_id", "name", "token_hash", "expires_at", "last_used_at", "revoked_at", "created_at"}

func TestPostgresRepository_GetByTokenHash(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("NullableColumns", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, user_id, name, token_hash, expires_at, last_used_at, revoked_at, created_at FROM api_tokens WHERE token_hash = \$1`).
			WithArgs("h1").
			WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("t1", "u1", "ci", "h1", now.Add(time.Hour), nil, nil, now))

		tok, err := repo.GetByTokenHash(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, tok)
		assert.Nil(t, tok.LastUsedAt)
		assert.Nil(t, tok.RevokedAt)
		assert.True(t, tok.Active(now))
	})

	t.Run("Revoked", func(t *testing.T) {
		mock.ExpectQuery(`FROM api_tokens WHERE token_hash`).
			WithArgs("h2").
			WillReturnRows(sqlmock.NewRows(tokenCols).AddRow("t2", "u1", "old", "h2", now.Add(time.Hour), now, now, now))

		tok, err := repo.GetByTokenHash(ctx, "h2")
		require.NoError(t, err)
		require.NotNil(t, tok.RevokedAt)
		assert.False(t, tok.Active(now))
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectQuery(`FROM api_tokens WHERE token_hash`).
			WithArgs("h3").
			WillReturnRows(sqlmock.NewRows(tokenCols))

		tok, err := repo.GetByTokenHash(ctx, "h3")
		require.NoError(t, err)
		assert.Nil(t, tok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Revoke(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE api_tokens SET revoked_at = \$3 WHERE id = \$1 AND user_id = \$2 AND revoked_at IS NULL`).
		WithArgs("t1", "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE api_tokens SET revoked_at`).
		WithArgs("t1", "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Revoke(ctx, "t1", "u1", at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Revoke(ctx, "t1", "u1", at)
	require.NoError(t, err)
	assert.False(t, ok, "second revoke must report nothing changed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListByUser(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM api_tokens WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(tokenCols).
			AddRow("t2", "u1", "b", "h2", now.Add(time.Hour), now, nil, now).
			AddRow("t1", "u1", "a", "h1", now.Add(time.Hour), nil, nil, now.Add(-time.Hour)))

	list, err := NewPostgresRepository(conn).ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t2", list[0].ID)
	require.NotNil(t, list[0].LastUsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
