package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgauth/backend/internal/membership/domain"
)

func TestPostgresRepository_CountByOrg(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	mock.ExpectQuery(`SELECT count\(\*\), count\(\*\) FILTER \(WHERE role = 'admin'\) FROM memberships`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(3, 1))

	c, err := repo.CountByOrg(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Counts{Total: 3, Admins: 1}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateRole(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("Updated", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE memberships SET role = \$3 WHERE user_id = \$1 AND org_id = \$2 RETURNING`).
			WithArgs("u1", "org-1", "admin").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "org_id", "role", "created_at"}).
				AddRow("m1", "u1", "org-1", "admin", now))

		m, err := repo.UpdateRole(ctx, "u1", "org-1", domain.RoleAdmin)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, domain.RoleAdmin, m.Role)
	})

	t.Run("Missing", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE memberships SET role`).
			WithArgs("u2", "org-1", "member").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "org_id", "role", "created_at"}))

		m, err := repo.UpdateRole(ctx, "u2", "org-1", domain.RoleMember)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListMembershipsByOrg(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM memberships WHERE org_id = \$1`).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "org_id", "role", "created_at"}).
			AddRow("m1", "u1", "org-1", "admin", now).
			AddRow("m2", "u2", "org-1", "member", now))

	list, err := NewPostgresRepository(conn).ListMembershipsByOrg(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.RoleMember, list[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
