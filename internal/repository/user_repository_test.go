package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepo(db), mock
}

func userRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "role", "created_at", "updated_at"}).
		AddRow(1, "a@example.com", "$2a$04$hash", "Alice", "user", now, now)
}

func TestUserCreate(t *testing.T) {
	t.Run("normalizes email and returns id", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectExec("INSERT INTO users (email, password_hash, name) VALUES (?,?,?)").
			WithArgs("a@example.com", sqlmock.AnyArg(), "Alice").
			WillReturnResult(sqlmock.NewResult(1, 1))

		id, err := repo.Create(context.Background(), "  A@Example.COM ", "password123", "Alice", 4)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email maps to ErrEmailExists", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectExec("INSERT INTO users (email, password_hash, name) VALUES (?,?,?)").
			WithArgs("a@example.com", sqlmock.AnyArg(), "Alice").
			WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'a@example.com' for key 'users.email'"))

		_, err := repo.Create(context.Background(), "a@example.com", "password123", "Alice", 4)
		assert.ErrorIs(t, err, ErrEmailExists)
	})
}

func TestUserGetByEmail(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectQuery("SELECT id,email,password_hash,name,role,created_at,updated_at FROM users WHERE email=? LIMIT 1").
			WithArgs("a@example.com").
			WillReturnRows(userRows())

		u, err := repo.GetByEmail(context.Background(), "A@Example.com")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), u.ID)
		assert.Equal(t, "a@example.com", u.Email)
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectQuery("SELECT id,email,password_hash,name,role,created_at,updated_at FROM users WHERE email=? LIMIT 1").
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUserUpdateProfile(t *testing.T) {
	t.Run("updates both fields and rereads", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectExec("UPDATE users SET name=?,email=? WHERE id=?").
			WithArgs("Alice B", "new@example.com", uint64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT id,email,password_hash,name,role,created_at,updated_at FROM users WHERE id=? LIMIT 1").
			WithArgs(uint64(1)).
			WillReturnRows(userRows())

		_, err := repo.UpdateProfile(context.Background(), 1, "Alice B", "NEW@example.com")
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("taken email maps to ErrEmailExists", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectExec("UPDATE users SET email=? WHERE id=?").
			WithArgs("taken@example.com", uint64(1)).
			WillReturnError(errors.New("Error 1062 (23000): Duplicate entry"))

		_, err := repo.UpdateProfile(context.Background(), 1, "", "taken@example.com")
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("no fields is a plain read", func(t *testing.T) {
		repo, mock := newUserRepo(t)
		mock.ExpectQuery("SELECT id,email,password_hash,name,role,created_at,updated_at FROM users WHERE id=? LIMIT 1").
			WithArgs(uint64(1)).
			WillReturnRows(userRows())

		_, err := repo.UpdateProfile(context.Background(), 1, "", "")
		require.NoError(t, err)
	})
}
