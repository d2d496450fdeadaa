package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRepo persists and validates refresh tokens.  Only the SHA-256 hash of
// a token ever reaches this layer.  A row moves through exactly one of three
// terminal outcomes: revoked (rotation or logout), expired (lazily deleted on
// read, bulk-deleted by CleanupExpired) or cascade-deleted with its user.
//
// The single-use guarantee for rotation rests on the conditional UPDATE in
// Rotate/RevokeByHash: `revoked=0` in the WHERE clause makes revocation a
// compare-and-swap, so of two concurrent rotations of the same token exactly
// one observes RowsAffected==1 and may insert a successor.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// ValidateRefresh returns the owning userID if a non-revoked, non-expired
// token exists.  An expired row is deleted on the spot so dead tokens do not
// linger until the next cleanup pass.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revoked   bool
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTokenNotFound
		}
		return 0, err
	}
	if revoked {
		return 0, ErrTokenNotFound
	}
	if time.Now().UTC().After(expiresAt) {
		_, _ = r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash=?", tokenHash)
		return 0, ErrTokenNotFound
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked.  Returns ErrTokenNotFound when the
// token does not exist or was already revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE token_hash=? AND revoked=0",
		tokenHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RevokeAllForUser revokes all of the user's active tokens (logout from all
// devices).
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE user_id=? AND revoked=0",
		userID)
	return err
}

// Rotate revokes oldHash and stores newHash for the same user in one
// transaction.  The revocation is conditional on the row still being active;
// losing that race aborts the transaction with ErrRotationConflict and no
// successor is created.  Callers must have validated oldHash first, so a
// conflict here means a concurrent rotation won, not a bad client token.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, newHash string, userID uint64, exp time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE token_hash=? AND revoked=0 AND expires_at > ?",
		oldHash, time.Now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRotationConflict
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, newHash, exp); err != nil {
		return err
	}
	return tx.Commit()
}

// CleanupExpired deletes all rows that are expired or revoked and returns the
// number removed.  Intended for periodic background invocation, not the
// request path.
func (r *TokenRepo) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < ? OR revoked=1",
		time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
