package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo stores SHA-256 hashes of refresh tokens. Only hashes hit
// the database; the raw token goes back to the client once.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh saves the hash of a refresh token with its expiry.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, hash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, hash, exp.UTC())
	return err
}

// FindRefresh returns the owning user for an unexpired refresh token
// hash. sql.ErrNoRows means the token is unknown or expired.
func (r *TokenRepo) FindRefresh(ctx context.Context, hash string) (uint64, error) {
	var userID uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM refresh_tokens WHERE token_hash=? AND expires_at > UTC_TIMESTAMP() LIMIT 1",
		hash).Scan(&userID)
	return userID, err
}

// DeleteRefresh removes a refresh token hash, ending that session.
func (r *TokenRepo) DeleteRefresh(ctx context.Context, hash string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE token_hash=?", hash)
	return err
}
