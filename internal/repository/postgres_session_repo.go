package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/slotbook/internal/model"
)

// PostgresSessionRepo はログインセッションを保持する。
// 有効期限の判定はDBのnow()で行い、期限切れの行は掃除ジョブが削除する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

const (
	insertSession = `INSERT INTO sessions (id, user_id, data, expires_at, created_at)
		VALUES ($1, $2, '\x7b7d', $3, $4)`
	selectLiveSession = `SELECT id, user_id, expires_at, created_at
		FROM sessions WHERE id = $1 AND expires_at > now()`
	deleteSessionByID     = `DELETE FROM sessions WHERE id = $1`
	deleteSessionsByUser  = `DELETE FROM sessions WHERE user_id = $1`
	deleteExpiredSessions = `DELETE FROM sessions WHERE expires_at <= now()`
)

// Create はセッションを保存する。
func (r *PostgresSessionRepo) Create(ctx context.Context, s *model.Session) error {
	if _, err := r.db.ExecContext(ctx, insertSession, s.ID, s.UserID, s.ExpiresAt, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は有効なセッションを返す。存在しないか期限切れならnil。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx, selectLiveSession, id).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &s, nil
}

// DeleteByID はログアウト時にセッションを破棄する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.deleteWhere(ctx, deleteSessionByID, id)
	return err
}

// DeleteByUserID はアカウント削除時に全端末のセッションを破棄する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.deleteWhere(ctx, deleteSessionsByUser, userID)
	return err
}

// DeleteExpired は期限切れのセッションを削除し、件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return r.deleteWhere(ctx, deleteExpiredSessions)
}

func (r *PostgresSessionRepo) deleteWhere(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
