package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/slotbook/internal/model"
)

const (
	selectUserByID = `SELECT id, email, name, timezone, created_at, updated_at
		FROM users WHERE id = $1`
	insertUser = `INSERT INTO users (id, email, name, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	insertIdentity = `INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	insertWorkSchedule = `INSERT INTO work_schedules (user_id, weekly, updated_at)
		VALUES ($1, $2, $3)`
	updateUserTimezone = `UPDATE users SET timezone = $2, updated_at = now() WHERE id = $1`
	updateUserProfile  = `UPDATE users SET email = $2, name = $3, updated_at = now() WHERE id = $1`
	deleteUser         = `DELETE FROM users WHERE id = $1`
)

// PostgresUserRepo はusersテーブルを扱う。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを返す。存在しなければ(nil, nil)。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRowContext(ctx, selectUserByID, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Timezone, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to find user %s: %w", id, err)
	}
	return &u, nil
}

// CreateWithIdentity はユーザー、identity、初期の週間スケジュールを1トランザクションで登録する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity, weekly model.WeeklySchedule) (err error) {
	weeklyJSON, err := json.Marshal(weekly)
	if err != nil {
		return fmt.Errorf("failed to encode weekly schedule: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	steps := []struct {
		what  string
		query string
		args  []any
	}{
		{"user", insertUser, []any{user.ID, user.Email, user.Name, user.Timezone, user.CreatedAt, user.UpdatedAt}},
		{"identity", insertIdentity, []any{identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt}},
		{"work schedule", insertWorkSchedule, []any{user.ID, weeklyJSON, user.CreatedAt}},
	}
	for _, st := range steps {
		if _, err = tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("failed to insert %s: %w", st.what, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}
	return nil
}

// UpdateTimezone はユーザーのタイムゾーンを書き換える。
func (r *PostgresUserRepo) UpdateTimezone(ctx context.Context, id, timezone string) error {
	return r.execOne(ctx, "update timezone", id, updateUserTimezone, id, timezone)
}

// UpdateProfile はメールアドレスと表示名を書き換える。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id, email, name string) error {
	return r.execOne(ctx, "update profile", id, updateUserProfile, id, email, name)
}

// DeleteByID はユーザーを削除する。関連行はON DELETE CASCADEで消える。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete user", id, deleteUser, id)
}

func (r *PostgresUserRepo) execOne(ctx context.Context, op, id, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return expectOneRow(result, "user", id)
}

// expectOneRow は更新系クエリが1行以上に作用したことを確かめる。
func expectOneRow(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

var _ UserRepository = (*PostgresUserRepo)(nil)
