package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/slotbook/internal/model"
)

// PostgresScheduleRepo はPostgreSQLを使用した週間スケジュールリポジトリ。
// 週間スケジュールは曜日をキーとするJSONBとして1行に保存する。
type PostgresScheduleRepo struct {
	db *sql.DB
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

// FindByUserID はユーザーの週間スケジュールを取得する。未登録の場合はnilを返す。
func (r *PostgresScheduleRepo) FindByUserID(ctx context.Context, userID string) (*model.WorkSchedule, error) {
	ws := &model.WorkSchedule{UserID: userID}
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT weekly, updated_at FROM work_schedules WHERE user_id = $1`,
		userID,
	).Scan(&raw, &ws.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work schedule: %w", err)
	}

	if err := json.Unmarshal(raw, &ws.Weekly); err != nil {
		return nil, fmt.Errorf("failed to decode work schedule: %w", err)
	}
	return ws, nil
}

// Upsert はユーザーの週間スケジュールを作成または上書きする。
func (r *PostgresScheduleRepo) Upsert(ctx context.Context, userID string, weekly model.WeeklySchedule) error {
	raw, err := json.Marshal(weekly)
	if err != nil {
		return fmt.Errorf("failed to encode work schedule: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO work_schedules (user_id, weekly, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET weekly = EXCLUDED.weekly, updated_at = now()`,
		userID, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert work schedule: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ScheduleRepository = (*PostgresScheduleRepo)(nil)
