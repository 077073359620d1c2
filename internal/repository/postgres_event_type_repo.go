package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/slotbook/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// PostgresEventTypeRepo はPostgreSQLを使用したイベント種別リポジトリ。
type PostgresEventTypeRepo struct {
	db *sql.DB
}

// NewPostgresEventTypeRepo はPostgresEventTypeRepoを生成する。
func NewPostgresEventTypeRepo(db *sql.DB) *PostgresEventTypeRepo {
	return &PostgresEventTypeRepo{db: db}
}

const eventTypeColumns = `id, owner_id, name, slug, description, duration_minutes, kind, capacity,
	location_type, location_details, is_active, deactivated_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEventType(row rowScanner) (*model.EventType, error) {
	et := &model.EventType{}
	var capacity sql.NullInt64
	var deactivatedAt sql.NullTime
	err := row.Scan(
		&et.ID, &et.OwnerID, &et.Name, &et.Slug, &et.Description, &et.DurationMinutes,
		&et.Kind, &capacity, &et.LocationType, &et.LocationDetails, &et.IsActive,
		&deactivatedAt, &et.CreatedAt, &et.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		et.Capacity = &c
	}
	if deactivatedAt.Valid {
		t := deactivatedAt.Time
		et.DeactivatedAt = &t
	}
	return et, nil
}

// Create はイベント種別を作成する。slugが重複する場合はErrDuplicateSlugを返す。
func (r *PostgresEventTypeRepo) Create(ctx context.Context, et *model.EventType) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_types (id, owner_id, name, slug, description, duration_minutes, kind, capacity,
		                          location_type, location_details, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		et.ID, et.OwnerID, et.Name, et.Slug, et.Description, et.DurationMinutes, et.Kind,
		nullableInt(et.Capacity), et.LocationType, et.LocationDetails, et.IsActive, et.CreatedAt, et.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("failed to create event type: %w", err)
	}
	return nil
}

// FindByID は指定IDのイベント種別を取得する。見つからない場合はnilを返す。
func (r *PostgresEventTypeRepo) FindByID(ctx context.Context, id string) (*model.EventType, error) {
	et, err := scanEventType(r.db.QueryRowContext(ctx,
		`SELECT `+eventTypeColumns+` FROM event_types WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event type: %w", err)
	}
	return et, nil
}

// FindActiveByOwnerAndSlug は公開中のイベント種別をオーナーとslugで取得する。
func (r *PostgresEventTypeRepo) FindActiveByOwnerAndSlug(ctx context.Context, ownerID, slug string) (*model.EventType, error) {
	et, err := scanEventType(r.db.QueryRowContext(ctx,
		`SELECT `+eventTypeColumns+` FROM event_types
		 WHERE owner_id = $1 AND slug = $2 AND is_active = true`,
		ownerID, slug,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event type by slug: %w", err)
	}
	return et, nil
}

// ListByOwner はオーナーのイベント種別を作成日時の昇順で返す。
func (r *PostgresEventTypeRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.EventType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventTypeColumns+` FROM event_types
		 WHERE owner_id = $1
		 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list event types: %w", err)
	}
	defer rows.Close()

	ets := make([]*model.EventType, 0)
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event type: %w", err)
		}
		ets = append(ets, et)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event types: %w", err)
	}
	return ets, nil
}

// Update は名前、説明、所要時間、場所、定員、有効状態を更新する。
// 再有効化した場合はdeactivated_atをクリアする。
func (r *PostgresEventTypeRepo) Update(ctx context.Context, et *model.EventType) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE event_types
		 SET name = $2, description = $3, duration_minutes = $4, capacity = $5,
		     location_type = $6, location_details = $7, is_active = $8,
		     deactivated_at = CASE WHEN $8::boolean THEN NULL ELSE deactivated_at END,
		     updated_at = $9
		 WHERE id = $1`,
		et.ID, et.Name, et.Description, et.DurationMinutes, nullableInt(et.Capacity),
		et.LocationType, et.LocationDetails, et.IsActive, et.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update event type: %w", err)
	}
	return expectOneRow(result, "event type", et.ID)
}

// Deactivate はイベント種別を論理削除する。既に無効な場合は無効化日時を変更しない。
func (r *PostgresEventTypeRepo) Deactivate(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE event_types
		 SET is_active = false, deactivated_at = COALESCE(deactivated_at, $2), updated_at = $2
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate event type: %w", err)
	}
	return expectOneRow(result, "event type", id)
}

// DeleteDeactivatedBefore は指定日時より前に無効化されたイベント種別を物理削除する。
func (r *PostgresEventTypeRepo) DeleteDeactivatedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM event_types WHERE is_active = false AND deactivated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete deactivated event types: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// compile-time interface check
var _ EventTypeRepository = (*PostgresEventTypeRepo)(nil)
