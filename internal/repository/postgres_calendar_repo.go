package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/slotbook/internal/model"
)

// PostgresCalendarRepo はPostgreSQLを使用したカレンダー連携リポジトリ。
type PostgresCalendarRepo struct {
	db *sql.DB
}

// NewPostgresCalendarRepo はPostgresCalendarRepoを生成する。
func NewPostgresCalendarRepo(db *sql.DB) *PostgresCalendarRepo {
	return &PostgresCalendarRepo{db: db}
}

const calendarColumns = `user_id, provider, access_token, refresh_token, token_type, expires_at, scopes,
	ics_url, status, consecutive_errors, error_message, next_refresh_at, created_at, updated_at`

func scanIntegration(row rowScanner) (*model.CalendarIntegration, error) {
	c := &model.CalendarIntegration{}
	var expiresAt, nextRefreshAt sql.NullTime
	var scopes pq.StringArray
	err := row.Scan(
		&c.UserID, &c.Provider, &c.AccessToken, &c.RefreshToken, &c.TokenType, &expiresAt, &scopes,
		&c.ICSURL, &c.Status, &c.ConsecutiveErrors, &c.ErrorMessage, &nextRefreshAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time
	}
	if nextRefreshAt.Valid {
		t := nextRefreshAt.Time
		c.NextRefreshAt = &t
	}
	c.Scopes = []string(scopes)
	return c, nil
}

// FindByUserID はユーザーの連携情報を取得する。未連携の場合はnilを返す。
func (r *PostgresCalendarRepo) FindByUserID(ctx context.Context, userID string) (*model.CalendarIntegration, error) {
	c, err := scanIntegration(r.db.QueryRowContext(ctx,
		`SELECT `+calendarColumns+` FROM calendar_integrations WHERE user_id = $1`,
		userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar integration: %w", err)
	}
	return c, nil
}

// UpsertGoogle はGoogle連携のトークンを保存し、連携状態をactiveにリセットする。
func (r *PostgresCalendarRepo) UpsertGoogle(ctx context.Context, integ *model.CalendarIntegration) error {
	scopes := integ.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calendar_integrations
		     (user_id, provider, access_token, refresh_token, token_type, expires_at, scopes,
		      status, consecutive_errors, error_message, next_refresh_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', 0, '', NULL, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     provider = EXCLUDED.provider,
		     access_token = EXCLUDED.access_token,
		     refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN calendar_integrations.refresh_token
		                          ELSE EXCLUDED.refresh_token END,
		     token_type = EXCLUDED.token_type,
		     expires_at = EXCLUDED.expires_at,
		     scopes = EXCLUDED.scopes,
		     status = 'active',
		     consecutive_errors = 0,
		     error_message = '',
		     next_refresh_at = NULL,
		     updated_at = now()`,
		integ.UserID, model.ProviderGoogle, integ.AccessToken, integ.RefreshToken, integ.TokenType,
		integ.ExpiresAt, pq.Array(scopes),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert google integration: %w", err)
	}
	return nil
}

// UpdateToken はリフレッシュ後のアクセストークンと有効期限を保存する。
func (r *PostgresCalendarRepo) UpdateToken(ctx context.Context, userID, accessToken, refreshToken, tokenType string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE calendar_integrations
		 SET access_token = $2,
		     refresh_token = CASE WHEN $3::text = '' THEN refresh_token ELSE $3::text END,
		     token_type = $4,
		     expires_at = $5,
		     updated_at = now()
		 WHERE user_id = $1`,
		userID, accessToken, refreshToken, tokenType, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return expectOneRow(result, "calendar integration", userID)
}

// SetICSURL はICSフィードURLを保存する。連携レコードがない場合は作成する。
func (r *PostgresCalendarRepo) SetICSURL(ctx context.Context, userID, icsURL string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO calendar_integrations (user_id, ics_url, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET ics_url = EXCLUDED.ics_url, updated_at = now()`,
		userID, icsURL,
	)
	if err != nil {
		return fmt.Errorf("failed to set ics url: %w", err)
	}
	return nil
}

// ListDueForRefresh はトークンの有効期限が近いGoogle連携を取得する。
// 複数ワーカーが同時に処理しないようFOR UPDATE SKIP LOCKEDで取得する。
func (r *PostgresCalendarRepo) ListDueForRefresh(ctx context.Context, expiresBefore time.Time, limit int) ([]*model.CalendarIntegration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+calendarColumns+` FROM calendar_integrations
		 WHERE provider = 'google'
		   AND refresh_token <> ''
		   AND status IN ('active', 'error')
		   AND expires_at <= $1
		   AND (next_refresh_at IS NULL OR next_refresh_at <= now())
		 ORDER BY expires_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		expiresBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("リフレッシュ対象連携の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var integrations []*model.CalendarIntegration
	for rows.Next() {
		c, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("リフレッシュ対象連携の読み取りに失敗しました: %w", err)
		}
		integrations = append(integrations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リフレッシュ対象連携の走査に失敗しました: %w", err)
	}
	return integrations, nil
}

// UpdateRefreshState はstatus、consecutive_errors、error_message、next_refresh_atを更新する。
func (r *PostgresCalendarRepo) UpdateRefreshState(ctx context.Context, integ *model.CalendarIntegration) error {
	var next sql.NullTime
	if integ.NextRefreshAt != nil {
		next = sql.NullTime{Time: *integ.NextRefreshAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE calendar_integrations
		 SET status = $2, consecutive_errors = $3, error_message = $4, next_refresh_at = $5, updated_at = now()
		 WHERE user_id = $1`,
		integ.UserID, integ.Status, integ.ConsecutiveErrors, integ.ErrorMessage, next,
	)
	if err != nil {
		return fmt.Errorf("failed to update refresh state: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーの連携情報を削除する。
func (r *PostgresCalendarRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM calendar_integrations WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete calendar integration: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CalendarIntegrationRepository = (*PostgresCalendarRepo)(nil)
