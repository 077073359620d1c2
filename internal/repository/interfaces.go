// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/slotbook/internal/model"
)

// ErrDuplicateSlug は同一オーナー内でslugが重複した場合に返される。
var ErrDuplicateSlug = errors.New("event type slug already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザー、identity、初期の週間スケジュールを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity, weekly model.WeeklySchedule) error

	// UpdateTimezone はユーザーのタイムゾーンを更新する。
	UpdateTimezone(ctx context.Context, id, timezone string) error

	// UpdateProfile はIdPから取得したメールアドレスと表示名を反映する。
	UpdateProfile(ctx context.Context, id, email, name string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、work_schedules、event_types、calendar_integrationsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ScheduleRepository は週間スケジュールの永続化インターフェース。
type ScheduleRepository interface {
	// FindByUserID はユーザーの週間スケジュールを取得する。未登録の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.WorkSchedule, error)

	// Upsert はユーザーの週間スケジュールを作成または上書きする。
	Upsert(ctx context.Context, userID string, weekly model.WeeklySchedule) error
}

// EventTypeRepository はイベント種別の永続化インターフェース。
type EventTypeRepository interface {
	// Create はイベント種別を作成する。slugが重複する場合はErrDuplicateSlugを返す。
	Create(ctx context.Context, et *model.EventType) error

	// FindByID は指定IDのイベント種別を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.EventType, error)

	// FindActiveByOwnerAndSlug は公開中のイベント種別をオーナーとslugで取得する。
	// 見つからない、または無効化されている場合はnilを返す。
	FindActiveByOwnerAndSlug(ctx context.Context, ownerID, slug string) (*model.EventType, error)

	// ListByOwner はオーナーのイベント種別を作成日時の昇順で返す。無効化されたものも含む。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.EventType, error)

	// Update は名前、説明、所要時間、場所、定員、有効状態を更新する。
	Update(ctx context.Context, et *model.EventType) error

	// Deactivate はイベント種別を論理削除する。
	Deactivate(ctx context.Context, id string, at time.Time) error

	// DeleteDeactivatedBefore は指定日時より前に無効化されたイベント種別を物理削除し、削除件数を返す。
	DeleteDeactivatedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CalendarIntegrationRepository は外部カレンダー連携情報の永続化インターフェース。
type CalendarIntegrationRepository interface {
	// FindByUserID はユーザーの連携情報を取得する。未連携の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.CalendarIntegration, error)

	// UpsertGoogle はGoogle連携のトークンを保存し、連携状態をactiveにリセットする。
	// 既存のICS URLは維持する。
	UpsertGoogle(ctx context.Context, integ *model.CalendarIntegration) error

	// UpdateToken はリフレッシュ後のアクセストークンと有効期限を保存する。
	// refreshTokenが空の場合は既存のリフレッシュトークンを維持する。
	UpdateToken(ctx context.Context, userID, accessToken, refreshToken, tokenType string, expiresAt time.Time) error

	// SetICSURL はICSフィードURLを保存する。連携レコードがない場合は作成する。
	SetICSURL(ctx context.Context, userID, icsURL string) error

	// ListDueForRefresh はトークンの有効期限がexpiresBefore以前で、
	// 次回リフレッシュ時刻を過ぎたactive/errorの連携を取得する。
	ListDueForRefresh(ctx context.Context, expiresBefore time.Time, limit int) ([]*model.CalendarIntegration, error)

	// UpdateRefreshState はstatus、consecutive_errors、error_message、next_refresh_atを更新する。
	UpdateRefreshState(ctx context.Context, integ *model.CalendarIntegration) error

	// DeleteByUserID はユーザーの連携情報を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
