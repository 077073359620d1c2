package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/slotbook/internal/calendar"
	"github.com/hitoshi/slotbook/internal/metrics"
	"github.com/hitoshi/slotbook/internal/model"
)

// トークン更新結果のメトリクスラベル。
const (
	resultSuccess = "success"
	resultError   = "error"
	resultRevoked = "revoked"
)

// TokenSource はリフレッシュトークンから新しいトークンを取得するインターフェース。
type TokenSource interface {
	Refresh(ctx context.Context, integ *model.CalendarIntegration) (*oauth2.Token, error)
}

// OAuthTokenSource はGoogleのトークンエンドポイントでリフレッシュする実装。
type OAuthTokenSource struct {
	Config *oauth2.Config
}

// Refresh はcalendar.Refreshでトークンを更新する。
func (s *OAuthTokenSource) Refresh(ctx context.Context, integ *model.CalendarIntegration) (*oauth2.Token, error) {
	return calendar.Refresh(ctx, s.Config, integ)
}

// IntegrationStore はリフレッシュ結果を保存するリポジトリのサブセット。
type IntegrationStore interface {
	UpdateToken(ctx context.Context, userID, accessToken, refreshToken, tokenType string, expiresAt time.Time) error
	UpdateRefreshState(ctx context.Context, integ *model.CalendarIntegration) error
}

// Refresher は1件の連携のトークンを更新し、結果に応じて連携状態を更新する。
type Refresher struct {
	tokens  TokenSource
	store   IntegrationStore
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewRefresher はRefresherを生成する。mcがnilの場合はメトリクスを記録しない。
func NewRefresher(tokens TokenSource, store IntegrationStore, logger *slog.Logger, mc metrics.MetricsCollector) *Refresher {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Refresher{
		tokens:  tokens,
		store:   store,
		logger:  logger,
		metrics: mc,
		now:     time.Now,
	}
}

// Refresh はトークンを更新する。
// invalid_grantの場合はrevokedにし、それ以外の失敗は指数バックオフで再試行を遅らせる。
// 戻り値のエラーは状態の保存に失敗した場合のみ返す。
func (r *Refresher) Refresh(ctx context.Context, integ *model.CalendarIntegration) error {
	tok, err := r.tokens.Refresh(ctx, integ)
	if err != nil {
		return r.handleFailure(ctx, integ, err)
	}

	if err := r.store.UpdateToken(ctx, integ.UserID, tok.AccessToken, tok.RefreshToken, tok.TokenType, tok.Expiry); err != nil {
		r.metrics.RecordTokenRefresh(resultError)
		return fmt.Errorf("トークンの保存に失敗: %w", err)
	}

	ApplySuccess(integ, r.now())
	if err := r.store.UpdateRefreshState(ctx, integ); err != nil {
		r.metrics.RecordTokenRefresh(resultError)
		return fmt.Errorf("連携状態の保存に失敗: %w", err)
	}

	r.metrics.RecordTokenRefresh(resultSuccess)
	r.logger.Debug("トークンを更新しました",
		slog.String("user_id", integ.UserID),
		slog.Time("expires_at", tok.Expiry),
	)
	return nil
}

func (r *Refresher) handleFailure(ctx context.Context, integ *model.CalendarIntegration, cause error) error {
	now := r.now()
	if calendar.IsRevoked(cause) {
		ApplyRevoked(integ, cause.Error(), now)
		r.metrics.RecordTokenRefresh(resultRevoked)
		r.logger.Warn("リフレッシュトークンが失効しています。再連携が必要です",
			slog.String("user_id", integ.UserID),
			slog.String("error", cause.Error()),
		)
	} else {
		ApplyBackoff(integ, cause.Error(), now)
		r.metrics.RecordTokenRefresh(resultError)
		r.logger.Error("トークンの更新に失敗しました",
			slog.String("user_id", integ.UserID),
			slog.Int("consecutive_errors", integ.ConsecutiveErrors),
			slog.Time("next_refresh_at", *integ.NextRefreshAt),
			slog.String("error", cause.Error()),
		)
	}

	if err := r.store.UpdateRefreshState(ctx, integ); err != nil {
		return fmt.Errorf("連携状態の保存に失敗: %w", err)
	}
	return nil
}
