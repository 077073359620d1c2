package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/slotbook/internal/availability"
	"github.com/hitoshi/slotbook/internal/metrics"
	"github.com/hitoshi/slotbook/internal/model"
	"github.com/hitoshi/slotbook/internal/repository"
	"github.com/hitoshi/slotbook/internal/security"
)

// 予定取得元のラベル
const (
	SourceGoogle = "google"
	SourceICS    = "ics"
)

// GoogleSource はGoogle連携から予定を取得するインターフェース。
type GoogleSource interface {
	Busy(ctx context.Context, integ *model.CalendarIntegration, from, to time.Time) ([]availability.BusyInterval, error)
}

// FeedSource はICSフィードから予定を取得するインターフェース。
type FeedSource interface {
	Busy(ctx context.Context, feedURL string, loc *time.Location, from, to time.Time) ([]availability.BusyInterval, error)
}

// Status はカレンダー連携の状態。
type Status struct {
	GoogleConnected bool
	GoogleStatus    model.IntegrationStatus
	ExpiresAt       *time.Time
	ErrorMessage    string
	ICSURL          string
}

// Service はカレンダー連携のサービス層。
type Service struct {
	repo    repository.CalendarIntegrationRepository
	oauth   *oauth2.Config
	google  GoogleSource
	ics     FeedSource
	guard   security.SSRFGuardService
	metrics metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.CalendarIntegrationRepository,
	oauth *oauth2.Config,
	google GoogleSource,
	ics FeedSource,
	guard security.SSRFGuardService,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:    repo,
		oauth:   oauth,
		google:  google,
		ics:     ics,
		guard:   guard,
		metrics: mc,
	}
}

// BusyIntervals はユーザーの連携済みカレンダーから[from, to)の予定をまとめて返す。
// 未連携の場合は空を返し、スケジュールのみで予約枠が計算される。
// 取得に失敗した場合はCALENDAR_FETCH_FAILEDを返す（リトライはしない）。
func (s *Service) BusyIntervals(ctx context.Context, userID string, loc *time.Location, from, to time.Time) ([]availability.BusyInterval, error) {
	integ, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カレンダー連携の取得に失敗しました: %w", err)
	}

	busy := make([]availability.BusyInterval, 0)
	if integ == nil {
		return busy, nil
	}

	if integ.HasGoogle() && integ.Status != model.IntegrationStatusRevoked && s.google != nil {
		got, err := s.google.Busy(ctx, integ, from, to)
		if err != nil {
			s.metrics.RecordBusyFetch(SourceGoogle, metrics.ResultError)
			slog.Warn("Googleカレンダーの予定取得に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewCalendarFetchFailedError(SourceGoogle)
		}
		s.metrics.RecordBusyFetch(SourceGoogle, metrics.ResultOK)
		busy = append(busy, got...)
	}

	if integ.ICSURL != "" && s.ics != nil {
		got, err := s.ics.Busy(ctx, integ.ICSURL, loc, from, to)
		if err != nil {
			s.metrics.RecordBusyFetch(SourceICS, metrics.ResultError)
			slog.Warn("ICSフィードの予定取得に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewCalendarFetchFailedError(SourceICS)
		}
		s.metrics.RecordBusyFetch(SourceICS, metrics.ResultOK)
		busy = append(busy, got...)
	}

	return busy, nil
}

// Status はカレンダー連携の状態を返す。
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	integ, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カレンダー連携の取得に失敗しました: %w", err)
	}
	if integ == nil {
		return &Status{}, nil
	}

	st := &Status{
		GoogleConnected: integ.HasGoogle(),
		ErrorMessage:    integ.ErrorMessage,
		ICSURL:          integ.ICSURL,
	}
	if st.GoogleConnected {
		st.GoogleStatus = integ.Status
		exp := integ.ExpiresAt
		st.ExpiresAt = &exp
	}
	return st, nil
}

// ConnectURL はGoogleカレンダー連携の同意画面URLを返す。
// リフレッシュトークンを確実に受け取るため、毎回同意を求める。
func (s *Service) ConnectURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback は認可コードをトークンに交換し、連携情報を保存する。
func (s *Service) HandleCallback(ctx context.Context, userID, code string) error {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}

	integ := &model.CalendarIntegration{
		UserID:       userID,
		Provider:     model.ProviderGoogle,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		Scopes:       scopesFromToken(tok),
	}
	if err := s.repo.UpsertGoogle(ctx, integ); err != nil {
		return fmt.Errorf("カレンダー連携の保存に失敗しました: %w", err)
	}

	slog.Info("Googleカレンダーを連携しました", slog.String("user_id", userID))
	return nil
}

// Disconnect はカレンダー連携を解除する。Google連携とICSフィードの両方を削除する。
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("カレンダー連携の削除に失敗しました: %w", err)
	}
	slog.Info("カレンダー連携を解除しました", slog.String("user_id", userID))
	return nil
}

// SetICSURL はICSフィードURLを検証して保存し、正規化後のURLを返す。
// 空文字列はICSフィードの解除として扱う。
func (s *Service) SetICSURL(ctx context.Context, userID, rawURL string) (string, error) {
	normalized := ""
	if rawURL != "" {
		u, err := s.guard.NormalizeICSURL(rawURL)
		if err != nil {
			return "", model.NewInvalidICSURLError(err.Error())
		}
		normalized = u
	}

	if err := s.repo.SetICSURL(ctx, userID, normalized); err != nil {
		return "", fmt.Errorf("ICSフィードURLの保存に失敗しました: %w", err)
	}
	return normalized, nil
}
