// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/slotbook/internal/availability"
	"github.com/hitoshi/slotbook/internal/model"
	"github.com/hitoshi/slotbook/internal/repository"
)

// IntegrationDeleter はカレンダー連携の削除インターフェース。
type IntegrationDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Service はユーザー管理のサービス層。
// タイムゾーン変更と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	integDeleter IntegrationDeleter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	integDeleter IntegrationDeleter,
) *Service {
	return &Service{
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		integDeleter: integDeleter,
	}
}

// UpdateTimezone はユーザーのタイムゾーンを変更する。
// IANAタイムゾーン名として解決できない値はINVALID_TIMEZONEを返す。
func (s *Service) UpdateTimezone(ctx context.Context, userID, tz string) (*model.User, error) {
	if _, err := availability.LoadLocation(tz); err != nil {
		if errors.Is(err, availability.ErrUnknownTimezone) {
			return nil, model.NewInvalidTimezoneError(tz)
		}
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if err := s.userRepo.UpdateTimezone(ctx, userID, tz); err != nil {
		return nil, fmt.Errorf("タイムゾーンの更新に失敗しました: %w", err)
	}
	user.Timezone = tz

	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: calendar_integrations → sessions → user（+ CASCADE: identities, work_schedules, event_types）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. カレンダー連携（トークン）を先に削除する
	if s.integDeleter != nil {
		if err := s.integDeleter.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("カレンダー連携の削除に失敗しました: %w", err)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
