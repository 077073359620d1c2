// Package auth はGoogleログインとセッション管理を提供する。
// 初回ログイン時にユーザー、IdP紐付け、初期の週間スケジュールをまとめて作成する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/slotbook/internal/model"
	"github.com/hitoshi/slotbook/internal/repository"
)

var (
	// ErrNoSession はセッションIDが指定されていない場合に返される。
	ErrNoSession = errors.New("auth: session id is required")
	// ErrSessionNotFound はセッションが存在しないか期限切れの場合に返される。
	ErrSessionNotFound = errors.New("auth: session not found or expired")
	// ErrUserNotFound はセッションに紐付くユーザーが存在しない場合に返される。
	ErrUserNotFound = errors.New("auth: user not found")
)

// sessionIDBytes はセッションIDの乱数バイト数。
const sessionIDBytes = 32

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   int    // セッション有効期間（秒）
	DefaultTimezone string // 新規ユーザーに設定するIANAタイムゾーン名
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	if config.DefaultTimezone == "" {
		config.DefaultTimezone = "UTC"
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードを交換してユーザーを特定し、新しいセッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	userID, err := s.resolveUser(ctx, info)
	if err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// resolveUser はIdPアカウントに紐付くユーザーIDを返す。
// 既存ユーザーはプロフィールの変更を反映し、未登録の場合は新規作成する。
func (s *Service) resolveUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return s.provisionUser(ctx, info)
	}

	s.syncProfile(ctx, identity.UserID, info)
	slog.Info("existing user logged in",
		slog.String("user_id", identity.UserID),
		slog.String("provider", info.Provider),
	)
	return identity.UserID, nil
}

// provisionUser はユーザー、identity、デフォルトの週間スケジュールを1トランザクションで作成する。
func (s *Service) provisionUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	now := s.now()
	u := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		Timezone:  s.config.DefaultTimezone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         u.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, u, identity, model.DefaultWeeklySchedule()); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", u.ID),
		slog.String("provider", info.Provider),
		slog.String("timezone", u.Timezone),
	)
	return u.ID, nil
}

// syncProfile はIdP側で変更されたメールアドレスと表示名を反映する。
// 失敗してもログインは継続する。
func (s *Service) syncProfile(ctx context.Context, userID string, info *OAuthUserInfo) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil || u == nil || u.SameProfile(info.Email, info.Name) {
		return
	}
	if err := s.userRepo.UpdateProfile(ctx, userID, info.Email, info.Name); err != nil {
		slog.Warn("failed to sync user profile",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}

	u, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        hex.EncodeToString(b),
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}
