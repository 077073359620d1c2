// Package calendar は外部カレンダー（Google Calendar、ICSフィード）との連携を提供する。
// 予約枠の計算に使う予定（busy）の取得と、Google連携のトークン管理を担う。
package calendar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/hitoshi/slotbook/internal/model"
)

// expiryLeeway は有効期限のこの時間前からトークンを期限切れとみなす。
const expiryLeeway = 60 * time.Second

// OAuthConfig はカレンダー連携用のGoogle OAuth設定。
// クライアントはログインと共用し、スコープとコールバック先のみ分ける。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// NewOAuthConfig はカレンダー読み取り用のoauth2.Configを生成する。
func NewOAuthConfig(cfg OAuthConfig) *oauth2.Config {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       []string{gcal.CalendarReadonlyScope},
	}
}

// TokenStore は更新後のトークンを保存するインターフェース。
type TokenStore interface {
	UpdateToken(ctx context.Context, userID, accessToken, refreshToken, tokenType string, expiresAt time.Time) error
}

// tokenFromIntegration は連携情報をoauth2.Tokenに変換する。
func tokenFromIntegration(integ *model.CalendarIntegration) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  integ.AccessToken,
		RefreshToken: integ.RefreshToken,
		TokenType:    integ.TokenType,
		Expiry:       integ.ExpiresAt,
	}
}

// scopesFromToken はトークンレスポンスのscope（スペース区切り）を分割する。
func scopesFromToken(tok *oauth2.Token) []string {
	raw, _ := tok.Extra("scope").(string)
	if raw == "" {
		return []string{}
	}
	return strings.Fields(raw)
}

// persistingTokenSource は更新されたトークンをTokenStoreに書き戻すTokenSource。
type persistingTokenSource struct {
	ctx    context.Context
	userID string
	base   oauth2.TokenSource
	store  TokenStore

	mu   sync.Mutex
	last string
}

// NewTokenSource は連携情報からTokenSourceを生成する。
// 有効期限の60秒前を過ぎたトークンはリフレッシュし、新しいトークンを保存する。
func NewTokenSource(ctx context.Context, cfg *oauth2.Config, store TokenStore, integ *model.CalendarIntegration) oauth2.TokenSource {
	current := tokenFromIntegration(integ)
	// アクセストークンを持たないトークンを渡し、内側のソースが必ずリフレッシュするようにする
	refresher := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: integ.RefreshToken})
	return &persistingTokenSource{
		ctx:    ctx,
		userID: integ.UserID,
		base:   oauth2.ReuseTokenSourceWithExpiry(current, refresher, expiryLeeway),
		store:  store,
		last:   current.AccessToken,
	}
}

// Token は有効なトークンを返す。リフレッシュが発生した場合は保存する。
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last || s.store == nil {
		return tok, nil
	}
	if err := s.store.UpdateToken(s.ctx, s.userID, tok.AccessToken, tok.RefreshToken, tok.TokenType, tok.Expiry); err != nil {
		return nil, err
	}
	s.last = tok.AccessToken
	return tok, nil
}

// Refresh はリフレッシュトークンを使って強制的に新しいトークンを取得する。
// 有効期限に関わらず更新する点がNewTokenSourceと異なる。
func Refresh(ctx context.Context, cfg *oauth2.Config, integ *model.CalendarIntegration) (*oauth2.Token, error) {
	if integ.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: integ.RefreshToken}).Token()
}

// ErrNoRefreshToken はリフレッシュトークンを持たない連携をリフレッシュしようとした場合に返される。
var ErrNoRefreshToken = errors.New("calendar: no refresh token")

// IsRevoked はトークンエンドポイントのエラーがリフレッシュトークンの失効を示すかを返す。
// invalid_grant の場合は再連携が必要になる。
func IsRevoked(err error) bool {
	if errors.Is(err, ErrNoRefreshToken) {
		return true
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.ErrorCode == "invalid_grant"
	}
	return false
}
