package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const providerGoogle = "google"

// ErrUnverifiedEmail はGoogleがメールアドレスを未確認と返した場合のエラー。
var ErrUnverifiedEmail = errors.New("auth: google account email is not verified")

// GoogleOAuthConfig はGoogleログインの設定。
// AuthURL, TokenURL, APIEndpointはテストでスタブサーバーに向けるためのもの。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	APIEndpoint string
}

// GoogleOAuthProvider はGoogleアカウントでのログインを扱う。
// カレンダー連携とは別の同意画面で、スコープはopenid/email/profileのみ。
type GoogleOAuthProvider struct {
	oauth       *oauth2.Config
	apiEndpoint string
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := google.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}

	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", googleoauth2.UserinfoEmailScope, googleoauth2.UserinfoProfileScope},
		},
		apiEndpoint: config.APIEndpoint,
	}
}

// GetLoginURL は同意画面のURLを返す。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// ExchangeCode は認可コードをトークンに交換し、userinfo APIでアカウントを特定する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(p.oauth.Client(ctx, token))}
	if p.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.apiEndpoint))
	}
	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if info.Id == "" {
		return nil, errors.New("failed to fetch user info: empty account id")
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}

	return &OAuthUserInfo{
		Provider:       providerGoogle,
		ProviderUserID: info.Id,
		Email:          info.Email,
		Name:           info.Name,
	}, nil
}

var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
