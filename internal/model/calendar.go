package model

import "time"

// IntegrationStatus は外部カレンダー連携の状態。
type IntegrationStatus string

const (
	// IntegrationStatusActive は正常に連携している状態。
	IntegrationStatusActive IntegrationStatus = "active"
	// IntegrationStatusError はトークン更新が連続で失敗している状態。
	IntegrationStatusError IntegrationStatus = "error"
	// IntegrationStatusRevoked はリフレッシュトークンが無効化され再連携が必要な状態。
	IntegrationStatusRevoked IntegrationStatus = "revoked"
)

// ProviderGoogle はGoogle Calendar連携のプロバイダー名。
const ProviderGoogle = "google"

// CalendarIntegration はユーザーの外部カレンダー連携情報を表す。
// Google連携がない場合でもICSURLのみを持つレコードがありうる。
type CalendarIntegration struct {
	UserID            string
	Provider          string
	AccessToken       string
	RefreshToken      string
	TokenType         string
	ExpiresAt         time.Time
	Scopes            []string
	ICSURL            string
	Status            IntegrationStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextRefreshAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasGoogle はGoogleのトークンを保持しているかを返す。
func (c *CalendarIntegration) HasGoogle() bool {
	return c != nil && c.Provider == ProviderGoogle && c.RefreshToken != ""
}
