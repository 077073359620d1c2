// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Timezoneは予約可能枠の計算に使うIANAタイムゾーン名（例: "America/Bogota"）。
type User struct {
	ID        string
	Email     string
	Name      string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdP（現在はGoogleのみ）のアカウントとユーザーの紐付けを表す。
// 同じIdPアカウントは1人のユーザーにしか紐付かない。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// SameProfile はIdPから取得したメールアドレスと表示名が保存済みの値と一致するかを返す。
func (u *User) SameProfile(email, name string) bool {
	return u.Email == email && u.Name == name
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はnow時点でセッションが期限切れかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
