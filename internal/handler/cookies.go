package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// stateCookieMaxAge はOAuthのstate Cookieの有効期間（秒）。
const stateCookieMaxAge = 600

// CookieConfig はハンドラーが発行するCookieの共通設定。
type CookieConfig struct {
	Domain string
	Secure bool
}

// setStateCookie はOAuthフローのstateを生成してCookieに保存する。
func setStateCookie(w http.ResponseWriter, name string, cfg CookieConfig) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

// consumeStateCookie はクエリのstateとCookieを照合し、Cookieを削除する。
func consumeStateCookie(w http.ResponseWriter, r *http.Request, name string, cfg CookieConfig) bool {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(name)

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	if err != nil || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}

// setSessionCookie はHTTP OnlyのセッションCookieを設定する。maxAgeが負の場合は削除する。
func setSessionCookie(w http.ResponseWriter, name, value string, maxAge int, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
