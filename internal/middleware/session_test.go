package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/slotbook/internal/model"
)

// --- モック定義 ---

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// --- テスト ---

func TestSessionMiddleware(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			switch id {
			case "valid":
				return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
			case "broken":
				return nil, errors.New("db down")
			default:
				// 期限切れはリポジトリがnilを返す
				return nil, nil
			}
		},
	}

	tests := []struct {
		name       string
		cookie     *http.Cookie
		wantStatus int
		wantUserID string
	}{
		{"有効なセッション", &http.Cookie{Name: SessionCookieName, Value: "valid"}, http.StatusOK, "user-1"},
		{"Cookieなし", nil, http.StatusUnauthorized, ""},
		{"空のCookie", &http.Cookie{Name: SessionCookieName, Value: ""}, http.StatusUnauthorized, ""},
		{"期限切れ", &http.Cookie{Name: SessionCookieName, Value: "expired"}, http.StatusUnauthorized, ""},
		{"リポジトリエラー", &http.Cookie{Name: SessionCookieName, Value: "broken"}, http.StatusUnauthorized, ""},
		{"別名のCookie", &http.Cookie{Name: "sid", Value: "valid"}, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := NewSessionMiddleware(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, err := UserIDFromContext(r.Context())
				if err != nil {
					t.Errorf("UserIDFromContext() error = %v", err)
				}
				got = id
			}))

			req := httptest.NewRequest(http.MethodPut, "/api/schedule", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got != tt.wantUserID {
				t.Errorf("userID = %q, want %q", got, tt.wantUserID)
			}
			if tt.wantStatus != http.StatusUnauthorized {
				return
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("401レスポンスのデコードに失敗: %v", err)
			}
			if body.Code != model.ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); !errors.Is(err, ErrNoUserID) {
		t.Errorf("err = %v, want ErrNoUserID", err)
	}
	if _, err := UserIDFromContext(ContextWithUserID(context.Background(), "")); !errors.Is(err, ErrNoUserID) {
		t.Errorf("空のユーザーIDは未認証扱い: err = %v", err)
	}
	got, err := UserIDFromContext(ContextWithUserID(context.Background(), "user-9"))
	if err != nil || got != "user-9" {
		t.Errorf("UserIDFromContext() = %q, %v", got, err)
	}
}

func TestOptionalSessionMiddleware(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid" {
				return &model.Session{ID: id, UserID: "user-1"}, nil
			}
			return nil, nil
		},
	}

	tests := []struct {
		name       string
		cookie     string
		wantUserID string
	}{
		{"セッションあり", "valid", "user-1"},
		{"セッション切れ", "expired", ""},
		{"Cookieなし", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			called := false
			handler := NewOptionalSessionMiddleware(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				got, _ = UserIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Fatal("handler should be called")
			}
			if got != tt.wantUserID {
				t.Errorf("userID = %q, want %q", got, tt.wantUserID)
			}
		})
	}
}
