package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/slotbook/internal/middleware"
	"github.com/hitoshi/slotbook/internal/model"
)

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
// keyとvalueを交互に渡す。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// jsonBody はリクエストボディ用のReaderを返す。
func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}

// --- mapAPIErrorToHTTPStatus ---

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *model.APIError
		want int
	}{
		{"日付不正", model.NewInvalidDateError("2024-02-30"), http.StatusBadRequest},
		{"所要時間不正", model.NewInvalidDurationError(0), http.StatusBadRequest},
		{"時刻形式不正", model.NewInvalidTimeFormatError("9am"), http.StatusBadRequest},
		{"スケジュール不正", model.NewInvalidScheduleError(model.Monday, "end before start"), http.StatusBadRequest},
		{"タイムゾーン不正", model.NewInvalidTimezoneError("Mars/Olympus"), http.StatusBadRequest},
		{"イベント種別不正", model.NewInvalidEventTypeError("name is required"), http.StatusBadRequest},
		{"ICS URL不正", model.NewInvalidICSURLError("https only"), http.StatusBadRequest},
		{"オーナー未指定", model.NewOwnerRequiredError(), http.StatusBadRequest},
		{"リクエスト不正", model.NewInvalidRequestError(), http.StatusBadRequest},
		{"未認証", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"CSRF", model.NewCSRFFailedError(), http.StatusForbidden},
		{"ユーザー不在", model.NewUserNotFoundError(), http.StatusNotFound},
		{"イベント種別不在", model.NewEventTypeNotFoundError("et-1"), http.StatusNotFound},
		{"slug重複", model.NewDuplicateEventTypeError("intro"), http.StatusConflict},
		{"カレンダー未連携", model.NewCalendarNotConnectedError(), http.StatusConflict},
		{"レート制限", model.NewRateLimitedError(), http.StatusTooManyRequests},
		{"カレンダー取得失敗", model.NewCalendarFetchFailedError("google"), http.StatusBadGateway},
		{"内部エラー", model.NewInternalError(), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}

// --- handleServiceError ---

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, fmt.Errorf("compute slots: %w", model.NewCalendarFetchFailedError("ics")))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeCalendarFetchFailed {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeCalendarFetchFailed)
	}
}

func TestHandleServiceError_PlainErrorHidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, errors.New("pq: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "pq:") {
		t.Errorf("内部エラーの詳細がレスポンスに含まれている: %s", w.Body.String())
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeInternal)
	}
}

// --- decodeJSON ---

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantCode int
	}{
		{"正常", `{"timezone":"UTC"}`, true, http.StatusOK},
		{"空ボディは許容", ``, true, http.StatusOK},
		{"壊れたJSON", `{"timezone":`, false, http.StatusBadRequest},
		{"型不一致", `{"timezone":1}`, false, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", jsonBody(tt.body))
			w := httptest.NewRecorder()

			var v struct {
				Timezone string `json:"timezone"`
			}
			ok := decodeJSON(w, req, &v)
			if ok != tt.wantOK {
				t.Fatalf("decodeJSON() = %v, want %v", ok, tt.wantOK)
			}
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	large := `{"timezone":"` + strings.Repeat("a", maxRequestBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", jsonBody(large))
	w := httptest.NewRecorder()

	var v map[string]string
	if decodeJSON(w, req, &v) {
		t.Fatal("上限を超えるボディは拒否されるべき")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
