package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/slotbook/internal/calendar"
	"github.com/hitoshi/slotbook/internal/middleware"
	"github.com/hitoshi/slotbook/internal/model"
)

const calendarStateCookie = "calendar_oauth_state"

// CalendarServiceInterface はカレンダー連携ハンドラーが必要とするサービスインターフェース。
type CalendarServiceInterface interface {
	Status(ctx context.Context, userID string) (*calendar.Status, error)
	ConnectURL(state string) string
	HandleCallback(ctx context.Context, userID, code string) error
	Disconnect(ctx context.Context, userID string) error
	SetICSURL(ctx context.Context, userID, rawURL string) (string, error)
}

// CalendarHandlerConfig はカレンダー連携ハンドラーの設定。
type CalendarHandlerConfig struct {
	// BaseURL は連携完了後にリダイレクトするフロントエンドのURL。
	BaseURL string
	Cookie  CookieConfig
}

// CalendarHandler は外部カレンダー連携のHTTPハンドラー。
type CalendarHandler struct {
	service CalendarServiceInterface
	config  CalendarHandlerConfig
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(service CalendarServiceInterface, config CalendarHandlerConfig) *CalendarHandler {
	return &CalendarHandler{
		service: service,
		config:  config,
	}
}

type calendarStatusResponse struct {
	Google googleStatusResponse `json:"google"`
	ICSURL string               `json:"ics_url"`
}

type googleStatusResponse struct {
	Connected    bool       `json:"connected"`
	Status       string     `json:"status,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type setICSURLRequest struct {
	URL string `json:"url"`
}

// Status はカレンダー連携の状態を返す。
// GET /api/calendar
func (h *CalendarHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	st, err := h.service.Status(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, calendarStatusResponse{
		Google: googleStatusResponse{
			Connected:    st.GoogleConnected,
			Status:       string(st.GoogleStatus),
			ExpiresAt:    st.ExpiresAt,
			ErrorMessage: st.ErrorMessage,
		},
		ICSURL: st.ICSURL,
	})
}

// Connect はGoogleカレンダーの同意画面URLを返す。
// フロントエンドはこのURLへ遷移させる。stateはCookieに保存して照合する。
// GET /api/calendar/connect
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	state, err := setStateCookie(w, calendarStateCookie, h.config.Cookie)
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": h.service.ConnectURL(state)})
}

// Callback はGoogleからのリダイレクトを受けてトークンを保存し、フロントエンドに戻す。
// GET /calendar/google/callback?code=xxx&state=yyy
func (h *CalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if !consumeStateCookie(w, r, calendarStateCookie, h.config.Cookie) {
		slog.Warn("oauth state mismatch", slog.String("flow", "calendar"), slog.String("user_id", userID))
		h.redirectResult(w, r, "error", "invalid_state")
		return
	}

	// ユーザーが同意を拒否した場合
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.redirectResult(w, r, "error", errParam)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectResult(w, r, "error", "missing_code")
		return
	}

	if err := h.service.HandleCallback(r.Context(), userID, code); err != nil {
		slog.Error("calendar callback failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		h.redirectResult(w, r, "error", "exchange_failed")
		return
	}

	h.redirectResult(w, r, "connected", model.ProviderGoogle)
}

// SetICSURL はICSフィードURLを設定する。空文字列で解除する。
// PUT /api/calendar/ics
func (h *CalendarHandler) SetICSURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req setICSURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	normalized, err := h.service.SetICSURL(r.Context(), userID, strings.TrimSpace(req.URL))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"ics_url": normalized})
}

// Disconnect はカレンダー連携を解除する。
// DELETE /api/calendar
func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Disconnect(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// redirectResult は連携結果をクエリに付けてフロントエンドへリダイレクトする。
func (h *CalendarHandler) redirectResult(w http.ResponseWriter, r *http.Request, key, value string) {
	target := strings.TrimRight(h.config.BaseURL, "/") + "/settings/calendar?" + url.Values{key: {value}}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
