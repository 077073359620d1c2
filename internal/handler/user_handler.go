package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/slotbook/internal/middleware"
	"github.com/hitoshi/slotbook/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// UpdateTimezone はユーザーのタイムゾーンを更新する。
	UpdateTimezone(ctx context.Context, userID, tz string) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// 連携情報、セッションを削除し、ユーザー削除でスケジュールとイベント種別もCASCADE削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  CookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, cookie CookieConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
	}
}

type updateUserRequest struct {
	Timezone *string `json:"timezone"`
}

// UpdateMe はログインユーザーの設定を更新する。現在はタイムゾーンのみ。
// PATCH /api/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Timezone == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidTimezoneError(""))
		return
	}

	user, err := h.service.UpdateTimezone(r.Context(), userID, strings.TrimSpace(*req.Timezone))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Withdraw はユーザーの退会処理を実行し、セッションCookieを削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	setSessionCookie(w, middleware.SessionCookieName, "", -1, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}
