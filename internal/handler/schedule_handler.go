package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/slotbook/internal/model"
)

// ScheduleServiceInterface はスケジュールハンドラーが必要とするサービスインターフェース。
type ScheduleServiceInterface interface {
	Get(ctx context.Context, userID string) (model.WeeklySchedule, error)
	Save(ctx context.Context, userID string, weekly model.WeeklySchedule) (model.WeeklySchedule, error)
}

// ScheduleHandler は週間スケジュールのHTTPハンドラー。
type ScheduleHandler struct {
	service ScheduleServiceInterface
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(service ScheduleServiceInterface) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

// scheduleBody は週間スケジュールのリクエスト・レスポンスボディ。
type scheduleBody struct {
	Weekly model.WeeklySchedule `json:"weekly"`
}

// Get はログインユーザーの週間スケジュールを返す。
// GET /api/schedule
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	weekly, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scheduleBody{Weekly: weekly})
}

// Put は週間スケジュールを検証して保存する。7曜日すべてを正規化した結果を返す。
// PUT /api/schedule
func (h *ScheduleHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req scheduleBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Weekly == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	saved, err := h.service.Save(r.Context(), userID, req.Weekly)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scheduleBody{Weekly: saved})
}
