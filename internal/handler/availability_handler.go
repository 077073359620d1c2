package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/slotbook/internal/availability"
	"github.com/hitoshi/slotbook/internal/middleware"
	"github.com/hitoshi/slotbook/internal/model"
)

// AvailabilityServiceInterface は予約可能枠ハンドラーが必要とするサービスインターフェース。
type AvailabilityServiceInterface interface {
	Slots(ctx context.Context, q availability.Query) (*availability.Result, error)
	EventTypeSlots(ctx context.Context, ownerID, slug, date string) (*availability.Result, error)
}

// AvailabilityHandler は予約可能枠のHTTPハンドラー。
type AvailabilityHandler struct {
	service AvailabilityServiceInterface
}

// NewAvailabilityHandler はAvailabilityHandlerを生成する。
func NewAvailabilityHandler(service AvailabilityServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// slotsRequest は公開の予約可能枠問い合わせのボディ。
type slotsRequest struct {
	Date     string `json:"date"`
	Duration int    `json:"duration"`
	OwnerUID string `json:"owner_uid"`
}

type slotsResponse struct {
	OwnerID         string              `json:"owner_id"`
	Date            string              `json:"date"`
	Timezone        string              `json:"timezone"`
	DurationMinutes int                 `json:"duration_minutes"`
	Slots           []availability.Slot `json:"slots"`
}

func toSlotsResponse(res *availability.Result) slotsResponse {
	slots := res.Slots
	if slots == nil {
		slots = []availability.Slot{}
	}
	return slotsResponse{
		OwnerID:         res.OwnerID,
		Date:            res.Date,
		Timezone:        res.Timezone,
		DurationMinutes: res.DurationMinutes,
		Slots:           slots,
	}
}

// MySlots はログインユーザー自身の予約可能枠を返す。
// GET /api/availability/slots?date=YYYY-MM-DD&duration=30
func (h *AvailabilityHandler) MySlots(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	duration, ok := parseDurationParam(w, r.URL.Query().Get("duration"))
	if !ok {
		return
	}

	res, err := h.service.Slots(r.Context(), availability.Query{
		OwnerID:         userID,
		Date:            r.URL.Query().Get("date"),
		DurationMinutes: duration,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotsResponse(res))
}

// PublicSlots は主催者の予約可能枠を返す。認証不要。
// owner_uidを省略した場合はログイン中のユーザー自身を対象にする。
// POST /public/slots
func (h *AvailabilityHandler) PublicSlots(w http.ResponseWriter, r *http.Request) {
	var req slotsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ownerID := strings.TrimSpace(req.OwnerUID)
	if ownerID == "" {
		ownerID, _ = middleware.UserIDFromContext(r.Context())
	}

	res, err := h.service.Slots(r.Context(), availability.Query{
		OwnerID:         ownerID,
		Date:            strings.TrimSpace(req.Date),
		DurationMinutes: req.Duration,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotsResponse(res))
}

// EventTypeSlots は公開中のイベント種別の所要時間で予約可能枠を返す。認証不要。
// GET /public/users/{ownerID}/event-types/{slug}/slots?date=YYYY-MM-DD
func (h *AvailabilityHandler) EventTypeSlots(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.EventTypeSlots(r.Context(),
		chi.URLParam(r, "ownerID"),
		chi.URLParam(r, "slug"),
		r.URL.Query().Get("date"),
	)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotsResponse(res))
}

// parseDurationParam はdurationクエリを解釈する。未指定は0（デフォルト値）として扱う。
func parseDurationParam(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDurationError(0))
		return 0, false
	}
	return n, true
}
