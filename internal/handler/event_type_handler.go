package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/slotbook/internal/eventtype"
	"github.com/hitoshi/slotbook/internal/model"
)

// EventTypeServiceInterface はイベント種別ハンドラーが必要とするサービスインターフェース。
type EventTypeServiceInterface interface {
	Create(ctx context.Context, ownerID string, in eventtype.CreateInput) (*model.EventType, error)
	List(ctx context.Context, ownerID string) ([]*model.EventType, error)
	Get(ctx context.Context, ownerID, id string) (*model.EventType, error)
	Update(ctx context.Context, ownerID, id string, in eventtype.UpdateInput) (*model.EventType, error)
	Deactivate(ctx context.Context, ownerID, id string) error
	FindPublic(ctx context.Context, ownerID, slug string) (*model.EventType, error)
}

// EventTypeHandler はイベント種別管理のHTTPハンドラー。
type EventTypeHandler struct {
	service EventTypeServiceInterface
}

// NewEventTypeHandler はEventTypeHandlerを生成する。
func NewEventTypeHandler(service EventTypeServiceInterface) *EventTypeHandler {
	return &EventTypeHandler{service: service}
}

type createEventTypeRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	Kind            string `json:"kind"`
	Capacity        *int   `json:"capacity"`
	LocationType    string `json:"location_type"`
	LocationDetails string `json:"location_details"`
}

type updateEventTypeRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	DurationMinutes *int    `json:"duration_minutes"`
	Capacity        *int    `json:"capacity"`
	LocationType    *string `json:"location_type"`
	LocationDetails *string `json:"location_details"`
	IsActive        *bool   `json:"is_active"`
}

// eventTypeResponse はオーナー向けのイベント種別レスポンス。
type eventTypeResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	Kind            string     `json:"kind"`
	Capacity        *int       `json:"capacity,omitempty"`
	LocationType    string     `json:"location_type"`
	LocationDetails string     `json:"location_details,omitempty"`
	IsActive        bool       `json:"is_active"`
	DeactivatedAt   *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// publicEventTypeResponse は予約者向けのイベント種別レスポンス。管理用の項目は含めない。
type publicEventTypeResponse struct {
	OwnerID         string `json:"owner_id"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	Kind            string `json:"kind"`
	Capacity        *int   `json:"capacity,omitempty"`
	LocationType    string `json:"location_type"`
}

func toEventTypeResponse(et *model.EventType) eventTypeResponse {
	return eventTypeResponse{
		ID:              et.ID,
		Name:            et.Name,
		Slug:            et.Slug,
		Description:     et.Description,
		DurationMinutes: et.DurationMinutes,
		Kind:            string(et.Kind),
		Capacity:        et.Capacity,
		LocationType:    string(et.LocationType),
		LocationDetails: et.LocationDetails,
		IsActive:        et.IsActive,
		DeactivatedAt:   et.DeactivatedAt,
		CreatedAt:       et.CreatedAt,
		UpdatedAt:       et.UpdatedAt,
	}
}

func toPublicEventTypeResponse(et *model.EventType) publicEventTypeResponse {
	return publicEventTypeResponse{
		OwnerID:         et.OwnerID,
		Name:            et.Name,
		Slug:            et.Slug,
		Description:     et.Description,
		DurationMinutes: et.DurationMinutes,
		Kind:            string(et.Kind),
		Capacity:        et.Capacity,
		LocationType:    string(et.LocationType),
	}
}

// List はログインユーザーのイベント種別一覧を返す。
// GET /api/event-types
func (h *EventTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	ets, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]eventTypeResponse, len(ets))
	for i, et := range ets {
		resp[i] = toEventTypeResponse(et)
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_types": resp})
}

// Create はイベント種別を作成する。
// POST /api/event-types
func (h *EventTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createEventTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	et, err := h.service.Create(r.Context(), userID, eventtype.CreateInput{
		Name:            req.Name,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Kind:            model.EventKind(req.Kind),
		Capacity:        req.Capacity,
		LocationType:    model.LocationType(req.LocationType),
		LocationDetails: req.LocationDetails,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventTypeResponse(et))
}

// Get はイベント種別の詳細を返す。
// GET /api/event-types/{id}
func (h *EventTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	et, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEventTypeResponse(et))
}

// Update はイベント種別を部分更新する。slugは変更できない。
// PATCH /api/event-types/{id}
func (h *EventTypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateEventTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := eventtype.UpdateInput{
		Name:            req.Name,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		Capacity:        req.Capacity,
		LocationDetails: req.LocationDetails,
		IsActive:        req.IsActive,
	}
	if req.LocationType != nil {
		lt := model.LocationType(*req.LocationType)
		in.LocationType = &lt
	}

	et, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEventTypeResponse(et))
}

// Deactivate はイベント種別を無効化する（論理削除）。
// DELETE /api/event-types/{id}
func (h *EventTypeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Deactivate(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PublicGet は公開中のイベント種別を返す。認証不要。
// GET /public/users/{ownerID}/event-types/{slug}
func (h *EventTypeHandler) PublicGet(w http.ResponseWriter, r *http.Request) {
	et, err := h.service.FindPublic(r.Context(), chi.URLParam(r, "ownerID"), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPublicEventTypeResponse(et))
}
