package model

import "time"

// EventKind は予約可能なミーティングの種類。
type EventKind string

const (
	// EventKindOneOnOne は1対1のミーティング。
	EventKindOneOnOne EventKind = "one_on_one"
	// EventKindGroup は定員付きのグループミーティング。
	EventKindGroup EventKind = "group"
)

// LocationType はミーティングの開催場所の種類。
type LocationType string

const (
	LocationGoogleMeet LocationType = "google_meet"
	LocationInPerson   LocationType = "in_person"
	LocationCustom     LocationType = "custom"
)

// DefaultGroupCapacity はグループミーティングの定員が未指定の場合の値。
const DefaultGroupCapacity = 10

// EventType はユーザーが公開する予約可能なミーティング種別を表す。
// 削除は論理削除（IsActive=false）で行う。
type EventType struct {
	ID              string
	OwnerID         string
	Name            string
	Slug            string
	Description     string // サニタイズ済み
	DurationMinutes int
	Kind            EventKind
	Capacity        *int // groupのみ
	LocationType    LocationType
	LocationDetails string
	IsActive        bool
	DeactivatedAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
