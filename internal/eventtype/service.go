// Package eventtype はイベント種別（予約可能なミーティングの種類）のドメインロジックを提供する。
package eventtype

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/slotbook/internal/model"
	"github.com/hitoshi/slotbook/internal/repository"
	"github.com/hitoshi/slotbook/internal/security"
)

const (
	// MinDuration と MaxDuration は所要時間（分）の許容範囲。
	MinDuration = 5
	MaxDuration = 720
	// durationStep の倍数のみ受け付ける。
	durationStep = 5

	maxNameLength            = 100
	maxDescriptionLength     = 2000
	maxLocationDetailsLength = 500
	maxCapacity              = 500
)

// CreateInput はイベント種別の作成パラメータ。
type CreateInput struct {
	Name            string
	Description     string
	DurationMinutes int
	Kind            model.EventKind
	Capacity        *int
	LocationType    model.LocationType
	LocationDetails string
}

// UpdateInput はイベント種別の部分更新パラメータ。nilのフィールドは変更しない。
type UpdateInput struct {
	Name            *string
	Description     *string
	DurationMinutes *int
	Capacity        *int
	LocationType    *model.LocationType
	LocationDetails *string
	IsActive        *bool
}

// Service はイベント種別のサービス層。
type Service struct {
	repo      repository.EventTypeRepository
	sanitizer security.ContentSanitizerService
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.EventTypeRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create はイベント種別を作成する。
// slugは名前から生成し、同一オーナー内で重複する場合はDUPLICATE_EVENT_TYPEを返す。
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*model.EventType, error) {
	name := strings.TrimSpace(in.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	slug := Slugify(name)
	if slug == "" {
		return nil, model.NewInvalidEventTypeError("名前には英数字を1文字以上含めてください")
	}
	if err := validateDuration(in.DurationMinutes); err != nil {
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = model.EventKindOneOnOne
	}
	capacity, err := resolveCapacity(kind, in.Capacity)
	if err != nil {
		return nil, err
	}

	locType := in.LocationType
	if locType == "" {
		locType = model.LocationGoogleMeet
	}
	if err := validateLocation(locType, in.LocationDetails); err != nil {
		return nil, err
	}

	desc, err := s.sanitizeDescription(in.Description)
	if err != nil {
		return nil, err
	}

	now := s.now()
	et := &model.EventType{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		Name:            name,
		Slug:            slug,
		Description:     desc,
		DurationMinutes: in.DurationMinutes,
		Kind:            kind,
		Capacity:        capacity,
		LocationType:    locType,
		LocationDetails: strings.TrimSpace(in.LocationDetails),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, et); err != nil {
		if errors.Is(err, repository.ErrDuplicateSlug) {
			return nil, model.NewDuplicateEventTypeError(slug)
		}
		return nil, fmt.Errorf("イベント種別の作成に失敗しました: %w", err)
	}

	slog.Info("イベント種別を作成しました",
		slog.String("user_id", ownerID),
		slog.String("event_type_id", et.ID),
		slog.String("slug", slug),
	)

	return et, nil
}

// List はオーナーのイベント種別一覧を返す。無効化されたものも含む。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.EventType, error) {
	ets, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("イベント種別一覧の取得に失敗しました: %w", err)
	}
	return ets, nil
}

// Get はオーナー自身のイベント種別を返す。
// 他ユーザーのイベント種別はEVENT_TYPE_NOT_FOUNDとして扱う。
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.EventType, error) {
	et, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("イベント種別の取得に失敗しました: %w", err)
	}
	if et == nil || et.OwnerID != ownerID {
		return nil, model.NewEventTypeNotFoundError(id)
	}
	return et, nil
}

// Update はイベント種別を部分更新する。slugは作成時から変更しない。
func (s *Service) Update(ctx context.Context, ownerID, id string, in UpdateInput) (*model.EventType, error) {
	et, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		et.Name = name
	}
	if in.Description != nil {
		desc, err := s.sanitizeDescription(*in.Description)
		if err != nil {
			return nil, err
		}
		et.Description = desc
	}
	if in.DurationMinutes != nil {
		if err := validateDuration(*in.DurationMinutes); err != nil {
			return nil, err
		}
		et.DurationMinutes = *in.DurationMinutes
	}
	if in.Capacity != nil {
		capacity, err := resolveCapacity(et.Kind, in.Capacity)
		if err != nil {
			return nil, err
		}
		et.Capacity = capacity
	}
	if in.LocationType != nil || in.LocationDetails != nil {
		locType := et.LocationType
		if in.LocationType != nil {
			locType = *in.LocationType
		}
		details := et.LocationDetails
		if in.LocationDetails != nil {
			details = strings.TrimSpace(*in.LocationDetails)
		}
		if err := validateLocation(locType, details); err != nil {
			return nil, err
		}
		et.LocationType = locType
		et.LocationDetails = details
	}
	if in.IsActive != nil {
		et.IsActive = *in.IsActive
		if et.IsActive {
			et.DeactivatedAt = nil
		}
	}
	et.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, et); err != nil {
		return nil, fmt.Errorf("イベント種別の更新に失敗しました: %w", err)
	}

	return et, nil
}

// Deactivate はイベント種別を論理削除する。公開ページからは参照できなくなる。
func (s *Service) Deactivate(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}

	if err := s.repo.Deactivate(ctx, id, s.now()); err != nil {
		return fmt.Errorf("イベント種別の無効化に失敗しました: %w", err)
	}

	slog.Info("イベント種別を無効化しました",
		slog.String("user_id", ownerID),
		slog.String("event_type_id", id),
	)
	return nil
}

// FindPublic は公開中のイベント種別をオーナーとslugで返す。
// 無効化されたものや存在しないものはEVENT_TYPE_NOT_FOUNDを返す。
func (s *Service) FindPublic(ctx context.Context, ownerID, slug string) (*model.EventType, error) {
	et, err := s.repo.FindActiveByOwnerAndSlug(ctx, ownerID, slug)
	if err != nil {
		return nil, fmt.Errorf("イベント種別の取得に失敗しました: %w", err)
	}
	if et == nil {
		return nil, model.NewEventTypeNotFoundError(slug)
	}
	return et, nil
}

func (s *Service) sanitizeDescription(raw string) (string, error) {
	if utf8.RuneCountInString(raw) > maxDescriptionLength {
		return "", model.NewInvalidEventTypeError(fmt.Sprintf("説明は%d文字以内で入力してください", maxDescriptionLength))
	}
	if s.sanitizer == nil {
		return strings.TrimSpace(raw), nil
	}
	return s.sanitizer.Sanitize(raw), nil
}

func validateName(name string) error {
	if name == "" {
		return model.NewInvalidEventTypeError("名前を入力してください")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return model.NewInvalidEventTypeError(fmt.Sprintf("名前は%d文字以内で入力してください", maxNameLength))
	}
	return nil
}

func validateDuration(minutes int) error {
	if minutes < MinDuration || minutes > MaxDuration || minutes%durationStep != 0 {
		return model.NewInvalidEventTypeError(fmt.Sprintf("所要時間は%d〜%d分の%d分単位で指定してください（指定値: %d）", MinDuration, MaxDuration, durationStep, minutes))
	}
	return nil
}

// resolveCapacity は種別に応じた定員を返す。1対1は常にnil。
func resolveCapacity(kind model.EventKind, capacity *int) (*int, error) {
	switch kind {
	case model.EventKindOneOnOne:
		return nil, nil
	case model.EventKindGroup:
		if capacity == nil {
			c := model.DefaultGroupCapacity
			return &c, nil
		}
		if *capacity < 2 || *capacity > maxCapacity {
			return nil, model.NewInvalidEventTypeError(fmt.Sprintf("定員は2〜%d人で指定してください", maxCapacity))
		}
		c := *capacity
		return &c, nil
	default:
		return nil, model.NewInvalidEventTypeError(fmt.Sprintf("未知の種類です: %s", kind))
	}
}

func validateLocation(locType model.LocationType, details string) error {
	switch locType {
	case model.LocationGoogleMeet:
	case model.LocationInPerson, model.LocationCustom:
		if strings.TrimSpace(details) == "" {
			return model.NewInvalidEventTypeError("場所の詳細を入力してください")
		}
	default:
		return model.NewInvalidEventTypeError(fmt.Sprintf("未知の場所の種類です: %s", locType))
	}
	if utf8.RuneCountInString(details) > maxLocationDetailsLength {
		return model.NewInvalidEventTypeError(fmt.Sprintf("場所の詳細は%d文字以内で入力してください", maxLocationDetailsLength))
	}
	return nil
}
