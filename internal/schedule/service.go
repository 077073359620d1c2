// Package schedule はユーザーの週間勤務スケジュールを管理する。
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/slotbook/internal/availability"
	"github.com/hitoshi/slotbook/internal/model"
	"github.com/hitoshi/slotbook/internal/repository"
)

// Service は週間スケジュールのサービス層。
type Service struct {
	repo repository.ScheduleRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ScheduleRepository) *Service {
	return &Service{repo: repo}
}

// Get はユーザーの週間スケジュールを返す。
// 未登録の場合は初期スケジュールを保存してから返す。
func (s *Service) Get(ctx context.Context, userID string) (model.WeeklySchedule, error) {
	ws, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
	}
	if ws != nil {
		return Normalize(ws.Weekly), nil
	}

	weekly := model.DefaultWeeklySchedule()
	if err := s.repo.Upsert(ctx, userID, weekly); err != nil {
		return nil, fmt.Errorf("初期スケジュールの保存に失敗しました: %w", err)
	}
	slog.Info("初期スケジュールを作成しました", slog.String("user_id", userID))

	return weekly, nil
}

// Save は週間スケジュールを検証して保存する。
// 有効な日の時間帯はHH:MM形式で、開始が終了より前かつ互いに重ならないこと。
// 時間帯が空になった日は無効として保存する。
func (s *Service) Save(ctx context.Context, userID string, weekly model.WeeklySchedule) (model.WeeklySchedule, error) {
	for day := range weekly {
		if !day.IsValid() {
			return nil, model.NewInvalidScheduleError(day, "未知の曜日です")
		}
	}

	normalized := Normalize(weekly)
	if err := Validate(normalized); err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, userID, normalized); err != nil {
		return nil, fmt.Errorf("スケジュールの保存に失敗しました: %w", err)
	}

	return normalized, nil
}

// Normalize は7曜日すべてが揃ったスケジュールを返す。
// 欠けている曜日と時間帯が空の曜日は無効として補う。入力は変更しない。
func Normalize(weekly model.WeeklySchedule) model.WeeklySchedule {
	out := make(model.WeeklySchedule, len(model.Weekdays))
	for _, d := range model.Weekdays {
		day, ok := weekly[d]
		if !ok {
			out[d] = model.DaySchedule{Enabled: false, Ranges: []model.TimeRange{}}
			continue
		}
		ranges := make([]model.TimeRange, len(day.Ranges))
		copy(ranges, day.Ranges)
		out[d] = model.DaySchedule{
			Enabled: day.Enabled && len(ranges) > 0,
			Ranges:  ranges,
		}
	}
	return out
}

// Validate は有効な曜日の時間帯を検証する。
// 無効な曜日の時間帯は予約枠の計算に使われないため検証しない。
func Validate(weekly model.WeeklySchedule) error {
	for _, d := range model.Weekdays {
		day, ok := weekly[d]
		if !ok || !day.Enabled {
			continue
		}
		if _, err := availability.WorkingRanges(day); err != nil {
			return model.NewInvalidScheduleError(d, reason(err))
		}
	}
	return nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, availability.ErrInvalidTimeFormat):
		return "時刻は HH:MM 形式で指定してください"
	case errors.Is(err, availability.ErrInvalidRange):
		return "開始時刻が終了時刻以降になっています"
	case errors.Is(err, availability.ErrOverlappingRanges):
		return "時間帯が重なっています"
	default:
		return err.Error()
	}
}
