package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/slotbook/internal/metrics"
	"github.com/hitoshi/slotbook/internal/model"
)

// DefaultDurationMinutes は枠の長さが指定されない場合の値。
const DefaultDurationMinutes = 30

// UserFinder は主催者の取得インターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// ScheduleFinder は週間スケジュールの取得インターフェース。
type ScheduleFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.WorkSchedule, error)
}

// BusyProvider は外部カレンダーの予定の取得インターフェース。
type BusyProvider interface {
	BusyIntervals(ctx context.Context, userID string, loc *time.Location, from, to time.Time) ([]BusyInterval, error)
}

// EventTypeFinder は公開中のイベント種別の取得インターフェース。
type EventTypeFinder interface {
	FindPublic(ctx context.Context, ownerID, slug string) (*model.EventType, error)
}

// Query は予約可能枠の問い合わせ。DurationMinutesが0の場合はデフォルト値を使う。
type Query struct {
	OwnerID         string
	Date            string
	DurationMinutes int
}

// Result は予約可能枠の問い合わせ結果。
type Result struct {
	OwnerID         string
	Date            string
	Timezone        string
	DurationMinutes int
	Slots           []Slot
}

// Service は主催者の設定と外部カレンダーから予約可能枠を求めるサービス層。
type Service struct {
	users           UserFinder
	schedules       ScheduleFinder
	busy            BusyProvider
	eventTypes      EventTypeFinder
	metrics         metrics.MetricsCollector
	defaultDuration int
	now             func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// defaultDurationが0以下の場合はDefaultDurationMinutesを使う。
func NewService(
	users UserFinder,
	schedules ScheduleFinder,
	busy BusyProvider,
	eventTypes EventTypeFinder,
	mc metrics.MetricsCollector,
	defaultDuration int,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultDurationMinutes
	}
	return &Service{
		users:           users,
		schedules:       schedules,
		busy:            busy,
		eventTypes:      eventTypes,
		metrics:         mc,
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// Slots は主催者の指定日の予約可能枠を返す。
// 主催者のタイムゾーンやスケジュールが未設定の場合は空の結果を返す。
// 現在時刻より前に始まる枠は含めない。
func (s *Service) Slots(ctx context.Context, q Query) (*Result, error) {
	started := s.now()
	res, err := s.slots(ctx, q)

	elapsed := s.now().Sub(started)
	switch {
	case err != nil:
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeUserNotFound {
			s.metrics.RecordSlotQuery(metrics.ResultNotFound, 0, elapsed)
		} else {
			s.metrics.RecordSlotQuery(metrics.ResultError, 0, elapsed)
		}
	case len(res.Slots) == 0:
		s.metrics.RecordSlotQuery(metrics.ResultEmpty, 0, elapsed)
	default:
		s.metrics.RecordSlotQuery(metrics.ResultOK, len(res.Slots), elapsed)
	}
	return res, err
}

// EventTypeSlots は公開中のイベント種別の所要時間で予約可能枠を返す。
func (s *Service) EventTypeSlots(ctx context.Context, ownerID, slug, date string) (*Result, error) {
	if ownerID == "" {
		return nil, model.NewOwnerRequiredError()
	}
	et, err := s.eventTypes.FindPublic(ctx, ownerID, slug)
	if err != nil {
		return nil, err
	}
	return s.Slots(ctx, Query{OwnerID: ownerID, Date: date, DurationMinutes: et.DurationMinutes})
}

func (s *Service) slots(ctx context.Context, q Query) (*Result, error) {
	if q.OwnerID == "" {
		return nil, model.NewOwnerRequiredError()
	}
	duration := q.DurationMinutes
	if duration == 0 {
		duration = s.defaultDuration
	}
	if duration < 0 || duration > MinutesPerDay {
		return nil, model.NewInvalidDurationError(duration)
	}
	if _, err := time.Parse(dateLayout, q.Date); err != nil {
		return nil, model.NewInvalidDateError(q.Date)
	}

	res := &Result{
		OwnerID:         q.OwnerID,
		Date:            q.Date,
		DurationMinutes: duration,
		Slots:           []Slot{},
	}

	owner, err := s.users.FindByID(ctx, q.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("主催者の取得に失敗しました: %w", err)
	}
	if owner == nil {
		slog.Warn("主催者が存在しないため予約枠なしとして扱います", slog.String("owner_id", q.OwnerID))
		return res, nil
	}
	res.Timezone = owner.Timezone

	loc, err := LoadLocation(owner.Timezone)
	if err != nil {
		slog.Warn("主催者のタイムゾーンを解決できないため予約枠なしとして扱います",
			slog.String("owner_id", q.OwnerID),
			slog.String("timezone", owner.Timezone),
		)
		return res, nil
	}

	ws, err := s.schedules.FindByUserID(ctx, q.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
	}
	if ws == nil {
		return res, nil
	}

	// 勤務日でなければ外部カレンダーに問い合わせない
	weekday, err := ResolveWeekday(q.Date, loc)
	if err != nil {
		return nil, model.NewInvalidDateError(q.Date)
	}
	if day, ok := ws.Weekly[weekday]; !ok || !day.Enabled {
		return res, nil
	}

	from, to, err := DayBounds(q.Date, loc)
	if err != nil {
		return nil, model.NewInvalidDateError(q.Date)
	}
	busy, err := s.busy.BusyIntervals(ctx, q.OwnerID, loc, from, to)
	if err != nil {
		return nil, err
	}

	slots, err := ComputeSlots(Request{
		Schedule:        ws.Weekly,
		Busy:            busy,
		Date:            q.Date,
		Timezone:        owner.Timezone,
		DurationMinutes: duration,
	})
	if err != nil {
		return nil, toAPIError(err, q, duration, weekday)
	}

	res.Slots = dropPast(slots, q.Date, loc, s.now())
	return res, nil
}

// dropPast は現在時刻より前に始まる枠を除外する。
// 過去の日付は全枠、未来の日付はどの枠も除外されない。
func dropPast(slots []Slot, date string, loc *time.Location, now time.Time) []Slot {
	today := now.In(loc).Format(dateLayout)
	switch {
	case date > today:
		return slots
	case date < today:
		return []Slot{}
	}

	nowMin := LocalMinuteOfDay(now, loc)
	kept := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		start, err := TimeToMinutes(slot.Start)
		if err != nil || start < nowMin {
			continue
		}
		kept = append(kept, slot)
	}
	return kept
}

// toAPIError はコアのエラーをAPIErrorに変換する。
func toAPIError(err error, q Query, duration int, day model.Weekday) error {
	switch {
	case errors.Is(err, ErrInvalidDuration):
		return model.NewInvalidDurationError(duration)
	case errors.Is(err, ErrInvalidDate):
		return model.NewInvalidDateError(q.Date)
	case errors.Is(err, ErrInvalidTimeFormat):
		return model.NewInvalidScheduleError(day, "時刻は HH:MM 形式で指定してください")
	case errors.Is(err, ErrInvalidRange):
		return model.NewInvalidScheduleError(day, "開始時刻が終了時刻以降になっています")
	case errors.Is(err, ErrOverlappingRanges):
		return model.NewInvalidScheduleError(day, "時間帯が重なっています")
	default:
		return err
	}
}
