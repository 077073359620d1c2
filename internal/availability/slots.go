package availability

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hitoshi/slotbook/internal/model"
)

var (
	// ErrInvalidDuration は枠の長さが 1-1440 分の範囲外であることを表す。
	ErrInvalidDuration = errors.New("invalid slot duration")
	// ErrInvalidRange は開始時刻が終了時刻以上の勤務時間帯を表す。
	ErrInvalidRange = errors.New("invalid working range")
	// ErrOverlappingRanges は同じ日の勤務時間帯同士が重なっていることを表す。
	ErrOverlappingRanges = errors.New("overlapping working ranges")
)

// BusyInterval は外部カレンダー上の予定を絶対時刻で表す。
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Slot は予約可能な1枠。時刻は主催者のタイムゾーンでの "HH:MM"。
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Request はComputeSlotsの入力。
type Request struct {
	Schedule        model.WeeklySchedule
	Busy            []BusyInterval
	Date            string // YYYY-MM-DD
	Timezone        string // IANAタイムゾーン名
	DurationMinutes int
}

// NormalizeBusy は予定を対象日のローカル時刻における分単位の区間に変換する。
//
// 対象日は loc における当日0時から翌日0時までの半開区間で、夏時間の切り替え日は
// 23時間または25時間になる。対象日と重ならない予定は除外し、日をまたぐ予定は
// 0 と 1440 に切り詰める。開始は分未満を切り捨て、終了は分未満を切り上げるため
// 予定が短くなることはない。長さが0の予定も除外する。
//
// 夏時間が終わる日は同じ壁時計の時刻が2回現れるため、1つの予定が2つの区間になることがある。
func NormalizeBusy(busy []BusyInterval, date string, loc *time.Location) ([]MinuteRange, error) {
	dayStart, dayEnd, err := DayBounds(date, loc)
	if err != nil {
		return nil, err
	}

	ranges := make([]MinuteRange, 0, len(busy))
	for _, b := range busy {
		s, e := b.Start, b.End
		if s.Before(dayStart) {
			s = dayStart
		}
		if e.After(dayEnd) {
			e = dayEnd
		}
		for _, r := range wallRanges(s, e, dayStart, dayEnd, loc) {
			if r.Len() > 0 {
				ranges = append(ranges, r)
			}
		}
	}
	return ranges, nil
}

// wallRanges は対象日内の[s, e)が壁時計の上で占める区間を返す。
// UTCオフセットが一定の部分ごとに変換し、時計が進んで存在しない時刻を挟む部分は1つにつなげる。
func wallRanges(s, e, dayStart, dayEnd time.Time, loc *time.Location) []MinuteRange {
	var out []MinuteRange
	for s.Before(e) {
		segEnd := e
		if _, zoneEnd := s.In(loc).ZoneBounds(); !zoneEnd.IsZero() && zoneEnd.Before(segEnd) {
			segEnd = zoneEnd
		}

		local := s.In(loc)
		wall := LocalMinuteOfDay(s, loc)
		lead := time.Duration(local.Second())*time.Second + time.Duration(local.Nanosecond())
		end := wall + int(math.Ceil(float64(segEnd.Sub(s)+lead)/float64(time.Minute)))
		if segEnd.Equal(dayEnd) || end > MinutesPerDay {
			end = MinutesPerDay
		}
		start := wall
		if s.Equal(dayStart) {
			start = 0
		}
		r := MinuteRange{Start: start, End: end}

		if n := len(out); n > 0 && r.Start >= out[n-1].End {
			out[n-1].End = r.End
		} else {
			out = append(out, r)
		}
		s = segEnd
	}
	return out
}

// WorkingRanges は1日分の勤務時間帯を開始順に並べた分単位の区間に変換する。
// 各区間は開始 < 終了であること、区間同士が重ならないことを検証する。
// 端点が接するだけの区間（09:00-12:00 と 12:00-17:00）は重なりとみなさない。
func WorkingRanges(day model.DaySchedule) ([]MinuteRange, error) {
	ranges := make([]MinuteRange, 0, len(day.Ranges))
	for _, tr := range day.Ranges {
		start, err := TimeToMinutes(tr.Start)
		if err != nil {
			return nil, err
		}
		end, err := TimeToMinutes(tr.End)
		if err != nil {
			return nil, err
		}
		if start >= end {
			return nil, fmt.Errorf("%w: %s-%s", ErrInvalidRange, tr.Start, tr.End)
		}
		ranges = append(ranges, MinuteRange{Start: start, End: end})
	}

	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].Start < ranges[j].Start
	})
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start < ranges[i-1].End {
			return nil, fmt.Errorf("%w: %s-%s and %s-%s", ErrOverlappingRanges,
				MinutesToTime(ranges[i-1].Start), MinutesToTime(ranges[i-1].End),
				MinutesToTime(ranges[i].Start), MinutesToTime(ranges[i].End))
		}
	}
	return ranges, nil
}

// GenerateSlots は空き区間を先頭からduration分ずつ区切った枠を返す。
// durationに満たない末尾の残りは枠にしない。durationは正の値であること。
func GenerateSlots(free []MinuteRange, duration int) []Slot {
	slots := make([]Slot, 0)
	if duration <= 0 {
		return slots
	}
	for _, r := range free {
		for cur := r.Start; cur+duration <= r.End; cur += duration {
			slots = append(slots, Slot{
				Start: MinutesToTime(cur),
				End:   MinutesToTime(cur + duration),
			})
		}
	}
	return slots
}

// ComputeSlots は週間スケジュールと予定から対象日の予約可能枠を計算する。
//
// 枠の長さが範囲外の場合はErrInvalidDuration、日付が不正な場合はErrInvalidDateを返す。
// タイムゾーンが空または未知の場合、および対象日の曜日が無効・未設定の場合は
// エラーではなく空の結果（予約可能枠なし）を返す。
// 成功時の戻り値は常にnilでないスライス。
func ComputeSlots(in Request) ([]Slot, error) {
	if in.DurationMinutes <= 0 || in.DurationMinutes > MinutesPerDay {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, in.DurationMinutes)
	}
	if _, err := time.Parse(dateLayout, in.Date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, in.Date)
	}

	loc, err := LoadLocation(in.Timezone)
	if err != nil {
		return []Slot{}, nil
	}

	weekday, err := ResolveWeekday(in.Date, loc)
	if err != nil {
		return nil, err
	}
	day, ok := in.Schedule[weekday]
	if !ok || !day.Enabled {
		return []Slot{}, nil
	}

	work, err := WorkingRanges(day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", weekday, err)
	}
	busy, err := NormalizeBusy(in.Busy, in.Date, loc)
	if err != nil {
		return nil, err
	}

	free := Subtract(work, busy)
	return GenerateSlots(free, in.DurationMinutes), nil
}
