package availability

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/slotbook/internal/model"
)

// 2024-03-15 は金曜日
const testDate = "2024-03-15"

func fridaySchedule(ranges ...model.TimeRange) model.WeeklySchedule {
	return model.WeeklySchedule{
		model.Friday: {Enabled: true, Ranges: ranges},
	}
}

// bogotaBusy はボゴタ（UTC-5、夏時間なし）の現地時刻で予定を作る。
func bogotaBusy(t *testing.T, date, start, end string) BusyInterval {
	t.Helper()
	loc := mustLoad(t, "America/Bogota")
	s, err := ParseInstant(date+"T"+start+":00", loc)
	if err != nil {
		t.Fatal(err)
	}
	e, err := ParseInstant(date+"T"+end+":00", loc)
	if err != nil {
		t.Fatal(err)
	}
	return BusyInterval{Start: s, End: e}
}

func TestComputeSlots_NoBusy(t *testing.T) {
	slots, err := ComputeSlots(Request{
		Schedule:        fridaySchedule(model.TimeRange{Start: "09:00", End: "17:00"}),
		Date:            testDate,
		Timezone:        "America/Bogota",
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(slots) != 16 {
		t.Fatalf("16枠であるべき, got %d", len(slots))
	}
	if slots[0] != (Slot{"09:00", "09:30"}) {
		t.Errorf("最初の枠 = %v", slots[0])
	}
	if slots[15] != (Slot{"16:30", "17:00"}) {
		t.Errorf("最後の枠 = %v", slots[15])
	}
}

func TestComputeSlots_LunchBusy(t *testing.T) {
	slots, err := ComputeSlots(Request{
		Schedule:        fridaySchedule(model.TimeRange{Start: "09:00", End: "17:00"}),
		Busy:            []BusyInterval{bogotaBusy(t, testDate, "12:00", "13:00")},
		Date:            testDate,
		Timezone:        "America/Bogota",
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	want := []Slot{
		{"09:00", "10:00"}, {"10:00", "11:00"}, {"11:00", "12:00"},
		{"13:00", "14:00"}, {"14:00", "15:00"}, {"15:00", "16:00"}, {"16:00", "17:00"},
	}
	if !reflect.DeepEqual(slots, want) {
		t.Errorf("got %v, want %v", slots, want)
	}
}

func TestComputeSlots_DisabledDay(t *testing.T) {
	schedule := model.WeeklySchedule{
		model.Friday: {Enabled: false, Ranges: []model.TimeRange{{Start: "09:00", End: "17:00"}}},
	}
	slots, err := ComputeSlots(Request{
		Schedule:        schedule,
		Busy:            []BusyInterval{bogotaBusy(t, testDate, "12:00", "13:00")},
		Date:            testDate,
		Timezone:        "America/Bogota",
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Errorf("空のスライスであるべき, got %#v", slots)
	}
}

func TestComputeSlots_MissingDay(t *testing.T) {
	slots, err := ComputeSlots(Request{
		Schedule:        model.WeeklySchedule{model.Monday: {Enabled: true, Ranges: []model.TimeRange{{Start: "09:00", End: "17:00"}}}},
		Date:            testDate,
		Timezone:        "America/Bogota",
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Errorf("空のスライスであるべき, got %#v", slots)
	}
}

// 前日から続く予定は当日の 00:00-01:00 部分だけが差し引かれる。
func TestComputeSlots_BusySpansMidnight(t *testing.T) {
	loc := mustLoad(t, "America/Bogota")
	busy := BusyInterval{
		Start: time.Date(2024, 3, 14, 22, 0, 0, 0, loc),
		End:   time.Date(2024, 3, 15, 1, 0, 0, 0, loc),
	}
	slots, err := ComputeSlots(Request{
		Schedule:        fridaySchedule(model.TimeRange{Start: "00:00", End: "03:00"}),
		Busy:            []BusyInterval{busy},
		Date:            testDate,
		Timezone:        "America/Bogota",
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	want := []Slot{{"01:00", "02:00"}, {"02:00", "03:00"}}
	if !reflect.DeepEqual(slots, want) {
		t.Errorf("got %v, want %v", slots, want)
	}
}

func TestComputeSlots_UnknownTimezone(t *testing.T) {
	for _, tz := range []string{"", "Not/AZone"} {
		slots, err := ComputeSlots(Request{
			Schedule:        fridaySchedule(model.TimeRange{Start: "09:00", End: "17:00"}),
			Date:            testDate,
			Timezone:        tz,
			DurationMinutes: 30,
		})
		if err != nil {
			t.Fatalf("タイムゾーン %q でエラーを返すべきでない: %v", tz, err)
		}
		if slots == nil || len(slots) != 0 {
			t.Errorf("タイムゾーン %q では空であるべき, got %#v", tz, slots)
		}
	}
}

func TestComputeSlots_InvalidInput(t *testing.T) {
	base := Request{
		Schedule:        fridaySchedule(model.TimeRange{Start: "09:00", End: "17:00"}),
		Date:            testDate,
		Timezone:        "America/Bogota",
		DurationMinutes: 30,
	}

	t.Run("所要時間0", func(t *testing.T) {
		req := base
		req.DurationMinutes = 0
		if _, err := ComputeSlots(req); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("ErrInvalidDuration を返すべき, got %v", err)
		}
	})

	t.Run("所要時間が1日を超える", func(t *testing.T) {
		req := base
		req.DurationMinutes = 1441
		if _, err := ComputeSlots(req); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("ErrInvalidDuration を返すべき, got %v", err)
		}
	})

	t.Run("日付が不正", func(t *testing.T) {
		req := base
		req.Date = "15/03/2024"
		if _, err := ComputeSlots(req); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ErrInvalidDate を返すべき, got %v", err)
		}
	})

	t.Run("時刻形式が不正", func(t *testing.T) {
		req := base
		req.Schedule = fridaySchedule(model.TimeRange{Start: "9", End: "17:00"})
		if _, err := ComputeSlots(req); !errors.Is(err, ErrInvalidTimeFormat) {
			t.Errorf("ErrInvalidTimeFormat を返すべき, got %v", err)
		}
	})

	t.Run("勤務時間帯の重なり", func(t *testing.T) {
		req := base
		req.Schedule = fridaySchedule(
			model.TimeRange{Start: "09:00", End: "12:00"},
			model.TimeRange{Start: "11:00", End: "13:00"},
		)
		if _, err := ComputeSlots(req); !errors.Is(err, ErrOverlappingRanges) {
			t.Errorf("ErrOverlappingRanges を返すべき, got %v", err)
		}
	})
}

func TestComputeSlots_Idempotent(t *testing.T) {
	req := Request{
		Schedule: fridaySchedule(
			model.TimeRange{Start: "09:00", End: "12:00"},
			model.TimeRange{Start: "13:00", End: "18:00"},
		),
		Busy: []BusyInterval{
			bogotaBusy(t, testDate, "10:15", "10:45"),
			bogotaBusy(t, testDate, "14:00", "15:30"),
		},
		Date:            testDate,
		Timezone:        "America/Bogota",
		DurationMinutes: 25,
	}
	first, err := ComputeSlots(req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ComputeSlots(req)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("同じ入力で結果が異なる: %v / %v", first, second)
	}
}

// 返される枠は互いに重ならず、いずれかの勤務時間帯に含まれ、どの予定とも重ならない。
func TestComputeSlots_SlotInvariants(t *testing.T) {
	work := []model.TimeRange{
		{Start: "08:00", End: "11:50"},
		{Start: "13:10", End: "19:00"},
	}
	busyLocal := [][2]string{{"08:20", "08:35"}, {"09:59", "10:01"}, {"15:00", "16:45"}, {"18:30", "20:00"}}
	busy := make([]BusyInterval, 0, len(busyLocal))
	busyRanges := make([]MinuteRange, 0, len(busyLocal))
	for _, b := range busyLocal {
		busy = append(busy, bogotaBusy(t, testDate, b[0], b[1]))
		s, _ := TimeToMinutes(b[0])
		e, _ := TimeToMinutes(b[1])
		busyRanges = append(busyRanges, MinuteRange{s, e})
	}
	workRanges, err := WorkingRanges(model.DaySchedule{Enabled: true, Ranges: work})
	if err != nil {
		t.Fatal(err)
	}

	for _, duration := range []int{5, 15, 20, 30, 45, 60, 90} {
		slots, err := ComputeSlots(Request{
			Schedule:        fridaySchedule(work...),
			Busy:            busy,
			Date:            testDate,
			Timezone:        "America/Bogota",
			DurationMinutes: duration,
		})
		if err != nil {
			t.Fatalf("duration=%d: %v", duration, err)
		}

		ranges := make([]MinuteRange, len(slots))
		for i, s := range slots {
			start, _ := TimeToMinutes(s.Start)
			end, _ := TimeToMinutes(s.End)
			ranges[i] = MinuteRange{start, end}
			if ranges[i].Len() != duration {
				t.Errorf("duration=%d: 枠の長さが不正 %v", duration, s)
			}
		}

		for i := range ranges {
			for j := range ranges {
				if i != j && ranges[i].Overlaps(ranges[j]) {
					t.Errorf("duration=%d: 枠が重なっている %v %v", duration, slots[i], slots[j])
				}
			}
			inWork := false
			for _, w := range workRanges {
				if w.Start <= ranges[i].Start && ranges[i].End <= w.End {
					inWork = true
				}
			}
			if !inWork {
				t.Errorf("duration=%d: 勤務時間外の枠 %v", duration, slots[i])
			}
			for _, b := range busyRanges {
				if b.Overlaps(ranges[i]) {
					t.Errorf("duration=%d: 予定と重なる枠 %v", duration, slots[i])
				}
			}
		}
	}
}

// 夏時間開始日（2024-03-10、日曜）のニューヨーク。UTCで指定した予定が現地時刻に正しく変換される。
func TestComputeSlots_DSTDay(t *testing.T) {
	schedule := model.WeeklySchedule{
		model.Sunday: {Enabled: true, Ranges: []model.TimeRange{{Start: "09:00", End: "12:00"}}},
	}
	// 14:00Z-15:00Z は EDT で 10:00-11:00
	busy := []BusyInterval{{
		Start: time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC),
	}}
	slots, err := ComputeSlots(Request{
		Schedule:        schedule,
		Busy:            busy,
		Date:            "2024-03-10",
		Timezone:        "America/New_York",
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	want := []Slot{{"09:00", "10:00"}, {"11:00", "12:00"}}
	if !reflect.DeepEqual(slots, want) {
		t.Errorf("got %v, want %v", slots, want)
	}
}

func TestNormalizeBusy(t *testing.T) {
	loc := mustLoad(t, "America/Bogota")
	day := func(h, m, s int) time.Time { return time.Date(2024, 3, 15, h, m, s, 0, loc) }

	busy := []BusyInterval{
		// 前日の予定は除外
		{Start: time.Date(2024, 3, 14, 10, 0, 0, 0, loc), End: time.Date(2024, 3, 14, 11, 0, 0, 0, loc)},
		// 翌日にまたがる予定は 1440 に切り詰め
		{Start: day(23, 0, 0), End: time.Date(2024, 3, 16, 2, 0, 0, 0, loc)},
		// 秒は開始を切り捨て、終了を切り上げ
		{Start: day(10, 0, 30), End: day(10, 29, 10)},
		// 長さ0の予定は除外
		{Start: day(12, 0, 0), End: day(12, 0, 0)},
		// 前日0時ちょうどに終わる予定は除外
		{Start: time.Date(2024, 3, 14, 23, 0, 0, 0, loc), End: day(0, 0, 0)},
	}

	got, err := NormalizeBusy(busy, testDate, loc)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	want := []MinuteRange{{1380, 1440}, {600, 630}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// 夏時間終了日（2024-11-03）のニューヨークでは 01:00-02:00 が2回現れる。
// 実時間で重なる部分は、壁時計のどちらの読みでも予定として差し引かれる。
func TestNormalizeBusy_FallBackDay(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	const date = "2024-11-03"

	tests := []struct {
		name string
		busy BusyInterval
		want []MinuteRange
	}{
		{
			// 01:00 EDT から 01:00 EST までの1時間
			name: "1回目の1時台全体",
			busy: BusyInterval{Start: utcTime(2024, 11, 3, 5, 0), End: utcTime(2024, 11, 3, 6, 0)},
			want: []MinuteRange{{60, 120}},
		},
		{
			// 01:30 EDT から 01:30 EST まで。壁時計では 01:30-02:00 と 01:00-01:30
			name: "切り替えをまたぐ予定",
			busy: BusyInterval{Start: utcTime(2024, 11, 3, 5, 30), End: utcTime(2024, 11, 3, 6, 30)},
			want: []MinuteRange{{90, 120}, {60, 90}},
		},
		{
			// 01:00 EST から 03:00 EST まで
			name: "2回目の1時台から始まる予定",
			busy: BusyInterval{Start: utcTime(2024, 11, 3, 6, 0), End: utcTime(2024, 11, 3, 8, 0)},
			want: []MinuteRange{{60, 180}},
		},
		{
			name: "終日予定",
			busy: BusyInterval{Start: time.Date(2024, 11, 3, 0, 0, 0, 0, ny), End: time.Date(2024, 11, 4, 0, 0, 0, 0, ny)},
			want: []MinuteRange{{0, 120}, {60, 1440}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBusy([]BusyInterval{tt.busy}, date, ny)
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

// 夏時間開始日（2024-03-10）は 02:00-03:00 が存在しない。
// 01:00 EST から 04:00 EDT までの予定は1つの区間として差し引かれる。
func TestNormalizeBusy_SpringForwardDay(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	busy := []BusyInterval{{Start: utcTime(2024, 3, 10, 6, 0), End: utcTime(2024, 3, 10, 8, 0)}}

	got, err := NormalizeBusy(busy, "2024-03-10", ny)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []MinuteRange{{60, 240}}) {
		t.Errorf("got %v", got)
	}
}

// 夏時間終了日に予定がある1時間へ枠を出さない。
func TestComputeSlots_FallBackDayBusy(t *testing.T) {
	schedule := model.WeeklySchedule{
		model.Sunday: {Enabled: true, Ranges: []model.TimeRange{{Start: "00:30", End: "02:30"}}},
	}
	slots, err := ComputeSlots(Request{
		Schedule:        schedule,
		Busy:            []BusyInterval{{Start: utcTime(2024, 11, 3, 5, 0), End: utcTime(2024, 11, 3, 6, 0)}},
		Date:            "2024-11-03",
		Timezone:        "America/New_York",
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	want := []Slot{{"00:30", "01:00"}, {"02:00", "02:30"}}
	if !reflect.DeepEqual(slots, want) {
		t.Errorf("got %v, want %v", slots, want)
	}
}

func utcTime(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestNormalizeBusy_AllDay(t *testing.T) {
	loc := mustLoad(t, "America/Bogota")
	busy := []BusyInterval{{
		Start: time.Date(2024, 3, 14, 0, 0, 0, 0, loc),
		End:   time.Date(2024, 3, 17, 0, 0, 0, 0, loc),
	}}
	got, err := NormalizeBusy(busy, testDate, loc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []MinuteRange{{0, 1440}}) {
		t.Errorf("got %v", got)
	}
}

func TestWorkingRanges(t *testing.T) {
	t.Run("開始順に並べ替える", func(t *testing.T) {
		got, err := WorkingRanges(model.DaySchedule{Enabled: true, Ranges: []model.TimeRange{
			{Start: "13:00", End: "17:00"},
			{Start: "09:00", End: "12:00"},
		}})
		if err != nil {
			t.Fatal(err)
		}
		want := []MinuteRange{{540, 720}, {780, 1020}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("端点が接する区間は許可", func(t *testing.T) {
		_, err := WorkingRanges(model.DaySchedule{Enabled: true, Ranges: []model.TimeRange{
			{Start: "09:00", End: "12:00"},
			{Start: "12:00", End: "17:00"},
		}})
		if err != nil {
			t.Errorf("予期しないエラー: %v", err)
		}
	})

	t.Run("開始が終了以降", func(t *testing.T) {
		_, err := WorkingRanges(model.DaySchedule{Enabled: true, Ranges: []model.TimeRange{
			{Start: "17:00", End: "09:00"},
		}})
		if !errors.Is(err, ErrInvalidRange) {
			t.Errorf("ErrInvalidRange を返すべき, got %v", err)
		}
	})

	t.Run("24:00までの区間", func(t *testing.T) {
		got, err := WorkingRanges(model.DaySchedule{Enabled: true, Ranges: []model.TimeRange{
			{Start: "22:00", End: "24:00"},
		}})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, []MinuteRange{{1320, 1440}}) {
			t.Errorf("got %v", got)
		}
	})
}

func TestGenerateSlots(t *testing.T) {
	t.Run("端数は枠にしない", func(t *testing.T) {
		got := GenerateSlots([]MinuteRange{{540, 650}}, 30)
		want := []Slot{{"09:00", "09:30"}, {"09:30", "10:00"}, {"10:00", "10:30"}}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("区間より長い所要時間", func(t *testing.T) {
		got := GenerateSlots([]MinuteRange{{540, 560}}, 30)
		if got == nil || len(got) != 0 {
			t.Errorf("空のスライスであるべき, got %#v", got)
		}
	})

	t.Run("最終枠が24:00で終わる", func(t *testing.T) {
		got := GenerateSlots([]MinuteRange{{1380, 1440}}, 60)
		if !reflect.DeepEqual(got, []Slot{{"23:00", "24:00"}}) {
			t.Errorf("got %v", got)
		}
	})
}
