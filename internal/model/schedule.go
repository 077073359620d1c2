package model

import "time"

// Weekday は週間スケジュールのキーとなる曜日名（小文字の英語）。
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays は月曜始まりの曜日一覧。
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// WeekdayFromTime はtime.Weekdayを対応するWeekdayに変換する。
func WeekdayFromTime(d time.Weekday) Weekday {
	switch d {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// IsValid は曜日名が7つのいずれかであるかを返す。
func (w Weekday) IsValid() bool {
	for _, d := range Weekdays {
		if d == w {
			return true
		}
	}
	return false
}

// TimeRange は "HH:MM" 形式の時刻で表した勤務時間帯。
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DaySchedule は1日分の勤務設定。
// Enabledがfalseの日はRangesの内容に関わらず予約枠を生成しない。
type DaySchedule struct {
	Enabled bool        `json:"enabled"`
	Ranges  []TimeRange `json:"ranges"`
}

// WeeklySchedule は曜日ごとの勤務設定。
type WeeklySchedule map[Weekday]DaySchedule

// WorkSchedule はユーザーに紐づく永続化された週間スケジュール。
type WorkSchedule struct {
	UserID    string
	Weekly    WeeklySchedule
	UpdatedAt time.Time
}

// DefaultWeeklySchedule は新規ユーザー向けの初期スケジュールを返す。
// 月曜から土曜は09:00-17:00、日曜は休み。
func DefaultWeeklySchedule() WeeklySchedule {
	weekly := make(WeeklySchedule, len(Weekdays))
	for _, d := range Weekdays {
		if d == Sunday {
			weekly[d] = DaySchedule{Enabled: false, Ranges: []TimeRange{}}
			continue
		}
		weekly[d] = DaySchedule{
			Enabled: true,
			Ranges:  []TimeRange{{Start: "09:00", End: "17:00"}},
		}
	}
	return weekly
}
