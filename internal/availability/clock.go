// Package availability は予約可能枠の計算エンジンを提供する。
//
// 勤務時間（"HH:MM"）と外部カレンダーの予定（絶対時刻）を、対象日のローカル時刻における
// 分単位（0-1440）の区間に正規化し、予定を差し引いた空き区間から固定長の枠を切り出す。
// パッケージ直下の関数はすべて純粋関数で、状態を持たず並行に呼び出せる。
package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/slotbook/internal/model"
)

// MinutesPerDay は1日の分数。MinuteRangeの上限（翌日0時）としても使う。
const MinutesPerDay = 24 * 60

// dateLayout は対象日の文字列形式。
const dateLayout = "2006-01-02"

var (
	// ErrInvalidTimeFormat は "HH:MM" として解析できない時刻文字列を表す。
	ErrInvalidTimeFormat = errors.New("invalid time format")
	// ErrInvalidDate は "YYYY-MM-DD" として解析できない日付文字列を表す。
	ErrInvalidDate = errors.New("invalid date")
	// ErrUnknownTimezone は解決できないタイムゾーン名を表す。
	ErrUnknownTimezone = errors.New("unknown timezone")
)

// TimeToMinutes は "HH:MM" 形式の時刻を0時からの経過分に変換する。
// 各フィールドは1桁でもよい（"9:5" は545）。
// コロンで2つの数値フィールドに分割できない場合はErrInvalidTimeFormatを返す。
// 分が59を超える値、および "24:00" を超える値も不正とする。
func TimeToMinutes(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}

	h, ok := parseDigits(parts[0])
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	m, ok := parseDigits(parts[1])
	if !ok || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}

	total := h*60 + m
	if total > MinutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return total, nil
}

// parseDigits はASCII数字のみからなる短い文字列を整数に変換する。
// 符号や空白はstrconv.Atoiが受け付けても不正として扱う。
func parseDigits(s string) (int, bool) {
	if s == "" || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MinutesToTime は0時からの経過分をゼロ埋めの "HH:MM" に変換する。
// 1日を超える値は呼び出し側で事前にクランプすること。1440は "24:00" になる。
func MinutesToTime(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// LocalMinuteOfDay は時刻tを指定タイムゾーンで見たときの0時からの経過分（0-1439）を返す。
// オフセットはその時点のタイムゾーン規則で解決されるため、夏時間の切り替えも反映される。
func LocalMinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// ResolveWeekday は "YYYY-MM-DD" の日付が属する曜日を返す。
// 0時付近の夏時間切り替えによる曖昧さを避けるため、現地時刻の正午で評価する。
func ResolveWeekday(date string, loc *time.Location) (model.Weekday, error) {
	noon, err := localNoon(date, loc)
	if err != nil {
		return "", err
	}
	return model.WeekdayFromTime(noon.Weekday()), nil
}

// LoadLocation はIANAタイムゾーン名を*time.Locationに解決する。
// 空文字列や未知の名前はErrUnknownTimezoneを返す。
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnknownTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownTimezone, name, err)
	}
	return loc, nil
}

// naiveLayouts はタイムゾーン情報を持たないISO-8601形式。
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseInstant はISO-8601の時刻文字列を絶対時刻に変換する。
// オフセット付き（RFC 3339）の場合はそのまま、オフセットなしの場合はlocの現地時刻として解釈する。
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable instant: %q", s)
}

// DayBounds は対象日の現地時刻での開始（0時）と翌日0時を返す。
// 夏時間の切り替え日は23時間または25時間になる。
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc)
	return start, end, nil
}

func localNoon(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, loc), nil
}
