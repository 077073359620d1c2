package calendar

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Event はICSフィードのVEVENTのうち、空き時間の計算に必要な項目。
type Event struct {
	UID         string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Transparent bool // TRANSP:TRANSPARENT（予定ありとして扱わない）
	Cancelled   bool // STATUS:CANCELLED

	RRule   string // RRULEの値（例: FREQ=WEEKLY;BYDAY=MO）。空なら単発
	RDates  []time.Time
	ExDates []time.Time
	// RecurrenceID は繰り返し予定の特定回を差し替えるVEVENTが持つ、元の回の開始日時。
	RecurrenceID time.Time
}

// Blocks はこの予定が時間を占有するかを返す。
func (e Event) Blocks() bool {
	return !e.Transparent && !e.Cancelled && e.End.After(e.Start)
}

// Recurring は繰り返し規則または追加日付を持つかを返す。
func (e Event) Recurring() bool {
	return e.RRule != "" || len(e.RDates) > 0
}

// ParseICS はICSデータからVEVENTを読み取る。
// TZIDを持たない日時（フローティングタイム）と終日予定の日付はlocで解釈する。
// 開始日時を持たないイベントは無視する。繰り返しの展開はOccurrencesで行う。
func ParseICS(r io.Reader, loc *time.Location) ([]Event, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("reading calendar: %w", err)
	}

	var events []Event
	for _, ve := range cal.Events() {
		e, ok, err := eventFromVEvent(ve, loc)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, e)
		}
	}
	return events, nil
}

// eventFromVEvent はVEVENT直下のプロパティだけを読む。VALARM等の子コンポーネントは見ない。
func eventFromVEvent(ve *ics.VEvent, loc *time.Location) (Event, bool, error) {
	startProp := ve.GetProperty(ics.ComponentPropertyDtStart)
	if startProp == nil {
		return Event{}, false, nil
	}

	var e Event
	var err error
	e.Start, e.AllDay, err = parseICSTime(startProp, startProp.Value, loc)
	if err != nil {
		return Event{}, false, err
	}

	switch {
	case ve.GetProperty(ics.ComponentPropertyDtEnd) != nil:
		p := ve.GetProperty(ics.ComponentPropertyDtEnd)
		if e.End, _, err = parseICSTime(p, p.Value, loc); err != nil {
			return Event{}, false, err
		}
	case ve.GetProperty(ics.ComponentPropertyDuration) != nil:
		d, err := parseICSDuration(strings.TrimSpace(ve.GetProperty(ics.ComponentPropertyDuration).Value))
		if err != nil {
			return Event{}, false, err
		}
		e.End = e.Start.Add(d)
	case e.AllDay:
		// DTENDもDURATIONもない終日予定は1日分
		e.End = e.Start.AddDate(0, 0, 1)
	default:
		e.End = e.Start
	}

	e.UID = propValue(ve, ics.ComponentPropertyUniqueId)
	e.Transparent = strings.EqualFold(propValue(ve, ics.ComponentPropertyTransp), "TRANSPARENT")
	e.Cancelled = strings.EqualFold(propValue(ve, ics.ComponentPropertyStatus), "CANCELLED")
	e.RRule = propValue(ve, ics.ComponentPropertyRrule)

	if e.RDates, err = parseICSTimeLists(ve.GetProperties(ics.ComponentPropertyRdate), loc); err != nil {
		return Event{}, false, err
	}
	if e.ExDates, err = parseICSTimeLists(ve.GetProperties(ics.ComponentPropertyExdate), loc); err != nil {
		return Event{}, false, err
	}
	if p := ve.GetProperty(ics.ComponentPropertyRecurrenceId); p != nil {
		if e.RecurrenceID, _, err = parseICSTime(p, p.Value, loc); err != nil {
			return Event{}, false, err
		}
	}
	return e, true, nil
}

func propValue(ve *ics.VEvent, name ics.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

func param(p *ics.IANAProperty, name string) string {
	if v := p.ICalParameters[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// parseICSTimeLists はRDATE/EXDATEのカンマ区切りの日時を読む。
// PERIOD値（開始/終了）は開始日時だけを使う。
func parseICSTimeLists(props []*ics.IANAProperty, loc *time.Location) ([]time.Time, error) {
	var out []time.Time
	for _, p := range props {
		for _, v := range strings.Split(p.Value, ",") {
			v, _, _ = strings.Cut(v, "/")
			if strings.TrimSpace(v) == "" {
				continue
			}
			t, _, err := parseICSTime(p, v, loc)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// parseICSTime はプロパティの日時値を解釈する。2番目の戻り値は日付のみ（終日）かどうか。
// 値はプロパティのパラメータ（VALUE, TZID）に従って読む。
func parseICSTime(p *ics.IANAProperty, raw string, loc *time.Location) (time.Time, bool, error) {
	value := strings.TrimSpace(raw)

	if strings.EqualFold(param(p, "VALUE"), "DATE") || len(value) == len("20060102") {
		t, err := time.ParseInLocation("20060102", value, loc)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid %s date %q: %w", p.IANAToken, value, err)
		}
		return t, true, nil
	}

	if strings.HasSuffix(value, "Z") {
		t, err := time.Parse("20060102T150405Z", value)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid %s %q: %w", p.IANAToken, value, err)
		}
		return t, false, nil
	}

	in := loc
	if tzid := param(p, "TZID"); tzid != "" {
		// 解決できないTZID（Windowsのゾーン名等）はオーナーのタイムゾーンで代用する
		if l, err := time.LoadLocation(tzid); err == nil {
			in = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", value, in)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid %s %q: %w", p.IANAToken, value, err)
	}
	return t, false, nil
}

// parseICSDuration はRFC 5545のDURATION（例: PT1H30M, P1D, P2W）を解釈する。
func parseICSDuration(s string) (time.Duration, error) {
	orig := s
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			num += string(r)
		default:
			if num == "" {
				return 0, fmt.Errorf("invalid duration %q", orig)
			}
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", orig, err)
			}
			num = ""
			var unit time.Duration
			switch {
			case r == 'W' && !inTime:
				unit = 7 * 24 * time.Hour
			case r == 'D' && !inTime:
				unit = 24 * time.Hour
			case r == 'H' && inTime:
				unit = time.Hour
			case r == 'M' && inTime:
				unit = time.Minute
			case r == 'S' && inTime:
				unit = time.Second
			default:
				return 0, fmt.Errorf("invalid duration %q", orig)
			}
			total += time.Duration(n) * unit
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	return sign * total, nil
}
