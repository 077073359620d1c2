package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hitoshi/slotbook/internal/availability"
)

// maxRecurrenceScan は1つの繰り返し規則について走査する回数の上限。
// FREQ=MINUTELY等の過密な規則でフィードの取得が止まらないようにする。
const maxRecurrenceScan = 50000

// ErrRecurrenceTooDense は繰り返し規則が上限を超える回数を生成した場合に返される。
var ErrRecurrenceTooDense = errors.New("calendar: recurrence rule too dense")

// Occurrences は予定の各回のうち[from, to)と重なるものを返す。
// 繰り返し予定はRRULE・RDATEで展開し、EXDATEとskipに含まれる回を除く。
// skipには同じUIDでRECURRENCE-IDを持つ差し替えイベントの元の開始日時を渡す。
// 各回の長さはDTSTARTからDTEND（またはDURATION）までと同じ。
func (e Event) Occurrences(from, to time.Time, skip []time.Time) ([]availability.BusyInterval, error) {
	length := e.End.Sub(e.Start)
	if !e.Recurring() {
		if e.Start.Before(to) && e.End.After(from) {
			return []availability.BusyInterval{{Start: e.Start, End: e.End}}, nil
		}
		return nil, nil
	}

	set, err := e.recurrenceSet(skip)
	if err != nil {
		return nil, err
	}

	var out []availability.BusyInterval
	next := set.Iterator()
	for n := 0; ; n++ {
		start, ok := next()
		if !ok || !start.Before(to) {
			break
		}
		if n >= maxRecurrenceScan {
			return nil, fmt.Errorf("%w: %s", ErrRecurrenceTooDense, e.UID)
		}
		end := start.Add(length)
		if end.After(from) {
			out = append(out, availability.BusyInterval{Start: start, End: end})
		}
	}
	return out, nil
}

// recurrenceSet はDTSTARTを初回とする繰り返し集合を組み立てる。
// DTSTARTが規則に一致しない場合も初回として含める。
func (e Event) recurrenceSet(skip []time.Time) (*rrule.Set, error) {
	set := &rrule.Set{}
	if e.RRule != "" {
		opt, err := rrule.StrToROptionInLocation(e.RRule, e.Start.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid RRULE %q in %s: %w", e.RRule, e.UID, err)
		}
		opt.Dtstart = e.Start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("invalid RRULE %q in %s: %w", e.RRule, e.UID, err)
		}
		set.RRule(r)
	}
	set.DTStart(e.Start)
	set.RDate(e.Start)
	for _, t := range e.RDates {
		set.RDate(t)
	}
	for _, t := range e.ExDates {
		set.ExDate(t)
	}
	for _, t := range skip {
		set.ExDate(t)
	}
	return set, nil
}
