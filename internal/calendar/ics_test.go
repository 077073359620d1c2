package calendar

import (
	"strings"
	"testing"
	"time"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Example//Calendar//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:utc-event\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20240315T140000Z\r\n" +
	"DTEND:20240315T143000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:tzid-event\r\n" +
	"DTSTART;TZID=America/New_York:20240315T100000\r\n" +
	"DTEND;TZID=America/New_York:20240315T110000\r\n" +
	"BEGIN:VALARM\r\n" +
	"ACTION:DISPLAY\r\n" +
	"TRIGGER:-PT15M\r\n" +
	"DTSTART:19700101T000000Z\r\n" +
	"END:VALARM\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:floating-event\r\n" +
	"DTSTART:20240315T120000\r\n" +
	"DURATION:PT1H30M\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:all-day\r\n" +
	"DTSTART;VALUE=DATE:20240316\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:transparent\r\n" +
	"DTSTART:20240315T160000Z\r\n" +
	"DTEND:20240315T170000Z\r\n" +
	"TRANSP:TRANSPARENT\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:cancel\r\n" +
	" led\r\n" +
	"DTSTART:20240315T180000Z\r\n" +
	"DTEND:20240315T190000Z\r\n" +
	"STATUS:CANCELLED\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:no-start\r\n" +
	"DTEND:20240315T190000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	bogota := mustLoad(t, "America/Bogota")

	events, err := ParseICS(strings.NewReader(sampleICS), bogota)
	if err != nil {
		t.Fatalf("ParseICS returned error: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("len(events) = %d, want 6 (event without DTSTART is dropped)", len(events))
	}

	byUID := make(map[string]Event, len(events))
	for _, e := range events {
		byUID[e.UID] = e
	}

	tests := []struct {
		uid    string
		start  time.Time
		end    time.Time
		allDay bool
		blocks bool
	}{
		{"utc-event", utc(2024, 3, 15, 14, 0), utc(2024, 3, 15, 14, 30), false, true},
		// 2024-03-15 のニューヨークはEDT（UTC-4）
		{"tzid-event", utc(2024, 3, 15, 14, 0), utc(2024, 3, 15, 15, 0), false, true},
		// フローティングタイムはオーナーのタイムゾーン（ボゴタ、UTC-5）で解釈する
		{"floating-event", utc(2024, 3, 15, 17, 0), utc(2024, 3, 15, 18, 30), false, true},
		{"all-day", utc(2024, 3, 16, 5, 0), utc(2024, 3, 17, 5, 0), true, true},
		{"transparent", utc(2024, 3, 15, 16, 0), utc(2024, 3, 15, 17, 0), false, false},
		// 折り返された行は連結される
		{"cancelled", utc(2024, 3, 15, 18, 0), utc(2024, 3, 15, 19, 0), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			e, ok := byUID[tt.uid]
			if !ok {
				t.Fatalf("event %q not found", tt.uid)
			}
			if !e.Start.Equal(tt.start) {
				t.Errorf("Start = %v, want %v", e.Start.UTC(), tt.start)
			}
			if !e.End.Equal(tt.end) {
				t.Errorf("End = %v, want %v", e.End.UTC(), tt.end)
			}
			if e.AllDay != tt.allDay {
				t.Errorf("AllDay = %v, want %v", e.AllDay, tt.allDay)
			}
			if e.Blocks() != tt.blocks {
				t.Errorf("Blocks() = %v, want %v", e.Blocks(), tt.blocks)
			}
		})
	}
}

// TestParseICS_AlarmDoesNotOverrideStart はVALARM内のプロパティが予定に影響しないことを検証する。
func TestParseICS_AlarmDoesNotOverrideStart(t *testing.T) {
	events, err := ParseICS(strings.NewReader(sampleICS), time.UTC)
	if err != nil {
		t.Fatalf("ParseICS returned error: %v", err)
	}
	for _, e := range events {
		if e.UID == "tzid-event" && e.Start.Year() == 1970 {
			t.Error("VALARM DTSTART overrode the event start")
		}
	}
}

func TestParseICS_UnknownTZIDFallsBack(t *testing.T) {
	ics := wrapCalendar("BEGIN:VEVENT\nUID:x\nDTSTART;TZID=\"Pacific Standard Time\":20240315T090000\nDTEND;TZID=\"Pacific Standard Time\":20240315T100000\nEND:VEVENT\n")
	bogota := mustLoad(t, "America/Bogota")

	events, err := ParseICS(strings.NewReader(ics), bogota)
	if err != nil {
		t.Fatalf("ParseICS returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if !events[0].Start.Equal(utc(2024, 3, 15, 14, 0)) {
		t.Errorf("Start = %v, want 14:00Z", events[0].Start.UTC())
	}
}

func TestParseICS_InvalidDate(t *testing.T) {
	ics := wrapCalendar("BEGIN:VEVENT\nDTSTART:2024-03-15 09:00\nEND:VEVENT\n")
	if _, err := ParseICS(strings.NewReader(ics), time.UTC); err == nil {
		t.Fatal("expected error for malformed DTSTART, got nil")
	}
}

func TestParseICS_Empty(t *testing.T) {
	events, err := ParseICS(strings.NewReader(""), time.UTC)
	if err != nil {
		t.Fatalf("ParseICS returned error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("len(events) = %d, want 0", len(events))
	}
}

func TestParseICSDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"PT30M", 30 * time.Minute, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"P1D", 24 * time.Hour, false},
		{"P1DT2H", 26 * time.Hour, false},
		{"P2W", 14 * 24 * time.Hour, false},
		{"PT45S", 45 * time.Second, false},
		{"-PT15M", -15 * time.Minute, false},
		{"+PT5M", 5 * time.Minute, false},
		{"", 0, true},
		{"P", 0, true},
		{"PT", 0, true},
		{"30M", 0, true},
		{"PT1X", 0, true},
		{"P1H", 0, true},
		{"PT5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseICSDuration(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseICSDuration(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseICSDuration(%q) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseICSDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func wrapCalendar(body string) string {
	return "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//slotbook//test//EN\n" + body + "END:VCALENDAR\n"
}

func TestParseICS_RecurrenceProperties(t *testing.T) {
	ics := wrapCalendar("BEGIN:VEVENT\n" +
		"UID:weekly\n" +
		"DTSTART;TZID=America/New_York:20240304T090000\n" +
		"DTEND;TZID=America/New_York:20240304T100000\n" +
		"RRULE:FREQ=WEEKLY;BYDAY=MO\n" +
		"EXDATE;TZID=America/New_York:20240311T090000,20240318T090000\n" +
		"RDATE:20240320T130000Z\n" +
		"END:VEVENT\n" +
		"BEGIN:VEVENT\n" +
		"UID:weekly\n" +
		"RECURRENCE-ID;TZID=America/New_York:20240325T090000\n" +
		"DTSTART;TZID=America/New_York:20240325T140000\n" +
		"DTEND;TZID=America/New_York:20240325T150000\n" +
		"END:VEVENT\n")

	events, err := ParseICS(strings.NewReader(ics), time.UTC)
	if err != nil {
		t.Fatalf("ParseICS returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}

	master := events[0]
	if master.RRule != "FREQ=WEEKLY;BYDAY=MO" {
		t.Errorf("RRule = %q", master.RRule)
	}
	if !master.Recurring() {
		t.Error("master should be recurring")
	}
	// 2024-03-11 以降のニューヨークはEDT（UTC-4）
	wantEx := []time.Time{utc(2024, 3, 11, 13, 0), utc(2024, 3, 18, 13, 0)}
	if len(master.ExDates) != len(wantEx) {
		t.Fatalf("ExDates = %v, want %v", master.ExDates, wantEx)
	}
	for i, want := range wantEx {
		if !master.ExDates[i].Equal(want) {
			t.Errorf("ExDates[%d] = %v, want %v", i, master.ExDates[i].UTC(), want)
		}
	}
	if len(master.RDates) != 1 || !master.RDates[0].Equal(utc(2024, 3, 20, 13, 0)) {
		t.Errorf("RDates = %v", master.RDates)
	}

	override := events[1]
	if !override.RecurrenceID.Equal(utc(2024, 3, 25, 13, 0)) {
		t.Errorf("RecurrenceID = %v, want 13:00Z", override.RecurrenceID.UTC())
	}
	if override.Recurring() {
		t.Error("override should not be recurring")
	}
}

func TestParseICS_MissingCalendarWrapper(t *testing.T) {
	ics := "BEGIN:VEVENT\nDTSTART:20240315T090000Z\nEND:VEVENT\n"
	if _, err := ParseICS(strings.NewReader(ics), time.UTC); err == nil {
		t.Fatal("expected error for data without VCALENDAR, got nil")
	}
}
