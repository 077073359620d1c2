package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hitoshi/slotbook/internal/availability"
	"github.com/hitoshi/slotbook/internal/model"
)

// primaryCalendarID はユーザーのメインカレンダーを指すID。
const primaryCalendarID = "primary"

// GoogleBusySource はGoogle CalendarのfreeBusy APIから予定を取得する。
type GoogleBusySource struct {
	oauth    *oauth2.Config
	store    TokenStore
	timeout  time.Duration
	endpoint string
}

// GoogleBusySourceOption はGoogleBusySourceのオプション。
type GoogleBusySourceOption func(*GoogleBusySource)

// WithEndpoint はCalendar APIのエンドポイントを差し替える（テスト用）。
func WithEndpoint(endpoint string) GoogleBusySourceOption {
	return func(g *GoogleBusySource) {
		g.endpoint = endpoint
	}
}

// NewGoogleBusySource はGoogleBusySourceを生成する。
func NewGoogleBusySource(cfg *oauth2.Config, store TokenStore, timeout time.Duration, opts ...GoogleBusySourceOption) *GoogleBusySource {
	g := &GoogleBusySource{
		oauth:   cfg,
		store:   store,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Busy は[from, to)の範囲でメインカレンダーの予定を返す。
// トークンが期限切れ間近の場合はリフレッシュしてから問い合わせる。
func (g *GoogleBusySource) Busy(ctx context.Context, integ *model.CalendarIntegration, from, to time.Time) ([]availability.BusyInterval, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	ts := NewTokenSource(ctx, g.oauth, g.store, integ)
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.UTC().Format(time.RFC3339),
		TimeMax: to.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: primaryCalendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	cal, ok := resp.Calendars[primaryCalendarID]
	if !ok {
		return []availability.BusyInterval{}, nil
	}
	if len(cal.Errors) > 0 {
		reasons := make([]string, 0, len(cal.Errors))
		for _, e := range cal.Errors {
			reasons = append(reasons, e.Reason)
		}
		return nil, fmt.Errorf("freebusy returned errors: %s", strings.Join(reasons, ", "))
	}

	busy := make([]availability.BusyInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := availability.ParseInstant(p.Start, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid busy start %q: %w", p.Start, err)
		}
		end, err := availability.ParseInstant(p.End, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid busy end %q: %w", p.End, err)
		}
		busy = append(busy, availability.BusyInterval{Start: start, End: end})
	}
	return busy, nil
}
