package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/slotbook/internal/availability"
)

// ErrFeedTooLarge はICSフィードが上限サイズを超えた場合に返される。
var ErrFeedTooLarge = errors.New("calendar: ics feed too large")

// ICSBusySource は公開ICSフィードから予定を取得する。
// HTTPクライアントにはSSRF防止機能付きのものを渡すこと。
type ICSBusySource struct {
	client  *http.Client
	maxSize int64
}

// NewICSBusySource はICSBusySourceを生成する。
func NewICSBusySource(client *http.Client, maxSize int64) *ICSBusySource {
	return &ICSBusySource{client: client, maxSize: maxSize}
}

// Busy はフィードを取得し、[from, to)と重なる予定を返す。
// 繰り返し予定は各回に展開する。透過（TRANSP:TRANSPARENT）とキャンセル済みの予定は含めない。
// 差し替え（RECURRENCE-ID）された回は元の規則からは生成せず、差し替え側の内容で扱う。
func (s *ICSBusySource) Busy(ctx context.Context, feedURL string, loc *time.Location, from, to time.Time) ([]availability.BusyInterval, error) {
	body, err := s.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	events, err := ParseICS(bytes.NewReader(body), loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ics feed: %w", err)
	}

	// キャンセルされた差し替えも元の回を消すため、Blocksで絞る前に集める
	overridden := make(map[string][]time.Time)
	for _, e := range events {
		if !e.RecurrenceID.IsZero() {
			overridden[e.UID] = append(overridden[e.UID], e.RecurrenceID)
		}
	}

	busy := make([]availability.BusyInterval, 0, len(events))
	for _, e := range events {
		if !e.Blocks() {
			continue
		}
		var skip []time.Time
		if e.RecurrenceID.IsZero() {
			skip = overridden[e.UID]
		}
		occ, err := e.Occurrences(from, to, skip)
		if err != nil {
			return nil, err
		}
		busy = append(busy, occ...)
	}
	return busy, nil
}

func (s *ICSBusySource) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.1")
	req.Header.Set("User-Agent", "slotbook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching ics feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics feed returned status %d", resp.StatusCode)
	}

	// 上限+1バイトまで読み、超過を検出する
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading ics feed: %w", err)
	}
	if int64(len(body)) > s.maxSize {
		return nil, ErrFeedTooLarge
	}
	return body, nil
}
