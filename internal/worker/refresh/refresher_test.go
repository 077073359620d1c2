package refresh

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/slotbook/internal/model"
)

// --- モック定義 ---

type mockTokenSource struct {
	refreshFn func(ctx context.Context, integ *model.CalendarIntegration) (*oauth2.Token, error)
}

func (m *mockTokenSource) Refresh(ctx context.Context, integ *model.CalendarIntegration) (*oauth2.Token, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, integ)
	}
	return &oauth2.Token{AccessToken: "new"}, nil
}

type tokenUpdate struct {
	userID       string
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

type mockIntegrationStore struct {
	tokenUpdates  []tokenUpdate
	stateUpdates  []model.CalendarIntegration
	updateTokenFn func() error
	updateStateFn func() error
}

func (m *mockIntegrationStore) UpdateToken(ctx context.Context, userID, accessToken, refreshToken, tokenType string, expiresAt time.Time) error {
	m.tokenUpdates = append(m.tokenUpdates, tokenUpdate{userID, accessToken, refreshToken, expiresAt})
	if m.updateTokenFn != nil {
		return m.updateTokenFn()
	}
	return nil
}

func (m *mockIntegrationStore) UpdateRefreshState(ctx context.Context, integ *model.CalendarIntegration) error {
	m.stateUpdates = append(m.stateUpdates, *integ)
	if m.updateStateFn != nil {
		return m.updateStateFn()
	}
	return nil
}

// recordingMetrics はRecordTokenRefreshの呼び出しを記録するMetricsCollector。
type recordingMetrics struct {
	refreshes []string
}

func (m *recordingMetrics) RecordSlotQuery(string, int, time.Duration) {}
func (m *recordingMetrics) RecordBusyFetch(string, string)             {}
func (m *recordingMetrics) RecordTokenRefresh(result string) {
	m.refreshes = append(m.refreshes, result)
}
func (m *recordingMetrics) RecordHTTPStatus(int)        {}
func (m *recordingMetrics) RecordCleanup(string, int64) {}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

var refreshNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRefresher(tokens TokenSource, store IntegrationStore, mc *recordingMetrics) *Refresher {
	r := NewRefresher(tokens, store, newTestLogger(&bytes.Buffer{}), mc)
	r.now = func() time.Time { return refreshNow }
	return r
}

// --- テスト ---

func TestRefresher_Success_SavesTokenAndResetsState(t *testing.T) {
	expiry := refreshNow.Add(time.Hour)
	tokens := &mockTokenSource{
		refreshFn: func(ctx context.Context, integ *model.CalendarIntegration) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "access-2", RefreshToken: "refresh-2", TokenType: "Bearer", Expiry: expiry}, nil
		},
	}
	store := &mockIntegrationStore{}
	mc := &recordingMetrics{}
	r := newTestRefresher(tokens, store, mc)

	integ := &model.CalendarIntegration{
		UserID:            "u1",
		RefreshToken:      "refresh-1",
		Status:            model.IntegrationStatusError,
		ConsecutiveErrors: 3,
	}
	if err := r.Refresh(context.Background(), integ); err != nil {
		t.Fatalf("Refresh() がエラーを返した: %v", err)
	}

	if len(store.tokenUpdates) != 1 {
		t.Fatalf("UpdateToken calls = %d, want 1", len(store.tokenUpdates))
	}
	got := store.tokenUpdates[0]
	if got.userID != "u1" || got.accessToken != "access-2" || got.refreshToken != "refresh-2" || !got.expiresAt.Equal(expiry) {
		t.Errorf("token update = %+v", got)
	}

	if len(store.stateUpdates) != 1 {
		t.Fatalf("UpdateRefreshState calls = %d, want 1", len(store.stateUpdates))
	}
	state := store.stateUpdates[0]
	if state.Status != model.IntegrationStatusActive || state.ConsecutiveErrors != 0 {
		t.Errorf("state = %+v", state)
	}

	if len(mc.refreshes) != 1 || mc.refreshes[0] != "success" {
		t.Errorf("metrics = %v, want [success]", mc.refreshes)
	}
}

func TestRefresher_Failures(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    model.IntegrationStatus
		wantNextSet   bool
		wantMetric    string
		wantNextAfter time.Duration
	}{
		{
			name:          "一時的な失敗はバックオフ",
			err:           errors.New("connection reset"),
			wantStatus:    model.IntegrationStatusError,
			wantNextSet:   true,
			wantMetric:    "error",
			wantNextAfter: 30 * time.Minute,
		},
		{
			name:          "サーバーエラーもバックオフ",
			err:           &oauth2.RetrieveError{ErrorCode: "server_error"},
			wantStatus:    model.IntegrationStatusError,
			wantNextSet:   true,
			wantMetric:    "error",
			wantNextAfter: 30 * time.Minute,
		},
		{
			name:       "invalid_grantは失効",
			err:        &oauth2.RetrieveError{ErrorCode: "invalid_grant"},
			wantStatus: model.IntegrationStatusRevoked,
			wantMetric: "revoked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &mockTokenSource{
				refreshFn: func(ctx context.Context, integ *model.CalendarIntegration) (*oauth2.Token, error) {
					return nil, tt.err
				},
			}
			store := &mockIntegrationStore{}
			mc := &recordingMetrics{}
			r := newTestRefresher(tokens, store, mc)

			integ := &model.CalendarIntegration{UserID: "u1", RefreshToken: "r", Status: model.IntegrationStatusActive}
			if err := r.Refresh(context.Background(), integ); err != nil {
				t.Fatalf("状態を保存できた場合は nil を返すべき: %v", err)
			}

			if len(store.tokenUpdates) != 0 {
				t.Error("失敗時にトークンを保存してはならない")
			}
			if len(store.stateUpdates) != 1 {
				t.Fatalf("UpdateRefreshState calls = %d, want 1", len(store.stateUpdates))
			}
			state := store.stateUpdates[0]
			if state.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", state.Status, tt.wantStatus)
			}
			if (state.NextRefreshAt != nil) != tt.wantNextSet {
				t.Errorf("NextRefreshAt = %v, wantSet %v", state.NextRefreshAt, tt.wantNextSet)
			}
			if tt.wantNextSet && !state.NextRefreshAt.Equal(refreshNow.Add(tt.wantNextAfter)) {
				t.Errorf("NextRefreshAt = %v, want %v", state.NextRefreshAt, refreshNow.Add(tt.wantNextAfter))
			}
			if len(mc.refreshes) != 1 || mc.refreshes[0] != tt.wantMetric {
				t.Errorf("metrics = %v, want [%s]", mc.refreshes, tt.wantMetric)
			}
		})
	}
}

func TestRefresher_UpdateTokenFailureReturnsError(t *testing.T) {
	store := &mockIntegrationStore{
		updateTokenFn: func() error { return errors.New("db down") },
	}
	mc := &recordingMetrics{}
	r := newTestRefresher(&mockTokenSource{}, store, mc)

	err := r.Refresh(context.Background(), &model.CalendarIntegration{UserID: "u1", RefreshToken: "r"})
	if err == nil {
		t.Fatal("トークン保存失敗時はエラーを返すべき")
	}
	if len(store.stateUpdates) != 0 {
		t.Error("トークン保存に失敗した場合は状態をリセットしない")
	}
	if len(mc.refreshes) != 1 || mc.refreshes[0] != "error" {
		t.Errorf("metrics = %v, want [error]", mc.refreshes)
	}
}

func TestRefresher_StateSaveFailureReturnsError(t *testing.T) {
	tokens := &mockTokenSource{
		refreshFn: func(ctx context.Context, integ *model.CalendarIntegration) (*oauth2.Token, error) {
			return nil, errors.New("timeout")
		},
	}
	store := &mockIntegrationStore{
		updateStateFn: func() error { return errors.New("db down") },
	}
	r := newTestRefresher(tokens, store, &recordingMetrics{})

	if err := r.Refresh(context.Background(), &model.CalendarIntegration{UserID: "u1", RefreshToken: "r"}); err == nil {
		t.Fatal("状態保存失敗時はエラーを返すべき")
	}
}
