package refresh

import (
	"time"

	"github.com/hitoshi/slotbook/internal/model"
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// maxErrorMessageLen は保存するエラーメッセージの最大長。
	maxErrorMessageLen = 500
)

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyBackoff は一時的なリフレッシュ失敗を記録する。
// 連続エラー回数をインクリメントし、指数バックオフでnext_refresh_atを設定する。
func ApplyBackoff(integ *model.CalendarIntegration, reason string, now time.Time) {
	integ.ConsecutiveErrors++
	integ.Status = model.IntegrationStatusError
	integ.ErrorMessage = truncate(reason)
	next := now.Add(CalculateBackoff(integ.ConsecutiveErrors - 1))
	integ.NextRefreshAt = &next
	integ.UpdatedAt = now
}

// ApplyRevoked はリフレッシュトークンの失効を記録する。
// revokedの連携はユーザーが再連携するまでリフレッシュ対象にならない。
func ApplyRevoked(integ *model.CalendarIntegration, reason string, now time.Time) {
	integ.ConsecutiveErrors++
	integ.Status = model.IntegrationStatusRevoked
	integ.ErrorMessage = truncate(reason)
	integ.NextRefreshAt = nil
	integ.UpdatedAt = now
}

// ApplySuccess はリフレッシュ成功時に連携の状態をリセットする。
func ApplySuccess(integ *model.CalendarIntegration, now time.Time) {
	integ.ConsecutiveErrors = 0
	integ.Status = model.IntegrationStatusActive
	integ.ErrorMessage = ""
	integ.NextRefreshAt = nil
	integ.UpdatedAt = now
}

func truncate(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	return s[:maxErrorMessageLen]
}
