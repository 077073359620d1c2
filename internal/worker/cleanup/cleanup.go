// Package cleanup は不要データの自動削除ジョブを提供する。
// 期限切れのセッションと、保持期間（デフォルト180日）を超えて無効化されたままの
// イベント種別を定期バッチで削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/slotbook/internal/metrics"
)

// SessionPurger は期限切れセッションを削除するインターフェース。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// EventTypePurger は無効化済みイベント種別を削除するインターフェース。
type EventTypePurger interface {
	DeleteDeactivatedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は不要データの自動削除ジョブ。
// 冪等な削除処理のみを行うため、何度実行しても結果は変わらない。
type CleanupJob struct {
	sessions      SessionPurger
	eventTypes    EventTypePurger
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	now           func() time.Time
	RetentionDays int // 無効化されたイベント種別の保持日数（デフォルト: 180）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は180日。mcがnilの場合はメトリクスを記録しない。
func NewCleanupJob(sessions SessionPurger, eventTypes EventTypePurger, logger *slog.Logger, mc metrics.MetricsCollector) *CleanupJob {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &CleanupJob{
		sessions:      sessions,
		eventTypes:    eventTypes,
		logger:        logger,
		metrics:       mc,
		now:           time.Now,
		RetentionDays: 180,
	}
}

// Name はジョブ名を返す。
func (j *CleanupJob) Name() string {
	return "cleanup"
}

// Run は期限切れセッションと保持期間を超過したイベント種別を削除する。
// 片方が失敗してももう片方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var errs []error

	sessions, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err))
	} else {
		j.metrics.RecordCleanup("sessions", sessions)
	}

	cutoff := j.now().AddDate(0, 0, -j.RetentionDays)
	eventTypes, err := j.eventTypes.DeleteDeactivatedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("無効化済みイベント種別の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		errs = append(errs, fmt.Errorf("イベント種別クリーンアップの実行に失敗: %w", err))
	} else {
		j.metrics.RecordCleanup("event_types", eventTypes)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_event_types", eventTypes),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
