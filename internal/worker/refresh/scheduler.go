// Package refresh はGoogleカレンダー連携のトークンを期限前に更新するバックグラウンド処理を提供する。
// スケジューラ、1件ごとのリフレッシャー、リトライ/バックオフ戦略を含む。
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/slotbook/internal/model"
)

// defaultBatchSize は1サイクルで処理する連携の最大件数。
const defaultBatchSize = 100

// DueLister はリフレッシュ対象の連携を取得するインターフェース。
type DueLister interface {
	ListDueForRefresh(ctx context.Context, expiresBefore time.Time, limit int) ([]*model.CalendarIntegration, error)
}

// IntegrationRefresher は1件の連携を更新するインターフェース。
type IntegrationRefresher interface {
	Refresh(ctx context.Context, integ *model.CalendarIntegration) error
}

// Scheduler はトークン更新のスケジューリングと並列制御を行う。
// 有効期限がleeway以内に迫った連携を取得し、
// semaphoreパターンで最大並列数を制御しながら更新する。
type Scheduler struct {
	repo           DueLister
	refresher      IntegrationRefresher
	logger         *slog.Logger
	leeway         time.Duration
	maxConcurrency int
	batchSize      int
	now            func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	repo DueLister,
	refresher IntegrationRefresher,
	logger *slog.Logger,
	leeway time.Duration,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		repo:           repo,
		refresher:      refresher,
		logger:         logger,
		leeway:         leeway,
		maxConcurrency: maxConcurrency,
		batchSize:      defaultBatchSize,
		now:            time.Now,
	}
}

// Name はジョブ名を返す。
func (s *Scheduler) Name() string {
	return "token_refresh"
}

// Run は更新対象の連携を1回取得し、並列で更新する。
func (s *Scheduler) Run(ctx context.Context) error {
	start := time.Now()

	integrations, err := s.repo.ListDueForRefresh(ctx, s.now().Add(s.leeway), s.batchSize)
	if err != nil {
		return err
	}

	if len(integrations) == 0 {
		s.logger.Debug("トークン更新対象の連携はありません")
		return nil
	}

	s.logger.Info("トークン更新サイクルを開始します",
		slog.Int("integration_count", len(integrations)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, integ := range integrations {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(c *model.CalendarIntegration) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.refresher.Refresh(ctx, c); err != nil {
				s.logger.Error("連携の更新処理に失敗しました",
					slog.String("user_id", c.UserID),
					slog.String("error", err.Error()),
				)
			}
		}(integ)
	}

	wg.Wait()

	s.logger.Info("トークン更新サイクルが完了しました",
		slog.Int("integration_count", len(integrations)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return ctx.Err()
}
