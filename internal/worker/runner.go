// Package worker は定期ジョブをcron式で実行するランナーを提供する。
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job は定期実行されるジョブ。
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner はrobfig/cronの上でジョブを実行する。
// 同じジョブの前回実行が終わっていない場合はスキップし、panicは回復してログに記録する。
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
	// ctx はジョブに渡すコンテキスト。Startで設定される。
	ctx context.Context
}

// NewRunner はRunnerを生成する。
func NewRunner(logger *slog.Logger) *Runner {
	cl := cronLogger{logger: logger}
	return &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Every はジョブを一定間隔で実行するよう登録する。
func (r *Runner) Every(interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", job.Name())
	}
	return r.Schedule("@every "+interval.String(), job)
}

// Schedule はジョブをcron式（"0 3 * * *"、"@daily" など）で登録する。
func (r *Runner) Schedule(spec string, job Job) error {
	if _, err := r.cron.AddFunc(spec, func() { r.runJob(job) }); err != nil {
		return fmt.Errorf("%s: invalid schedule %q: %w", job.Name(), spec, err)
	}
	r.logger.Info("ジョブを登録しました",
		slog.String("job", job.Name()),
		slog.String("schedule", spec),
	)
	return nil
}

// Start はスケジューラを起動し、ctxがキャンセルされるまでブロックする。
// 停止時は実行中のジョブの完了を待つ。
func (r *Runner) Start(ctx context.Context) {
	r.ctx = ctx
	r.cron.Start()
	r.logger.Info("ワーカーを開始しました", slog.Int("jobs", len(r.cron.Entries())))

	<-ctx.Done()

	stopped := r.cron.Stop()
	<-stopped.Done()
	r.logger.Info("ワーカーを停止しました")
}

// RunNow はジョブを即時に1回実行する。起動直後の初回実行に使う。
func (r *Runner) RunNow(ctx context.Context, job Job) {
	r.run(ctx, job)
}

func (r *Runner) runJob(job Job) {
	r.run(r.ctx, job)
}

func (r *Runner) run(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("ジョブの実行に失敗しました",
			slog.String("job", job.Name()),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Debug("ジョブが完了しました",
		slog.String("job", job.Name()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

// cronLogger はcron.Loggerをslogに接続するアダプター。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
