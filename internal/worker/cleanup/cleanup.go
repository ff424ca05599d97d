// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// メモリ上のFacadeを破棄し、永続化済みの期限切れレコードを削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// defaultInterval は実行間隔のデフォルト値。
const defaultInterval = 10 * time.Minute

// Sweeper は期限切れセッションを削除するインターフェース。
// session.Manager が実装する。
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// SessionSweepJob は期限切れセッションの削除ジョブ。
// 冪等な削除処理のため、何度実行しても結果は変わらない。
type SessionSweepJob struct {
	sweeper  Sweeper
	logger   *slog.Logger
	Interval time.Duration // 実行間隔（デフォルト: 10分）
}

// NewSessionSweepJob は新しいSessionSweepJobを生成する。
func NewSessionSweepJob(sweeper Sweeper, logger *slog.Logger) *SessionSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweepJob{
		sweeper:  sweeper,
		logger:   logger,
		Interval: defaultInterval,
	}
}

// Run は期限切れセッションを1回削除する。
// 削除対象がない場合でもエラーにならない。
func (j *SessionSweepJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sweeper.Sweep(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// Start はInterval間隔でRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *SessionSweepJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
