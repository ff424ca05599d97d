// Package profile はIdentityから役割とプロフィール属性を解決する。
// 登録直後はバックエンドのプロフィール書き込みが反映されていないことがあるため、
// プロフィール未作成の応答に限って固定間隔で再試行する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/shelterlink/internal/backend"
	"github.com/hitoshi/shelterlink/internal/model"
)

const (
	// DefaultAttempts はプロフィール取得の最大試行回数。
	DefaultAttempts = 3
	// DefaultDelay は試行間の待機時間。
	DefaultDelay = 1500 * time.Millisecond
)

// Fetcher はバックエンドからプロフィールを取得するインターフェース。
type Fetcher interface {
	GetUserInfo(ctx context.Context, uid string) (*backend.UserInfo, error)
}

// Recorder はプロフィール解決の結果を記録するインターフェース。
type Recorder interface {
	RecordProfileResolution(outcome string, attempts int)
}

type noopRecorder struct{}

func (noopRecorder) RecordProfileResolution(string, int) {}

// Resolver はプロフィール解決を行う。
type Resolver struct {
	fetcher  Fetcher
	logger   *slog.Logger
	recorder Recorder
	attempts int
	delay    time.Duration
	// sleep はテストで差し替えられる待機関数。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResolver は新しいResolverを生成する。
// attemptsが1未満、delayが負の場合はデフォルト値を使う。
func NewResolver(fetcher Fetcher, logger *slog.Logger, attempts int, delay time.Duration) *Resolver {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher:  fetcher,
		logger:   logger,
		recorder: noopRecorder{},
		attempts: attempts,
		delay:    delay,
		sleep:    sleepContext,
	}
}

// SetRecorder は結果の記録先を設定する。
func (r *Resolver) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = noopRecorder{}
	}
	r.recorder = rec
}

// Resolve はuidのプロフィールを取得する。
// プロフィール未作成の場合のみ再試行し、すべて失敗した場合は model.ErrProfileNotFound を返す。
// それ以外のエラーは再試行せずそのまま返す。
func (r *Resolver) Resolve(ctx context.Context, uid string) (*model.Profile, error) {
	if uid == "" {
		return nil, model.NewValidationError("uid is required")
	}

	for attempt := 1; attempt <= r.attempts; attempt++ {
		info, err := r.fetcher.GetUserInfo(ctx, uid)
		if err == nil {
			r.recorder.RecordProfileResolution("resolved", attempt)
			return &model.Profile{
				UID:        uid,
				Role:       info.Role,
				Attributes: info.Attributes,
			}, nil
		}

		if !backend.IsNotFound(err) {
			r.recorder.RecordProfileResolution("error", attempt)
			return nil, fmt.Errorf("resolve profile %s: %w", uid, err)
		}

		r.logger.Warn("プロフィールがまだ作成されていません",
			slog.String("uid", uid),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.attempts),
		)

		if attempt == r.attempts {
			break
		}
		if err := r.sleep(ctx, r.delay); err != nil {
			r.recorder.RecordProfileResolution("canceled", attempt)
			return nil, fmt.Errorf("resolve profile %s: %w", uid, err)
		}
	}

	r.recorder.RecordProfileResolution("not_found", r.attempts)
	r.logger.Error("プロフィールの解決に失敗しました",
		slog.String("uid", uid),
		slog.Int("attempts", r.attempts),
	)
	return nil, fmt.Errorf("resolve profile %s after %d attempts: %w", uid, r.attempts, model.ErrProfileNotFound)
}

// IsNotFound はerrがプロフィール未作成によるものかを返す。
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrProfileNotFound)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
