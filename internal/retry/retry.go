// Package retry はCLIの読み取り操作に適用する再試行方針を提供する。
// クライアントのコアは自動で再試行しないため、再試行するかどうかは呼び出し側がここで決める。
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/snoozeclient/internal/model"
)

// Decision はエラーに基づく再試行の判断。
type Decision int

const (
	// DecisionDone は成功したため再試行しない。
	DecisionDone Decision = iota
	// DecisionStop は再試行しても結果が変わらないエラー（認証、検証、未検出、形式不正など）。
	DecisionStop
	// DecisionBackoff は待機後に再試行するエラー（通信失敗、5xx）。
	DecisionBackoff
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 200 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 2 * time.Second
)

// Classify はエラーを再試行の判断に分類する。NetworkErrorのみ再試行する。
func Classify(err error) Decision {
	switch {
	case err == nil:
		return DecisionDone
	case model.IsNetwork(err):
		return DecisionBackoff
	default:
		return DecisionStop
	}
}

// CalculateBackoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// 初回200ms、2倍ずつ増加、最大2秒。
func CalculateBackoff(retries int) time.Duration {
	delay := initialBackoff
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// Policy は再試行の設定。
type Policy struct {
	// MaxRetries は最初の試行に加えて再試行する最大回数。0の場合は再試行しない。
	MaxRetries int
	// Logger は再試行のログ出力先。nilの場合はslog.Default()。
	Logger *slog.Logger
	// Sleep は待機関数。nilの場合はctxを考慮したタイマー待機。テストで差し替える。
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do はfnを実行し、NetworkErrorの場合はMaxRetries回まで待機して再試行する。
// 待機中にctxがキャンセルされた場合は最後のエラーを返す。
func (p Policy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if Classify(err) != DecisionBackoff || attempt >= p.MaxRetries {
			return err
		}

		delay := CalculateBackoff(attempt)
		logger.Info("通信に失敗したため再試行します",
			slog.String("operation", operation),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
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
