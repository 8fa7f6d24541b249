// Package app はsnooze CLIのコマンド定義と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/snoozeclient/internal/client"
	"github.com/hitoshi/snoozeclient/internal/config"
	"github.com/hitoshi/snoozeclient/internal/credstore"
	"github.com/hitoshi/snoozeclient/internal/database"
	"github.com/hitoshi/snoozeclient/internal/logger"
	"github.com/hitoshi/snoozeclient/internal/metrics"
	"github.com/hitoshi/snoozeclient/internal/model"
	"github.com/hitoshi/snoozeclient/internal/retry"
	"github.com/hitoshi/snoozeclient/internal/security"
	"github.com/hitoshi/snoozeclient/internal/storyapi"
)

// Init は環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// logWriterがnilの場合はos.Stderrに出力する。verboseの場合はDEBUGレベルにする。
func Init(logWriter io.Writer, verbose bool) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = slog.LevelDebug
	}
	return cfg, logger.SetupDefault(logWriter, level), nil
}

// Run はCLIのエントリーポイント。argsにはos.Args[1:]を渡す。
// コマンドの出力はwに、ログはos.Stderrに書き出す。
func Run(w io.Writer, args []string) error {
	return run(w, nil, args)
}

// Main はRunを実行し、失敗した場合はエラーと対処方法をstderrに書き出して終了コードを返す。
func Main(args []string) int {
	err := Run(os.Stdout, args)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Action != "" {
		fmt.Fprintln(os.Stderr, apiErr.Action)
	}
	return ExitCode(err)
}

func run(w, logWriter io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, c := newRootCommand(w, logWriter)
	defer c.close()

	root.SetArgs(args)
	root.SetOut(w)
	if err := root.ExecuteContext(ctx); err != nil {
		if isCobraUsageError(err) {
			return &usageError{err}
		}
		return err
	}
	return nil
}

// isCobraUsageError は未知のサブコマンドなどcobraが返す引数の誤りを判定する。
func isCobraUsageError(err error) bool {
	var usage *usageError
	if errors.As(err, &usage) {
		return false
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return false
	}
	return strings.HasPrefix(err.Error(), "unknown command") ||
		strings.HasPrefix(err.Error(), "unknown flag") ||
		strings.HasPrefix(err.Error(), "unknown shorthand flag")
}

// runtime はサブコマンドが共有する依存関係。
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	creds     *credstore.SQLStore
	api       *storyapi.Client
	client    *client.Client
	sanitizer *security.TextSanitizer
	retry     retry.Policy
}

// newRuntime はConfigから依存関係を組み立てる。
// 認証情報ストアを開けない場合はログに記録し、保存・復元なしで続行する。
func newRuntime(cfg *config.Config, log *slog.Logger) *runtime {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	guard := security.NewTransportGuard(cfg.SafeTransport)
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	api := storyapi.NewClient(guard.NewClient(cfg.HTTPTimeout), log, storyapi.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.HTTPTimeout,
		Limiter: limiter,
		Metrics: collector,
	})

	rt := &runtime{
		cfg:       cfg,
		logger:    log,
		registry:  registry,
		collector: collector,
		api:       api,
		sanitizer: security.NewTextSanitizer(),
		retry:     retry.Policy{MaxRetries: cfg.ReadRetries, Logger: log},
	}

	var store credstore.CredentialStore
	creds, err := credstore.Open(cfg.CredentialStore)
	if err != nil {
		log.Warn("認証情報ストアを開けないため、ログイン状態を保存しません",
			slog.String("dialect", string(database.DialectOf(cfg.CredentialStore))),
			slog.String("error", err.Error()),
		)
	} else {
		rt.creds = creds
		store = creds
	}

	rt.client = client.New(api, log, client.Config{Credentials: store, Metrics: collector})

	log.Debug("クライアントを初期化しました",
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.Bool("safe_transport", guard.Safe()),
		slog.Float64("rate_limit", cfg.RateLimit),
	)
	return rt
}

// close は認証情報ストアを閉じ、設定されていればメトリクスをファイルに書き出す。
func (rt *runtime) close() {
	if rt.creds != nil {
		if err := rt.creds.Close(); err != nil {
			rt.logger.Warn("認証情報ストアのクローズに失敗しました", slog.String("error", err.Error()))
		}
	}
	if rt.cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(rt.cfg.MetricsFile, rt.registry); err != nil {
		rt.logger.Warn("メトリクスの書き出しに失敗しました",
			slog.String("path", rt.cfg.MetricsFile),
			slog.String("error", err.Error()),
		)
	}
}

// requireSession は保存済みの認証情報でセッションを復元する。復元できない場合はAuthErrorを返す。
func (rt *runtime) requireSession(ctx context.Context) (model.Session, error) {
	if session, ok := rt.client.Session(); ok {
		return session, nil
	}
	if _, err := rt.client.Restore(ctx); err != nil {
		// 通信失敗の場合は認証情報が残っているため、未ログインではなく通信エラーとして返す
		if model.IsNetwork(err) {
			return model.Session{}, err
		}
		rt.logger.Warn("保存済みセッションの復元に失敗しました", slog.String("error", err.Error()))
	}
	session, ok := rt.client.Session()
	if !ok {
		return model.Session{}, model.NewAuthError("ログインしていません。snooze login を実行してください。")
	}
	return session, nil
}
