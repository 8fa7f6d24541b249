// Package storyapi はストーリー共有APIのクライアントを提供する。
// ネットワークに触れる唯一のコンポーネントで、APIのペイロードをmodel.Story/model.Sessionに変換し、
// 失敗をmodel.APIErrorの分類に写像する。
package storyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/snoozeclient/internal/metrics"
	"github.com/hitoshi/snoozeclient/internal/model"
)

const (
	// DefaultBaseURL はストーリー共有APIの既定のオリジン。
	DefaultBaseURL = "https://hack-or-snooze-v3.herokuapp.com"
	// DefaultTimeout は1回のAPI呼び出しのタイムアウト。
	DefaultTimeout = 5 * time.Second
	// maxResponseSize はレスポンスボディの最大サイズ（5MB）。
	maxResponseSize = 5 << 20
)

// Config はClientの設定パラメータ。
type Config struct {
	// BaseURL はAPIのオリジン（末尾スラッシュなし）。空の場合はDefaultBaseURL。
	BaseURL string
	// Timeout は1回の呼び出しのタイムアウト。0の場合はDefaultTimeout。
	Timeout time.Duration
	// Limiter は送信前に待機するレートリミッター。nilの場合は制限しない。
	Limiter *rate.Limiter
	// Metrics は呼び出し結果の記録先。nilの場合は記録しない。
	Metrics metrics.MetricsCollector
}

// Client はストーリー共有APIのクライアント。
// 複数のgoroutineから同時に使用できる。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var collector metrics.MetricsCollector = metrics.Nop{}
	if cfg.Metrics != nil {
		collector = cfg.Metrics
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		timeout:    timeout,
		limiter:    cfg.Limiter,
		metrics:    collector,
	}
}

// request は1回のAPI呼び出しの内容を表す。
type request struct {
	operation string
	method    string
	path      string // エスケープ済みのパス
	query     url.Values
	body      any
	storyID   string // 404をストーリー未検出として扱う場合に指定する
}

// do はリクエストを送信し、2xxのレスポンスボディをoutにデコードする。
// outがnilの場合はボディを検証しない。
func (c *Client) do(ctx context.Context, req request, out any) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = model.CategoryOf(err)
		}
		c.metrics.RecordRequest(req.operation, outcome)
		c.metrics.RecordLatency(req.operation, time.Since(start))
		c.logResult(req, status, time.Since(start), err)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.NewNetworkError("レートリミッターの待機が中断されました", err)
		}
	}

	reqURL := c.baseURL + req.path
	if len(req.query) > 0 {
		reqURL += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", "snoozeclient/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.NewNetworkError(fmt.Sprintf("%s %s", req.method, req.path), withoutQuery(err, c.baseURL+req.path))
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return model.NewNetworkError("レスポンスボディの読み取りに失敗しました", err)
	}

	if status < 200 || status > 299 {
		return errorFromStatus(status, respBody, req.storyID)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return model.NewProtocolError("レスポンスJSONのパースに失敗しました", err)
	}
	return nil
}

// withoutQuery は*url.Errorが保持するURLからクエリを取り除く。
// 再ログインのトークンはクエリで送るため、エラーメッセージ経由でログや画面に出さない。
func withoutQuery(err error, rawURL string) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	return &url.Error{Op: urlErr.Op, URL: rawURL, Err: urlErr.Err}
}

// logResult は呼び出し結果をログに出力する。
// 入力起因の失敗（認証、検証、未検出、権限）はWARN、通信・形式の失敗はERRORとする。
func (c *Client) logResult(req request, status int, duration time.Duration, err error) {
	attrs := []any{
		slog.String("operation", req.operation),
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.Int("http_status", status),
		slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
	}
	if req.storyID != "" {
		attrs = append(attrs, slog.String("story_id", req.storyID))
	}

	if err == nil {
		c.logger.Debug("API呼び出しが完了しました", attrs...)
		return
	}

	attrs = append(attrs, slog.String("error", err.Error()))
	switch model.CategoryOf(err) {
	case model.CategoryNetwork, model.CategoryProtocol, "":
		c.logger.Error("API呼び出しに失敗しました", attrs...)
	default:
		c.logger.Warn("APIがリクエストを拒否しました", attrs...)
	}
}

// errorFromStatus はエラーステータスのレスポンスをmodel.APIErrorに変換する。
func errorFromStatus(status int, body []byte, storyID string) error {
	message := serverMessage(body)

	var apiErr *model.APIError
	switch {
	case status == http.StatusUnauthorized:
		apiErr = model.NewAuthError(message)
	case status == http.StatusForbidden:
		apiErr = model.NewForbiddenError(message)
	case status == http.StatusNotFound:
		if storyID != "" {
			apiErr = model.NewStoryNotFoundError(storyID)
		} else {
			apiErr = model.NewNotFoundError(message)
		}
	case status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		if message == "" {
			message = http.StatusText(status)
		}
		apiErr = model.NewValidationError(message)
	case status >= 500:
		apiErr = model.NewNetworkError(fmt.Sprintf("サーバーがステータス %d を返しました", status), nil)
	default:
		apiErr = model.NewProtocolError(fmt.Sprintf("想定外のステータス %d", status), nil)
	}
	apiErr.Status = status
	return apiErr
}

// serverMessage はエラーレスポンスからサーバーのメッセージを取り出す。
// messageは文字列または文字列の配列で返される。取り出せない場合は空文字列を返す。
func serverMessage(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return ""
	}

	raw := envelope.Error.Message
	if len(raw) == 0 {
		return envelope.Error.Title
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return strings.Join(many, "; ")
	}
	return envelope.Error.Title
}

// requireSession は認証が必要な操作の前にSessionを検証する。
func requireSession(session model.Session) error {
	if !session.Valid() {
		return model.NewAuthError("ログインが必要です。")
	}
	return nil
}
