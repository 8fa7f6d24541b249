// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はストーリーURLとAPI通信で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// TransportGuard はAPI通信用のHTTPクライアントを生成する。
type TransportGuard struct {
	safe bool
}

// NewTransportGuard はTransportGuardを生成する。
// safeがtrueの場合、safeurlによりプライベートIP、ループバック、リンクローカル、
// メタデータIPへの接続をDialerレベルでブロックするクライアントを返す。
// ローカルのフェイクAPIサーバーに接続する開発時はfalseを指定する。
func NewTransportGuard(safe bool) *TransportGuard {
	return &TransportGuard{safe: safe}
}

// Safe はSSRF防止機能付きクライアントを生成するかどうかを返す。
func (g *TransportGuard) Safe() bool {
	return g.safe
}

// NewClient はtimeoutを全体のタイムアウトとするHTTPクライアントを生成する。
// safeurlのクライアントはhttps(443)とhttp(80)のみ許可する。
func (g *TransportGuard) NewClient(timeout time.Duration) *http.Client {
	if !g.safe {
		return &http.Client{Timeout: timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateURL はストーリーとして投稿するURLを送信前に検証する。
// DNS解決を伴わない静的な検証で、スキームがhttp/httpsであることとホストが空でないことを確認する。
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}

	if parsed.Hostname() == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	return nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}
