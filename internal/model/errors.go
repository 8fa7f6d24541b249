// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// Categoryで失敗の種別（ネットワーク、認証など）を判別し、呼び出し元が再試行や再ログインを判断する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（サーバーのメッセージがあればそのまま）
	Category string // カテゴリ: network, protocol, auth, validation, not_found, forbidden, conflict
	Action   string // ユーザー向け対処方法
	Status   int    // HTTPステータス（レスポンスを受け取れなかった場合は0）
	Err      error  // 下位のエラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は下位のエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// エラーカテゴリ
const (
	CategoryNetwork    = "network"
	CategoryProtocol   = "protocol"
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryForbidden  = "forbidden"
	CategoryConflict   = "conflict"
)

// 定義済みエラーコード
const (
	ErrCodeNetwork       = "NETWORK_ERROR"
	ErrCodeProtocol      = "PROTOCOL_ERROR"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInvalidURL    = "INVALID_URL"
	ErrCodeStoryNotFound = "STORY_NOT_FOUND"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeTogglePending = "TOGGLE_PENDING"
)

// NewNetworkError は通信失敗エラーを生成する。呼び出し元での再試行が可能。
func NewNetworkError(reason string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  fmt.Sprintf("APIとの通信に失敗しました: %s", reason),
		Category: CategoryNetwork,
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewProtocolError は想定外のレスポンス形式のエラーを生成する。
// APIの仕様変更を示すため再試行しても解決しない。
func NewProtocolError(reason string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeProtocol,
		Message:  fmt.Sprintf("APIのレスポンスが想定外の形式です: %s", reason),
		Category: CategoryProtocol,
		Action:   "クライアントを最新版に更新してください。",
		Err:      err,
	}
}

// NewAuthError は認証エラーを生成する。
func NewAuthError(message string) *APIError {
	if message == "" {
		message = "認証に失敗しました。"
	}
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
		Status:   401,
	}
}

// NewValidationError は入力が拒否された場合のエラーを生成する。
// messageにはサーバーのメッセージをそのまま渡す。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  message,
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: CategoryValidation,
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewStoryNotFoundError はストーリー未検出エラーを生成する。
func NewStoryNotFoundError(storyID string) *APIError {
	return &APIError{
		Code:     ErrCodeStoryNotFound,
		Message:  fmt.Sprintf("指定されたストーリーが見つかりません: %s", storyID),
		Category: CategoryNotFound,
		Action:   "ストーリー一覧を更新してください。",
		Status:   404,
	}
}

// NewNotFoundError はストーリー以外のリソースが見つからない場合のエラーを生成する。
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  message,
		Category: CategoryNotFound,
		Action:   "対象を確認してください。",
		Status:   404,
	}
}

// NewForbiddenError は所有者以外による操作のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	if message == "" {
		message = "この操作は許可されていません。"
	}
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: CategoryForbidden,
		Action:   "自分が投稿したストーリーのみ削除できます。",
		Status:   403,
	}
}

// NewTogglePendingError は同じストーリーのお気に入り更新が処理中の場合のエラーを生成する。
func NewTogglePendingError(storyID string) *APIError {
	return &APIError{
		Code:     ErrCodeTogglePending,
		Message:  fmt.Sprintf("お気に入りの更新が処理中です: %s", storyID),
		Category: CategoryConflict,
		Action:   "処理の完了を待ってから再度お試しください。",
	}
}

// CategoryOf はerrに含まれるAPIErrorのカテゴリを返す。APIErrorでない場合は空文字列を返す。
func CategoryOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return ""
}

func IsNetwork(err error) bool    { return CategoryOf(err) == CategoryNetwork }
func IsProtocol(err error) bool   { return CategoryOf(err) == CategoryProtocol }
func IsAuth(err error) bool       { return CategoryOf(err) == CategoryAuth }
func IsValidation(err error) bool { return CategoryOf(err) == CategoryValidation }
func IsNotFound(err error) bool   { return CategoryOf(err) == CategoryNotFound }
func IsForbidden(err error) bool  { return CategoryOf(err) == CategoryForbidden }
func IsConflict(err error) bool   { return CategoryOf(err) == CategoryConflict }
