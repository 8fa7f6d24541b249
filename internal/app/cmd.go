package app

import (
	"errors"

	"github.com/hitoshi/snoozeclient/internal/model"
)

// Command はCLIのサブコマンド名を表す。
type Command string

const (
	CommandStories    Command = "stories"
	CommandStory      Command = "story"
	CommandSignup     Command = "signup"
	CommandLogin      Command = "login"
	CommandLogout     Command = "logout"
	CommandWhoami     Command = "whoami"
	CommandSubmit     Command = "submit"
	CommandDelete     Command = "delete"
	CommandFavorite   Command = "favorite"
	CommandUnfavorite Command = "unfavorite"
	CommandToggle     Command = "toggle"
	CommandFavorites  Command = "favorites"
	CommandMine       Command = "mine"
	CommandExportRSS  Command = "export-rss"
	// CommandFakeServer はメモリ上のフェイクAPIサーバーを起動する。ローカル開発用。
	CommandFakeServer Command = "fake-server"
)

// 終了コード
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitNetwork    = 3
	ExitProtocol   = 4
	ExitAuth       = 5
	ExitValidation = 6
	ExitNotFound   = 7
	ExitForbidden  = 8
	ExitConflict   = 9
)

// usageError は引数やフラグの誤り。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// ExitCode はerrのエラーカテゴリに対応する終了コードを返す。
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return ExitUsage
	}

	switch model.CategoryOf(err) {
	case model.CategoryNetwork:
		return ExitNetwork
	case model.CategoryProtocol:
		return ExitProtocol
	case model.CategoryAuth:
		return ExitAuth
	case model.CategoryValidation:
		return ExitValidation
	case model.CategoryNotFound:
		return ExitNotFound
	case model.CategoryForbidden:
		return ExitForbidden
	case model.CategoryConflict:
		return ExitConflict
	default:
		return ExitFailure
	}
}
