package storyapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/snoozeclient/internal/model"
)

// Signup はユーザーを登録し、新しいSessionを含むAccountを返す。
// ユーザー名の重複や不正な入力はサーバーが判定し、ValidationErrorとして返す。
func (c *Client) Signup(ctx context.Context, username, password, name string) (model.Account, error) {
	var body signupBody
	body.User.Username = username
	body.User.Password = password
	body.User.Name = name

	var envelope userEnvelope
	if err := c.do(ctx, request{
		operation: "signup",
		method:    http.MethodPost,
		path:      "/signup",
		body:      body,
	}, &envelope); err != nil {
		return model.Account{}, err
	}
	return envelope.User.toAccount(envelope.Token)
}

// Login はユーザー名とパスワードでログインし、新しいSessionを含むAccountを返す。
// 認証情報が誤っている場合はAuthErrorを返す。
func (c *Client) Login(ctx context.Context, username, password string) (model.Account, error) {
	var body loginBody
	body.User.Username = username
	body.User.Password = password

	var envelope userEnvelope
	if err := c.do(ctx, request{
		operation: "login",
		method:    http.MethodPost,
		path:      "/login",
		body:      body,
	}, &envelope); err != nil {
		return model.Account{}, err
	}
	return envelope.User.toAccount(envelope.Token)
}

// RehydrateSession は保存済みのトークンとユーザー名で再ログインする。
// 期限切れや不正なトークンは想定内の失敗のため、エラーを返さずnilを返す。
func (c *Client) RehydrateSession(ctx context.Context, token, username string) *model.Account {
	account, err := c.RehydrateAccount(ctx, token, username)
	if err != nil {
		c.logger.Warn("保存済みの認証情報での再ログインに失敗しました",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return account
}

// RehydrateAccount はRehydrateSessionと同じ再ログインを行い、失敗した場合は分類済みのエラーを返す。
// 保存済みの認証情報を破棄すべきか（AuthError/NotFoundError）、
// 一時的な失敗として残すべきか（NetworkError）を呼び出し側が判断するために使う。
// トークンかユーザー名が空の場合はリクエストを送らずAuthErrorを返す。
func (c *Client) RehydrateAccount(ctx context.Context, token, username string) (*model.Account, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(username) == "" {
		return nil, model.NewAuthError("保存済みの認証情報が不完全です。")
	}

	var envelope userEnvelope
	err := c.do(ctx, request{
		operation: "rehydrate_session",
		method:    http.MethodGet,
		path:      "/users/" + url.PathEscape(username),
		query:     url.Values{"token": []string{token}},
	}, &envelope)
	if err != nil {
		return nil, err
	}

	account, err := envelope.User.toAccount(token)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
