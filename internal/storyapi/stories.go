package storyapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/snoozeclient/internal/model"
	"github.com/hitoshi/snoozeclient/internal/security"
)

// FetchStory は指定IDのストーリーを1件取得する。認証は不要。
func (c *Client) FetchStory(ctx context.Context, storyID string) (model.Story, error) {
	if storyID == "" {
		return model.Story{}, model.NewValidationError("ストーリーIDが指定されていません。")
	}

	var envelope storyEnvelope
	err := c.do(ctx, request{
		operation: "fetch_story",
		method:    http.MethodGet,
		path:      "/stories/" + url.PathEscape(storyID),
		storyID:   storyID,
	}, &envelope)
	if err != nil {
		return model.Story{}, err
	}
	if envelope.Story == nil {
		return model.Story{}, model.NewProtocolError("storyがありません", nil)
	}
	return envelope.Story.toStory()
}

// FetchFeed は現在のストーリー一覧をサーバーの順序（新しい順）のまま取得する。
// クライアント側で並べ替えない。認証は不要。
func (c *Client) FetchFeed(ctx context.Context) ([]model.Story, error) {
	var envelope storiesEnvelope
	err := c.do(ctx, request{
		operation: "fetch_feed",
		method:    http.MethodGet,
		path:      "/stories",
	}, &envelope)
	if err != nil {
		return nil, err
	}
	if envelope.Stories == nil {
		return nil, model.NewProtocolError("storiesがありません", nil)
	}
	return toStories(envelope.Stories)
}

// CreateStory はストーリーを投稿し、サーバーが採番したストーリーを返す。
// 入力は送信前に検証し、不正な場合はリクエストを送らずValidationErrorを返す。
// 一覧への追加は呼び出し元の責務で、このメソッドはローカルの状態を変更しない。
func (c *Client) CreateStory(ctx context.Context, session model.Session, input model.StoryInput) (model.Story, error) {
	if err := requireSession(session); err != nil {
		return model.Story{}, err
	}
	if err := ValidateStoryInput(input); err != nil {
		return model.Story{}, err
	}

	var envelope storyEnvelope
	err := c.do(ctx, request{
		operation: "create_story",
		method:    http.MethodPost,
		path:      "/stories",
		body: createStoryBody{
			Token: session.Token,
			Story: storyInputPayload{
				Title:  input.Title,
				Author: input.Author,
				URL:    input.URL,
			},
		},
	}, &envelope)
	if err != nil {
		return model.Story{}, err
	}
	if envelope.Story == nil {
		return model.Story{}, model.NewProtocolError("storyがありません", nil)
	}
	return envelope.Story.toStory()
}

// DeleteStory はストーリーを削除する。所有者の確認はサーバーが行う。
// 一覧からの除去は呼び出し元の責務。
func (c *Client) DeleteStory(ctx context.Context, session model.Session, storyID string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if storyID == "" {
		return model.NewValidationError("ストーリーIDが指定されていません。")
	}

	return c.do(ctx, request{
		operation: "delete_story",
		method:    http.MethodPatch,
		path:      "/stories/" + url.PathEscape(storyID),
		body:      tokenBody{Token: session.Token},
		storyID:   storyID,
	}, nil)
}

// SetFavorite はstoryIDのお気に入り状態をdesiredにする。
// すでに望む状態であっても呼び出しを省略せず、サーバーの状態を正とする。
func (c *Client) SetFavorite(ctx context.Context, session model.Session, storyID string, desired bool) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if storyID == "" {
		return model.NewValidationError("ストーリーIDが指定されていません。")
	}

	method, operation := http.MethodPost, "add_favorite"
	if !desired {
		method, operation = http.MethodDelete, "remove_favorite"
	}

	return c.do(ctx, request{
		operation: operation,
		method:    method,
		path:      "/users/" + url.PathEscape(session.Username) + "/favorites/" + url.PathEscape(storyID),
		body:      tokenBody{Token: session.Token},
		storyID:   storyID,
	}, nil)
}

// ValidateStoryInput は投稿内容を検証する。
// title、author、urlはすべて空でない文字列で、urlはhttp/httpsの絶対URLでなければならない。
func ValidateStoryInput(input model.StoryInput) error {
	var missing []string
	if strings.TrimSpace(input.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(input.Author) == "" {
		missing = append(missing, "author")
	}
	if strings.TrimSpace(input.URL) == "" {
		missing = append(missing, "url")
	}
	if len(missing) > 0 {
		return model.NewValidationError("必須項目が入力されていません: " + strings.Join(missing, ", "))
	}
	if err := security.ValidateURL(input.URL); err != nil {
		return model.NewInvalidURLError(err.Error())
	}
	return nil
}
