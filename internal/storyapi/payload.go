package storyapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/snoozeclient/internal/model"
)

// --- レスポンス型 ---

// storyPayload はAPIが返すストーリーのJSON表現。
type storyPayload struct {
	StoryID   string `json:"storyId"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	URL       string `json:"url"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

// storyEnvelope は GET /stories/{id} と POST /stories のレスポンス。
type storyEnvelope struct {
	Story *storyPayload `json:"story"`
}

// storiesEnvelope は GET /stories のレスポンス。
type storiesEnvelope struct {
	Stories []storyPayload `json:"stories"`
}

// userPayload はAPIが返すユーザーのJSON表現。
type userPayload struct {
	Username  string         `json:"username"`
	Name      string         `json:"name"`
	CreatedAt string         `json:"createdAt"`
	Favorites []storyPayload `json:"favorites"`
	Stories   []storyPayload `json:"stories"`
}

// userEnvelope は signup/login/再ログインのレスポンス。tokenはsignup/loginのみ含まれる。
type userEnvelope struct {
	User  *userPayload `json:"user"`
	Token string       `json:"token"`
}

// errorEnvelope はエラーレスポンス。
type errorEnvelope struct {
	Error *struct {
		Status  int             `json:"status"`
		Title   string          `json:"title"`
		Message json.RawMessage `json:"message"`
	} `json:"error"`
}

// --- リクエスト型 ---

// tokenBody はトークンのみを送るリクエストボディ（削除、お気に入り）。
type tokenBody struct {
	Token string `json:"token"`
}

// storyInputPayload は投稿するストーリーのJSON表現。
type storyInputPayload struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

// createStoryBody は POST /stories のリクエストボディ。
type createStoryBody struct {
	Token string            `json:"token"`
	Story storyInputPayload `json:"story"`
}

// signupBody は POST /signup のリクエストボディ。
type signupBody struct {
	User struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
	} `json:"user"`
}

// loginBody は POST /login のリクエストボディ。
type loginBody struct {
	User struct {
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"user"`
}

// --- 変換 ---

// parseTime はAPIのタイムスタンプ（RFC3339、小数秒可）をパースする。空文字列はゼロ値とする。
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// toStory はstoryPayloadをmodel.Storyに変換する。
// storyIdがない、またはcreatedAtが不正な場合はProtocolErrorを返す。
func (p storyPayload) toStory() (model.Story, error) {
	if p.StoryID == "" {
		return model.Story{}, model.NewProtocolError("storyIdがありません", nil)
	}
	createdAt, err := parseTime(p.CreatedAt)
	if err != nil {
		return model.Story{}, model.NewProtocolError(fmt.Sprintf("ストーリー %s のcreatedAtが不正です", p.StoryID), err)
	}
	return model.Story{
		StoryID:   p.StoryID,
		Title:     p.Title,
		Author:    p.Author,
		URL:       p.URL,
		Username:  p.Username,
		CreatedAt: createdAt,
	}, nil
}

// toStories はstoryPayloadのスライスをサーバーの順序のまま変換する。
func toStories(payloads []storyPayload) ([]model.Story, error) {
	stories := make([]model.Story, 0, len(payloads))
	for _, p := range payloads {
		s, err := p.toStory()
		if err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	return stories, nil
}

// toAccount はユーザーペイロードとトークンからmodel.Accountを組み立てる。
func (p *userPayload) toAccount(token string) (model.Account, error) {
	if p == nil {
		return model.Account{}, model.NewProtocolError("userがありません", nil)
	}
	if p.Username == "" {
		return model.Account{}, model.NewProtocolError("usernameがありません", nil)
	}
	if token == "" {
		return model.Account{}, model.NewProtocolError("tokenがありません", nil)
	}
	createdAt, err := parseTime(p.CreatedAt)
	if err != nil {
		return model.Account{}, model.NewProtocolError("ユーザーのcreatedAtが不正です", err)
	}
	favorites, err := toStories(p.Favorites)
	if err != nil {
		return model.Account{}, err
	}
	own, err := toStories(p.Stories)
	if err != nil {
		return model.Account{}, err
	}

	return model.Account{
		Session: model.Session{
			Username:  p.Username,
			Name:      p.Name,
			CreatedAt: createdAt,
			Token:     token,
		},
		Favorites:  favorites,
		OwnStories: own,
	}, nil
}
