package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hitoshi/snoozeclient/internal/model"
	"github.com/hitoshi/snoozeclient/internal/security"
)

// 出力形式
const (
	formatText = "text"
	formatJSON = "json"
)

// storyView はストーリーの表示用の表現。
type storyView struct {
	StoryID   string    `json:"storyId"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	URL       string    `json:"url"`
	Hostname  string    `json:"hostname,omitempty"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	Favorite  bool      `json:"favorite"`
}

// sessionView はセッションの表示用の表現。トークンは含めない。
type sessionView struct {
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// renderer はコマンドの結果をtextまたはjsonで書き出す。
type renderer struct {
	w         io.Writer
	format    string
	sanitizer *security.TextSanitizer
}

func newRenderer(w io.Writer, format string, sanitizer *security.TextSanitizer) (*renderer, error) {
	switch format {
	case formatText, formatJSON:
	default:
		return nil, &usageError{fmt.Errorf("unsupported output format: %q (text, json)", format)}
	}
	return &renderer{w: w, format: format, sanitizer: sanitizer}, nil
}

func (r *renderer) view(story model.Story, favorite bool) storyView {
	host, _ := story.HostName()
	return storyView{
		StoryID:   story.StoryID,
		Title:     r.sanitizer.PlainText(story.Title),
		Author:    r.sanitizer.PlainText(story.Author),
		URL:       story.URL,
		Hostname:  host,
		Username:  r.sanitizer.PlainText(story.Username),
		CreatedAt: story.CreatedAt,
		Favorite:  favorite,
	}
}

// stories はストーリー一覧を書き出す。お気に入りは行頭に*を付ける。
func (r *renderer) stories(stories []model.Story, isFavorite func(string) bool) error {
	views := make([]storyView, 0, len(stories))
	for _, s := range stories {
		views = append(views, r.view(s, isFavorite != nil && isFavorite(s.StoryID)))
	}

	if r.format == formatJSON {
		return r.json(views)
	}
	if len(views) == 0 {
		_, err := fmt.Fprintln(r.w, "(no stories)")
		return err
	}
	for _, v := range views {
		if err := r.storyLine(v); err != nil {
			return err
		}
	}
	return nil
}

// story は1件のストーリーを書き出す。
func (r *renderer) story(story model.Story, favorite bool) error {
	v := r.view(story, favorite)
	if r.format == formatJSON {
		return r.json(v)
	}
	return r.storyLine(v)
}

func (r *renderer) storyLine(v storyView) error {
	mark := " "
	if v.Favorite {
		mark = "*"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s", mark, v.StoryID, v.Title)
	if v.Hostname != "" {
		fmt.Fprintf(&b, " (%s)", v.Hostname)
	}
	fmt.Fprintf(&b, "\n    by %s | posted by %s", v.Author, v.Username)
	if !v.CreatedAt.IsZero() {
		fmt.Fprintf(&b, " | %s", v.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	_, err := fmt.Fprintln(r.w, b.String())
	return err
}

// session はセッションを書き出す。
func (r *renderer) session(session model.Session) error {
	v := sessionView{Username: session.Username, Name: session.Name, CreatedAt: session.CreatedAt}
	if r.format == formatJSON {
		return r.json(v)
	}
	_, err := fmt.Fprintf(r.w, "%s (%s)\n", r.sanitizer.PlainText(v.Name), v.Username)
	return err
}

// message は完了メッセージを書き出す。
func (r *renderer) message(key, text string) error {
	if r.format == formatJSON {
		return r.json(map[string]string{key: text})
	}
	_, err := fmt.Fprintln(r.w, text)
	return err
}

// result はストーリーに対する操作の結果を書き出す。
func (r *renderer) result(action, storyID string) error {
	if r.format == formatJSON {
		return r.json(map[string]string{"action": action, "storyId": storyID})
	}
	_, err := fmt.Fprintf(r.w, "%s %s\n", action, storyID)
	return err
}

func (r *renderer) json(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
