// Package export はストーリー一覧をRSS/Atom/JSON Feedとして書き出す。
package export

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/snoozeclient/internal/model"
	"github.com/hitoshi/snoozeclient/internal/security"
)

// Format は出力形式。
type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
	FormatJSON Format = "json"
)

// ParseFormat は文字列をFormatに変換する。空文字列はRSSとする。
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatRSS, nil
	case FormatRSS, FormatAtom, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported feed format: %q (rss, atom, json)", s)
	}
}

// Channel はフィード全体のメタデータ。
type Channel struct {
	Title       string
	Description string
	Link        string
}

// Exporter はストーリー一覧をフィードに変換する。
type Exporter struct {
	sanitizer *security.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewExporter はExporterを生成する。
func NewExporter(sanitizer *security.TextSanitizer, logger *slog.Logger) *Exporter {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{sanitizer: sanitizer, logger: logger, now: time.Now}
}

// Build はstoriesを並び順のままfeeds.Feedに変換する。
// タイトルと著者名はマークアップを除去してから設定する。
func (e *Exporter) Build(ch Channel, stories []model.Story) *feeds.Feed {
	now := e.now()
	feed := &feeds.Feed{
		Title:       e.sanitizer.PlainText(ch.Title),
		Description: e.sanitizer.PlainText(ch.Description),
		Link:        &feeds.Link{Href: ch.Link, Rel: "self", Type: "text/html"},
		Created:     now,
		Updated:     now,
	}

	for _, story := range stories {
		author := e.sanitizer.PlainText(story.Author)
		description := fmt.Sprintf("by %s, posted by %s", author, e.sanitizer.PlainText(story.Username))
		if host, err := story.HostName(); err == nil {
			description += " (" + host + ")"
		}

		feed.Items = append(feed.Items, &feeds.Item{
			Title:       e.sanitizer.PlainText(story.Title),
			Link:        &feeds.Link{Href: story.URL, Rel: "alternate", Type: "text/html"},
			Id:          story.StoryID,
			Author:      &feeds.Author{Name: author},
			Description: description,
			Created:     story.CreatedAt,
		})
	}
	return feed
}

// Write はstoriesをformatでwに書き出す。
func (e *Exporter) Write(w io.Writer, format Format, ch Channel, stories []model.Story) error {
	feed := e.Build(ch, stories)

	var err error
	switch format {
	case FormatRSS, "":
		err = feed.WriteRss(w)
	case FormatAtom:
		err = feed.WriteAtom(w)
	case FormatJSON:
		err = feed.WriteJSON(w)
	default:
		return fmt.Errorf("unsupported feed format: %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s feed: %w", format, err)
	}

	e.logger.Debug("フィードを書き出しました",
		slog.String("format", string(format)),
		slog.Int("count", len(stories)),
	)
	return nil
}
