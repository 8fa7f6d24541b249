package export

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/snoozeclient/internal/model"
)

func testStories() []model.Story {
	return []model.Story{
		{
			StoryID:   "s2",
			Title:     "<b>Bold</b> &amp; brave",
			Author:    "Gopher",
			URL:       "https://go.dev/blog/post",
			Username:  "alice",
			CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			StoryID:   "s1",
			Title:     "Older",
			Author:    "<script>alert(1)</script>Bob",
			URL:       "https://example.com",
			Username:  "bob",
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func newTestExporter() *Exporter {
	return NewExporter(nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestWrite_FormatsParseBack(t *testing.T) {
	for _, format := range []Format{FormatRSS, FormatAtom, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			ch := Channel{Title: "Stories", Description: "latest", Link: "https://example.com"}
			if err := newTestExporter().Write(&buf, format, ch, testStories()); err != nil {
				t.Fatalf("Write() error: %v", err)
			}

			feed, err := gofeed.NewParser().Parse(&buf)
			if err != nil {
				t.Fatalf("generated %s feed does not parse: %v", format, err)
			}
			if feed.Title != "Stories" {
				t.Errorf("Title = %q, want Stories", feed.Title)
			}
			if len(feed.Items) != 2 {
				t.Fatalf("len(Items) = %d, want 2", len(feed.Items))
			}
			if feed.Items[0].Link != "https://go.dev/blog/post" {
				t.Errorf("Items[0].Link = %q", feed.Items[0].Link)
			}
			if feed.Items[1].Title != "Older" {
				t.Errorf("Items[1].Title = %q, order should be preserved", feed.Items[1].Title)
			}
		})
	}
}

func TestBuild_SanitizesText(t *testing.T) {
	feed := newTestExporter().Build(Channel{Title: "t"}, testStories())

	if got := feed.Items[0].Title; got != "Bold & brave" {
		t.Errorf("Title = %q, want %q", got, "Bold & brave")
	}
	if got := feed.Items[1].Author.Name; got != "Bob" {
		t.Errorf("Author = %q, want %q", got, "Bob")
	}
	if !strings.Contains(feed.Items[0].Description, "(go.dev)") {
		t.Errorf("Description = %q, want hostname", feed.Items[0].Description)
	}
	if feed.Items[0].Id != "s2" {
		t.Errorf("Id = %q, want s2", feed.Items[0].Id)
	}
}

func TestBuild_InvalidURL_OmitsHostname(t *testing.T) {
	stories := []model.Story{{StoryID: "x", Title: "t", Author: "a", URL: "not a url", Username: "u"}}
	feed := newTestExporter().Build(Channel{Title: "t"}, stories)

	if strings.Contains(feed.Items[0].Description, "(") {
		t.Errorf("Description = %q, should not include a hostname", feed.Items[0].Description)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatRSS, false},
		{"RSS", FormatRSS, false},
		{"atom", FormatAtom, false},
		{" json ", FormatJSON, false},
		{"opml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
