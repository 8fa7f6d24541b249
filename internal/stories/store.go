// Package stories はストーリー一覧（フィード）と自分の投稿をメモリ上で管理する。
package stories

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/snoozeclient/internal/model"
)

// Store はフィードと自分の投稿を1つのロックで保持する。
// 投稿時の両方への追加、削除時の両方からの除去は、読み手から見て不可分に行われる。
type Store struct {
	logger *slog.Logger

	mu       sync.RWMutex
	feed     []model.Story
	owner    string
	hasOwner bool
	own      []model.Story
}

// NewStore は空のStoreを生成する。
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Feed はフィードのコピーを新しい順で返す。
func (s *Store) Feed() []model.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.feed)
}

// OwnStories は自分の投稿のコピーを新しい順で返す。セッションがない場合はnil。
func (s *Store) OwnStories() []model.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasOwner {
		return nil
	}
	return clone(s.own)
}

// Owner は自分の投稿を保持しているユーザー名を返す。
func (s *Store) Owner() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, s.hasOwner
}

// FindInFeed はフィードからstoryIDのストーリーを探す。
func (s *Store) FindInFeed(storyID string) (model.Story, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := model.IndexOf(s.feed, storyID); i >= 0 {
		return s.feed[i], true
	}
	return model.Story{}, false
}

// ReplaceFeed はフィード全体をstoriesで置き換える。以前の内容とはマージしない。
func (s *Store) ReplaceFeed(stories []model.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = clone(stories)
}

// AttachOwner はusernameの投稿一覧としてinitialを設定する。
// usernameが異なるストーリーは自分の投稿として扱わず破棄する。
func (s *Store) AttachOwner(username string, initial []model.Story) {
	own := make([]model.Story, 0, len(initial))
	for _, story := range initial {
		if story.Username != username {
			s.logger.Warn("所有者が異なるストーリーを自分の投稿から除外しました",
				slog.String("story_id", story.StoryID),
				slog.String("username", story.Username),
				slog.String("owner", username),
			)
			continue
		}
		if model.IndexOf(own, story.StoryID) >= 0 {
			continue
		}
		own = append(own, story)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = username
	s.hasOwner = true
	s.own = own
}

// DetachOwner はセッション終了時に自分の投稿を破棄する。フィードはそのまま残す。
func (s *Store) DetachOwner() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = ""
	s.hasOwner = false
	s.own = nil
}

// Prepend はstoryをフィードの先頭に追加し、所有者の投稿であれば自分の投稿の先頭にも追加する。
// 同じstoryIDがすでにある場合は古いものを取り除く。
func (s *Store) Prepend(story model.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feed = prepend(s.feed, story)
	if s.hasOwner && story.Username == s.owner {
		s.own = prepend(s.own, story)
	}
}

// Remove はstoryIDをフィードと自分の投稿から取り除く。どちらかにあった場合はtrueを返す。
func (s *Store) Remove(storyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed bool
	s.feed, removed = without(s.feed, storyID)
	var removedOwn bool
	s.own, removedOwn = without(s.own, storyID)
	return removed || removedOwn
}

func prepend(stories []model.Story, story model.Story) []model.Story {
	rest, _ := without(stories, story.StoryID)
	out := make([]model.Story, 0, len(rest)+1)
	out = append(out, story)
	return append(out, rest...)
}

func without(stories []model.Story, storyID string) ([]model.Story, bool) {
	i := model.IndexOf(stories, storyID)
	if i < 0 {
		return stories, false
	}
	out := make([]model.Story, 0, len(stories)-1)
	out = append(out, stories[:i]...)
	return append(out, stories[i+1:]...), true
}

func clone(stories []model.Story) []model.Story {
	if stories == nil {
		return []model.Story{}
	}
	out := make([]model.Story, len(stories))
	copy(out, stories)
	return out
}
