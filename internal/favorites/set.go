// Package favorites はセッションごとのお気に入り集合とAPIとの同期を管理する。
//
// ストーリーごとに NotFavorited / Favorited / PendingAdd / PendingRemove の状態を持つ。
// 同じストーリーへの更新が処理中の場合、後続の更新は拒否する（TOGGLE_PENDING）。
// 確定済みの所属はリモート呼び出しが成功した時点でのみ変わるため、失敗時は元の状態に戻る。
package favorites

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/snoozeclient/internal/metrics"
	"github.com/hitoshi/snoozeclient/internal/model"
)

// State はあるストーリーのお気に入り状態。
type State int

const (
	NotFavorited State = iota
	Favorited
	PendingAdd
	PendingRemove
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case Favorited:
		return "favorited"
	case PendingAdd:
		return "pending_add"
	case PendingRemove:
		return "pending_remove"
	default:
		return "not_favorited"
	}
}

// Remote はお気に入り状態をAPIに反映するインターフェース。storyapi.Clientが実装する。
type Remote interface {
	SetFavorite(ctx context.Context, session model.Session, storyID string, desired bool) error
}

// Set は1つのセッションのお気に入り集合。複数のgoroutineから同時に使用できる。
type Set struct {
	remote  Remote
	session model.Session
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	mu      sync.Mutex
	members map[string]model.Story
	order   []string        // 新しくお気に入りにした順
	pending map[string]bool     // storyID -> 処理中の目標状態
	deleted map[string]struct{} // 処理中に削除されたstoryID。settleで追加しない
}

// New はinitial（サーバーが返したお気に入り、新しい順）を確定済みの状態としてSetを生成する。
func New(remote Remote, session model.Session, initial []model.Story, logger *slog.Logger, collector metrics.MetricsCollector) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.Nop{}
	}

	s := &Set{
		remote:  remote,
		session: session,
		logger:  logger,
		metrics: collector,
		members: make(map[string]model.Story, len(initial)),
		pending: make(map[string]bool),
		deleted: make(map[string]struct{}),
	}
	for _, story := range initial {
		if _, dup := s.members[story.StoryID]; dup || story.StoryID == "" {
			continue
		}
		s.members[story.StoryID] = story
		s.order = append(s.order, story.StoryID)
	}
	return s
}

// IsFavorite は確定済みの状態でstoryIDがお気に入りかを返す。ネットワークI/Oは行わない。
func (s *Set) IsFavorite(storyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[storyID]
	return ok
}

// State はstoryIDの現在の状態を返す。
func (s *Set) State(storyID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(storyID)
}

func (s *Set) stateLocked(storyID string) State {
	if desired, ok := s.pending[storyID]; ok {
		if desired {
			return PendingAdd
		}
		return PendingRemove
	}
	if _, ok := s.members[storyID]; ok {
		return Favorited
	}
	return NotFavorited
}

// Stories は確定済みのお気に入りを新しくお気に入りにした順で返す。
func (s *Set) Stories() []model.Story {
	s.mu.Lock()
	defer s.mu.Unlock()

	stories := make([]model.Story, 0, len(s.order))
	for _, id := range s.order {
		stories = append(stories, s.members[id])
	}
	return stories
}

// Len は確定済みのお気に入り数を返す。
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// SetFavorite はstoryのお気に入り状態をdesiredにする。
// すでにdesiredの状態でもリモート呼び出しは行う。処理中の更新がある場合は即座にConflictErrorを返す。
func (s *Set) SetFavorite(ctx context.Context, story model.Story, desired bool) error {
	if _, err := s.reserve(story.StoryID, func(bool) bool { return desired }); err != nil {
		return err
	}
	return s.apply(ctx, story, desired)
}

// Toggle は確定済みの状態を反転する。成功した場合は新しい所属を、失敗した場合は元の所属を返す。
func (s *Set) Toggle(ctx context.Context, story model.Story) (bool, error) {
	desired, err := s.reserve(story.StoryID, func(current bool) bool { return !current })
	if err != nil {
		return s.IsFavorite(story.StoryID), err
	}
	if err := s.apply(ctx, story, desired); err != nil {
		return !desired, err
	}
	return desired, nil
}

// apply はリモート呼び出しを行い、結果を確定する。
func (s *Set) apply(ctx context.Context, story model.Story, desired bool) error {
	err := s.remote.SetFavorite(ctx, s.session, story.StoryID, desired)
	s.settle(story, desired, err)
	return err
}

// Forget はstoryIDを確定済みの集合から取り除く。ストーリーがサーバーから削除された場合に使用する。
// 処理中の更新がある場合は結果にかかわらず、完了時に集合へ戻さない。
func (s *Set) Forget(storyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.pending[storyID]; busy {
		s.deleted[storyID] = struct{}{}
	}
	s.removeLocked(storyID)
}

// reserve は確定済みの所属からchooseで目標状態を決め、処理中マーカーを設定する。
// すでに処理中の場合はConflictErrorを返す。
func (s *Set) reserve(storyID string, choose func(current bool) bool) (bool, error) {
	if storyID == "" {
		return false, model.NewValidationError("ストーリーIDが指定されていません。")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.pending[storyID]; busy {
		s.metrics.RecordFavoriteConflict()
		s.logger.Warn("お気に入りの更新が処理中のため拒否しました",
			slog.String("story_id", storyID),
			slog.String("state", s.stateLocked(storyID).String()),
		)
		return false, model.NewTogglePendingError(storyID)
	}

	_, current := s.members[storyID]
	desired := choose(current)
	s.pending[storyID] = desired
	return desired, nil
}

// settle は処理中マーカーを外し、成功した場合のみ確定済みの所属を更新する。
func (s *Set) settle(story model.Story, desired bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, story.StoryID)
	if _, gone := s.deleted[story.StoryID]; gone {
		delete(s.deleted, story.StoryID)
		s.logger.Debug("処理中に削除されたストーリーのお気に入り更新を破棄しました",
			slog.String("story_id", story.StoryID),
		)
		return
	}
	if err != nil {
		s.logger.Warn("お気に入りの更新に失敗したため元の状態に戻しました",
			slog.String("story_id", story.StoryID),
			slog.Bool("desired", desired),
			slog.String("state", s.stateLocked(story.StoryID).String()),
			slog.String("error", err.Error()),
		)
		return
	}

	if !desired {
		s.removeLocked(story.StoryID)
		return
	}
	if _, ok := s.members[story.StoryID]; ok {
		s.members[story.StoryID] = story
		return
	}
	s.members[story.StoryID] = story
	s.order = append([]string{story.StoryID}, s.order...)
}

func (s *Set) removeLocked(storyID string) {
	if _, ok := s.members[storyID]; !ok {
		return
	}
	delete(s.members, storyID)
	for i, id := range s.order {
		if id == storyID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
