package stories

import (
	"context"
	"log/slog"

	"github.com/hitoshi/snoozeclient/internal/model"
)

// API はServiceが使用するリモート操作。storyapi.Clientが実装する。
type API interface {
	FetchFeed(ctx context.Context) ([]model.Story, error)
	CreateStory(ctx context.Context, session model.Session, input model.StoryInput) (model.Story, error)
	DeleteStory(ctx context.Context, session model.Session, storyID string) error
}

// Service はリモート操作の成功後にStoreを更新する。
// 失敗した操作はStoreを変更しない。
type Service struct {
	api    API
	store  *Store
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api API, store *Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, store: store, logger: logger}
}

// Store は管理対象のStoreを返す。
func (s *Service) Store() *Store {
	return s.store
}

// Refresh は最新のフィードを取得してフィード全体を置き換える。
func (s *Service) Refresh(ctx context.Context) error {
	feed, err := s.api.FetchFeed(ctx)
	if err != nil {
		return err
	}
	s.store.ReplaceFeed(feed)
	s.logger.Debug("フィードを更新しました", slog.Int("count", len(feed)))
	return nil
}

// Publish はストーリーを投稿し、成功した場合はフィードと自分の投稿の先頭に追加する。
// Storeの所有者とセッションのユーザーが一致しない場合はAuthErrorを返す。
func (s *Service) Publish(ctx context.Context, session model.Session, input model.StoryInput) (model.Story, error) {
	if !session.Valid() {
		return model.Story{}, model.NewAuthError("ログインが必要です。")
	}
	if owner, ok := s.store.Owner(); !ok || owner != session.Username {
		return model.Story{}, model.NewAuthError("セッションが切り替わりました。再度ログインしてください。")
	}

	story, err := s.api.CreateStory(ctx, session, input)
	if err != nil {
		return model.Story{}, err
	}
	if story.Username != session.Username {
		s.logger.Warn("投稿したストーリーのユーザー名がセッションと異なります",
			slog.String("story_id", story.StoryID),
			slog.String("username", story.Username),
		)
	}

	s.store.Prepend(story)
	s.logger.Info("ストーリーを投稿しました",
		slog.String("story_id", story.StoryID),
		slog.String("username", session.Username),
	)
	return story, nil
}

// Remove はストーリーを削除し、成功した場合はフィードと自分の投稿から取り除く。
// すでに削除済みのストーリーはサーバーがNotFoundErrorを返す。
func (s *Service) Remove(ctx context.Context, session model.Session, storyID string) error {
	if !session.Valid() {
		return model.NewAuthError("ログインが必要です。")
	}
	if err := s.api.DeleteStory(ctx, session, storyID); err != nil {
		return err
	}

	s.store.Remove(storyID)
	s.logger.Info("ストーリーを削除しました",
		slog.String("story_id", storyID),
		slog.String("username", session.Username),
	)
	return nil
}
