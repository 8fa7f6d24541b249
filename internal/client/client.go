// Package client は描画層に公開するストーリー共有クライアントの窓口を提供する。
// 現在のセッション、そのお気に入り集合、フィードと自分の投稿を保持し、
// 変更操作はリモート呼び出しの成功後にのみローカルの状態へ反映する。
package client

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/snoozeclient/internal/credstore"
	"github.com/hitoshi/snoozeclient/internal/favorites"
	"github.com/hitoshi/snoozeclient/internal/metrics"
	"github.com/hitoshi/snoozeclient/internal/model"
	"github.com/hitoshi/snoozeclient/internal/stories"
)

// StoryAPI はClientが使用するリモート操作。storyapi.Clientが実装する。
type StoryAPI interface {
	stories.API
	favorites.Remote
	FetchStory(ctx context.Context, storyID string) (model.Story, error)
	Signup(ctx context.Context, username, password, name string) (model.Account, error)
	Login(ctx context.Context, username, password string) (model.Account, error)
	RehydrateAccount(ctx context.Context, token, username string) (*model.Account, error)
}

// Config はClientの設定パラメータ。
type Config struct {
	// Credentials はログイン情報の保存先。nilの場合は保存・復元しない。
	Credentials credstore.CredentialStore
	// Metrics はお気に入りの競合を記録する。nilの場合は記録しない。
	Metrics metrics.MetricsCollector
}

// Client はストーリー共有クライアントの窓口。複数のgoroutineから同時に使用できる。
type Client struct {
	api     StoryAPI
	store   *stories.Store
	service *stories.Service
	creds   credstore.CredentialStore
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	mu        sync.RWMutex
	session   *model.Session
	favorites *favorites.Set
}

// New はセッションなしのClientを生成する。
func New(api StoryAPI, logger *slog.Logger, cfg Config) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	var collector metrics.MetricsCollector = metrics.Nop{}
	if cfg.Metrics != nil {
		collector = cfg.Metrics
	}

	store := stories.NewStore(logger)
	return &Client{
		api:     api,
		store:   store,
		service: stories.NewService(api, store, logger),
		creds:   cfg.Credentials,
		metrics: collector,
		logger:  logger,
	}
}

// --- 読み取り ---

// Session は現在のセッションを返す。ログインしていない場合はfalseを返す。
func (c *Client) Session() (model.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return model.Session{}, false
	}
	return *c.session, true
}

// Feed はフィードを新しい順で返す。
func (c *Client) Feed() []model.Story {
	return c.store.Feed()
}

// OwnStories は自分の投稿を新しい順で返す。ログインしていない場合はnil。
func (c *Client) OwnStories() []model.Story {
	return c.store.OwnStories()
}

// Favorites はお気に入りを新しくお気に入りにした順で返す。ログインしていない場合はnil。
func (c *Client) Favorites() []model.Story {
	c.mu.RLock()
	set := c.favorites
	c.mu.RUnlock()
	if set == nil {
		return nil
	}
	return set.Stories()
}

// IsFavorite はstoryIDが確定済みのお気に入りかを返す。ネットワークI/Oは行わない。
func (c *Client) IsFavorite(storyID string) bool {
	c.mu.RLock()
	set := c.favorites
	c.mu.RUnlock()
	return set != nil && set.IsFavorite(storyID)
}

// FavoriteState はstoryIDのお気に入り状態を返す。
func (c *Client) FavoriteState(storyID string) favorites.State {
	c.mu.RLock()
	set := c.favorites
	c.mu.RUnlock()
	if set == nil {
		return favorites.NotFavorited
	}
	return set.State(storyID)
}

// --- 起動 ---

// Start はフィードの取得と保存済みセッションの復元を並行して行う。
// セッションを復元できなくてもエラーにはしない。
func (c *Client) Start(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		return c.Refresh(ctx)
	})
	g.Go(func() error {
		if _, err := c.Restore(ctx); err != nil {
			c.logger.Warn("保存済みセッションの復元に失敗しました", slog.String("error", err.Error()))
		}
		return nil
	})
	return g.Wait()
}

// Refresh はフィード全体を最新の状態に置き換える。
func (c *Client) Refresh(ctx context.Context) error {
	return c.service.Refresh(ctx)
}

// FetchStory はstoryIDのストーリーをAPIから取得する。
func (c *Client) FetchStory(ctx context.Context, storyID string) (model.Story, error) {
	return c.api.FetchStory(ctx, storyID)
}

// --- ストーリーの変更 ---

// Publish はストーリーを投稿し、フィードと自分の投稿の先頭に追加する。
func (c *Client) Publish(ctx context.Context, input model.StoryInput) (model.Story, error) {
	session, _, err := c.requireSession()
	if err != nil {
		return model.Story{}, err
	}
	return c.service.Publish(ctx, session, input)
}

// Remove はストーリーを削除し、フィード、自分の投稿、お気に入りから取り除く。
func (c *Client) Remove(ctx context.Context, storyID string) error {
	session, set, err := c.requireSession()
	if err != nil {
		return err
	}
	if err := c.service.Remove(ctx, session, storyID); err != nil {
		return err
	}
	// サーバーは削除したストーリーを全ユーザーのお気に入りからも外す
	set.Forget(storyID)
	return nil
}

// --- お気に入り ---

// SetFavorite はstoryIDのお気に入り状態をdesiredにする。
func (c *Client) SetFavorite(ctx context.Context, storyID string, desired bool) error {
	_, set, err := c.requireSession()
	if err != nil {
		return err
	}
	story, err := c.resolveStory(ctx, storyID)
	if err != nil {
		return err
	}
	return set.SetFavorite(ctx, story, desired)
}

// ToggleFavorite はstoryIDのお気に入り状態を反転し、操作後の所属を返す。
func (c *Client) ToggleFavorite(ctx context.Context, storyID string) (bool, error) {
	_, set, err := c.requireSession()
	if err != nil {
		return false, err
	}
	story, err := c.resolveStory(ctx, storyID)
	if err != nil {
		return set.IsFavorite(storyID), err
	}
	return set.Toggle(ctx, story)
}

// resolveStory はフィードからストーリーを探し、ない場合はAPIから取得する。
func (c *Client) resolveStory(ctx context.Context, storyID string) (model.Story, error) {
	if story, ok := c.store.FindInFeed(storyID); ok {
		return story, nil
	}
	return c.api.FetchStory(ctx, storyID)
}

// --- セッション ---

// Signup はユーザーを登録し、新しいセッションに切り替える。
func (c *Client) Signup(ctx context.Context, username, password, name string) (model.Session, error) {
	account, err := c.api.Signup(ctx, username, password, name)
	if err != nil {
		return model.Session{}, err
	}
	c.adopt(ctx, account, true)
	return account.Session, nil
}

// Login はログインし、新しいセッションに切り替える。
func (c *Client) Login(ctx context.Context, username, password string) (model.Session, error) {
	account, err := c.api.Login(ctx, username, password)
	if err != nil {
		return model.Session{}, err
	}
	c.adopt(ctx, account, true)
	return account.Session, nil
}

// Restore は保存済みの認証情報で再ログインする。復元できた場合はtrueを返す。
// トークンが無効な場合（AuthError/NotFoundError）は保存済みの認証情報を削除し、エラーにはしない。
// 通信失敗などその他の失敗では認証情報を残してエラーを返すため、後で再試行できる。
func (c *Client) Restore(ctx context.Context) (bool, error) {
	if c.creds == nil {
		return false, nil
	}
	cred, err := c.creds.Load(ctx)
	if err != nil {
		return false, err
	}
	if cred == nil {
		return false, nil
	}

	account, err := c.api.RehydrateAccount(ctx, cred.Token, cred.Username)
	if err != nil {
		if !model.IsAuth(err) && !model.IsNotFound(err) {
			return false, err
		}
		c.logger.Info("保存済みの認証情報が無効なため削除します",
			slog.String("username", cred.Username),
			slog.String("reason", model.CategoryOf(err)),
		)
		if err := c.creds.Clear(ctx); err != nil {
			c.logger.Warn("無効な認証情報の削除に失敗しました", slog.String("error", err.Error()))
		}
		return false, nil
	}

	c.adopt(ctx, *account, false)
	return true, nil
}

// Logout はセッションを破棄し、保存済みの認証情報を削除する。フィードはそのまま残す。
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	username := ""
	if c.session != nil {
		username = c.session.Username
	}
	c.session = nil
	c.favorites = nil
	c.store.DetachOwner()
	c.mu.Unlock()

	if username != "" {
		c.logger.Info("ログアウトしました", slog.String("username", username))
	}
	if c.creds == nil {
		return nil
	}
	return c.creds.Clear(ctx)
}

// adopt はaccountのセッションで現在のセッションを丸ごと置き換える。
func (c *Client) adopt(ctx context.Context, account model.Account, persist bool) {
	session := account.Session
	set := favorites.New(c.api, session, account.Favorites, c.logger, c.metrics)

	c.mu.Lock()
	c.session = &session
	c.favorites = set
	c.store.AttachOwner(session.Username, account.OwnStories)
	c.mu.Unlock()

	c.logger.Info("セッションを開始しました",
		slog.String("username", session.Username),
		slog.Int("favorites", len(account.Favorites)),
		slog.Int("own_stories", len(account.OwnStories)),
	)

	if !persist || c.creds == nil {
		return
	}
	err := c.creds.Save(ctx, credstore.Credential{Username: session.Username, Token: session.Token})
	if err != nil {
		c.logger.Warn("認証情報の保存に失敗しました",
			slog.String("username", session.Username),
			slog.String("error", err.Error()),
		)
	}
}

// requireSession は現在のセッションとお気に入り集合を返す。ログインしていない場合はAuthErrorを返す。
func (c *Client) requireSession() (model.Session, *favorites.Set, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil || !c.session.Valid() {
		return model.Session{}, nil, model.NewAuthError("ログインが必要です。")
	}
	return *c.session, c.favorites, nil
}
