// Package fakeapi はストーリー共有APIと同じ契約をメモリ上で実装したサーバーを提供する。
// クライアントの結合テストとローカル開発（snooze fake-server）で使用する。
package fakeapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/snoozeclient/internal/metrics"
	"github.com/hitoshi/snoozeclient/internal/model"
)

// ステータスに対応する失敗
var (
	errUnauthorized = errors.New("Invalid token")
	errNoStory      = errors.New("No such story")
	errNoUser       = errors.New("No such user")
	errNotOwner     = errors.New("Only the author can delete a story")
	errDuplicate    = errors.New("Username already taken")
	errBadLogin     = errors.New("Invalid username or password")
)

// user はフェイクサーバーが保持するユーザー。
type user struct {
	username     string
	name         string
	passwordHash []byte
	createdAt    time.Time
	favorites    []string // ストーリーID、新しい順
}

// Options はServerの設定。
type Options struct {
	// BcryptCost はパスワードハッシュのコスト。0の場合はbcrypt.DefaultCost。
	BcryptCost int
	// Now は現在時刻を返す関数。nilの場合はtime.Now。
	Now func() time.Time
	// Registry はメトリクスの登録先。nilの場合は/metricsを公開しない。
	Registry *prometheus.Registry
}

// Server はメモリ上のストーリー共有API。
type Server struct {
	mu      sync.Mutex
	users   map[string]*user
	tokens  map[string]string // token -> username
	stories map[string]model.Story
	order   []string // ストーリーID、新しい順

	logger     *slog.Logger
	bcryptCost int
	now        func() time.Time
	registry   *prometheus.Registry
	collector  *metrics.Collector
}

// New はServerを生成する。
func New(logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		users:      make(map[string]*user),
		tokens:     make(map[string]string),
		stories:    make(map[string]model.Story),
		logger:     logger,
		bcryptCost: cost,
		now:        now,
		registry:   opts.Registry,
	}
	if opts.Registry != nil {
		s.collector = metrics.NewCollector(opts.Registry)
	}
	return s
}

// Handler はAPIのルーティングを設定したchi.Routerを返す。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware(s.logger))
	r.Use(loggingMiddleware(s.logger, s.collector))

	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)

	r.Route("/stories", func(r chi.Router) {
		r.Get("/", s.handleListStories)
		r.Post("/", s.handleCreateStory)

		r.Route("/{storyId}", func(r chi.Router) {
			r.Get("/", s.handleGetStory)
			r.Patch("/", s.handleDeleteStory)
		})
	})

	r.Route("/users/{username}", func(r chi.Router) {
		r.Get("/", s.handleGetUser)
		r.Post("/favorites/{storyId}", s.handleAddFavorite)
		r.Delete("/favorites/{storyId}", s.handleRemoveFavorite)
	})

	if s.registry != nil {
		r.Handle("/metrics", metrics.Handler(s.registry))
	}

	return r
}

// SeedUser はユーザーを登録してトークンを返す。テストとデモデータ用。
func (s *Server) SeedUser(username, password, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(username, password, name)
}

// SeedStory はusernameの投稿としてストーリーを追加する。テストとデモデータ用。
func (s *Server) SeedStory(username string, input model.StoryInput) model.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createStoryLocked(username, input)
}

// RevokeToken はトークンを無効にする。期限切れトークンの再現に使用する。
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// StoryCount は保持しているストーリー数を返す。
func (s *Server) StoryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// createUserLocked はユーザーを作成する。s.muを保持して呼び出すこと。
func (s *Server) createUserLocked(username, password, name string) (string, error) {
	if _, exists := s.users[username]; exists {
		return "", errDuplicate
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	s.users[username] = &user{
		username:     username,
		name:         name,
		passwordHash: hash,
		createdAt:    s.now().UTC(),
	}
	return s.issueTokenLocked(username), nil
}

// issueTokenLocked は新しいトークンを発行する。s.muを保持して呼び出すこと。
func (s *Server) issueTokenLocked(username string) string {
	token := uuid.NewString()
	s.tokens[token] = username
	return token
}

// createStoryLocked はストーリーを先頭に追加する。s.muを保持して呼び出すこと。
func (s *Server) createStoryLocked(username string, input model.StoryInput) model.Story {
	story := model.Story{
		StoryID:   uuid.NewString(),
		Title:     input.Title,
		Author:    input.Author,
		URL:       input.URL,
		Username:  username,
		CreatedAt: s.now().UTC(),
	}
	s.stories[story.StoryID] = story
	s.order = append([]string{story.StoryID}, s.order...)
	return story
}

// authenticateLocked はトークンからユーザーを解決する。s.muを保持して呼び出すこと。
func (s *Server) authenticateLocked(token string) (*user, error) {
	username, ok := s.tokens[token]
	if !ok || token == "" {
		return nil, errUnauthorized
	}
	u, ok := s.users[username]
	if !ok {
		return nil, errUnauthorized
	}
	return u, nil
}

// deleteStoryLocked はストーリーを削除し、全ユーザーのお気に入りからも取り除く。
func (s *Server) deleteStoryLocked(storyID string) {
	delete(s.stories, storyID)
	s.order = removeID(s.order, storyID)
	for _, u := range s.users {
		u.favorites = removeID(u.favorites, storyID)
	}
}

// ownStoriesLocked はusernameの投稿を新しい順で返す。
func (s *Server) ownStoriesLocked(username string) []model.Story {
	var own []model.Story
	for _, id := range s.order {
		if st := s.stories[id]; st.Username == username {
			own = append(own, st)
		}
	}
	return own
}

// favoriteStoriesLocked はuのお気に入りを新しい順で返す。
func (s *Server) favoriteStoriesLocked(u *user) []model.Story {
	favorites := make([]model.Story, 0, len(u.favorites))
	for _, id := range u.favorites {
		if st, ok := s.stories[id]; ok {
			favorites = append(favorites, st)
		}
	}
	return favorites
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
