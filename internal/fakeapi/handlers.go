package fakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/snoozeclient/internal/model"
)

// --- ワイヤー形式 ---

type storyJSON struct {
	StoryID   string `json:"storyId"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	URL       string `json:"url"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

type userJSON struct {
	Username  string      `json:"username"`
	Name      string      `json:"name"`
	CreatedAt string      `json:"createdAt"`
	Favorites []storyJSON `json:"favorites"`
	Stories   []storyJSON `json:"stories"`
}

type credentialsJSON struct {
	User struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
	} `json:"user"`
}

type createStoryJSON struct {
	Token string `json:"token"`
	Story struct {
		Title  string `json:"title"`
		Author string `json:"author"`
		URL    string `json:"url"`
	} `json:"story"`
}

type tokenJSON struct {
	Token string `json:"token"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toStoryJSON(s model.Story) storyJSON {
	return storyJSON{
		StoryID:   s.StoryID,
		Title:     s.Title,
		Author:    s.Author,
		URL:       s.URL,
		Username:  s.Username,
		CreatedAt: formatTime(s.CreatedAt),
	}
}

func toStoryJSONs(stories []model.Story) []storyJSON {
	out := make([]storyJSON, 0, len(stories))
	for _, s := range stories {
		out = append(out, toStoryJSON(s))
	}
	return out
}

// userJSONLocked はuのレスポンス表現を組み立てる。s.muを保持して呼び出すこと。
func (s *Server) userJSONLocked(u *user) userJSON {
	return userJSON{
		Username:  u.username,
		Name:      u.name,
		CreatedAt: formatTime(u.createdAt),
		Favorites: toStoryJSONs(s.favoriteStoriesLocked(u)),
		Stories:   toStoryJSONs(s.ownStoriesLocked(u.username)),
	}
}

func decodeBody(r *http.Request, v any) bool {
	return json.NewDecoder(r.Body).Decode(v) == nil
}

// --- 認証 ---

// handleSignup は POST /signup を処理する。
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentialsJSON
	if !decodeBody(r, &body) || blank(body.User.Username, body.User.Password, body.User.Name) {
		writeError(w, http.StatusBadRequest, "Missing user data: username, password and name are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.createUserLocked(body.User.Username, body.User.Password, body.User.Name)
	if errors.Is(err, errDuplicate) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  s.userJSONLocked(s.users[body.User.Username]),
		"token": token,
	})
}

// handleLogin は POST /login を処理する。
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsJSON
	if !decodeBody(r, &body) || blank(body.User.Username, body.User.Password) {
		writeError(w, http.StatusBadRequest, "Missing user data: username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[body.User.Username]
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(body.User.Password)) != nil {
		writeError(w, http.StatusUnauthorized, errBadLogin.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  s.userJSONLocked(u),
		"token": s.issueTokenLocked(u.username),
	})
}

// handleGetUser は GET /users/{username}?token= を処理する。
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	s.mu.Lock()
	defer s.mu.Unlock()

	caller, err := s.authenticateLocked(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	u, ok := s.users[username]
	if !ok {
		writeError(w, http.StatusNotFound, errNoUser.Error())
		return
	}
	if caller.username != u.username {
		writeError(w, http.StatusUnauthorized, errUnauthorized.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": s.userJSONLocked(u)})
}

// --- ストーリー ---

// handleListStories は GET /stories を処理する。skipとlimitで範囲を指定できる。
func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stories := make([]storyJSON, 0, len(s.order))
	for i, id := range s.order {
		if i < skip {
			continue
		}
		if limit >= 0 && len(stories) >= limit {
			break
		}
		stories = append(stories, toStoryJSON(s.stories[id]))
	}

	writeJSON(w, http.StatusOK, map[string]any{"stories": stories})
}

// handleGetStory は GET /stories/{storyId} を処理する。
func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyId")

	s.mu.Lock()
	defer s.mu.Unlock()

	story, ok := s.stories[storyID]
	if !ok {
		writeError(w, http.StatusNotFound, errNoStory.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"story": toStoryJSON(story)})
}

// handleCreateStory は POST /stories を処理する。
func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var body createStoryJSON
	if !decodeBody(r, &body) {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.authenticateLocked(body.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if blank(body.Story.Title, body.Story.Author, body.Story.URL) {
		writeError(w, http.StatusBadRequest, "Missing story data: title, author and url are required")
		return
	}

	story := s.createStoryLocked(u.username, model.StoryInput{
		Title:  body.Story.Title,
		Author: body.Story.Author,
		URL:    body.Story.URL,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"story": toStoryJSON(story)})
}

// handleDeleteStory は PATCH /stories/{storyId} を削除として処理する。
func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	storyID := chi.URLParam(r, "storyId")

	var body tokenJSON
	if !decodeBody(r, &body) {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.authenticateLocked(body.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	story, ok := s.stories[storyID]
	if !ok {
		writeError(w, http.StatusNotFound, errNoStory.Error())
		return
	}
	if story.Username != u.username {
		writeError(w, http.StatusForbidden, errNotOwner.Error())
		return
	}

	s.deleteStoryLocked(storyID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Deleted",
		"story":   toStoryJSON(story),
	})
}

// --- お気に入り ---

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	s.handleFavorite(w, r, true)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	s.handleFavorite(w, r, false)
}

// handleFavorite はお気に入りの追加・削除を処理する。どちらも冪等。
func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request, add bool) {
	username := chi.URLParam(r, "username")
	storyID := chi.URLParam(r, "storyId")

	var body tokenJSON
	if !decodeBody(r, &body) {
		writeError(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.authenticateLocked(body.Token)
	if err != nil || u.username != username {
		writeError(w, http.StatusUnauthorized, errUnauthorized.Error())
		return
	}
	if _, ok := s.stories[storyID]; !ok {
		writeError(w, http.StatusNotFound, errNoStory.Error())
		return
	}

	u.favorites = removeID(u.favorites, storyID)
	message := "Favorite Removed!"
	if add {
		u.favorites = append([]string{storyID}, u.favorites...)
		message = "Favorite Added!"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"user":    s.userJSONLocked(u),
	})
}
