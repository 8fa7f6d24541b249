package fakeapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/snoozeclient/internal/model"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(slog.New(slog.NewJSONHandler(io.Discard, nil)), Options{
		BcryptCost: bcrypt.MinCost,
		Registry:   prometheus.NewRegistry(),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

// call はJSONボディ付きのリクエストを送信し、ステータスとデコード済みボディを返す。
func call(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("response is not JSON: %v\nraw: %s", err, raw)
		}
	}
	return resp.StatusCode, decoded
}

func signupBody(username, password, name string) map[string]any {
	return map[string]any{"user": map[string]any{"username": username, "password": password, "name": name}}
}

func errorMessage(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

func TestSignup_ReturnsUserAndToken(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := call(t, http.MethodPost, ts.URL+"/signup", signupBody("alice", "pw", "Alice"))
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want %d", status, http.StatusCreated)
	}
	if token, _ := body["token"].(string); token == "" {
		t.Error("expected non-empty token")
	}
	user, _ := body["user"].(map[string]any)
	if user["username"] != "alice" || user["name"] != "Alice" {
		t.Errorf("unexpected user: %v", user)
	}
	if user["createdAt"] == "" {
		t.Error("expected createdAt")
	}
}

func TestSignup_DuplicateUsername_Returns409(t *testing.T) {
	_, ts := newTestServer(t)

	call(t, http.MethodPost, ts.URL+"/signup", signupBody("alice", "pw", "Alice"))
	status, body := call(t, http.MethodPost, ts.URL+"/signup", signupBody("alice", "pw2", "Alice 2"))
	if status != http.StatusConflict {
		t.Fatalf("status = %d, want %d", status, http.StatusConflict)
	}
	if errorMessage(body) == "" {
		t.Error("expected error message in envelope")
	}
}

func TestSignup_MissingFields_Returns400(t *testing.T) {
	_, ts := newTestServer(t)

	status, _ := call(t, http.MethodPost, ts.URL+"/signup", signupBody("alice", "", "Alice"))
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestLogin_WrongPassword_Returns401(t *testing.T) {
	s, ts := newTestServer(t)
	if _, err := s.SeedUser("alice", "secret", "Alice"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	status, _ := call(t, http.MethodPost, ts.URL+"/login", signupBody("alice", "wrong", ""))
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", status, http.StatusUnauthorized)
	}

	status, body := call(t, http.MethodPost, ts.URL+"/login", signupBody("alice", "secret", ""))
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if token, _ := body["token"].(string); token == "" {
		t.Error("expected token on successful login")
	}
}

func TestStories_NewestFirst(t *testing.T) {
	s, ts := newTestServer(t)
	first := s.SeedStory("alice", model.StoryInput{Title: "first", Author: "A", URL: "https://a.example"})
	second := s.SeedStory("alice", model.StoryInput{Title: "second", Author: "A", URL: "https://b.example"})

	status, body := call(t, http.MethodGet, ts.URL+"/stories", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	stories, _ := body["stories"].([]any)
	if len(stories) != 2 {
		t.Fatalf("len(stories) = %d, want 2", len(stories))
	}
	if got := stories[0].(map[string]any)["storyId"]; got != second.StoryID {
		t.Errorf("stories[0] = %v, want %s", got, second.StoryID)
	}
	if got := stories[1].(map[string]any)["storyId"]; got != first.StoryID {
		t.Errorf("stories[1] = %v, want %s", got, first.StoryID)
	}

	_, body = call(t, http.MethodGet, ts.URL+"/stories?skip=1&limit=1", nil)
	stories, _ = body["stories"].([]any)
	if len(stories) != 1 || stories[0].(map[string]any)["storyId"] != first.StoryID {
		t.Errorf("skip/limit returned %v", stories)
	}
}

func TestGetStory_Unknown_Returns404(t *testing.T) {
	_, ts := newTestServer(t)

	status, _ := call(t, http.MethodGet, ts.URL+"/stories/missing", nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestCreateStory_RequiresToken(t *testing.T) {
	s, ts := newTestServer(t)
	token, _ := s.SeedUser("alice", "pw", "Alice")
	story := map[string]any{"title": "T", "author": "A", "url": "https://example.com"}

	status, _ := call(t, http.MethodPost, ts.URL+"/stories", map[string]any{"token": "bogus", "story": story})
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", status, http.StatusUnauthorized)
	}

	status, body := call(t, http.MethodPost, ts.URL+"/stories", map[string]any{"token": token, "story": story})
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want %d", status, http.StatusCreated)
	}
	created, _ := body["story"].(map[string]any)
	if created["username"] != "alice" {
		t.Errorf("username = %v, want alice", created["username"])
	}
	if s.StoryCount() != 1 {
		t.Errorf("StoryCount() = %d, want 1", s.StoryCount())
	}
}

func TestDeleteStory_OwnershipAndRepeat(t *testing.T) {
	s, ts := newTestServer(t)
	aliceToken, _ := s.SeedUser("alice", "pw", "Alice")
	bobToken, _ := s.SeedUser("bob", "pw", "Bob")
	story := s.SeedStory("alice", model.StoryInput{Title: "T", Author: "A", URL: "https://example.com"})
	url := ts.URL + "/stories/" + story.StoryID

	status, _ := call(t, http.MethodPatch, url, map[string]any{"token": bobToken})
	if status != http.StatusForbidden {
		t.Errorf("non-owner delete status = %d, want %d", status, http.StatusForbidden)
	}

	status, _ = call(t, http.MethodPatch, url, map[string]any{"token": aliceToken})
	if status != http.StatusOK {
		t.Fatalf("owner delete status = %d, want %d", status, http.StatusOK)
	}

	status, _ = call(t, http.MethodPatch, url, map[string]any{"token": aliceToken})
	if status != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestFavorites_AddRemoveIdempotent(t *testing.T) {
	s, ts := newTestServer(t)
	token, _ := s.SeedUser("alice", "pw", "Alice")
	story := s.SeedStory("bob", model.StoryInput{Title: "T", Author: "B", URL: "https://example.com"})
	url := ts.URL + "/users/alice/favorites/" + story.StoryID

	for i := 0; i < 2; i++ {
		status, body := call(t, http.MethodPost, url, map[string]any{"token": token})
		if status != http.StatusOK {
			t.Fatalf("add #%d status = %d", i, status)
		}
		user, _ := body["user"].(map[string]any)
		if favs, _ := user["favorites"].([]any); len(favs) != 1 {
			t.Errorf("add #%d favorites = %d, want 1", i, len(favs))
		}
	}

	status, body := call(t, http.MethodDelete, url, map[string]any{"token": token})
	if status != http.StatusOK {
		t.Fatalf("remove status = %d", status)
	}
	user, _ := body["user"].(map[string]any)
	if favs, _ := user["favorites"].([]any); len(favs) != 0 {
		t.Errorf("favorites after remove = %d, want 0", len(favs))
	}
}

func TestFavorites_OtherUsersPath_Returns401(t *testing.T) {
	s, ts := newTestServer(t)
	token, _ := s.SeedUser("alice", "pw", "Alice")
	s.SeedUser("bob", "pw", "Bob")
	story := s.SeedStory("bob", model.StoryInput{Title: "T", Author: "B", URL: "https://example.com"})

	status, _ := call(t, http.MethodPost, ts.URL+"/users/bob/favorites/"+story.StoryID, map[string]any{"token": token})
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", status, http.StatusUnauthorized)
	}
}

func TestDeleteStory_RemovesFromFavorites(t *testing.T) {
	s, ts := newTestServer(t)
	aliceToken, _ := s.SeedUser("alice", "pw", "Alice")
	bobToken, _ := s.SeedUser("bob", "pw", "Bob")
	story := s.SeedStory("bob", model.StoryInput{Title: "T", Author: "B", URL: "https://example.com"})

	call(t, http.MethodPost, ts.URL+"/users/alice/favorites/"+story.StoryID, map[string]any{"token": aliceToken})
	call(t, http.MethodPatch, ts.URL+"/stories/"+story.StoryID, map[string]any{"token": bobToken})

	status, body := call(t, http.MethodGet, ts.URL+"/users/alice?token="+aliceToken, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	user, _ := body["user"].(map[string]any)
	if favs, _ := user["favorites"].([]any); len(favs) != 0 {
		t.Errorf("favorites = %d, want 0 after story deletion", len(favs))
	}
}

func TestGetUser_RevokedToken_Returns401(t *testing.T) {
	s, ts := newTestServer(t)
	token, _ := s.SeedUser("alice", "pw", "Alice")
	s.RevokeToken(token)

	status, _ := call(t, http.MethodGet, ts.URL+"/users/alice?token="+token, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", status, http.StatusUnauthorized)
	}
}

func TestMetricsEndpoint_CountsStatuses(t *testing.T) {
	_, ts := newTestServer(t)
	call(t, http.MethodGet, ts.URL+"/stories/missing", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(raw), `snooze_fake_api_http_status_total{status_code="404"} 1`) {
		t.Errorf("expected 404 counter in metrics output:\n%s", raw)
	}
}

func TestLoggingMiddleware_OmitsQueryString(t *testing.T) {
	var buf bytes.Buffer
	s := New(slog.New(slog.NewJSONHandler(&buf, nil)), Options{BcryptCost: bcrypt.MinCost})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	call(t, http.MethodGet, ts.URL+"/users/alice?token=secret-token", nil)

	if strings.Contains(buf.String(), "secret-token") {
		t.Errorf("token leaked into request log: %s", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	if entry["path"] != "/users/alice" {
		t.Errorf("path = %v, want /users/alice", entry["path"])
	}
	if status, _ := entry["status"].(float64); status != http.StatusUnauthorized {
		t.Errorf("status = %v, want 401", entry["status"])
	}
}
