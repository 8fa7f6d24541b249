package storyapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/snoozeclient/internal/fakeapi"
	"github.com/hitoshi/snoozeclient/internal/model"
)

// TestIntegration_StoryLifecycle はフェイクAPIに対して登録から削除までの一連の操作を検証する。
func TestIntegration_StoryLifecycle(t *testing.T) {
	fake := fakeapi.New(discardLogger(), fakeapi.Options{BcryptCost: bcrypt.MinCost})
	ts := httptest.NewServer(fake.Handler())
	defer ts.Close()

	c := NewClient(ts.Client(), discardLogger(), Config{BaseURL: ts.URL})
	ctx := context.Background()

	account, err := c.Signup(ctx, "alice", "pw", "Alice")
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	session := account.Session

	if _, err := c.Signup(ctx, "alice", "other", "Alice"); !model.IsValidation(err) {
		t.Errorf("duplicate Signup: expected ValidationError, got %v", err)
	}
	if _, err := c.Login(ctx, "alice", "wrong"); !model.IsAuth(err) {
		t.Errorf("bad Login: expected AuthError, got %v", err)
	}

	input := model.StoryInput{Title: "Hello", Author: "Alice", URL: "https://example.com/hello"}
	created, err := c.CreateStory(ctx, session, input)
	if err != nil {
		t.Fatalf("CreateStory() error: %v", err)
	}
	if created.Username != "alice" || created.Title != input.Title || created.CreatedAt.IsZero() {
		t.Errorf("unexpected created story: %+v", created)
	}

	fetched, err := c.FetchStory(ctx, created.StoryID)
	if err != nil {
		t.Fatalf("FetchStory() error: %v", err)
	}
	if fetched != created {
		t.Errorf("FetchStory() = %+v, want %+v", fetched, created)
	}

	if err := c.SetFavorite(ctx, session, created.StoryID, true); err != nil {
		t.Fatalf("SetFavorite(true) error: %v", err)
	}
	rehydrated := c.RehydrateSession(ctx, session.Token, session.Username)
	if rehydrated == nil {
		t.Fatal("RehydrateSession() returned nil")
	}
	if len(rehydrated.Favorites) != 1 || rehydrated.Favorites[0].StoryID != created.StoryID {
		t.Errorf("Favorites = %+v", rehydrated.Favorites)
	}
	if len(rehydrated.OwnStories) != 1 {
		t.Errorf("OwnStories = %+v", rehydrated.OwnStories)
	}

	bob, err := c.Signup(ctx, "bob", "pw", "Bob")
	if err != nil {
		t.Fatalf("Signup(bob) error: %v", err)
	}
	if err := c.DeleteStory(ctx, bob.Session, created.StoryID); !model.IsForbidden(err) {
		t.Errorf("non-owner DeleteStory: expected ForbiddenError, got %v", err)
	}

	if err := c.DeleteStory(ctx, session, created.StoryID); err != nil {
		t.Fatalf("DeleteStory() error: %v", err)
	}
	if err := c.DeleteStory(ctx, session, created.StoryID); !model.IsNotFound(err) {
		t.Errorf("second DeleteStory: expected NotFoundError, got %v", err)
	}
	if _, err := c.FetchStory(ctx, created.StoryID); !model.IsNotFound(err) {
		t.Errorf("FetchStory after delete: expected NotFoundError, got %v", err)
	}

	fake.RevokeToken(session.Token)
	if c.RehydrateSession(ctx, session.Token, session.Username) != nil {
		t.Error("RehydrateSession() with revoked token should return nil")
	}
}
