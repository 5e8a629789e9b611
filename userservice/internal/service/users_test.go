package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"user-platform/shared/authx"
	"user-platform/shared/contracts"
	"user-platform/shared/errx"
	"user-platform/shared/eventx"
	"user-platform/shared/logx"
	"user-platform/userservice/internal/models"
)

type fakeStore struct {
	byID    map[uuid.UUID]models.User
	byEmail map[string]models.User
	gets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]models.User),
	}
}

func (f *fakeStore) Insert(ctx context.Context, username string, email string, passwordHash string) (models.User, error) {
	if _, ok := f.byEmail[email]; ok {
		return models.User{}, errors.New(`duplicate key value violates unique constraint "users_email_key"`)
	}
	now := time.Now().UTC()
	user := models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.byID[user.ID] = user
	f.byEmail[email] = user
	return user, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	f.gets++
	user, ok := f.byID[id]
	if !ok {
		return models.User{}, errx.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return models.User{}, errx.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStore) Delete(ctx context.Context, id uuid.UUID) error {
	user, ok := f.byID[id]
	if !ok {
		return errx.ErrUserNotFound
	}
	delete(f.byID, id)
	delete(f.byEmail, user.Email)
	return nil
}

type fakeBus struct {
	events []*eventx.Event
}

func (f *fakeBus) Publish(ctx context.Context, event *eventx.Event) {
	f.events = append(f.events, event)
}

func (f *fakeBus) Subscribe(eventType string, handler eventx.Handler)   {}
func (f *fakeBus) Unsubscribe(eventType string, handler eventx.Handler) {}
func (f *fakeBus) HandlerCount(eventType string) int                    { return 0 }

type fakeCache struct {
	entries map[string][]byte
	sets    int
	deletes int
}

func (f *fakeCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	return false, nil
}

func (f *fakeCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.sets++
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	f.deletes++
	return nil
}

func newUsers(t *testing.T, store UserStore, bus eventx.Bus, opts Options) *Users {
	t.Helper()
	signer, err := authx.NewTokenSigner("test-secret-test-secret", "user-platform", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return NewUsers(store, bus, signer, logx.New("users-test", "test", "", "error"), opts)
}

func TestRegisterCreatesUserAndPublishesEvent(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	users := newUsers(t, store, bus, Options{})

	resp, err := users.Register(context.Background(), contracts.RegisterUserInput{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "supersecret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", resp.Email)
	}
	if len(bus.events) != 1 || bus.events[0].EventType != eventx.EventTypeUserCreated {
		t.Fatalf("expected one UserCreatedEvent, got %v", bus.events)
	}

	// Stored hash must verify against the original password.
	user := store.byEmail["alice@example.com"]
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("supersecret")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestRegisterValidationJoinsMessages(t *testing.T) {
	users := newUsers(t, newFakeStore(), &fakeBus{}, Options{})

	_, err := users.Register(context.Background(), contracts.RegisterUserInput{
		Username: "a",
		Email:    "not-an-email",
		Password: "short",
	})
	var vErr *errx.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(vErr.Messages) != 3 {
		t.Fatalf("expected three messages, got %v", vErr.Messages)
	}
}

func TestLoginReturnsTokenForValidCredentials(t *testing.T) {
	store := newFakeStore()
	users := newUsers(t, store, &fakeBus{}, Options{})
	if _, err := users.Register(context.Background(), contracts.RegisterUserInput{
		Username: "alice", Email: "a@b.com", Password: "supersecret",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tokens, err := users.Login(context.Background(), contracts.LoginInput{Email: "a@b.com", Password: "supersecret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken == "" {
		t.Fatal("expected access token")
	}

	verifier, err := authx.NewSecretVerifier("test-secret-test-secret", "user-platform", 0)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	id, err := verifier.Verify(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if id.Username != "alice" || id.Email != "a@b.com" {
		t.Fatalf("unexpected identity claims: %+v", id)
	}
}

func TestLoginRejectsUnknownEmailAndWrongPasswordIdentically(t *testing.T) {
	store := newFakeStore()
	users := newUsers(t, store, &fakeBus{}, Options{})
	if _, err := users.Register(context.Background(), contracts.RegisterUserInput{
		Username: "alice", Email: "a@b.com", Password: "supersecret",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, errUnknown := users.Login(context.Background(), contracts.LoginInput{Email: "nobody@b.com", Password: "supersecret"})
	_, errWrong := users.Login(context.Background(), contracts.LoginInput{Email: "a@b.com", Password: "wrongpass"})
	if !errors.Is(errUnknown, errx.ErrInvalidCredentials) || !errors.Is(errWrong, errx.ErrInvalidCredentials) {
		t.Fatalf("expected identical invalid credentials errors, got %v / %v", errUnknown, errWrong)
	}
}

func TestGetByIDPopulatesCache(t *testing.T) {
	store := newFakeStore()
	cache := &fakeCache{entries: make(map[string][]byte)}
	users := newUsers(t, store, &fakeBus{}, Options{Cache: cache})

	resp, err := users.Register(context.Background(), contracts.RegisterUserInput{
		Username: "alice", Email: "a@b.com", Password: "supersecret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := users.GetByID(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != resp.ID {
		t.Fatalf("unexpected user: %+v", got)
	}
	if cache.sets != 1 {
		t.Fatalf("expected cache populated once, got %d sets", cache.sets)
	}
}

func TestGetByIDMalformedIDIsNotFound(t *testing.T) {
	users := newUsers(t, newFakeStore(), &fakeBus{}, Options{})
	_, err := users.GetByID(context.Background(), "not-a-uuid")
	if !errors.Is(err, errx.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeletePublishesEventAndInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	cache := &fakeCache{entries: make(map[string][]byte)}
	users := newUsers(t, store, bus, Options{Cache: cache})

	resp, err := users.Register(context.Background(), contracts.RegisterUserInput{
		Username: "alice", Email: "a@b.com", Password: "supersecret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := authx.WithIdentity(context.Background(), authx.Identity{Subject: "admin-1"})
	if err := users.Delete(ctx, resp.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(bus.events) != 2 || bus.events[1].EventType != eventx.EventTypeUserDeleted {
		t.Fatalf("expected UserDeletedEvent, got %v", bus.events)
	}
	if bus.events[1].UserID != "admin-1" {
		t.Fatalf("expected acting user on event, got %q", bus.events[1].UserID)
	}
	if cache.deletes != 1 {
		t.Fatalf("expected cache invalidation, got %d deletes", cache.deletes)
	}
	if _, err := users.GetByID(context.Background(), resp.ID); !errors.Is(err, errx.ErrUserNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
}
