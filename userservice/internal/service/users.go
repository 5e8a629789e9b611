package service

import (
	"context"
	"errors"
	"strings"
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

// UserStore is the persistence surface the service needs.
type UserStore interface {
	Insert(ctx context.Context, username string, email string, passwordHash string) (models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Cache is the optional read-through cache for user lookups.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Users struct {
	store    UserStore
	bus      eventx.Bus
	signer   *authx.TokenSigner
	cache    Cache
	cacheTTL time.Duration
	logger   logx.Logger
}

type Options struct {
	Cache    Cache
	CacheTTL time.Duration
}

func NewUsers(store UserStore, bus eventx.Bus, signer *authx.TokenSigner, logger logx.Logger, opts Options) *Users {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Users{
		store:    store,
		bus:      bus,
		signer:   signer,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   logger,
	}
}

func (s *Users) Register(ctx context.Context, in contracts.RegisterUserInput) (contracts.UserResponse, error) {
	if err := validateRegistration(in); err != nil {
		return contracts.UserResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return contracts.UserResponse{}, err
	}

	user, err := s.store.Insert(ctx, strings.TrimSpace(in.Username), normalizeEmail(in.Email), string(hash))
	if err != nil {
		return contracts.UserResponse{}, err
	}

	s.bus.Publish(ctx, eventx.New(
		eventx.EventTypeUserCreated,
		user.ID.String(),
		"User",
		user.ID.String(),
		map[string]any{
			"id":       user.ID.String(),
			"username": user.Username,
			"email":    user.Email,
		},
	))

	return user.ToResponse(), nil
}

// Login deliberately answers unknown email and wrong password with the same
// error so callers cannot probe which emails are registered.
func (s *Users) Login(ctx context.Context, in contracts.LoginInput) (contracts.AuthTokens, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return contracts.AuthTokens{}, errx.ErrInvalidCredentials
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errx.ErrUserNotFound) {
			return contracts.AuthTokens{}, errx.ErrInvalidCredentials
		}
		return contracts.AuthTokens{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return contracts.AuthTokens{}, errx.ErrInvalidCredentials
	}

	token, err := s.signer.Sign(authx.Identity{
		Subject:  user.ID.String(),
		Email:    user.Email,
		Username: user.Username,
	})
	if err != nil {
		return contracts.AuthTokens{}, err
	}
	return contracts.AuthTokens{AccessToken: token}, nil
}

func (s *Users) GetByID(ctx context.Context, id string) (contracts.UserResponse, error) {
	userID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return contracts.UserResponse{}, errx.ErrUserNotFound
	}

	cacheKey := "user:id:" + userID.String()
	if s.cache != nil {
		var cached contracts.UserResponse
		hit, err := s.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn(ctx, "cache_read_failed", "falling back to database", logx.Err(err))
		} else if hit {
			return cached, nil
		}
	}

	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return contracts.UserResponse{}, err
	}
	resp := user.ToResponse()

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, resp, s.cacheTTL); err != nil {
			s.logger.Warn(ctx, "cache_write_failed", "serving uncached", logx.Err(err))
		}
	}
	return resp, nil
}

func (s *Users) FindByEmail(ctx context.Context, email string) (contracts.UserResponse, error) {
	user, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return contracts.UserResponse{}, err
	}
	return user.ToResponse(), nil
}

func (s *Users) Delete(ctx context.Context, id string) error {
	userID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return errx.ErrUserNotFound
	}

	if err := s.store.Delete(ctx, userID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, "user:id:"+userID.String()); err != nil {
			s.logger.Warn(ctx, "cache_invalidate_failed", "stale entry will expire by TTL", logx.Err(err))
		}
	}

	actor := userID.String()
	if id, ok := authx.FromContext(ctx); ok {
		actor = id.Subject
	}
	s.bus.Publish(ctx, eventx.New(
		eventx.EventTypeUserDeleted,
		userID.String(),
		"User",
		actor,
		map[string]any{"id": userID.String()},
	))
	return nil
}

func validateRegistration(in contracts.RegisterUserInput) error {
	var messages []string
	if len(strings.TrimSpace(in.Username)) < 3 {
		messages = append(messages, "username must be at least 3 characters")
	}
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		messages = append(messages, "email must be a valid email address")
	}
	if len(in.Password) < 8 {
		messages = append(messages, "password must be at least 8 characters")
	}
	if len(messages) > 0 {
		return &errx.ValidationError{Messages: messages}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
