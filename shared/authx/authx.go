package authx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the decoded, cryptographically verified caller identity. It is
// only ever produced by a Verifier, never taken from caller-supplied payload.
type Identity struct {
	Subject  string
	Email    string
	Username string
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	if v := ctx.Value(contextKey{}); v != nil {
		if id, ok := v.(Identity); ok {
			return id, true
		}
	}
	return Identity{}, false
}

// Verifier turns a raw bearer token into a verified Identity. Verification
// is binary: any failure (malformed, expired, bad signature) is
// ErrInvalidToken.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Identity, error)
}

// SecretVerifier validates HS256 tokens signed with a shared secret. This is
// the deployment default; OIDCVerifier covers the JWKS-based setups.
type SecretVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewSecretVerifier(secret string, issuer string, clockSkewSeconds int) (*SecretVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: missing secret", ErrInvalidToken)
	}
	if clockSkewSeconds < 0 {
		clockSkewSeconds = 0
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(time.Duration(clockSkewSeconds) * time.Second),
		jwt.WithExpirationRequired(),
	}
	if strings.TrimSpace(issuer) != "" {
		opts = append(opts, jwt.WithIssuer(strings.TrimSpace(issuer)))
	}
	return &SecretVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

func (v *SecretVerifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	return identityFromClaims(claims)
}

func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	subject := strings.TrimSpace(stringClaim(claims, "sub"))
	if subject == "" {
		return Identity{}, ErrInvalidToken
	}
	username := strings.TrimSpace(stringClaim(claims, "username"))
	if username == "" {
		username = strings.TrimSpace(stringClaim(claims, "preferred_username"))
	}
	return Identity{
		Subject:  subject,
		Email:    strings.TrimSpace(stringClaim(claims, "email")),
		Username: username,
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// TokenSigner issues HS256 access tokens carrying the Identity claims that
// SecretVerifier expects back.
type TokenSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenSigner(secret string, issuer string, ttl time.Duration) (*TokenSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenSigner{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (s *TokenSigner) Sign(id Identity) (string, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return "", errors.New("subject is required")
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":      id.Subject,
		"email":    id.Email,
		"username": id.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
