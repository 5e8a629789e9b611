package errx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestTranslateDuplicateKey(t *testing.T) {
	out := Translate(errors.New(`duplicate key value violates unique constraint "users_email_key"`))
	if out.StatusCode != 409 {
		t.Fatalf("expected 409, got %d", out.StatusCode)
	}
	if out.Message != "Email or username already exists" {
		t.Fatalf("unexpected message: %q", out.Message)
	}
	if out.ErrorText != "Conflict" {
		t.Fatalf("unexpected error text: %q", out.ErrorText)
	}
}

func TestTranslatePgUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505", Message: "boom"})
	if out := Translate(err); out.StatusCode != 409 {
		t.Fatalf("expected 409 for pg code 23505, got %d", out.StatusCode)
	}
}

func TestTranslateOrderingDuplicateBeatsNotFound(t *testing.T) {
	// Database-class signals are checked first, so a message matching both
	// markers classifies as 409, never 404.
	out := Translate(errors.New("duplicate key on insert: User not found in unique index"))
	if out.StatusCode != 409 {
		t.Fatalf("expected 409, got %d", out.StatusCode)
	}
}

func TestTranslateNotFound(t *testing.T) {
	out := Translate(fmt.Errorf("lookup: %w", ErrUserNotFound))
	if out.StatusCode != 404 || out.Message != "User not found" || out.ErrorText != "Not Found" {
		t.Fatalf("unexpected translation: %+v", out)
	}
}

func TestTranslateInvalidCredentials(t *testing.T) {
	out := Translate(ErrInvalidCredentials)
	if out.StatusCode != 401 || out.ErrorText != "Unauthorized" {
		t.Fatalf("unexpected translation: %+v", out)
	}
}

func TestTranslateValidationJoinsMessages(t *testing.T) {
	out := Translate(&ValidationError{Messages: []string{"email must be valid", "password too short"}})
	if out.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", out.StatusCode)
	}
	if out.Message != "email must be valid, password too short" {
		t.Fatalf("unexpected message: %q", out.Message)
	}
}

func TestTranslateRemotePassThrough(t *testing.T) {
	out := Translate(ErrMissingCredential)
	if out != ErrMissingCredential {
		t.Fatalf("expected pass-through, got %+v", out)
	}
}

func TestTranslateFallback(t *testing.T) {
	out := Translate(errors.New("pool exhausted"))
	if out.StatusCode != 500 || out.Message != "pool exhausted" {
		t.Fatalf("unexpected translation: %+v", out)
	}

	out = Translate(errors.New(""))
	if out.Message != "Internal server error" {
		t.Fatalf("expected generic message, got %q", out.Message)
	}
}
