package rpcx

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"user-platform/shared/authx"
	"user-platform/shared/errx"
)

func testVerifier(t *testing.T) (*authx.TokenSigner, *authx.SecretVerifier) {
	t.Helper()
	signer, err := authx.NewTokenSigner("test-secret-test-secret", "user-platform", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	verifier, err := authx.NewSecretVerifier("test-secret-test-secret", "user-platform", 0)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	return signer, verifier
}

func TestDispatchNormalizesAndRoutes(t *testing.T) {
	_, verifier := testVerifier(t)
	router := NewRouter(verifier, rpcTestLogger())

	var gotData string
	var gotMeta Metadata
	router.Handle("CREATE_USER", func(ctx context.Context, data json.RawMessage, meta Metadata) (any, error) {
		gotData = string(data)
		gotMeta = meta
		return map[string]string{"id": "u1"}, nil
	})

	out, err := router.Dispatch(context.Background(), "CREATE_USER",
		[]byte(`{"data":{"email":"a@b.com"},"metadata":{"requestUserId":"u9"}}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotData != `{"email":"a@b.com"}` {
		t.Fatalf("handler got wrong data: %s", gotData)
	}
	if gotMeta.Get("requestUserId") != "u9" {
		t.Fatalf("handler got wrong metadata: %v", gotMeta)
	}
	if m, ok := out.(map[string]string); !ok || m["id"] != "u1" {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestDispatchUnknownPattern(t *testing.T) {
	_, verifier := testVerifier(t)
	router := NewRouter(verifier, rpcTestLogger())
	if _, err := router.Dispatch(context.Background(), "NOPE", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unregistered pattern")
	}
}

func TestProtectedRejectsMissingToken(t *testing.T) {
	_, verifier := testVerifier(t)
	router := NewRouter(verifier, rpcTestLogger())

	invoked := false
	router.HandleProtected("DELETE_USER", func(ctx context.Context, data json.RawMessage, meta Metadata) (any, error) {
		invoked = true
		return nil, nil
	})

	_, err := router.Dispatch(context.Background(), "DELETE_USER", []byte(`{"data":"u1"}`))
	if !errors.Is(err, errx.ErrMissingCredential) {
		t.Fatalf("expected missing credential error, got %v", err)
	}
	if invoked {
		t.Fatal("handler must not run when the gate rejects")
	}
}

func TestProtectedRejectsGarbageToken(t *testing.T) {
	_, verifier := testVerifier(t)
	router := NewRouter(verifier, rpcTestLogger())

	invoked := false
	router.HandleProtected("DELETE_USER", func(ctx context.Context, data json.RawMessage, meta Metadata) (any, error) {
		invoked = true
		return nil, nil
	})

	body := []byte(`{"data":"u1","metadata":{"authorization":"Bearer not.a.jwt"}}`)
	_, err := router.Dispatch(context.Background(), "DELETE_USER", body)
	if !errors.Is(err, errx.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential error, got %v", err)
	}
	if invoked {
		t.Fatal("handler must not run for a garbage token")
	}
}

func TestProtectedAcceptsValidTokenAndSetsIdentity(t *testing.T) {
	signer, verifier := testVerifier(t)
	router := NewRouter(verifier, rpcTestLogger())

	token, err := signer.Sign(authx.Identity{Subject: "u1", Email: "a@b.com", Username: "alice"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var seen authx.Identity
	router.HandleProtected("GET_USER_BY_ID", func(ctx context.Context, data json.RawMessage, meta Metadata) (any, error) {
		id, ok := authx.FromContext(ctx)
		if !ok {
			t.Fatal("expected identity on context")
		}
		seen = id
		return nil, nil
	})

	// Metadata key casing must not matter.
	body := []byte(`{"data":"u1","metadata":{"Authorization":"Bearer ` + token + `"}}`)
	if _, err := router.Dispatch(context.Background(), "GET_USER_BY_ID", body); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if seen.Subject != "u1" || seen.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", seen)
	}
}
