package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"user-platform/gateway/internal/middleware"
	"user-platform/shared/authx"
	"user-platform/shared/contracts"
	"user-platform/shared/errx"
	"user-platform/shared/logx"
	"user-platform/shared/rpcx"
)

type scriptedTransport struct {
	pattern string
	body    []byte
	reply   []byte
}

func (f *scriptedTransport) Connect(ctx context.Context) error { return nil }

func (f *scriptedTransport) Request(ctx context.Context, pattern string, body []byte) ([]byte, error) {
	f.pattern = pattern
	f.body = body
	return f.reply, nil
}

func (f *scriptedTransport) Emit(ctx context.Context, pattern string, body []byte) error {
	return nil
}

func (f *scriptedTransport) Close() error { return nil }

func newTestServer(t *testing.T, transport *scriptedTransport) (*httptest.Server, string) {
	t.Helper()
	logger := logx.New("gateway-test", "test", "", "error")
	registry := rpcx.NewRegistry(logger)
	registry.Register(contracts.UserService, transport)

	secret := "test-secret-test-secret"
	signer, err := authx.NewTokenSigner(secret, "user-platform", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	verifier, err := authx.NewSecretVerifier(secret, "user-platform", 0)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	token, err := signer.Sign(authx.Identity{Subject: "caller-1", Email: "c@b.com", Username: "caller"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	auth := middleware.AuthMiddleware{Verifier: verifier}
	mux := http.NewServeMux()
	NewUsers(registry, logger).Register(mux, auth.Wrap)
	return httptest.NewServer(mux), token
}

func TestRegisterUserReturns201(t *testing.T) {
	transport := &scriptedTransport{reply: []byte(`{"data":{"id":"u1","username":"alice","email":"a@b.com"}}`)}
	srv, _ := newTestServer(t, transport)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/users", "application/json",
		strings.NewReader(`{"username":"alice","email":"a@b.com","password":"supersecret"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if transport.pattern != contracts.PatternCreateUser {
		t.Fatalf("expected CREATE_USER sent, got %q", transport.pattern)
	}

	var user contracts.UserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user: %+v", user)
	}

	// The wire body must be the enveloped registration input.
	data, _ := rpcx.Normalize(transport.body)
	var in contracts.RegisterUserInput
	if err := json.Unmarshal(data, &in); err != nil || in.Email != "a@b.com" {
		t.Fatalf("unexpected wire payload: %s", transport.body)
	}
}

func TestLoginReturnsTokens(t *testing.T) {
	transport := &scriptedTransport{reply: []byte(`{"data":{"accessToken":"jwt-token"}}`)}
	srv, _ := newTestServer(t, transport)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/auth/login", "application/json",
		strings.NewReader(`{"email":"a@b.com","password":"supersecret"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var tokens contracts.AuthTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil || tokens.AccessToken != "jwt-token" {
		t.Fatalf("unexpected tokens: %+v err=%v", tokens, err)
	}
}

func TestGetUserRequiresAuth(t *testing.T) {
	transport := &scriptedTransport{reply: []byte(`{"data":{"id":"u1"}}`)}
	srv, token := newTestServer(t, transport)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/users/u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if transport.pattern != "" {
		t.Fatal("no RPC must be sent for unauthenticated requests")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/users/u1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	// Caller subject and raw credential both ride in metadata.
	_, meta := rpcx.Normalize(transport.body)
	if meta.Get(contracts.MetadataRequestUserID) != "caller-1" {
		t.Fatalf("expected requestUserId in metadata, got %v", meta)
	}
	if !strings.HasPrefix(meta.Get(contracts.MetadataAuthorization), "Bearer ") {
		t.Fatalf("expected authorization forwarded, got %v", meta)
	}
}

func TestRemoteErrorMapsToHTTPStatus(t *testing.T) {
	transport := &scriptedTransport{reply: []byte(`{"error":{"statusCode":404,"message":"User not found","error":"Not Found"}}`)}
	srv, token := newTestServer(t, transport)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/users/missing", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var remote errx.RemoteError
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if remote.StatusCode != 404 || remote.Message != "User not found" {
		t.Fatalf("unexpected error body: %+v", remote)
	}
}

func TestDeleteUserReturns204(t *testing.T) {
	transport := &scriptedTransport{reply: []byte(`{"data":null}`)}
	srv, token := newTestServer(t, transport)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/users/u1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if transport.pattern != contracts.PatternDeleteUser {
		t.Fatalf("expected DELETE_USER sent, got %q", transport.pattern)
	}
}
