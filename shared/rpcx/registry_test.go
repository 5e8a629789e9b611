package rpcx

import (
	"context"
	"errors"
	"testing"

	"user-platform/shared/errx"
	"user-platform/shared/logx"
)

type fakeTransport struct {
	requests   int
	emits      int
	pattern    string
	body       []byte
	reply      []byte
	replyErr   error
	connectErr error
}

func (f *fakeTransport) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeTransport) Request(ctx context.Context, pattern string, body []byte) ([]byte, error) {
	f.requests++
	f.pattern = pattern
	f.body = body
	return f.reply, f.replyErr
}

func (f *fakeTransport) Emit(ctx context.Context, pattern string, body []byte) error {
	f.emits++
	f.pattern = pattern
	f.body = body
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func rpcTestLogger() logx.Logger {
	return logx.New("rpcx-test", "test", "", "error")
}

func TestSendUnknownDestinationFailsBeforeIO(t *testing.T) {
	reg := NewRegistry(rpcTestLogger())
	ft := &fakeTransport{}
	reg.Register("USER_SERVICE", ft)

	_, err := Send[map[string]any](context.Background(), reg, "BILLING_SERVICE", "CREATE_INVOICE", nil, nil)
	if !errors.Is(err, ErrDestinationNotFound) {
		t.Fatalf("expected ErrDestinationNotFound, got %v", err)
	}
	if ft.requests != 0 {
		t.Fatalf("expected no transport I/O, got %d requests", ft.requests)
	}
}

func TestSendDecodesReplyData(t *testing.T) {
	ft := &fakeTransport{reply: []byte(`{"data":{"id":"u1","email":"a@b.com"}}`)}
	reg := NewRegistry(rpcTestLogger())
	reg.Register("USER_SERVICE", ft)

	type user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	got, err := Send[user](context.Background(), reg, "USER_SERVICE", "GET_USER_BY_ID", "u1", Metadata{"requestUserId": "u1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.ID != "u1" || got.Email != "a@b.com" {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if ft.pattern != "GET_USER_BY_ID" {
		t.Fatalf("unexpected pattern: %q", ft.pattern)
	}
}

func TestSendSurfacesRemoteError(t *testing.T) {
	ft := &fakeTransport{reply: []byte(`{"error":{"statusCode":404,"message":"User not found","error":"Not Found"}}`)}
	reg := NewRegistry(rpcTestLogger())
	reg.Register("USER_SERVICE", ft)

	_, err := Send[map[string]any](context.Background(), reg, "USER_SERVICE", "GET_USER_BY_ID", "nope", nil)
	var remote *errx.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.StatusCode != 404 || remote.Message != "User not found" {
		t.Fatalf("unexpected remote error: %+v", remote)
	}
}

func TestRegisterKeepsFirstBinding(t *testing.T) {
	first := &fakeTransport{reply: []byte(`{"data":1}`)}
	second := &fakeTransport{reply: []byte(`{"data":2}`)}
	reg := NewRegistry(rpcTestLogger())
	reg.Register("USER_SERVICE", first)
	reg.Register("USER_SERVICE", second)

	got, err := Send[int](context.Background(), reg, "USER_SERVICE", "PING", nil, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != 1 || first.requests != 1 || second.requests != 0 {
		t.Fatalf("expected first binding to serve, got %d (first=%d second=%d)", got, first.requests, second.requests)
	}
}

func TestConnectAllIsLenient(t *testing.T) {
	broken := &fakeTransport{connectErr: errors.New("broker down")}
	healthy := &fakeTransport{}
	reg := NewRegistry(rpcTestLogger())
	reg.Register("BROKEN", broken)
	reg.Register("HEALTHY", healthy)

	// Must not panic or abort on the failing destination.
	reg.ConnectAll(context.Background())
}
