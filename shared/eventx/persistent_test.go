package eventx

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeStore struct {
	mu       sync.Mutex
	appended []*Event
	fail     bool
}

func (s *fakeStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	s.appended = append(s.appended, event)
	return nil
}

func (s *fakeStore) ByAggregateID(ctx context.Context, aggregateID string) ([]Record, error) {
	return nil, nil
}

func (s *fakeStore) ByAggregateIDAndType(ctx context.Context, aggregateID string, aggregateType string) ([]Record, error) {
	return nil, nil
}

func (s *fakeStore) ByEventType(ctx context.Context, eventType string) ([]Record, error) {
	return nil, nil
}

func (s *fakeStore) ByUserID(ctx context.Context, userID string) ([]Record, error) {
	return nil, nil
}

func (s *fakeStore) All(ctx context.Context, limit int, offset int) ([]Record, error) {
	return nil, nil
}

func (s *fakeStore) Count(ctx context.Context) (int64, error) { return 0, nil }

func TestPersistentBusAppendsThenFansOut(t *testing.T) {
	store := &fakeStore{}
	bus := NewPersistentBus(store, testLogger())
	h := &recordingHandler{}
	bus.Subscribe(EventTypeUserCreated, h)

	event := New(EventTypeUserCreated, "abc", "User", "abc", map[string]any{"id": "abc", "email": "a@b.com"})
	bus.Publish(context.Background(), event)

	if len(store.appended) != 1 || store.appended[0] != event {
		t.Fatalf("expected event appended to store, got %v", store.appended)
	}
	if got := h.seen(); len(got) != 1 || got[0] != event {
		t.Fatalf("expected exactly one delivery, got %v", got)
	}
}

func TestPersistentBusStoreFailureDoesNotAbortFanOut(t *testing.T) {
	store := &fakeStore{fail: true}
	bus := NewPersistentBus(store, testLogger())
	h := &recordingHandler{}
	bus.Subscribe(EventTypeUserCreated, h)

	bus.Publish(context.Background(), New(EventTypeUserCreated, "abc", "User", "", nil))

	if got := h.seen(); len(got) != 1 {
		t.Fatalf("expected delivery despite store failure, got %d", len(got))
	}
}

func TestPersistentBusWithoutStoreStillDelivers(t *testing.T) {
	bus := NewPersistentBus(nil, testLogger())
	h := &recordingHandler{}
	bus.Subscribe(EventTypeUserCreated, h)

	bus.Publish(context.Background(), New(EventTypeUserCreated, "abc", "User", "", nil))

	if got := h.seen(); len(got) != 1 {
		t.Fatalf("expected delivery with no store wired, got %d", len(got))
	}
}
