package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatline/chatline-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// fakeStore is an in-memory Store for hub tests. saveStarted and
// saveGate, when set, let a test observe a SaveMessage in flight and
// hold it there.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	saved    []*store.Message
	seen     map[int64]map[int64]struct{}
	offline  map[int64]int
	online   map[int64]int
	failSave error

	saveStarted chan struct{}
	saveGate    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		seen:    make(map[int64]map[int64]struct{}),
		offline: make(map[int64]int),
		online:  make(map[int64]int),
	}
}

func (f *fakeStore) SaveMessage(_ context.Context, msg *store.Message) error {
	if f.saveStarted != nil {
		f.saveStarted <- struct{}{}
	}
	if f.saveGate != nil {
		<-f.saveGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave != nil {
		return f.failSave
	}
	f.nextID++
	msg.ID = f.nextID
	f.saved = append(f.saved, msg)
	return nil
}

func (f *fakeStore) AddSeen(_ context.Context, messageID, userID int64) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *store.Message
	for _, m := range f.saved {
		if m.ID == messageID {
			found = m
			break
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	set, ok := f.seen[messageID]
	if !ok {
		set = make(map[int64]struct{})
		f.seen[messageID] = set
	}
	set[userID] = struct{}{}
	return found, nil
}

func (f *fakeStore) UpdatePresence(_ context.Context, userID int64, isOnline bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if isOnline {
		f.online[userID]++
	} else {
		f.offline[userID]++
	}
	return nil
}

func (f *fakeStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakeStore) seenCount(messageID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen[messageID])
}

func (f *fakeStore) offlineCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offline[userID]
}

func (f *fakeStore) onlineCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

var errStoreDown = errors.New("store down")
