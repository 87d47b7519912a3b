package event

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"musicroom/internal/users"
)

// memStore is an in-memory Store. InTx serializes transactions on one
// mutex and commits staged rows only when fn succeeds.
type memStore struct {
	mu     sync.Mutex
	events map[string]*Event
	users  map[string]*users.User

	failSaveEvent error
}

func newMemStore(names ...string) *memStore {
	s := &memStore{events: map[string]*Event{}, users: map[string]*users.User{}}
	for _, n := range names {
		s.users[n] = &users.User{ID: n, Name: n + " name", Email: n + "@example.com"}
	}
	return s
}

func cloneEvent(e *Event) *Event {
	c := *e
	c.Attendees = slices.Clone(e.Attendees)
	c.Managers = slices.Clone(e.Managers)
	c.Songs = slices.Clone(e.Songs)
	c.UserRoles = maps.Clone(e.UserRoles)
	c.PendingInvites = slices.Clone(e.PendingInvites)
	c.TrackVotes = make(map[string][]string, len(e.TrackVotes))
	for k, v := range e.TrackVotes {
		c.TrackVotes[k] = slices.Clone(v)
	}
	c.normalize()
	return &c
}

func cloneUser(u *users.User) *users.User {
	c := *u
	c.EventNotifications = maps.Clone(u.EventNotifications)
	c.PlaylistNotifications = maps.Clone(u.PlaylistNotifications)
	return &c
}

func (s *memStore) event(id string) *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil
	}
	return cloneEvent(e)
}

func (s *memStore) user(id string) *users.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

func (s *memStore) Get(_ context.Context, id string) (*Event, error) {
	if e := s.event(id); e != nil {
		return e, nil
	}
	return nil, ErrNotFound
}

func (s *memStore) Create(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = cloneEvent(e)
	return nil
}

func (s *memStore) sorted(keep func(e *Event) bool) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Event{}
	for _, e := range s.events {
		if keep(e) {
			out = append(out, *cloneEvent(e))
		}
	}
	slices.SortFunc(out, func(a, b Event) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func (s *memStore) ListPublic(_ context.Context, limit int) ([]Event, error) {
	out := s.sorted(func(e *Event) bool { return e.IsPublic })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListForUser(_ context.Context, userID string) ([]Event, error) {
	return s.sorted(func(e *Event) bool { return e.IsMember(userID) }), nil
}

func (s *memStore) UserNames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u.DisplayName()
		}
	}
	return out, nil
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:       s,
		events:  map[string]*Event{},
		users:   map[string]*users.User{},
		deleted: map[string]bool{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, e := range tx.events {
		s.events[id] = cloneEvent(e)
	}
	for id := range tx.deleted {
		delete(s.events, id)
	}
	for id, u := range tx.users {
		s.users[id] = cloneUser(u)
	}
	return nil
}

type memTx struct {
	s       *memStore
	events  map[string]*Event
	users   map[string]*users.User
	deleted map[string]bool
}

func (t *memTx) LockEvent(_ context.Context, id string) (*Event, error) {
	if e, ok := t.events[id]; ok {
		return e, nil
	}
	e, ok := t.s.events[id]
	if !ok || t.deleted[id] {
		return nil, ErrNotFound
	}
	return cloneEvent(e), nil
}

func (t *memTx) SaveEvent(_ context.Context, e *Event) error {
	if t.s.failSaveEvent != nil {
		return t.s.failSaveEvent
	}
	if _, ok := t.s.events[e.ID]; !ok {
		return ErrNotFound
	}
	t.events[e.ID] = e
	return nil
}

func (t *memTx) DeleteEvent(_ context.Context, id string) error {
	if _, ok := t.s.events[id]; !ok {
		return ErrNotFound
	}
	delete(t.events, id)
	t.deleted[id] = true
	return nil
}

func (t *memTx) LockUser(ctx context.Context, id string) (*users.User, error) {
	return t.LoadUser(ctx, id)
}

func (t *memTx) LoadUser(_ context.Context, id string) (*users.User, error) {
	if u, ok := t.users[id]; ok {
		return u, nil
	}
	u, ok := t.s.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	c := cloneUser(u)
	t.users[id] = c
	return c, nil
}

func (t *memTx) SaveUser(_ context.Context, u *users.User) error {
	if _, ok := t.s.users[u.ID]; !ok {
		return users.ErrNotFound
	}
	t.users[u.ID] = u
	return nil
}

// fixedClock returns a clock advancing one second per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}
