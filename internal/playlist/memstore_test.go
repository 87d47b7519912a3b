package playlist

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"musicroom/internal/users"
)

type memStore struct {
	mu        sync.Mutex
	playlists map[string]*Playlist
	users     map[string]*users.User

	failSave error
}

func newMemStore(names ...string) *memStore {
	s := &memStore{playlists: map[string]*Playlist{}, users: map[string]*users.User{}}
	for _, n := range names {
		s.users[n] = &users.User{ID: n, Name: n + " name", Email: n + "@example.com"}
	}
	return s
}

func clonePlaylist(p *Playlist) *Playlist {
	c := *p
	c.Tracks = slices.Clone(p.Tracks)
	c.Collaborators = slices.Clone(p.Collaborators)
	c.Followers = slices.Clone(p.Followers)
	c.CouldEdit = slices.Clone(p.CouldEdit)
	c.PendingInvites = slices.Clone(p.PendingInvites)
	c.normalize()
	return &c
}

func cloneUser(u *users.User) *users.User {
	c := *u
	c.EventNotifications = maps.Clone(u.EventNotifications)
	c.PlaylistNotifications = maps.Clone(u.PlaylistNotifications)
	return &c
}

func (s *memStore) playlist(id string) *Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.playlists[id]; ok {
		return clonePlaylist(p)
	}
	return nil
}

func (s *memStore) user(id string) *users.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u)
	}
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Playlist, error) {
	if p := s.playlist(id); p != nil {
		return p, nil
	}
	return nil, ErrNotFound
}

func (s *memStore) Create(_ context.Context, p *Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playlists[p.ID] = clonePlaylist(p)
	return nil
}

func (s *memStore) filter(keep func(p *Playlist) bool) []Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Playlist{}
	for _, p := range s.playlists {
		if keep(p) {
			out = append(out, *clonePlaylist(p))
		}
	}
	slices.SortFunc(out, func(a, b Playlist) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func (s *memStore) ListPublic(_ context.Context, limit int) ([]Playlist, error) {
	out := s.filter(func(p *Playlist) bool { return p.IsPublic })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListForUser(_ context.Context, userID string) ([]Playlist, error) {
	return s.filter(func(p *Playlist) bool { return p.IsMember(userID) }), nil
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

	tx := &memTx{s: s, playlists: map[string]*Playlist{}, users: map[string]*users.User{}, deleted: map[string]bool{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.playlists {
		s.playlists[id] = clonePlaylist(p)
	}
	for id := range tx.deleted {
		delete(s.playlists, id)
	}
	for id, u := range tx.users {
		s.users[id] = cloneUser(u)
	}
	return nil
}

type memTx struct {
	s         *memStore
	playlists map[string]*Playlist
	users     map[string]*users.User
	deleted   map[string]bool
}

func (t *memTx) LockPlaylist(_ context.Context, id string) (*Playlist, error) {
	if p, ok := t.playlists[id]; ok {
		return p, nil
	}
	p, ok := t.s.playlists[id]
	if !ok || t.deleted[id] {
		return nil, ErrNotFound
	}
	return clonePlaylist(p), nil
}

func (t *memTx) SavePlaylist(_ context.Context, p *Playlist) error {
	if t.s.failSave != nil {
		return t.s.failSave
	}
	if _, ok := t.s.playlists[p.ID]; !ok {
		return ErrNotFound
	}
	t.playlists[p.ID] = p
	return nil
}

func (t *memTx) DeletePlaylist(_ context.Context, id string) error {
	if _, ok := t.s.playlists[id]; !ok {
		return ErrNotFound
	}
	delete(t.playlists, id)
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

var t0 = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

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
