package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"primetrade-api/domain"
)

// memStore is an in-memory TaskStore and UserStore used to drive the HTTP
// layer end to end.
type memStore struct {
	mu      sync.Mutex
	tasks   map[string]domain.Task
	users   map[string]domain.User
	seq     int
	clock   time.Time
	failAll error
}

func newMemStore() *memStore {
	return &memStore{
		tasks: map[string]domain.Task{},
		users: map[string]domain.User{},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func (s *memStore) FindTasks(_ context.Context, q domain.TaskQuery) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	var out []domain.Task
	for _, t := range s.tasks {
		if q.Matches(t) {
			out = append(out, t)
		}
	}
	// map order is random; settle on creation order before the requested sort
	domain.SortTasks(out, "createdAt", true)
	domain.SortTasks(out, q.SortBy, q.Ascending)
	return out, nil
}

func (s *memStore) FindTask(_ context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *memStore) InsertTask(_ context.Context, t domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return domain.Task{}, s.failAll
	}
	t.ID = s.nextID("t")
	t.CreatedAt = s.tick()
	t.UpdatedAt = t.CreatedAt
	s.tasks[t.ID] = t
	return t, nil
}

func (s *memStore) UpdateTask(_ context.Context, owner, id string, p domain.TaskPatch) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	t, ok := s.tasks[id]
	if !ok || t.Owner != owner {
		return nil, nil
	}
	p.Apply(&t)
	t.UpdatedAt = s.tick()
	s.tasks[id] = t
	return &t, nil
}

func (s *memStore) DeleteTask(_ context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	t, ok := s.tasks[id]
	if !ok || t.Owner != owner {
		return domain.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memStore) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *memStore) InsertUser(_ context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return domain.User{}, domain.ErrEmailTaken
		}
	}
	u.ID = s.nextID("u")
	u.CreatedAt = s.tick()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u, nil
}

func (s *memStore) UpdateUser(_ context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	u.UpdatedAt = s.tick()
	s.users[id] = u
	return &u, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

var errBoom = errors.New("connection reset by peer")
