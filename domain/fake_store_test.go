package domain

import (
	"context"
	"errors"
	"strconv"
	"time"
)

type fakeTaskStore struct {
	tasks  map[string]Task
	order  []string
	nextID int
	now    time.Time
	err    error

	lastQuery TaskQuery
	updates   int
	deletes   int
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]Task{}, now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeTaskStore) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fakeTaskStore) FindTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	var out []Task
	for _, id := range f.order {
		if t, ok := f.tasks[id]; ok && q.Matches(t) {
			out = append(out, t)
		}
	}
	SortTasks(out, q.SortBy, q.Ascending)
	return out, nil
}

func (f *fakeTaskStore) FindTask(ctx context.Context, id string) (*Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTaskStore) InsertTask(ctx context.Context, t Task) (Task, error) {
	if f.err != nil {
		return Task{}, f.err
	}
	f.nextID++
	t.ID = "t" + strconv.Itoa(f.nextID)
	t.CreatedAt = f.tick()
	t.UpdatedAt = t.CreatedAt
	f.tasks[t.ID] = t
	f.order = append(f.order, t.ID)
	return t, nil
}

func (f *fakeTaskStore) UpdateTask(ctx context.Context, owner, id string, p TaskPatch) (*Task, error) {
	f.updates++
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tasks[id]
	if !ok || t.Owner != owner {
		return nil, nil
	}
	p.Apply(&t)
	t.UpdatedAt = f.tick()
	f.tasks[id] = t
	return &t, nil
}

func (f *fakeTaskStore) DeleteTask(ctx context.Context, owner, id string) error {
	f.deletes++
	if f.err != nil {
		return f.err
	}
	t, ok := f.tasks[id]
	if !ok || t.Owner != owner {
		return ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

type fakeUserStore struct {
	users  map[string]User
	nextID int
	err    error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]User{}}
}

func (f *fakeUserStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeUserStore) InsertUser(ctx context.Context, u User) (User, error) {
	if f.err != nil {
		return User{}, f.err
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return User{}, ErrEmailTaken
		}
	}
	f.nextID++
	u.ID = "u" + strconv.Itoa(f.nextID)
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) UpdateUser(ctx context.Context, id string, p UserPatch) (*User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
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
	f.users[id] = u
	return &u, nil
}

type fakeIssuer struct{ err error }

func (f fakeIssuer) IssueToken(u User) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-" + u.ID, nil
}

var errBoom = errors.New("boom")

func ptrString(s string) *string { return &s }
