package domain

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// TaskStore defines the persistence operations task handlers rely on.
type TaskStore interface {
	FindTasks(ctx context.Context, q TaskQuery) ([]Task, error)
	// FindTask returns nil when no task has the given id.
	FindTask(ctx context.Context, id string) (*Task, error)
	InsertTask(ctx context.Context, t Task) (Task, error)
	// UpdateTask returns nil when the owner's task no longer exists.
	UpdateTask(ctx context.Context, owner, id string, p TaskPatch) (*Task, error)
	// DeleteTask returns ErrNotFound when nothing was removed.
	DeleteTask(ctx context.Context, owner, id string) error
}

// TaskService implements the task operations for an authenticated caller.
type TaskService struct{ st TaskStore }

func NewTaskService(st TaskStore) TaskService { return TaskService{st: st} }

// List returns the caller's tasks filtered and sorted per params.
func (s TaskService) List(ctx context.Context, owner string, params ListParams) ([]Task, error) {
	tasks, err := s.st.FindTasks(ctx, BuildTaskQuery(owner, params))
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// Get returns one task. A missing task is ErrNotFound even if the id could
// belong to someone else; an existing foreign task is ErrForbidden.
func (s TaskService) Get(ctx context.Context, owner, id string) (Task, error) {
	t, err := s.owned(ctx, owner, id)
	if err != nil {
		return Task{}, err
	}
	return *t, nil
}

// Create validates in and stores a new task owned by owner.
func (s TaskService) Create(ctx context.Context, owner string, in TaskInput) (Task, error) {
	t, err := in.NewTask()
	if err != nil {
		return Task{}, err
	}
	t.Owner = owner
	created, err := s.st.InsertTask(ctx, t)
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}
	return created, nil
}

// Update validates in, checks existence then ownership, and merges the
// present fields into the stored task.
func (s TaskService) Update(ctx context.Context, owner, id string, in TaskInput) (Task, error) {
	patch, err := in.Patch()
	if err != nil {
		return Task{}, err
	}
	current, err := s.owned(ctx, owner, id)
	if err != nil {
		return Task{}, err
	}
	if patch.Empty() {
		return *current, nil
	}
	updated, err := s.st.UpdateTask(ctx, owner, id, patch)
	if err != nil {
		return Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	if updated == nil {
		log.WithField("task", id).Warn("task removed while being updated")
		return Task{}, ErrNotFound
	}
	return *updated, nil
}

// Delete removes the caller's task permanently.
func (s TaskService) Delete(ctx context.Context, owner, id string) error {
	if _, err := s.owned(ctx, owner, id); err != nil {
		return err
	}
	if err := s.st.DeleteTask(ctx, owner, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (s TaskService) owned(ctx context.Context, owner, id string) (*Task, error) {
	t, err := s.st.FindTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find task %s: %w", id, err)
	}
	if t == nil {
		return nil, ErrNotFound
	}
	if t.Owner != owner {
		return nil, ErrForbidden
	}
	return t, nil
}
