package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"primetrade-api/domain"
)

// Cache wraps a TaskStore with Redis-backed caching of list results.
// Every list variant of an owner lives as a field of one hash so a write
// can drop all of them at once. Writes also bump a per-owner generation;
// a list read from the backing store is cached only if the generation has
// not moved since the read started.
type Cache struct {
	base  domain.TaskStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching TaskStore using the provided Redis client and TTL.
func NewCache(base domain.TaskStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FindTasks(ctx context.Context, q domain.TaskQuery) ([]domain.Task, error) {
	if tasks, ok := c.loadTasks(ctx, q); ok {
		return tasks, nil
	}
	gen, cacheable := c.generation(ctx, q.Owner)
	tasks, err := c.base.FindTasks(ctx, q)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.storeTasks(ctx, q, gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) FindTask(ctx context.Context, id string) (*domain.Task, error) {
	return c.base.FindTask(ctx, id)
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.InsertTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, t.Owner)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, owner, id string, p domain.TaskPatch) (*domain.Task, error) {
	updated, err := c.base.UpdateTask(ctx, owner, id, p)
	c.evict(ctx, owner)
	return updated, err
}

func (c *Cache) DeleteTask(ctx context.Context, owner, id string) error {
	err := c.base.DeleteTask(ctx, owner, id)
	c.evict(ctx, owner)
	return err
}

func (c *Cache) loadTasks(ctx context.Context, q domain.TaskQuery) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := tasksCacheKey(q.Owner)
	data, err := c.redis.HGet(ctx, key, queryCacheField(q)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			log.WithError(err).WithField("key", key).Warn("tasks cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

var errStaleList = errors.New("tasks changed during read")

// generation reports the owner's write counter. ok is false when nothing
// should be cached for this read.
func (c *Cache) generation(ctx context.Context, owner string) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, tasksGenKey(owner)).Int64()
	if err != nil && err != redis.Nil {
		return 0, false
	}
	return gen, true
}

func (c *Cache) storeTasks(ctx context.Context, q domain.TaskQuery, gen int64, tasks []domain.Task) {
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	key, genKey := tasksCacheKey(q.Owner), tasksGenKey(q.Owner)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleList
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, queryCacheField(q), data)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleList), errors.Is(err, redis.TxFailedErr):
		log.WithField("key", key).Debug("tasks cache write skipped, list changed")
	default:
		log.WithError(err).WithField("key", key).Warn("tasks cache write failed")
	}
}

func (c *Cache) evict(ctx context.Context, owner string) {
	if c.redis == nil {
		return
	}
	genKey := tasksGenKey(owner)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, c.ttl+time.Hour)
		pipe.Del(ctx, tasksCacheKey(owner))
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("owner", owner).Warn("tasks cache evict failed")
	}
}

func tasksCacheKey(owner string) string {
	return "tasks:" + owner
}

func tasksGenKey(owner string) string {
	return "tasks-gen:" + owner
}

// queryCacheField identifies one list variant within an owner's hash.
func queryCacheField(q domain.TaskQuery) string {
	return url.Values{
		"status":   {q.Status},
		"priority": {q.Priority},
		"search":   {q.Search},
		"sort":     {q.SortBy},
		"asc":      {strconv.FormatBool(q.Ascending)},
	}.Encode()
}
