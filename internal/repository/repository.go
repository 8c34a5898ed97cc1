// Package repository is the only write path for tasks. Every mutation is
// queued onto a single worker so writes reach the store in submission order.
package repository

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tgienger/duetask/internal/models"
)

// ErrClosed is returned for mutations submitted after Close
var ErrClosed = errors.New("repository closed")

// Store is the persistence the repository serializes writes onto
type Store interface {
	Insert(ctx context.Context, t models.Task) (int64, bool, error)
	Update(ctx context.Context, t models.Task) (bool, error)
	Delete(ctx context.Context, t models.Task) (bool, error)
	DeleteAll(ctx context.Context) error
	Watch(ctx context.Context) <-chan []models.Task
}

// Pending is the completion handle of a queued mutation. Callers that don't
// care about the outcome can drop it.
type Pending struct {
	done chan struct{}
	id   int64
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func resolved(id int64, err error) *Pending {
	p := newPending()
	p.resolve(id, err)
	return p
}

func (p *Pending) resolve(id int64, err error) {
	p.id = id
	p.err = err
	close(p.done)
}

// Done is closed once the mutation has been applied or has failed
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the mutation completes. For inserts the returned ID is the
// one the store assigned, or 0 if the insert was ignored on conflict; for other
// mutations it is the affected task's ID.
func (p *Pending) Wait(ctx context.Context) (int64, error) {
	select {
	case <-p.done:
		return p.id, p.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type job struct {
	op  string
	run func(ctx context.Context) (int64, error)
	p   *Pending
}

// Repository serializes task mutations and exposes the store's live query
type Repository struct {
	store Store
	log   *log.Logger
	ctx   context.Context

	mu     sync.Mutex
	queue  []job
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// New starts a repository over store
func New(store Store, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	r := &Repository{
		store: store,
		log:   logger.WithPrefix("repository"),
		ctx:   context.Background(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go r.work()
	return r
}

func (r *Repository) work() {
	defer close(r.done)
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			closed := r.closed
			r.mu.Unlock()
			if closed {
				return
			}
			<-r.wake
			continue
		}
		j := r.queue[0]
		r.queue[0] = job{}
		r.queue = r.queue[1:]
		r.mu.Unlock()

		id, err := j.run(r.ctx)
		if err != nil {
			r.log.Error("mutation failed", "op", j.op, "id", id, "err", err)
		}
		j.p.resolve(id, err)
	}
}

func (r *Repository) submit(op string, run func(ctx context.Context) (int64, error)) *Pending {
	p := newPending()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		p.resolve(0, ErrClosed)
		return p
	}
	r.queue = append(r.queue, job{op: op, run: run, p: p})
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return p
}

// Insert queues a new task. Tasks with an empty title are rejected up front.
func (r *Repository) Insert(t models.Task) *Pending {
	if err := models.Validate(t); err != nil {
		return resolved(0, err)
	}
	return r.submit("insert", func(ctx context.Context) (int64, error) {
		id, _, err := r.store.Insert(ctx, t)
		return id, err
	})
}

// Update queues a replacement of the stored task with the same ID
func (r *Repository) Update(t models.Task) *Pending {
	if err := models.Validate(t); err != nil {
		return resolved(t.Key(), err)
	}
	return r.submit("update", func(ctx context.Context) (int64, error) {
		_, err := r.store.Update(ctx, t)
		return t.Key(), err
	})
}

// Delete queues removal of a task. Like every mutation, a failure is logged by
// the worker and never surfaces to a caller that ignores the handle.
func (r *Repository) Delete(t models.Task) *Pending {
	r.log.Debug("attempting to delete task", "id", t.Key())
	return r.submit("delete", func(ctx context.Context) (int64, error) {
		_, err := r.store.Delete(ctx, t)
		return t.Key(), err
	})
}

// DeleteAll queues removal of every task
func (r *Repository) DeleteAll() *Pending {
	return r.submit("delete_all", func(ctx context.Context) (int64, error) {
		return 0, r.store.DeleteAll(ctx)
	})
}

// Watch exposes the store's live query of all tasks ordered by due date
func (r *Repository) Watch(ctx context.Context) <-chan []models.Task {
	return r.store.Watch(ctx)
}

// Close stops accepting mutations and waits for queued ones to finish
func (r *Repository) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	<-r.done
}
