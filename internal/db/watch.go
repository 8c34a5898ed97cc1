package db

import (
	"context"
	"sync"

	"github.com/tgienger/duetask/internal/models"
)

// Notifier fans out "table changed" signals to live queries.
// Signals coalesce: a subscriber that is busy sees one pending signal.
type Notifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewNotifier creates an empty Notifier
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[chan struct{}]struct{})}
}

// Subscribe returns a channel that receives a signal after each change
func (n *Notifier) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	delete(n.subs, ch)
	n.mu.Unlock()
}

// Notify signals every subscriber without blocking
func (n *Notifier) Notify() {
	n.mu.Lock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
			// already has a pending signal
		}
	}
	n.mu.Unlock()
}

// Watch is the live "all tasks by due date" query. It emits the current list
// immediately and again after every committed change, until ctx is done or
// the database is closed. Call Watch again to restart.
func (db *DB) Watch(ctx context.Context) <-chan []models.Task {
	out := make(chan []models.Task)
	// Subscribe before the first read so no change can slip between them
	sig := db.notifier.Subscribe()

	go func() {
		defer close(out)
		defer db.notifier.Unsubscribe(sig)

		for {
			tasks, err := db.ListTasks(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				db.log.Error("live query failed", "err", err)
			} else {
				select {
				case out <- tasks:
				case <-ctx.Done():
					return
				case <-db.closed:
					return
				}
			}

			select {
			case <-sig:
			case <-ctx.Done():
				return
			case <-db.closed:
				return
			}
		}
	}()

	return out
}
