package notify

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tgienger/duetask/internal/deeplink"
)

// ErrNoAlert is returned when tapping an alert that is not shown
var ErrNoAlert = errors.New("no such alert")

// Tray is an in-process Display. It keeps one alert per ID and lets
// subscribers know whenever the set of shown alerts changes.
type Tray struct {
	mu     sync.Mutex
	alerts map[int]Alert
	seq    map[int]int
	next   int
	subs   map[chan struct{}]struct{}
}

// NewTray creates an empty Tray
func NewTray() *Tray {
	return &Tray{
		alerts: make(map[int]Alert),
		seq:    make(map[int]int),
		subs:   make(map[chan struct{}]struct{}),
	}
}

// Notify shows a, replacing any alert with the same ID
func (t *Tray) Notify(a Alert) error {
	t.mu.Lock()
	t.alerts[a.ID] = a
	t.next++
	t.seq[a.ID] = t.next
	t.mu.Unlock()
	t.changed()
	return nil
}

// Active returns the shown alerts, most recent first
func (t *Tray) Active() []Alert {
	t.mu.Lock()
	defer t.mu.Unlock()

	alerts := make([]Alert, 0, len(t.alerts))
	for _, a := range t.alerts {
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return t.seq[alerts[i].ID] > t.seq[alerts[j].ID]
	})
	return alerts
}

// Tap activates an alert and returns its decoded link with the screens it
// opens, bottom first. Auto-cancel alerts are dismissed even when the
// payload turns out to be invalid.
func (t *Tray) Tap(id int) (deeplink.Link, []string, error) {
	t.mu.Lock()
	a, ok := t.alerts[id]
	if ok && a.AutoCancel {
		delete(t.alerts, id)
		delete(t.seq, id)
	}
	t.mu.Unlock()

	if !ok {
		return deeplink.Link{}, nil, fmt.Errorf("%w: %d", ErrNoAlert, id)
	}
	if a.AutoCancel {
		t.changed()
	}

	link, err := a.Link()
	if err != nil {
		return deeplink.Link{}, nil, fmt.Errorf("tap alert %d: %w", id, err)
	}
	return link, link.BackStack(), nil
}

// Dismiss removes an alert without opening it
func (t *Tray) Dismiss(id int) {
	t.mu.Lock()
	_, ok := t.alerts[id]
	delete(t.alerts, id)
	delete(t.seq, id)
	t.mu.Unlock()
	if ok {
		t.changed()
	}
}

// Subscribe returns a channel signalled after every change
func (t *Tray) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber
func (t *Tray) Unsubscribe(ch chan struct{}) {
	t.mu.Lock()
	delete(t.subs, ch)
	t.mu.Unlock()
}

func (t *Tray) changed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
