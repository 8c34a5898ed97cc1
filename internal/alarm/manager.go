package alarm

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tgienger/duetask/internal/models"
	"github.com/tgienger/duetask/internal/permission"
)

// Store persists registrations so they outlive the process
type Store interface {
	SaveAlarm(ctx context.Context, a models.Alarm) error
	DeleteAlarm(ctx context.Context, notificationID int, token string) error
	ListAlarms(ctx context.Context) ([]models.Alarm, error)
}

// FireFunc receives an alarm when it goes off
type FireFunc func(ctx context.Context, a models.Alarm)

type armed struct {
	alarm models.Alarm
	timer *time.Timer
}

// Manager is a timer-backed exact alarm facility. Registrations are written
// to the store first, so Restore can re-arm them after a restart.
type Manager struct {
	store  Store
	perms  permission.Checker
	fire   FireFunc
	log    *log.Logger
	window time.Duration
	now    func() time.Time

	// held across the store write and the matching arm or stop, so the
	// stored row and the armed timer for an ID always carry the same token
	regMu sync.Mutex

	mu     sync.Mutex
	armed  map[int]*armed
	closed bool
}

// NewManager creates a Manager. A non-zero window lets each alarm go off up to
// window after its trigger time.
func NewManager(store Store, perms permission.Checker, fire FireFunc, window time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Manager{
		store:  store,
		perms:  perms,
		fire:   fire,
		log:    logger.WithPrefix("alarm"),
		window: window,
		now:    time.Now,
		armed:  make(map[int]*armed),
	}
}

// SetExact registers a, replacing any pending alarm with the same notification ID
func (m *Manager) SetExact(ctx context.Context, a models.Alarm) error {
	if m.perms.Check(permission.ExactAlarm) != permission.Granted {
		return fmt.Errorf("%w: notification %d", ErrSecurity, a.NotificationID)
	}

	m.regMu.Lock()
	defer m.regMu.Unlock()

	a.Token = uuid.NewString()
	if err := m.store.SaveAlarm(ctx, a); err != nil {
		return fmt.Errorf("save alarm %d: %w", a.NotificationID, err)
	}
	m.arm(a)
	return nil
}

// Cancel retracts the alarm with notificationID, if any
func (m *Manager) Cancel(ctx context.Context, notificationID int) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	m.mu.Lock()
	if entry, ok := m.armed[notificationID]; ok {
		entry.timer.Stop()
		delete(m.armed, notificationID)
	}
	m.mu.Unlock()

	if err := m.store.DeleteAlarm(ctx, notificationID, ""); err != nil {
		return fmt.Errorf("delete alarm %d: %w", notificationID, err)
	}
	return nil
}

// Restore re-arms every persisted registration. Overdue ones go off right away.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	alarms, err := m.store.ListAlarms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list alarms: %w", err)
	}
	for _, a := range alarms {
		m.arm(a)
	}
	if len(alarms) > 0 {
		m.log.Info("restored alarms", "count", len(alarms))
	}
	return len(alarms), nil
}

// Pending returns the armed registrations, soonest first
func (m *Manager) Pending() []models.Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()

	alarms := make([]models.Alarm, 0, len(m.armed))
	for _, entry := range m.armed {
		alarms = append(alarms, entry.alarm)
	}
	sort.Slice(alarms, func(i, j int) bool {
		return alarms[i].TriggerAt < alarms[j].TriggerAt
	})
	return alarms
}

// Close stops all timers. Registrations stay in the store for Restore.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for id, entry := range m.armed {
		entry.timer.Stop()
		delete(m.armed, id)
	}
}

func (m *Manager) arm(a models.Alarm) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if prev, ok := m.armed[a.NotificationID]; ok {
		prev.timer.Stop()
	}

	delay := time.UnixMilli(a.TriggerAt).Sub(m.now())
	if m.window > 0 {
		delay += rand.N(m.window)
	}
	if delay < 0 {
		delay = 0
	}

	entry := &armed{alarm: a}
	entry.timer = time.AfterFunc(delay, func() { m.deliver(a) })
	m.armed[a.NotificationID] = entry
}

func (m *Manager) deliver(a models.Alarm) {
	m.mu.Lock()
	entry, ok := m.armed[a.NotificationID]
	// A replaced or cancelled registration may still have a timer in flight
	if !ok || entry.alarm.Token != a.Token || m.closed {
		m.mu.Unlock()
		return
	}
	delete(m.armed, a.NotificationID)
	m.mu.Unlock()

	ctx := context.Background()
	if err := m.store.DeleteAlarm(ctx, a.NotificationID, a.Token); err != nil {
		m.log.Error("clearing fired alarm", "notification_id", a.NotificationID, "err", err)
	}
	m.log.Debug("alarm fired", "notification_id", a.NotificationID)
	if m.fire != nil {
		m.fire(ctx, a)
	}
}
