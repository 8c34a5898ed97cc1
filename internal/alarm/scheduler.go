// Package alarm schedules one-shot task reminders.
//
// Scheduler is the caller-facing contract: it validates the request, consults
// the exact-alarm permission and tells the user when something is refused.
// Manager is the alarm facility behind it: durable, replace-by-ID timers that
// invoke a callback when they go off.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tgienger/duetask/internal/models"
	"github.com/tgienger/duetask/internal/permission"
)

var (
	ErrPastTrigger        = errors.New("trigger time is not in the future")
	ErrPermissionRequired = errors.New("exact alarm permission not granted")
	ErrSecurity           = errors.New("exact alarm scheduling rejected")
)

// User-visible messages
const (
	MsgPastTrigger        = "Please select a future date and time"
	MsgPermissionRequired = "Allow exact alarms in settings to schedule reminders"
	MsgNotGranted         = "Permission to schedule exact alarms is not granted."
)

// Payload is what a reminder carries back when it fires
type Payload struct {
	TaskID *int64
}

// Facility registers and retracts one-shot alarms keyed by notification ID
type Facility interface {
	SetExact(ctx context.Context, a models.Alarm) error
	Cancel(ctx context.Context, notificationID int) error
}

// Messenger shows short user-visible messages
type Messenger interface {
	Message(text string)
}

// MessageFunc adapts a function to Messenger
type MessageFunc func(text string)

func (f MessageFunc) Message(text string) { f(text) }

// Scheduler validates and forwards reminder requests to a Facility
type Scheduler struct {
	facility Facility
	gate     permission.Gate
	messages Messenger
	log      *log.Logger
	now      func() time.Time
}

// NewScheduler creates a Scheduler
func NewScheduler(facility Facility, gate permission.Gate, messages Messenger, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if messages == nil {
		messages = MessageFunc(func(string) {})
	}
	return &Scheduler{
		facility: facility,
		gate:     gate,
		messages: messages,
		log:      logger.WithPrefix("scheduler"),
		now:      time.Now,
	}
}

// Schedule registers a reminder for triggerAt. Re-using a notification ID
// replaces the earlier reminder. Refusals are shown to the user and returned.
func (s *Scheduler) Schedule(ctx context.Context, triggerAt time.Time, notificationID int, p Payload) error {
	if !triggerAt.After(s.now()) {
		s.messages.Message(MsgPastTrigger)
		return fmt.Errorf("%w: %s", ErrPastTrigger, triggerAt.Format(time.RFC3339))
	}

	if state := s.gate.Check(permission.ExactAlarm); state != permission.Granted {
		s.log.Info("exact alarms not granted, requesting", "state", state, "notification_id", notificationID)
		s.gate.Request(permission.ExactAlarm)
		s.messages.Message(MsgPermissionRequired)
		return ErrPermissionRequired
	}

	a := models.Alarm{
		NotificationID: notificationID,
		TriggerAt:      triggerAt.UnixMilli(),
		TaskID:         p.TaskID,
	}
	if err := s.facility.SetExact(ctx, a); err != nil {
		if errors.Is(err, ErrSecurity) {
			s.messages.Message(MsgNotGranted)
		}
		s.log.Error("scheduling reminder failed", "notification_id", notificationID, "err", err)
		return err
	}

	s.log.Debug("reminder scheduled", "notification_id", notificationID, "at", triggerAt)
	return nil
}

// Cancel retracts a pending reminder. Unknown IDs are not an error.
func (s *Scheduler) Cancel(ctx context.Context, notificationID int) error {
	return s.facility.Cancel(ctx, notificationID)
}

// NotificationIDForTask folds a task ID into a notification ID
func NotificationIDForTask(id int64) int {
	return int(int32(id ^ (id >> 32)))
}
