package models

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyTitle is returned when a task has no title
var ErrEmptyTitle = errors.New("task title is empty")

// Task represents a single to-do item
type Task struct {
	ID        *int64 // nil until the store assigns one
	Title     string
	Notes     string
	DueDate   *int64 // epoch milliseconds, nil if the task has no due date
	Completed bool
}

// Alarm is a pending one-shot reminder registration
type Alarm struct {
	NotificationID int
	TriggerAt      int64  // epoch milliseconds
	TaskID         *int64 // task the reminder refers to, if any
	Token          string // identifies this registration; replaced on re-schedule
}

// Persisted reports whether the store has assigned an ID
func (t Task) Persisted() bool {
	return t.ID != nil
}

// Key returns the task ID, or 0 for a pending insert
func (t Task) Key() int64 {
	if t.ID == nil {
		return 0
	}
	return *t.ID
}

// Due returns the due date as a time, if set
func (t Task) Due() (time.Time, bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*t.DueDate), true
}

// Validate rejects tasks the store should never see
func Validate(t Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	return nil
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 {
	return &v
}

// ShareText renders a task the way it is shared with other apps
func ShareText(t Task) string {
	return "Task: " + t.Title + "\nNotes: " + t.Notes
}
