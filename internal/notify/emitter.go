// Package notify shows task reminders to the user.
package notify

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/tgienger/duetask/internal/deeplink"
	"github.com/tgienger/duetask/internal/permission"
)

// Priority of an alert; reminders use PriorityMax so they are shown heads-up
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityMax
)

// Alert is a user-visible notification
type Alert struct {
	ID         int
	Title      string
	Body       string
	Payload    []byte // encoded deeplink.Link
	Priority   Priority
	AutoCancel bool // dismiss when tapped
}

// Link decodes and validates the alert's payload
func (a Alert) Link() (deeplink.Link, error) {
	return deeplink.Decode(a.Payload)
}

// Display is the host facility that puts alerts on screen. Notifying with an
// ID that is already showing replaces that alert.
type Display interface {
	Notify(a Alert) error
}

// Emitter builds reminder alerts and hands them to a Display
type Emitter struct {
	display Display
	perms   permission.Checker
	log     *log.Logger
}

// NewEmitter creates an Emitter
func NewEmitter(display Display, perms permission.Checker, logger *log.Logger) *Emitter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Emitter{
		display: display,
		perms:   perms,
		log:     logger.WithPrefix("notify"),
	}
}

// Emit shows an alert that opens link when tapped. Without the notification
// permission it does nothing and nothing is retried. Reports whether the
// alert reached the display.
func (e *Emitter) Emit(notificationID int, title, body string, link deeplink.Link) bool {
	if e.perms.Check(permission.Notifications) != permission.Granted {
		e.log.Debug("notifications not granted, dropping alert", "id", notificationID)
		return false
	}

	link.NotificationID = notificationID
	payload, err := deeplink.Encode(link)
	if err != nil {
		e.log.Error("encoding alert link", "id", notificationID, "err", err)
		return false
	}
	alert := Alert{
		ID:         notificationID,
		Title:      title,
		Body:       body,
		Payload:    payload,
		Priority:   PriorityMax,
		AutoCancel: true,
	}
	if err := e.display.Notify(alert); err != nil {
		e.log.Error("showing alert", "id", notificationID, "err", err)
		return false
	}
	return true
}
