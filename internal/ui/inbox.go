package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tgienger/duetask/internal/permission"
	"github.com/tgienger/duetask/internal/ui/views"
)

const inboxSize = 16

// Inbox carries user-facing messages and permission requests raised off the
// UI goroutine into the program. Sends never block; when the inbox is full
// the newest item is dropped.
type Inbox struct {
	messages chan string
	requests chan permission.Capability
}

// NewInbox creates an empty Inbox
func NewInbox() *Inbox {
	return &Inbox{
		messages: make(chan string, inboxSize),
		requests: make(chan permission.Capability, inboxSize),
	}
}

// Message queues a status message
func (in *Inbox) Message(text string) {
	select {
	case in.messages <- text:
	default:
	}
}

// RequestPermission queues a permission question for the user
func (in *Inbox) RequestPermission(c permission.Capability) {
	select {
	case in.requests <- c:
	default:
	}
}

type inboxMsg struct {
	text string
}

func (in *Inbox) waitForMessage() tea.Msg {
	return inboxMsg{text: <-in.messages}
}

func (in *Inbox) waitForRequest() tea.Msg {
	return views.PermissionRequest{Capability: <-in.requests}
}
