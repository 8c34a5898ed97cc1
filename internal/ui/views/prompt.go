package views

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/duetask/internal/permission"
	"github.com/tgienger/duetask/internal/ui/keys"
	"github.com/tgienger/duetask/internal/ui/styles"
)

// PermissionRequest asks the user to answer for a capability
type PermissionRequest struct {
	Capability permission.Capability
}

// PermissionPrompt stands in for the system settings screen. Answers are
// recorded in the registry.
type PermissionPrompt struct {
	perms   *permission.Registry
	styles  *styles.Styles
	keys    keys.KeyMap
	pending []permission.Capability

	width  int
	height int
}

// NewPermissionPrompt creates a prompt that answers into perms
func NewPermissionPrompt(perms *permission.Registry) *PermissionPrompt {
	return &PermissionPrompt{
		perms:  perms,
		styles: styles.NewStyles(),
		keys:   keys.DefaultKeyMap(),
	}
}

// Init does nothing; questions arrive through Ask
func (p *PermissionPrompt) Init() tea.Cmd {
	return nil
}

// Active reports whether a question is waiting for an answer
func (p *PermissionPrompt) Active() bool {
	return len(p.pending) > 0
}

// Ask queues c unless it is already queued
func (p *PermissionPrompt) Ask(c permission.Capability) {
	for _, q := range p.pending {
		if q == c {
			return
		}
	}
	p.pending = append(p.pending, c)
}

func describe(c permission.Capability) string {
	switch c {
	case permission.Notifications:
		return "show reminder notifications"
	case permission.ExactAlarm:
		return "schedule exact alarms"
	}
	return string(c)
}

func answerText(c permission.Capability, s permission.State) string {
	name := "Notification"
	if c == permission.ExactAlarm {
		name = "Exact alarm"
	}
	return name + " permission " + s.String()
}

// Update handles messages
func (p *PermissionPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		return p, nil

	case tea.KeyMsg:
		if !p.Active() {
			return p, nil
		}
		c := p.pending[0]
		var answer permission.State
		switch {
		case key.Matches(msg, p.keys.Yes):
			answer = permission.Granted
		case key.Matches(msg, p.keys.No):
			answer = permission.Denied
		default:
			return p, nil
		}
		p.pending = p.pending[1:]
		p.perms.Set(c, answer)
		return p, status(answerText(c, answer), answer != permission.Granted)
	}
	return p, nil
}

// View renders the current question
func (p *PermissionPrompt) View() string {
	if !p.Active() {
		return ""
	}
	s := p.styles
	contentWidth := styles.ContentWidth(p.width)

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Render("Permission"),
		"",
		"Allow duetask to "+describe(p.pending[0])+"?",
		"",
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" Y - Allow "),
			"  ",
			s.Button.Render(" N - Deny "),
		),
	)

	centered := lipgloss.Place(contentWidth, p.height,
		lipgloss.Center, lipgloss.Center,
		s.Popup.Render(content),
	)
	return styles.CenterView(centered, p.width, p.height)
}
