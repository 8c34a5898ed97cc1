package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/tgienger/duetask/internal/notify"
	"github.com/tgienger/duetask/internal/permission"
	"github.com/tgienger/duetask/internal/ui/styles"
	"github.com/tgienger/duetask/internal/ui/views"
)

// Currently active view
type View int

const (
	ViewTasks View = iota
	ViewAlerts
)

// Deps are the components the app is built from
type Deps struct {
	Services views.Services
	Tray     *notify.Tray
	Perms    *permission.Registry
	Inbox    *Inbox
	Logger   *log.Logger
}

type App struct {
	inbox       *Inbox
	log         *log.Logger
	styles      *styles.Styles
	currentView View
	taskList    *views.TaskListView
	alerts      *views.AlertsView
	prompt      *views.PermissionPrompt
	status      string
	statusErr   bool
	width       int
	height      int
}

// Creates a new application. Permission requests from perms are routed to
// the in-app prompt.
func NewApp(ctx context.Context, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	deps.Services.Perms = deps.Perms
	deps.Perms.OnRequest = deps.Inbox.RequestPermission

	return &App{
		inbox:       deps.Inbox,
		log:         logger.WithPrefix("ui"),
		styles:      styles.NewStyles(),
		currentView: ViewTasks,
		taskList:    views.NewTaskListView(ctx, deps.Services),
		alerts:      views.NewAlertsView(deps.Tray),
		prompt:      views.NewPermissionPrompt(deps.Perms),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.taskList.Init(),
		a.alerts.Init(),
		a.inbox.waitForMessage,
		a.inbox.waitForRequest,
	)
}

// Close releases view subscriptions
func (a *App) Close() {
	a.alerts.Close()
}

func (a *App) resize() tea.Cmd {
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: a.width, Height: a.height}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Views keep their size even while hidden
		a.taskList.Update(msg)
		a.alerts.Update(msg)
		a.prompt.Update(msg)
		return a, nil

	case views.StatusMsg:
		a.status = msg.Text
		a.statusErr = msg.Err
		return a, nil

	case inboxMsg:
		// Messages raised by the scheduler are refusals
		a.status = msg.text
		a.statusErr = true
		return a, a.inbox.waitForMessage

	case views.PermissionRequest:
		a.log.Info("permission requested", "capability", msg.Capability)
		a.prompt.Ask(msg.Capability)
		return a, a.inbox.waitForRequest

	case views.ShowAlerts:
		a.currentView = ViewAlerts
		return a, a.resize()

	case views.BackToTasks:
		a.currentView = ViewTasks
		return a, a.resize()

	case tea.KeyMsg:
		if a.prompt.Active() {
			_, cmd := a.prompt.Update(msg)
			return a, cmd
		}
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
	}

	// Tray changes and live query results must reach their view whichever is shown
	var cmds []tea.Cmd
	_, isKey := msg.(tea.KeyMsg)
	if !isKey || a.currentView == ViewTasks {
		_, cmd := a.taskList.Update(msg)
		cmds = append(cmds, cmd)
	}
	if !isKey || a.currentView == ViewAlerts {
		_, cmd := a.alerts.Update(msg)
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

func (a *App) View() string {
	if a.prompt.Active() {
		return a.prompt.View()
	}

	var body string
	switch a.currentView {
	case ViewAlerts:
		body = a.alerts.View()
	default:
		body = a.taskList.View()
	}

	return strings.TrimRight(body, "\n") + "\n" + a.renderStatusBar()
}

func (a *App) renderStatusBar() string {
	s := a.styles
	var parts []string
	if n := a.alerts.Count(); n > 0 {
		parts = append(parts, s.Badge.Render(fmt.Sprintf("%d alert(s)", n)))
	}
	if a.status != "" {
		style := s.StatusBar
		if a.statusErr {
			style = s.StatusError
		}
		parts = append(parts, style.Render(a.status))
	}
	return strings.Join(parts, " ")
}
