package views

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/duetask/internal/deeplink"
	"github.com/tgienger/duetask/internal/notify"
	"github.com/tgienger/duetask/internal/ui/keys"
	"github.com/tgienger/duetask/internal/ui/styles"
)

// BackToTasks signals to go back to the task list
type BackToTasks struct{}

type alertsChangedMsg struct{}

// AlertsView lists the reminders currently shown in the tray
type AlertsView struct {
	tray   *notify.Tray
	sub    chan struct{}
	styles *styles.Styles
	keys   keys.KeyMap

	alerts []notify.Alert
	cursor int

	width  int
	height int
}

// NewAlertsView creates an alerts view over tray
func NewAlertsView(tray *notify.Tray) *AlertsView {
	return &AlertsView{
		tray:   tray,
		styles: styles.NewStyles(),
		keys:   keys.DefaultKeyMap(),
	}
}

// Init subscribes to tray changes
func (v *AlertsView) Init() tea.Cmd {
	v.sub = v.tray.Subscribe()
	v.alerts = v.tray.Active()
	return v.waitForChange()
}

// Close stops listening to the tray
func (v *AlertsView) Close() {
	if v.sub != nil {
		v.tray.Unsubscribe(v.sub)
	}
}

func (v *AlertsView) waitForChange() tea.Cmd {
	sub := v.sub
	return func() tea.Msg {
		<-sub
		return alertsChangedMsg{}
	}
}

// Count is the number of alerts in the tray
func (v *AlertsView) Count() int {
	return len(v.alerts)
}

// Update handles messages
func (v *AlertsView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		return v, nil

	case alertsChangedMsg:
		v.alerts = v.tray.Active()
		if v.cursor >= len(v.alerts) {
			v.cursor = max(0, len(v.alerts)-1)
		}
		return v, v.waitForChange()

	case tea.KeyMsg:
		return v.updateKeys(msg)
	}
	return v, nil
}

func (v *AlertsView) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Back), key.Matches(msg, v.keys.Alerts):
		return v, func() tea.Msg { return BackToTasks{} }

	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(v.alerts)-1 {
			v.cursor++
		}
		return v, nil
	}

	if v.cursor >= len(v.alerts) {
		return v, nil
	}
	selected := v.alerts[v.cursor]

	switch {
	case key.Matches(msg, v.keys.Enter):
		link, stack, err := v.tray.Tap(selected.ID)
		if err != nil {
			return v, status("Could not open reminder", true)
		}
		if len(stack) == 0 || stack[len(stack)-1] != deeplink.TaskDetail {
			return v, func() tea.Msg { return BackToTasks{} }
		}
		task := link.Task()
		return v, tea.Sequence(
			func() tea.Msg { return BackToTasks{} },
			func() tea.Msg { return OpenTask{Task: task} },
		)

	case key.Matches(msg, v.keys.Dismiss):
		v.tray.Dismiss(selected.ID)
		return v, nil
	}
	return v, nil
}

// View renders the view
func (v *AlertsView) View() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	width := max(contentWidth-4, 20)

	var b []string
	b = append(b, s.Title.Render("Alerts"), "")

	if len(v.alerts) == 0 {
		b = append(b, s.TitleMuted.Render("No reminders right now."))
	}
	for i, a := range v.alerts {
		lineStyle := s.ListItem.Width(width)
		if i == v.cursor {
			lineStyle = s.ListSelected.Width(width)
		}
		b = append(b,
			lineStyle.Render(s.AlertTitle.Render(a.Title)),
			lineStyle.Render(s.AlertBody.Render(a.Body)),
			"",
		)
	}

	b = append(b, s.Help.Render(
		fmt.Sprintf("%s open • %s dismiss • %s back • %s quit",
			s.HelpKey.Render("↵"),
			s.HelpKey.Render("d"),
			s.HelpKey.Render("esc"),
			s.HelpKey.Render("q"),
		),
	))

	content := lipgloss.JoinVertical(lipgloss.Left, b...)
	return styles.CenterView(content, v.width, v.height)
}
