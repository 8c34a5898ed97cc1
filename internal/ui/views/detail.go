package views

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/duetask/internal/ui/styles"
)

func (v *TaskListView) renderTaskView() string {
	s := v.styles
	task := v.viewTask
	maxContentWidth := styles.ContentWidth(v.width)

	notesText := task.Notes
	if notesText == "" {
		notesText = s.TitleMuted.Render("No notes")
	}

	statusText := "Open"
	if task.Completed {
		statusText = "Done"
	}

	titleStyle := s.Title.MarginBottom(1)
	labelStyle := s.TitleMuted
	textWidth := clamp(maxContentWidth-10, 20, 70)

	helpText := s.Help.Render(
		fmt.Sprintf("%s edit • %s done • %s remind • %s share • %s delete • %s back",
			s.HelpKey.Render("e"),
			s.HelpKey.Render("x"),
			s.HelpKey.Render("r"),
			s.HelpKey.Render("s"),
			s.HelpKey.Render("d"),
			s.HelpKey.Render("esc"),
		),
	)
	if !task.Persisted() {
		helpText = s.Help.Render(s.HelpKey.Render("esc") + " back")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(task.Title),
		"",
		labelStyle.Render("Due"),
		v.renderDue(task),
		"",
		labelStyle.Render("Status"),
		statusText,
		"",
		labelStyle.Render("Notes"),
		lipgloss.NewStyle().Width(textWidth).Render(notesText),
		"",
		helpText,
	)

	padded := lipgloss.NewStyle().Padding(1, 2).Render(content)
	return styles.CenterView(padded, v.width, v.height)
}
