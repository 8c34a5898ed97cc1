package views

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/duetask/internal/alarm"
	"github.com/tgienger/duetask/internal/models"
	"github.com/tgienger/duetask/internal/ui/styles"
)

func (v *TaskListView) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Back):
		v.editing = false
		return v, nil

	case key.Matches(msg, v.keys.Save):
		return v, v.saveTask()

	case key.Matches(msg, v.keys.Tab):
		v.editFocusIdx = (v.editFocusIdx + 1) % editFields
		v.updateEditFocus()
		return v, nil

	case msg.String() == "shift+tab":
		v.editFocusIdx = (v.editFocusIdx + editFields - 1) % editFields
		v.updateEditFocus()
		return v, nil

	case key.Matches(msg, v.keys.Enter):
		switch v.editFocusIdx {
		case 0, 2:
			v.editFocusIdx++
			v.updateEditFocus()
			return v, nil
		case 3:
			return v, v.remindFromForm()
		case 4:
			return v, v.saveTask()
		}
		// Enter in notes is a newline
	}

	var cmd tea.Cmd
	switch v.editFocusIdx {
	case 0:
		v.editTitle, cmd = v.editTitle.Update(msg)
	case 1:
		v.editNotes, cmd = v.editNotes.Update(msg)
	case 2:
		v.editDue, cmd = v.editDue.Update(msg)
		v.editErr = ""
	}
	return v, cmd
}

func (v *TaskListView) startNewTask() {
	v.editing = true
	v.editingNew = true
	v.editID = nil
	v.editCompleted = false
	v.editFocusIdx = 0
	v.editErr = ""
	v.editTitle.Reset()
	v.editNotes.Reset()
	v.editDue.Reset()
	v.updateEditFocus()
}

func (v *TaskListView) startEditTask(task models.Task) {
	v.editing = true
	v.editingNew = false
	v.editID = task.ID
	v.editCompleted = task.Completed
	v.editFocusIdx = 0
	v.editErr = ""
	v.editTitle.SetValue(task.Title)
	v.editNotes.SetValue(task.Notes)
	v.editDue.SetValue(models.FormatDueDate(task.DueDate, v.svc.Location))
	v.updateEditFocus()
}

func (v *TaskListView) updateEditFocus() {
	v.editTitle.Blur()
	v.editNotes.Blur()
	v.editDue.Blur()

	switch v.editFocusIdx {
	case 0:
		v.editTitle.Focus()
	case 1:
		v.editNotes.Focus()
	case 2:
		v.editDue.Focus()
	}
}

// parseEditDue reads the due date field, recording a form error on failure
func (v *TaskListView) parseEditDue() (*int64, bool) {
	due, err := models.ParseDueDate(v.editDue.Value(), v.svc.Location)
	if err != nil {
		v.editErr = "Use the format " + models.DueDateLayout
		v.editFocusIdx = 2
		v.updateEditFocus()
		return nil, false
	}
	return due, true
}

func (v *TaskListView) saveTask() tea.Cmd {
	title := strings.TrimSpace(v.editTitle.Value())
	if title == "" {
		// Nothing to save, same as leaving the form
		v.editing = false
		return status("Task not saved: title is empty", true)
	}

	due, ok := v.parseEditDue()
	if !ok {
		return nil
	}

	task := models.Task{
		ID:        v.editID,
		Title:     title,
		Notes:     strings.TrimSpace(v.editNotes.Value()),
		DueDate:   due,
		Completed: v.editCompleted,
	}
	v.editing = false

	if v.editingNew {
		return v.awaitMutation("insert", v.svc.Repo.Insert(task))
	}
	return v.awaitMutation("save", v.svc.Repo.Update(task))
}

// remindFromForm schedules a reminder at the due date typed into the form.
// Unsaved tasks get a fresh notification ID.
func (v *TaskListView) remindFromForm() tea.Cmd {
	due, ok := v.parseEditDue()
	if !ok {
		return nil
	}
	if due == nil {
		v.editErr = "Enter a due date first"
		return nil
	}
	if !v.notificationsAllowed() {
		return status("Notification permission required", true)
	}

	when := time.UnixMilli(*due)
	if v.editID == nil {
		return v.scheduleUnsavedReminder(when)
	}
	return v.scheduleReminder(alarm.NotificationIDForTask(*v.editID), when, v.editID)
}

func (v *TaskListView) renderEditForm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	formTitle := "New Task"
	if !v.editingNew {
		formTitle = "Edit Task"
	}

	titleStyle := s.Input
	notesStyle := s.Input
	dueStyle := s.Input
	remindStyle := s.Button
	saveStyle := s.Button

	switch v.editFocusIdx {
	case 0:
		titleStyle = s.InputFocused
	case 1:
		notesStyle = s.InputFocused
	case 2:
		dueStyle = s.InputFocused
	case 3:
		remindStyle = s.ButtonFocused
	case 4:
		saveStyle = s.ButtonFocused
	}

	inputWidth := clamp(contentWidth-6, 20, 50)

	dueError := ""
	if v.editErr != "" {
		dueError = s.InputError.Render(v.editErr)
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render(formTitle),
		"",
		"Title:",
		titleStyle.Width(inputWidth).Render(v.editTitle.View()),
		"",
		"Notes:",
		notesStyle.Render(v.editNotes.View()),
		"",
		"Due:",
		dueStyle.Width(inputWidth).Render(v.editDue.View()),
		dueError,
		lipgloss.JoinHorizontal(lipgloss.Center,
			remindStyle.Render(" Remind me "),
			"  ",
			saveStyle.Render(" Save "),
		),
		"",
		s.TitleMuted.Render("Tab: next • ↵: select • Ctrl+S: save • Esc: cancel"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		form,
	)
	return styles.CenterView(centered, v.width, v.height)
}
