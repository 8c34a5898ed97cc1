package views

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tgienger/duetask/internal/alarm"
	"github.com/tgienger/duetask/internal/models"
	"github.com/tgienger/duetask/internal/permission"
	"github.com/tgienger/duetask/internal/repository"
	"github.com/tgienger/duetask/internal/ui/keys"
	"github.com/tgienger/duetask/internal/ui/styles"
)

// clamp returns val clamped between minVal and maxVal
func clamp(val, minVal, maxVal int) int {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// NotificationIDs hands out notification IDs for reminders not tied to a saved task
type NotificationIDs interface {
	NextNotificationID(ctx context.Context) (int, error)
}

// Settings stores small UI preferences across runs
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

const lastTaskKey = "last_task_id"

// Services are the components the task views act through
type Services struct {
	Repo      *repository.Repository
	Settings  Settings
	Scheduler *alarm.Scheduler
	IDs       NotificationIDs
	Perms     permission.Gate
	Location  *time.Location
	Now       func() time.Time
}

// StatusMsg carries a short message for the status bar
type StatusMsg struct {
	Text string
	Err  bool
}

func status(text string, isErr bool) tea.Cmd {
	return func() tea.Msg { return StatusMsg{Text: text, Err: isErr} }
}

// ShowAlerts asks the app to switch to the alert tray
type ShowAlerts struct{}

// OpenTask opens a task's detail screen on top of the list
type OpenTask struct {
	Task models.Task
}

type tasksLoadedMsg struct {
	tasks []models.Task
}

type watchClosedMsg struct{}

type mutationDoneMsg struct {
	op  string
	id  int64
	err error
}

type reminderDoneMsg struct {
	id     int
	at     time.Time
	cancel bool
	err    error
}

// TaskListView shows every task ordered by due date
type TaskListView struct {
	ctx    context.Context
	svc    Services
	styles *styles.Styles
	keys   keys.KeyMap

	updates <-chan []models.Task
	tasks   []models.Task
	loaded  bool

	// reopen is the task whose detail screen was open when the app last exited
	reopen int64

	width  int
	height int

	cursor  int
	scrollY int

	// Task creation/editing
	editing       bool
	editingNew    bool
	editID        *int64
	editCompleted bool
	editTitle     textinput.Model
	editNotes     textarea.Model
	editDue       textinput.Model
	editFocusIdx  int // 0=title, 1=notes, 2=due, 3=remind, 4=save
	editErr       string

	// Task view mode (read-only detail view)
	viewingTask bool
	viewTask    models.Task

	// Delete confirmation
	confirmingDelete    bool
	confirmingDeleteAll bool
	deleteTarget        models.Task

	sharing       bool
	showHelpPopup bool
}

const editFields = 5

// NewTaskListView creates a new task list view
func NewTaskListView(ctx context.Context, svc Services) *TaskListView {
	if svc.Location == nil {
		svc.Location = time.Local
	}
	if svc.Now == nil {
		svc.Now = time.Now
	}

	editTitle := textinput.New()
	editTitle.Placeholder = "Task title"
	editTitle.CharLimit = 200

	editNotes := textarea.New()
	editNotes.Placeholder = "Notes"
	editNotes.CharLimit = 5000
	editNotes.SetWidth(50)
	editNotes.SetHeight(4)
	editNotes.ShowLineNumbers = false

	editDue := textinput.New()
	editDue.Placeholder = models.DueDateLayout
	editDue.CharLimit = len(models.DueDateLayout)

	return &TaskListView{
		ctx:       ctx,
		svc:       svc,
		styles:    styles.NewStyles(),
		keys:      keys.DefaultKeyMap(),
		editTitle: editTitle,
		editNotes: editNotes,
		editDue:   editDue,
	}
}

// Init starts the live query
func (v *TaskListView) Init() tea.Cmd {
	if last, err := v.svc.Settings.GetSetting(v.ctx, lastTaskKey); err == nil && last != "" {
		if id, err := strconv.ParseInt(last, 10, 64); err == nil {
			v.reopen = id
		}
	}
	v.updates = v.svc.Repo.Watch(v.ctx)
	return v.waitForTasks()
}

// openDetail shows task and remembers it for the next run
func (v *TaskListView) openDetail(task models.Task) tea.Cmd {
	v.viewingTask = true
	v.viewTask = task
	if !task.Persisted() {
		return nil
	}
	return v.rememberTask(strconv.FormatInt(task.Key(), 10))
}

func (v *TaskListView) closeDetail() tea.Cmd {
	v.viewingTask = false
	return v.rememberTask("")
}

func (v *TaskListView) rememberTask(value string) tea.Cmd {
	ctx, settings := v.ctx, v.svc.Settings
	return func() tea.Msg {
		if err := settings.SetSetting(ctx, lastTaskKey, value); err != nil {
			return StatusMsg{Text: "Could not save settings: " + err.Error(), Err: true}
		}
		return nil
	}
}

// waitForTasks blocks on the next emission of the live query
func (v *TaskListView) waitForTasks() tea.Cmd {
	updates := v.updates
	return func() tea.Msg {
		tasks, ok := <-updates
		if !ok {
			return watchClosedMsg{}
		}
		return tasksLoadedMsg{tasks: tasks}
	}
}

// Busy reports whether the view is capturing keys for a form or popup
func (v *TaskListView) Busy() bool {
	return v.editing || v.confirmingDelete || v.confirmingDeleteAll || v.sharing || v.showHelpPopup
}

// Update handles messages
func (v *TaskListView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		contentWidth := styles.ContentWidth(v.width)
		v.editNotes.SetWidth(clamp(contentWidth-10, 20, 50))
		return v, nil

	case tasksLoadedMsg:
		v.tasks = msg.tasks
		v.loaded = true
		if v.cursor >= len(v.tasks) {
			v.cursor = max(0, len(v.tasks)-1)
		}
		if v.viewingTask && v.viewTask.Persisted() {
			if t, ok := v.find(v.viewTask.Key()); ok {
				v.viewTask = t
			} else {
				// Deleted underneath the detail screen
				v.viewingTask = false
			}
		}
		v.ensureVisible()

		if v.reopen != 0 {
			id := v.reopen
			v.reopen = 0
			if t, ok := v.find(id); ok && !v.Busy() && !v.viewingTask {
				v.selectID(id)
				v.viewingTask = true
				v.viewTask = t
			}
		}
		return v, v.waitForTasks()

	case watchClosedMsg:
		return v, nil

	case OpenTask:
		v.closePopups()
		v.editing = false
		v.reopen = 0
		task := msg.Task
		if task.Persisted() {
			if t, ok := v.find(task.Key()); ok {
				task = t
				v.selectID(task.Key())
			}
		}
		return v, v.openDetail(task)

	case mutationDoneMsg:
		return v, v.mutationStatus(msg)

	case reminderDoneMsg:
		return v, v.reminderStatus(msg)

	case tea.KeyMsg:
		// Any key closes the help popup
		if v.showHelpPopup {
			v.showHelpPopup = false
			return v, nil
		}

		if v.sharing {
			v.sharing = false
			return v, nil
		}

		if v.confirmingDelete || v.confirmingDeleteAll {
			return v.updateConfirmDelete(msg)
		}

		if v.editing {
			return v.updateEditing(msg)
		}

		if v.viewingTask {
			return v.updateViewingTask(msg)
		}

		return v.updateNormal(msg)
	}

	return v, nil
}

func (v *TaskListView) closePopups() {
	v.showHelpPopup = false
	v.sharing = false
	v.confirmingDelete = false
	v.confirmingDeleteAll = false
}

func (v *TaskListView) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit

	case key.Matches(msg, v.keys.Help):
		v.showHelpPopup = true
		return v, nil

	case key.Matches(msg, v.keys.Alerts):
		return v, func() tea.Msg { return ShowAlerts{} }

	case key.Matches(msg, v.keys.Up):
		if v.cursor > 0 {
			v.cursor--
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.Down):
		if v.cursor < len(v.tasks)-1 {
			v.cursor++
			v.ensureVisible()
		}
		return v, nil

	case key.Matches(msg, v.keys.New):
		v.startNewTask()
		return v, textinput.Blink

	case key.Matches(msg, v.keys.DeleteAll):
		if len(v.tasks) > 0 {
			v.confirmingDeleteAll = true
		}
		return v, nil
	}

	task, ok := v.selected()
	if !ok {
		return v, nil
	}

	switch {
	case key.Matches(msg, v.keys.Enter):
		return v, v.openDetail(task)

	case key.Matches(msg, v.keys.Edit):
		v.startEditTask(task)
		return v, textinput.Blink

	case key.Matches(msg, v.keys.Delete):
		v.confirmingDelete = true
		v.deleteTarget = task
		return v, nil

	case key.Matches(msg, v.keys.Toggle):
		return v, v.toggleCompleted(task)

	case key.Matches(msg, v.keys.Remind):
		return v, v.remindTask(task)

	case key.Matches(msg, v.keys.Unremind):
		return v, v.cancelReminder(task)

	case key.Matches(msg, v.keys.Share):
		v.viewTask = task
		v.sharing = true
		return v, nil
	}

	return v, nil
}

func (v *TaskListView) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Yes):
		var pending *repository.Pending
		op := "delete"
		if v.confirmingDeleteAll {
			op = "delete all"
			pending = v.svc.Repo.DeleteAll()
		} else {
			pending = v.svc.Repo.Delete(v.deleteTarget)
			if v.viewingTask && v.viewTask.Key() == v.deleteTarget.Key() {
				v.viewingTask = false
			}
		}
		v.confirmingDelete = false
		v.confirmingDeleteAll = false
		return v, v.awaitMutation(op, pending)

	case key.Matches(msg, v.keys.No):
		v.confirmingDelete = false
		v.confirmingDeleteAll = false
		return v, nil
	}
	return v, nil
}

func (v *TaskListView) updateViewingTask(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	task := v.viewTask

	switch {
	case key.Matches(msg, v.keys.Back):
		return v, v.closeDetail()
	case key.Matches(msg, v.keys.Quit):
		return v, tea.Quit
	}

	if !task.Persisted() {
		return v, nil
	}

	switch {
	case key.Matches(msg, v.keys.Edit):
		v.viewingTask = false
		v.startEditTask(task)
		return v, textinput.Blink
	case key.Matches(msg, v.keys.Delete):
		v.confirmingDelete = true
		v.deleteTarget = task
		return v, nil
	case key.Matches(msg, v.keys.Toggle):
		return v, v.toggleCompleted(task)
	case key.Matches(msg, v.keys.Remind):
		return v, v.remindTask(task)
	case key.Matches(msg, v.keys.Unremind):
		return v, v.cancelReminder(task)
	case key.Matches(msg, v.keys.Share):
		v.sharing = true
		return v, nil
	}
	return v, nil
}

func (v *TaskListView) selected() (models.Task, bool) {
	if v.cursor < 0 || v.cursor >= len(v.tasks) {
		return models.Task{}, false
	}
	return v.tasks[v.cursor], true
}

func (v *TaskListView) find(id int64) (models.Task, bool) {
	for _, t := range v.tasks {
		if t.Key() == id {
			return t, true
		}
	}
	return models.Task{}, false
}

func (v *TaskListView) selectID(id int64) {
	for i, t := range v.tasks {
		if t.Key() == id {
			v.cursor = i
			v.ensureVisible()
			return
		}
	}
}

func (v *TaskListView) ensureVisible() {
	visibleItems := v.visibleItems()
	if v.cursor < v.scrollY {
		v.scrollY = v.cursor
	} else if v.cursor >= v.scrollY+visibleItems {
		v.scrollY = v.cursor - visibleItems + 1
	}
}

// visibleItems is how many tasks fit; each item is 2 lines + 1 margin
func (v *TaskListView) visibleItems() int {
	availableHeight := max(v.height-10, 3)
	return max(availableHeight/3, 1)
}

func (v *TaskListView) toggleCompleted(task models.Task) tea.Cmd {
	task.Completed = !task.Completed
	return v.awaitMutation("update", v.svc.Repo.Update(task))
}

// awaitMutation waits on a queued mutation off the UI goroutine
func (v *TaskListView) awaitMutation(op string, p *repository.Pending) tea.Cmd {
	ctx := v.ctx
	return func() tea.Msg {
		id, err := p.Wait(ctx)
		return mutationDoneMsg{op: op, id: id, err: err}
	}
}

func (v *TaskListView) mutationStatus(msg mutationDoneMsg) tea.Cmd {
	switch {
	case errors.Is(msg.err, models.ErrEmptyTitle):
		return status("Task not saved: title is empty", true)
	case errors.Is(msg.err, context.Canceled), errors.Is(msg.err, repository.ErrClosed):
		return nil
	case msg.err != nil:
		return status(fmt.Sprintf("Could not %s task: %v", msg.op, msg.err), true)
	case msg.op == "insert" && msg.id == 0:
		return status("A task with that id already exists", true)
	case msg.op == "insert":
		return status("Task added", false)
	case msg.op == "save":
		return status("Task saved", false)
	case msg.op == "delete all":
		return status("All tasks deleted", false)
	case msg.op == "delete":
		return status("Task deleted", false)
	}
	return nil
}

// notificationsAllowed asks for the notification capability when it is
// missing. Reminders without it would fire silently.
func (v *TaskListView) notificationsAllowed() bool {
	if v.svc.Perms.Check(permission.Notifications) == permission.Granted {
		return true
	}
	v.svc.Perms.Request(permission.Notifications)
	return false
}

func (v *TaskListView) remindTask(task models.Task) tea.Cmd {
	due, ok := task.Due()
	if !ok {
		return status("Set a due date before adding a reminder", true)
	}
	if !v.notificationsAllowed() {
		return status("Notification permission required", true)
	}
	id := alarm.NotificationIDForTask(task.Key())
	return v.scheduleReminder(id, due, task.ID)
}

func (v *TaskListView) scheduleReminder(id int, at time.Time, taskID *int64) tea.Cmd {
	ctx, scheduler := v.ctx, v.svc.Scheduler
	return func() tea.Msg {
		err := scheduler.Schedule(ctx, at, id, alarm.Payload{TaskID: taskID})
		return reminderDoneMsg{id: id, at: at, err: err}
	}
}

// scheduleUnsavedReminder schedules a reminder for a task that has no ID yet
func (v *TaskListView) scheduleUnsavedReminder(at time.Time) tea.Cmd {
	ctx, ids, scheduler := v.ctx, v.svc.IDs, v.svc.Scheduler
	return func() tea.Msg {
		id, err := ids.NextNotificationID(ctx)
		if err != nil {
			return reminderDoneMsg{err: err}
		}
		err = scheduler.Schedule(ctx, at, id, alarm.Payload{})
		return reminderDoneMsg{id: id, at: at, err: err}
	}
}

func (v *TaskListView) cancelReminder(task models.Task) tea.Cmd {
	ctx, scheduler := v.ctx, v.svc.Scheduler
	id := alarm.NotificationIDForTask(task.Key())
	return func() tea.Msg {
		return reminderDoneMsg{id: id, cancel: true, err: scheduler.Cancel(ctx, id)}
	}
}

func (v *TaskListView) reminderStatus(msg reminderDoneMsg) tea.Cmd {
	switch {
	case errors.Is(msg.err, alarm.ErrPastTrigger),
		errors.Is(msg.err, alarm.ErrPermissionRequired),
		errors.Is(msg.err, alarm.ErrSecurity):
		// The scheduler has already told the user
		return nil
	case msg.err != nil:
		return status(fmt.Sprintf("Reminder failed: %v", msg.err), true)
	case msg.cancel:
		return status("Reminder cancelled", false)
	}
	return status("Reminder set for "+msg.at.In(v.svc.Location).Format(models.DueDateLayout), false)
}

// View renders the view
func (v *TaskListView) View() string {
	if v.showHelpPopup {
		return v.renderHelpPopup()
	}

	if v.sharing {
		return v.renderShare()
	}

	if v.confirmingDelete || v.confirmingDeleteAll {
		return v.renderDeleteConfirm()
	}

	if v.editing {
		return v.renderEditForm()
	}

	if v.viewingTask {
		return v.renderTaskView()
	}

	var b strings.Builder

	b.WriteString(v.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(v.renderTaskList())
	b.WriteString("\n")
	b.WriteString(v.renderHelp())

	return styles.CenterView(b.String(), v.width, v.height)
}

func (v *TaskListView) renderHeader() string {
	s := v.styles
	done := 0
	for _, t := range v.tasks {
		if t.Completed {
			done++
		}
	}
	counts := s.TitleMuted.Render(fmt.Sprintf("%d tasks, %d done", len(v.tasks), done))
	return lipgloss.JoinHorizontal(lipgloss.Center, s.Title.Render("Tasks"), "  ", counts)
}

func (v *TaskListView) renderTaskList() string {
	s := v.styles

	if !v.loaded {
		return s.TitleMuted.Render("Loading...")
	}
	if len(v.tasks) == 0 {
		return s.TitleMuted.Render("No tasks. Press 'n' to create one.")
	}

	var items []string
	endIdx := min(v.scrollY+v.visibleItems(), len(v.tasks))
	for i := v.scrollY; i < endIdx; i++ {
		items = append(items, v.renderTaskItem(v.tasks[i], i == v.cursor))
	}

	return lipgloss.JoinVertical(lipgloss.Left, items...)
}

func (v *TaskListView) renderTaskItem(task models.Task, selected bool) string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	width := max(contentWidth-4, 20)

	checkbox := "[ ] "
	title := s.TaskTitle.Render(task.Title)
	if task.Completed {
		checkbox = "[x] "
		title = s.TaskCompleted.Render(task.Title)
	}

	lineStyle := s.ListItem.Width(width)
	if selected {
		lineStyle = s.ListSelected.Width(width)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lineStyle.Render(checkbox+title),
		lineStyle.Render("    "+v.renderDue(task)),
	) + "\n"
}

// renderDue shows the due date, flagged when an open task is past it
func (v *TaskListView) renderDue(task models.Task) string {
	s := v.styles
	due, ok := task.Due()
	if !ok {
		return s.TitleMuted.Render("no due date")
	}
	text := models.FormatDueDate(task.DueDate, v.svc.Location)
	if !task.Completed && due.Before(v.svc.Now()) {
		return s.Overdue.Render(text + " (overdue)")
	}
	return s.DueDate.Render(text)
}

func (v *TaskListView) renderHelp() string {
	contentWidth := styles.ContentWidth(v.width)
	if contentWidth > 0 && contentWidth < 50 {
		return v.styles.Help.Render(v.styles.HelpKey.Render("?") + " help")
	}

	return v.styles.Help.Render(
		fmt.Sprintf("%s view • %s edit • %s new • %s done • %s del • %s remind • %s alerts • %s quit",
			v.styles.HelpKey.Render("↵"),
			v.styles.HelpKey.Render("e"),
			v.styles.HelpKey.Render("n"),
			v.styles.HelpKey.Render("x"),
			v.styles.HelpKey.Render("d"),
			v.styles.HelpKey.Render("r"),
			v.styles.HelpKey.Render("a"),
			v.styles.HelpKey.Render("q"),
		),
	)
}

func (v *TaskListView) renderHelpPopup() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	helpItems := []string{
		s.HelpKey.Render("↵") + "      view task",
		s.HelpKey.Render("e") + "      edit task",
		s.HelpKey.Render("n") + "      new task",
		s.HelpKey.Render("x") + "      toggle done",
		s.HelpKey.Render("d") + "      delete task",
		s.HelpKey.Render("D") + "      delete all tasks",
		s.HelpKey.Render("r") + "      remind at due date",
		s.HelpKey.Render("R") + "      cancel reminder",
		s.HelpKey.Render("s") + "      share",
		s.HelpKey.Render("a") + "      alerts",
		s.HelpKey.Render("q") + "      quit",
		"",
		s.TitleMuted.Render("Press any key to close"),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{s.Title.Render("Keyboard Shortcuts"), ""}, helpItems...)...,
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.Popup.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderDeleteConfirm() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)

	heading := "Delete Task?"
	detail := fmt.Sprintf("%q will be removed.", v.deleteTarget.Title)
	if v.confirmingDeleteAll {
		heading = "Delete All Tasks?"
		detail = fmt.Sprintf("All %d tasks will be removed.", len(v.tasks))
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		s.Title.Foreground(styles.Current.Error).Render(heading),
		"",
		s.TitleMuted.Render(detail),
		"",
		lipgloss.JoinHorizontal(lipgloss.Center,
			s.ButtonPrimary.Render(" Y - Yes "),
			"  ",
			s.Button.Render(" N - No "),
		),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		content,
	)
	return styles.CenterView(centered, v.width, v.height)
}

func (v *TaskListView) renderShare() string {
	s := v.styles
	contentWidth := styles.ContentWidth(v.width)
	textWidth := clamp(contentWidth-10, 20, 60)

	content := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("Share"),
		"",
		lipgloss.NewStyle().Width(textWidth).Render(models.ShareText(v.viewTask)),
		"",
		s.TitleMuted.Render("Press any key to close"),
	)

	centered := lipgloss.Place(contentWidth, v.height,
		lipgloss.Center, lipgloss.Center,
		s.Popup.Render(content),
	)
	return styles.CenterView(centered, v.width, v.height)
}
