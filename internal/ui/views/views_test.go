package views

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tgienger/duetask/internal/alarm"
	"github.com/tgienger/duetask/internal/db"
	"github.com/tgienger/duetask/internal/deeplink"
	"github.com/tgienger/duetask/internal/models"
	"github.com/tgienger/duetask/internal/notify"
	"github.com/tgienger/duetask/internal/permission"
	"github.com/tgienger/duetask/internal/repository"
)

type harness struct {
	view     *TaskListView
	db       *db.DB
	perms    *permission.Registry
	requests []permission.Capability
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), db.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	repo := repository.New(database, nil)
	t.Cleanup(func() {
		cancel()
		repo.Close()
		database.Close()
	})

	h := &harness{db: database}
	h.perms = permission.NewRegistry(nil)
	h.perms.OnRequest = func(c permission.Capability) {
		h.requests = append(h.requests, c)
	}
	manager := alarm.NewManager(database, h.perms, func(context.Context, models.Alarm) {}, 0, nil)
	t.Cleanup(manager.Close)

	h.view = NewTaskListView(ctx, Services{
		Repo:      repo,
		Settings:  database,
		Scheduler: alarm.NewScheduler(manager, h.perms, nil, nil),
		IDs:       database,
		Perms:     h.perms,
	})
	h.view.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	h.feed(t, h.view.Init())
	return h
}

// run executes a command, failing if it does not return in time
func run(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	out := make(chan tea.Msg, 1)
	go func() { out <- cmd() }()
	select {
	case msg := <-out:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("command did not finish")
		return nil
	}
}

// feed runs cmd and hands its message back to the view
func (h *harness) feed(t *testing.T, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	_, next := h.view.Update(run(t, cmd))
	return next
}

// waitForCount consumes live query emissions until the list has n tasks.
// Back-to-back writes may coalesce or arrive one at a time.
func (h *harness) waitForCount(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < 5; i++ {
		h.feed(t, h.view.waitForTasks())
		if len(h.view.tasks) == n {
			return
		}
	}
	t.Fatalf("expected %d tasks, got %d", n, len(h.view.tasks))
}

func (h *harness) press(s string) tea.Cmd {
	var msg tea.KeyMsg
	switch s {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "ctrl+s":
		msg = tea.KeyMsg{Type: tea.KeyCtrlS}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEscape}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	_, cmd := h.view.Update(msg)
	return cmd
}

func TestNewTaskAppearsInList(t *testing.T) {
	h := newHarness(t)
	if len(h.view.tasks) != 0 || !h.view.loaded {
		t.Fatalf("expected empty loaded list, got %+v", h.view.tasks)
	}

	h.press("n")
	h.press("Clean House")
	h.press("tab")
	h.press("These are notes")
	h.press("tab")
	h.press("01/02/2030 09:30 am")

	msg := run(t, h.press("ctrl+s"))
	done, ok := msg.(mutationDoneMsg)
	if !ok || done.err != nil || done.id != 1 {
		t.Fatalf("insert result: %#v", msg)
	}
	if h.view.editing {
		t.Fatal("form should close after save")
	}

	h.waitForCount(t, 1)
	task := h.view.tasks[0]
	if task.Title != "Clean House" || task.Notes != "These are notes" {
		t.Fatalf("task: %+v", task)
	}
	if got := models.FormatDueDate(task.DueDate, time.Local); got != "01/02/2030 09:30 AM" {
		t.Fatalf("due date: %q", got)
	}
}

func TestInvalidDueDateKeepsForm(t *testing.T) {
	h := newHarness(t)
	h.press("n")
	h.press("Take out Trash")
	h.press("tab")
	h.press("tab")
	h.press("tomorrow")

	if cmd := h.press("ctrl+s"); cmd != nil {
		t.Fatal("nothing should be saved")
	}
	if !h.view.editing || h.view.editErr == "" {
		t.Fatalf("form should stay open with an error, editing=%v err=%q", h.view.editing, h.view.editErr)
	}
}

func TestToggleAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, _, err := h.db.Insert(ctx, models.Task{Title: "Clean House"}); err != nil {
		t.Fatal(err)
	}
	h.waitForCount(t, 1)

	run(t, h.press("x"))
	h.feed(t, h.view.waitForTasks())
	if !h.view.tasks[0].Completed {
		t.Fatal("task should be completed after toggle")
	}

	h.press("d")
	if !h.view.confirmingDelete {
		t.Fatal("delete should ask for confirmation")
	}
	msg := run(t, h.press("y"))
	if done := msg.(mutationDoneMsg); done.err != nil || done.op != "delete" {
		t.Fatalf("delete result: %#v", done)
	}
	h.waitForCount(t, 0)
}

func TestRemindNeedsDueDateAndPermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	due := time.Now().Add(time.Hour).UnixMilli()
	h.db.Insert(ctx, models.Task{ID: models.Int64(1), Title: "No date"})
	h.db.Insert(ctx, models.Task{ID: models.Int64(2), Title: "Dated", DueDate: &due})
	h.waitForCount(t, 2)

	// Undated tasks sort first
	msg := run(t, h.press("r"))
	if st, ok := msg.(StatusMsg); !ok || !st.Err {
		t.Fatalf("expected an error status, got %#v", msg)
	}

	h.press("j")
	run(t, h.press("r"))
	if len(h.requests) != 1 || h.requests[0] != permission.Notifications {
		t.Fatalf("expected a notification permission request, got %v", h.requests)
	}

	h.perms.Set(permission.Notifications, permission.Granted)
	h.perms.Set(permission.ExactAlarm, permission.Granted)
	msg = run(t, h.press("r"))
	if done, ok := msg.(reminderDoneMsg); !ok || done.err != nil || done.id != alarm.NotificationIDForTask(2) {
		t.Fatalf("reminder result: %#v", msg)
	}
	alarms, err := h.db.ListAlarms(ctx)
	if err != nil || len(alarms) != 1 || *alarms[0].TaskID != 2 {
		t.Fatalf("stored alarms: %+v %v", alarms, err)
	}
}

func TestOpenTaskShowsDetail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.db.Insert(ctx, models.Task{Title: "Clean House", Notes: "These are notes"})
	h.waitForCount(t, 1)

	_, cmd := h.view.Update(OpenTask{Task: models.Task{ID: models.Int64(1), Title: "stale"}})
	if !h.view.viewingTask || h.view.viewTask.Title != "Clean House" {
		t.Fatalf("detail should show the stored task, got %+v", h.view.viewTask)
	}
	run(t, cmd)
	if got, _ := h.db.GetSetting(ctx, lastTaskKey); got != "1" {
		t.Fatalf("last task setting: %q", got)
	}

	run(t, h.press("esc"))
	if h.view.viewingTask {
		t.Fatal("esc should return to the list")
	}
	if got, _ := h.db.GetSetting(ctx, lastTaskKey); got != "" {
		t.Fatalf("last task setting should be cleared, got %q", got)
	}
}

func TestPermissionPromptRecordsAnswer(t *testing.T) {
	perms := permission.NewRegistry(nil)
	p := NewPermissionPrompt(perms)
	p.Ask(permission.ExactAlarm)
	p.Ask(permission.ExactAlarm)
	p.Ask(permission.Notifications)

	p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if perms.Check(permission.ExactAlarm) != permission.Granted {
		t.Fatal("exact alarm should be granted")
	}
	if !p.Active() {
		t.Fatal("second question should still be pending")
	}

	p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if perms.Check(permission.Notifications) != permission.Denied {
		t.Fatal("notifications should be denied")
	}
	if p.Active() {
		t.Fatal("no questions should remain")
	}
}

func TestAlertsTapOpensTask(t *testing.T) {
	tray := notify.NewTray()
	perms := permission.NewRegistry(map[permission.Capability]permission.State{
		permission.Notifications: permission.Granted,
	})
	emitter := notify.NewEmitter(tray, perms, nil)
	v := NewAlertsView(tray)
	cmd := v.Init()
	t.Cleanup(v.Close)

	task := models.Task{ID: models.Int64(3), Title: "Take out Trash"}
	emitter.Emit(3, "Task Reminder", "Take out Trash: It's time to complete your task!", deeplink.FromTask(task))

	v.Update(run(t, cmd))
	if v.Count() != 1 {
		t.Fatalf("expected 1 alert, got %d", v.Count())
	}

	if _, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd == nil {
		t.Fatal("tap should navigate")
	}
	if len(tray.Active()) != 0 {
		t.Fatal("tapped reminder should be dismissed")
	}
}
