package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tgienger/duetask/internal/models"
)

func openTest(t *testing.T, opts Options) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "tasks.db"), opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func next(t *testing.T, ch <-chan []models.Task) []models.Task {
	t.Helper()
	select {
	case tasks, ok := <-ch:
		if !ok {
			t.Fatal("live query closed")
		}
		return tasks
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for live query")
		return nil
	}
}

func TestInsertAssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	database := openTest(t, Options{})

	seen := map[int64]bool{}
	for i := 0; i < 10; i++ {
		id, inserted, err := database.Insert(ctx, newTask("task", "", nil))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if !inserted {
			t.Fatalf("insert %d was ignored", i)
		}
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}

	// IDs are never reused after a delete
	if _, err := database.Delete(ctx, models.Task{ID: models.Int64(10)}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	id, _, err := database.Insert(ctx, newTask("after delete", "", nil))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 11 {
		t.Errorf("expected id 11, got %d", id)
	}
}

func TestInsertDuplicateIDIsIgnored(t *testing.T) {
	ctx := context.Background()
	database := openTest(t, Options{})

	id, _, err := database.Insert(ctx, newTask("original", "keep me", nil))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := models.Task{ID: &id, Title: "impostor", Notes: "replace me"}
	got, inserted, err := database.Insert(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate insert returned error: %v", err)
	}
	if inserted || got != 0 {
		t.Fatalf("duplicate insert: got id=%d inserted=%v", got, inserted)
	}

	stored, err := database.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Title != "original" || stored.Notes != "keep me" {
		t.Fatalf("existing row changed: %+v", stored)
	}
}

func TestUpdateAndDeleteMissingRows(t *testing.T) {
	ctx := context.Background()
	database := openTest(t, Options{})

	changed, err := database.Update(ctx, models.Task{ID: models.Int64(42), Title: "ghost"})
	if err != nil || changed {
		t.Fatalf("update missing: changed=%v err=%v", changed, err)
	}
	changed, err = database.Delete(ctx, models.Task{ID: models.Int64(42)})
	if err != nil || changed {
		t.Fatalf("delete missing: changed=%v err=%v", changed, err)
	}
	changed, err = database.Update(ctx, models.Task{Title: "no id"})
	if err != nil || changed {
		t.Fatalf("update without id: changed=%v err=%v", changed, err)
	}
}

func TestListTasksOrderedByDueDate(t *testing.T) {
	ctx := context.Background()
	database := openTest(t, Options{})

	now := time.Now()
	in14 := now.AddDate(0, 0, 14).UnixMilli()
	in7 := now.AddDate(0, 0, 7).UnixMilli()

	for _, task := range []models.Task{
		newTask("fortnight", "", &in14),
		newTask("week", "", &in7),
		newTask("someday", "", nil),
	} {
		if _, _, err := database.Insert(ctx, task); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	tasks, err := database.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"someday", "week", "fortnight"}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i, title := range want {
		if tasks[i].Title != title {
			t.Errorf("position %d: got %q, want %q", i, tasks[i].Title, title)
		}
	}
}

func TestWatchReemitsAfterMutations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	database := openTest(t, Options{})

	live := database.Watch(ctx)
	if tasks := next(t, live); len(tasks) != 0 {
		t.Fatalf("expected empty first emission, got %v", tasks)
	}

	due := time.Now().AddDate(0, 0, 7).UnixMilli()
	id, _, err := database.Insert(ctx, newTask("Clean House", "x", &due))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}

	tasks := next(t, live)
	if len(tasks) != 1 || tasks[0].Key() != 1 || tasks[0].Completed {
		t.Fatalf("after insert: %+v", tasks)
	}

	task := tasks[0]
	task.Completed = true
	if _, err := database.Update(ctx, task); err != nil {
		t.Fatalf("update: %v", err)
	}
	tasks = next(t, live)
	if len(tasks) != 1 || !tasks[0].Completed {
		t.Fatalf("after update: %+v", tasks)
	}

	if err := database.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if tasks := next(t, live); len(tasks) != 0 {
		t.Fatalf("after delete all: %+v", tasks)
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	database := openTest(t, Options{})

	live := database.Watch(ctx)
	next(t, live)
	cancel()

	select {
	case _, ok := <-live:
		if ok {
			// a final emission may race the cancel; the channel must still close
			if _, ok := <-live; ok {
				t.Fatal("expected live query to close")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live query did not close after cancel")
	}

	// Re-subscribing restarts the query
	restarted := database.Watch(context.Background())
	if tasks := next(t, restarted); len(tasks) != 0 {
		t.Fatalf("restarted query: %+v", tasks)
	}
}

func TestSeedRunsOnFirstCreation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	database, err := Open(path, Options{Seed: true, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	<-database.Seeded()

	tasks, err := database.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 seeded tasks, got %d", len(tasks))
	}
	if tasks[0].Title != "Clean House" || tasks[1].Title != "Take out Trash" {
		t.Fatalf("unexpected seed order: %q, %q", tasks[0].Title, tasks[1].Title)
	}
	if want := now.AddDate(0, 0, 7).UnixMilli(); tasks[0].DueDate == nil || *tasks[0].DueDate != want {
		t.Errorf("Clean House due: got %v, want %d", tasks[0].DueDate, want)
	}

	// User deletes everything; reopening must not seed again
	if err := database.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	database.Close()

	reopened, err := Open(path, Options{Seed: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	<-reopened.Seeded()

	tasks, err = reopened.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no reseed, got %d tasks", len(tasks))
	}
}

func TestMigrateFromVersion1(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE task (id INTEGER PRIMARY KEY AUTOINCREMENT, task TEXT NOT NULL, notes TEXT NOT NULL DEFAULT '', due_date INTEGER)`,
		`INSERT INTO task (task, notes, due_date) VALUES ('old task', 'n', 1000)`,
		`PRAGMA user_version = 1`,
	} {
		if _, err := legacy.Exec(stmt); err != nil {
			t.Fatalf("legacy setup %q: %v", stmt, err)
		}
	}
	legacy.Close()

	database, err := Open(path, Options{Seed: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	<-database.Seeded()

	var version int
	if err := database.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("version: got %d, want %d", version, SchemaVersion)
	}

	tasks, err := database.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "old task" || tasks[0].Completed {
		t.Fatalf("migrated rows: %+v", tasks)
	}
}

func TestNextNotificationID(t *testing.T) {
	ctx := context.Background()
	database := openTest(t, Options{})

	first, err := database.NextNotificationID(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second, err := database.NextNotificationID(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first != notificationIDBase || second != first+1 {
		t.Fatalf("got %d then %d", first, second)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	database := openTest(t, Options{})

	if v, err := database.GetSetting(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("missing setting: %q, %v", v, err)
	}
	if err := database.SetSetting(ctx, "theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := database.SetSetting(ctx, "theme", "light"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _ := database.GetSetting(ctx, "theme"); v != "light" {
		t.Fatalf("got %q", v)
	}
}

func TestAlarmRegistrations(t *testing.T) {
	ctx := context.Background()
	database := openTest(t, Options{})

	first := models.Alarm{NotificationID: 5, TriggerAt: 2000, TaskID: models.Int64(1), Token: "a"}
	if err := database.SaveAlarm(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	replacement := models.Alarm{NotificationID: 5, TriggerAt: 3000, Token: "b"}
	if err := database.SaveAlarm(ctx, replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}

	// A stale token must not remove the replacement
	if err := database.DeleteAlarm(ctx, 5, "a"); err != nil {
		t.Fatalf("delete stale: %v", err)
	}
	alarms, err := database.ListAlarms(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(alarms) != 1 || alarms[0].Token != "b" || alarms[0].TriggerAt != 3000 || alarms[0].TaskID != nil {
		t.Fatalf("alarms after replace: %+v", alarms)
	}

	if err := database.DeleteAlarm(ctx, 5, ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	alarms, _ = database.ListAlarms(ctx)
	if len(alarms) != 0 {
		t.Fatalf("expected no alarms, got %+v", alarms)
	}
}

func TestConcurrentClose(t *testing.T) {
	database := openTest(t, Options{})
	updates := database.Watch(context.Background())
	<-updates

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := database.Close(); err != nil {
				t.Errorf("close: %v", err)
			}
		}()
	}
	wg.Wait()

	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("live query should stop once closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("live query still open after close")
	}
}
