package db

import (
	"context"
	"database/sql"

	"github.com/tgienger/duetask/internal/models"
)

const taskColumns = "id, task, notes, due_date, completed"

func newTask(title, notes string, due *int64) models.Task {
	return models.Task{Title: title, Notes: notes, DueDate: due}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var (
		t   models.Task
		id  int64
		due sql.NullInt64
	)
	if err := row.Scan(&id, &t.Title, &t.Notes, &due, &t.Completed); err != nil {
		return models.Task{}, err
	}
	t.ID = &id
	if due.Valid {
		t.DueDate = &due.Int64
	}
	return t, nil
}

// Insert stores a task, assigning an ID when it has none. A task whose
// explicit ID already exists is ignored and reported with inserted=false.
func (db *DB) Insert(ctx context.Context, t models.Task) (id int64, inserted bool, err error) {
	result, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO task (id, task, notes, due_date, completed) VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Notes, t.DueDate, t.Completed)
	if err != nil {
		return 0, false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	db.notifier.Notify()
	return id, true, nil
}

// Update replaces the row matching t.ID. Missing rows are left alone.
func (db *DB) Update(ctx context.Context, t models.Task) (bool, error) {
	if t.ID == nil {
		return false, nil
	}
	result, err := db.ExecContext(ctx, `
		UPDATE task SET task = ?, notes = ?, due_date = ?, completed = ?
		WHERE id = ?
	`, t.Title, t.Notes, t.DueDate, t.Completed, *t.ID)
	if err != nil {
		return false, err
	}
	return db.changed(result)
}

// Delete removes the row matching t.ID
func (db *DB) Delete(ctx context.Context, t models.Task) (bool, error) {
	if t.ID == nil {
		return false, nil
	}
	result, err := db.ExecContext(ctx, "DELETE FROM task WHERE id = ?", *t.ID)
	if err != nil {
		return false, err
	}
	return db.changed(result)
}

// DeleteAll empties the task table
func (db *DB) DeleteAll(ctx context.Context) error {
	result, err := db.ExecContext(ctx, "DELETE FROM task")
	if err != nil {
		return err
	}
	_, err = db.changed(result)
	return err
}

// changed notifies live queries when a statement touched any rows
func (db *DB) changed(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		db.notifier.Notify()
	}
	return n > 0, nil
}

// GetTask retrieves a task by ID
func (db *DB) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	row := db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM task WHERE id = ?", id)
	t, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns all tasks ordered by due date; tasks without one come first
func (db *DB) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM task
		ORDER BY COALESCE(due_date, 0) ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
