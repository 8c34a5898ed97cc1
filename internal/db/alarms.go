package db

import (
	"context"
	"database/sql"

	"github.com/tgienger/duetask/internal/models"
)

// SaveAlarm records a reminder registration, replacing any with the same notification ID
func (db *DB) SaveAlarm(ctx context.Context, a models.Alarm) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO alarm (notification_id, trigger_at, task_id, token) VALUES (?, ?, ?, ?)
		ON CONFLICT(notification_id) DO UPDATE SET
			trigger_at = excluded.trigger_at,
			task_id = excluded.task_id,
			token = excluded.token
	`, a.NotificationID, a.TriggerAt, a.TaskID, a.Token)
	return err
}

// DeleteAlarm removes a registration. A non-empty token only matches that exact
// registration, so a fired timer cannot remove its replacement.
func (db *DB) DeleteAlarm(ctx context.Context, notificationID int, token string) error {
	var err error
	if token == "" {
		_, err = db.ExecContext(ctx, "DELETE FROM alarm WHERE notification_id = ?", notificationID)
	} else {
		_, err = db.ExecContext(ctx, "DELETE FROM alarm WHERE notification_id = ? AND token = ?", notificationID, token)
	}
	return err
}

// ListAlarms returns all pending registrations, soonest first
func (db *DB) ListAlarms(ctx context.Context) ([]models.Alarm, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT notification_id, trigger_at, task_id, token
		FROM alarm
		ORDER BY trigger_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alarms []models.Alarm
	for rows.Next() {
		var (
			a      models.Alarm
			taskID sql.NullInt64
		)
		if err := rows.Scan(&a.NotificationID, &a.TriggerAt, &taskID, &a.Token); err != nil {
			return nil, err
		}
		if taskID.Valid {
			a.TaskID = &taskID.Int64
		}
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}
