package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// SchemaVersion is the current task table version, tracked in PRAGMA user_version
const SchemaVersion = 2

// notificationIDBase keeps counter-assigned notification IDs clear of task-derived ones
const notificationIDBase = 1 << 30

// Options configures how the database is opened
type Options struct {
	// Seed populates example tasks when the schema is created for the first time
	Seed   bool
	Logger *log.Logger
	Now    func() time.Time
}

// DB wraps the database connection
type DB struct {
	*sql.DB
	log      *log.Logger
	now      func() time.Time
	notifier *Notifier
	seeded   chan struct{}
	closed   chan struct{}
	closeErr error
	once     sync.Once
}

// Open opens (creating if needed) the database at path and brings the schema up to date
func Open(path string, opts Options) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps :memory: databases shared
	conn.SetMaxOpenConns(1)

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	db := &DB{
		DB:       conn,
		log:      logger.WithPrefix("db"),
		now:      now,
		notifier: NewNotifier(),
		seeded:   make(chan struct{}),
		closed:   make(chan struct{}),
	}

	created, err := db.migrate()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if created && opts.Seed {
		go func() {
			defer close(db.seeded)
			if err := db.seed(context.Background()); err != nil {
				db.log.Error("seeding failed", "err", err)
			}
		}()
	} else {
		close(db.seeded)
	}

	return db, nil
}

// migrate creates or upgrades the schema, reporting whether it was created from scratch
func (db *DB) migrate() (bool, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return false, err
	}

	created := false
	switch {
	case version == 0:
		created = true
	case version == 1:
		// Version 1 predates the completion flag
		if _, err := db.Exec("ALTER TABLE task ADD COLUMN completed INTEGER NOT NULL DEFAULT 0"); err != nil {
			return false, fmt.Errorf("migrate task table to v2: %w", err)
		}
	case version > SchemaVersion:
		return false, fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}

	if _, err := db.Exec(schema); err != nil {
		return false, err
	}
	if version != SchemaVersion {
		if _, err := db.Exec("PRAGMA user_version = " + strconv.Itoa(SchemaVersion)); err != nil {
			return false, err
		}
		db.log.Info("schema ready", "from", version, "to", SchemaVersion)
	}
	return created, nil
}

// seed clears the table and inserts the example tasks
func (db *DB) seed(ctx context.Context) error {
	if err := db.DeleteAll(ctx); err != nil {
		return err
	}

	now := db.now()
	examples := []struct {
		title, notes string
		days         int
	}{
		{"Clean House", "These are notes", 7},
		{"Take out Trash", "Notes again", 14},
	}
	for _, e := range examples {
		due := now.AddDate(0, 0, e.days).UnixMilli()
		if _, _, err := db.Insert(ctx, newTask(e.title, e.notes, &due)); err != nil {
			return err
		}
	}
	db.log.Debug("seeded example tasks", "count", len(examples))
	return nil
}

// Seeded is closed once first-run seeding has finished (immediately if none ran)
func (db *DB) Seeded() <-chan struct{} {
	return db.seeded
}

// Close waits for seeding, stops live queries and closes the connection.
// Later calls return the first call's result.
func (db *DB) Close() error {
	<-db.seeded
	db.once.Do(func() {
		close(db.closed)
		db.closeErr = db.DB.Close()
	})
	return db.closeErr
}

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting sets a setting value
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// NextNotificationID hands out notification IDs for reminders not tied to a stored task
func (db *DB) NextNotificationID(ctx context.Context) (int, error) {
	var next int
	err := db.QueryRowContext(ctx, `
		INSERT INTO settings (key, value) VALUES ('next_notification_id', ?)
		ON CONFLICT(key) DO UPDATE SET value = CAST(value AS INTEGER) + 1
		RETURNING CAST(value AS INTEGER)
	`, notificationIDBase).Scan(&next)
	return next, err
}
