package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tgienger/duetask/internal/alarm"
	"github.com/tgienger/duetask/internal/config"
	"github.com/tgienger/duetask/internal/db"
	"github.com/tgienger/duetask/internal/logging"
	"github.com/tgienger/duetask/internal/notify"
	"github.com/tgienger/duetask/internal/permission"
	"github.com/tgienger/duetask/internal/repository"
	"github.com/tgienger/duetask/internal/ui"
	"github.com/tgienger/duetask/internal/ui/views"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("duetask %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(flag.NewFlagSet("duetask", flag.ContinueOnError), args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, logFile, err := logging.OpenFile(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger.Info("starting", "version", version, "config", cfg.ConfigFile, "db", cfg.DBPath)

	database, err := db.Open(cfg.DBPath, db.Options{Seed: cfg.Seed, Logger: logger})
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer database.Close()

	states, err := cfg.PermissionStates()
	if err != nil {
		return err
	}
	perms := permission.NewRegistry(states)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repo := repository.New(database, logger)
	defer repo.Close()

	// Reminders fire into the tray whether or not a screen is showing
	tray := notify.NewTray()
	receiver := notify.NewReceiver(database, notify.NewEmitter(tray, perms, logger), logger)
	alarms := alarm.NewManager(database, perms, receiver.OnAlarm, cfg.AlarmWindow, logger)
	defer alarms.Close()
	if _, err := alarms.Restore(ctx); err != nil {
		logger.Error("restoring reminders failed", "err", err)
	}

	inbox := ui.NewInbox()
	scheduler := alarm.NewScheduler(alarms, perms, inbox, logger)

	app := ui.NewApp(ctx, ui.Deps{
		Services: views.Services{
			Repo:      repo,
			Settings:  database,
			Scheduler: scheduler,
			IDs:       database,
		},
		Tray:   tray,
		Perms:  perms,
		Inbox:  inbox,
		Logger: logger,
	})
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running application: %w", err)
	}
	logger.Info("exiting")
	return nil
}
