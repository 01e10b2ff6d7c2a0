package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gofrs/flock"

	"github.com/studyhall-dev/studyhall/internal/app"
	"github.com/studyhall-dev/studyhall/internal/backend"
	"github.com/studyhall-dev/studyhall/internal/focus"
	"github.com/studyhall-dev/studyhall/internal/model"
	"github.com/studyhall-dev/studyhall/internal/notify"
	"github.com/studyhall-dev/studyhall/internal/provider"
	"github.com/studyhall-dev/studyhall/internal/store"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "Path to the config file")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("studyhall v%s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Backend.URL == "" || cfg.Backend.AnonKey == "" {
		return fmt.Errorf(
			"backend.url and backend.anon_key must be set in %s",
			configPath,
		)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// One process owns the countdown; a second instance would race the
	// persisted timer state.
	lock := flock.New(filepath.Join(cfg.DataDir, "studyhall.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance of studyhall is already running")
	}
	defer lock.Unlock()

	// The TUI owns stdout; logs go to a file in the data dir.
	logFile, err := os.OpenFile(
		filepath.Join(cfg.DataDir, "studyhall.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0o644,
	)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)

	st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "studyhall.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	auth := backend.NewAuth(cfg.Backend.URL, cfg.Backend.AnonKey)
	client := backend.NewRestClient(cfg.Backend.URL, cfg.Backend.AnonKey, auth)
	realtime := backend.NewWSRealtime(cfg.Backend.URL, cfg.Backend.AnonKey, auth)
	defer realtime.Close()

	dataProvider := provider.New(client, realtime)
	defer dataProvider.Close()

	notifier := notify.NewNotifier()
	notifier.SetEnabled(cfg.Display.Notifications)

	timer := focus.NewTimer(st)
	if err := timer.Load(context.Background(), time.Now()); err != nil {
		log.Printf("main: rehydrating timer state: %v", err)
	}

	root := app.New(auth, client, dataProvider, timer, notifier, st, cfg, configPath)

	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}
