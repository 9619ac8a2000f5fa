package app

import (
	"fmt"

	"duewatch/internal/config"
	"duewatch/internal/db"
	"duewatch/internal/migrate"
	"duewatch/internal/notify"
	"duewatch/internal/scan"
)

// BuildEngine opens the workspace store, applies migrations, loads the
// config, and wires the scan engine with a Gotify notifier. The returned
// cleanup closes the store.
func BuildEngine(workspace string) (scan.Engine, func(), error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return scan.Engine{}, nil, err
	}
	cleanup := func() { conn.Close() }
	if err := migrate.Migrate(conn); err != nil {
		cleanup()
		return scan.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		cleanup()
		return scan.Engine{}, nil, err
	}
	notifier := notify.NewGotify(cfg.Gotify.ServerURL, cfg.Gotify.Token)
	return scan.New(conn, cfg, notifier, workspace), cleanup, nil
}
