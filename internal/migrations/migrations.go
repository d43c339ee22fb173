// Package migrations embeds the schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed sql/*.sql
var files embed.FS

const dir = "sql"

// Commands accepted by Run.
var Commands = []string{"up", "down", "status", "version", "redo", "reset"}

// Open connects through lib/pq, which goose drives via database/sql.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Run executes a goose command against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, logger zerolog.Logger, command string, args ...string) error {
	command = strings.ToLower(strings.TrimSpace(command))
	if !validCommand(command) {
		return fmt.Errorf("unknown migrate command %q", command)
	}
	goose.SetBaseFS(files)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	return Run(ctx, db, logger, "up")
}

func validCommand(cmd string) bool {
	for _, c := range Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

type gooseLogger struct {
	logger zerolog.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logger.Info().Msg("migrate: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logger.Fatal().Msg("migrate: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}
