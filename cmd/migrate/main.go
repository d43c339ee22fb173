package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"multiverse/internal/infra"
	"multiverse/internal/migrations"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [%s] [args]\n", strings.Join(migrations.Commands, "|"))
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "up"
	var args []string
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	_ = godotenv.Load(".env", ".env.local")
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	logger := infra.NewLogger(os.Getenv("APP_ENV")).With().Str("cmd", "migrate").Logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := migrations.Open(dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database")
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger, command, args...); err != nil {
		logger.Error().Err(err).Str("command", command).Msg("migrate: failed")
		os.Exit(1)
	}
	logger.Info().Str("command", command).Msg("migrate: done")
}
