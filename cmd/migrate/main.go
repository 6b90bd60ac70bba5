// Command migrate applies or inspects the audit database schema.
//
//	migrate [up|down|status|version]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BradenHooton/consoleguard/internal/config"
	"github.com/BradenHooton/consoleguard/internal/database"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := run(ctx, command, db, logger); err != nil {
		logger.Error("migration command failed", slog.String("command", command), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, db *database.DB, logger *slog.Logger) error {
	switch command {
	case "up":
		return database.Migrate(ctx, db.Pool, logger)
	case "version":
		version, err := database.MigrationVersion(ctx, db.Pool)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	}

	provider, sqlDB, err := database.NewMigrationProvider(db.Pool)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	switch command {
	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			return err
		}
		logger.Info("rolled back migration", slog.String("source", result.Source.Path))
		return nil
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			fmt.Printf("%-40s %s\n", s.Source.Path, s.State)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, down, status or version)", command)
	}
}
