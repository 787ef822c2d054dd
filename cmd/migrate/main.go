package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"time"

	"github.com/angelmondragon/donations-backend/internal/bootstrap"
	"github.com/angelmondragon/donations-backend/pkg/db"
	"github.com/angelmondragon/donations-backend/pkg/migrate"
)

type dbCommand func(ctx context.Context, sqlDB *sql.DB, dialect, dir string) error

func gooseCommand(name string) dbCommand {
	return func(ctx context.Context, sqlDB *sql.DB, dialect, dir string) error {
		return migrate.Run(ctx, sqlDB, dialect, dir, name)
	}
}

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|redo|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, logg, err := bootstrap.Load("migrate")
	if err != nil {
		bootstrap.Fatal(context.Background(), logg, "failed to load config", err)
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	// create and validate only touch the filesystem
	switch *cmd {
	case "create":
		if *name == "" {
			bootstrap.Fatal(ctx, logg, "missing -name for create", nil)
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			bootstrap.Fatal(ctx, logg, "failed to create migration", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			bootstrap.Fatal(ctx, logg, "migration validation failed", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	commands := map[string]dbCommand{
		"up":     gooseCommand("up"),
		"down":   gooseCommand("down"),
		"status": gooseCommand("status"),
		"redo":   gooseCommand("redo"),
		"version": func(ctx context.Context, sqlDB *sql.DB, dialect, dir string) error {
			if *version == "" {
				return fmt.Errorf("missing -version for version command")
			}
			return migrate.MigrateToVersion(ctx, sqlDB, dialect, dir, *version)
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		bootstrap.Fatal(ctx, logg, "unknown -cmd value: "+*cmd, nil)
	}

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		bootstrap.Fatal(ctx, logg, "failed to bootstrap database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		bootstrap.Fatal(ctx, logg, "failed to extract sql.DB", err)
	}
	dialect := migrate.Dialect(cfg.FeatureFlags.UseSQLite)
	ctx = logg.WithField(ctx, "dialect", dialect)

	if err := run(ctx, sqlDB, dialect, *dir); err != nil {
		_ = dbClient.Close()
		bootstrap.Fatal(ctx, logg, "migration command failed", err)
	}
	logg.Info(ctx, "migration command completed")
}
