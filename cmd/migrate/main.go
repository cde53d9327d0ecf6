// Command migrate manages the chat schema outside of server startup.
//
//	migrate up       apply versioned SQL migrations (postgres)
//	migrate down     roll back versioned SQL migrations (postgres)
//	migrate create   create tables from the gorm models (any driver)
//	migrate drop     drop the chat tables
//	migrate seed     insert development seed data
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"portalchat/internal/config"
	"portalchat/internal/logger"
	"portalchat/internal/platform/database"
	"portalchat/internal/schema"
)

func main() {
	_ = godotenv.Load()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|down|create|drop|seed]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	action := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("load config failed")
	}
	log := logger.Component(logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		Service: cfg.App.Name,
	}), "migrate")

	ctx := context.Background()

	switch action {
	case "up":
		err = schema.RunMigrations(cfg.Database.DSN, log)
	case "down":
		err = schema.RollbackMigrations(cfg.Database.DSN, log)
	case "create", "drop", "seed":
		err = runGorm(ctx, cfg, action)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("action", action).Msg("migration failed")
	}
	log.Info().Str("action", action).Msg("migration finished")
}

func runGorm(ctx context.Context, cfg *config.Config, action string) error {
	db, err := database.New(ctx, database.Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return err
	}
	defer database.Close(db)

	switch action {
	case "create":
		return schema.CreateTables(ctx, db)
	case "drop":
		return schema.DropTables(ctx, db)
	default:
		return schema.CreateSeedData(ctx, db)
	}
}
