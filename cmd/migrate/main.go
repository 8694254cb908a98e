package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/po-master/po-master/internal/app"
	"github.com/po-master/po-master/internal/platform/db"
	"github.com/po-master/po-master/migrations"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	migrator, err := db.NewMigrator(migrations.FS, cfg.PGDSN)
	if err != nil {
		logger.Error("init migrator", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()

	if *down > 0 {
		err = migrator.Down(*down)
	} else {
		err = migrator.Up()
	}
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		logger.Error("read schema version", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema migrated", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
}
