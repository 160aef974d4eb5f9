package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/config"
	"github.com/wuyiadepoju/benefits-enrollment/internal/app/subscription/migrations"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(viper.New())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var (
		projectID  = flag.String("project", cfg.Spanner.ProjectID, "Spanner project ID")
		instanceID = flag.String("instance", cfg.Spanner.InstanceID, "Spanner instance ID")
		databaseID = flag.String("database", cfg.Spanner.DatabaseID, "Spanner database ID")
		dir        = flag.String("dir", "", "Migrations directory (default: migrations/ at the module root)")
		timeout    = flag.Duration("timeout", 5*time.Minute, "Timeout for migration operations")
	)
	flag.Parse()

	cfg.Spanner.ProjectID = *projectID
	cfg.Spanner.InstanceID = *instanceID
	cfg.Spanner.DatabaseID = *databaseID

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	applied, err := migrations.NewRunner(cfg.Spanner, *dir, logger).Run(ctx)
	if err != nil {
		logger.Error("migration failed", "database", cfg.Spanner.DatabasePath(), "error", err)
		os.Exit(1)
	}

	logger.Info("all migrations applied", "database", cfg.Spanner.DatabasePath(), "new", applied)
}
