package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammadpnp/alumni-import/internal/config"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/logging"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			gormDB, err := db.NewGorm(cfg.Database, logger)
			if err != nil {
				return err
			}
			sqlDB, err := gormDB.DB()
			if err != nil {
				return fmt.Errorf("get sql.DB: %w", err)
			}
			defer sqlDB.Close()

			return db.RunMigrations(sqlDB, logger)
		},
	}
}
