// Package cmd holds the bureau command line: the API server and its
// maintenance commands.
package cmd

import (
	"BUREAU/config"
	"BUREAU/logger"
	"BUREAU/models"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "bureau",
	Short: "Missing-person identification API",
	Long: `Bureau serves the missing-person case registry: case registration with
face encodings, field detections, operator review with alerting, and the
operations dashboard.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config, the logger and a migrated database.
func bootstrap() (*config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	db, err := models.ConnectDatabase(cfg, logger.NewGormLogger(log.Named("gorm"), 200*time.Millisecond))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := models.Migrate(db); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return cfg, log, db, nil
}
