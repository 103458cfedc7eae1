package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/database"
	"github.com/qs3c/site_compare_server/internal/pkg/cron"
	"github.com/qs3c/site_compare_server/internal/pkg/logger"
	"github.com/qs3c/site_compare_server/internal/pkg/oss"
	"github.com/qs3c/site_compare_server/internal/repository"
)

var (
	configPath  string
	dryRun      bool
	expireHours int
)

func main() {
	root := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired batches, site results and local reports",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "config file")
	root.Flags().BoolVar(&dryRun, "dry-run", true, "list what would be deleted without deleting")
	root.Flags().IntVar(&expireHours, "expire-hours", 0, "override retention.expire_hours")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Setup(cfg.Log)

	if expireHours <= 0 {
		expireHours = cfg.Retention.ExpireHours
	}

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	batchRepo := repository.NewBatchRepository(db)

	logrus.WithFields(logrus.Fields{
		"dry_run":      dryRun,
		"expire_hours": expireHours,
	}).Info("Starting cleanup")

	if dryRun {
		before := time.Now().Add(-time.Duration(expireHours) * time.Hour)
		expired, err := batchRepo.ListExpired(before)
		if err != nil {
			return fmt.Errorf("list expired batches: %w", err)
		}
		for _, b := range expired {
			line := fmt.Sprintf("  - %s (%s, %d sites, created %s)", b.ID, b.Status, b.Total, b.CreatedAt.Format(time.RFC3339))
			if b.ReportPath != "" {
				line += " report=" + b.ReportPath
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("=", 60))
		fmt.Fprintf(cmd.OutOrStdout(), "DRY RUN: %d batches would be deleted\n", len(expired))
		fmt.Fprintln(cmd.OutOrStdout(), "Run with --dry-run=false to actually delete")
		return nil
	}

	svc := cron.NewService(batchRepo, cfg.Retention.ReportDir, expireHours)
	if cfg.OSS.Enabled() {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			return fmt.Errorf("init oss: %w", err)
		}
		svc.WithRemover(ossClient)
	}
	batches, files := svc.RunNow()
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d batches and %d report files\n", batches, files)
	return nil
}
