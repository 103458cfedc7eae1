package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/browser/playwright"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/pkg/export"
	"github.com/qs3c/site_compare_server/internal/pkg/logger"
	"github.com/qs3c/site_compare_server/internal/runner"
)

var errNoSuccess = errors.New("no site analyzed successfully")

var (
	configPath string
	noHeadless bool
	timeout    time.Duration
	xlsxPath   string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "ratesite <url> [url...]",
		Short: "Analyze sites with ratemysite.xyz and print a comparison",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "config.yaml", "config file, defaults are used when missing")
	root.Flags().BoolVar(&noHeadless, "no-headless", false, "show the browser window")
	root.Flags().DurationVar(&timeout, "timeout", 0, "per-site timeout, overrides analysis.site_timeout")
	root.Flags().StringVar(&xlsxPath, "xlsx", "", "write the comparison table to this file")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "print debug events")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(configPath)
	if noHeadless {
		cfg.Browser.Headless = false
	}
	if timeout > 0 {
		cfg.Analysis.SiteTimeout = timeout
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger.Setup(cfg.Log)

	urls, err := orchestrator.NormalizeURLs(args, cfg.Analysis.MaxURLs)
	if err != nil {
		return err
	}

	rt, err := playwright.NewRuntime(cfg.Browser)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(runner.New(rt, cfg.Analysis))
	job := orchestrator.NewJob(uuid.NewString(), urls)
	out := &printer{w: cmd.OutOrStdout(), verbose: verbose}

	summary, err := orch.Run(ctx, job, out)
	if err != nil {
		return err
	}

	if summary.Succeeded == 0 {
		return errNoSuccess
	}
	if xlsxPath != "" {
		if err := writeReport(xlsxPath, summary); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", xlsxPath)
	}
	return nil
}

// loadConfig 配置文件不存在时使用默认值
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg
	}
	logrus.WithError(err).Debug("config not loaded, using defaults")
	return &config.Config{
		Log: config.LogConfig{Level: "warn", Format: "text"},
		Browser: config.BrowserConfig{
			Headless:     true,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Analysis: config.AnalysisConfig{}.Defaults(),
	}
}

// writeReport 先生成表格再写文件，没有数据时不留下空文件
func writeReport(path string, summary *orchestrator.Summary) error {
	data, err := export.Bytes(reportColumns(summary))
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func reportColumns(summary *orchestrator.Summary) []export.Column {
	cols := make([]export.Column, 0, len(summary.Results))
	for _, r := range summary.Results {
		col := export.Column{Index: r.Index, URL: r.URL, Record: r.Outcome.Record}
		if r.Outcome.Err != nil {
			col.Record = nil
			col.Reason = r.Outcome.Err.Reason
		}
		cols = append(cols, col)
	}
	return cols
}
