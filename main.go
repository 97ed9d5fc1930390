package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gapflow/config"
	"gapflow/internal/calendar"
	"gapflow/logger"
	"gapflow/pipeline"
)

const flagDateLayout = "2006-01-02"

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	startFlag := flag.String("start", "", "Backfill start date (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "Backfill end date (YYYY-MM-DD, defaults to today)")
	dateFlag := flag.String("date", "", "Collect a single session (YYYY-MM-DD) and write the latest-features output")
	daysFlag := flag.Int("days", 0, "Backfill lookback in calendar days (overrides calendar.lookback_days)")
	outFlag := flag.String("out", "", "Override the output path")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Gapflow.Name,
		"version": cfg.Gapflow.Version,
	}).Info("starting gapflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown requested")
		cancel()
	}()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	days, outPath, err := resolveWindow(cfg, *startFlag, *endFlag, *dateFlag, *daysFlag)
	if err != nil {
		log.WithError(err).Error("invalid date selection")
		os.Exit(1)
	}
	if *outFlag != "" {
		outPath = *outFlag
	}

	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create pipeline")
		os.Exit(1)
	}

	summary, err := runner.Run(ctx, days, outPath)
	if err != nil {
		log.WithError(err).Error("pipeline run failed")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"sessions":     summary.Sessions,
		"dataset_rows": summary.DatasetRows,
		"output":       outPath,
	}).Info("gapflow finished")
}

// resolveWindow maps the calendar flags onto a session list and output path.
// A -date run is the single-session refresh and targets the latest-features
// path; everything else is a backfill targeting the training path.
func resolveWindow(cfg *config.Config, startFlag, endFlag, dateFlag string, daysFlag int) ([]time.Time, string, error) {
	if dateFlag != "" {
		day, err := time.Parse(flagDateLayout, dateFlag)
		if err != nil {
			return nil, "", err
		}
		return calendar.TradingDays(day, day), cfg.Writer.LatestPath, nil
	}

	end := calendar.Day(time.Now().UTC())
	if endFlag != "" {
		parsed, err := time.Parse(flagDateLayout, endFlag)
		if err != nil {
			return nil, "", err
		}
		end = calendar.Day(parsed)
	}

	var start time.Time
	switch {
	case startFlag != "":
		parsed, err := time.Parse(flagDateLayout, startFlag)
		if err != nil {
			return nil, "", err
		}
		start = calendar.Day(parsed)
	case daysFlag > 0:
		start, end = calendar.Lookback(end, daysFlag)
	default:
		start, end = calendar.Lookback(end, cfg.Calendar.LookbackDays)
	}

	return calendar.TradingDays(start, end), cfg.Writer.OutputPath, nil
}
