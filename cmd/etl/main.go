// Command etl is the process entrypoint: it wires configuration,
// logging, storage, extractors, analyzers, the pipeline, and the
// scheduler together and either runs one invocation and exits or
// serves the scheduler plus introspection API, following
// cmd/server/main.go's load-config -> init-logger -> init-store ->
// wire-collaborators -> serve -> graceful-shutdown sequence.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/esomin/gpu-market-etl/config"
	"github.com/esomin/gpu-market-etl/internal/analyze/price"
	"github.com/esomin/gpu-market-etl/internal/analyze/risk"
	"github.com/esomin/gpu-market-etl/internal/analyze/sentiment"
	"github.com/esomin/gpu-market-etl/internal/api"
	"github.com/esomin/gpu-market-etl/internal/archive"
	pricefeed "github.com/esomin/gpu-market-etl/internal/extract/feed"
	priceext "github.com/esomin/gpu-market-etl/internal/extract/price"
	"github.com/esomin/gpu-market-etl/internal/pipeline"
	"github.com/esomin/gpu-market-etl/internal/retry"
	"github.com/esomin/gpu-market-etl/internal/scheduler"
	"github.com/esomin/gpu-market-etl/internal/store"
	"github.com/esomin/gpu-market-etl/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", err)
	}

	logger.Initialize(logger.Config{
		Level:       cfg.Log.Level,
		Format:      "console",
		EnableColor: true,
		FilePath:    cfg.Log.FilePath,
	})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	s, err := store.Open(cfg.Store.DSN(), cfg.Store.PoolSize)
	if err != nil {
		logger.Fatal("failed to connect to store", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("failed to close store", err)
		}
	}()
	if err := s.Migrate(); err != nil {
		logger.Fatal("failed to migrate store", err)
	}

	p := buildPipeline(cfg, s)
	sched := buildScheduler(cfg, p)

	switch os.Args[1] {
	case "run":
		runOnce(p, os.Args[2:])
	case "scheduler":
		runScheduler(cfg, sched, p, os.Args[2:])
	case "trigger":
		triggerJob(sched, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  etl run <full|price-crawl|reddit-collection>
  etl scheduler <start|status|jobs>
  etl trigger <price-crawl|reddit-collection>`)
}

func buildPipeline(cfg *config.Config, s store.Port) *pipeline.Pipeline {
	retryer := retry.New(retry.Config{
		MaxAttempts: cfg.Retry.MaxRetries,
		BaseDelay:   time.Duration(cfg.Retry.RetryBackoffSeconds) * time.Second,
	})
	if cooldown := retry.NewRedisCooldown(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB); cooldown != nil {
		retryer = retryer.WithCooldown(cooldown)
	} else if cfg.Redis.Host != "" {
		logger.Warn("redis configured but unreachable at startup, cooldown will be process-local", nil)
	}

	priceExtractor := priceext.New(priceext.Config{}, retryer)
	feedExtractor := pricefeed.New(pricefeed.Config{
		Subreddits:    cfg.Reddit.Subreddits,
		RateLimitWait: time.Duration(cfg.Reddit.RateLimitCooldownSecs) * time.Second,
	}, retryer)

	priceAnalyzer := price.New(s)
	sentAnalyzer := sentiment.New(s, 7)
	riskCalc := risk.New(s, risk.Config{Threshold: cfg.Risk.Threshold})

	p := pipeline.New(s, priceExtractor, feedExtractor, priceAnalyzer, sentAnalyzer, riskCalc)

	sink, err := archive.New(archive.Config{
		Region: cfg.Archive.Region, Bucket: cfg.Archive.Bucket,
		AccessKeyID: cfg.Archive.AccessKeyID, SecretAccessKey: cfg.Archive.SecretAccessKey,
	})
	if err != nil {
		logger.Warn("archive sink unavailable, run artifacts will not be archived", map[string]interface{}{"error": err.Error()})
	} else {
		p.WithArchive(sink)
	}

	return p
}

func buildScheduler(cfg *config.Config, p *pipeline.Pipeline) *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		PriceCrawlHour:    cfg.Schedule.PriceCrawlHour,
		PriceCrawlMinute:  cfg.Schedule.PriceCrawlMinute,
		RedditCrawlHour:   cfg.Schedule.RedditCrawlHour,
		RedditCrawlMinute: cfg.Schedule.RedditCrawlMinute,
	}, func(ctx context.Context) error {
		_, err := p.RunPriceOnly(ctx)
		return err
	}, func(ctx context.Context) error {
		_, err := p.RunSignalsOnly(ctx)
		return err
	})
}

func runOnce(p *pipeline.Pipeline, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stats *pipeline.Stats
	var err error
	switch args[0] {
	case "full":
		stats, err = p.RunFull(ctx)
	case "price-crawl":
		stats, err = p.RunPriceOnly(ctx)
	case "reddit-collection":
		stats, err = p.RunSignalsOnly(ctx)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal("pipeline run failed", err)
	}
	logger.Info("pipeline run completed", map[string]interface{}{
		"products_upserted": stats.ProductsUpserted,
		"prices_inserted":   stats.PricesInserted,
		"signals_inserted":  stats.SignalsInserted,
		"alerts_fired":      stats.AlertsFired,
		"errors":            len(stats.Errors),
		"duration":          stats.Duration.String(),
	})
	if len(stats.Errors) > 0 {
		os.Exit(2)
	}
}

func runScheduler(cfg *config.Config, sched *scheduler.Scheduler, p *pipeline.Pipeline, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet("scheduler", flag.ExitOnError)
	fs.Parse(args[1:])

	switch args[0] {
	case "start":
		startScheduler(cfg, sched, p)
	case "status":
		printSchedulerStatus(sched)
	case "jobs":
		printSchedulerJobs(sched)
	default:
		usage()
		os.Exit(1)
	}
}

// startScheduler runs as the foreground daemon: it fires jobs on their
// cron schedule and serves the introspection API until SIGINT/SIGTERM.
func startScheduler(cfg *config.Config, sched *scheduler.Scheduler, p *pipeline.Pipeline) {
	if err := sched.Start(); err != nil {
		logger.Fatal("failed to start scheduler", err)
	}

	handlers := api.NewHandlers(p, sched)
	router := api.NewRouter(handlers)

	srv := &http.Server{Addr: ":" + cfg.API.Port, Handler: router}
	go func() {
		logger.Info("api server listening", map[string]interface{}{"port": cfg.API.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", nil)
	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", err)
	}
}

// printSchedulerStatus reports whether each job is currently in flight
// and exits; it never calls sched.Start, so it never fires a job or
// blocks on a signal.
func printSchedulerStatus(sched *scheduler.Scheduler) {
	for id, running := range sched.Status() {
		fmt.Printf("%s\trunning=%v\n", id, running)
	}
}

// printSchedulerJobs lists the configured jobs and their cron schedule
// and exits.
func printSchedulerJobs(sched *scheduler.Scheduler) {
	for _, j := range sched.Jobs() {
		fmt.Printf("%s\t%s\n", j.ID, j.Spec)
	}
}

func triggerJob(sched *scheduler.Scheduler, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	if err := sched.Trigger(scheduler.JobID(args[0])); err != nil {
		logger.Fatal("trigger failed", err)
	}
}
