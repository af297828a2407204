package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"cve-crawler/internal/config"
	"cve-crawler/internal/crawler"
	"cve-crawler/internal/logger"
	"cve-crawler/internal/storage"
	"cve-crawler/internal/stream"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires and executes one crawl and returns the process exit status.
func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	logr, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// No crawling without a working store.
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logr.Errorf("Couldn't connect to database: %v", err)
		return 1
	}
	defer store.Close(context.Background())

	writer := storage.NewBatchWriter(store, cfg.Writer, logr)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := stream.NewRecordPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		writer.WithPublisher(publisher)
	}

	scraper := crawler.NewScraper(cfg.Crawl.RequestTimeout, cfg.Crawl.RequestsPerSecond)
	coordinator := crawler.NewCoordinator(cfg.Crawl, scraper, writer, logr)

	if cfg.Redis.Address != "" {
		cache, err := storage.NewRedisCache(ctx, cfg.Redis.Address, cfg.Redis.TTL)
		if err != nil {
			logr.WithError(err).Warn("redis unavailable, crawling without cache")
		} else {
			defer cache.Close()
			coordinator.WithCache(cache)
		}
	}

	summary, runErr := coordinator.Run(ctx)

	logr.WithFields(logrus.Fields{
		"pages":   summary.Pages,
		"entries": summary.Entries,
		"records": summary.Records,
		"errors":  len(summary.Failures),
	}).Info("crawl finished")

	if len(summary.Failures) > 0 {
		fmt.Fprintf(os.Stdout, "%d entries could not be processed:\n", len(summary.Failures))
		for _, f := range summary.Failures {
			fmt.Fprintf(os.Stdout, "  page %d  %s  (%s)\n", f.Page, f.URL, f.Reason)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logr.Warn("crawl interrupted")
		} else {
			logr.WithError(runErr).Error("crawl ended with unsaved records")
		}
		return 1
	}
	return 0
}
