package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"timeclock/internal/archive"
	"timeclock/internal/attendance"
	"timeclock/internal/config"
	"timeclock/internal/notify"
	"timeclock/internal/queue"
	"timeclock/internal/store"
)

// Worker announces clock events from the redis queue and archives the
// previous day's records to S3.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loc := cfg.Location()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var wg sync.WaitGroup

	if cfg.QueueBackend == "redis" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			log.Printf("WARNING: redis at %s not reachable, consumer will retry", cfg.RedisAddr)
		}
		q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		messages, err := q.Consume(ctx)
		if err != nil {
			log.Fatalf("queue consume init failed: %v", err)
		}

		var n notify.Notifier = notify.Log{Loc: loc}
		if cfg.SlackToken != "" && cfg.SlackChannel != "" {
			n = notify.NewSlack(cfg.SlackToken, cfg.SlackChannel, loc)
			log.Printf("Slack notifications enabled for %s", cfg.SlackChannel)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			notify.Run(ctx, messages, n)
		}()
		log.Printf("notifier consuming %s", cfg.QueueKey)
	} else {
		log.Printf("queue backend %q is served by the api process, notifier disabled", cfg.QueueBackend)
	}

	if cfg.ArchiveBucket != "" {
		st, err := store.Open(ctx, store.Options{
			Backend:     cfg.StoreBackend,
			DataFile:    cfg.DataFile,
			DatabaseURL: cfg.DatabaseURL,
			SQLitePath:  cfg.SQLitePath,
		})
		if err != nil {
			log.Fatalf("store open failed: %v", err)
		}
		defer st.Close()

		up, err := archive.NewS3(ctx, cfg.ArchiveBucket)
		if err != nil {
			log.Fatalf("s3 client init failed: %v", err)
		}
		a := archive.New(attendance.NewLedger(st), up, cfg.ArchivePrefix, loc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Run(ctx, cfg.ArchiveHour)
		}()
		log.Printf("archiving daily to s3://%s/%s at %02d:00", cfg.ArchiveBucket, cfg.ArchivePrefix, cfg.ArchiveHour)
	}

	log.Println("worker started")
	<-ctx.Done()
	wg.Wait()
	log.Println("worker stopped")
}
