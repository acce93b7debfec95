package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"campusqr/internal/attendance"
	"campusqr/internal/config"
	"campusqr/internal/queue"
	"campusqr/internal/store"
)

// Worker consumes scan events and maintains per-student daily tallies.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusqr:scans")
	}

	repo := attendance.NewRepository(db.Client)

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Info("worker started, waiting for scan events...")
	for evt := range events {
		if evt.RecordID == "" || evt.StudentID == "" {
			continue
		}
		if err := repo.BumpDailyTally(ctx, evt.RecordID, evt.StudentID, evt.ScannedAt); err != nil {
			log.WithError(err).Errorf("tally update failed for record %s", evt.RecordID)
			continue
		}
		log.Debugf("tallied scan %s for student %s", evt.RecordID, evt.StudentID)
	}

	log.Info("worker stopped")
}
