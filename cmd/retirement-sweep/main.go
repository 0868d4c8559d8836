package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
	"bitbucket.org/mmdatafocus/petroeval_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// retirement-sweep hard-deletes calculation records whose delete_at has
// elapsed. Intended to run on a schedule (cron / Cloud Scheduler job).
//
// Dry-run (default): show how many records are due
//   go run ./cmd/retirement-sweep -dry-run=true
//
// Execute:
//   go run ./cmd/retirement-sweep -dry-run=false
func main() {
	dryRun := flag.Bool("dry-run", true, "List only (no deletes)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx := context.Background()
	store := workflow.NewGormStore(db)
	binding := workflow.NewBindingService(store, logger)

	if *dryRun {
		expired, err := store.FindExpiredCalculations(ctx, time.Now().UTC())
		if err != nil {
			fmt.Fprintf(os.Stderr, "sweep query failed: %v\n", err)
			os.Exit(1)
		}
		logger.WithFields(logrus.Fields{
			"field":   "retirement-sweep",
			"expired": len(expired),
		}).Info("dry run: records due for deletion")
		for _, calc := range expired {
			fmt.Printf("calculation id=%d case_id=%s delete_at=%s\n", calc.ID, calc.CaseId, calc.DeleteAt)
		}
		return
	}

	config.ConnectRedisWithRetry()
	lock, err := utils.ObtainSweepLock(ctx, 5*time.Minute)
	if err == redislock.ErrNotObtained {
		logger.WithFields(logrus.Fields{"field": "retirement-sweep"}).Info("another sweeper holds the lock; exiting")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep lock failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	removed, err := binding.CleanupSweep(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("removed %d expired calculation records\n", removed)
}
