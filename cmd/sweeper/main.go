package main

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"hostel_booking/internal/adapters/observability"
	"hostel_booking/internal/shared"
	mysqlrepo "hostel_booking/internal/storage/mysql"
)

// Sweeper cancels pending bookings whose hold TTL has expired, freeing their
// date ranges. Meant to run from cron; one pass per invocation.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Dur("hold_ttl", cfg.HoldTTL).
		Int("batch", cfg.SweepBatch).
		Int("workers", cfg.SweepWorkers).
		Msg("sweeper starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}

	repo := mysqlrepo.New(db)

	cutoff := time.Now().Add(-cfg.HoldTTL)
	ids, err := repo.ListExpiredPending(ctx, cutoff, cfg.SweepBatch)
	if err != nil {
		log.Fatal().Err(err).Msg("listing expired pending bookings failed")
	}
	if len(ids) == 0 {
		log.Info().Msg("nothing to sweep")
		return
	}

	// Throttle cancellations so the sweep never competes with live booking
	// traffic for row locks.
	rl := rate.NewLimiter(rate.Limit(cfg.SweepRate), cfg.SweepRate)
	sem := semaphore.NewWeighted(int64(cfg.SweepWorkers))
	var wg sync.WaitGroup

	var swept, failed int64
	var mu sync.Mutex

	for _, id := range ids {
		if err := rl.Wait(ctx); err != nil {
			log.Fatal().Err(err).Msg("rate limiter wait failed")
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(bookingID int64) {
			defer wg.Done()
			defer sem.Release(1)

			if err := repo.CancelBooking(ctx, bookingID, nil); err != nil {
				log.Warn().Int64("id", bookingID).Err(err).Msg("sweep cancel failed")
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			swept++
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	log.Info().Int64("swept", swept).Int64("failed", failed).Msg("sweep completed")
}
