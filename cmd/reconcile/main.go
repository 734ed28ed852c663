package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/cache/redis"
	"github.com/vncsmyrnk/awardpoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/awardpoll/internal/config"
	"github.com/vncsmyrnk/awardpoll/internal/core/services"
	"github.com/vncsmyrnk/awardpoll/internal/logger"
	"github.com/vncsmyrnk/awardpoll/internal/metrics"
)

// reconcile compares the cached tally of every active contest with the
// durable store and rebuilds the ones that diverged.
func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"), false)

	if !config.LoadDotEnv() {
		log.Info().Msg("no .env file found")
	}

	pg := config.LoadPostgres()
	rc := config.LoadRedis()

	var (
		force     bool
		contestID string
		timeout   time.Duration
	)
	flag.StringVar(&pg.Host, "db-host", pg.Host, "Database host")
	flag.StringVar(&pg.Port, "db-port", pg.Port, "Database port")
	flag.StringVar(&pg.User, "db-user", pg.User, "Database user")
	flag.StringVar(&pg.Password, "db-pass", pg.Password, "Database password")
	flag.StringVar(&pg.DB, "db-name", pg.DB, "Database name")
	flag.StringVar(&rc.Addr, "redis-addr", rc.Addr, "Redis address")
	flag.BoolVar(&force, "force", false, "Rebuild every cached tally even when it matches")
	flag.StringVar(&contestID, "contest", "", "Reconcile a single contest")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Job timeout")
	flag.Parse()

	db, err := sql.Open("postgres", pg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	// Use a timeout for the job execution to prevent it from hanging indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to reach database")
	}

	rdb := redis.NewClient(rc)
	defer rdb.Close()

	reconciler := services.NewReconciler(
		postgres.NewContestRepository(db),
		postgres.NewTallyRepository(db),
		redis.NewTallyCache(rdb, rc.TallyTTL),
		*log,
		metrics.New(),
	)

	if contestID != "" {
		id, err := uuid.Parse(contestID)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid contest id")
		}
		repaired, err := reconciler.ReconcileContest(ctx, id, force)
		if err != nil {
			log.Fatal().Err(err).Str("contest_id", contestID).Msg("reconciliation failed")
		}
		log.Info().Str("contest_id", contestID).Bool("repaired", repaired).Msg("reconciliation completed")
		return
	}

	log.Info().Bool("force", force).Msg("starting tally reconciliation...")

	report, err := reconciler.ReconcileAll(ctx, force)
	if err != nil {
		// A report comes back with the error when only some contests failed
		if report == nil {
			log.Fatal().Err(err).Msg("reconciliation failed")
		}
		log.Error().Err(err).Int("failed", report.Failed).Int("checked", report.Checked).Msg("reconciliation finished with failures")
		os.Exit(1)
	}
	log.Info().Int("checked", report.Checked).Int("repaired", report.Repaired).Dur("duration", report.Duration).Msg("reconciliation completed successfully")
}
