// Command server wires the batch registry and transfer engine into one HTTP
// process. Infrastructure is optional by configuration: without Kafka,
// Postgres, or Redis the server runs entirely in memory for development.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	httpapi "pharmatrace/internal/http"
	jwttoken "pharmatrace/internal/jwt_token"
	"pharmatrace/internal/ledger"
	ledgermetrics "pharmatrace/internal/ledger/metrics"
	"pharmatrace/internal/platform/config"
	"pharmatrace/internal/platform/httpserver"
	"pharmatrace/internal/platform/logger"
	platformmetrics "pharmatrace/internal/platform/metrics"
	"pharmatrace/internal/platform/redis"
	registryhandler "pharmatrace/internal/registry/handler"
	registrymetrics "pharmatrace/internal/registry/metrics"
	"pharmatrace/internal/registry/minter"
	registryservice "pharmatrace/internal/registry/service"
	registrystore "pharmatrace/internal/registry/store"
	batchstore "pharmatrace/internal/registry/store/batch"
	orgstore "pharmatrace/internal/registry/store/org"
	unitstore "pharmatrace/internal/registry/store/unit"
	"pharmatrace/internal/registry/verifier"
	transferhandler "pharmatrace/internal/transfer/handler"
	transfermetrics "pharmatrace/internal/transfer/metrics"
	transferservice "pharmatrace/internal/transfer/service"
	transferstore "pharmatrace/internal/transfer/store"
)

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := make(map[string]httpapi.HealthChecker)

	// Ledger: Kafka when brokers are configured, in-process otherwise.
	var ldg ledger.Ledger
	if len(cfg.KafkaBrokers) > 0 {
		kafkaLedger, err := ledger.NewKafka(ctx, cfg.KafkaBrokers, log, ledger.WithMetrics(ledgermetrics.New()))
		if err != nil {
			log.Error("ledger connection failed", "brokers", cfg.KafkaBrokers, "error", err)
			os.Exit(1)
		}
		defer kafkaLedger.Close()
		ldg = kafkaLedger
	} else {
		log.Warn("no KAFKA_BROKERS configured, using in-memory ledger")
		ldg = ledger.NewInMemory()
	}

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		batches registryservice.BatchStore
		units   registryservice.UnitStore
		orgs    registryservice.OrgStore

		verifierBatches verifier.BatchStore
		verifierUnits   verifier.UnitStore

		transfers transferservice.TransferStore
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}

		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres pool failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pgBatches := batchstore.NewPostgres(db)
		pgUnits := unitstore.NewPostgres(db)
		batches, units, orgs = pgBatches, pgUnits, orgstore.NewPostgres(db)
		verifierBatches, verifierUnits = pgBatches, pgUnits
		transfers = transferstore.NewPostgres(pool)
		health["postgres"] = dbHealth{db}
	} else {
		log.Warn("no POSTGRES_URL configured, using in-memory stores")
		memBatches := batchstore.NewInMemory()
		memUnits := unitstore.NewInMemory()
		memOrgs := orgstore.NewInMemory()
		batches, units, orgs = memBatches, memUnits, memOrgs
		verifierBatches, verifierUnits = memBatches, memUnits
		transfers = transferstore.NewInMemory()

		seeded := registrystore.SeedDevOrganizations(memOrgs)
		for orgType, org := range seeded {
			log.Info("seeded dev organization", "type", orgType, "org_id", org.ID)
		}
	}

	secret := []byte(cfg.SigningSecret)
	mint, err := minter.New(ldg, secret, cfg.VerifyBaseURL)
	if err != nil {
		log.Error("minter construction failed", "error", err)
		os.Exit(1)
	}

	// One metrics instance per module; promauto registration is global.
	registryMetrics := registrymetrics.New()

	verifierOpts := []verifier.Option{verifier.WithMetrics(registryMetrics)}
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		health["redis"] = redisClient
		verifierOpts = append(verifierOpts,
			verifier.WithCache(verifier.NewRecordCache(redisClient.Client, config.VerificationCacheTTL, log)))
	}

	registrySvc := registryservice.NewRegistryService(batches, units, orgs, mint, ldg, log,
		registryservice.WithMetrics(registryMetrics))
	verify := verifier.New(verifierBatches, verifierUnits, secret, log, verifierOpts...)
	transferSvc := transferservice.NewTransferService(transfers, batches, orgs, units, log,
		transferservice.WithMetrics(transfermetrics.New()))

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "pharmatrace", "pharmatrace-api")

	router := httpapi.NewRouter(log, platformmetrics.New(), health,
		registryhandler.New(registrySvc, verify, log, jwtService, cfg.AdminTokenHash),
		transferhandler.New(transferSvc, log, jwtService),
	)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting pharmatrace server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// dbHealth adapts *sql.DB to the router's health check interface.
type dbHealth struct {
	db *sql.DB
}

func (h dbHealth) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
