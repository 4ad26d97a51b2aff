package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	redisclient "github.com/yungbote/pathpilot/internal/clients/redis"
	"github.com/yungbote/pathpilot/internal/data/graph"
	"github.com/yungbote/pathpilot/internal/db"
	"github.com/yungbote/pathpilot/internal/engine"
	"github.com/yungbote/pathpilot/internal/handlers"
	"github.com/yungbote/pathpilot/internal/logger"
	"github.com/yungbote/pathpilot/internal/observability"
	"github.com/yungbote/pathpilot/internal/platform/neo4jdb"
	"github.com/yungbote/pathpilot/internal/repos"
	"github.com/yungbote/pathpilot/internal/server"
	"github.com/yungbote/pathpilot/internal/types"
	"github.com/yungbote/pathpilot/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "pathpilot",
		Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis (lease + event bus)
	rdb, err := redisclient.NewClient(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}
	lease := redisclient.NewLearnerLease(rdb, log)
	bus := redisclient.NewEventBus(rdb, log)

	// Neo4j (concept graph)
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("Neo4j init failed", "error", err)
	}
	if neoClient == nil {
		log.Fatal("Neo4j is required (set NEO4J_URI)")
	}
	defer neoClient.Close(context.Background())
	conceptGraph := graph.NewConceptGraph(neoClient, log)

	// Repos
	log.Info("Setting up repos...")
	stateRepo := repos.NewLearnerStateRepo(thePG, log)
	armRepo := repos.NewArmRepo(thePG, log)
	eventRepo := repos.NewProcessedEventRepo(thePG, log)

	// Engine
	cfg := engine.LoadConfig(log)

	var oracle engine.Oracle
	if oracleURL := utils.GetEnv("ORACLE_URL", "", log); oracleURL != "" {
		oracle = engine.NewHTTPOracle(oracleURL, cfg.Search.OracleTimeout)
	} else {
		weights, werr := engine.LoadSimulationWeights(utils.GetEnv("ORACLE_WEIGHTS_PATH", "", log))
		if werr != nil {
			log.Warn("oracle weights load failed, using defaults", "error", werr)
		}
		oracle = engine.NewSimulationOracle(weights)
	}

	bandit := engine.NewBanditEngine(cfg.Bandit, armRepo, log)
	planner := engine.NewTreeSearchPlanner(cfg.Search, oracle, log)
	coordinator := engine.NewFeedbackCoordinator(cfg.Feedback, stateRepo, eventRepo, bandit, lease, log)
	planning := engine.NewPlanningService(cfg, conceptGraph, stateRepo, planner, bandit, bus, log)

	// HTTP surface
	router := server.NewRouter(server.RouterConfig{
		ServiceName:    "pathpilot",
		PlanHandler:    handlers.NewPlanHandler(log, planning),
		OutcomeHandler: handlers.NewOutcomeHandler(log, coordinator),
		LearnerHandler: handlers.NewLearnerHandler(log, stateRepo),
	})
	addr := ":" + utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{Addr: addr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return bus.StartOutcomeConsumer(gctx, func(ev types.FeedbackEvent) {
			evCtx, cancel := context.WithTimeout(gctx, 30*time.Second)
			defer cancel()
			if err := coordinator.OnOutcome(evCtx, ev); err != nil {
				log.Error("outcome event failed", "event_id", ev.EventID, "error", err)
			}
		})
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownOtel != nil {
			_ = shutdownOtel(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("service exited", "error", err)
	}
	log.Info("shutdown complete")
}
