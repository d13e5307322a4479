package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/config"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/db"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/events"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/locks"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/logger"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/orchestrator"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/repository"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/rewards"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/server"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/service"
)

func main() {
	cfg := config.LoadConfig()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	gormDB, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}

	var orch orchestrator.Adapter
	switch cfg.Orchestrator {
	case "docker":
		orch, err = orchestrator.NewDockerAdapter()
	default:
		orch, err = orchestrator.NewKubernetesAdapter(cfg.KubeconfigPath, cfg.Namespace)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Orchestrator).Msg("orchestrator init failed")
	}

	// Single-replica deployments run on the in-process claim table; with a
	// redis URL configured the claim spans replicas.
	var lock locks.ProvisionLock = locks.NewKeyed()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		lock = locks.NewRedis(redis.NewClient(opts), cfg.OrchestratorTimeout+5*time.Second)
	}

	var publisher service.EventPublisher
	if cfg.KafkaBrokerURL != "" {
		producer := events.NewProducer(cfg.KafkaBrokerURL, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	}

	var granter rewards.Granter
	if cfg.RabbitMQURL != "" {
		rewardsPublisher, err := rewards.NewPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatal().Err(err).Msg("rabbitmq init failed")
		}
		defer rewardsPublisher.Close()
		granter = rewardsPublisher
	}

	workloadRepo := repository.NewWorkloadRepository(gormDB)
	sessionRepo := repository.NewSessionRepository(gormDB)
	spaceRepo := repository.NewSpaceRepository(gormDB)

	matchmaker := service.NewMatchmaker(workloadRepo, spaceRepo, orch, lock, publisher, service.ProvisionConfig{
		Image:             cfg.ServerImage(),
		Host:              cfg.ServerHost(),
		DefaultMaxPlayers: cfg.DefaultMaxPlayers,
		Timeout:           cfg.OrchestratorTimeout,
	})
	lifecycle := service.NewLifecycle(workloadRepo, spaceRepo, orch, publisher, granter, cfg.OrchestratorTimeout)
	sessions := service.NewSessionTracker(sessionRepo, publisher, granter)
	discovery := service.NewDiscovery(workloadRepo, spaceRepo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := service.NewReconciler(workloadRepo, sessionRepo, orch, cfg.ReconcileInterval, cfg.StoppingGracePeriod, cfg.OrchestratorTimeout)
	reconciler.Start(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.ServicePort,
		Handler: server.New(matchmaker, lifecycle, sessions, discovery).Router(),
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("gameserver service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
