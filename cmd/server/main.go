package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guideboard/internal/api"
	"guideboard/internal/app/service"
	"guideboard/internal/app/worker"
	"guideboard/internal/common/security"
	"guideboard/internal/domain/repository"
	"guideboard/internal/platform/config"
	"guideboard/internal/platform/database"
	"guideboard/internal/platform/logger"
	"guideboard/internal/platform/queue"

	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	config.Load()
	cfg := config.AppConfig

	logg, err := logger.New(cfg.LogLevel, cfg.LogFormat, "guideboard")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize JWT
	security.InitJWT()

	// 3. Initialize Database
	if err := database.Connect(ctx); err != nil {
		logg.Fatal("database connect failed", zap.Error(err))
	}
	defer database.Close()
	logg.Info("database connected", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	if cfg.RunMigrations {
		if err := database.Migrate(ctx, database.DB); err != nil {
			logg.Fatal("migrations failed", zap.Error(err))
		}
		logg.Info("migrations applied")
	}

	// 4. Initialize Redis
	if err := queue.ConnectRedis(ctx); err != nil {
		logg.Fatal("redis connect failed", zap.Error(err))
	}
	defer queue.CloseRedis()
	logg.Info("redis connected", zap.String("addr", cfg.RedisAddr))

	// 5. Repositories and the change feed
	repos := repository.NewPostgresManager()
	bus := queue.NewEventBus(queue.RDB, cfg.JobEventsChannel)
	logg.Info("job events channel", zap.String("channel", bus.Channel()))

	relay := worker.NewFeedRelay(bus, logg)
	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()
	go relay.Start(relayCtx)

	// 6. Services
	jobService := service.NewJobService(database.DB, repos, bus, cfg.ArbiterLockTimeout, logg)
	profileService := service.NewProfileService(repos.Profiles(database.DB))
	authService := service.NewAuthService(database.DB, repos, cfg.IsAdminEmail, logg)

	// 7. Router & HTTP Server
	router := api.NewRouter(api.Deps{
		Auth:          authService,
		Profiles:      profileService,
		Principals:    profileService,
		Jobs:          jobService,
		Feed:          relay,
		FeedKeepalive: cfg.FeedKeepalive,
		Logger:        logg,
	})

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: the feed holds its response open. Request
		// handlers are bounded by the router's timeout middleware.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logg.Info("server starting", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("could not listen", zap.String("port", cfg.APIPort), zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	<-ctx.Done()
	logg.Info("shutting down server")

	// Closing the relay ends every feed stream so Shutdown does not wait on them.
	relayCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("server shutdown failed", zap.Error(err))
		return
	}
	logg.Info("server stopped gracefully")
}
