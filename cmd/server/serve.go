package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vedran77/textswap/internal/auth"
	"github.com/vedran77/textswap/internal/config"
	"github.com/vedran77/textswap/internal/database"
	"github.com/vedran77/textswap/internal/live"
	"github.com/vedran77/textswap/internal/notify"
	"github.com/vedran77/textswap/internal/repository"
	"github.com/vedran77/textswap/internal/repository/memory"
	postgresrepo "github.com/vedran77/textswap/internal/repository/postgres"
	"github.com/vedran77/textswap/internal/service"
	"github.com/vedran77/textswap/internal/transport/http/handlers"
	"github.com/vedran77/textswap/internal/transport/ws"
	"github.com/vedran77/textswap/pkg/logger"
	"github.com/vedran77/textswap/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP and WebSocket server",
		Action: serve,
	}
}

type repositories struct {
	users         repository.UserRepository
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	reviews       repository.ReviewRepository
}

func serve(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting server", zap.String("version", version), zap.String("store", cfg.Store.Driver))

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, "textswap", cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	checks := make(map[string]handlers.HealthCheck)

	// Repositories
	repos, closeStore, err := openStore(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	// Services
	directory, err := service.NewDirectoryService(repos.conversations, cfg.Cache.Size, log)
	if err != nil {
		return err
	}
	messages, err := service.NewMessageService(repos.messages, directory, cfg.Cache.Size, log)
	if err != nil {
		return err
	}
	users := service.NewUserService(repos.users)
	ratings := service.NewRatingService(repos.reviews, repos.users, cfg.Rating.MaxAttempts, log)

	// Live updates
	wsHub := ws.NewHub(log)
	go wsHub.Run(ctx)

	liveHub := live.NewHub(live.HubConfig{
		Source:        repos.messages,
		Conversations: directory,
		Names:         users,
		Bridge:        notify.Fanout{notify.NewLogBridge(log), ws.NewHubNotifier(wsHub)},
		MaxPending:    cfg.Live.MaxPending,
	}, log)
	defer liveHub.Close()

	broker, err := newBroker(cfg, log, checks)
	if err != nil {
		return err
	}
	if err := broker.Start(ctx, liveHub); err != nil {
		return fmt.Errorf("starting live broker: %w", err)
	}
	defer broker.Close()
	messages.SetPublisher(broker)

	router := handlers.NewRouter(handlers.RouterConfig{
		Verifier:     verifier,
		Users:        users,
		Directory:    directory,
		Messages:     messages,
		Ratings:      ratings,
		HealthChecks: checks,
		WebSocket: ws.ServeWS(ws.Config{
			Hub:      wsHub,
			Live:     liveHub,
			Access:   directory,
			Verifier: verifier,
		}, log),
		RateLimit:     cfg.RateLimit.Requests,
		RateLimitSpan: cfg.RateLimit.Window,
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger, checks map[string]handlers.HealthCheck) (*repositories, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to database")
		if err := database.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		checks["database"] = pool.Ping
		return &repositories{
			users:         postgresrepo.NewUserRepo(pool),
			messages:      postgresrepo.NewMessageRepo(pool),
			conversations: postgresrepo.NewConversationRepo(pool),
			reviews:       postgresrepo.NewReviewRepo(pool),
		}, pool.Close, nil

	default:
		store := memory.New()
		if cfg.Store.SeedFixtures {
			if err := store.SeedFixtures(); err != nil {
				return nil, nil, fmt.Errorf("seeding fixtures: %w", err)
			}
			log.Info("in-memory store seeded with demo data")
		}
		return &repositories{
			users:         store.Users(),
			messages:      store.Messages(),
			conversations: store.Conversations(),
			reviews:       store.Reviews(),
		}, func() {}, nil
	}
}

func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	if cfg.Auth.Mode == config.AuthFirebase {
		return auth.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredentialsFile)
	}
	return auth.NewJWTVerifier(cfg.Auth.JWTSecret), nil
}

func newBroker(cfg *config.Config, log *logger.Logger, checks map[string]handlers.HealthCheck) (live.Broker, error) {
	if cfg.Live.Broker != config.BrokerNATS {
		return live.NewLocalBroker(), nil
	}

	broker := live.NewNATSBroker(cfg.Live.NATSURL, log)
	checks["broker"] = func(context.Context) error {
		if !broker.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	}
	return broker, nil
}
