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

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/completion"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/dream"
	dreamrepo "github.com/ovaphlow/pitchfork/service-dream-go/internal/dream/repo"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-dream-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-dream-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-dream-go/pkg/utilities"
)

func main() {
	// best-effort: a missing .env falls back to the real environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-dream-go")

	if cfg.Token.Secret == "" {
		sugar.Error("TOKEN_SECRET is not set; every request will answer server_misconfigured")
	}
	if cfg.Completion.APIKey == "" {
		sugar.Warn("COMPLETION_API_KEY is not set; completion endpoints will answer server_misconfigured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init db
	sqlDB, err := database.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()
	if err := database.Migrate(ctx, sqlDB); err != nil {
		sugar.Fatalf("db migrate: %v", err)
	}
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	users, closeUsers, err := credentialStore(ctx, cfg.Redis)
	if err != nil {
		sugar.Fatalf("credential store: %v", err)
	}
	defer closeUsers()

	tokens := token.NewService(cfg.Token.Secret, cfg.Token.TTL)
	userSvc := user.NewUserService(users, nil, tokens, sugar)
	dreamSvc := dream.NewService(dreamrepo.NewDreamRepo(sqlxDB, sugar), utilities.NewIDGenerator(cfg.SnowflakeNode))
	client := completion.NewClient(completion.ClientConfig{
		URL:     cfg.Completion.URL,
		APIKey:  cfg.Completion.APIKey,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	})

	handler := router.New(router.Options{
		Logger:         sugar,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TokenSecretSet: cfg.Token.Secret != "",
		Resolver:       token.NewResolver(tokens, users, sugar),
		TrialGate:      user.NewTrialGate(users, sugar),
		RateLimit:      router.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, sugar),
		Metrics:        router.NewMetrics(client.Collectors()...),
		Users:          user.NewHandler(userSvc, sugar),
		Dreams:         dream.NewHandler(dreamSvc, sugar),
		Completion:     completion.NewHandler(completion.NewService(client, sugar), sugar),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := sqlDB.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// credentialStore returns the Redis-backed user store, or an in-memory one
// when no Redis address is configured.
func credentialStore(ctx context.Context, cfg config.Redis) (user.Store, func(), error) {
	if cfg.Addr == "" {
		return userrepo.NewMemoryUserRepo(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return userrepo.NewUserRepo(rdb), func() { _ = rdb.Close() }, nil
}
