package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/metrics-cz/connect-auth/internal/adapter/cache"
	oauthadapter "github.com/metrics-cz/connect-auth/internal/adapter/oauth"
	"github.com/metrics-cz/connect-auth/internal/auth"
	"github.com/metrics-cz/connect-auth/internal/bootstrap"
	"github.com/metrics-cz/connect-auth/internal/company"
	"github.com/metrics-cz/connect-auth/internal/config"
	"github.com/metrics-cz/connect-auth/internal/crypto"
	httptransport "github.com/metrics-cz/connect-auth/internal/http"
	"github.com/metrics-cz/connect-auth/internal/http/handler"
	"github.com/metrics-cz/connect-auth/internal/http/middleware"
	"github.com/metrics-cz/connect-auth/internal/repository"
	"github.com/metrics-cz/connect-auth/internal/server"
	"github.com/metrics-cz/connect-auth/internal/service"
	"github.com/metrics-cz/connect-auth/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newSecretRepository,
			newCompanyRepository,
			newRedisClient,
			newConsentStateStore,
			newVault,
			newProviderClient,
			newRateLimiter,
			company.NewResolver,
			auth.NewSessionVerifier,
			service.NewTokenService,
			service.NewConnectService,
			service.NewBridge,
			handler.NewConnectionHandler,
			newSessionMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.VerifyStartup, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newSecretRepository(pool *pgxpool.Pool, node *snowflake.Node) repository.SecretRepository {
	return repository.NewPostgresSecretRepo(pool, node)
}

func newCompanyRepository(pool *pgxpool.Pool) repository.CompanyRepository {
	return repository.NewPostgresCompanyRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newConsentStateStore(client redis.UniversalClient) repository.ConsentStateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newVault(cfg config.Config) (*crypto.Vault, error) {
	return crypto.NewVault(cfg.EncryptionSecret)
}

func newProviderClient(cfg config.Config) oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil, cfg.ProviderTimeout)
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newSessionMiddleware(verifier *auth.SessionVerifier) *middleware.Session {
	return &middleware.Session{Verifier: verifier}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
