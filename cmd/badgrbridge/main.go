package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/badgr-bridge/internal/adapter/cache"
	"github.com/smallbiznis/badgr-bridge/internal/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/config"
	"github.com/smallbiznis/badgr-bridge/internal/domain"
	httptransport "github.com/smallbiznis/badgr-bridge/internal/http"
	"github.com/smallbiznis/badgr-bridge/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/badgr-bridge/internal/http/middleware"
	"github.com/smallbiznis/badgr-bridge/internal/integration"
	apimiddleware "github.com/smallbiznis/badgr-bridge/internal/middleware"
	"github.com/smallbiznis/badgr-bridge/internal/repository"
	"github.com/smallbiznis/badgr-bridge/internal/server"
	"github.com/smallbiznis/badgr-bridge/internal/site"
	"github.com/smallbiznis/badgr-bridge/internal/telemetry"
	"github.com/smallbiznis/badgr-bridge/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newSiteRepository,
			newIntegrationRepository,
			newUserRepository,
			newRedisClient,
			newHTTPClient,
			newTokenEndpoint,
			newTokenStore,
			newStateStore,
			newClientFactory,
			newIntegrationService,
			newRateLimiter,
			newAdminMiddleware,
			site.NewResolver,
			newIntegrationHandler,
			newBadgeHandler,
			newAuthorizeHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
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

func newSiteRepository(pool *pgxpool.Pool) repository.SiteRepository {
	return repository.NewPostgresSiteRepo(pool)
}

func newIntegrationRepository(pool *pgxpool.Pool, node *snowflake.Node) repository.IntegrationRepository {
	return repository.NewPostgresIntegrationRepo(pool, node)
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
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

func newHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTPClientTimeout}
}

func newTokenEndpoint(client *http.Client, cfg config.Config, logger *zap.Logger) *token.Endpoint {
	return token.NewEndpoint(client, cfg.BadgrTokenURL, cfg.BadgrClientID, cfg.BadgrClientSecret, logger)
}

func newTokenStore(client redis.UniversalClient, endpoint *token.Endpoint, logger *zap.Logger) *token.Store {
	cache := cacheadapter.NewRedisTokenCache(client)
	locks := cacheadapter.NewRedisMutex(client, logger)
	return token.NewStore(cache, locks, endpoint, logger)
}

func newStateStore(client redis.UniversalClient) integration.StateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newClientFactory(client *http.Client, tokens *token.Store, logger *zap.Logger) *badgr.Factory {
	return badgr.NewFactory(client, tokens, logger)
}

func newIntegrationService(
	repo repository.IntegrationRepository,
	tokens *token.Store,
	factory *badgr.Factory,
	cfg config.Config,
	node *snowflake.Node,
	logger *zap.Logger,
) *integration.Service {
	probe := func(integ domain.Integration, baseURL string) integration.OrganizationLister {
		return factory.WithBaseURL(integ, baseURL)
	}
	return integration.NewService(repo, tokens, probe, cfg.BadgrBaseURLs, node, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newAdminMiddleware(cfg config.Config) *httpmiddleware.Admin {
	return &httpmiddleware.Admin{Secret: []byte(cfg.AdminTokenSecret), Issuer: cfg.AdminTokenIssuer}
}

func newIntegrationHandler(service *integration.Service, factory *badgr.Factory, logger *zap.Logger) *handler.IntegrationHandler {
	return handler.NewIntegrationHandler(service, factory, logger)
}

func newBadgeHandler(factory *badgr.Factory, users repository.UserRepository, logger *zap.Logger) *handler.BadgeHandler {
	return handler.NewBadgeHandler(factory, users, logger)
}

func newAuthorizeHandler(states integration.StateStore, endpoint *token.Endpoint, service *integration.Service, cfg config.Config, logger *zap.Logger) *handler.AuthorizeHandler {
	return handler.NewAuthorizeHandler(states, endpoint, service, cfg, logger)
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
