// Command server runs the OAuth 2.0 authorization server over the configured
// storage backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	vauth "go.velum.dev/vauth"
	echoapi "go.velum.dev/vauth/api/echo"
	"go.velum.dev/vauth/cache"
	"go.velum.dev/vauth/client"
	"go.velum.dev/vauth/config"
	"go.velum.dev/vauth/domain"
	"go.velum.dev/vauth/internal/memstore"
	applog "go.velum.dev/vauth/log"
	"go.velum.dev/vauth/mongodb"
	"go.velum.dev/vauth/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := applog.NewZerologAdapter(level, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ServerConfig, logger applog.Logger) error {
	tp, err := tracing.InitTracerProvider(ctx, "vauth")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "failed to shut down tracer provider", map[string]any{"error": err.Error()})
		}
	}()

	var (
		codeRepo   domain.AuthorizationCodeRepository
		tokenRepo  domain.TokenRepository
		deviceRepo domain.DeviceAuthorizationRepository
		clients    client.ClientStore
	)

	switch cfg.Storage {
	case "mongo":
		mongoClient, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		defer func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn(ctx, "failed to disconnect mongodb", map[string]any{"error": err.Error()})
			}
		}()

		codeRepo = mongodb.NewAuthCodeRepository(db)
		tokenRepo = mongodb.NewTokenRepository(db)
		deviceRepo = mongodb.NewDeviceAuthRepository(db)
		clients = mongodb.NewClientRepository(db)

	default:
		codeRepo = memstore.NewAuthCodeStore()
		tokenRepo = memstore.NewTokenStore()
		deviceRepo = memstore.NewDeviceAuthStore()
		clients = client.NewMemoryStore()
	}

	accessTokenTTL := time.Duration(cfg.AccessTokenTTLMin) * time.Minute

	var (
		tokenCache cache.TokenStore
		parStore   domain.PARRequestStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		tokenCache = cache.NewRedisTokenStore(redisClient, cfg.RedisPrefix, accessTokenTTL)
		parStore = cache.NewRedisPARStore(redisClient, cfg.RedisPrefix)
	} else {
		tokenCache = cache.NewMemoryTokenStore(accessTokenTTL)
		parStore = cache.NewMemoryPARStore()
	}

	extensions := vauth.NewExtensionManager(logger)

	codes := vauth.NewCodeService(codeRepo, time.Duration(cfg.AuthCodeTTLMin)*time.Minute, logger)
	tokens := vauth.NewTokenService(tokenRepo, tokenCache, logger)
	devices := vauth.NewDeviceCodeService(deviceRepo, time.Duration(cfg.DeviceCodeTTLMin)*time.Minute, cfg.DevicePollIntervalSec, logger)
	par := vauth.NewPARService(parStore, time.Duration(cfg.PARRequestTTLSec)*time.Second, cfg.PARMaxRequestBytes, logger)

	authorize := vauth.NewAuthorizeService(codes, par, clients, extensions, logger)
	issuer, err := vauth.NewIssuerIdentification(cfg.Issuer)
	if err != nil {
		return err
	}
	authorize.AddResponsePostProcessor(issuer)

	grants := vauth.NewGrantService(clients, codes, tokens, devices, extensions, accessTokenTTL, cfg.VerificationURI, logger)

	sweeper := vauth.NewSweeper(codeRepo, tokenRepo, deviceRepo, par, time.Duration(cfg.SweepIntervalMin)*time.Minute, logger)
	go sweeper.Run(ctx)

	metadata := vauth.NewServerMetadata(issuer.Issuer(), nil, extensions)
	api := echoapi.NewOAuth2API(authorize, grants, devices, par, extensions, metadata, int64(cfg.PARMaxRequestBytes), logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	api.RegisterRoutes(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "graceful shutdown failed", map[string]any{"error": err.Error()})
		}
	}()

	logger.Info(ctx, "starting authorization server", map[string]any{
		"port":    cfg.HTTPPort,
		"issuer":  issuer.Issuer(),
		"storage": cfg.Storage,
	})

	if err := e.Start(":" + cfg.HTTPPort); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
