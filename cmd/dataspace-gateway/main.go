// Command dataspace-gateway exposes discovery lookups and consumer-side data
// transfers of a Tractus-X connector over a small HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/eclipse-tractusx/tractusx-sdk-go/internal/config"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/auth"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/client"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/connection"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/connector"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/discovery"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/samm"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := getEnv("CONFIG_FILE", "config.yaml")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}
	if port := os.Getenv("PORT"); port != "" {
		if cfg.Server.Port, err = strconv.Atoi(port); err != nil {
			log.Fatal().Err(err).Msg("Invalid PORT")
		}
	}

	logger := logging.Setup(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := newGateway(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize gateway")
	}
	defer gw.Close()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      gw.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", server.Addr).
		Str("management_url", cfg.Connector.ManagementURL).
		Str("connections_backend", cfg.Connections.Backend).
		Bool("discovery", gw.finder != nil).
		Msg("Starting dataspace gateway")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Gateway stopped")
}

// newGateway wires the SDK services described by cfg.
func newGateway(ctx context.Context, cfg *config.Config) (*gateway, error) {
	gw := &gateway{
		translator: samm.NewTranslator(cfg.Verbose),
		logger:     logging.NewLogger(logging.ComponentGateway),
	}

	managementCfg := client.DefaultConfig("edc-management", cfg.Connector.ManagementURL)
	if cfg.Connector.APIKey != "" {
		managementCfg.Headers = map[string]string{"X-Api-Key": cfg.Connector.APIKey}
	}
	management, err := client.New(managementCfg)
	if err != nil {
		return nil, fmt.Errorf("create management client: %w", err)
	}
	gw.management = management

	var connections connection.Manager
	switch cfg.Connections.Backend {
	case config.BackendRedis:
		gw.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Connections.Redis.Address,
			Password: cfg.Connections.Redis.Password,
			DB:       cfg.Connections.Redis.DB,
		})
		if err := gw.redis.Ping(ctx).Err(); err != nil {
			gw.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Connections.Redis.Address, err)
		}
		connections = connection.NewRedisManager(gw.redis, cfg.Connections.Redis.Hash, connection.DefaultOptions())
	default:
		connections = connection.NewMemoryManager(connection.DefaultOptions())
	}

	gw.consumer, err = connector.NewConsumerService(management, connections, connector.ConsumerConfig{
		Protocol:           cfg.Connector.Protocol,
		DefaultPolicies:    cfg.Connector.DefaultPolicies,
		PollInterval:       cfg.Connector.PollInterval,
		NegotiationTimeout: cfg.Connector.NegotiationTimeout,
	})
	if err != nil {
		gw.Close()
		return nil, err
	}

	if cfg.Discovery.FinderURL != "" {
		manager, err := auth.NewManager(auth.Config{
			AuthURL:      cfg.Auth.URL,
			Realm:        cfg.Auth.Realm,
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
		})
		if err != nil {
			gw.Close()
			return nil, err
		}
		if err := manager.Connect(ctx); err != nil {
			gw.Close()
			return nil, err
		}

		finderCfg := client.DefaultConfig("discovery-finder", cfg.Discovery.FinderURL)
		finderCfg.Auth = manager
		finderClient, err := client.New(finderCfg)
		if err != nil {
			gw.Close()
			return nil, fmt.Errorf("create finder client: %w", err)
		}

		gw.finder = discovery.NewFinderService(finderClient, discovery.FinderKeys{})
		gw.cache = discovery.NewURLCache(cfg.Discovery.CacheTimeout, cfg.Verbose)
		gw.connectors = discovery.NewConnectorDiscoveryService(gw.finder, gw.cache, discovery.ConnectorDiscoveryConfig{
			DiscoveryKey: cfg.Discovery.ConnectorKey,
		})
	}

	return gw, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
