// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/meridianhq/tenancy-service/internal/config"
	"github.com/meridianhq/tenancy-service/internal/db"
	"github.com/meridianhq/tenancy-service/internal/events"
	"github.com/meridianhq/tenancy-service/internal/lifecycle"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring/prometheus"
	"github.com/meridianhq/tenancy-service/internal/storage"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	tenantmigrations "github.com/meridianhq/tenancy-service/migrations/tenant"
	"github.com/meridianhq/tenancy-service/pkg/resolver"
	"github.com/meridianhq/tenancy-service/pkg/tenant"
	"github.com/meridianhq/tenancy-service/pkg/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the web server",
	Long:  `Launch the web application, list of environment variables is available in the readme`,
	Run: func(cmd *cobra.Command, args []string) {
		main()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	specs := new(config.EnvSpec)
	if err := envconfig.Process("", specs); err != nil {
		panic(fmt.Errorf("issues with environment sourcing: %s", err))
	}

	logger := logging.NewLogger(specs.LogLevel)
	logger.Debugf("env vars: %v", specs)
	defer logger.Sync()

	monitor := prometheus.NewMonitor("tenancy-service", logger)
	tracer := tracing.NewTracer(tracing.NewConfig(specs.TracingEnabled, specs.OtelGRPCEndpoint, specs.OtelHTTPEndpoint, logger))

	dbConfig := db.Config{
		DSN:             specs.DSN,
		MaxConns:        specs.DBMaxConns,
		MinConns:        specs.DBMinConns,
		MaxConnLifetime: specs.DBMaxConnLifetime,
		MaxConnIdleTime: specs.DBMaxConnIdleTime,
		TracingEnabled:  specs.TracingEnabled,
	}
	dbClient, err := db.NewDBClient(dbConfig, tracer, monitor, logger)
	if err != nil {
		return fmt.Errorf("failed to create database client: %v", err)
	}
	defer dbClient.Close()
	s := storage.NewStorage(dbClient, tracer, monitor, logger)

	naming := db.SwitcherConfig{
		Capability: db.CapabilityReconnect,
		Naming:     db.NamingStrategy(specs.TenantDBNamingStrategy),
		Prefix:     specs.TenantDBPrefix,
		Separator:  specs.TenantDBSeparator,
	}

	lifecycleManager := lifecycle.NewManager(
		lifecycle.NewEngine(dbClient, tracer, logger),
		lifecycle.NewGooseMigrator(specs.DSN, tenantmigrations.EmbedMigrations, tracer, logger),
		lifecycle.NewSQLSeeder(specs.DSN, tenantmigrations.EmbedSeeds, tracer, logger),
		naming,
		lifecycle.Config{
			AutoMigrate: specs.TenantAutoMigrate,
			AutoSeed:    specs.TenantAutoSeed,
		},
		tracer,
		monitor,
		logger,
	)

	var redisClient redis.UniversalClient
	if specs.RedisURL != "" {
		opts, err := redis.ParseURL(specs.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	tracker := events.NewTracker(s, tracer, logger)

	var enqueuer events.EnqueuerInterface
	if redisClient != nil {
		enqueuer = events.NewRedisEnqueuer(redisClient, specs.TenantCachePrefix+":jobs", tracer, logger)
		logger.Info("Dispatching lifecycle jobs to redis")
	} else {
		enqueuer = events.NewLogEnqueuer(logger)
		logger.Info("No redis configured, lifecycle runs synchronously")
	}
	dispatcher := events.NewDispatcher(tracker, enqueuer, nil, tracer, logger)

	var cache resolver.CacheInterface
	if specs.TenantCacheEnabled {
		if redisClient != nil {
			cache = resolver.NewRedisCache(redisClient, specs.TenantCachePrefix+":resolver:", specs.TenantCacheTTL, logger)
		} else {
			cache = resolver.NewMemoryCache(specs.TenantCacheTTL)
		}
	}

	requestResolver := resolver.NewResolver(
		[]resolver.StrategyInterface{
			resolver.NewHeaderStrategy(specs.ResolutionHeader, s),
			resolver.NewDomainStrategy(specs.ExcludedDomains, s, s),
		},
		cache,
		tracer,
		logger,
	)

	tenantService := tenant.NewService(
		s,
		lifecycleManager,
		tracker,
		dispatcher,
		cache,
		tenant.Config{Async: redisClient != nil},
		tracer,
		monitor,
		logger,
	)
	tenantHandler := tenant.NewHandler(tenantService, tracer, monitor, logger)

	router := web.NewRouter(
		tenantHandler,
		requestResolver,
		dbClient,
		tracer,
		monitor,
		logger,
	)
	logger.Infof("Starting HTTP server on port %v", specs.Port)

	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%v", specs.Port),
		WriteTimeout: time.Second * 60,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}

	var serverError error
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError = fmt.Errorf("server error: %w", err)
			c <- os.Interrupt
		}
	}()

	<-c

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		serverError = fmt.Errorf("server shutdown error: %w", err)
	}

	return serverError
}

func main() {
	if err := serve(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
