// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/meridianhq/tenancy-service/internal/config"
	"github.com/meridianhq/tenancy-service/internal/db"
	"github.com/meridianhq/tenancy-service/internal/events"
	"github.com/meridianhq/tenancy-service/internal/lifecycle"
	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
	"github.com/meridianhq/tenancy-service/internal/storage"
	"github.com/meridianhq/tenancy-service/internal/tracing"
	"github.com/meridianhq/tenancy-service/internal/types"
	tenantmigrations "github.com/meridianhq/tenancy-service/migrations/tenant"
	"github.com/meridianhq/tenancy-service/pkg/router"
	"github.com/meridianhq/tenancy-service/pkg/routing"
	"github.com/meridianhq/tenancy-service/pkg/tenant"
	"github.com/meridianhq/tenancy-service/pkg/tenantctx"
)

var (
	tenantAsync   bool
	tenantConfirm bool
	tenantDomain  string
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants and their databases",
}

// adminEnv is the wiring the tenant subcommands share: central storage,
// the lifecycle manager and event tracking, driven by the same
// environment variables as serve.
type adminEnv struct {
	specs     *config.EnvSpec
	service   *tenant.Service
	dbClient  db.DBClientInterface
	lifecycle lifecycle.ManagerInterface
	naming    db.SwitcherConfig
	tracer    tracing.TracingInterface
	monitor   monitoring.MonitorInterface
	logger    logging.LoggerInterface
	close     func()
}

func newAdminEnv() (*adminEnv, error) {
	specs := new(config.EnvSpec)
	if err := envconfig.Process("", specs); err != nil {
		return nil, fmt.Errorf("issues with environment sourcing: %w", err)
	}

	logger := logging.NewLogger(specs.LogLevel)
	tracer := tracing.NewNoopTracer()
	monitor := monitoring.NewNoopMonitor()

	dbClient, err := db.NewDBClient(db.Config{
		DSN:             specs.DSN,
		MaxConns:        specs.DBMaxConns,
		MinConns:        specs.DBMinConns,
		MaxConnLifetime: specs.DBMaxConnLifetime,
		MaxConnIdleTime: specs.DBMaxConnIdleTime,
	}, tracer, monitor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}

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

	tracker := events.NewTracker(s, tracer, logger)

	var enqueuer events.EnqueuerInterface = events.NewLogEnqueuer(logger)
	var redisClient *redis.Client
	if tenantAsync {
		if specs.RedisURL == "" {
			dbClient.Close()
			return nil, fmt.Errorf("--async requires REDIS_URL to be set")
		}
		opts, err := redis.ParseURL(specs.RedisURL)
		if err != nil {
			dbClient.Close()
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		enqueuer = events.NewRedisEnqueuer(redisClient, specs.TenantCachePrefix+":jobs", tracer, logger)
	}
	dispatcher := events.NewDispatcher(tracker, enqueuer, nil, tracer, logger)

	service := tenant.NewService(
		s,
		lifecycleManager,
		tracker,
		dispatcher,
		nil,
		tenant.Config{Async: tenantAsync},
		tracer,
		monitor,
		logger,
	)

	return &adminEnv{
		specs:     specs,
		service:   service,
		dbClient:  dbClient,
		lifecycle: lifecycleManager,
		naming:    naming,
		tracer:    tracer,
		monitor:   monitor,
		logger:    logger,
		close: func() {
			if redisClient != nil {
				redisClient.Close()
			}
			dbClient.Close()
			logger.Sync()
		},
	}, nil
}

// operationContext bounds lifecycle work; migrations against a large
// tenant database can run for minutes.
func (e *adminEnv) operationContext() (context.Context, context.CancelFunc) {
	timeout := e.specs.MigrationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

var createTenantCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new tenant and provision its database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAdminEnv()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := env.operationContext()
		defer cancel()

		created, err := env.service.CreateTenant(ctx, args[0], tenantDomain)
		if err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}

		fmt.Printf("Tenant created: %s (ID: %s)\n", created.Name, created.ID)
		return nil
	},
}

var deleteTenantCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a tenant and drop its database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !tenantConfirm {
			return fmt.Errorf("deleting a tenant drops its database, pass --yes to confirm")
		}

		id, err := types.ParseTenantID(args[0])
		if err != nil {
			return err
		}

		env, err := newAdminEnv()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := env.operationContext()
		defer cancel()

		if err := env.service.DeleteTenant(ctx, id); err != nil {
			return fmt.Errorf("failed to delete tenant: %w", err)
		}

		fmt.Printf("Tenant deleted: %s\n", id)
		return nil
	},
}

var listTenantsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAdminEnv()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := env.operationContext()
		defer cancel()

		tenants, err := env.service.ListTenants(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tenants: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDOMAIN\tCREATED_AT")
		for _, t := range tenants {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Domain, t.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
		return nil
	},
}

var migrateTenantCmd = &cobra.Command{
	Use:   "migrate [id]",
	Short: "Apply pending migrations to a tenant's database",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantOperation("migrate", (*tenant.Service).MigrateTenant),
}

var seedTenantCmd = &cobra.Command{
	Use:   "seed [id]",
	Short: "Seed a tenant's database",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantOperation("seed", (*tenant.Service).SeedTenant),
}

var rollbackTenantCmd = &cobra.Command{
	Use:   "rollback [id]",
	Short: "Revert the most recent migration on a tenant's database",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantOperation("rollback", (*tenant.Service).RollbackTenant),
}

func runTenantOperation(name string, op func(*tenant.Service, context.Context, types.TenantID) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseTenantID(args[0])
		if err != nil {
			return err
		}

		env, err := newAdminEnv()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := env.operationContext()
		defer cancel()

		if err := op(env.service, ctx, id); err != nil {
			return fmt.Errorf("failed to %s tenant: %w", name, err)
		}

		fmt.Printf("Tenant %s: %s\n", name, id)
		return nil
	}
}

var checkTenantCmd = &cobra.Command{
	Use:   "check [id]",
	Short: "Verify a tenant's database is reachable through the persistence router",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseTenantID(args[0])
		if err != nil {
			return err
		}

		env, err := newAdminEnv()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := env.operationContext()
		defer cancel()

		return env.checkTenant(ctx, id)
	},
}

// checkTenant drives one unit of work through the persistence router:
// it classifies a configured tenant entity, switches the connection to
// the tenant's database (auto-creating it when TENANT_AUTO_CREATE is
// on) and pings it.
func (e *adminEnv) checkTenant(ctx context.Context, id types.TenantID) error {
	if len(e.specs.TenantEntities) == 0 {
		return fmt.Errorf("no tenant-scoped entities configured, set TENANT_ENTITIES")
	}

	registered, err := e.service.GetTenant(ctx, id)
	if err != nil {
		return fmt.Errorf("tenant is not registered: %w", err)
	}

	connector, err := db.NewPgxConnector(db.Config{
		DSN:             e.specs.DSN,
		MaxConns:        e.specs.DBMaxConns,
		MinConns:        e.specs.DBMinConns,
		MaxConnLifetime: e.specs.DBMaxConnLifetime,
		MaxConnIdleTime: e.specs.DBMaxConnIdleTime,
	}, e.tracer, e.monitor, e.logger)
	if err != nil {
		return err
	}

	switcher, err := db.NewSwitcher(ctx, e.naming, connector, e.tracer, e.monitor, e.logger)
	if err != nil {
		return err
	}
	defer switcher.Close()

	persistence := router.NewRouter(
		e.dbClient,
		switcher,
		routingTable(e.specs, e.logger),
		e.lifecycle,
		router.Config{AutoCreate: e.specs.TenantAutoCreate},
		e.tracer,
		e.monitor,
		e.logger,
	)

	entity := e.specs.TenantEntities[0]
	manager, err := persistence.Manager(tenantctx.WithTenant(ctx, registered), entity)
	if err != nil {
		return fmt.Errorf("failed to route %q to tenant %s: %w", entity, id, err)
	}
	if err := manager.DB().PingContext(ctx); err != nil {
		return fmt.Errorf("tenant database %q is not reachable: %w", switcher.DatabaseName(id), err)
	}

	fmt.Printf("Tenant %s: %q routes to tenant database %q, connection OK\n", id, entity, switcher.DatabaseName(id))
	return nil
}

// routingTable builds the entity routing table from the configured
// scope lists.
func routingTable(specs *config.EnvSpec, logger logging.LoggerInterface) *routing.Table {
	return routing.NewTable(specs.CentralEntities, specs.TenantEntities, logger)
}

var statusTenantCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show a tenant's provisioning and migration status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseTenantID(args[0])
		if err != nil {
			return err
		}

		env, err := newAdminEnv()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := env.operationContext()
		defer cancel()

		status, err := env.service.GetTenantStatus(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get tenant status: %w", err)
		}

		fmt.Printf("Tenant:   %s (%s)\n", status.Tenant.Name, status.Tenant.ID)
		fmt.Printf("State:    %s (created: %v, migrated: %v, failures: %v)\n",
			status.State, status.Events.IsCreated, status.Events.IsMigrated, status.Events.HasFailures)
		fmt.Printf("Database: %s (exists: %v, pending migrations: %v)\n",
			status.Database.Database, status.Database.Exists, status.Database.Pending)
		for _, m := range status.Database.Migrations {
			applied := "pending"
			if m.Applied {
				applied = m.AppliedAt.Format(time.RFC3339)
			}
			fmt.Printf("  %-24s -- %s\n", applied, m.Source)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(createTenantCmd)
	tenantCmd.AddCommand(deleteTenantCmd)
	tenantCmd.AddCommand(listTenantsCmd)
	tenantCmd.AddCommand(migrateTenantCmd)
	tenantCmd.AddCommand(seedTenantCmd)
	tenantCmd.AddCommand(rollbackTenantCmd)
	tenantCmd.AddCommand(statusTenantCmd)
	tenantCmd.AddCommand(checkTenantCmd)

	tenantCmd.PersistentFlags().BoolVar(&tenantAsync, "async", false, "Enqueue the work as a background job instead of running it inline")
	createTenantCmd.Flags().StringVar(&tenantDomain, "domain", "", "Primary domain for the new tenant")
	deleteTenantCmd.Flags().BoolVar(&tenantConfirm, "yes", false, "Confirm the deletion")
}
