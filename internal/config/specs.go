// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"time"
)

// EnvSpec is the basic environment configuration setup needed for the app to start
type EnvSpec struct {
	OtelGRPCEndpoint string `envconfig:"otel_grpc_endpoint"`
	OtelHTTPEndpoint string `envconfig:"otel_http_endpoint"`
	TracingEnabled   bool   `envconfig:"tracing_enabled" default:"true"`

	LogLevel string `envconfig:"log_level" default:"error"`
	Debug    bool   `envconfig:"debug" default:"false"`

	Port int `envconfig:"port" default:"8080"`

	DSN string `envconfig:"DSN" required:"true"`

	DBMaxConns        int32         `envconfig:"db_max_conns" default:"25"`
	DBMinConns        int32         `envconfig:"db_min_conns" default:"2"`
	DBMaxConnLifetime time.Duration `envconfig:"db_max_conn_lifetime" default:"1h"`
	DBMaxConnIdleTime time.Duration `envconfig:"db_max_conn_idle_time" default:"30m"`

	// Tenant database naming: "prefix" produces <prefix><id>,
	// "suffix" produces <id><separator><prefix>.
	TenantDBNamingStrategy string `envconfig:"tenant_db_naming_strategy" default:"prefix"`
	TenantDBPrefix         string `envconfig:"tenant_db_prefix" default:"tenant_"`
	TenantDBSeparator      string `envconfig:"tenant_db_separator" default:"_"`

	TenantAutoCreate  bool `envconfig:"tenant_auto_create" default:"false"`
	TenantAutoMigrate bool `envconfig:"tenant_auto_migrate" default:"true"`
	TenantAutoSeed    bool `envconfig:"tenant_auto_seed" default:"false"`

	ResolutionHeader string   `envconfig:"tenant_resolution_header" default:"X-Tenant-ID"`
	ExcludedDomains  []string `envconfig:"tenant_excluded_domains" default:"www,api,admin"`

	// Entity routing: comma separated type names per scope. Anything
	// unlisted routes to the central store.
	CentralEntities []string `envconfig:"central_entities"`
	TenantEntities  []string `envconfig:"tenant_entities"`

	TenantCacheEnabled bool          `envconfig:"tenant_cache_enabled" default:"true"`
	TenantCacheTTL     time.Duration `envconfig:"tenant_cache_ttl" default:"1h"`
	TenantCachePrefix  string        `envconfig:"tenant_cache_prefix" default:"tenancy"`
	RedisURL           string        `envconfig:"redis_url"`

	MigrationTimeout time.Duration `envconfig:"migration_timeout" default:"5m"`
}
