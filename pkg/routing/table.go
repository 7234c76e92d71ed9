// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package routing classifies data types into the central or tenant
// store. The table is built once at startup and is read-only after
// that, safe to share across units of work without locking.
package routing

import (
	"sync"

	"github.com/meridianhq/tenancy-service/internal/logging"
)

type Scope int

const (
	ScopeCentral Scope = iota
	ScopeTenant
)

func (s Scope) String() string {
	if s == ScopeTenant {
		return "tenant"
	}
	return "central"
}

// Builtin bookkeeping types. These always live in the central store so
// the system cannot orphan its own registry data into a tenant
// database, regardless of configuration.
var builtinCentral = []string{
	"tenants",
	"tenant_domains",
	"tenant_event_logs",
}

type Table struct {
	scopes map[string]Scope

	unknownOnce sync.Map
	logger      logging.LoggerInterface
}

// Classify returns the scope for a type name. Unknown types default to
// central, the safer choice, and are logged once so misconfiguration
// stays visible.
func (t *Table) Classify(typeName string) Scope {
	if scope, ok := t.scopes[typeName]; ok {
		return scope
	}

	if _, logged := t.unknownOnce.LoadOrStore(typeName, struct{}{}); !logged {
		t.logger.Warnf("type %q is not in the entity routing table, defaulting to central", typeName)
	}
	return ScopeCentral
}

// IsTenant reports whether a type routes to the tenant store.
func (t *Table) IsTenant(typeName string) bool {
	return t.Classify(typeName) == ScopeTenant
}

// NewTable builds a routing table from the configured type lists. The
// builtin registry types are forced central even if listed as tenant.
func NewTable(central, tenant []string, logger logging.LoggerInterface) *Table {
	t := new(Table)
	t.scopes = make(map[string]Scope, len(central)+len(tenant)+len(builtinCentral))
	t.logger = logger

	for _, name := range tenant {
		t.scopes[name] = ScopeTenant
	}
	for _, name := range central {
		t.scopes[name] = ScopeCentral
	}
	for _, name := range builtinCentral {
		if t.scopes[name] == ScopeTenant {
			logger.Warnf("type %q is a builtin central type, overriding tenant routing", name)
		}
		t.scopes[name] = ScopeCentral
	}

	return t
}
