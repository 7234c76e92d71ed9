// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianhq/tenancy-service/internal/config"
	"github.com/meridianhq/tenancy-service/internal/logging"
)

func TestRoutingTableFromEnv(t *testing.T) {
	specs := &config.EnvSpec{
		CentralEntities: []string{"plans"},
		TenantEntities:  []string{"customers", "orders"},
	}

	table := routingTable(specs, logging.NewNoopLogger())

	assert.True(t, table.IsTenant("customers"))
	assert.True(t, table.IsTenant("orders"))
	assert.False(t, table.IsTenant("plans"))
	// Registry bookkeeping types stay central no matter what.
	assert.False(t, table.IsTenant("tenants"))
}
