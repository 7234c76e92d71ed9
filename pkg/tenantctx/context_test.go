// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package tenantctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/tenancy-service/internal/types"
)

func TestFromContextEmpty(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	_, ok = IDFromContext(context.Background())
	assert.False(t, ok)
}

func TestWithTenant(t *testing.T) {
	id, err := types.NewTenantID()
	require.NoError(t, err)
	tenant := &types.Tenant{ID: id, Name: "acme"}

	ctx := WithTenant(context.Background(), tenant)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tenant, got)

	gotID, ok := IDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, gotID)
}

func TestClear(t *testing.T) {
	id, err := types.NewTenantID()
	require.NoError(t, err)

	ctx := WithTenant(context.Background(), &types.Tenant{ID: id})
	ctx = Clear(ctx)

	_, ok := FromContext(ctx)
	assert.False(t, ok)
}

func TestTenantDoesNotLeakToParent(t *testing.T) {
	parent := context.Background()
	id, err := types.NewTenantID()
	require.NoError(t, err)

	_ = WithTenant(parent, &types.Tenant{ID: id})

	_, ok := FromContext(parent)
	assert.False(t, ok)
}
