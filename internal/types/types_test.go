// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantIDRoundTrip(t *testing.T) {
	id, err := NewTenantID()
	require.NoError(t, err)

	parsed, err := ParseTenantID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.True(t, id == parsed)
}

func TestTenantIDEquality(t *testing.T) {
	a, err := ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	b, err := ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	c, err := ParseTenantID("22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)

	assert.True(t, a == a)
	assert.True(t, a == b)
	assert.True(t, b == a)
	assert.False(t, a == c)
}

func TestParseTenantIDInvalid(t *testing.T) {
	testCases := []string{
		"",
		"not-a-uuid",
		"11111111-1111-1111-1111",
		"zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz",
	}

	for _, tc := range testCases {
		t.Run(tc, func(t *testing.T) {
			_, err := ParseTenantID(tc)
			assert.Error(t, err)
		})
	}
}

func TestTenantIDJSONRoundTrip(t *testing.T) {
	id, err := ParseTenantID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)

	data, err := json.Marshal(Tenant{ID: id, Name: "acme"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "11111111-1111-1111-1111-111111111111")

	var decoded Tenant
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded.ID)
}

func TestTenantIDIsZero(t *testing.T) {
	assert.True(t, TenantID{}.IsZero())

	id, err := NewTenantID()
	require.NoError(t, err)
	assert.False(t, id.IsZero())
}

func TestTenantActive(t *testing.T) {
	tenant := &Tenant{}
	assert.True(t, tenant.Active())

	now := tenant.CreatedAt
	tenant.DeactivatedAt = &now
	assert.False(t, tenant.Active())
}
