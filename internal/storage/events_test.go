// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow feeds scanEventLog one row's worth of driver values.
type fakeRow struct {
	values []any
}

func (f *fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = f.values[i].(string)
		case *[]byte:
			if f.values[i] != nil {
				*v = f.values[i].([]byte)
			}
		case *sql.NullString:
			if f.values[i] == nil {
				*v = sql.NullString{}
			} else {
				*v = sql.NullString{String: f.values[i].(string), Valid: true}
			}
		case *time.Time:
			*v = f.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanEventLogNullableColumns(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tenantID := "33333333-3333-3333-3333-333333333333"

	t.Run("null domain and failure reason stay nil", func(t *testing.T) {
		row := &fakeRow{values: []any{
			"evt-1", tenantID, "tenant_created", "completed",
			nil, nil, nil, now, now, now,
		}}

		e, err := scanEventLog(row)
		require.NoError(t, err)

		assert.Nil(t, e.Domain)
		assert.Nil(t, e.FailureReason)
		assert.Nil(t, e.Metadata)
		assert.Equal(t, tenantID, e.TenantID.String())
	})

	t.Run("populated columns round-trip", func(t *testing.T) {
		row := &fakeRow{values: []any{
			"evt-2", tenantID, "domain_created", "completed",
			[]byte(`{"name":"acme"}`), "acme.example.com", "timeout", now, now, now,
		}}

		e, err := scanEventLog(row)
		require.NoError(t, err)

		require.NotNil(t, e.Domain)
		assert.Equal(t, "acme.example.com", *e.Domain)
		require.NotNil(t, e.FailureReason)
		assert.Equal(t, "timeout", *e.FailureReason)
		assert.Equal(t, map[string]any{"name": "acme"}, e.Metadata)
	})
}
