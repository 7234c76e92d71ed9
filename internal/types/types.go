// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TenantID is the opaque handle for a tenant. It wraps a UUID so values
// are comparable and safe to use as map keys.
type TenantID struct {
	id uuid.UUID
}

// NewTenantID generates a new time-ordered tenant identifier.
func NewTenantID() (TenantID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return TenantID{}, fmt.Errorf("failed to generate tenant ID: %w", err)
	}
	return TenantID{id: id}, nil
}

// ParseTenantID parses the canonical string form of a tenant identifier.
func ParseTenantID(s string) (TenantID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, fmt.Errorf("invalid tenant ID %q: %w", s, err)
	}
	return TenantID{id: id}, nil
}

func (t TenantID) String() string {
	return t.id.String()
}

func (t TenantID) IsZero() bool {
	return t.id == uuid.UUID{}
}

// MarshalText lets TenantID round-trip through JSON and other text
// encodings despite the unexported field.
func (t TenantID) MarshalText() ([]byte, error) {
	return []byte(t.id.String()), nil
}

func (t *TenantID) UnmarshalText(data []byte) error {
	id, err := ParseTenantID(string(data))
	if err != nil {
		return err
	}
	*t = id
	return nil
}

// EventStatus values for an event log record.
const (
	EventStatusInProgress = "in_progress"
	EventStatusCompleted  = "completed"
	EventStatusFailed     = "failed"
)

// Event types recorded by the lifecycle and domain paths.
const (
	EventTenantCreated        = "tenant_created"
	EventTenantCreationFailed = "tenant_creation_failed"
	EventTenantUpdated        = "tenant_updated"
	EventTenantDeleted        = "tenant_deleted"
	EventMigrationStarted     = "tenant_migration_started"
	EventMigrationCompleted   = "tenant_migration_completed"
	EventMigrationFailed      = "tenant_migration_failed"
	EventDomainCreated        = "domain_created"
	EventDomainActivated      = "domain_activated"
	EventDomainDeactivated    = "domain_deactivated"
)

type Tenant struct {
	ID            TenantID   `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Domain        string     `db:"domain" json:"domain"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Active reports whether the tenant has not been deactivated.
func (t *Tenant) Active() bool {
	return t.DeactivatedAt == nil
}

type Domain struct {
	ID            string     `db:"id" json:"id"`
	Domain        string     `db:"domain" json:"domain"`
	TenantID      TenantID   `db:"tenant_id" json:"tenant_id"`
	IsPrimary     bool       `db:"is_primary" json:"is_primary"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	DeactivatedAt *time.Time `db:"deactivated_at" json:"deactivated_at,omitempty"`
}

type EventLog struct {
	ID            string         `db:"id" json:"id"`
	TenantID      TenantID       `db:"tenant_id" json:"tenant_id"`
	EventType     string         `db:"event_type" json:"event_type"`
	Status        string         `db:"status" json:"status"`
	Metadata      map[string]any `db:"metadata" json:"metadata,omitempty"`
	Domain        *string        `db:"domain" json:"domain,omitempty"`
	FailureReason *string        `db:"failure_reason" json:"failure_reason,omitempty"`
	OccurredAt    time.Time      `db:"occurred_at" json:"occurred_at"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}
