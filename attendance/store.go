/*
store.go - Persistence interfaces for tenants, staff and attendance

PURPOSE:
  Defines the narrow boundary between the engine and the database. The
  Recorder and Aggregator only ever see these typed operations; no query
  text crosses this line.

KEY INTERFACES:
  Directory:       Tenants and their staff rosters
  AttendanceStore: Attendance records keyed by (tenant, staff, date)
  Store:           Both, as implemented by every backend

UPSERT CONTRACT:
  UpsertRecords() writes a whole day's batch atomically. Each record fully
  replaces any earlier record with the same (tenant, staff, date); fields
  are never merged.

NOT FOUND:
  Single-entity getters return a *NotFoundError (errors.Is ErrNotFound)
  rather than a nil pointer.

IMPLEMENTATIONS:
  - attendance/store/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go:     SQLite (default)
  - store/postgres/postgres.go: PostgreSQL via gorm

SEE ALSO:
  - recorder.go, payroll.go: consumers
*/
package attendance

import (
	"context"
	"time"
)

// Directory persists tenants and staff.
type Directory interface {
	// CreateTenant stores a new active tenant and returns it with its ID.
	// Returns ErrDuplicateUsername if the username is taken.
	CreateTenant(ctx context.Context, username, passwordHash string) (Tenant, error)

	GetTenant(ctx context.Context, id TenantID) (Tenant, error)

	GetTenantByUsername(ctx context.Context, username string) (Tenant, error)

	// ListTenants returns all tenants ordered by ID.
	ListTenants(ctx context.Context) ([]Tenant, error)

	SetTenantActive(ctx context.Context, id TenantID, active bool) error

	SetTenantPassword(ctx context.Context, id TenantID, passwordHash string) error

	// CreateStaff stores a staff member and returns it with its ID.
	CreateStaff(ctx context.Context, s StaffMember) (StaffMember, error)

	GetStaff(ctx context.Context, id StaffID) (StaffMember, error)

	// ListStaff returns a tenant's staff in insertion order.
	ListStaff(ctx context.Context, tenantID TenantID) ([]StaffMember, error)

	// DeleteStaff removes a staff member. Attendance history is kept.
	DeleteStaff(ctx context.Context, id StaffID) error
}

// AttendanceStore persists attendance records.
type AttendanceStore interface {
	// UpsertRecords writes all records or none.
	UpsertRecords(ctx context.Context, records []Record) error

	// ListRecords returns every record in scope ordered by tenant, date, staff.
	ListRecords(ctx context.Context, scope Scope) ([]Record, error)

	// RecordsOn returns a tenant's records for one date.
	RecordsOn(ctx context.Context, tenantID TenantID, date time.Time) ([]Record, error)

	// PurgeRecords deletes all attendance for all tenants.
	PurgeRecords(ctx context.Context) error
}

// Store is implemented by every backend.
type Store interface {
	Directory
	AttendanceStore
}
