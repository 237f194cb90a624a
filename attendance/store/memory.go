// Package store provides in-process Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/attendance/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	tenants    []attendance.Tenant
	staff      []attendance.StaffMember
	records    map[key]attendance.Record
	nextTenant attendance.TenantID
	nextStaff  attendance.StaffID
	now        func() time.Time
}

type key struct {
	TenantID attendance.TenantID
	StaffID  attendance.StaffID
	Date     string
}

func keyOf(r attendance.Record) key {
	return key{TenantID: r.TenantID, StaffID: r.StaffID, Date: attendance.FormatDate(r.Date)}
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[key]attendance.Record),
		now:     time.Now,
	}
}

// Close is a no-op so Memory can stand in wherever a closable store is
// expected.
func (m *Memory) Close() error { return nil }

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) CreateTenant(_ context.Context, username, passwordHash string) (attendance.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tenants {
		if strings.EqualFold(t.Username, username) {
			return attendance.Tenant{}, attendance.ErrDuplicateUsername
		}
	}
	m.nextTenant++
	t := attendance.Tenant{
		ID:           m.nextTenant,
		Username:     username,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    m.now().UTC(),
	}
	m.tenants = append(m.tenants, t)
	return t, nil
}

func (m *Memory) GetTenant(_ context.Context, id attendance.TenantID) (attendance.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.tenantIndex(id); i >= 0 {
		return m.tenants[i], nil
	}
	return attendance.Tenant{}, attendance.TenantNotFound(id)
}

func (m *Memory) GetTenantByUsername(_ context.Context, username string) (attendance.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tenants {
		if strings.EqualFold(t.Username, username) {
			return t, nil
		}
	}
	return attendance.Tenant{}, &attendance.NotFoundError{Kind: "tenant", ID: username}
}

func (m *Memory) ListTenants(_ context.Context) ([]attendance.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]attendance.Tenant, len(m.tenants))
	copy(result, m.tenants)
	return result, nil
}

func (m *Memory) SetTenantActive(_ context.Context, id attendance.TenantID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.tenantIndex(id)
	if i < 0 {
		return attendance.TenantNotFound(id)
	}
	m.tenants[i].Active = active
	return nil
}

func (m *Memory) SetTenantPassword(_ context.Context, id attendance.TenantID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.tenantIndex(id)
	if i < 0 {
		return attendance.TenantNotFound(id)
	}
	m.tenants[i].PasswordHash = passwordHash
	return nil
}

func (m *Memory) tenantIndex(id attendance.TenantID) int {
	for i, t := range m.tenants {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) CreateStaff(_ context.Context, s attendance.StaffMember) (attendance.StaffMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tenantIndex(s.TenantID) < 0 {
		return attendance.StaffMember{}, attendance.TenantNotFound(s.TenantID)
	}
	m.nextStaff++
	s.ID = m.nextStaff
	s.CreatedAt = m.now().UTC()
	m.staff = append(m.staff, s)
	return s, nil
}

func (m *Memory) GetStaff(_ context.Context, id attendance.StaffID) (attendance.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.staff {
		if s.ID == id {
			return s, nil
		}
	}
	return attendance.StaffMember{}, attendance.StaffNotFound(id)
}

func (m *Memory) ListStaff(_ context.Context, tenantID attendance.TenantID) ([]attendance.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.StaffMember
	for _, s := range m.staff {
		if s.TenantID == tenantID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *Memory) DeleteStaff(_ context.Context, id attendance.StaffID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.staff {
		if s.ID == id {
			m.staff = append(m.staff[:i], m.staff[i+1:]...)
			return nil
		}
	}
	return attendance.StaffNotFound(id)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// UpsertRecords replaces all records in one critical section, so readers
// never see half a batch.
func (m *Memory) UpsertRecords(_ context.Context, records []attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.records[keyOf(r)] = r
	}
	return nil
}

func (m *Memory) ListRecords(_ context.Context, scope attendance.Scope) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Record
	for _, r := range m.records {
		if scope.Includes(r.TenantID) {
			result = append(result, r)
		}
	}
	sortRecords(result)
	return result, nil
}

func (m *Memory) RecordsOn(_ context.Context, tenantID attendance.TenantID, date time.Time) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := attendance.FormatDate(date)
	var result []attendance.Record
	for k, r := range m.records {
		if k.TenantID == tenantID && k.Date == day {
			result = append(result, r)
		}
	}
	sortRecords(result)
	return result, nil
}

func (m *Memory) PurgeRecords(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[key]attendance.Record)
	return nil
}

func sortRecords(rs []attendance.Record) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.TenantID != b.TenantID {
			return a.TenantID < b.TenantID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.StaffID < b.StaffID
	})
}

var _ attendance.Store = (*Memory)(nil)
