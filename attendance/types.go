/*
Package attendance provides the core attendance and payroll engine.

PURPOSE:
  Turns raw daily check-in/check-out submissions into persisted attendance
  records, and turns the attendance history into monthly payroll summaries.
  Everything else (HTTP, tokens, spreadsheets, SQL) lives outside this
  package and talks to it through the types and interfaces defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tenant: a store that registered with the system
  - StaffMember: an employee owned by exactly one tenant
  - Record: one attendance fact per (tenant, staff, date)
  - SummaryRow: one payroll line per (store, staff, month)
  - Scope: which tenants an aggregation covers

DESIGN PRINCIPLES:
  1. Precision: hours and money use decimal.Decimal, rounded to 2 places
  2. Type Safety: TenantID and StaffID are distinct types
  3. Full replace: a record is never partially updated

SEE ALSO:
  - recorder.go: RecordDay (derives hours/lateness, upserts)
  - payroll.go: Aggregate (monthly summaries)
  - store.go: Directory and AttendanceStore interfaces
*/
package attendance

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID int64

type StaffID int64

// =============================================================================
// TENANT - A registered store
// =============================================================================

// Tenant is a store using the system. PasswordHash is a bcrypt hash; the
// plaintext password is never persisted.
type Tenant struct {
	ID           TenantID
	Username     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// =============================================================================
// STAFF - Employees and their salary model
// =============================================================================

type SalaryType string

const (
	SalaryDaily  SalaryType = "daily"  // paid per day present
	SalaryHourly SalaryType = "hourly" // paid per hour worked
)

// ParseSalaryType accepts "daily" or "hourly" in any case.
func ParseSalaryType(s string) (SalaryType, error) {
	switch SalaryType(strings.ToLower(strings.TrimSpace(s))) {
	case SalaryDaily:
		return SalaryDaily, nil
	case SalaryHourly:
		return SalaryHourly, nil
	}
	return "", &ValidationError{Field: "salary_type", Value: s, Reason: "must be daily or hourly"}
}

// StaffMember is an employee of one tenant. Type is a free-form label and
// plays no part in any calculation.
type StaffMember struct {
	ID           StaffID
	TenantID     TenantID
	Name         string
	Type         string
	SalaryType   SalaryType
	SalaryAmount decimal.Decimal
	CreatedAt    time.Time
}

// =============================================================================
// RECORD - One attendance fact per staff per day
// =============================================================================

type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// ParseStatus maps a submitted status to a Status. An empty status means the
// staff member was not marked present, so it defaults to Absent.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return StatusAbsent, nil
	case "present":
		return StatusPresent, nil
	case "absent":
		return StatusAbsent, nil
	}
	return "", &ValidationError{Field: "status", Value: s, Reason: "must be Present or Absent"}
}

// Record is the persisted attendance of one staff member on one date.
// HoursWorked and Late are derived by the Recorder and stored alongside the
// raw clock times.
type Record struct {
	TenantID    TenantID
	StaffID     StaffID
	Date        time.Time // UTC midnight
	Status      Status
	InTime      *ClockTime
	OutTime     *ClockTime
	HoursWorked decimal.Decimal
	Late        bool
}

// Month returns the YYYY-MM bucket the record is summarized under.
func (r Record) Month() string {
	return MonthOf(r.Date)
}

// =============================================================================
// SUMMARY - Monthly payroll rows
// =============================================================================

// SummaryColumns is the fixed column order of an exported summary.
var SummaryColumns = []string{
	"Store", "Staff", "Month", "PresentDays", "AbsentDays", "TotalHours", "TotalDays", "Salary",
}

// SummaryRow is the payroll summary of one staff member for one month.
type SummaryRow struct {
	Store       string
	Staff       string
	Month       string
	PresentDays int
	AbsentDays  int
	TotalHours  decimal.Decimal
	TotalDays   int
	Salary      decimal.Decimal
}

// Values returns the row in SummaryColumns order.
func (r SummaryRow) Values() []any {
	return []any{
		r.Store,
		r.Staff,
		r.Month,
		r.PresentDays,
		r.AbsentDays,
		r.TotalHours.InexactFloat64(),
		r.TotalDays,
		r.Salary.InexactFloat64(),
	}
}

// =============================================================================
// SCOPE - Which tenants an aggregation covers
// =============================================================================

// Scope selects either every tenant or a single one. The zero value covers
// all tenants.
type Scope struct {
	tenant TenantID
}

func AllTenants() Scope { return Scope{} }

func OneTenant(id TenantID) Scope { return Scope{tenant: id} }

func (s Scope) All() bool { return s.tenant == 0 }

// Tenant returns the selected tenant, or 0 for AllTenants.
func (s Scope) Tenant() TenantID { return s.tenant }

func (s Scope) Includes(id TenantID) bool { return s.All() || s.tenant == id }
