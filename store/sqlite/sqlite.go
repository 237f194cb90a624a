/*
Package sqlite provides a SQLite-backed implementation of attendance.Store.

PURPOSE:
  Persists tenants, staff and attendance records with database/sql and the
  mattn/go-sqlite3 driver. This is the default backend.

INTERFACES IMPLEMENTED:
  attendance.Directory:       Tenants and staff
  attendance.AttendanceStore: Attendance records

KEY TABLES:
  tenants:    One row per registered store (username UNIQUE)
  staff:      Roster, owned by a tenant
  attendance: PRIMARY KEY (tenant_id, staff_id, date); no foreign key to
              staff so deleting a staff member keeps their history

UPSERT:
  UpsertRecords() runs INSERT ... ON CONFLICT DO UPDATE for every record
  inside one SQL transaction. All columns are overwritten.

NUMBERS:
  Decimal values (hours, salary) are stored as TEXT and parsed back with
  shopspring/decimal, so no precision is lost to REAL.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to a
  single connection, since every new connection would open an empty one.

USAGE:
  store, err := sqlite.New("./attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/attendance/attendance"
)

// Store implements attendance.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS staff (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL REFERENCES tenants(id),
		name TEXT NOT NULL,
		staff_type TEXT NOT NULL DEFAULT '',
		salary_type TEXT NOT NULL,
		salary_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_staff_tenant
		ON staff(tenant_id);

	-- One attendance fact per staff per day
	CREATE TABLE IF NOT EXISTS attendance (
		tenant_id INTEGER NOT NULL,
		staff_id INTEGER NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		in_time TEXT,
		out_time TEXT,
		hours TEXT NOT NULL DEFAULT '0',
		late INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (tenant_id, staff_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_tenant_date
		ON attendance(tenant_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TENANTS
// =============================================================================

func (s *Store) CreateTenant(ctx context.Context, username, passwordHash string) (attendance.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (username, password_hash, active, created_at) VALUES (?, ?, 1, ?)`,
		username, passwordHash, now.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.Tenant{}, attendance.ErrDuplicateUsername
		}
		return attendance.Tenant{}, fmt.Errorf("failed to create tenant: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return attendance.Tenant{}, fmt.Errorf("failed to read tenant id: %w", err)
	}

	return attendance.Tenant{
		ID:           attendance.TenantID(id),
		Username:     username,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now.Truncate(time.Second),
	}, nil
}

const tenantColumns = `id, username, password_hash, active, created_at`

func (s *Store) GetTenant(ctx context.Context, id attendance.TenantID) (attendance.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Tenant{}, attendance.TenantNotFound(id)
	}
	return t, err
}

func (s *Store) GetTenantByUsername(ctx context.Context, username string) (attendance.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE username = ?`, username)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Tenant{}, &attendance.NotFoundError{Kind: "tenant", ID: username}
	}
	return t, err
}

func (s *Store) ListTenants(ctx context.Context) ([]attendance.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []attendance.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) SetTenantActive(ctx context.Context, id attendance.TenantID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET active = ? WHERE id = ?`, active, id)
	return requireAffected(res, err, attendance.TenantNotFound(id))
}

func (s *Store) SetTenantPassword(ctx context.Context, id attendance.TenantID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET password_hash = ? WHERE id = ?`, passwordHash, id)
	return requireAffected(res, err, attendance.TenantNotFound(id))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (attendance.Tenant, error) {
	var (
		t         attendance.Tenant
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.Username, &t.PasswordHash, &t.Active, &createdAt); err != nil {
		return attendance.Tenant{}, err
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return attendance.Tenant{}, corrupt("tenants.created_at", createdAt, err)
	}
	t.CreatedAt = created
	return t, nil
}

// =============================================================================
// STAFF
// =============================================================================

func (s *Store) CreateStaff(ctx context.Context, m attendance.StaffMember) (attendance.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (tenant_id, name, staff_type, salary_type, salary_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.Name, m.Type, string(m.SalaryType), m.SalaryAmount.String(), now.Format(time.RFC3339))
	if err != nil {
		if isForeignKeyError(err) {
			return attendance.StaffMember{}, attendance.TenantNotFound(m.TenantID)
		}
		return attendance.StaffMember{}, fmt.Errorf("failed to create staff: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return attendance.StaffMember{}, fmt.Errorf("failed to read staff id: %w", err)
	}

	m.ID = attendance.StaffID(id)
	m.CreatedAt = now.Truncate(time.Second)
	return m, nil
}

const staffColumns = `id, tenant_id, name, staff_type, salary_type, salary_amount, created_at`

func (s *Store) GetStaff(ctx context.Context, id attendance.StaffID) (attendance.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = ?`, id)
	m, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.StaffMember{}, attendance.StaffNotFound(id)
	}
	return m, err
}

func (s *Store) ListStaff(ctx context.Context, tenantID attendance.TenantID) ([]attendance.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+staffColumns+` FROM staff WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var staff []attendance.StaffMember
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		staff = append(staff, m)
	}
	return staff, rows.Err()
}

func (s *Store) DeleteStaff(ctx context.Context, id attendance.StaffID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM staff WHERE id = ?`, id)
	return requireAffected(res, err, attendance.StaffNotFound(id))
}

func scanStaff(row scanner) (attendance.StaffMember, error) {
	var (
		m                  attendance.StaffMember
		salaryType, amount string
		createdAt          string
	)
	if err := row.Scan(&m.ID, &m.TenantID, &m.Name, &m.Type, &salaryType, &amount, &createdAt); err != nil {
		return attendance.StaffMember{}, err
	}
	st, err := attendance.ParseSalaryType(salaryType)
	if err != nil {
		return attendance.StaffMember{}, corrupt("staff.salary_type", salaryType, err)
	}
	m.SalaryType = st
	if m.SalaryAmount, err = parseDecimal("staff.salary_amount", amount); err != nil {
		return attendance.StaffMember{}, err
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return attendance.StaffMember{}, corrupt("staff.created_at", createdAt, err)
	}
	return m, nil
}

// =============================================================================
// ATTENDANCE (attendance.AttendanceStore interface)
// =============================================================================

// UpsertRecords writes the batch in one transaction.
func (s *Store) UpsertRecords(ctx context.Context, records []attendance.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance (tenant_id, staff_id, date, status, in_time, out_time, hours, late)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, staff_id, date) DO UPDATE SET
			status = excluded.status,
			in_time = excluded.in_time,
			out_time = excluded.out_time,
			hours = excluded.hours,
			late = excluded.late`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.TenantID,
			r.StaffID,
			attendance.FormatDate(r.Date),
			string(r.Status),
			nullClock(r.InTime),
			nullClock(r.OutTime),
			r.HoursWorked.String(),
			r.Late,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert attendance: %w", err)
		}
	}

	return tx.Commit()
}

const recordColumns = `tenant_id, staff_id, date, status, in_time, out_time, hours, late`

func (s *Store) ListRecords(ctx context.Context, scope attendance.Scope) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if scope.All() {
		return s.queryRecords(ctx,
			`SELECT `+recordColumns+` FROM attendance ORDER BY tenant_id, date, staff_id`)
	}
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM attendance WHERE tenant_id = ? ORDER BY tenant_id, date, staff_id`,
		scope.Tenant())
}

func (s *Store) RecordsOn(ctx context.Context, tenantID attendance.TenantID, date time.Time) ([]attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM attendance WHERE tenant_id = ? AND date = ? ORDER BY staff_id`,
		tenantID, attendance.FormatDate(date))
}

func (s *Store) PurgeRecords(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM attendance`); err != nil {
		return fmt.Errorf("failed to purge attendance: %w", err)
	}
	return nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]attendance.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var records []attendance.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(row scanner) (attendance.Record, error) {
	var (
		r               attendance.Record
		date, status    string
		inTime, outTime sql.NullString
		hours           string
	)
	if err := row.Scan(&r.TenantID, &r.StaffID, &date, &status, &inTime, &outTime, &hours, &r.Late); err != nil {
		return attendance.Record{}, err
	}
	d, err := attendance.ParseDate(date)
	if err != nil {
		return attendance.Record{}, corrupt("attendance.date", date, err)
	}
	r.Date = d
	if r.Status, err = attendance.ParseStatus(status); err != nil || status == "" {
		return attendance.Record{}, corrupt("attendance.status", status, err)
	}
	if r.InTime, err = parseClock("attendance.in_time", inTime); err != nil {
		return attendance.Record{}, err
	}
	if r.OutTime, err = parseClock("attendance.out_time", outTime); err != nil {
		return attendance.Record{}, err
	}
	if r.HoursWorked, err = parseDecimal("attendance.hours", hours); err != nil {
		return attendance.Record{}, err
	}
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullClock(c *attendance.ClockTime) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}

func parseClock(column string, s sql.NullString) (*attendance.ClockTime, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	c, err := attendance.ParseClockTime(s.String)
	if err != nil {
		return nil, corrupt(column, s.String, err)
	}
	return &c, nil
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, corrupt(column, s, err)
	}
	return d, nil
}

// corrupt reports a stored value that no longer parses. The cause is
// flattened so a bad row is never mistaken for bad client input.
func corrupt(column, value string, err error) error {
	if err == nil {
		err = errors.New("empty value")
	}
	return &attendance.StorageError{
		Op:  "read " + column,
		Err: fmt.Errorf("corrupt value %q: %v", value, err),
	}
}

func requireAffected(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

var _ attendance.Store = (*Store)(nil)
