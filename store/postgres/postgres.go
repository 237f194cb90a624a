/*
Package postgres provides a PostgreSQL implementation of attendance.Store
using gorm.

PURPOSE:
  The hosted alternative to the SQLite backend. Same interface, same
  semantics; the engine cannot tell them apart.

TABLES (AutoMigrate):
  tenants, staff, attendance - see the *Model types below. attendance has a
  composite primary key (tenant_id, staff_id, date).

UPSERT:
  UpsertRecords() uses INSERT ... ON CONFLICT (tenant_id, staff_id, date)
  DO UPDATE for all columns, inside db.Transaction.

ERRORS:
  The gorm config enables TranslateError so unique violations surface as
  gorm.ErrDuplicatedKey and can be mapped to ErrDuplicateUsername.

SEE ALSO:
  - store/sqlite/sqlite.go: Default backend
  - attendance/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance/attendance"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// =============================================================================
// MODELS
// =============================================================================

type tenantModel struct {
	ID           int64     `gorm:"primaryKey"`
	Username     string    `gorm:"type:varchar(120);not null;uniqueIndex:idx_tenants_username_lower,expression:lower(username)"`
	PasswordHash string    `gorm:"not null"`
	Active       bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (tenantModel) TableName() string { return "tenants" }

type staffModel struct {
	ID           int64           `gorm:"primaryKey"`
	TenantID     int64           `gorm:"not null;index"`
	Name         string          `gorm:"not null"`
	StaffType    string          `gorm:"not null;default:''"`
	SalaryType   string          `gorm:"type:varchar(10);not null"`
	SalaryAmount decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	CreatedAt    time.Time       `gorm:"not null"`
}

func (staffModel) TableName() string { return "staff" }

type recordModel struct {
	TenantID int64           `gorm:"primaryKey;autoIncrement:false"`
	StaffID  int64           `gorm:"primaryKey;autoIncrement:false"`
	Date     time.Time       `gorm:"primaryKey;type:date"`
	Status   string          `gorm:"type:varchar(10);not null"`
	InTime   *string         `gorm:"type:varchar(5)"`
	OutTime  *string         `gorm:"type:varchar(5)"`
	Hours    decimal.Decimal `gorm:"type:numeric(6,2);not null;default:0"`
	Late     bool            `gorm:"not null;default:false"`
}

func (recordModel) TableName() string { return "attendance" }

// =============================================================================
// STORE
// =============================================================================

// Store implements attendance.Store on PostgreSQL.
type Store struct {
	db *gorm.DB
}

// New connects to dsn and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(pgdriver.New(pgdriver.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:         NewLogger(200 * time.Millisecond),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewFromDB(db)
}

// NewFromDB wraps an existing gorm handle and migrates the schema.
func NewFromDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&tenantModel{}, &staffModel{}, &recordModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// =============================================================================
// TENANTS
// =============================================================================

func (s *Store) CreateTenant(ctx context.Context, username, passwordHash string) (attendance.Tenant, error) {
	m := tenantModel{
		Username:     username,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return attendance.Tenant{}, attendance.ErrDuplicateUsername
		}
		return attendance.Tenant{}, fmt.Errorf("failed to create tenant: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) GetTenant(ctx context.Context, id attendance.TenantID) (attendance.Tenant, error) {
	var m tenantModel
	err := s.db.WithContext(ctx).First(&m, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return attendance.Tenant{}, attendance.TenantNotFound(id)
	}
	if err != nil {
		return attendance.Tenant{}, fmt.Errorf("failed to get tenant: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) GetTenantByUsername(ctx context.Context, username string) (attendance.Tenant, error) {
	var m tenantModel
	err := s.db.WithContext(ctx).
		Where("lower(username) = ?", strings.ToLower(username)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return attendance.Tenant{}, &attendance.NotFoundError{Kind: "tenant", ID: username}
	}
	if err != nil {
		return attendance.Tenant{}, fmt.Errorf("failed to get tenant: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) ListTenants(ctx context.Context) ([]attendance.Tenant, error) {
	var models []tenantModel
	if err := s.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	tenants := make([]attendance.Tenant, len(models))
	for i, m := range models {
		tenants[i] = m.toDomain()
	}
	return tenants, nil
}

func (s *Store) SetTenantActive(ctx context.Context, id attendance.TenantID, active bool) error {
	res := s.db.WithContext(ctx).Model(&tenantModel{}).Where("id = ?", int64(id)).Update("active", active)
	return affected(res, attendance.TenantNotFound(id))
}

func (s *Store) SetTenantPassword(ctx context.Context, id attendance.TenantID, passwordHash string) error {
	res := s.db.WithContext(ctx).Model(&tenantModel{}).Where("id = ?", int64(id)).Update("password_hash", passwordHash)
	return affected(res, attendance.TenantNotFound(id))
}

func (m tenantModel) toDomain() attendance.Tenant {
	return attendance.Tenant{
		ID:           attendance.TenantID(m.ID),
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
	}
}

// =============================================================================
// STAFF
// =============================================================================

func (s *Store) CreateStaff(ctx context.Context, member attendance.StaffMember) (attendance.StaffMember, error) {
	var created attendance.StaffMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&tenantModel{}).Where("id = ?", int64(member.TenantID)).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return attendance.TenantNotFound(member.TenantID)
		}
		m := staffModel{
			TenantID:     int64(member.TenantID),
			Name:         member.Name,
			StaffType:    member.Type,
			SalaryType:   string(member.SalaryType),
			SalaryAmount: member.SalaryAmount,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		var err error
		created, err = m.toDomain()
		return err
	})
	if err != nil {
		if attendance.IsNotFound(err) {
			return attendance.StaffMember{}, err
		}
		return attendance.StaffMember{}, fmt.Errorf("failed to create staff: %w", err)
	}
	return created, nil
}

func (s *Store) GetStaff(ctx context.Context, id attendance.StaffID) (attendance.StaffMember, error) {
	var m staffModel
	err := s.db.WithContext(ctx).First(&m, int64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return attendance.StaffMember{}, attendance.StaffNotFound(id)
	}
	if err != nil {
		return attendance.StaffMember{}, fmt.Errorf("failed to get staff: %w", err)
	}
	return m.toDomain()
}

func (s *Store) ListStaff(ctx context.Context, tenantID attendance.TenantID) ([]attendance.StaffMember, error) {
	var models []staffModel
	err := s.db.WithContext(ctx).Where("tenant_id = ?", int64(tenantID)).Order("id").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	staff := make([]attendance.StaffMember, len(models))
	for i, m := range models {
		if staff[i], err = m.toDomain(); err != nil {
			return nil, err
		}
	}
	return staff, nil
}

func (s *Store) DeleteStaff(ctx context.Context, id attendance.StaffID) error {
	res := s.db.WithContext(ctx).Delete(&staffModel{}, int64(id))
	return affected(res, attendance.StaffNotFound(id))
}

func (m staffModel) toDomain() (attendance.StaffMember, error) {
	st, err := attendance.ParseSalaryType(m.SalaryType)
	if err != nil {
		return attendance.StaffMember{}, corrupt("staff.salary_type", m.SalaryType, err)
	}
	return attendance.StaffMember{
		ID:           attendance.StaffID(m.ID),
		TenantID:     attendance.TenantID(m.TenantID),
		Name:         m.Name,
		Type:         m.StaffType,
		SalaryType:   st,
		SalaryAmount: m.SalaryAmount,
		CreatedAt:    m.CreatedAt,
	}, nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (s *Store) UpsertRecords(ctx context.Context, records []attendance.Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]recordModel, len(records))
	for i, r := range records {
		models[i] = recordModel{
			TenantID: int64(r.TenantID),
			StaffID:  int64(r.StaffID),
			Date:     r.Date,
			Status:   string(r.Status),
			InTime:   clockString(r.InTime),
			OutTime:  clockString(r.OutTime),
			Hours:    r.HoursWorked,
			Late:     r.Late,
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "staff_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "in_time", "out_time", "hours", "late"}),
		}).Create(&models).Error
		if err != nil {
			return fmt.Errorf("failed to upsert attendance: %w", err)
		}
		return nil
	})
}

func (s *Store) ListRecords(ctx context.Context, scope attendance.Scope) ([]attendance.Record, error) {
	q := s.db.WithContext(ctx).Model(&recordModel{})
	if !scope.All() {
		q = q.Where("tenant_id = ?", int64(scope.Tenant()))
	}
	return findRecords(q.Order("tenant_id, date, staff_id"))
}

func (s *Store) RecordsOn(ctx context.Context, tenantID attendance.TenantID, date time.Time) ([]attendance.Record, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND date = ?", int64(tenantID), attendance.FormatDate(date)).
		Order("staff_id")
	return findRecords(q)
}

func (s *Store) PurgeRecords(ctx context.Context) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&recordModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to purge attendance: %w", err)
	}
	return nil
}

func findRecords(q *gorm.DB) ([]attendance.Record, error) {
	var models []recordModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	records := make([]attendance.Record, len(models))
	for i, m := range models {
		status, err := attendance.ParseStatus(m.Status)
		if err != nil || m.Status == "" {
			return nil, corrupt("attendance.status", m.Status, err)
		}
		in, err := parseClock("attendance.in_time", m.InTime)
		if err != nil {
			return nil, err
		}
		out, err := parseClock("attendance.out_time", m.OutTime)
		if err != nil {
			return nil, err
		}
		records[i] = attendance.Record{
			TenantID:    attendance.TenantID(m.TenantID),
			StaffID:     attendance.StaffID(m.StaffID),
			Date:        attendance.DateOf(m.Date),
			Status:      status,
			InTime:      in,
			OutTime:     out,
			HoursWorked: m.Hours,
			Late:        m.Late,
		}
	}
	return records, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func clockString(c *attendance.ClockTime) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}

func parseClock(column string, s *string) (*attendance.ClockTime, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	c, err := attendance.ParseClockTime(*s)
	if err != nil {
		return nil, corrupt(column, *s, err)
	}
	return &c, nil
}

// corrupt reports a stored value that no longer parses, without letting
// the parse failure read as a client validation error.
func corrupt(column, value string, err error) error {
	if err == nil {
		err = errors.New("empty value")
	}
	return &attendance.StorageError{
		Op:  "read " + column,
		Err: fmt.Errorf("corrupt value %q: %v", value, err),
	}
}

func affected(res *gorm.DB, notFound error) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound
	}
	return nil
}

// =============================================================================
// GORM LOGGER - Forwards to the standard logger
// =============================================================================

type Logger struct {
	SlowThreshold time.Duration
	LogLevel      gormLogger.LogLevel
}

func NewLogger(slow time.Duration) gormLogger.Interface {
	return &Logger{SlowThreshold: slow, LogLevel: gormLogger.Warn}
}

func (l *Logger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	copied := *l
	copied.LogLevel = level
	return &copied
}

func (l *Logger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Info {
		log.Printf("[INFO] "+msg, data...)
	}
}

func (l *Logger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Warn {
		log.Printf("[WARN] "+msg, data...)
	}
}

func (l *Logger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= gormLogger.Error {
		log.Printf("[ERROR] "+msg, data...)
	}
}

func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= gormLogger.Error:
		sql, rows := fc()
		log.Printf("[ERROR] %v | %s | %d rows | %s", err, elapsed, rows, sql)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.LogLevel >= gormLogger.Warn:
		sql, rows := fc()
		log.Printf("[SLOW SQL] %s | %d rows | %s", elapsed, rows, sql)
	case l.LogLevel >= gormLogger.Info:
		sql, rows := fc()
		log.Printf("[QUERY] %s | %d rows | %s", elapsed, rows, sql)
	}
}

var _ attendance.Store = (*Store)(nil)
