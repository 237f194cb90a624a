/*
Package account manages stores, their rosters and the administrator.

PURPOSE:
  Everything a store or the admin does that is not attendance itself:
  registration, login, the staff roster, and the admin's store management.

OPERATIONS:
  Public:  Register, LoginStore, LoginAdmin
  Store:   AddStaff, ListStaff, RemoveStaff (scoped to the caller's tenant)
  Admin:   ListStores, ToggleStore, ResetPassword (require an admin Principal)

PASSWORDS:
  bcrypt hashes only. The admin password comes from configuration and is
  hashed once at startup.

SEE ALSO:
  - auth/auth.go: Principal and tokens
  - attendance/store.go: Directory
*/
package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance/attendance"
	"github.com/warp/attendance/auth"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 6
	MaxUsernameLength = 64

	// Salary amounts must fit numeric(14,4).
	MaxSalaryScale  = 4
	maxSalaryDigits = 10
)

var maxSalary = decimal.New(1, maxSalaryDigits)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInactiveStore is returned when a disabled store tries to log in.
	ErrInactiveStore = errors.New("store is disabled")
)

// Service implements account operations over a Directory.
type Service struct {
	dir       attendance.Directory
	adminUser string
	adminHash []byte
	cost      int
}

type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService hashes the admin password and returns a ready service.
func NewService(dir attendance.Directory, adminUser, adminPassword string, opts ...Option) (*Service, error) {
	s := &Service{dir: dir, adminUser: adminUser, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), s.cost)
	if err != nil {
		return nil, err
	}
	s.adminHash = hash
	return s, nil
}

// =============================================================================
// REGISTRATION & LOGIN
// =============================================================================

// Register creates a new, active store.
func (s *Service) Register(ctx context.Context, username, password string) (attendance.Tenant, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > MaxUsernameLength {
		return attendance.Tenant{}, &attendance.ValidationError{Field: "username", Value: username, Reason: "must be 1-64 characters"}
	}
	if strings.EqualFold(username, s.adminUser) {
		return attendance.Tenant{}, attendance.ErrDuplicateUsername
	}
	hash, err := s.hash(password)
	if err != nil {
		return attendance.Tenant{}, err
	}
	return s.dir.CreateTenant(ctx, username, hash)
}

// LoginStore checks a store's credentials. Disabled stores cannot log in.
func (s *Service) LoginStore(ctx context.Context, username, password string) (attendance.Tenant, error) {
	tenant, err := s.dir.GetTenantByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if attendance.IsNotFound(err) {
			return attendance.Tenant{}, ErrInvalidCredentials
		}
		return attendance.Tenant{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(tenant.PasswordHash), []byte(password)) != nil {
		return attendance.Tenant{}, ErrInvalidCredentials
	}
	if !tenant.Active {
		return attendance.Tenant{}, ErrInactiveStore
	}
	return tenant, nil
}

// LoginAdmin checks the configured admin credentials.
func (s *Service) LoginAdmin(username, password string) (auth.Principal, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUser)) == 1
	passOK := bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)) == nil
	if !userOK || !passOK {
		return auth.Principal{}, ErrInvalidCredentials
	}
	return auth.AdminPrincipal(s.adminUser), nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", &attendance.ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", &attendance.ValidationError{Field: "password", Reason: err.Error()}
	}
	return string(hash), nil
}

// =============================================================================
// ROSTER
// =============================================================================

// NewStaff is the raw staff form.
type NewStaff struct {
	Name         string
	Type         string
	SalaryType   string
	SalaryAmount string
}

// AddStaff adds a staff member to the caller's store.
func (s *Service) AddStaff(ctx context.Context, p auth.Principal, in NewStaff) (attendance.StaffMember, error) {
	if !p.IsStore() {
		return attendance.StaffMember{}, auth.ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return attendance.StaffMember{}, &attendance.ValidationError{Field: "name", Reason: "required"}
	}
	salaryType, err := attendance.ParseSalaryType(in.SalaryType)
	if err != nil {
		return attendance.StaffMember{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(in.SalaryAmount))
	if err != nil || !amount.IsPositive() {
		return attendance.StaffMember{}, &attendance.ValidationError{
			Field: "salary_amount", Value: in.SalaryAmount, Reason: "must be a positive number",
		}
	}
	if !amount.Equal(amount.Truncate(MaxSalaryScale)) {
		return attendance.StaffMember{}, &attendance.ValidationError{
			Field: "salary_amount", Value: in.SalaryAmount, Reason: "must have at most 4 decimal places",
		}
	}
	if amount.GreaterThanOrEqual(maxSalary) {
		return attendance.StaffMember{}, &attendance.ValidationError{
			Field: "salary_amount", Value: in.SalaryAmount, Reason: "is too large",
		}
	}
	return s.dir.CreateStaff(ctx, attendance.StaffMember{
		TenantID:     p.TenantID,
		Name:         name,
		Type:         strings.TrimSpace(in.Type),
		SalaryType:   salaryType,
		SalaryAmount: amount,
	})
}

func (s *Service) ListStaff(ctx context.Context, p auth.Principal) ([]attendance.StaffMember, error) {
	if !p.IsStore() {
		return nil, auth.ErrForbidden
	}
	return s.dir.ListStaff(ctx, p.TenantID)
}

// RemoveStaff deletes a staff member of the caller's store. Staff of other
// stores are reported as not found.
func (s *Service) RemoveStaff(ctx context.Context, p auth.Principal, id attendance.StaffID) error {
	if !p.IsStore() {
		return auth.ErrForbidden
	}
	member, err := s.dir.GetStaff(ctx, id)
	if err != nil {
		return err
	}
	if member.TenantID != p.TenantID {
		return attendance.StaffNotFound(id)
	}
	return s.dir.DeleteStaff(ctx, id)
}

// =============================================================================
// ADMIN
// =============================================================================

func (s *Service) ListStores(ctx context.Context, p auth.Principal) ([]attendance.Tenant, error) {
	if err := p.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.dir.ListTenants(ctx)
}

// ToggleStore flips a store between enabled and disabled and returns the
// updated store.
func (s *Service) ToggleStore(ctx context.Context, p auth.Principal, id attendance.TenantID) (attendance.Tenant, error) {
	if err := p.RequireAdmin(); err != nil {
		return attendance.Tenant{}, err
	}
	tenant, err := s.dir.GetTenant(ctx, id)
	if err != nil {
		return attendance.Tenant{}, err
	}
	tenant.Active = !tenant.Active
	if err := s.dir.SetTenantActive(ctx, id, tenant.Active); err != nil {
		return attendance.Tenant{}, err
	}
	return tenant, nil
}

func (s *Service) ResetPassword(ctx context.Context, p auth.Principal, id attendance.TenantID, password string) error {
	if err := p.RequireAdmin(); err != nil {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.dir.SetTenantPassword(ctx, id, hash)
}
