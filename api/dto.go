package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/attendance/attendance"
)

// =============================================================================
// AUTH DTOs
// =============================================================================

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest logs in a store (default) or the admin.
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	LoginType string `json:"login_type" validate:"omitempty,oneof=store admin"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt string    `json:"expires_at"`
	Role      string    `json:"role"`
	Store     *StoreDTO `json:"store,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// =============================================================================
// STORE & STAFF DTOs
// =============================================================================

type StoreDTO struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

type StaffDTO struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type,omitempty"`
	SalaryType   string          `json:"salary_type"`
	SalaryAmount decimal.Decimal `json:"salary_amount"`
	CreatedAt    string          `json:"created_at"`
}

// CreateStaffRequest accepts salary_amount as a JSON number or string.
type CreateStaffRequest struct {
	Name         string          `json:"name" validate:"required,max=128"`
	Type         string          `json:"type" validate:"max=64"`
	SalaryType   string          `json:"salary_type" validate:"required"`
	SalaryAmount decimal.Decimal `json:"salary_amount"`
}

// =============================================================================
// ATTENDANCE DTOs
// =============================================================================

type AttendanceEntryDTO struct {
	StaffID int64  `json:"staff_id" validate:"required"`
	Status  string `json:"status"`
	InTime  string `json:"in_time"`
	OutTime string `json:"out_time"`
}

type SubmitAttendanceRequest struct {
	Entries []AttendanceEntryDTO `json:"entries" validate:"dive"`
}

// AttendanceRowDTO is one roster line of the attendance sheet for a date.
// Recorded is false when nothing was submitted for the staff member yet.
type AttendanceRowDTO struct {
	StaffID     int64           `json:"staff_id"`
	Name        string          `json:"name"`
	Type        string          `json:"type,omitempty"`
	Recorded    bool            `json:"recorded"`
	Status      string          `json:"status,omitempty"`
	InTime      string          `json:"in_time,omitempty"`
	OutTime     string          `json:"out_time,omitempty"`
	HoursWorked decimal.Decimal `json:"hours_worked"`
	Late        bool            `json:"late"`
}

type AttendanceDayDTO struct {
	Date  string             `json:"date"`
	Staff []AttendanceRowDTO `json:"staff"`
}

type RecordDTO struct {
	StaffID     int64           `json:"staff_id"`
	Date        string          `json:"date"`
	Status      string          `json:"status"`
	InTime      string          `json:"in_time,omitempty"`
	OutTime     string          `json:"out_time,omitempty"`
	HoursWorked decimal.Decimal `json:"hours_worked"`
	Late        bool            `json:"late"`
}

type RecordResultDTO struct {
	Date    string      `json:"date"`
	Present int         `json:"present"`
	Absent  int         `json:"absent"`
	Late    int         `json:"late"`
	Records []RecordDTO `json:"records"`
}

type SummaryRowDTO struct {
	Store       string          `json:"store"`
	Staff       string          `json:"staff"`
	Month       string          `json:"month"`
	PresentDays int             `json:"present_days"`
	AbsentDays  int             `json:"absent_days"`
	TotalHours  decimal.Decimal `json:"total_hours"`
	TotalDays   int             `json:"total_days"`
	Salary      decimal.Decimal `json:"salary"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest         = "bad_request"
	CodeValidation         = "validation"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"
	CodeForbidden          = "forbidden"
	CodeStoreDisabled      = "store_disabled"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeDuplicateUsername  = "duplicate_username"
	CodeExport             = "export_failed"
	CodeStorage            = "storage_failure"
	CodeInternal           = "internal"
)

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toStoreDTO(t attendance.Tenant) StoreDTO {
	return StoreDTO{
		ID:        int64(t.ID),
		Username:  t.Username,
		Active:    t.Active,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

func toStaffDTO(s attendance.StaffMember) StaffDTO {
	return StaffDTO{
		ID:           int64(s.ID),
		Name:         s.Name,
		Type:         s.Type,
		SalaryType:   string(s.SalaryType),
		SalaryAmount: s.SalaryAmount,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
}

func toRecordDTO(r attendance.Record) RecordDTO {
	return RecordDTO{
		StaffID:     int64(r.StaffID),
		Date:        attendance.FormatDate(r.Date),
		Status:      string(r.Status),
		InTime:      clockString(r.InTime),
		OutTime:     clockString(r.OutTime),
		HoursWorked: r.HoursWorked,
		Late:        r.Late,
	}
}

func toSummaryRowDTOs(rows []attendance.SummaryRow) []SummaryRowDTO {
	dtos := make([]SummaryRowDTO, len(rows))
	for i, r := range rows {
		dtos[i] = SummaryRowDTO{
			Store:       r.Store,
			Staff:       r.Staff,
			Month:       r.Month,
			PresentDays: r.PresentDays,
			AbsentDays:  r.AbsentDays,
			TotalHours:  r.TotalHours,
			TotalDays:   r.TotalDays,
			Salary:      r.Salary,
		}
	}
	return dtos
}

func clockString(c *attendance.ClockTime) string {
	if c == nil {
		return ""
	}
	return c.String()
}
