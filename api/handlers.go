/*
handlers.go - HTTP API handlers for the attendance system

PURPOSE:
  Exposes registration, the staff roster, daily attendance, the monthly
  payroll summary and admin operations via a JSON API. Handles HTTP
  request/response and delegates to the attendance and account packages.

ENDPOINTS:
  Public:
    POST   /api/register                     Register a store
    POST   /api/login                        Store or admin login -> token

  Store:
    GET    /api/staff                        List roster
    POST   /api/staff                        Add staff member
    DELETE /api/staff/{id}                   Remove staff member
    GET    /api/attendance?date=YYYY-MM-DD   Roster with that day's records
    POST   /api/attendance?date=YYYY-MM-DD   Submit a day, regenerate export
    GET    /api/reports/monthly              Own monthly summary

  Store or admin:
    POST   /api/logout                       Stateless acknowledgement
    GET    /api/reports/monthly.xlsx         Workbook (own store or all)

  Admin:
    GET    /api/admin/stores                 List stores
    POST   /api/admin/stores/{id}/toggle     Enable/disable store
    POST   /api/admin/stores/{id}/password   Reset store password
    POST   /api/admin/attendance/reset       Purge attendance and export
    GET    /api/admin/export                 Download the canonical export

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with:
  - 400: Validation errors, invalid input
  - 401: Missing/invalid token, bad credentials
  - 403: Wrong role, disabled store
  - 404: Unknown store or staff member
  - 409: Username taken
  - 500: Storage and export failures

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/attendance/account"
	"github.com/warp/attendance/attendance"
	"github.com/warp/attendance/auth"
	"github.com/warp/attendance/export"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      attendance.Store
	Accounts   *account.Service
	Recorder   *attendance.Recorder
	Aggregator *attendance.Aggregator
	Exporter   *export.Exporter
	Tokens     *auth.Tokens

	validate *validator.Validate

	// exportMu serializes aggregate+write of the canonical artifact so a
	// slower regeneration cannot overwrite a newer one.
	exportMu sync.Mutex
}

// NewHandler wires the core services around a single store.
func NewHandler(store attendance.Store, accounts *account.Service, tokens *auth.Tokens, exporter *export.Exporter, cfg attendance.RecorderConfig) *Handler {
	return &Handler{
		Store:      store,
		Accounts:   accounts,
		Recorder:   attendance.NewRecorder(store, store, cfg),
		Aggregator: attendance.NewAggregator(store, store),
		Exporter:   exporter,
		Tokens:     tokens,
		validate:   newValidator(),
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Register creates a store account.
// POST /api/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tenant, err := h.Accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStoreDTO(tenant))
}

// Login issues a session token for a store or the admin.
// POST /api/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		p     auth.Principal
		store *StoreDTO
	)
	if req.LoginType == string(auth.RoleAdmin) {
		admin, err := h.Accounts.LoginAdmin(req.Username, req.Password)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		p = admin
	} else {
		tenant, err := h.Accounts.LoginStore(r.Context(), req.Username, req.Password)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		p = auth.StorePrincipal(tenant)
		dto := toStoreDTO(tenant)
		store = &dto
	}

	token, expires, err := h.Tokens.Issue(p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
		Role:      string(p.Role),
		Store:     store,
	})
}

// Logout acknowledges a logout. Tokens are stateless; the client drops it.
// POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "logged out"})
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// ListStaff returns the caller's roster.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.Accounts.ListStaff(r.Context(), principal(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]StaffDTO, len(staff))
	for i, s := range staff {
		dtos[i] = toStaffDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStaff adds a staff member to the caller's store.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req CreateStaffRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	member, err := h.Accounts.AddStaff(r.Context(), principal(r), account.NewStaff{
		Name:         req.Name,
		Type:         req.Type,
		SalaryType:   req.SalaryType,
		SalaryAmount: req.SalaryAmount.String(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStaffDTO(member))
}

// DeleteStaff removes a staff member owned by the caller.
func (h *Handler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid staff id", err)
		return
	}

	if err := h.Accounts.RemoveStaff(r.Context(), principal(r), attendance.StaffID(id)); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// GetAttendance returns the roster joined with records for a date.
// GET /api/attendance?date=YYYY-MM-DD (default today)
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)

	date, err := dateParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	staff, err := h.Accounts.ListStaff(ctx, p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	records, err := h.Store.RecordsOn(ctx, p.TenantID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	byStaff := make(map[attendance.StaffID]attendance.Record, len(records))
	for _, rec := range records {
		byStaff[rec.StaffID] = rec
	}

	rows := make([]AttendanceRowDTO, len(staff))
	for i, s := range staff {
		row := AttendanceRowDTO{StaffID: int64(s.ID), Name: s.Name, Type: s.Type}
		if rec, ok := byStaff[s.ID]; ok {
			row.Recorded = true
			row.Status = string(rec.Status)
			row.InTime = clockString(rec.InTime)
			row.OutTime = clockString(rec.OutTime)
			row.HoursWorked = rec.HoursWorked
			row.Late = rec.Late
		}
		rows[i] = row
	}

	writeJSON(w, http.StatusOK, AttendanceDayDTO{Date: attendance.FormatDate(date), Staff: rows})
}

// SubmitAttendance records a day for the caller's store and regenerates
// the canonical export.
// POST /api/attendance?date=YYYY-MM-DD (default today)
func (h *Handler) SubmitAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)

	date, err := dateParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req SubmitAttendanceRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entries := make([]attendance.Entry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = attendance.Entry{
			StaffID: attendance.StaffID(e.StaffID),
			Status:  e.Status,
			InTime:  e.InTime,
			OutTime: e.OutTime,
		}
	}

	result, err := h.Recorder.RecordDay(ctx, p.TenantID, date, entries)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.regenerateExport(ctx); err != nil {
		log.Printf("export after attendance for store %d: %v", p.TenantID, err)
		writeDomainError(w, err)
		return
	}

	dto := RecordResultDTO{
		Date:    attendance.FormatDate(result.Date),
		Present: result.Present,
		Absent:  result.Absent,
		Late:    result.Late,
		Records: make([]RecordDTO, len(result.Records)),
	}
	for i, rec := range result.Records {
		dto.Records[i] = toRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dto)
}

// regenerateExport rebuilds the canonical artifact from all stores.
func (h *Handler) regenerateExport(ctx context.Context) error {
	h.exportMu.Lock()
	defer h.exportMu.Unlock()

	rows, err := h.Aggregator.Aggregate(ctx, attendance.AllTenants())
	if err != nil {
		return err
	}
	return h.Exporter.Write(rows)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// MonthlyReport returns the caller's monthly summary rows.
// GET /api/reports/monthly
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Aggregator.Aggregate(r.Context(), attendance.OneTenant(principal(r).TenantID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryRowDTOs(rows))
}

// DownloadMonthlyReport streams a freshly built workbook. Stores get their
// own rows, the admin gets every store.
// GET /api/reports/monthly.xlsx
func (h *Handler) DownloadMonthlyReport(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	scope, filename := attendance.AllTenants(), "monthly_attendance.xlsx"
	if p.IsStore() {
		scope = attendance.OneTenant(p.TenantID)
		filename = fmt.Sprintf("monthly_attendance_%s.xlsx", p.Username)
	}

	rows, err := h.Aggregator.Aggregate(r.Context(), scope)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.Exporter.WriteTo(&buf, rows); err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListStores returns every registered store.
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Accounts.ListStores(r.Context(), principal(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]StoreDTO, len(tenants))
	for i, t := range tenants {
		dtos[i] = toStoreDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ToggleStore enables or disables a store.
// POST /api/admin/stores/{id}/toggle
func (h *Handler) ToggleStore(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid store id", err)
		return
	}

	tenant, err := h.Accounts.ToggleStore(r.Context(), principal(r), attendance.TenantID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoreDTO(tenant))
}

// ResetStorePassword sets a new password for a store.
// POST /api/admin/stores/{id}/password
func (h *Handler) ResetStorePassword(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid store id", err)
		return
	}

	var req ResetPasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Accounts.ResetPassword(r.Context(), principal(r), attendance.TenantID(id), req.Password); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "password updated"})
}

// ResetAttendance deletes all attendance records and the export artifact.
// The artifact goes first: a missing artifact is rebuilt on download, a
// stale one would outlive the records it was built from.
// POST /api/admin/attendance/reset
func (h *Handler) ResetAttendance(w http.ResponseWriter, r *http.Request) {
	h.exportMu.Lock()
	defer h.exportMu.Unlock()

	if err := h.Exporter.Remove(); err != nil {
		log.Printf("attendance reset: remove export failed, records kept: %v", err)
		writeDomainError(w, err)
		return
	}
	if err := h.Store.PurgeRecords(r.Context()); err != nil {
		log.Printf("attendance reset: purge failed after export removal: %v", err)
		writeDomainError(w, err)
		return
	}

	log.Printf("attendance purged by %s", principal(r).Username)
	writeJSON(w, http.StatusOK, StatusResponse{Status: "attendance reset"})
}

// DownloadExport serves the canonical artifact, building it first if it
// does not exist yet.
// GET /api/admin/export
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	f, err := h.Exporter.Open()
	if attendance.IsNotFound(err) {
		if err := h.regenerateExport(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		f, err = h.Exporter.Open()
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read export", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(h.Exporter.Path())))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// =============================================================================
// HELPERS
// =============================================================================

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id must be a positive integer")
	}
	return id, nil
}

// dateParam reads ?date=, defaulting to today.
func dateParam(r *http.Request) (time.Time, error) {
	if s := r.URL.Query().Get("date"); s != "" {
		return attendance.ParseDate(s)
	}
	return attendance.Today(), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeCodedError(w, status, statusCode(status), message, err)
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusCode is the fallback machine-readable code for a bare status.
func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	}
	return CodeInternal
}

// writeDomainError maps core errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		writeCodedError(w, http.StatusBadRequest, CodeValidation, "Validation failed", err)
	case errors.Is(err, attendance.ErrNotFound):
		writeCodedError(w, http.StatusNotFound, CodeNotFound, "Not found", err)
	case errors.Is(err, attendance.ErrDuplicateUsername):
		writeCodedError(w, http.StatusConflict, CodeDuplicateUsername, "Username already taken", err)
	case errors.Is(err, account.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeCodedError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials", err)
	case errors.Is(err, account.ErrInactiveStore):
		writeCodedError(w, http.StatusForbidden, CodeStoreDisabled, "Store is disabled", err)
	case errors.Is(err, auth.ErrForbidden):
		writeCodedError(w, http.StatusForbidden, CodeForbidden, "Forbidden", err)
	case errors.Is(err, attendance.ErrExport):
		log.Printf("export error: %v", err)
		writeCodedError(w, http.StatusInternalServerError, CodeExport, "Export failed", err)
	case errors.Is(err, attendance.ErrStorage):
		log.Printf("storage error: %v", err)
		writeCodedError(w, http.StatusInternalServerError, CodeStorage, "Storage failure", err)
	default:
		log.Printf("internal error: %v", err)
		writeCodedError(w, http.StatusInternalServerError, CodeInternal, "Internal error", err)
	}
}
