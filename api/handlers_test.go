/*
handlers_test.go - Tests for the HTTP API

Tests for:
- Registration, login and token checks
- Roster management scoped to the caller's store
- Attendance submission, export regeneration and reports
- Admin store management and attendance purge
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance/account"
	"github.com/warp/attendance/attendance"
	"github.com/warp/attendance/attendance/store"
	"github.com/warp/attendance/auth"
	"github.com/warp/attendance/export"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type testEnv struct {
	t          *testing.T
	handler    *Handler
	router     http.Handler
	exportPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	accounts, err := account.NewService(mem, "admin", "admin-secret", account.WithHashCost(bcrypt.MinCost))
	require.NoError(t, err)

	exportPath := filepath.Join(t.TempDir(), "monthly_attendance.xlsx")
	h := NewHandler(mem, accounts, auth.NewTokens([]byte("test-secret"), time.Hour),
		export.New(exportPath), attendance.DefaultRecorderConfig())

	return &testEnv{t: t, handler: h, router: NewRouter(h, []string{"*"}), exportPath: exportPath}
}

func (e *testEnv) request(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// registerStore registers a store and returns its id and a session token.
func (e *testEnv) registerStore(username string) (int64, string) {
	e.t.Helper()
	rec := e.request("POST", "/api/register", "", RegisterRequest{Username: username, Password: "hunter22"})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[StoreDTO](e.t, rec)

	rec = e.request("POST", "/api/login", "", LoginRequest{Username: username, Password: "hunter22"})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	return created.ID, decodeBody[LoginResponse](e.t, rec).Token
}

func (e *testEnv) adminToken() string {
	e.t.Helper()
	rec := e.request("POST", "/api/login", "", LoginRequest{Username: "admin", Password: "admin-secret", LoginType: "admin"})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[LoginResponse](e.t, rec).Token
}

func (e *testEnv) addStaff(token, name, salaryType string, amount any) int64 {
	e.t.Helper()
	rec := e.request("POST", "/api/staff", token, map[string]any{
		"name": name, "salary_type": salaryType, "salary_amount": amount,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[StaffDTO](e.t, rec).ID
}

func readWorkbook(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	return rows
}

// assertWorkbook compares a sheet cell by cell with summary rows.
func assertWorkbook(t *testing.T, sheet [][]string, rows []attendance.SummaryRow) {
	t.Helper()
	require.Len(t, sheet, len(rows)+1)
	assert.Equal(t, attendance.SummaryColumns, sheet[0])

	for i, row := range rows {
		got := sheet[i+1]
		require.Len(t, got, len(attendance.SummaryColumns), "row %d", i)
		for col, v := range row.Values() {
			name := attendance.SummaryColumns[col]
			switch v := v.(type) {
			case string:
				assert.Equal(t, v, got[col], "row %d %s", i, name)
			default:
				expected := decimal.RequireFromString(fmt.Sprint(v))
				actual, err := decimal.NewFromString(got[col])
				require.NoError(t, err, "row %d %s", i, name)
				assert.True(t, expected.Equal(actual), "row %d %s: want %s got %s", i, name, expected, actual)
			}
		}
	}
}

// =============================================================================
// AUTH
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request("GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	_, token := env.registerStore("downtown")
	assert.NotEmpty(t, token)

	rec := env.request("POST", "/api/register", "", RegisterRequest{Username: "DOWNTOWN", Password: "hunter22"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeDuplicateUsername, decodeBody[ErrorResponse](t, rec).Code)

	rec = env.request("POST", "/api/register", "", RegisterRequest{Username: "uptown", Password: "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, CodeValidation, resp.Code)
	assert.Contains(t, resp.Details, "password")

	rec = env.request("POST", "/api/login", "", LoginRequest{Username: "downtown", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeInvalidCredentials, decodeBody[ErrorResponse](t, rec).Code)

	rec = env.request("POST", "/api/login", "", LoginRequest{Username: "downtown", Password: "hunter22", LoginType: "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request("POST", "/api/login", "", LoginRequest{Username: "admin", Password: "admin123", LoginType: "admin"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request("POST", "/api/logout", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_ReturnsStore(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.registerStore("downtown")

	rec := env.request("POST", "/api/login", "", LoginRequest{Username: "downtown", Password: "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[LoginResponse](t, rec)
	assert.Equal(t, "store", resp.Role)
	require.NotNil(t, resp.Store)
	assert.Equal(t, id, resp.Store.ID)
	assert.NotEmpty(t, resp.ExpiresAt)
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t)
	_, storeToken := env.registerStore("downtown")
	adminToken := env.adminToken()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", "GET", "/api/staff", "", http.StatusUnauthorized},
		{"garbage token", "GET", "/api/staff", "garbage", http.StatusUnauthorized},
		{"admin on store route", "GET", "/api/staff", adminToken, http.StatusForbidden},
		{"store on admin route", "GET", "/api/admin/stores", storeToken, http.StatusForbidden},
		{"store on own route", "GET", "/api/staff", storeToken, http.StatusOK},
		{"admin on admin route", "GET", "/api/admin/stores", adminToken, http.StatusOK},
		{"logout without token", "POST", "/api/logout", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want >= http.StatusBadRequest {
				assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Code)
			}
		})
	}
}

// =============================================================================
// STAFF
// =============================================================================

func TestStaff(t *testing.T) {
	env := newTestEnv(t)
	_, downtown := env.registerStore("downtown")
	_, uptown := env.registerStore("uptown")

	alice := env.addStaff(downtown, "Alice", "daily", 500)
	env.addStaff(downtown, "Bob", "HOURLY", "12.50")

	rec := env.request("GET", "/api/staff", downtown, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	staff := decodeBody[[]StaffDTO](t, rec)
	require.Len(t, staff, 2)
	assert.Equal(t, "Alice", staff[0].Name)
	assert.Equal(t, "hourly", staff[1].SalaryType)
	assert.True(t, decimal.RequireFromString("12.5").Equal(staff[1].SalaryAmount))

	rec = env.request("GET", "/api/staff", uptown, nil)
	assert.Empty(t, decodeBody[[]StaffDTO](t, rec), "rosters are per store")

	rec = env.request("DELETE", fmt.Sprintf("/api/staff/%d", alice), uptown, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "cannot remove another store's staff")
	assert.Equal(t, CodeNotFound, decodeBody[ErrorResponse](t, rec).Code)

	rec = env.request("DELETE", "/api/staff/abc", downtown, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request("DELETE", fmt.Sprintf("/api/staff/%d", alice), downtown, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.request("GET", "/api/staff", downtown, nil)
	assert.Len(t, decodeBody[[]StaffDTO](t, rec), 1)
}

func TestStaff_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerStore("downtown")

	for name, body := range map[string]map[string]any{
		"missing name":   {"salary_type": "daily", "salary_amount": 1},
		"bad type":       {"name": "A", "salary_type": "weekly", "salary_amount": 1},
		"zero amount":    {"name": "A", "salary_type": "daily", "salary_amount": 0},
		"missing amount": {"name": "A", "salary_type": "daily"},
		"too precise":    {"name": "A", "salary_type": "daily", "salary_amount": "12.34567"},
		"unknown field":  {"name": "A", "salary_type": "daily", "salary_amount": 1, "extra": true},
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.request("POST", "/api/staff", token, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// ATTENDANCE & REPORTS
// =============================================================================

func TestAttendance_SubmitThenReport(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerStore("downtown")
	alice := env.addStaff(token, "Alice", "daily", 500)
	bob := env.addStaff(token, "Bob", "hourly", 100)
	carol := env.addStaff(token, "Carol", "daily", 400)

	rec := env.request("POST", "/api/attendance?date=2024-03-18", token, SubmitAttendanceRequest{
		Entries: []AttendanceEntryDTO{
			{StaffID: alice, Status: "Present", InTime: "09:20", OutTime: "17:30"},
			{StaffID: bob, Status: "Present", InTime: "09:00", OutTime: "17:30"},
			{StaffID: carol, Status: "Absent"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[RecordResultDTO](t, rec)
	assert.Equal(t, "2024-03-18", result.Date)
	assert.Equal(t, 2, result.Present)
	assert.Equal(t, 1, result.Absent)
	assert.Equal(t, 1, result.Late)

	// Day sheet
	rec = env.request("GET", "/api/attendance?date=2024-03-18", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decodeBody[AttendanceDayDTO](t, rec)
	require.Len(t, day.Staff, 3)
	assert.True(t, day.Staff[0].Recorded)
	assert.True(t, day.Staff[0].Late)
	assert.True(t, decimal.RequireFromString("8.17").Equal(day.Staff[0].HoursWorked))
	assert.Equal(t, "Absent", day.Staff[2].Status)

	rec = env.request("GET", "/api/attendance?date=2024-03-19", token, nil)
	day = decodeBody[AttendanceDayDTO](t, rec)
	assert.False(t, day.Staff[0].Recorded, "nothing recorded on other days")

	// JSON summary
	rec = env.request("GET", "/api/reports/monthly", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeBody[[]SummaryRowDTO](t, rec)
	require.Len(t, rows, 3)
	assert.Equal(t, "Alice", rows[0].Staff)
	assert.True(t, decimal.NewFromInt(500).Equal(rows[0].Salary))
	assert.Equal(t, "Bob", rows[1].Staff)
	assert.True(t, decimal.NewFromInt(850).Equal(rows[1].Salary))
	assert.Equal(t, 1, rows[2].AbsentDays)
	assert.True(t, rows[2].Salary.IsZero())

	// Canonical export was regenerated on submit and holds every row.
	want, err := env.handler.Aggregator.Aggregate(context.Background(), attendance.AllTenants())
	require.NoError(t, err)
	require.Len(t, want, 3)
	data, err := os.ReadFile(env.exportPath)
	require.NoError(t, err)
	assertWorkbook(t, readWorkbook(t, data), want)
}

func TestAttendance_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, downtown := env.registerStore("downtown")
	_, uptown := env.registerStore("uptown")
	alice := env.addStaff(downtown, "Alice", "daily", 500)

	submit := func(token, query string, entries ...AttendanceEntryDTO) *httptest.ResponseRecorder {
		return env.request("POST", "/api/attendance"+query, token, SubmitAttendanceRequest{Entries: entries})
	}

	rec := submit(downtown, "?date=2024-03-18", AttendanceEntryDTO{StaffID: alice, Status: "Present", InTime: "25:00", OutTime: "17:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = submit(downtown, "?date=2024-03-18", AttendanceEntryDTO{StaffID: alice, Status: "Sick"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = submit(downtown, "?date=18/03/2024", AttendanceEntryDTO{StaffID: alice, Status: "Absent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = submit(uptown, "?date=2024-03-18", AttendanceEntryDTO{StaffID: alice, Status: "Absent"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "staff of another store")

	_, err := os.Stat(env.exportPath)
	assert.True(t, os.IsNotExist(err), "failed submissions do not export")

	rec = env.request("GET", "/api/reports/monthly", downtown, nil)
	assert.Empty(t, decodeBody[[]SummaryRowDTO](t, rec), "nothing was committed")
}

func TestDownloadMonthlyReport_Scoped(t *testing.T) {
	env := newTestEnv(t)
	_, downtown := env.registerStore("downtown")
	_, uptown := env.registerStore("uptown")

	for _, token := range []string{downtown, uptown} {
		id := env.addStaff(token, "Alice", "daily", 500)
		rec := env.request("POST", "/api/attendance?date=2024-03-18", token, SubmitAttendanceRequest{
			Entries: []AttendanceEntryDTO{{StaffID: id, Status: "Present", InTime: "09:00", OutTime: "17:00"}},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.request("GET", "/api/reports/monthly.xlsx", downtown, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "monthly_attendance_downtown.xlsx")
	sheet := readWorkbook(t, rec.Body.Bytes())
	require.Len(t, sheet, 2)
	assert.Equal(t, "downtown", sheet[1][0])

	rec = env.request("GET", "/api/reports/monthly.xlsx", env.adminToken(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sheet = readWorkbook(t, rec.Body.Bytes())
	require.Len(t, sheet, 3)
	assert.Equal(t, "downtown", sheet[1][0])
	assert.Equal(t, "uptown", sheet[2][0])
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAdmin_ToggleStore(t *testing.T) {
	env := newTestEnv(t)
	id, token := env.registerStore("downtown")
	admin := env.adminToken()

	rec := env.request("POST", fmt.Sprintf("/api/admin/stores/%d/toggle", id), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[StoreDTO](t, rec).Active)

	rec = env.request("GET", "/api/staff", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "existing session is blocked")
	assert.Equal(t, CodeStoreDisabled, decodeBody[ErrorResponse](t, rec).Code)

	rec = env.request("POST", "/api/login", "", LoginRequest{Username: "downtown", Password: "hunter22"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request("POST", fmt.Sprintf("/api/admin/stores/%d/toggle", id), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.request("GET", "/api/staff", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request("POST", "/api/admin/stores/999/toggle", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_ListAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.registerStore("downtown")
	env.registerStore("uptown")
	admin := env.adminToken()

	rec := env.request("GET", "/api/admin/stores", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stores := decodeBody[[]StoreDTO](t, rec)
	require.Len(t, stores, 2)
	assert.Equal(t, "downtown", stores[0].Username)

	rec = env.request("POST", fmt.Sprintf("/api/admin/stores/%d/password", id), admin, ResetPasswordRequest{Password: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request("POST", fmt.Sprintf("/api/admin/stores/%d/password", id), admin, ResetPasswordRequest{Password: "brand-new"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request("POST", "/api/login", "", LoginRequest{Username: "downtown", Password: "brand-new"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmin_ResetAttendanceAndExport(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerStore("downtown")
	alice := env.addStaff(token, "Alice", "daily", 500)
	admin := env.adminToken()

	rec := env.request("POST", "/api/attendance?date=2024-03-18", token, SubmitAttendanceRequest{
		Entries: []AttendanceEntryDTO{{StaffID: alice, Status: "Present", InTime: "09:00", OutTime: "17:00"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request("GET", "/api/admin/export", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, readWorkbook(t, rec.Body.Bytes()), 2)

	rec = env.request("POST", "/api/admin/attendance/reset", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := os.Stat(env.exportPath)
	assert.True(t, os.IsNotExist(err), "artifact removed")

	rec = env.request("GET", "/api/reports/monthly", token, nil)
	assert.Empty(t, decodeBody[[]SummaryRowDTO](t, rec))

	// Download rebuilds a header-only artifact.
	rec = env.request("GET", "/api/admin/export", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, [][]string{attendance.SummaryColumns}, readWorkbook(t, rec.Body.Bytes()))
}

func TestAdmin_ResetAttendance_KeepsRecordsWhenExportRemovalFails(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerStore("downtown")
	alice := env.addStaff(token, "Alice", "daily", 500)
	admin := env.adminToken()

	rec := env.request("POST", "/api/attendance?date=2024-03-18", token, SubmitAttendanceRequest{
		Entries: []AttendanceEntryDTO{{StaffID: alice, Status: "Present", InTime: "09:00", OutTime: "17:00"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// A non-empty directory at the artifact path cannot be removed.
	require.NoError(t, os.Remove(env.exportPath))
	require.NoError(t, os.Mkdir(env.exportPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.exportPath, "pin"), []byte("x"), 0o644))

	rec = env.request("POST", "/api/admin/attendance/reset", admin, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeExport, decodeBody[ErrorResponse](t, rec).Code)

	rec = env.request("GET", "/api/reports/monthly", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]SummaryRowDTO](t, rec), 1, "records survive a failed reset")
}
