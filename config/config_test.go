package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance/attendance"
)

// chdir moves into an empty directory so no stray .env is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "attendance.db", cfg.Database.DSN)
	assert.Equal(t, "monthly_attendance.xlsx", cfg.ExportPath)
	assert.Equal(t, "09:15", cfg.Attendance.LateAfter)
	assert.Equal(t, "cross_midnight", cfg.Attendance.ShiftPolicy)
	assert.Equal(t, "admin", cfg.Auth.AdminUsername)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "attendance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
database:
  driver: postgres
  dsn: postgres://localhost/attendance
attendance:
  late_after: "09:30"
  shift_policy: clamp
auth:
  token_ttl: 2h
cors_origins: [https://example.com]
`), 0o644))

	t.Setenv("ATTENDANCE_PORT", "9100")
	t.Setenv("ATTENDANCE_SHIFT_POLICY", "reject")
	t.Setenv("ATTENDANCE_CORS_ORIGINS", "https://a.test, https://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "env beats yaml")
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/attendance", cfg.Database.DSN)
	assert.Equal(t, "09:30", cfg.Attendance.LateAfter)
	assert.Equal(t, "reject", cfg.Attendance.ShiftPolicy)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("ATTENDANCE_EXPORT_PATH=/tmp/report.xlsx\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("ATTENDANCE_EXPORT_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/report.xlsx", cfg.ExportPath)
}

func TestLoad_BadValues(t *testing.T) {
	chdir(t)

	t.Setenv("ATTENDANCE_PORT", "eighty")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("ATTENDANCE_PORT", "8080")
	t.Setenv("ATTENDANCE_TOKEN_TTL", "forever")
	_, err = Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"port":         func(c *Config) { c.Port = 0 },
		"driver":       func(c *Config) { c.Database.Driver = "mysql" },
		"dsn":          func(c *Config) { c.Database.DSN = "" },
		"export path":  func(c *Config) { c.ExportPath = "" },
		"late after":   func(c *Config) { c.Attendance.LateAfter = "9am" },
		"shift policy": func(c *Config) { c.Attendance.ShiftPolicy = "wrap" },
		"ttl":          func(c *Config) { c.Auth.TokenTTL = 0 },
		"admin":        func(c *Config) { c.Auth.AdminUsername = " " },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_GeneratesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = DriverMemory
	cfg.Database.DSN = ""

	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Auth.JWTSecret, 64)
	assert.Len(t, cfg.Auth.AdminPassword, 16)

	cfg.Auth.JWTSecret = "kept"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "kept", cfg.Auth.JWTSecret)
}

func TestRecorderConfig(t *testing.T) {
	cfg := Default()
	cfg.Attendance.LateAfter = "08:45"
	cfg.Attendance.ShiftPolicy = "clamp"

	rc := cfg.RecorderConfig()
	assert.Equal(t, attendance.MustClock("08:45"), rc.LateAfter)
	assert.Equal(t, attendance.ShiftClamp, rc.ShiftPolicy)
	assert.Equal(t, ":8080", cfg.Addr())
}
