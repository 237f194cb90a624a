/*
config.go - Server configuration

PURPOSE:
  Collects everything the server needs at startup into one Config value.

LOAD ORDER (later wins):
  1. Built-in defaults
  2. .env file in the working directory, if present
  3. YAML file given with -config
  4. ATTENDANCE_* environment variables
  5. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  ATTENDANCE_PORT            HTTP port
  ATTENDANCE_DB_DRIVER       sqlite | postgres | memory
  ATTENDANCE_DB_DSN          SQLite path or Postgres DSN
  ATTENDANCE_EXPORT_PATH     Canonical workbook path
  ATTENDANCE_LATE_AFTER      Lateness cutoff, HH:MM
  ATTENDANCE_SHIFT_POLICY    cross_midnight | reject | clamp
  ATTENDANCE_JWT_SECRET      Token signing secret
  ATTENDANCE_ADMIN_USERNAME  Admin login
  ATTENDANCE_ADMIN_PASSWORD  Admin password
  ATTENDANCE_TOKEN_TTL       Session lifetime (e.g. 12h)
  ATTENDANCE_CORS_ORIGINS    Comma separated origins

SEE ALSO:
  - cmd/server/main.go: Flags and startup
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/attendance/attendance"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port        int              `yaml:"port"`
	Database    DatabaseConfig   `yaml:"database"`
	ExportPath  string           `yaml:"export_path"`
	Attendance  AttendanceConfig `yaml:"attendance"`
	Auth        AuthConfig       `yaml:"auth"`
	CORSOrigins []string         `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type AttendanceConfig struct {
	LateAfter   string `yaml:"late_after"`
	ShiftPolicy string `yaml:"shift_policy"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	AdminUsername string        `yaml:"admin_username"`
	AdminPassword string        `yaml:"admin_password"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port: 8080,
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "attendance.db",
		},
		ExportPath: "monthly_attendance.xlsx",
		Attendance: AttendanceConfig{
			LateAfter:   attendance.DefaultLateAfter,
			ShiftPolicy: string(attendance.ShiftCrossMidnight),
		},
		Auth: AuthConfig{
			AdminUsername: "admin",
			TokenTTL:      12 * time.Hour,
		},
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Load builds a Config from defaults, .env, the optional YAML file at path
// and the environment. It does not validate.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("ATTENDANCE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ATTENDANCE_PORT: %w", err)
		}
		c.Port = port
	}
	if v, ok := lookup("ATTENDANCE_TOKEN_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ATTENDANCE_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = ttl
	}
	if v, ok := lookup("ATTENDANCE_CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}

	setString(&c.Database.Driver, "ATTENDANCE_DB_DRIVER")
	setString(&c.Database.DSN, "ATTENDANCE_DB_DSN")
	setString(&c.ExportPath, "ATTENDANCE_EXPORT_PATH")
	setString(&c.Attendance.LateAfter, "ATTENDANCE_LATE_AFTER")
	setString(&c.Attendance.ShiftPolicy, "ATTENDANCE_SHIFT_POLICY")
	setString(&c.Auth.JWTSecret, "ATTENDANCE_JWT_SECRET")
	setString(&c.Auth.AdminUsername, "ATTENDANCE_ADMIN_USERNAME")
	setString(&c.Auth.AdminPassword, "ATTENDANCE_ADMIN_PASSWORD")
	return nil
}

// Validate checks every field and fills in generated secrets.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for driver %q", c.Database.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.ExportPath == "" {
		return errors.New("export path is required")
	}
	if _, err := attendance.ParseClockTime(c.Attendance.LateAfter); err != nil {
		return fmt.Errorf("late_after: %w", err)
	}
	if _, err := attendance.ParseShiftPolicy(c.Attendance.ShiftPolicy); err != nil {
		return fmt.Errorf("shift_policy: %w", err)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if strings.TrimSpace(c.Auth.AdminUsername) == "" {
		return errors.New("admin username is required")
	}

	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = randomSecret()
		log.Printf("Warning: ATTENDANCE_JWT_SECRET not set, using a random secret (sessions end on restart)")
	}
	if c.Auth.AdminPassword == "" {
		c.Auth.AdminPassword = randomSecret()[:16]
		log.Printf("Warning: ATTENDANCE_ADMIN_PASSWORD not set, generated admin password: %s", c.Auth.AdminPassword)
	}
	return nil
}

// RecorderConfig converts the attendance section. Call after Validate.
func (c *Config) RecorderConfig() attendance.RecorderConfig {
	cfg := attendance.DefaultRecorderConfig()
	if late, err := attendance.ParseClockTime(c.Attendance.LateAfter); err == nil {
		cfg.LateAfter = late
	}
	if policy, err := attendance.ParseShiftPolicy(c.Attendance.ShiftPolicy); err == nil {
		cfg.ShiftPolicy = policy
	}
	return cfg
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =============================================================================
// HELPERS
// =============================================================================

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return hex.EncodeToString(b)
}
