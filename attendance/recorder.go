/*
recorder.go - Recording one day of attendance for a tenant

PURPOSE:
  Accepts a day's raw submissions (status + optional clock times), derives
  hours worked and lateness, and upserts one record per staff member.

FLOW:
  1. Resolve the tenant and its roster
  2. Validate every entry (ownership, status, clock times, duplicates)
  3. Derive HoursWorked and Late
  4. UpsertRecords() the whole batch atomically

  Nothing is written unless every entry validates.

DERIVED FIELDS:
  HoursWorked: only for Present with both times; round(seconds/3600, 2).
               out < in is resolved by the configured ShiftPolicy.
  Late:        Present, in-time given, and in-time after the cutoff.

SEE ALSO:
  - time.go: ClockTime, WorkedHours, ShiftPolicy
  - payroll.go: consumes the records written here
*/
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLateAfter is the arrival cutoff used when none is configured.
const DefaultLateAfter = "09:15"

// RecorderConfig holds the business rules that vary per deployment.
type RecorderConfig struct {
	LateAfter   ClockTime
	ShiftPolicy ShiftPolicy
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		LateAfter:   MustClock(DefaultLateAfter),
		ShiftPolicy: ShiftCrossMidnight,
	}
}

// Entry is one staff member's raw submission. Empty strings mean "not
// given".
type Entry struct {
	StaffID StaffID
	Status  string
	InTime  string
	OutTime string
}

// RecordResult summarizes a committed submission.
type RecordResult struct {
	TenantID TenantID
	Date     time.Time
	Records  []Record
	Present  int
	Absent   int
	Late     int
}

// Recorder writes attendance.
type Recorder struct {
	dir   Directory
	store AttendanceStore
	cfg   RecorderConfig
}

func NewRecorder(dir Directory, store AttendanceStore, cfg RecorderConfig) *Recorder {
	return &Recorder{dir: dir, store: store, cfg: cfg}
}

// RecordDay records attendance for tenantID on date.
func (r *Recorder) RecordDay(ctx context.Context, tenantID TenantID, date time.Time, entries []Entry) (RecordResult, error) {
	date = DateOf(date)

	if _, err := r.dir.GetTenant(ctx, tenantID); err != nil {
		return RecordResult{}, storageErr("get tenant", err)
	}
	roster, err := r.dir.ListStaff(ctx, tenantID)
	if err != nil {
		return RecordResult{}, storageErr("list staff", err)
	}
	owned := make(map[StaffID]bool, len(roster))
	for _, s := range roster {
		owned[s.ID] = true
	}

	result := RecordResult{TenantID: tenantID, Date: date}
	seen := make(map[StaffID]bool, len(entries))
	for _, e := range entries {
		if !owned[e.StaffID] {
			return RecordResult{}, StaffNotFound(e.StaffID)
		}
		if seen[e.StaffID] {
			return RecordResult{}, &ValidationError{
				Field:  "staff_id",
				Value:  fmt.Sprint(int64(e.StaffID)),
				Reason: "submitted more than once for the same date",
			}
		}
		seen[e.StaffID] = true

		rec, err := r.derive(tenantID, date, e)
		if err != nil {
			return RecordResult{}, err
		}
		result.Records = append(result.Records, rec)
		switch rec.Status {
		case StatusPresent:
			result.Present++
		case StatusAbsent:
			result.Absent++
		}
		if rec.Late {
			result.Late++
		}
	}

	if len(result.Records) == 0 {
		return result, nil
	}
	if err := r.store.UpsertRecords(ctx, result.Records); err != nil {
		return RecordResult{}, storageErr("upsert records", err)
	}
	return result, nil
}

// derive validates one entry and computes its derived fields.
func (r *Recorder) derive(tenantID TenantID, date time.Time, e Entry) (Record, error) {
	status, err := ParseStatus(e.Status)
	if err != nil {
		return Record{}, err
	}
	in, err := parseOptionalClock("in_time", e.InTime)
	if err != nil {
		return Record{}, err
	}
	out, err := parseOptionalClock("out_time", e.OutTime)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		TenantID:    tenantID,
		StaffID:     e.StaffID,
		Date:        date,
		Status:      status,
		InTime:      in,
		OutTime:     out,
		HoursWorked: decimal.Zero,
	}
	if status != StatusPresent {
		return rec, nil
	}
	if in != nil && out != nil {
		hours, err := WorkedHours(*in, *out, r.cfg.ShiftPolicy)
		if err != nil {
			return Record{}, err
		}
		rec.HoursWorked = hours
	}
	if in != nil {
		rec.Late = in.After(r.cfg.LateAfter)
	}
	return rec, nil
}
