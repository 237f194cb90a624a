/*
payroll.go - Monthly payroll aggregation

PURPOSE:
  Converts the attendance history into one SummaryRow per store, staff
  member and calendar month.

ALGORITHM:
  1. Join records -> staff (by StaffID) -> tenant (by TenantID). Records
     whose staff or tenant no longer exists are dropped.
  2. Tally per (tenant, staff, month): present, absent, total, hours.
  3. Salary per tally:
       daily:  present_days * salary_amount
       hourly: round(total_hours * salary_amount, 2)
  4. Tallies that share (store name, staff name, month) are merged into
     one row, since rows are keyed by names.
  5. Sort by (store, staff, month).

  Staff without records produce no row. Aggregate has no side effects, so
  two calls with no write in between return identical rows.

SEE ALSO:
  - recorder.go: produces the records
  - export/excel.go: serializes the rows
*/
package attendance

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Aggregator builds monthly summaries.
type Aggregator struct {
	dir   Directory
	store AttendanceStore
}

func NewAggregator(dir Directory, store AttendanceStore) *Aggregator {
	return &Aggregator{dir: dir, store: store}
}

// Aggregate returns the summary rows for the tenants in scope.
func (a *Aggregator) Aggregate(ctx context.Context, scope Scope) ([]SummaryRow, error) {
	var tenants []Tenant
	if scope.All() {
		all, err := a.dir.ListTenants(ctx)
		if err != nil {
			return nil, storageErr("list tenants", err)
		}
		tenants = all
	} else {
		t, err := a.dir.GetTenant(ctx, scope.Tenant())
		if err != nil {
			return nil, storageErr("get tenant", err)
		}
		tenants = []Tenant{t}
	}

	staff := make(map[StaffID]StaffMember)
	for _, t := range tenants {
		roster, err := a.dir.ListStaff(ctx, t.ID)
		if err != nil {
			return nil, storageErr("list staff", err)
		}
		for _, s := range roster {
			staff[s.ID] = s
		}
	}

	records, err := a.store.ListRecords(ctx, scope)
	if err != nil {
		return nil, storageErr("list records", err)
	}
	return Summarize(records, tenants, staff), nil
}

type tallyKey struct {
	tenant TenantID
	staff  StaffID
	month  string
}

type tally struct {
	present int
	absent  int
	total   int
	hours   decimal.Decimal
}

type rowKey struct {
	store string
	staff string
	month string
}

// Summarize is the pure part of Aggregate.
func Summarize(records []Record, tenants []Tenant, staff map[StaffID]StaffMember) []SummaryRow {
	byID := make(map[TenantID]Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}

	tallies := make(map[tallyKey]*tally)
	var order []tallyKey
	for _, rec := range records {
		if _, ok := byID[rec.TenantID]; !ok {
			continue
		}
		if _, ok := staff[rec.StaffID]; !ok {
			continue
		}
		k := tallyKey{tenant: rec.TenantID, staff: rec.StaffID, month: rec.Month()}
		t, ok := tallies[k]
		if !ok {
			t = &tally{hours: decimal.Zero}
			tallies[k] = t
			order = append(order, k)
		}
		t.total++
		switch rec.Status {
		case StatusPresent:
			t.present++
		case StatusAbsent:
			t.absent++
		}
		t.hours = t.hours.Add(rec.HoursWorked)
	}

	rows := make(map[rowKey]*SummaryRow)
	var keys []rowKey
	for _, k := range order {
		t := tallies[k]
		member := staff[k.staff]
		rk := rowKey{store: byID[k.tenant].Username, staff: member.Name, month: k.month}

		row, ok := rows[rk]
		if !ok {
			row = &SummaryRow{
				Store:      rk.store,
				Staff:      rk.staff,
				Month:      rk.month,
				TotalHours: decimal.Zero,
				Salary:     decimal.Zero,
			}
			rows[rk] = row
			keys = append(keys, rk)
		}
		hours := t.hours.Round(2)
		row.PresentDays += t.present
		row.AbsentDays += t.absent
		row.TotalDays += t.total
		row.TotalHours = row.TotalHours.Add(hours)
		row.Salary = row.Salary.Add(salaryFor(member, t.present, hours))
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.store != b.store {
			return a.store < b.store
		}
		if a.staff != b.staff {
			return a.staff < b.staff
		}
		return a.month < b.month
	})

	out := make([]SummaryRow, len(keys))
	for i, k := range keys {
		out[i] = *rows[k]
	}
	return out
}

func salaryFor(s StaffMember, presentDays int, hours decimal.Decimal) decimal.Decimal {
	if s.SalaryType == SalaryDaily {
		return decimal.NewFromInt(int64(presentDays)).Mul(s.SalaryAmount)
	}
	return hours.Mul(s.SalaryAmount).Round(2)
}
