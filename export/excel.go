/*
Package export writes monthly payroll summaries as .xlsx workbooks.

PURPOSE:
  Serializes attendance.SummaryRow values, in order, to a single sheet with
  the columns Store, Staff, Month, PresentDays, AbsentDays, TotalHours,
  TotalDays, Salary.

ATOMIC REPLACE:
  Write() never touches the canonical path until the new workbook is
  complete:
  1. Save to a temp file in the same directory
  2. Rename the temp file over the canonical path
  If any step fails the temp file is removed and the previous artifact is
  left as it was.

SEE ALSO:
  - attendance/payroll.go: Produces the rows
  - api/handlers.go: Regenerates after each attendance submission
*/
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/warp/attendance/attendance"
	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Monthly"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// FileMode is the permission of the canonical artifact.
	FileMode os.FileMode = 0o644
)

// Error reports a failed export step. It matches attendance.ErrExport and
// the underlying cause.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() []error { return []error{attendance.ErrExport, e.Err} }

// Exporter owns the canonical artifact path.
type Exporter struct {
	path string
}

func New(path string) *Exporter {
	return &Exporter{path: path}
}

func (e *Exporter) Path() string { return e.path }

// Build renders rows into a new workbook. The caller must Close it.
func Build(rows []attendance.SummaryRow) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}

	header := make([]any, len(attendance.SummaryColumns))
	for i, c := range attendance.SummaryColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		lastCol, _ := excelize.ColumnNumberToName(len(header))
		_ = f.SetCellStyle(SheetName, "A1", lastCol+"1", bold)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		values := row.Values()
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			f.Close()
			return nil, err
		}
	}

	_ = f.SetColWidth(SheetName, "A", "B", 20)
	return f, nil
}

// WriteTo streams a workbook for rows to w.
func (e *Exporter) WriteTo(w io.Writer, rows []attendance.SummaryRow) error {
	f, err := Build(rows)
	if err != nil {
		return &Error{Op: "build", Path: "-", Err: err}
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return &Error{Op: "write", Path: "-", Err: err}
	}
	return nil
}

// Write replaces the canonical artifact with a workbook for rows.
func (e *Exporter) Write(rows []attendance.SummaryRow) error {
	f, err := Build(rows)
	if err != nil {
		return &Error{Op: "build", Path: e.path, Err: err}
	}
	defer f.Close()

	dir := filepath.Dir(e.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(e.path)+".*.tmp")
	if err != nil {
		return &Error{Op: "create temp", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return &Error{Op: "write", Path: tmpPath, Err: err}
	}
	// CreateTemp opens the file 0600; the artifact is a shared download.
	if err := tmp.Chmod(FileMode); err != nil {
		tmp.Close()
		return &Error{Op: "chmod", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &Error{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, e.path); err != nil {
		return &Error{Op: "rename", Path: e.path, Err: err}
	}
	committed = true
	return nil
}

// Remove deletes the canonical artifact. A missing artifact is not an error.
func (e *Exporter) Remove() error {
	if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Op: "remove", Path: e.path, Err: err}
	}
	return nil
}

// Open returns the current artifact for download.
func (e *Exporter) Open() (*os.File, error) {
	f, err := os.Open(e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &attendance.NotFoundError{Kind: "export", ID: filepath.Base(e.path)}
		}
		return nil, &Error{Op: "open", Path: e.path, Err: err}
	}
	return f, nil
}
