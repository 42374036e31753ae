package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file exceeds the maximum upload size")
	ErrNoData            = errors.New("file has no data rows")
	ErrUnreadable        = errors.New("file could not be read")
)

// FatalError is a file-level failure: the job fails and no rows are processed.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	return e.Reason
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(err error, format string, args ...interface{}) *FatalError {
	return &FatalError{Reason: fmt.Sprintf(format, args...), Err: err}
}

type Row struct {
	Index int // 1-based spreadsheet row number
	Cells []string
}

func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

func (r Row) blank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

type Sheet struct {
	Name    string
	Headers []string
	Rows    []Row
}

type Workbook struct {
	Sheets []*Sheet
}

func (w *Workbook) TotalRows() int {
	total := 0
	for _, s := range w.Sheets {
		total += len(s.Rows)
	}
	return total
}

// SupportedExtensions lists the upload formats Parse accepts.
var SupportedExtensions = []string{".csv", ".xlsx", ".xlsm"}

func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Parse reads a CSV or XLSX payload into sheets of header-keyed rows.
func Parse(filename string, data []byte, maxBytes int64) (*Workbook, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fatal(ErrFileTooLarge, "file is %d bytes, the limit is %d", len(data), maxBytes)
	}

	if !IsSupported(filename) {
		return nil, fatal(ErrUnsupportedFormat, "unsupported file format %q, expected one of %s",
			filepath.Ext(filename), strings.Join(SupportedExtensions, ", "))
	}

	var (
		wb  *Workbook
		err error
	)
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		wb, err = parseCSV(data)
	} else {
		wb, err = parseExcel(data)
	}
	if err != nil {
		return nil, err
	}
	if wb.TotalRows() == 0 {
		return nil, fatal(ErrNoData, "file must have a header row and at least one data row")
	}
	return wb, nil
}

func parseCSV(data []byte) (*Workbook, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	csvReader := csv.NewReader(bytes.NewReader(data))
	csvReader.TrimLeadingSpace = true
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	var rows []Row
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fatal(errors.Join(ErrUnreadable, err), "failed to read CSV: %v", err)
		}
		line, _ := csvReader.FieldPos(0)
		rows = append(rows, Row{Index: line, Cells: record})
	}
	return &Workbook{Sheets: []*Sheet{buildSheet("", rows)}}, nil
}

func parseExcel(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fatal(errors.Join(ErrUnreadable, err), "failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fatal(ErrNoData, "Excel file has no sheets")
	}

	wb := &Workbook{}
	for _, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fatal(errors.Join(ErrUnreadable, err), "failed to read sheet %q: %v", name, err)
		}
		indexed := make([]Row, len(rows))
		for i, cells := range rows {
			indexed[i] = Row{Index: i + 1, Cells: cells}
		}
		sheet := buildSheet(name, indexed)
		if len(sheet.Headers) == 0 {
			continue
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	return wb, nil
}

// buildSheet takes the first non-blank row as the header row and drops blank data rows.
func buildSheet(name string, rows []Row) *Sheet {
	sheet := &Sheet{Name: name}
	for _, row := range rows {
		if row.blank() {
			continue
		}
		if sheet.Headers == nil {
			sheet.Headers = make([]string, len(row.Cells))
			for j, h := range row.Cells {
				sheet.Headers[j] = strings.TrimSpace(h)
			}
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}
