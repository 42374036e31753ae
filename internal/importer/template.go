package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

var ErrUnknownTemplate = errors.New("unknown import template")

// TemplateInfo describes one downloadable import template.
type TemplateInfo struct {
	Type            models.ImportType `json:"type"`
	Name            string            `json:"name"`
	RequiredColumns []string          `json:"required_columns"`
	OptionalColumns []string          `json:"optional_columns"`
	DownloadURL     string            `json:"download_url"`
}

// Templates lists one template per entity type followed by the combined template.
func (s *Schema) Templates(downloadBase string) []TemplateInfo {
	out := make([]TemplateInfo, 0, len(s.Entities)+1)
	for _, e := range s.Entities {
		out = append(out, TemplateInfo{
			Type:            models.ImportType(e.Entity),
			Name:            e.Name,
			RequiredColumns: labels(e, e.RequiredFields()),
			OptionalColumns: labels(e, e.OptionalFields()),
			DownloadURL:     fmt.Sprintf("%s/%s/download", downloadBase, e.Entity),
		})
	}
	headers := s.combinedHeaders()
	out = append(out, TemplateInfo{
		Type:            models.ImportTypeCombined,
		Name:            "Combined",
		RequiredColumns: headers[:1],
		OptionalColumns: headers[1:],
		DownloadURL:     fmt.Sprintf("%s/%s/download", downloadBase, models.ImportTypeCombined),
	})
	return out
}

func labels(e *EntitySchema, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		f, _ := e.Field(n)
		out = append(out, f.Label)
	}
	return out
}

// combinedHeaders is the Type column followed by every entity's labels, deduplicated.
func (s *Schema) combinedHeaders() []string {
	headers := []string{"Type"}
	seen := map[string]bool{normalizeAlias("Type"): true}
	for _, e := range s.Entities {
		for _, f := range e.Fields {
			key := normalizeAlias(f.Label)
			if seen[key] {
				continue
			}
			seen[key] = true
			headers = append(headers, f.Label)
		}
	}
	return headers
}

// templateRows returns the header row and one example row per entity covered by the template.
func (s *Schema) templateRows(importType models.ImportType) ([][]string, error) {
	if entity, ok := importType.Entity(); ok {
		e := s.Entity(entity)
		header := make([]string, len(e.Fields))
		example := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			header[i], example[i] = f.Label, f.Example
		}
		return [][]string{header, example}, nil
	}
	if importType != models.ImportTypeCombined {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, importType)
	}

	header := s.combinedHeaders()
	column := make(map[string]int, len(header))
	for i, h := range header {
		column[normalizeAlias(h)] = i
	}
	rows := [][]string{header}
	for _, e := range s.Entities {
		row := make([]string, len(header))
		row[0] = string(e.Entity)
		for _, f := range e.Fields {
			row[column[normalizeAlias(f.Label)]] = f.Example
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BuildTemplate renders the template for importType as an xlsx or csv file.
func (s *Schema) BuildTemplate(importType models.ImportType, format string) ([]byte, string, error) {
	rows, err := s.templateRows(importType)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("%s_import_template.%s", importType, format)

	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		writer := csv.NewWriter(&buf)
		if err := writer.WriteAll(rows); err != nil {
			return nil, "", fmt.Errorf("failed to write CSV template: %w", err)
		}
		return buf.Bytes(), filename, nil
	case FormatXLSX, "":
		data, err := s.excelTemplate(importType, rows)
		if err != nil {
			return nil, "", err
		}
		return data, fmt.Sprintf("%s_import_template.%s", importType, FormatXLSX), nil
	}
	return nil, "", fmt.Errorf("%w: template format %q", ErrUnsupportedFormat, format)
}

func (s *Schema) excelTemplate(importType models.ImportType, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Combined"
	if entity, ok := importType.Entity(); ok {
		sheetName = s.Entity(entity).Name
	}
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to name Excel sheet: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write template row: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("failed to style header row: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(rows[0]))
	if err := f.SetColWidth(sheetName, "A", lastCol, 20); err != nil {
		return nil, fmt.Errorf("failed to size template columns: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}
