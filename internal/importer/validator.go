package importer

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

const (
	DefaultMaxIssuesPerEntity = 50
	DefaultPreviewRows        = 5
	DefaultPreviewFieldLength = 120
	DefaultMaxMessageLength   = 240
)

type ValidatorOptions struct {
	MaxIssuesPerEntity int
	PreviewRows        int
	PreviewFieldLength int
	MaxMessageLength   int
}

func (o ValidatorOptions) withDefaults() ValidatorOptions {
	if o.MaxIssuesPerEntity <= 0 {
		o.MaxIssuesPerEntity = DefaultMaxIssuesPerEntity
	}
	if o.PreviewRows <= 0 {
		o.PreviewRows = DefaultPreviewRows
	}
	if o.PreviewFieldLength <= 0 {
		o.PreviewFieldLength = DefaultPreviewFieldLength
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = DefaultMaxMessageLength
	}
	return o
}

// Validator applies the domain rules to an Extraction and assembles the ValidationResult.
type Validator struct {
	schema *Schema
	opts   ValidatorOptions
}

func NewValidator(schema *Schema, opts ValidatorOptions) *Validator {
	return &Validator{schema: schema, opts: opts.withDefaults()}
}

// Validate never mutates x apart from recomputing each staged entity's Invalid flag,
// so running it twice on the same extraction yields identical results.
func (v *Validator) Validate(x *Extraction, importType models.ImportType) *models.ValidationResult {
	issues := make([]RowIssue, 0, len(x.Issues))
	issues = append(issues, x.Issues...)
	issues = append(issues, v.domainRules(x)...)
	issues = append(issues, v.uniquenessRules(x)...)
	sortIssues(issues)

	type rowKey struct {
		sheet string
		row   int
	}
	errorRows := make(map[string]map[rowKey]bool)
	for _, is := range issues {
		if is.Severity != SeverityError || is.Issue.Row == 0 {
			continue
		}
		if errorRows[is.Entity] == nil {
			errorRows[is.Entity] = make(map[rowKey]bool)
		}
		errorRows[is.Entity][rowKey{is.Issue.Sheet, is.Issue.Row}] = true
	}
	for _, s := range x.Entities {
		s.Invalid = errorRows[string(s.Entity)][rowKey{s.Sheet, s.Row}]
	}

	result := &models.ValidationResult{
		SchemaVersion: v.schema.Version,
		ImportType:    importType,
		TotalRows:     x.TotalRows,
		Entities:      make(map[string]*models.EntityValidation),
	}
	for bucket, count := range x.RowCounts {
		if count == 0 {
			continue
		}
		ev := &models.EntityValidation{
			Entity:         bucket,
			RowCount:       count,
			Errors:         []models.Issue{},
			Warnings:       []models.Issue{},
			ColumnMappings: x.Mappings[bucket],
			Preview:        []models.PreviewRow{},
		}
		if ev.ColumnMappings == nil {
			ev.ColumnMappings = []models.ColumnMapping{}
		}
		ev.InvalidRows = len(errorRows[bucket])
		if x.Blocked[bucket] || bucket == models.UnclassifiedEntity {
			ev.InvalidRows = count
		}
		ev.ValidRows = count - ev.InvalidRows
		result.Entities[bucket] = ev
	}

	for _, is := range issues {
		ev, ok := result.Entities[is.Entity]
		if !ok {
			continue
		}
		issue := is.Issue
		issue.Message = truncate(issue.Message, v.opts.MaxMessageLength)
		issue.Value = truncate(issue.Value, v.opts.PreviewFieldLength)
		if is.Severity == SeverityError {
			ev.ErrorCount++
			if len(ev.Errors) < v.opts.MaxIssuesPerEntity {
				ev.Errors = append(ev.Errors, issue)
			} else {
				ev.OmittedErrors++
			}
			continue
		}
		ev.WarningCount++
		if len(ev.Warnings) < v.opts.MaxIssuesPerEntity {
			ev.Warnings = append(ev.Warnings, issue)
		} else {
			ev.OmittedWarnings++
		}
	}

	for _, s := range x.Entities {
		ev := result.Entities[string(s.Entity)]
		if ev == nil || len(ev.Preview) >= v.opts.PreviewRows {
			continue
		}
		values := make(map[string]string, len(s.Fields))
		for k, val := range s.Fields {
			values[k] = truncate(val, v.opts.PreviewFieldLength)
		}
		ev.Preview = append(ev.Preview, models.PreviewRow{Row: s.Row, Values: values})
	}

	result.Seal()
	return result
}

func (v *Validator) domainRules(x *Extraction) []RowIssue {
	var out []RowIssue
	for _, s := range x.Entities {
		schema := v.schema.Entity(s.Entity)
		if schema == nil {
			continue
		}
		emit := func(field, code, msg, value string) {
			out = append(out, RowIssue{
				Entity: string(s.Entity), Severity: SeverityError, sheet: x.SheetIndex[s.Sheet], field: schema.FieldIndex(field),
				Issue: models.Issue{Row: s.Row, Sheet: s.Sheet, Field: field, Code: code, Message: msg, Value: value},
			})
		}

		for _, f := range schema.Fields {
			text, ok := s.Fields[f.Name]
			if !ok {
				continue
			}
			switch f.Type {
			case FieldMoney:
				if d, err := decimal.NewFromString(text); err == nil && d.IsNegative() {
					emit(f.Name, models.IssueNegativeAmount, fmt.Sprintf("%s must not be negative", f.Label), text)
				}
			case FieldInteger:
				if d, err := decimal.NewFromString(text); err == nil && d.IsNegative() {
					emit(f.Name, models.IssueNegativeAmount, fmt.Sprintf("%s must not be negative", f.Label), text)
				}
			}
		}

		if s.Entity == models.EntityLease {
			if day, ok := s.Fields["payment_day"]; ok {
				if d, err := decimal.NewFromString(day); err == nil && !d.IsNegative() && (d.IntPart() < 1 || d.IntPart() > 31) {
					emit("payment_day", models.IssueInvalidFormat, "Payment Day must be between 1 and 31", day)
				}
			}
			start, okStart := parseISODate(s.Fields["start_date"])
			end, okEnd := parseISODate(s.Fields["end_date"])
			if okStart && okEnd && !end.After(start) {
				emit("end_date", models.IssueDateOrder, "End Date must be after Start Date", s.Fields["end_date"])
			}
		}
	}
	return out
}

// uniquenessRules warns when differently-keyed staged entities share a contact email or an address.
func (v *Validator) uniquenessRules(x *Extraction) []RowIssue {
	checks := map[models.EntityType]string{
		models.EntityLandlord: "email",
		models.EntityTenant:   "email",
		models.EntityProperty: "address",
	}
	firstSeen := make(map[models.EntityType]map[string]*models.StagedEntity)
	var out []RowIssue
	for _, s := range x.Entities {
		field, ok := checks[s.Entity]
		if !ok || s.Superseded || s.NaturalKey == "" {
			continue
		}
		value, ok := s.Fields[field]
		if !ok {
			continue
		}
		norm := normalizeKey(value)
		if firstSeen[s.Entity] == nil {
			firstSeen[s.Entity] = make(map[string]*models.StagedEntity)
		}
		prior, seen := firstSeen[s.Entity][norm]
		if !seen {
			firstSeen[s.Entity][norm] = s
			continue
		}
		if prior.NaturalKey == s.NaturalKey {
			continue
		}
		schema := v.schema.Entity(s.Entity)
		out = append(out, RowIssue{
			Entity: string(s.Entity), Severity: SeverityWarning, sheet: x.SheetIndex[s.Sheet], field: schema.FieldIndex(field),
			Issue: models.Issue{
				Row: s.Row, Sheet: s.Sheet, Field: field, Code: models.IssueDuplicateValue, Value: value,
				Message: fmt.Sprintf("%s %q is also used by row %d", field, value, prior.Row),
			},
		})
	}
	return out
}

// sortIssues orders issues by entity, sheet, row and field; ties keep insertion order.
func sortIssues(issues []RowIssue) {
	rank := func(entity string) int {
		return models.EntityType(entity).Rank()
	}
	sort.SliceStable(issues, func(a, b int) bool {
		ia, ib := issues[a], issues[b]
		if ra, rb := rank(ia.Entity), rank(ib.Entity); ra != rb {
			return ra < rb
		}
		if ia.sheet != ib.sheet {
			return ia.sheet < ib.sheet
		}
		if ia.Issue.Row != ib.Issue.Row {
			return ia.Issue.Row < ib.Issue.Row
		}
		return ia.field < ib.field
	})
}

func parseISODate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(isoDate, s)
	return t, err == nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
