package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

// RowIssue is an Error or Warning attributed to an entity bucket.
type RowIssue struct {
	Entity   string
	Severity Severity
	Issue    models.Issue
	sheet    int
	field    int
}

// Extraction is the staging set built from one workbook.
type Extraction struct {
	Entities  []*models.StagedEntity
	Issues    []RowIssue
	Mappings  map[string][]models.ColumnMapping
	RowCounts map[string]int
	Blocked    map[string]bool // entity types rejected by a missing required column
	SheetIndex map[string]int
	TotalRows  int
}

func (x *Extraction) add(entity string, sev Severity, sheet int, field int, issue models.Issue) {
	x.Issues = append(x.Issues, RowIssue{Entity: entity, Severity: sev, Issue: issue, sheet: sheet, field: field})
}

// Extractor partitions rows into entity buckets and resolves intra-file references.
type Extractor struct {
	schema   *Schema
	resolver *ColumnResolver
	opts     NormalizeOptions
}

func NewExtractor(schema *Schema, resolver *ColumnResolver, opts NormalizeOptions) *Extractor {
	return &Extractor{schema: schema, resolver: resolver, opts: opts}
}

// rowGroup is every row of one sheet that was typed as one entity.
type rowGroup struct {
	sheetIdx int
	sheet    *Sheet
	entity   models.EntityType
	rows     []Row
	skip     map[int]bool
}

type deferredRef struct {
	staged *models.StagedEntity
	field  FieldSpec
	label  string
	sheet  int
}

type stagingState struct {
	keys      map[models.EntityType]map[string]*models.StagedEntity
	labels    map[models.EntityType]map[string][]string
	remaining map[models.EntityType]int
	deferred  []deferredRef
}

// Extract types every row, normalizes it and stages one entity per row.
// progress, when set, receives the number of rows handled so far.
func (e *Extractor) Extract(ctx context.Context, wb *Workbook, importType models.ImportType, progress func(done int)) (*Extraction, error) {
	x := &Extraction{
		Mappings:   make(map[string][]models.ColumnMapping),
		RowCounts:  make(map[string]int),
		Blocked:    make(map[string]bool),
		SheetIndex: make(map[string]int, len(wb.Sheets)),
		TotalRows:  wb.TotalRows(),
	}
	for i, sheet := range wb.Sheets {
		x.SheetIndex[sheet.Name] = i
	}

	groups := e.typeRows(wb, importType, x)

	st := &stagingState{
		keys:      make(map[models.EntityType]map[string]*models.StagedEntity),
		labels:    make(map[models.EntityType]map[string][]string),
		remaining: make(map[models.EntityType]int),
	}
	for _, g := range groups {
		x.RowCounts[string(g.entity)] += len(g.rows)
	}

	resolutions := make([]*Resolution, len(groups))
	for i, g := range groups {
		res := e.resolver.Resolve(g.sheet.Headers, g.sheet.Name, e.schema.Entity(g.entity), g.skip)
		resolutions[i] = res
		x.Mappings[string(g.entity)] = append(x.Mappings[string(g.entity)], res.Mappings...)
		if !res.Complete() {
			x.Blocked[string(g.entity)] = true
			x.add(string(g.entity), SeverityError, g.sheetIdx, -1, res.MissingColumnIssue(g.sheet.Name))
			continue
		}
		st.remaining[g.entity] += len(g.rows)
	}

	done := 0
	for i, g := range groups {
		if !resolutions[i].Complete() {
			done += len(g.rows)
			continue
		}
		schema := e.schema.Entity(g.entity)
		for _, row := range g.rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			e.stageRow(x, st, g, schema, resolutions[i], row)
			st.remaining[g.entity]--
			done++
			if progress != nil && done%100 == 0 {
				progress(done)
			}
		}
	}

	// second pass: everything is staged, resolve what was deferred
	for _, d := range st.deferred {
		e.resolveRef(x, st, d)
	}

	if progress != nil {
		progress(done)
	}
	return x, nil
}

// typeRows decides the entity type of every row. Unclassifiable rows are reported under the unclassified bucket.
func (e *Extractor) typeRows(wb *Workbook, importType models.ImportType, x *Extraction) []*rowGroup {
	var groups []*rowGroup
	declared, single := importType.Entity()

	for si, sheet := range wb.Sheets {
		if len(sheet.Rows) == 0 {
			continue
		}
		if single {
			groups = append(groups, &rowGroup{sheetIdx: si, sheet: sheet, entity: declared, rows: sheet.Rows})
			continue
		}

		if col := e.typeColumn(sheet.Headers); col >= 0 {
			byEntity := make(map[models.EntityType]*rowGroup)
			for _, row := range sheet.Rows {
				cell := strings.TrimSpace(row.Cell(col))
				entity, ok := e.schema.EntityByAlias(cell)
				if !ok {
					x.RowCounts[models.UnclassifiedEntity]++
					x.add(models.UnclassifiedEntity, SeverityError, si, -1, models.Issue{
						Row: row.Index, Sheet: sheet.Name, Field: "type", Code: models.IssueUnknownType,
						Message: fmt.Sprintf("unrecognized entity type %q", cell), Value: cell,
					})
					continue
				}
				g, seen := byEntity[entity]
				if !seen {
					g = &rowGroup{sheetIdx: si, sheet: sheet, entity: entity, skip: map[int]bool{col: true}}
					byEntity[entity] = g
				}
				g.rows = append(g.rows, row)
			}
			for _, entity := range models.EntityOrder {
				if g, ok := byEntity[entity]; ok {
					groups = append(groups, g)
				}
			}
			continue
		}

		if entity, ok := e.schema.EntityByAlias(sheet.Name); ok {
			groups = append(groups, &rowGroup{sheetIdx: si, sheet: sheet, entity: entity, rows: sheet.Rows})
			continue
		}

		entity, ok := e.inferEntity(sheet)
		if !ok {
			for _, row := range sheet.Rows {
				x.RowCounts[models.UnclassifiedEntity]++
				x.add(models.UnclassifiedEntity, SeverityError, si, -1, models.Issue{
					Row: row.Index, Sheet: sheet.Name, Field: "type", Code: models.IssueUnknownType,
					Message: "could not determine the entity type of this row; add a Type column",
				})
			}
			continue
		}
		groups = append(groups, &rowGroup{sheetIdx: si, sheet: sheet, entity: entity, rows: sheet.Rows})
	}
	return groups
}

func (e *Extractor) typeColumn(headers []string) int {
	for i, h := range headers {
		key := normalizeAlias(h)
		for _, alias := range e.schema.TypeColumnAliases {
			if key != "" && key == normalizeAlias(alias) {
				return i
			}
		}
	}
	return -1
}

// inferEntity picks the entity whose schema the headers cover best, preferring complete matches.
func (e *Extractor) inferEntity(sheet *Sheet) (models.EntityType, bool) {
	var (
		best         models.EntityType
		bestComplete bool
		bestMapped   int
	)
	for _, schema := range e.schema.Entities {
		res := e.resolver.Resolve(sheet.Headers, sheet.Name, schema, nil)
		mapped := len(res.Columns)
		if mapped == 0 {
			continue
		}
		complete := res.Complete()
		if best == "" || (complete && !bestComplete) || (complete == bestComplete && mapped > bestMapped) {
			best, bestComplete, bestMapped = schema.Entity, complete, mapped
		}
	}
	return best, best != ""
}

func (e *Extractor) stageRow(x *Extraction, st *stagingState, g *rowGroup, schema *EntitySchema, res *Resolution, row Row) {
	bucket := string(g.entity)
	staged := &models.StagedEntity{
		Entity: g.entity,
		Row:    row.Index,
		Sheet:  g.sheet.Name,
		Fields: make(map[string]string),
	}

	for fi, field := range schema.Fields {
		col, mapped := res.Columns[field.Name]
		if !mapped {
			continue
		}
		raw := row.Cell(col)
		value, finding := Normalize(raw, field, e.opts)
		if finding != nil {
			x.add(bucket, finding.Severity, g.sheetIdx, fi, models.Issue{
				Row: row.Index, Sheet: g.sheet.Name, Field: field.Name, Code: finding.Code,
				Message: finding.Message, Value: strings.TrimSpace(raw),
			})
		}
		if value.Present {
			staged.Fields[field.Name] = value.Text
		}
	}

	for fi, field := range schema.Fields {
		if _, ok := staged.Fields[field.Name]; ok || !field.Required {
			continue
		}
		if e.hasErrorOn(x, bucket, g.sheetIdx, row.Index, field.Name) {
			continue
		}
		x.add(bucket, SeverityError, g.sheetIdx, fi, models.Issue{
			Row: row.Index, Sheet: g.sheet.Name, Field: field.Name, Code: models.IssueRequired,
			Message: fmt.Sprintf("%s is required", field.Label),
		})
	}

	staged.NaturalKey = naturalKey(schema, staged.Fields)
	e.indexStaged(x, st, g, schema, staged)
	x.Entities = append(x.Entities, staged)

	for _, field := range schema.Fields {
		if field.Type != FieldReference {
			continue
		}
		label, ok := staged.Fields[field.Name]
		if !ok {
			continue
		}
		d := deferredRef{staged: staged, field: field, label: label, sheet: g.sheetIdx}
		if st.remaining[field.Ref] > 0 {
			st.deferred = append(st.deferred, d)
			continue
		}
		e.resolveRef(x, st, d)
	}
}

func (e *Extractor) hasErrorOn(x *Extraction, bucket string, sheet, row int, field string) bool {
	for i := len(x.Issues) - 1; i >= 0; i-- {
		is := x.Issues[i]
		if is.Issue.Row != row || is.sheet != sheet {
			break
		}
		if is.Entity == bucket && is.Severity == SeverityError && is.Issue.Field == field {
			return true
		}
	}
	return false
}

// indexStaged registers the natural key and labels, superseding an earlier row with the same key.
func (e *Extractor) indexStaged(x *Extraction, st *stagingState, g *rowGroup, schema *EntitySchema, staged *models.StagedEntity) {
	if staged.NaturalKey == "" {
		return
	}
	keys := st.keys[g.entity]
	if keys == nil {
		keys = make(map[string]*models.StagedEntity)
		st.keys[g.entity] = keys
	}
	if earlier, ok := keys[staged.NaturalKey]; ok {
		earlier.Superseded = true
		where := fmt.Sprintf("row %d", earlier.Row)
		if earlier.Sheet != "" && earlier.Sheet != staged.Sheet {
			where = fmt.Sprintf("row %d of sheet %q", earlier.Row, earlier.Sheet)
		}
		x.add(string(g.entity), SeverityWarning, g.sheetIdx, schema.FieldIndex(schema.NaturalKey[0][0]), models.Issue{
			Row: staged.Row, Sheet: staged.Sheet, Field: schema.NaturalKey[0][0], Code: models.IssueDuplicateKey,
			Message: fmt.Sprintf("redefines %s; this row's values are used", where),
		})
	}
	keys[staged.NaturalKey] = staged

	labels := st.labels[g.entity]
	if labels == nil {
		labels = make(map[string][]string)
		st.labels[g.entity] = labels
	}
	for _, label := range entityLabels(schema, staged.Fields) {
		if !containsString(labels[label], staged.NaturalKey) {
			labels[label] = append(labels[label], staged.NaturalKey)
		}
	}
}

func (e *Extractor) resolveRef(x *Extraction, st *stagingState, d deferredRef) {
	label := normalizeKey(d.label)
	if d.field.RefScope != "" {
		if scope, ok := d.staged.Fields[d.field.RefScope]; ok {
			scoped := normalizeKey(scope) + "#" + label
			if len(st.labels[d.field.Ref][scoped]) > 0 {
				label = scoped
			}
		}
	}

	matches := st.labels[d.field.Ref][label]
	if len(matches) == 1 {
		if d.staged.Refs == nil {
			d.staged.Refs = make(map[string]string)
		}
		d.staged.Refs[d.field.Name] = matches[0]
		return
	}

	code := models.IssueUnresolvedRef
	msg := fmt.Sprintf("%s %q not found", d.field.Ref, d.label)
	if len(matches) > 1 {
		code = models.IssueAmbiguousRef
		msg = fmt.Sprintf("%s %q matches %d records", d.field.Ref, d.label, len(matches))
	}
	sev := SeverityWarning
	if d.field.Required {
		sev = SeverityError
	} else {
		msg += "; the reference will be left empty"
	}
	d.staged.Unresolved = append(d.staged.Unresolved, models.UnresolvedRef{Field: d.field.Name, Target: d.field.Ref, Label: d.label})

	schema := e.schema.Entity(d.staged.Entity)
	x.add(string(d.staged.Entity), sev, d.sheet, schema.FieldIndex(d.field.Name), models.Issue{
		Row: d.staged.Row, Sheet: d.staged.Sheet, Field: d.field.Name, Code: code, Message: msg, Value: d.label,
	})
}

func normalizeKey(s string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " "))
}

// naturalKey joins the key parts; an empty first part yields no key.
func naturalKey(schema *EntitySchema, fields map[string]string) string {
	parts := make([]string, 0, len(schema.NaturalKey))
	for i, alternatives := range schema.NaturalKey {
		part := ""
		for _, name := range alternatives {
			if v, ok := fields[name]; ok {
				part = normalizeKey(v)
				break
			}
		}
		if i == 0 && part == "" {
			return ""
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "|")
}

func entityLabels(schema *EntitySchema, fields map[string]string) []string {
	var out []string
next:
	for _, combo := range schema.Labels {
		parts := make([]string, 0, len(combo))
		for _, name := range combo {
			v, ok := fields[name]
			if !ok {
				continue next
			}
			parts = append(parts, normalizeKey(v))
		}
		label := strings.Join(parts, "#")
		if !containsString(out, label) {
			out = append(out, label)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
