package importer

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

// DefaultFuzzyThreshold is the minimum similarity a fuzzy header match must reach.
const DefaultFuzzyThreshold = 0.80

// normalizeAlias folds case and drops whitespace and punctuation.
func normalizeAlias(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolution is the outcome of mapping one header row against one entity schema.
type Resolution struct {
	Entity   models.EntityType
	Columns  map[string]int // canonical field -> column index
	Mappings []models.ColumnMapping
	Missing  []string // required fields no header resolved to
}

func (r *Resolution) Complete() bool {
	return len(r.Missing) == 0
}

// MissingColumnIssue is the entity-level Error raised when required columns are unresolved.
func (r *Resolution) MissingColumnIssue(sheet string) models.Issue {
	return models.Issue{
		Row:     0,
		Sheet:   sheet,
		Field:   strings.Join(r.Missing, ","),
		Code:    models.IssueMissingColumn,
		Message: fmt.Sprintf("required column(s) not found: %s", strings.Join(r.Missing, ", ")),
	}
}

type ColumnResolver struct {
	Threshold float64
}

func NewColumnResolver(threshold float64) *ColumnResolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &ColumnResolver{Threshold: threshold}
}

type candidate struct {
	header int
	field  int
	alias  int
	score  float64
}

// Resolve maps headers onto the entity's canonical fields. Headers listed in skip
// (for example a combined sheet's type column) are left out of the mappings.
func (c *ColumnResolver) Resolve(headers []string, sheet string, schema *EntitySchema, skip map[int]bool) *Resolution {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeAlias(h)
	}

	headerField := make(map[int]int, len(headers))
	headerMatch := make(map[int]string, len(headers))
	fieldTaken := make(map[int]bool, len(schema.Fields))

	usable := func(i int) bool {
		return !skip[i] && normalized[i] != ""
	}

	// pass 1: exact alias matches
	var exact []candidate
	for hi := range headers {
		if !usable(hi) {
			continue
		}
		for fi, f := range schema.Fields {
			for ai, alias := range fieldAliases(f) {
				if normalizeAlias(alias) == normalized[hi] {
					exact = append(exact, candidate{header: hi, field: fi, alias: ai, score: 1})
					break
				}
			}
		}
	}
	sort.SliceStable(exact, func(a, b int) bool {
		if exact[a].field != exact[b].field {
			return exact[a].field < exact[b].field
		}
		if exact[a].alias != exact[b].alias {
			return exact[a].alias < exact[b].alias
		}
		return exact[a].header < exact[b].header
	})
	for _, cand := range exact {
		if _, done := headerField[cand.header]; done || fieldTaken[cand.field] {
			continue
		}
		headerField[cand.header] = cand.field
		headerMatch[cand.header] = models.MatchExact
		fieldTaken[cand.field] = true
	}

	// pass 2: fuzzy matches against fields still free
	var fuzzyCands []candidate
	for hi := range headers {
		if !usable(hi) {
			continue
		}
		if _, done := headerField[hi]; done {
			continue
		}
		for fi, f := range schema.Fields {
			if fieldTaken[fi] {
				continue
			}
			best := candidate{header: hi, field: fi, alias: -1}
			for ai, alias := range fieldAliases(f) {
				score := similarity(normalized[hi], normalizeAlias(alias))
				if score > best.score {
					best.score, best.alias = score, ai
				}
			}
			if best.alias >= 0 && best.score >= c.Threshold {
				fuzzyCands = append(fuzzyCands, best)
			}
		}
	}
	sort.SliceStable(fuzzyCands, func(a, b int) bool {
		if fuzzyCands[a].score != fuzzyCands[b].score {
			return fuzzyCands[a].score > fuzzyCands[b].score
		}
		if fuzzyCands[a].field != fuzzyCands[b].field {
			return fuzzyCands[a].field < fuzzyCands[b].field
		}
		if fuzzyCands[a].alias != fuzzyCands[b].alias {
			return fuzzyCands[a].alias < fuzzyCands[b].alias
		}
		return fuzzyCands[a].header < fuzzyCands[b].header
	})
	for _, cand := range fuzzyCands {
		if _, done := headerField[cand.header]; done || fieldTaken[cand.field] {
			continue
		}
		headerField[cand.header] = cand.field
		headerMatch[cand.header] = models.MatchFuzzy
		fieldTaken[cand.field] = true
	}

	res := &Resolution{Entity: schema.Entity, Columns: make(map[string]int)}
	for hi, h := range headers {
		if skip[hi] {
			continue
		}
		mapping := models.ColumnMapping{Sheet: sheet, Original: h, Match: models.MatchUnmapped}
		if fi, ok := headerField[hi]; ok {
			name := schema.Fields[fi].Name
			mapping.MappedTo = name
			mapping.Match = headerMatch[hi]
			res.Columns[name] = hi
		}
		res.Mappings = append(res.Mappings, mapping)
	}
	for _, f := range schema.Fields {
		if _, ok := res.Columns[f.Name]; f.Required && !ok {
			res.Missing = append(res.Missing, f.Name)
		}
	}
	return res
}

// fieldAliases lists the template label, the canonical name, then the declared aliases.
func fieldAliases(f FieldSpec) []string {
	out := make([]string, 0, len(f.Aliases)+2)
	if f.Label != "" {
		out = append(out, f.Label)
	}
	out = append(out, f.Name)
	return append(out, f.Aliases...)
}

// similarity scores two normalized strings in [0,1] using edit distance and substring containment.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	score := 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)

	shorter, longer := a, b
	if la > lb {
		shorter, longer = b, a
	}
	if strings.Contains(longer, shorter) {
		if contained := float64(len([]rune(shorter))) / float64(longest); contained > score {
			score = contained
		}
	}
	if score < 0 {
		return 0
	}
	return score
}
