package models

// StagedEntity is one pre-commit candidate record built from a single spreadsheet row.
type StagedEntity struct {
	Entity     EntityType        `json:"entity"`
	NaturalKey string            `json:"natural_key"`
	Row        int               `json:"row"`
	Sheet      string            `json:"sheet,omitempty"`
	Fields     map[string]string `json:"fields"`         // canonical text, absent fields omitted
	Refs       map[string]string `json:"refs,omitempty"` // reference field -> natural key of the target
	Unresolved []UnresolvedRef   `json:"unresolved,omitempty"`
	Superseded bool              `json:"superseded,omitempty"` // a later row redefined the same natural key
	Invalid    bool              `json:"invalid,omitempty"`    // row carries at least one Error
}

// UnresolvedRef is a reference label that matched no staged entity after the second pass.
type UnresolvedRef struct {
	Field  string     `json:"field"`
	Target EntityType `json:"target"`
	Label  string     `json:"label"`
}

// Committable reports whether the commit engine should attempt the row.
func (s *StagedEntity) Committable() bool {
	return !s.Superseded && !s.Invalid
}

// StagedImport is what a validated job persists for later confirmation.
type StagedImport struct {
	Result   *ValidationResult `json:"result"`
	Entities []*StagedEntity   `json:"entities"`
}

// ImportSummary is the per-entity commit accounting stored on a finished job.
type ImportSummary struct {
	Entities     []EntityCommitOutcome `json:"entities"`
	FailedEntity string                `json:"failed_entity,omitempty"`
	DurationMs   int64                 `json:"duration_ms"`
}

type EntityCommitOutcome struct {
	Entity        EntityType `json:"entity"`
	Attempted     int        `json:"attempted"`
	Created       int        `json:"created"`
	Skipped       int        `json:"skipped"`
	Failed        int        `json:"failed"`
	RolledBack    bool       `json:"rolled_back"`
	Error         string     `json:"error,omitempty"`
	Issues        []Issue    `json:"issues"`
	OmittedIssues int        `json:"omitted_issues"`
}

// Totals sums created, skipped and failed rows across all entity types.
func (s *ImportSummary) Totals() (created, skipped, failed int) {
	for _, e := range s.Entities {
		created += e.Created
		skipped += e.Skipped
		failed += e.Failed
	}
	return created, skipped, failed
}
