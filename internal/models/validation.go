package models

// Issue codes surfaced in a ValidationResult and in commit accounting.
const (
	IssueMissingColumn      = "missing_column"
	IssueRequired           = "required"
	IssueInvalidFormat      = "invalid_format"
	IssueUnknownEnum        = "unknown_enum"
	IssueUnusualFormat      = "unusual_format"
	IssueDuplicateKey       = "duplicate_key"
	IssueDuplicateValue     = "duplicate_value"
	IssueUnresolvedRef      = "unresolved_reference"
	IssueAmbiguousRef       = "ambiguous_reference"
	IssueNegativeAmount     = "negative_amount"
	IssueDateOrder          = "date_order"
	IssueUnknownType        = "unknown_type"
	IssueAlreadyExists      = "already_exists"
	IssueConflict           = "conflict"
	IssueReferenceNotLanded = "reference_not_committed"
	IssueRolledBack         = "rolled_back"
)

// UnclassifiedEntity keys the bucket for combined-sheet rows whose type cell is not recognized.
const UnclassifiedEntity = "unclassified"

// Issue is a single error or warning tied to a source row and a canonical field.
// Row 0 denotes the header row (entity-level findings).
type Issue struct {
	Row     int    `json:"row"`
	Sheet   string `json:"sheet,omitempty"`
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

const (
	MatchExact    = "exact"
	MatchFuzzy    = "fuzzy"
	MatchUnmapped = "unmapped"
)

type ColumnMapping struct {
	Sheet    string `json:"sheet,omitempty"`
	Original string `json:"original_header"`
	MappedTo string `json:"canonical_field"`
	Match    string `json:"match"`
}

type PreviewRow struct {
	Row    int               `json:"row"`
	Values map[string]string `json:"values"`
}

type EntityValidation struct {
	Entity          string          `json:"entity"`
	RowCount        int             `json:"row_count"`
	ValidRows       int             `json:"valid_rows"`
	InvalidRows     int             `json:"invalid_rows"`
	ErrorCount      int             `json:"error_count"`
	WarningCount    int             `json:"warning_count"`
	Errors          []Issue         `json:"errors"`
	Warnings        []Issue         `json:"warnings"`
	OmittedErrors   int             `json:"omitted_errors"`
	OmittedWarnings int             `json:"omitted_warnings"`
	ColumnMappings  []ColumnMapping `json:"column_mappings"`
	Preview         []PreviewRow    `json:"preview"`
}

// ValidationResult is the reviewable outcome of one import; CanImport holds exactly when ErrorCount is zero.
type ValidationResult struct {
	SchemaVersion string                       `json:"schema_version"`
	ImportType    ImportType                   `json:"import_type"`
	Valid         bool                         `json:"valid"`
	CanImport     bool                         `json:"can_import"`
	TotalRows     int                          `json:"total_rows"`
	ErrorCount    int                          `json:"error_count"`
	WarningCount  int                          `json:"warning_count"`
	Entities      map[string]*EntityValidation `json:"entities"`
}

// Seal recomputes the aggregate counters and flags from the per-entity breakdown.
func (r *ValidationResult) Seal() {
	r.ErrorCount, r.WarningCount = 0, 0
	for _, ev := range r.Entities {
		r.ErrorCount += ev.ErrorCount
		r.WarningCount += ev.WarningCount
	}
	r.Valid = r.ErrorCount == 0
	r.CanImport = r.ErrorCount == 0
}
