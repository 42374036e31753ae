package importer

import (
	"context"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

type Options struct {
	DateFormats    []string
	FuzzyThreshold float64
	Validator      ValidatorOptions
}

// Pipeline runs resolve, normalize, extract and validate over one parsed workbook.
type Pipeline struct {
	schema    *Schema
	extractor *Extractor
	validator *Validator
}

func NewPipeline(schema *Schema, opts Options) *Pipeline {
	if schema == nil {
		schema = DefaultSchema()
	}
	resolver := NewColumnResolver(opts.FuzzyThreshold)
	return &Pipeline{
		schema:    schema,
		extractor: NewExtractor(schema, resolver, NormalizeOptions{DateFormats: opts.DateFormats}),
		validator: NewValidator(schema, opts.Validator),
	}
}

func (p *Pipeline) Schema() *Schema {
	return p.schema
}

// Run stages the workbook and validates it. progress receives the number of rows handled.
func (p *Pipeline) Run(ctx context.Context, wb *Workbook, importType models.ImportType, progress func(done int)) (*models.StagedImport, error) {
	x, err := p.extractor.Extract(ctx, wb, importType, progress)
	if err != nil {
		return nil, err
	}
	return &models.StagedImport{
		Result:   p.validator.Validate(x, importType),
		Entities: x.Entities,
	}, nil
}
