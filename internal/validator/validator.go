package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

// Validator wraps a struct validator with the import service's custom tags registered.
type Validator struct {
	structValidator *validator.Validate
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	// Register all custom validators once
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator: structValidator,
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// Validate validates s and converts tag failures into ValidationErrors.
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		if errs := ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}
	return nil
}

// Var validates a single value against a tag expression.
func (v *Validator) Var(field interface{}, tag string) error {
	return v.structValidator.Var(field, tag)
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("import_type", validateImportType)
	validate.RegisterValidation("job_status", validateJobStatus)
	validate.RegisterValidation("template_format", validateTemplateFormat)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
}

func validateImportType(fl validator.FieldLevel) bool {
	return models.ImportType(fl.Field().String()).IsValid()
}

func validateJobStatus(fl validator.FieldLevel) bool {
	return models.ImportJobStatus(fl.Field().String()).IsValid()
}

func validateTemplateFormat(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "xlsx", "csv":
		return true
	}
	return false
}
