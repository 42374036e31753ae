package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/property-import-service/internal/errors"
	"github.com/SAP-F-2025/property-import-service/internal/importer"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// Import job errors
	ErrImportJobNotFound   = errors.New("import job not found")
	ErrInvalidTransition   = errors.New("import job cannot make this status transition")
	ErrImportHasErrors     = errors.New("import has validation errors and cannot be confirmed")
	ErrImportNotValidated  = errors.New("import job has no validation result")
	ErrMissingOrganization = errors.New("organization is required")

	// File errors, shared with the importer so errors.Is works across layers
	ErrUnsupportedFormat = importer.ErrUnsupportedFormat
	ErrFileTooLarge      = importer.ErrFileTooLarge
	ErrUnknownTemplate   = importer.ErrUnknownTemplate
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
	Err     error                  `json:"-"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

func (bre *BusinessRuleError) Unwrap() error {
	return bre.Err
}

// TransitionError reports a rejected status change. It matches ErrInvalidTransition.
type TransitionError struct {
	JobID  string
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s import job %s in status %s", e.Action, e.JobID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}, err error) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
		Err:     err,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrImportJobNotFound) ||
		errors.Is(err, ErrUnknownTemplate)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrMissingOrganization) {
		return true
	}
	var ve apperrors.ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var single *apperrors.ValidationError
	return errors.As(err, &single)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrImportHasErrors) ||
		errors.Is(err, ErrImportNotValidated)
}
