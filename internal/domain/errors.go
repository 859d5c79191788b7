package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur during aggregation operations.
var (
	// ErrInvalidConfiguration indicates that engine configuration is invalid
	// or internally inconsistent.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmptyInput indicates that a required score set is empty.
	ErrEmptyInput = errors.New("empty input")

	// ErrPostconditionViolated indicates that a fusion postcondition
	// (boundedness, monotonicity, idempotence) failed its runtime check.
	// This is an internal-consistency failure: it means a malformed weight
	// configuration passed validation incorrectly, never bad input data.
	ErrPostconditionViolated = errors.New("fusion postcondition violated")
)

// CardinalityError reports a wrong count of inputs or outputs at a stage
// boundary. It is always fatal and aborts the pipeline run before any
// partial output is produced.
type CardinalityError struct {
	// Stage names the pipeline stage whose contract was violated.
	Stage string
	// Expected is the count required by the stage contract.
	Expected int
	// Actual is the count observed.
	Actual int
}

// Error implements the error interface for CardinalityError.
func (e *CardinalityError) Error() string {
	return fmt.Sprintf("cardinality violation at stage %s: expected %d, got %d",
		e.Stage, e.Expected, e.Actual)
}

// NewCardinalityError creates a CardinalityError for the given stage.
func NewCardinalityError(stage string, expected, actual int) *CardinalityError {
	return &CardinalityError{Stage: stage, Expected: expected, Actual: actual}
}

// HermeticityViolation reports that an aggregation group did not contain
// exactly its expected member set. Unexpected members are always fatal;
// missing members are fatal only in strict mode.
type HermeticityViolation struct {
	// Group identifies the aggregation group (an area or cluster ID).
	Group string
	// Missing lists expected members that were absent.
	Missing []string
	// Unexpected lists observed members outside the expected set.
	// A non-empty value indicates an upstream contract break.
	Unexpected []string
}

// Error implements the error interface for HermeticityViolation.
func (e *HermeticityViolation) Error() string {
	if len(e.Unexpected) > 0 {
		return fmt.Sprintf("hermeticity violation in group %s: unexpected members %v",
			e.Group, e.Unexpected)
	}
	return fmt.Sprintf("hermeticity violation in group %s: missing members %v",
		e.Group, e.Missing)
}

// WeightNormalizationError reports a weight vector whose sum deviates from
// 1.0 beyond the accepted tolerance while strict normalization is in effect.
type WeightNormalizationError struct {
	// Context names the weight table or fusion call that failed.
	Context string
	// Sum is the offending weight total.
	Sum float64
}

// Error implements the error interface for WeightNormalizationError.
func (e *WeightNormalizationError) Error() string {
	return fmt.Sprintf("weight normalization error in %s: weights sum to %.6f, want 1.0",
		e.Context, e.Sum)
}

// CalibrationConfigError reports an invalid Choquet calibration: linear
// weights not summing to 1.0 or interaction mass exceeding its bound.
type CalibrationConfigError struct {
	// Reason describes the violated precondition.
	Reason string
}

// Error implements the error interface for CalibrationConfigError.
func (e *CalibrationConfigError) Error() string {
	return fmt.Sprintf("calibration config error: %s", e.Reason)
}

// CycleDetectedError reports an attempted provenance edge insertion that
// would create a cycle. It always indicates a programming error in a
// calling aggregator, never bad input data.
type CycleDetectedError struct {
	From int
	To   int
}

// Error implements the error interface for CycleDetectedError.
func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("provenance cycle detected: edge %d -> %d", e.From, e.To)
}

// DispersionComputationError reports degenerate input to the dispersion
// analyzer, such as fewer than two values where variance is required.
// It is fatal for the group and propagates as a stage failure.
type DispersionComputationError struct {
	// Group identifies the score set being analyzed.
	Group string
	// Reason describes the degenerate condition.
	Reason string
}

// Error implements the error interface for DispersionComputationError.
func (e *DispersionComputationError) Error() string {
	return fmt.Sprintf("dispersion computation failed for %s: %s", e.Group, e.Reason)
}

// ValidationError represents an error that occurred during configuration
// validation. It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}
