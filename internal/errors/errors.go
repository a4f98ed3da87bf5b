// Package errors provides centralized error handling with category and
// context metadata for the migration pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryConnection     ErrorCategory = "connection"
	CategoryDatabase       ErrorCategory = "database"
	CategoryTransientWrite ErrorCategory = "transient-write"
	CategoryPartialBatch   ErrorCategory = "partial-batch"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryValidation     ErrorCategory = "validation"
	CategoryCheckpoint     ErrorCategory = "checkpoint"
	CategoryTransform      ErrorCategory = "transform"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryCancellation   ErrorCategory = "cancellation"
	CategoryGeneric        ErrorCategory = "generic"
)

// ComponentUnknown is used when the component has not been set.
const ComponentUnknown = "unknown"

// ErrNotFound reports that a record does not exist in the target store.
// It is a valid lookup outcome, distinct from a failed lookup.
var ErrNotFound = stderrors.New("record not found")

// EnhancedError wraps an error with component, category and context metadata.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches either the wrapped error or another EnhancedError of the
// same category.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the EnhancedError.
func (eb *ErrorBuilder) Build() error {
	if eb.err == nil {
		return nil
	}
	component := eb.component
	if component == "" {
		component = ComponentUnknown
	}
	category := eb.category
	if category == "" {
		category = CategoryGeneric
	}
	return &EnhancedError{
		Err:       eb.err,
		Component: component,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// --- Standard library passthroughs so callers only import this package ---

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error wrapping the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// NewStd creates a plain error without enhancement, for sentinels and
// simple cases.
func NewStd(text string) error {
	return stderrors.New(text)
}

// HasCategory reports whether err carries the given category anywhere in
// its chain.
func HasCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category == category
	}
	return false
}
