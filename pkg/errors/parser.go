package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParseContext locates a malformed record in its source.
type ParseContext struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column"`
	Value    string `json:"value"`
	Expected string `json:"expected,omitempty"`
	// Record identifies the offending row to a human, e.g. "2025-06-10 ACME PAYROLL".
	Record string `json:"record,omitempty"`
}

// EnhancedParseError extends ForecastError with the location of the bad record
type EnhancedParseError struct {
	*ForecastError
	Context     *ParseContext `json:"context"`
	Recoverable bool          `json:"recoverable"`
	Examples    []string      `json:"examples,omitempty"`
}

// Error implements the error interface with location information
func (e *EnhancedParseError) Error() string {
	parts := []string{e.ForecastError.Message}

	if e.Context != nil {
		location := fmt.Sprintf("at %s", filepath.Base(e.Context.File))
		if e.Context.Line > 0 {
			location += fmt.Sprintf(":%d", e.Context.Line)
		}
		if e.Context.Column != "" {
			location += fmt.Sprintf(" column '%s'", e.Context.Column)
		}
		if e.Context.Value != "" {
			location += fmt.Sprintf(" value '%s'", e.Context.Value)
		}
		if e.Context.Record != "" {
			location += fmt.Sprintf(" (record %s)", e.Context.Record)
		}
		parts = append(parts, location)
	}

	return strings.Join(parts, " ")
}

// Unwrap exposes the ForecastError so errors.As finds it.
func (e *EnhancedParseError) Unwrap() error {
	return e.ForecastError
}

// GetDetailedError returns a detailed multi-line error description
func (e *EnhancedParseError) GetDetailedError() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}

	if c := e.Context; c != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", c.File))
		if c.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", c.Line))
		}
		if c.Record != "" {
			lines = append(lines, fmt.Sprintf("  → Record: %s", c.Record))
		}
		if c.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", c.Column))
		}
		if c.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", c.Value))
		}
		if c.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", c.Expected))
		}
	}

	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	if len(e.Examples) > 0 {
		lines = append(lines, fmt.Sprintf("  → Examples: %s", strings.Join(e.Examples, ", ")))
	}

	return strings.Join(lines, "\n")
}

// NewEnhancedParseError creates a new enhanced parse error
func NewEnhancedParseError(code ErrorCode, context *ParseContext, message string, cause error) *EnhancedParseError {
	var base *ForecastError
	if cause != nil {
		base = Wrap(cause, CategoryParse, code, message)
	} else {
		base = New(CategoryParse, code, message)
	}

	if context != nil {
		base.WithContext("file", context.File).
			WithContext("line", context.Line).
			WithContext("column", context.Column).
			WithContext("value", context.Value)
		if context.Record != "" {
			base.WithContext("record", context.Record)
		}
	}

	return &EnhancedParseError{
		ForecastError: base,
		Context:       context,
		Recoverable:   true,
	}
}

// WithExamples adds example values to help fix the error
func (e *EnhancedParseError) WithExamples(examples ...string) *EnhancedParseError {
	e.Examples = examples
	return e
}

// WithSuggestion adds a suggestion and returns the EnhancedParseError
func (e *EnhancedParseError) WithSuggestion(suggestion string) *EnhancedParseError {
	e.ForecastError.WithSuggestion(suggestion)
	return e
}

// InvalidAmountError creates an error for an amount that is not a number
func InvalidAmountError(ctx ParseContext) *EnhancedParseError {
	ctx.Expected = "signed decimal number"
	return NewEnhancedParseError(CodeInvalidAmount, &ctx, "invalid amount format", nil).
		WithExamples("1250.50", "-44.99", "$1,200.00").
		WithSuggestion("use a plain decimal amount, negative for withdrawals")
}

// InvalidDateError creates an error for an unparseable date
func InvalidDateError(ctx ParseContext) *EnhancedParseError {
	ctx.Expected = "date in YYYY-MM-DD format"
	return NewEnhancedParseError(CodeInvalidDate, &ctx, "invalid date format", nil).
		WithExamples("2025-06-10", "06/10/2025").
		WithSuggestion("use YYYY-MM-DD dates")
}

// InvalidOverrideTypeError creates an error for an unknown override type
func InvalidOverrideTypeError(ctx ParseContext) *EnhancedParseError {
	ctx.Expected = "override type"
	return NewEnhancedParseError(CodeInvalidOverrideType, &ctx, "invalid override type", nil).
		WithExamples("amount_change", "date_shift", "skip_occurrence", "add_occurrence")
}

// EmptyValueError creates an error for empty required values
func EmptyValueError(ctx ParseContext) *EnhancedParseError {
	ctx.Expected = "non-empty value"
	return NewEnhancedParseError(CodeMissingField, &ctx, "required field is empty", nil).
		WithSuggestion("provide a value for this required field")
}

// MissingColumnError creates an error for missing required columns
func MissingColumnError(file string, expectedColumns []string, actualColumns []string) *EnhancedParseError {
	missing := findMissingColumns(expectedColumns, actualColumns)

	ctx := &ParseContext{
		File:     file,
		Line:     1,
		Expected: fmt.Sprintf("columns: %s", strings.Join(expectedColumns, ", ")),
	}

	err := NewEnhancedParseError(CodeMissingColumn, ctx,
		fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")), nil).
		WithSuggestion("add the missing columns to your CSV file header")
	err.Recoverable = false
	return err
}

// ParseErrorCollector collects parse errors and decides whether parsing goes on
type ParseErrorCollector struct {
	errors          []*EnhancedParseError
	maxErrors       int
	continueOnError bool
}

// NewParseErrorCollector creates a new error collector. maxErrors <= 0 means no limit.
func NewParseErrorCollector(maxErrors int, continueOnError bool) *ParseErrorCollector {
	return &ParseErrorCollector{
		maxErrors:       maxErrors,
		continueOnError: continueOnError,
	}
}

// Add records err and reports whether parsing should continue.
func (c *ParseErrorCollector) Add(err *EnhancedParseError) bool {
	if err == nil {
		return true
	}

	c.errors = append(c.errors, err)

	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return c.continueOnError && err.Recoverable
}

// HasErrors returns true if any errors have been collected
func (c *ParseErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

// GetErrors returns all collected errors
func (c *ParseErrorCollector) GetErrors() []*EnhancedParseError {
	return c.errors
}

func findMissingColumns(expected, actual []string) []string {
	actualSet := make(map[string]bool)
	for _, col := range actual {
		actualSet[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range expected {
		if !actualSet[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}
	return missing
}

// FormatParseErrorsForUser formats parse errors, detailing the first few
func FormatParseErrorsForUser(errs []*EnhancedParseError) string {
	if len(errs) == 0 {
		return "No parse errors"
	}
	if len(errs) == 1 {
		return errs[0].GetDetailedError()
	}

	const maxDetailed = 3
	lines := []string{fmt.Sprintf("Found %d parse errors:", len(errs))}
	for i, err := range errs {
		if i == maxDetailed {
			lines = append(lines, "", fmt.Sprintf("... and %d more", len(errs)-maxDetailed))
			break
		}
		lines = append(lines, "", err.GetDetailedError())
	}
	return strings.Join(lines, "\n")
}
