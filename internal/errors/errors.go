// Package errors provides structured error types for the Tracelens
// pipeline. All errors include a category, code, message, and retryable
// flag for consistent error handling across stages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline stage.
type ErrorCategory string

const (
	ErrCategoryParse    ErrorCategory = "PARSE"
	ErrCategoryScan     ErrorCategory = "SCAN"
	ErrCategoryMerge    ErrorCategory = "MERGE"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryCatalog  ErrorCategory = "CATALOG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Parse codes
	CodeBadRecord     = "BAD_RECORD"
	CodeBadKernelLine = "BAD_KERNEL_LINE"

	// Scan codes
	CodeOpenFailed = "OPEN_FAILED"
	CodeReadFailed = "READ_FAILED"

	// Merge codes
	CodeSourceMissing = "SOURCE_MISSING"
	CodeWriteFailed   = "WRITE_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Catalog codes
	CodeRunNotFound     = "RUN_NOT_FOUND"
	CodeCatalogCorrupt  = "CATALOG_CORRUPT"
	CodeRegisterFailed  = "REGISTER_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// TracelensError is the structured error type used throughout the system.
type TracelensError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *TracelensError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *TracelensError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *TracelensError) Is(target error) bool {
	var t *TracelensError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new TracelensError.
func New(category ErrorCategory, code, message string) *TracelensError {
	return &TracelensError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new TracelensError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *TracelensError {
	return &TracelensError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var te *TracelensError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a TracelensError.
func GetCategory(err error) ErrorCategory {
	var te *TracelensError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a TracelensError.
func GetCode(err error) string {
	var te *TracelensError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Only transient
// storage transfers qualify; a scan or merge failure means the single
// pass over the input is already spoiled.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewOpenError(path string, cause error) *TracelensError {
	return Wrap(ErrCategoryScan, CodeOpenFailed, fmt.Sprintf("cannot open %s", path), cause)
}

func NewReadError(path string, cause error) *TracelensError {
	return Wrap(ErrCategoryScan, CodeReadFailed, fmt.Sprintf("read failed on %s", path), cause)
}

func NewParseError(code, message string) *TracelensError {
	return New(ErrCategoryParse, code, message)
}

func NewMergeError(code, message string, cause error) *TracelensError {
	return Wrap(ErrCategoryMerge, code, message, cause)
}

func NewStorageError(code, message string, cause error) *TracelensError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *TracelensError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewInternalError(message string, cause error) *TracelensError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
