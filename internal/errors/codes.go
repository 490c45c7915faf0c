package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents internal error codes for catalog operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument        ErrorCode = 1000
	ErrCodeNotFound               ErrorCode = 1001
	ErrCodeDataSetNotFound        ErrorCode = 1002
	ErrCodeRepresentationNotFound ErrorCode = 1003
	ErrCodeProviderNotFound       ErrorCode = 1004
	ErrCodeAlreadyExists          ErrorCode = 1005
	ErrCodeNotEmpty               ErrorCode = 1006
	ErrCodeMalformedToken         ErrorCode = 1007

	// Server errors (5xx equivalent)
	ErrCodeInternal         ErrorCode = 2000
	ErrCodeStoreUnavailable ErrorCode = 2001
)

// String returns a short label used in logs and metrics
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeDataSetNotFound:
		return "dataset_not_found"
	case ErrCodeRepresentationNotFound:
		return "representation_not_found"
	case ErrCodeProviderNotFound:
		return "provider_not_found"
	case ErrCodeAlreadyExists:
		return "already_exists"
	case ErrCodeNotEmpty:
		return "not_empty"
	case ErrCodeMalformedToken:
		return "malformed_token"
	case ErrCodeStoreUnavailable:
		return "store_unavailable"
	default:
		return "internal"
	}
}

// CatalogError represents a structured error with code and context
type CatalogError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CatalogError) Unwrap() error {
	return e.Cause
}

// NewCatalogError creates a new CatalogError
func NewCatalogError(code ErrorCode, message string, cause error) *CatalogError {
	return &CatalogError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *CatalogError) WithDetail(key string, value interface{}) *CatalogError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string) *CatalogError {
	return NewCatalogError(ErrCodeInvalidArgument, message, nil)
}

func DataSetNotFound(providerID, dataSetID string) *CatalogError {
	return NewCatalogError(ErrCodeDataSetNotFound, fmt.Sprintf("data set not found: %s/%s", providerID, dataSetID), nil).
		WithDetail("provider_id", providerID).
		WithDetail("dataset_id", dataSetID)
}

func RepresentationNotFound(cloudID, schema, version string) *CatalogError {
	return NewCatalogError(ErrCodeRepresentationNotFound,
		fmt.Sprintf("representation not found: %s/%s/%s", cloudID, schema, version), nil).
		WithDetail("cloud_id", cloudID).
		WithDetail("schema", schema).
		WithDetail("version", version)
}

func RepresentationNameNotFound(cloudID, schema string) *CatalogError {
	return NewCatalogError(ErrCodeRepresentationNotFound,
		fmt.Sprintf("representation not found: %s/%s", cloudID, schema), nil).
		WithDetail("cloud_id", cloudID).
		WithDetail("schema", schema)
}

func ProviderNotFound(providerID string) *CatalogError {
	return NewCatalogError(ErrCodeProviderNotFound, fmt.Sprintf("provider not found: %s", providerID), nil).
		WithDetail("provider_id", providerID)
}

func DataSetAlreadyExists(providerID, dataSetID string) *CatalogError {
	return NewCatalogError(ErrCodeAlreadyExists, fmt.Sprintf("data set already exists: %s/%s", providerID, dataSetID), nil).
		WithDetail("provider_id", providerID).
		WithDetail("dataset_id", dataSetID)
}

func ProviderAlreadyExists(providerID string) *CatalogError {
	return NewCatalogError(ErrCodeAlreadyExists, fmt.Sprintf("provider already exists: %s", providerID), nil).
		WithDetail("provider_id", providerID)
}

func DataSetNotEmpty(providerID, dataSetID string) *CatalogError {
	return NewCatalogError(ErrCodeNotEmpty, fmt.Sprintf("data set is not empty: %s/%s", providerID, dataSetID), nil).
		WithDetail("provider_id", providerID).
		WithDetail("dataset_id", dataSetID)
}

func MalformedToken(token, reason string) *CatalogError {
	return NewCatalogError(ErrCodeMalformedToken, fmt.Sprintf("malformed pagination token '%s': %s", token, reason), nil).
		WithDetail("token", token).
		WithDetail("reason", reason)
}

func StoreUnavailable(message string, cause error) *CatalogError {
	return NewCatalogError(ErrCodeStoreUnavailable, message, cause)
}

func InternalError(message string, cause error) *CatalogError {
	return NewCatalogError(ErrCodeInternal, message, cause)
}

// IsCatalogError checks if an error is, or wraps, a CatalogError
func IsCatalogError(err error) bool {
	var ce *CatalogError
	return stderrors.As(err, &ce)
}

// GetCode extracts the error code from an error chain
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ce *CatalogError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err is any of the not-found codes
func IsNotFound(err error) bool {
	switch GetCode(err) {
	case ErrCodeNotFound, ErrCodeDataSetNotFound, ErrCodeRepresentationNotFound, ErrCodeProviderNotFound:
		return true
	default:
		return false
	}
}

func IsAlreadyExists(err error) bool {
	return GetCode(err) == ErrCodeAlreadyExists
}

func IsNotEmpty(err error) bool {
	return GetCode(err) == ErrCodeNotEmpty
}

func IsMalformedToken(err error) bool {
	return GetCode(err) == ErrCodeMalformedToken
}

func IsStoreUnavailable(err error) bool {
	return GetCode(err) == ErrCodeStoreUnavailable
}
