package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for the ingestion pipeline. Errors are matched by marking
// them with one of these via the builder's Mark call.
var (
	ErrNotFound            = new(ErrCodeNotFound, "resource not found")
	ErrValidation          = new(ErrCodeValidation, "validation error")
	ErrConfigInvalid       = new(ErrCodeConfigInvalid, "invalid configuration")
	ErrTransport           = new(ErrCodeTransport, "transport error")
	ErrObjectNotFound      = new(ErrCodeObjectNotFound, "object not found")
	ErrManifestMalformed   = new(ErrCodeManifestMalformed, "malformed manifest")
	ErrSchemaConflict      = new(ErrCodeSchemaConflict, "schema evolution conflict")
	ErrBackendWrite        = new(ErrCodeBackendWrite, "backend write failed")
	ErrStateInconsistent   = new(ErrCodeStateInconsistent, "state store inconsistent")
	ErrBackendNotAvailable = new(ErrCodeBackendNotAvailable, "backend not available")
	ErrDatabase            = new(ErrCodeDatabase, "database error")
	ErrSystem              = new(ErrCodeSystemError, "system error")
)

const (
	ErrCodeNotFound            = "not_found"
	ErrCodeValidation          = "validation_error"
	ErrCodeConfigInvalid       = "config_invalid"
	ErrCodeTransport           = "transport_error"
	ErrCodeObjectNotFound      = "object_not_found"
	ErrCodeManifestMalformed   = "manifest_malformed"
	ErrCodeSchemaConflict      = "schema_evolution_conflict"
	ErrCodeBackendWrite        = "backend_write_failed"
	ErrCodeStateInconsistent   = "state_store_inconsistent"
	ErrCodeBackendNotAvailable = "backend_not_available"
	ErrCodeDatabase            = "database_error"
	ErrCodeSystemError         = "system_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsObjectNotFound checks if an error is an object-store 404
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsTransport checks if an error is a transient transport error
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsManifestMalformed checks if an error is a malformed manifest error
func IsManifestMalformed(err error) bool {
	return errors.Is(err, ErrManifestMalformed)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfigInvalid checks if an error is a configuration error
func IsConfigInvalid(err error) bool {
	return errors.Is(err, ErrConfigInvalid)
}

// IsBackendNotAvailable checks if an error is an unknown-backend error
func IsBackendNotAvailable(err error) bool {
	return errors.Is(err, ErrBackendNotAvailable)
}
