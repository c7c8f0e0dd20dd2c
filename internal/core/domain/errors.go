package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrTemporary           = errors.New("temporary failure")
)

// errorCodes lists kinds in match order with their stable client codes.
var errorCodes = []struct {
	kind error
	code string
}{
	{ErrUnsupportedFileType, "unsupported_file_type"},
	{ErrInvalidInput, "invalid_input"},
	{ErrUnauthorized, "unauthorized"},
	{ErrForbidden, "forbidden"},
	{ErrDocumentNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrTemporary, "temporarily_unavailable"},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCode names the kind of err for API clients, or "internal".
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return "internal"
}
