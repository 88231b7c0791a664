package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrTemporary                 = errors.New("temporary failure")
	ErrSearchNotFound            = errors.New("search not found")
	ErrSearchNotCompleted        = errors.New("search not completed")
	ErrResultNotFound            = errors.New("search result not found")
	ErrKnowledgeDocumentNotFound = errors.New("knowledge document not found")
)

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
