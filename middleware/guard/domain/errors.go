package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable indica falha de infraestrutura no store de contadores
	// (timeout, conexão recusada, script com erro).
	ErrStoreUnavailable = errors.New("counter store unavailable")

	ErrVisitorNotFound = errors.New("visitor not found")
	ErrInvalidVisitor  = errors.New("invalid visitor id")
)

// PolicyError representa uma configuração inválida.
type PolicyError struct {
	Field   string
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("invalid policy: %s: %s", e.Field, e.Message)
}

func NewPolicyError(field, message string) *PolicyError {
	return &PolicyError{Field: field, Message: message}
}
