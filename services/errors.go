package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConcurrentModification is returned when a row lock cannot be taken immediately.
	ErrConcurrentModification = errors.New("this repair is being modified by another user, please try again")
)

// ValidationError is a user-correctable error. Records lists every offending record.
type ValidationError struct {
	Message string
	Records []string
}

func (e *ValidationError) Error() string {
	if len(e.Records) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Records, "; ")
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PermissionError reports a role-gated action attempted by an unauthorized role.
type PermissionError struct {
	Message string
	Records []string
}

func (e *PermissionError) Error() string {
	if len(e.Records) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Records, ", ")
}

func forbidden(format string, args ...any) *PermissionError {
	return &PermissionError{Message: fmt.Sprintf(format, args...)}
}

const (
	PromptQuoteRequired    = "quote_required"
	PromptQuoteNotApproved = "quote_not_approved"

	ActionForce        = "force"
	ActionRequestQuote = "request_quote"
)

// Prompt is a decision point returned instead of a transition.
type Prompt struct {
	Code    string   `json:"code"`
	OrderID uint     `json:"order_id"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
}

// PromptError carries a Prompt. The triggering action made no change.
type PromptError struct {
	Prompt Prompt
}

func (e *PromptError) Error() string { return e.Prompt.Message }

// notFound converts gorm's not-found into ErrNotFound and passes other errors through.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// isLockNotAvailable reports a postgres NOWAIT failure (SQLSTATE 55P03).
func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "55P03"
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
