package recipes

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Resource names reported by NotFoundError.
const (
	ResourceRecipe           = "Recipe"
	ResourceIngredient       = "Ingredient"
	ResourceTag              = "Tag"
	ResourceStep             = "Step"
	ResourceRecipeIngredient = "Ingredient on that recipe"
	ResourceRecipeTag        = "Tag on that recipe"
)

const forbiddenMessage = "Cannot edit a recipe that is not yours"

// ValidationError maps payload fields to the problems found with them.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns a ValidationError carrying a single message.
func NewValidationError(field, message string) *ValidationError {
	verr := &ValidationError{}
	verr.Add(field, message)
	return verr
}

// Add records a message against a field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no messages were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Messages flattens the recorded messages ordered by field name.
func (e *ValidationError) Messages() []string {
	if e == nil {
		return nil
	}
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, e.Fields[field]...)
	}
	return messages
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

func (e *ValidationError) orNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

// NotFoundError reports that a referenced resource does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " was not found"
}

// ForbiddenError reports that the ownership policy denied a mutation.
type ForbiddenError struct{}

func (e *ForbiddenError) Error() string {
	return forbiddenMessage
}

// ConflictError reports a uniqueness or invariant violation. Message is safe
// to show to callers; the store error is only reachable through Unwrap.
type ConflictError struct {
	Message string
	cause   error
}

func (e *ConflictError) Error() string {
	return e.Message
}

func (e *ConflictError) Unwrap() error {
	return e.cause
}

// SequencingError reports an attempt to delete a step other than the last one.
type SequencingError struct {
	Order     int
	LastOrder int
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("Only the last step in the recipe can be deleted. Step %d is not the last step (%d)", e.Order, e.LastOrder)
}

// Unwrap exposes the conflict so errors.As matches *ConflictError as well.
func (e *SequencingError) Unwrap() error {
	return &ConflictError{Message: e.Error()}
}

// ServiceError wraps unexpected failures with an operation scoped code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Outcome classifies an operation result for logs and metrics.
func Outcome(err error) string {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		forbiddenErr  *ForbiddenError
		sequencingErr *SequencingError
		conflictErr   *ConflictError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &forbiddenErr):
		return "forbidden"
	case errors.As(err, &sequencingErr):
		return "sequencing"
	case errors.As(err, &conflictErr):
		return "conflict"
	default:
		return "error"
	}
}

// IsDomainError reports whether err is one of the typed, caller facing failures.
func IsDomainError(err error) bool {
	switch Outcome(err) {
	case "ok", "error":
		return false
	default:
		return true
	}
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether a store error is a unique constraint failure
// on any supported driver.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// translateStoreError converts constraint failures into ConflictError with a
// caller safe message. Other errors are returned unchanged.
func translateStoreError(err error, conflictMessage string) error {
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err):
		return &ConflictError{Message: conflictMessage, cause: err}
	case isForeignKeyViolation(err):
		return &ConflictError{Message: "The change references a record that does not exist or is still in use", cause: err}
	default:
		return err
	}
}
