package errors

import "errors"

type Category string

const (
	CategoryInvalidInput      Category = "invalid_input"
	CategoryVerification      Category = "verification_failed"
	CategoryRegression        Category = "regression_failed"
	CategoryDependencyMissing Category = "dependency_missing"
	CategoryIOFailure         Category = "io_failure"
	CategoryStateContention   Category = "state_contention"
	CategoryInternalFailure   Category = "internal_failure"
)

// Shape-check codes attached to CategoryInvalidInput errors.
const (
	CodeInvalidRecipe     = "invalid_recipe"
	CodeInvalidPlan       = "invalid_plan"
	CodeInvalidView       = "invalid_view"
	CodeInvalidCandidates = "invalid_candidates"
	CodeInvalidProfile    = "invalid_profile"
	CodeRecordNotFound    = "record_not_found"
)

type classifiedError struct {
	category  Category
	code      string
	hint      string
	retryable bool
	cause     error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func Wrap(cause error, category Category, code, hint string, retryable bool) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category:  category,
		code:      code,
		hint:      hint,
		retryable: retryable,
		cause:     cause,
	}
}

// InvalidInput marks an upstream contract violation: a recipe, plan, view or
// candidate pool that is missing fields the analysis needs.
func InvalidInput(cause error, code string) error {
	return Wrap(cause, CategoryInvalidInput, code, "check the record against its schema", false)
}

// NotFound marks a record-store miss.
func NotFound(cause error) error {
	return Wrap(cause, CategoryDependencyMissing, CodeRecordNotFound, "check the record id and store location", false)
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

func RetryableOf(err error) bool {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}
	return false
}
