package record

import "errors"

var (
	// ErrInvalidParameter is returned for hyperparameters outside their domain,
	// such as a gamma that is not in (0, 1).
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidBudget is returned when an observation carries a non-positive budget.
	ErrInvalidBudget = errors.New("invalid budget")

	// ErrEmptyRecord is returned, wrapped together with ErrInvalidParameter,
	// when a quantile is requested from a record with no observations.
	ErrEmptyRecord = errors.New("empty record")
)
