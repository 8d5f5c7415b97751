package fetch

import (
	"context"
	"errors"

	"github.com/pithecene-io/isobar/lode"
	"github.com/pithecene-io/isobar/types"
)

// ClassifyError maps a FetchAll error to an outcome status.
func ClassifyError(err error) types.OutcomeStatus {
	switch {
	case err == nil:
		return types.OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.OutcomeCanceled
	case errors.Is(err, ErrPathCollision),
		errors.Is(err, ErrEmptyPlan),
		errors.Is(err, ErrYearRange),
		errors.Is(err, ErrDestination):
		return types.OutcomeSetupError
	case lode.IsStorageError(err):
		return types.OutcomeStorageFailure
	default:
		return types.OutcomeCollaboratorFailure
	}
}
