package runtime

import (
	"context"
	"errors"

	"github.com/pithecene-io/isobar/lode"
	"github.com/pithecene-io/isobar/types"
)

// ClassifyError maps a sequencer error to an outcome status.
//
// Classification order:
//   - nil: success
//   - context cancellation or deadline: canceled
//   - a model run that exited unsuccessfully: collaborator_failure
//   - ledger storage errors: storage_failure
//   - errors raised before the model is launched: setup_error
//   - everything else: collaborator_failure
func ClassifyError(err error) types.OutcomeStatus {
	var runErr *RunError
	switch {
	case err == nil:
		return types.OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.OutcomeCanceled
	case errors.As(err, &runErr):
		return types.OutcomeCollaboratorFailure
	case lode.IsStorageError(err):
		return types.OutcomeStorageFailure
	case errors.Is(err, ErrNoSpec),
		errors.Is(err, ErrOutputExists),
		errors.Is(err, ErrExecutableMissing),
		errors.Is(err, ErrCheckpointMismatch):
		return types.OutcomeSetupError
	default:
		return types.OutcomeCollaboratorFailure
	}
}
