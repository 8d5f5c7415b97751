// Package types defines core domain types shared by the isobar flows.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// ContractVersion is the ledger record contract version.
const ContractVersion = Version

// Flow identifies which of the two independent flows produced a record.
type Flow string

const (
	// FlowSequence is the multi-run model sequencer.
	FlowSequence Flow = "sequence"
	// FlowFetch is the reanalysis batch fetcher.
	FlowFetch Flow = "fetch"
)

// FlowMeta carries the identity of one flow invocation.
// It is attached to every log line and ledger record.
type FlowMeta struct {
	// Flow is the producing flow.
	Flow Flow
	// Scope is the experiment name (sequence) or archive tag (fetch).
	Scope string
	// BatchID uniquely identifies this invocation.
	BatchID string
}

// Validate checks that the flow identity is complete.
func (m *FlowMeta) Validate() error {
	switch m.Flow {
	case FlowSequence, FlowFetch:
	case "":
		return errors.New("flow must be non-empty")
	default:
		return fmt.Errorf("unknown flow %q", m.Flow)
	}
	if m.Scope == "" {
		return errors.New("scope must be non-empty")
	}
	if m.BatchID == "" {
		return errors.New("batch_id must be non-empty")
	}
	return nil
}

// OutcomeStatus is the final classification of a flow or of one unit of work.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates every unit of work completed.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeCollaboratorFailure indicates the model executor or the
	// retrieval service reported a failure.
	OutcomeCollaboratorFailure OutcomeStatus = "collaborator_failure"
	// OutcomeSetupError indicates invalid configuration or a failed
	// initialization step (compile, directory preparation, planning).
	OutcomeSetupError OutcomeStatus = "setup_error"
	// OutcomeCanceled indicates the flow was interrupted.
	OutcomeCanceled OutcomeStatus = "canceled"
	// OutcomeStorageFailure indicates the ledger could not be written.
	OutcomeStorageFailure OutcomeStatus = "storage_failure"
)

// Outcome is the final outcome of a flow.
type Outcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
}
