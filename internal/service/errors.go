package service

import "errors"

var (
	ErrRunMismatch         = errors.New("run id does not match the pending run")
	ErrNoPendingRun        = errors.New("no pending run")
	ErrIncompleteDecisions = errors.New("decisions do not cover every undecided email")
	ErrUnknownEmail        = errors.New("email does not belong to the run")
	ErrInvalidDecision     = errors.New("decision must be delete or keep")
	ErrDecisionConflict    = errors.New("email already has a different decision")
	ErrDeletionFailed      = errors.New("mailbox deletion failed")
	ErrInvalidAnalysis     = errors.New("invalid analysis response")
	ErrNotRestorable       = errors.New("email is not in the deletion log or was already restored")
)
