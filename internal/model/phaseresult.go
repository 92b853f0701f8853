package model

import "fmt"

// PhaseResult is the result variant every phase executor returns (§4.6):
// Ok(payload) | Skipped(reason) | Failed(kind, detail, retryable). Business
// failures are values, never panics; Go has no sum types so the zero value of
// the unused branches stays nil/empty.
type PhaseResult struct {
	Outcome   Outcome
	Payload   interface{}
	Reason    string
	Kind      ErrorKind
	Detail    string
	Retryable bool
}

// Outcome is the discriminant of PhaseResult.
type Outcome string

const (
	OutcomeOk      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

func Ok(payload interface{}) PhaseResult {
	return PhaseResult{Outcome: OutcomeOk, Payload: payload}
}

func Skipped(reason string) PhaseResult {
	return PhaseResult{Outcome: OutcomeSkipped, Reason: reason}
}

func Failed(kind ErrorKind, detail string, retryable bool) PhaseResult {
	return PhaseResult{Outcome: OutcomeFailed, Kind: kind, Detail: detail, Retryable: retryable}
}

func (r PhaseResult) IsOk() bool      { return r.Outcome == OutcomeOk }
func (r PhaseResult) IsFailed() bool  { return r.Outcome == OutcomeFailed }
func (r PhaseResult) IsSkipped() bool { return r.Outcome == OutcomeSkipped }

// PhaseError adapts a PhaseResult's failure branch to the error interface so
// callers that need a plain Go error (e.g. to wrap with %w) can get one
// without losing the kind/retryable classification. Mirrors the teacher's
// RuntimeError{Operation, Err, Retryable} shape.
type PhaseError struct {
	Phase     Phase
	Kind      ErrorKind
	Detail    string
	Retryable bool
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed [%s]: %s", e.Phase, e.Kind, e.Detail)
}

func NewPhaseError(phase Phase, r PhaseResult) *PhaseError {
	return &PhaseError{Phase: phase, Kind: r.Kind, Detail: r.Detail, Retryable: r.Retryable}
}
