package domain

// Decision represents the outcome of evaluating a destination host against the
// interception policy. Pure value type, no external dependencies.
type Decision struct {
	Blocked  bool             // true if the host should receive a synthetic failure
	Failure  FailureType      // active failure type at decision time (meaningful when Blocked)
	Template ResponseTemplate // canned response to substitute (zero value when not blocked)
}

// IsBlocked is a convenience accessor.
func (d Decision) IsBlocked() bool { return d.Blocked }

// EmptyDecision returns a not-blocked decision.
func EmptyDecision() Decision { return Decision{Blocked: false} }
