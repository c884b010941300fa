package domain

// Finding describes the rule that rejected a submission.
type Finding struct {
	RuleName string `json:"rule"`
	Message  string `json:"message"`
	Snippet  string `json:"snippet,omitempty"`
}

// Verdict is the outcome of a security validation.
type Verdict struct {
	Accepted bool
	Reason   string
	Finding  *Finding
}

// Accept returns an accepting verdict.
func Accept() Verdict {
	return Verdict{Accepted: true}
}

// Reject returns a rejecting verdict with a bare reason.
func Reject(reason string) Verdict {
	return Verdict{Accepted: false, Reason: reason}
}

// RejectFinding returns a rejecting verdict carrying the finding.
func RejectFinding(f Finding) Verdict {
	return Verdict{Accepted: false, Reason: f.Message, Finding: &f}
}

// ValidationError wraps a rejecting verdict so it can travel as an error.
type ValidationError struct {
	Verdict Verdict
}

func (e *ValidationError) Error() string {
	return ErrValidationRejected.Error() + ": " + e.Verdict.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationRejected
}
