package model

// DispatchOutcome is the result of sending one message to one patient
type DispatchOutcome struct {
	PatientID string `json:"id"`
	Email     string `json:"email"`
	Success   bool   `json:"success"`
}

// DispatchSummary is the ledger returned after a bulk send
type DispatchSummary struct {
	Success        bool              `json:"success"`
	Total          int               `json:"total"`
	SucceededCount int               `json:"successCount"`
	FailedCount    int               `json:"failureCount"`
	Outcomes       []DispatchOutcome `json:"results"`
}

// NewDispatchSummary tallies outcomes into a summary
func NewDispatchSummary(outcomes []DispatchOutcome) *DispatchSummary {
	s := &DispatchSummary{
		Total:    len(outcomes),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		if o.Success {
			s.SucceededCount++
		} else {
			s.FailedCount++
		}
	}
	s.Success = s.FailedCount == 0
	return s
}
