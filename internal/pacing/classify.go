package pacing

// Status is the single-word pacing verdict shown to the user.
type Status string

const (
	StatusExhausted  Status = "exhausted"
	StatusOverBudget Status = "over-budget"
	StatusAhead      Status = "ahead"
	StatusOnTrack    Status = "on-track"
)

// overBudgetTolerance is the fraction of a day's budget the banked figure
// may dip below zero before the verdict flips to over-budget. Early in the
// month the expected-by-now curve sits fractionally above typical usage, so
// a strict banked < 0 would report a deficit worth minutes of budget.
const overBudgetTolerance = 0.1

// Classify maps a result to exactly one status. Check order matters:
// exhaustion wins over everything else regardless of the banked figure.
func Classify(r Result) Status {
	switch {
	case r.Remaining <= 0:
		return StatusExhausted
	case r.Banked < -overBudgetTolerance*r.BaseDailyBudget:
		return StatusOverBudget
	case r.Banked > r.BaseDailyBudget:
		return StatusAhead
	default:
		return StatusOnTrack
	}
}
