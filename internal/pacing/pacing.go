// Package pacing converts a raw usage reading into a daily spending plan.
// Everything here is pure arithmetic over an injected clock value so results
// are deterministic and testable.
package pacing

import (
	"math"
	"time"
)

// Input carries everything the calculator needs. RemainingOverride is set
// when the upstream reported its own remaining figure; SessionBaseline is
// the usage count captured at process start.
type Input struct {
	UsedRequests      int
	MonthlyLimit      int
	Now               time.Time
	RemainingOverride *int
	SessionBaseline   *int
}

// Result is the derived spending plan. Recomputed on every resolution,
// never cached independently of the snapshot that produced it.
type Result struct {
	UsedRequests int `json:"used_requests"`
	MonthlyLimit int `json:"monthly_limit"`

	DaysInMonth   int `json:"days_in_month"`
	DayOfMonth    int `json:"day_of_month"`
	DaysRemaining int `json:"days_remaining"`

	Remaining            float64 `json:"remaining"`
	BaseDailyBudget      float64 `json:"base_daily_budget"`
	DailyAllowance       float64 `json:"daily_allowance"`
	TimeOfDayProgress    float64 `json:"time_of_day_progress"`
	EffectiveDaysElapsed float64 `json:"effective_days_elapsed"`
	AvgDailyUsage        float64 `json:"avg_daily_usage"`
	ExpectedByNow        float64 `json:"expected_by_now"`
	Banked               float64 `json:"banked"`
	Multiplier           float64 `json:"multiplier"`
	ProjectedEndOfMonth  int     `json:"projected_end_of_month"`

	SessionUsed *int `json:"session_used,omitempty"`
}

// Calculate derives the spending plan for the given moment. Inputs are
// assumed already validated; negative usage is the caller's bug, not ours.
func Calculate(in Input) Result {
	year, month, _ := in.Now.Date()
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, in.Now.Location()).Day()
	dayOfMonth := in.Now.Day()

	daysRemaining := daysInMonth - dayOfMonth + 1
	if daysRemaining < 1 {
		daysRemaining = 1
	}

	baseDailyBudget := float64(in.MonthlyLimit) / float64(daysInMonth)

	remaining := float64(in.MonthlyLimit - in.UsedRequests)
	if in.RemainingOverride != nil {
		remaining = float64(*in.RemainingOverride)
	}

	dailyAllowance := math.Max(0, remaining) / float64(daysRemaining)

	progress := float64(in.Now.Hour()*60+in.Now.Minute()) / 1440.0

	// Floor of 0.1 avoids a division blow-up at month start, minute zero.
	effectiveDays := math.Max(0.1, float64(dayOfMonth-1)+progress)

	avgDaily := float64(in.UsedRequests) / effectiveDays
	expectedByNow := effectiveDays * baseDailyBudget
	banked := expectedByNow - float64(in.UsedRequests)

	multiplier := 1.0
	if baseDailyBudget > 0 {
		multiplier = dailyAllowance / baseDailyBudget
	}

	r := Result{
		UsedRequests:         in.UsedRequests,
		MonthlyLimit:         in.MonthlyLimit,
		DaysInMonth:          daysInMonth,
		DayOfMonth:           dayOfMonth,
		DaysRemaining:        daysRemaining,
		Remaining:            remaining,
		BaseDailyBudget:      baseDailyBudget,
		DailyAllowance:       dailyAllowance,
		TimeOfDayProgress:    progress,
		EffectiveDaysElapsed: effectiveDays,
		AvgDailyUsage:        avgDaily,
		ExpectedByNow:        expectedByNow,
		Banked:               banked,
		Multiplier:           multiplier,
		ProjectedEndOfMonth:  int(math.Round(avgDaily * float64(daysInMonth))),
	}

	if in.SessionBaseline != nil {
		used := in.UsedRequests - *in.SessionBaseline
		if used < 0 {
			used = 0
		}
		r.SessionUsed = &used
	}

	return r
}
