package result

import (
	"fmt"
	"math"

	"github.com/labnode/lims-api/internal/model"
)

// DefaultPercentDeltaLimit applies when no DeltaCheckRule is configured for a
// (test, parameter) pair. Overridable through lab.default_delta_percent_limit.
const DefaultPercentDeltaLimit = 50.0

// EvaluateDelta compares the current numeric value against the most recent
// prior value. It is a pure function of its inputs; a failed check is a
// recorded outcome, never an error. When previous is zero the percent delta
// is treated as 0 rather than dividing by zero, so only an absolute limit can
// fail the check in that case.
func EvaluateDelta(current float64, previous *float64, rule *model.DeltaCheckRule, defaultPercentLimit float64) model.DeltaCheckOutcome {
	if previous == nil {
		return model.DeltaCheckOutcome{
			Performed: true,
			Passed:    true,
			Notes:     "no comparable prior result",
		}
	}

	absoluteDelta := math.Abs(current - *previous)
	percentDelta := 0.0
	if *previous != 0 {
		percentDelta = absoluteDelta / math.Abs(*previous) * 100
	}

	if rule != nil {
		// The absolute limit takes priority in the reported reason when both fail.
		if rule.AbsoluteLimit != nil && absoluteDelta > *rule.AbsoluteLimit {
			return model.DeltaCheckOutcome{
				Performed: true,
				Passed:    false,
				Notes:     fmt.Sprintf("absolute change %.2f exceeds limit %.2f", absoluteDelta, *rule.AbsoluteLimit),
			}
		}
		if rule.PercentLimit != nil && percentDelta > *rule.PercentLimit {
			return model.DeltaCheckOutcome{
				Performed: true,
				Passed:    false,
				Notes:     fmt.Sprintf("percent change %.2f%% exceeds limit %.2f%%", percentDelta, *rule.PercentLimit),
			}
		}
		return model.DeltaCheckOutcome{
			Performed: true,
			Passed:    true,
			Notes:     fmt.Sprintf("change %.2f (%.2f%%) within configured limits", absoluteDelta, percentDelta),
		}
	}

	if percentDelta > defaultPercentLimit {
		return model.DeltaCheckOutcome{
			Performed: true,
			Passed:    false,
			Notes:     fmt.Sprintf("percent change %.2f%% exceeds default limit %.2f%%", percentDelta, defaultPercentLimit),
		}
	}
	return model.DeltaCheckOutcome{
		Performed: true,
		Passed:    true,
		Notes:     fmt.Sprintf("change %.2f (%.2f%%) within default limit", absoluteDelta, percentDelta),
	}
}
