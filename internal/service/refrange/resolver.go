package refrange

import (
	"github.com/labnode/lims-api/internal/model"
)

// Resolve selects the applicable reference range for a patient from the
// candidate list. Candidates arrive in specificity order from the repository;
// the first one whose gender and age scope admit the patient wins, and that
// ordering is a deliberate, testable contract. A nil return means no range
// applies, which is valid and yields no interpretation.
func Resolve(candidates []*model.ReferenceRange, gender model.Gender, ageYears *int) *model.ReferenceRange {
	for _, candidate := range candidates {
		if candidate.Matches(gender, ageYears) {
			return candidate
		}
	}
	return nil
}

// Classify maps a numeric value and a resolved range to an interpretation in
// strict priority order: critical-low, critical-high, low, high, normal. A
// value below both the critical-low and normal-low bounds is critical-low,
// never low. A nil range, or one carrying only a free-text range, yields no
// interpretation.
func Classify(value float64, rr *model.ReferenceRange) model.Interpretation {
	if rr == nil {
		return ""
	}
	if rr.CriticalLow == nil && rr.CriticalHigh == nil && rr.NormalLow == nil && rr.NormalHigh == nil {
		return ""
	}

	switch {
	case rr.CriticalLow != nil && value < *rr.CriticalLow:
		return model.InterpretationCriticalLow
	case rr.CriticalHigh != nil && value > *rr.CriticalHigh:
		return model.InterpretationCriticalHigh
	case rr.NormalLow != nil && value < *rr.NormalLow:
		return model.InterpretationLow
	case rr.NormalHigh != nil && value > *rr.NormalHigh:
		return model.InterpretationHigh
	}
	return model.InterpretationNormal
}
