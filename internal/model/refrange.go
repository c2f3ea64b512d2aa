package model

import (
	"github.com/google/uuid"
)

// ReferenceRange is one candidate normal range for a (test, parameter) pair,
// optionally scoped by gender and/or an age band. Candidates are evaluated in
// specificity order; the first one whose scope admits the patient wins.
type ReferenceRange struct {
	Base
	TestID       uuid.UUID  `db:"test_id" json:"test_id"`
	ParameterID  *uuid.UUID `db:"parameter_id" json:"parameter_id,omitempty"`
	Gender       *Gender    `db:"gender" json:"gender,omitempty"`
	AgeMinYears  *int       `db:"age_min_years" json:"age_min_years,omitempty"`
	AgeMaxYears  *int       `db:"age_max_years" json:"age_max_years,omitempty"`
	NormalLow    *float64   `db:"normal_low" json:"normal_low,omitempty"`
	NormalHigh   *float64   `db:"normal_high" json:"normal_high,omitempty"`
	CriticalLow  *float64   `db:"critical_low" json:"critical_low,omitempty"`
	CriticalHigh *float64   `db:"critical_high" json:"critical_high,omitempty"`
	TextRange    string     `db:"text_range" json:"text_range,omitempty"`
}

// Matches reports whether the range's scope admits the patient. A range that
// specifies no gender or age band admits everyone.
func (r *ReferenceRange) Matches(gender Gender, ageYears *int) bool {
	if r.Gender != nil && *r.Gender != gender {
		return false
	}
	if r.AgeMinYears != nil {
		if ageYears == nil || *ageYears < *r.AgeMinYears {
			return false
		}
	}
	if r.AgeMaxYears != nil {
		if ageYears == nil || *ageYears > *r.AgeMaxYears {
			return false
		}
	}
	return true
}

// DeltaCheckRule holds the per-(test, parameter) thresholds for the delta
// check. Either limit may be absent; when both are absent for a pair no rule
// row exists and the default percent heuristic applies.
type DeltaCheckRule struct {
	Base
	TestID        uuid.UUID  `db:"test_id" json:"test_id"`
	ParameterID   *uuid.UUID `db:"parameter_id" json:"parameter_id,omitempty"`
	AbsoluteLimit *float64   `db:"absolute_limit" json:"absolute_limit,omitempty"`
	PercentLimit  *float64   `db:"percent_limit" json:"percent_limit,omitempty"`
}
