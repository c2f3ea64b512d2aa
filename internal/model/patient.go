package model

import (
	"time"
)

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

type Patient struct {
	Base
	Name        string     `db:"name" json:"name"`
	Gender      Gender     `db:"gender" json:"gender"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
}

// AgeYears returns the patient's age at the given instant, or nil when the
// date of birth is unknown.
func (p *Patient) AgeYears(at time.Time) *int {
	if p.DateOfBirth == nil {
		return nil
	}
	years := at.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return &years
}
