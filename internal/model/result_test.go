package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts
}

func TestSubmissionValueExactlyOneSlot(t *testing.T) {
	v := 5.4
	text := "cloudy"
	coded := "POS"
	boolean := true

	sub := &ResultSubmission{OrderItemID: uuid.New(), NumericValue: &v}
	value, err := sub.Value()
	require.NoError(t, err)
	assert.Equal(t, ValueKindNumeric, value.Kind())
	n, ok := value.Numeric()
	assert.True(t, ok)
	assert.Equal(t, 5.4, n)

	// No slot populated.
	sub = &ResultSubmission{OrderItemID: uuid.New()}
	_, err = sub.Value()
	assert.Error(t, err)

	// Two slots populated.
	sub = &ResultSubmission{OrderItemID: uuid.New(), NumericValue: &v, TextValue: &text}
	_, err = sub.Value()
	assert.Error(t, err)

	// Each remaining kind on its own.
	sub = &ResultSubmission{OrderItemID: uuid.New(), TextValue: &text}
	value, err = sub.Value()
	require.NoError(t, err)
	assert.Equal(t, ValueKindText, value.Kind())

	sub = &ResultSubmission{OrderItemID: uuid.New(), CodedValue: &coded}
	value, err = sub.Value()
	require.NoError(t, err)
	assert.Equal(t, ValueKindCoded, value.Kind())

	sub = &ResultSubmission{OrderItemID: uuid.New(), BooleanValue: &boolean}
	value, err = sub.Value()
	require.NoError(t, err)
	assert.Equal(t, ValueKindBoolean, value.Kind())
}

func TestResultValueAccessorsGuardKind(t *testing.T) {
	numeric := NewNumericValue(9.1)

	_, ok := numeric.Text()
	assert.False(t, ok)
	_, ok = numeric.Boolean()
	assert.False(t, ok)

	var zero ResultValue
	assert.True(t, zero.IsZero())
	assert.False(t, NewTextValue("x").IsZero())
}

func TestResultValueDisplay(t *testing.T) {
	assert.Equal(t, "7.35", NewNumericValue(7.35).Display())
	assert.Equal(t, "140", NewNumericValue(140).Display())
	assert.Equal(t, "cloudy", NewTextValue("cloudy").Display())
	assert.Equal(t, "POS", NewCodedValue("POS").Display())
	assert.Equal(t, "true", NewBooleanValue(true).Display())
	assert.Equal(t, "", ResultValue{}.Display())
}

func TestResultStatusTerminal(t *testing.T) {
	assert.False(t, ResultStatusPreliminary.Terminal())
	assert.False(t, ResultStatusFinal.Terminal())
	assert.True(t, ResultStatusCorrected.Terminal())
	assert.True(t, ResultStatusCancelled.Terminal())
}

func TestPatientAgeYears(t *testing.T) {
	dob := mustTime(t, "1990-06-15")
	p := &Patient{DateOfBirth: &dob}

	age := p.AgeYears(mustTime(t, "2026-06-14"))
	require.NotNil(t, age)
	assert.Equal(t, 35, *age)

	age = p.AgeYears(mustTime(t, "2026-06-15"))
	require.NotNil(t, age)
	assert.Equal(t, 36, *age)

	unknown := &Patient{}
	assert.Nil(t, unknown.AgeYears(mustTime(t, "2026-06-15")))
}
