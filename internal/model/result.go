package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ResultStatus string

const (
	ResultStatusPreliminary ResultStatus = "preliminary"
	ResultStatusFinal       ResultStatus = "final"
	ResultStatusCorrected   ResultStatus = "corrected"
	ResultStatusCancelled   ResultStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from the status.
// A final result leaves the terminal state only through the correction path,
// which appends a new row rather than mutating this one.
func (s ResultStatus) Terminal() bool {
	return s == ResultStatusCorrected || s == ResultStatusCancelled
}

type Interpretation string

const (
	InterpretationNormal       Interpretation = "normal"
	InterpretationLow          Interpretation = "low"
	InterpretationHigh         Interpretation = "high"
	InterpretationCriticalLow  Interpretation = "critical_low"
	InterpretationCriticalHigh Interpretation = "critical_high"
)

func (i Interpretation) Valid() bool {
	switch i {
	case InterpretationNormal, InterpretationLow, InterpretationHigh,
		InterpretationCriticalLow, InterpretationCriticalHigh:
		return true
	}
	return false
}

type ValueKind string

const (
	ValueKindNumeric ValueKind = "numeric"
	ValueKindText    ValueKind = "text"
	ValueKindCoded   ValueKind = "coded"
	ValueKindBoolean ValueKind = "boolean"
)

// ResultValue is the tagged union for the single populated value slot of a
// result. The constructors are the only way to build a populated value, which
// keeps "exactly one slot" a structural property instead of a check scattered
// across branches.
type ResultValue struct {
	kind    ValueKind
	numeric float64
	text    string
	coded   string
	boolean bool
}

func NewNumericValue(v float64) ResultValue { return ResultValue{kind: ValueKindNumeric, numeric: v} }
func NewTextValue(v string) ResultValue     { return ResultValue{kind: ValueKindText, text: v} }
func NewCodedValue(v string) ResultValue    { return ResultValue{kind: ValueKindCoded, coded: v} }
func NewBooleanValue(v bool) ResultValue    { return ResultValue{kind: ValueKindBoolean, boolean: v} }

func (v ResultValue) Kind() ValueKind { return v.kind }
func (v ResultValue) IsZero() bool    { return v.kind == "" }

func (v ResultValue) Numeric() (float64, bool) { return v.numeric, v.kind == ValueKindNumeric }
func (v ResultValue) Text() (string, bool)     { return v.text, v.kind == ValueKindText }
func (v ResultValue) Coded() (string, bool)    { return v.coded, v.kind == ValueKindCoded }
func (v ResultValue) Boolean() (bool, bool)    { return v.boolean, v.kind == ValueKindBoolean }

// Display renders the value for alert snapshots and export documents.
func (v ResultValue) Display() string {
	switch v.kind {
	case ValueKindNumeric:
		return fmt.Sprintf("%g", v.numeric)
	case ValueKindText:
		return v.text
	case ValueKindCoded:
		return v.coded
	case ValueKindBoolean:
		return fmt.Sprintf("%t", v.boolean)
	}
	return ""
}

// DeltaCheckOutcome records the result of comparing a value to the patient's
// most recent prior value. A failed check is an outcome, not an error.
type DeltaCheckOutcome struct {
	Performed bool   `db:"delta_check_performed" json:"performed"`
	Passed    bool   `db:"delta_check_passed" json:"passed"`
	Notes     string `db:"delta_check_notes" json:"notes,omitempty"`
}

type LabResult struct {
	Base
	OrderItemID      uuid.UUID         `json:"order_item_id"`
	ParameterID      *uuid.UUID        `json:"parameter_id,omitempty"`
	Value            ResultValue       `json:"-"`
	Unit             string            `json:"unit,omitempty"`
	UnitCode         string            `json:"unit_code,omitempty"`
	UnitSystem       string            `json:"unit_system,omitempty"`
	Interpretation   Interpretation    `json:"interpretation,omitempty"`
	MethodID         *uuid.UUID        `json:"method_id,omitempty"`
	DeviceID         *uuid.UUID        `json:"device_id,omitempty"`
	PerformedBy      uuid.UUID         `json:"performed_by"`
	VerifiedBy       *uuid.UUID        `json:"verified_by,omitempty"`
	VerifiedAt       *time.Time        `json:"verified_at,omitempty"`
	Signature        string            `json:"signature,omitempty"`
	Status           ResultStatus      `json:"status"`
	IsCorrected      bool              `json:"is_corrected"`
	CorrectionReason string            `json:"correction_reason,omitempty"`
	PreviousResultID *uuid.UUID        `json:"previous_result_id,omitempty"`
	DeltaCheck       DeltaCheckOutcome `json:"delta_check"`
	Notes            string            `json:"notes,omitempty"`
}

// ResultSubmission is the inbound payload for creating or correcting a result.
// Exactly one of the four value fields must be set.
type ResultSubmission struct {
	OrderItemID      uuid.UUID  `json:"order_item_id" binding:"required" validate:"required"`
	ParameterID      *uuid.UUID `json:"parameter_id"`
	NumericValue     *float64   `json:"numeric_value"`
	TextValue        *string    `json:"text_value"`
	CodedValue       *string    `json:"coded_value"`
	BooleanValue     *bool      `json:"boolean_value"`
	Unit             string     `json:"unit"`
	UnitCode         string     `json:"unit_code"`
	UnitSystem       string     `json:"unit_system"`
	Interpretation   *string    `json:"interpretation" validate:"omitempty,oneof=normal low high critical_low critical_high"`
	MethodID         *uuid.UUID `json:"method_id"`
	DeviceID         *uuid.UUID `json:"device_id"`
	Notes            string     `json:"notes"`
	RunDeltaCheck    bool       `json:"run_delta_check"`
	IsCorrected      bool       `json:"is_corrected"`
	PreviousResultID *uuid.UUID `json:"previous_result_id" validate:"required_if=IsCorrected true"`
	CorrectionReason string     `json:"correction_reason"`
}

// Value folds the four nullable submission fields into the tagged union.
// Zero or multiple populated slots is a submission error.
func (s *ResultSubmission) Value() (ResultValue, error) {
	var value ResultValue
	populated := 0
	if s.NumericValue != nil {
		value = NewNumericValue(*s.NumericValue)
		populated++
	}
	if s.TextValue != nil {
		value = NewTextValue(*s.TextValue)
		populated++
	}
	if s.CodedValue != nil {
		value = NewCodedValue(*s.CodedValue)
		populated++
	}
	if s.BooleanValue != nil {
		value = NewBooleanValue(*s.BooleanValue)
		populated++
	}
	if populated != 1 {
		return ResultValue{}, fmt.Errorf("exactly one value field must be set, got %d", populated)
	}
	return value, nil
}

// VerificationRequest carries the signature captured when a result is
// verified to final.
type VerificationRequest struct {
	Signature string `json:"signature"`
}

// ResultReadModel is the composed view the workflow operates on: the result
// together with the entities the validation and classification steps need.
type ResultReadModel struct {
	Result    *LabResult `json:"result"`
	OrderItem *OrderItem `json:"order_item"`
	Test      *Test      `json:"test"`
	Patient   *Patient   `json:"patient"`
}
