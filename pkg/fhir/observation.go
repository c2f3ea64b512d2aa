package fhir

import (
	"time"

	"github.com/labnode/lims-api/internal/model"
)

// Minimal Observation-style document for downstream interoperability. The
// engine hands the projector a composed read model and stays agnostic to the
// output schema.

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Observation struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id,omitempty"`
	Status            string            `json:"status,omitempty"`
	Code              CodeableConcept   `json:"code"`
	Subject           *Reference        `json:"subject,omitempty"`
	EffectiveDateTime *time.Time        `json:"effectiveDateTime,omitempty"`
	Issued            *time.Time        `json:"issued,omitempty"`
	ValueQuantity     *Quantity         `json:"valueQuantity,omitempty"`
	ValueString       string            `json:"valueString,omitempty"`
	ValueBoolean      *bool             `json:"valueBoolean,omitempty"`
	ValueCodeable     *CodeableConcept  `json:"valueCodeableConcept,omitempty"`
	Interpretation    []CodeableConcept `json:"interpretation,omitempty"`
	Note              []string          `json:"note,omitempty"`
}

// Observation status codes mirror the result lifecycle.
var observationStatus = map[model.ResultStatus]string{
	model.ResultStatusPreliminary: "preliminary",
	model.ResultStatusFinal:       "final",
	model.ResultStatusCorrected:   "corrected",
	model.ResultStatusCancelled:   "cancelled",
}

// HL7 v2 interpretation codes.
var interpretationCode = map[model.Interpretation]string{
	model.InterpretationNormal:       "N",
	model.InterpretationLow:          "L",
	model.InterpretationHigh:         "H",
	model.InterpretationCriticalLow:  "LL",
	model.InterpretationCriticalHigh: "HH",
}

// FromResult projects a persisted result into an Observation document.
func FromResult(rm *model.ResultReadModel) *Observation {
	res := rm.Result

	obs := &Observation{
		ResourceType: "Observation",
		ID:           res.ID.String(),
		Status:       observationStatus[res.Status],
		Code: CodeableConcept{
			Coding: []Coding{{Code: rm.Test.Code, Display: rm.Test.Name}},
			Text:   rm.Test.Name,
		},
		Subject: &Reference{
			Reference: "Patient/" + rm.Patient.ID.String(),
			Display:   rm.Patient.Name,
		},
		EffectiveDateTime: &res.CreatedAt,
	}
	if res.VerifiedAt != nil {
		obs.Issued = res.VerifiedAt
	}

	switch res.Value.Kind() {
	case model.ValueKindNumeric:
		v, _ := res.Value.Numeric()
		obs.ValueQuantity = &Quantity{
			Value:  v,
			Unit:   res.Unit,
			System: res.UnitSystem,
			Code:   res.UnitCode,
		}
	case model.ValueKindText:
		v, _ := res.Value.Text()
		obs.ValueString = v
	case model.ValueKindCoded:
		v, _ := res.Value.Coded()
		obs.ValueCodeable = &CodeableConcept{Coding: []Coding{{Code: v}}}
	case model.ValueKindBoolean:
		v, _ := res.Value.Boolean()
		obs.ValueBoolean = &v
	}

	if code, ok := interpretationCode[res.Interpretation]; ok {
		obs.Interpretation = []CodeableConcept{{
			Coding: []Coding{{
				System: "http://terminology.hl7.org/CodeSystem/v3-ObservationInterpretation",
				Code:   code,
			}},
			Text: string(res.Interpretation),
		}}
	}

	if res.Notes != "" {
		obs.Note = append(obs.Note, res.Notes)
	}
	if res.DeltaCheck.Performed && !res.DeltaCheck.Passed {
		obs.Note = append(obs.Note, "delta check failed: "+res.DeltaCheck.Notes)
	}
	return obs
}
