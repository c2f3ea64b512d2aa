package fhir

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labnode/lims-api/internal/model"
)

func readModel(res *model.LabResult) *model.ResultReadModel {
	return &model.ResultReadModel{
		Result: res,
		Test:   &model.Test{Base: model.Base{ID: uuid.New()}, Code: "GLU", Name: "Glucose"},
		Patient: &model.Patient{
			Base: model.Base{ID: uuid.New()},
			Name: "Ada Reyes",
		},
	}
}

func TestFromResultNumeric(t *testing.T) {
	res := &model.LabResult{
		Base:           model.Base{ID: uuid.New()},
		Value:          model.NewNumericValue(7.2),
		Unit:           "mmol/L",
		UnitCode:       "mmol/L",
		UnitSystem:     "http://unitsofmeasure.org",
		Interpretation: model.InterpretationHigh,
		Status:         model.ResultStatusFinal,
	}
	rm := readModel(res)

	obs := FromResult(rm)

	assert.Equal(t, "Observation", obs.ResourceType)
	assert.Equal(t, "final", obs.Status)
	assert.Equal(t, "Glucose", obs.Code.Text)
	require.NotNil(t, obs.ValueQuantity)
	assert.Equal(t, 7.2, obs.ValueQuantity.Value)
	assert.Equal(t, "mmol/L", obs.ValueQuantity.Unit)

	require.Len(t, obs.Interpretation, 1)
	require.Len(t, obs.Interpretation[0].Coding, 1)
	assert.Equal(t, "H", obs.Interpretation[0].Coding[0].Code)
	assert.Equal(t, "high", obs.Interpretation[0].Text)

	require.NotNil(t, obs.Subject)
	assert.Equal(t, "Patient/"+rm.Patient.ID.String(), obs.Subject.Reference)
}

func TestFromResultInterpretationCodes(t *testing.T) {
	cases := map[model.Interpretation]string{
		model.InterpretationNormal:       "N",
		model.InterpretationLow:          "L",
		model.InterpretationHigh:         "H",
		model.InterpretationCriticalLow:  "LL",
		model.InterpretationCriticalHigh: "HH",
	}

	for interp, want := range cases {
		res := &model.LabResult{
			Base:           model.Base{ID: uuid.New()},
			Value:          model.NewNumericValue(1),
			Interpretation: interp,
			Status:         model.ResultStatusPreliminary,
		}
		obs := FromResult(readModel(res))
		require.Len(t, obs.Interpretation, 1)
		assert.Equal(t, want, obs.Interpretation[0].Coding[0].Code)
	}

	// No interpretation yields no interpretation block.
	res := &model.LabResult{
		Base:   model.Base{ID: uuid.New()},
		Value:  model.NewTextValue("clear"),
		Status: model.ResultStatusPreliminary,
	}
	obs := FromResult(readModel(res))
	assert.Empty(t, obs.Interpretation)
	assert.Equal(t, "clear", obs.ValueString)
}

func TestFromResultFailedDeltaNote(t *testing.T) {
	res := &model.LabResult{
		Base:   model.Base{ID: uuid.New()},
		Value:  model.NewNumericValue(9.5),
		Status: model.ResultStatusPreliminary,
		DeltaCheck: model.DeltaCheckOutcome{
			Performed: true,
			Passed:    false,
			Notes:     "percent change 58.33% exceeds default limit 50.00%",
		},
	}

	obs := FromResult(readModel(res))
	require.Len(t, obs.Note, 1)
	assert.Contains(t, obs.Note[0], "delta check failed")
}
