package result

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/labnode/lims-api/internal/model"
	apperrors "github.com/labnode/lims-api/pkg/errors"
)

var validate = validator.New()

// intakeContext is what the validator hands the rest of the pipeline: the
// checked value plus every referenced entity, already fetched.
type intakeContext struct {
	value     model.ResultValue
	item      *model.OrderItem
	order     *model.Order
	test      *model.Test
	patient   *model.Patient
	parameter *model.Parameter
	previous  *model.LabResult
}

// validateSubmission performs the structural and referential checks on an
// inbound submission. Pure check-and-fetch: no side effects.
func (s *Service) validateSubmission(ctx context.Context, sub *model.ResultSubmission) (*intakeContext, error) {
	if err := validate.Struct(sub); err != nil {
		return nil, apperrors.Validation("malformed submission", err)
	}

	value, err := sub.Value()
	if err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}

	if sub.Interpretation != nil && !model.Interpretation(*sub.Interpretation).Valid() {
		return nil, apperrors.Validation("unrecognized interpretation: "+*sub.Interpretation, nil)
	}

	item, err := s.orders.GetOrderItem(ctx, sub.OrderItemID)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		return nil, err
	}

	test, err := s.orders.GetTest(ctx, item.TestID)
	if err != nil {
		return nil, err
	}

	patient, err := s.orders.GetPatientForOrder(ctx, item.OrderID)
	if err != nil {
		return nil, err
	}

	ic := &intakeContext{
		value:   value,
		item:    item,
		order:   order,
		test:    test,
		patient: patient,
	}

	if sub.ParameterID != nil {
		param, err := s.orders.GetParameter(ctx, *sub.ParameterID)
		if err != nil {
			return nil, err
		}
		if param.TestID != item.TestID {
			return nil, apperrors.Validation("parameter does not belong to the item's test", nil)
		}
		ic.parameter = param
	}

	if sub.DeviceID != nil {
		if _, err := s.orders.GetDevice(ctx, *sub.DeviceID); err != nil {
			return nil, err
		}
	}

	if sub.IsCorrected {
		if sub.PreviousResultID == nil {
			return nil, apperrors.Validation("correction requires previous_result_id", nil)
		}
		previous, err := s.results.Get(ctx, *sub.PreviousResultID)
		if err != nil {
			return nil, err
		}
		if previous.OrderItemID != sub.OrderItemID {
			return nil, apperrors.Validation("previous result belongs to a different order item", nil)
		}
		ic.previous = previous
	}

	return ic, nil
}
