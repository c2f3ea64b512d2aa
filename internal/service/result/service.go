package result

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/repository"
	"github.com/labnode/lims-api/internal/service/alert"
	"github.com/labnode/lims-api/internal/service/refrange"
	apperrors "github.com/labnode/lims-api/pkg/errors"
	"github.com/labnode/lims-api/pkg/logger"
	"github.com/labnode/lims-api/pkg/messaging"
	"github.com/labnode/lims-api/pkg/metrics"
	"github.com/labnode/lims-api/pkg/security"
)

// Config tunes the workflow engine.
type Config struct {
	DefaultPercentDeltaLimit float64
}

// Service is the transactional coordinator for the lab result workflow:
// intake validation, delta check, classification, persistence, completion
// cascade and alert creation run as one atomic unit per submission.
type Service struct {
	tx        repository.TxRunner
	results   repository.ResultRepository
	orders    repository.OrderRepository
	refs      repository.ReferenceRepository
	reports   repository.ReportRepository
	outbox    repository.OutboxRepository
	alerts    *alert.Service
	encryptor security.Encryptor
	logger    *logger.Logger
	metrics   *metrics.Metrics
	cfg       Config
}

func NewService(
	tx repository.TxRunner,
	results repository.ResultRepository,
	orders repository.OrderRepository,
	refs repository.ReferenceRepository,
	reports repository.ReportRepository,
	outbox repository.OutboxRepository,
	alerts *alert.Service,
	encryptor security.Encryptor,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	cfg Config,
) *Service {
	if cfg.DefaultPercentDeltaLimit <= 0 {
		cfg.DefaultPercentDeltaLimit = DefaultPercentDeltaLimit
	}
	return &Service{
		tx:        tx,
		results:   results,
		orders:    orders,
		refs:      refs,
		reports:   reports,
		outbox:    outbox,
		alerts:    alerts,
		encryptor: encryptor,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Submit processes an inbound result submission: a plain create, or the
// correction path when is_corrected is set. Everything commits or nothing
// does.
func (s *Service) Submit(ctx context.Context, actor model.ActorContext, sub *model.ResultSubmission) (*model.LabResult, error) {
	timer := prometheus.NewTimer(s.metrics.SubmissionLatency)
	defer timer.ObserveDuration()

	var out *model.LabResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		ic, err := s.validateSubmission(ctx, sub)
		if err != nil {
			return err
		}
		if sub.IsCorrected {
			out, err = s.correct(ctx, actor, sub, ic)
		} else {
			out, err = s.create(ctx, actor, sub, ic)
		}
		return err
	})
	if err != nil {
		s.metrics.ResultsSubmitted.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.ResultsSubmitted.WithLabelValues("ok").Inc()
	s.logger.Info("result submitted",
		"result_id", out.ID.String(),
		"order_item_id", out.OrderItemID.String(),
		"status", string(out.Status))
	return s.decrypt(out)
}

func (s *Service) create(ctx context.Context, actor model.ActorContext, sub *model.ResultSubmission, ic *intakeContext) (*model.LabResult, error) {
	now := time.Now()
	res := &model.LabResult{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		OrderItemID: ic.item.ID,
		ParameterID: sub.ParameterID,
		PerformedBy: actor.UserID,
		Status:      model.ResultStatusPreliminary,
	}

	if err := s.apply(ctx, sub, ic, res, nil); err != nil {
		return nil, err
	}

	if err := s.results.Create(ctx, res); err != nil {
		return nil, err
	}

	if err := s.finishSubmission(ctx, actor, res, ic, messaging.ChannelResultCreated); err != nil {
		return nil, err
	}
	return res, nil
}

// correct implements the versioning rule: a final result is never mutated in
// place; the old row flips to corrected and a new row carries the revision,
// linked through previous_result_id. A preliminary result is corrected by an
// ordinary in-place update instead.
func (s *Service) correct(ctx context.Context, actor model.ActorContext, sub *model.ResultSubmission, ic *intakeContext) (*model.LabResult, error) {
	previous := ic.previous

	if previous.Status.Terminal() {
		return nil, apperrors.Conflict("result is already "+string(previous.Status), nil)
	}

	if previous.Status == model.ResultStatusPreliminary {
		reason, err := s.encryptor.EncryptString(sub.CorrectionReason)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		previous.CorrectionReason = reason
		if err := s.apply(ctx, sub, ic, previous, &previous.ID); err != nil {
			return nil, err
		}
		if err := s.results.Update(ctx, previous); err != nil {
			return nil, err
		}
		if err := s.finishSubmission(ctx, actor, previous, ic, messaging.ChannelResultCorrected); err != nil {
			return nil, err
		}
		return previous, nil
	}

	if err := s.results.MarkCorrected(ctx, previous.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	// Carry forward everything the correction does not respecify.
	revision := *previous
	revision.ID = uuid.New()
	revision.CreatedAt = now
	revision.UpdatedAt = now
	revision.Status = model.ResultStatusPreliminary
	revision.PerformedBy = actor.UserID
	revision.VerifiedBy = nil
	revision.VerifiedAt = nil
	revision.Signature = ""
	revision.IsCorrected = true
	revision.PreviousResultID = &previous.ID

	reason, err := s.encryptor.EncryptString(sub.CorrectionReason)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	revision.CorrectionReason = reason

	if err := s.apply(ctx, sub, ic, &revision, &previous.ID); err != nil {
		return nil, err
	}

	if err := s.results.Create(ctx, &revision); err != nil {
		return nil, err
	}

	s.metrics.ResultsCorrected.Inc()
	if err := s.finishSubmission(ctx, actor, &revision, ic, messaging.ChannelResultCorrected); err != nil {
		return nil, err
	}
	return &revision, nil
}

// apply folds the submission into target: value, units, delta check outcome,
// interpretation and encrypted notes. excludeID keeps the result being
// corrected out of its own prior-result lookup.
func (s *Service) apply(ctx context.Context, sub *model.ResultSubmission, ic *intakeContext, target *model.LabResult, excludeID *uuid.UUID) error {
	target.Value = ic.value
	if sub.Unit != "" {
		target.Unit = sub.Unit
	}
	if sub.UnitCode != "" {
		target.UnitCode = sub.UnitCode
	}
	if sub.UnitSystem != "" {
		target.UnitSystem = sub.UnitSystem
	}
	if sub.MethodID != nil {
		target.MethodID = sub.MethodID
	}
	if sub.DeviceID != nil {
		target.DeviceID = sub.DeviceID
	}

	numeric, isNumeric := ic.value.Numeric()

	if sub.RunDeltaCheck && isNumeric {
		outcome, err := s.runDeltaCheck(ctx, numeric, ic, excludeID)
		if err != nil {
			return err
		}
		target.DeltaCheck = outcome
	}

	// Explicit input always wins over inference.
	if sub.Interpretation != nil {
		target.Interpretation = model.Interpretation(*sub.Interpretation)
	} else if isNumeric {
		ranges, err := s.refs.ListRanges(ctx, ic.item.TestID, sub.ParameterID)
		if err != nil {
			return err
		}
		rr := refrange.Resolve(ranges, ic.patient.Gender, ic.patient.AgeYears(time.Now()))
		target.Interpretation = refrange.Classify(numeric, rr)
	}

	if sub.Notes != "" {
		notes, err := s.encryptor.EncryptString(sub.Notes)
		if err != nil {
			return apperrors.Internal(err)
		}
		target.Notes = notes
	}
	return nil
}

func (s *Service) runDeltaCheck(ctx context.Context, current float64, ic *intakeContext, excludeID *uuid.UUID) (model.DeltaCheckOutcome, error) {
	prior, err := s.results.GetLatestPrior(ctx, ic.patient.ID, ic.item.TestID, paramID(ic), excludeID)
	if err != nil {
		return model.DeltaCheckOutcome{}, err
	}

	var previous *float64
	if prior != nil {
		if v, ok := prior.Value.Numeric(); ok {
			previous = &v
		}
	}

	rule, err := s.refs.GetDeltaRule(ctx, ic.item.TestID, paramID(ic))
	if err != nil {
		return model.DeltaCheckOutcome{}, err
	}

	outcome := EvaluateDelta(current, previous, rule, s.cfg.DefaultPercentDeltaLimit)
	if !outcome.Passed {
		s.metrics.DeltaCheckFailures.Inc()
	}
	return outcome, nil
}

func paramID(ic *intakeContext) *uuid.UUID {
	if ic.parameter == nil {
		return nil
	}
	return &ic.parameter.ID
}

// finishSubmission runs the post-persistence steps that still belong to the
// unit of work: completion cascade, alert creation and the outbox events.
func (s *Service) finishSubmission(ctx context.Context, actor model.ActorContext, res *model.LabResult, ic *intakeContext, channel string) error {
	if err := s.runCascade(ctx, actor, ic.item); err != nil {
		return err
	}

	alertCreated, err := s.alerts.EnsureForResult(ctx, res)
	if err != nil {
		return err
	}
	if alertCreated {
		s.metrics.AlertsCreated.Inc()
		if err := s.enqueueEvent(ctx, messaging.ChannelAlertCreated, map[string]interface{}{
			"result_id":      res.ID,
			"interpretation": res.Interpretation,
			"value":          res.Value.Display(),
		}); err != nil {
			return err
		}
	}

	return s.enqueueEvent(ctx, channel, map[string]interface{}{
		"result_id":     res.ID,
		"order_item_id": res.OrderItemID,
		"status":        res.Status,
	})
}

func (s *Service) enqueueEvent(ctx context.Context, eventType string, payload map[string]interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Internal(err)
	}
	return s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   raw,
	})
}

// Update applies an in-place revision to a preliminary result. Mutating a
// finalized result this way is a conflict; corrections go through Submit
// with is_corrected set.
func (s *Service) Update(ctx context.Context, actor model.ActorContext, id uuid.UUID, sub *model.ResultSubmission) (*model.LabResult, error) {
	var out *model.LabResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.results.Get(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status == model.ResultStatusFinal {
			return apperrors.Conflict("cannot modify a finalized result outside the correction path", nil)
		}
		if existing.Status.Terminal() {
			return apperrors.Conflict("result is already "+string(existing.Status), nil)
		}

		if sub.OrderItemID != existing.OrderItemID {
			return apperrors.Validation("order_item_id does not match the existing result", nil)
		}

		ic, err := s.validateSubmission(ctx, sub)
		if err != nil {
			return err
		}

		if err := s.apply(ctx, sub, ic, existing, &existing.ID); err != nil {
			return err
		}
		if err := s.results.Update(ctx, existing); err != nil {
			return err
		}
		if err := s.finishSubmission(ctx, actor, existing, ic, messaging.ChannelResultCreated); err != nil {
			return err
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.decrypt(out)
}

// Verify moves a preliminary result to final, capturing verifier identity,
// timestamp and signature. Verifying twice is a conflict and leaves the
// first verification untouched.
func (s *Service) Verify(ctx context.Context, actor model.ActorContext, id uuid.UUID, req *model.VerificationRequest) (*model.LabResult, error) {
	if !actor.CanVerifyResults() {
		return nil, apperrors.Forbidden("actor is not permitted to verify results", nil)
	}

	var out *model.LabResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		res, err := s.results.Get(ctx, id)
		if err != nil {
			return err
		}
		if res.Status == model.ResultStatusFinal {
			return apperrors.Conflict("result already verified", nil)
		}
		if res.Status.Terminal() {
			return apperrors.Conflict("result is already "+string(res.Status), nil)
		}

		now := time.Now()
		res.VerifiedBy = &actor.UserID
		res.VerifiedAt = &now
		res.Signature = req.Signature
		res.Status = model.ResultStatusFinal

		if err := s.results.Update(ctx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ResultsVerified.Inc()
	s.logger.Info("result verified", "result_id", id.String(), "verified_by", actor.UserID.String())
	return s.decrypt(out)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	res, err := s.results.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decrypt(res)
}

// GetReadModel returns the composed result view used by the export projector.
func (s *Service) GetReadModel(ctx context.Context, id uuid.UUID) (*model.ResultReadModel, error) {
	rm, err := s.results.GetReadModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.decrypt(rm.Result); err != nil {
		return nil, err
	}
	return rm, nil
}

func (s *Service) ListByOrderItem(ctx context.Context, orderItemID uuid.UUID, page model.Pagination) ([]*model.LabResult, error) {
	results, err := s.results.ListByOrderItem(ctx, orderItemID, page)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if _, err := s.decrypt(res); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Service) GetReport(ctx context.Context, orderID uuid.UUID) (*model.Report, error) {
	report, err := s.reports.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, apperrors.NotFound("report", nil)
	}
	return report, nil
}

func (s *Service) decrypt(res *model.LabResult) (*model.LabResult, error) {
	notes, err := s.encryptor.DecryptString(res.Notes)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	res.Notes = notes

	reason, err := s.encryptor.DecryptString(res.CorrectionReason)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	res.CorrectionReason = reason
	return res, nil
}
