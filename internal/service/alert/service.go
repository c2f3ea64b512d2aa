package alert

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/repository"
	apperrors "github.com/labnode/lims-api/pkg/errors"
	"github.com/labnode/lims-api/pkg/logger"
	"github.com/labnode/lims-api/pkg/security"
)

// Service manages the critical alert lifecycle. Creation happens inside the
// submission transaction; lifecycle transitions are caller-driven.
type Service struct {
	repo      repository.AlertRepository
	encryptor security.Encryptor
	alertable map[model.Interpretation]bool
	logger    *logger.Logger
}

func NewService(repo repository.AlertRepository, encryptor security.Encryptor, alertable []model.Interpretation, logger *logger.Logger) *Service {
	alertableSet := make(map[model.Interpretation]bool, len(alertable))
	for _, interp := range alertable {
		alertableSet[interp] = true
	}
	return &Service{
		repo:      repo,
		encryptor: encryptor,
		alertable: alertableSet,
		logger:    logger,
	}
}

// DefaultAlertable is the severity set that raises an alert when no override
// is configured.
func DefaultAlertable() []model.Interpretation {
	return []model.Interpretation{
		model.InterpretationCriticalLow,
		model.InterpretationCriticalHigh,
	}
}

// EnsureForResult creates the alert for a critical result if one is not
// already open. It is safe to call repeatedly for the same result: the
// storage-level uniqueness on result_id makes re-evaluation a no-op.
func (s *Service) EnsureForResult(ctx context.Context, result *model.LabResult) (bool, error) {
	if !s.alertable[result.Interpretation] {
		return false, nil
	}

	now := time.Now()
	alert := &model.CriticalAlert{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		ResultID:       result.ID,
		ValueSnapshot:  result.Value.Display(),
		Interpretation: result.Interpretation,
		Status:         model.AlertStatusPending,
	}

	created, err := s.repo.CreateIfAbsent(ctx, alert)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("critical alert created",
			"alert_id", alert.ID.String(),
			"result_id", result.ID.String(),
			"interpretation", string(result.Interpretation))
	}
	return created, nil
}

// Transition applies a caller-supplied lifecycle transition. The target
// status picks the field set to record; anything outside the transition
// table is rejected.
func (s *Service) Transition(ctx context.Context, actor model.ActorContext, alertID uuid.UUID, req *model.AlertTransitionRequest) (*model.CriticalAlert, error) {
	target := model.AlertStatus(req.Status)
	if !target.Valid() {
		return nil, apperrors.Validation("unrecognized alert status: "+req.Status, nil)
	}

	alert, err := s.repo.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if !alert.Status.CanTransition(target) {
		return nil, apperrors.Conflict(
			"invalid alert transition from "+string(alert.Status)+" to "+string(target), nil)
	}

	now := time.Now()
	switch target {
	case model.AlertStatusAcknowledged:
		alert.AcknowledgedBy = &actor.UserID
		alert.AcknowledgedAt = &now
	case model.AlertStatusNotified:
		alert.NotifiedRecipient = req.NotifiedRecipient
		alert.NotificationMethod = req.NotificationMethod
		alert.NotifiedAt = &now
	case model.AlertStatusResolved:
		alert.ResolvedBy = &actor.UserID
		alert.ResolvedAt = &now
		encrypted, err := s.encryptor.EncryptString(req.ResolutionNotes)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		alert.ResolutionNotes = encrypted
	}
	alert.Status = target

	if err := s.repo.Update(ctx, alert); err != nil {
		return nil, err
	}

	s.logger.Info("alert transitioned",
		"alert_id", alert.ID.String(),
		"status", string(target),
		"actor", actor.UserID.String())

	return s.decrypt(alert)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.CriticalAlert, error) {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decrypt(alert)
}

func (s *Service) ListByStatus(ctx context.Context, status model.AlertStatus, page model.Pagination) ([]*model.CriticalAlert, error) {
	if !status.Valid() {
		return nil, apperrors.Validation("unrecognized alert status: "+string(status), nil)
	}
	alerts, err := s.repo.ListByStatus(ctx, status, page)
	if err != nil {
		return nil, err
	}
	for _, alert := range alerts {
		if _, err := s.decrypt(alert); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

func (s *Service) decrypt(alert *model.CriticalAlert) (*model.CriticalAlert, error) {
	notes, err := s.encryptor.DecryptString(alert.ResolutionNotes)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	alert.ResolutionNotes = notes
	return alert, nil
}
