package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/repository"
	apperrors "github.com/labnode/lims-api/pkg/errors"
)

type alertRepository struct {
	BaseRepository
}

func NewAlertRepository(base BaseRepository) repository.AlertRepository {
	return &alertRepository{base}
}

const alertColumns = `
	id, result_id, value_snapshot, interpretation, status, acknowledged_by,
	acknowledged_at, notified_recipient, notification_method, notified_at,
	resolved_by, resolved_at, resolution_notes, created_at, updated_at
`

// CreateIfAbsent relies on the partial unique index on result_id (open alerts
// only), so two concurrent inserts for the same result cannot both land: the
// loser's insert is a no-op and we report created=false.
func (r *alertRepository) CreateIfAbsent(ctx context.Context, alert *model.CriticalAlert) (bool, error) {
	query := `
		INSERT INTO critical_alerts (` + alertColumns + `) VALUES (
			:id, :result_id, :value_snapshot, :interpretation, :status,
			:acknowledged_by, :acknowledged_at, :notified_recipient,
			:notification_method, :notified_at, :resolved_by, :resolved_at,
			:resolution_notes, :created_at, :updated_at
		)
		ON CONFLICT (result_id) WHERE status <> 'resolved' DO NOTHING
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, alert)
	if err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to create critical alert: %w", err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to get rows affected: %w", err))
	}
	return rows > 0, nil
}

func (r *alertRepository) Get(ctx context.Context, id uuid.UUID) (*model.CriticalAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM critical_alerts WHERE id = $1`

	var alert model.CriticalAlert
	if err := sqlx.GetContext(ctx, r.ext(ctx), &alert, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("critical alert", err)
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get critical alert: %w", err))
	}
	return &alert, nil
}

func (r *alertRepository) Update(ctx context.Context, alert *model.CriticalAlert) error {
	alert.UpdatedAt = time.Now()

	query := `
		UPDATE critical_alerts SET
			status = :status,
			acknowledged_by = :acknowledged_by,
			acknowledged_at = :acknowledged_at,
			notified_recipient = :notified_recipient,
			notification_method = :notification_method,
			notified_at = :notified_at,
			resolved_by = :resolved_by,
			resolved_at = :resolved_at,
			resolution_notes = :resolution_notes,
			updated_at = :updated_at
		WHERE id = :id
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, alert)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to update critical alert: %w", err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rows == 0 {
		return apperrors.NotFound("critical alert", nil)
	}
	return nil
}

func (r *alertRepository) ListByStatus(ctx context.Context, status model.AlertStatus, page model.Pagination) ([]*model.CriticalAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM critical_alerts
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	var alerts []*model.CriticalAlert
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &alerts, query, status, page.Limit(), page.Offset()); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to list critical alerts: %w", err))
	}
	return alerts, nil
}
