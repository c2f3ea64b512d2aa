package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/repository"
	apperrors "github.com/labnode/lims-api/pkg/errors"
)

type reportRepository struct {
	BaseRepository
}

func NewReportRepository(base BaseRepository) repository.ReportRepository {
	return &reportRepository{base}
}

func (r *reportRepository) GetByOrder(ctx context.Context, orderID uuid.UUID) (*model.Report, error) {
	query := `
		SELECT id, order_id, sequence_number, generated_by, status, created_at, updated_at
		FROM reports
		WHERE order_id = $1
	`
	var report model.Report
	if err := sqlx.GetContext(ctx, r.ext(ctx), &report, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get report: %w", err))
	}
	return &report, nil
}

// CreateIfAbsent creates the report unless one already exists for the order.
// The unique index on order_id makes concurrent cascade evaluations converge
// on a single report row.
func (r *reportRepository) CreateIfAbsent(ctx context.Context, report *model.Report) (bool, error) {
	query := `
		INSERT INTO reports (id, order_id, sequence_number, generated_by, status, created_at, updated_at)
		VALUES (:id, :order_id, nextval('report_sequence'), :generated_by, :status, :created_at, :updated_at)
		ON CONFLICT (order_id) DO NOTHING
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, report)
	if err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to create report: %w", err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to get rows affected: %w", err))
	}
	return rows > 0, nil
}
