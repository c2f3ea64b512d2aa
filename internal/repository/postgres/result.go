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

type resultRepository struct {
	BaseRepository
}

func NewResultRepository(base BaseRepository) repository.ResultRepository {
	return &resultRepository{base}
}

// labResultRow is the storage shape of a result. The four value columns are
// nullable in the table; the tagged union guarantees exactly one is set.
type labResultRow struct {
	ID               uuid.UUID       `db:"id"`
	OrderItemID      uuid.UUID       `db:"order_item_id"`
	ParameterID      *uuid.UUID      `db:"parameter_id"`
	ValueKind        string          `db:"value_kind"`
	ValueNumeric     sql.NullFloat64 `db:"value_numeric"`
	ValueText        sql.NullString  `db:"value_text"`
	ValueCoded       sql.NullString  `db:"value_coded"`
	ValueBoolean     sql.NullBool    `db:"value_boolean"`
	Unit             string          `db:"unit"`
	UnitCode         string          `db:"unit_code"`
	UnitSystem       string          `db:"unit_system"`
	Interpretation   sql.NullString  `db:"interpretation"`
	MethodID         *uuid.UUID      `db:"method_id"`
	DeviceID         *uuid.UUID      `db:"device_id"`
	PerformedBy      uuid.UUID       `db:"performed_by"`
	VerifiedBy       *uuid.UUID      `db:"verified_by"`
	VerifiedAt       *time.Time      `db:"verified_at"`
	Signature        string          `db:"signature"`
	Status           string          `db:"status"`
	IsCorrected      bool            `db:"is_corrected"`
	CorrectionReason string          `db:"correction_reason"`
	PreviousResultID *uuid.UUID      `db:"previous_result_id"`
	DeltaPerformed   bool            `db:"delta_check_performed"`
	DeltaPassed      bool            `db:"delta_check_passed"`
	DeltaNotes       string          `db:"delta_check_notes"`
	Notes            string          `db:"notes"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func rowFromResult(res *model.LabResult) *labResultRow {
	row := &labResultRow{
		ID:               res.ID,
		OrderItemID:      res.OrderItemID,
		ParameterID:      res.ParameterID,
		ValueKind:        string(res.Value.Kind()),
		Unit:             res.Unit,
		UnitCode:         res.UnitCode,
		UnitSystem:       res.UnitSystem,
		MethodID:         res.MethodID,
		DeviceID:         res.DeviceID,
		PerformedBy:      res.PerformedBy,
		VerifiedBy:       res.VerifiedBy,
		VerifiedAt:       res.VerifiedAt,
		Signature:        res.Signature,
		Status:           string(res.Status),
		IsCorrected:      res.IsCorrected,
		CorrectionReason: res.CorrectionReason,
		PreviousResultID: res.PreviousResultID,
		DeltaPerformed:   res.DeltaCheck.Performed,
		DeltaPassed:      res.DeltaCheck.Passed,
		DeltaNotes:       res.DeltaCheck.Notes,
		Notes:            res.Notes,
		CreatedAt:        res.CreatedAt,
		UpdatedAt:        res.UpdatedAt,
	}
	if res.Interpretation != "" {
		row.Interpretation = sql.NullString{String: string(res.Interpretation), Valid: true}
	}
	switch res.Value.Kind() {
	case model.ValueKindNumeric:
		v, _ := res.Value.Numeric()
		row.ValueNumeric = sql.NullFloat64{Float64: v, Valid: true}
	case model.ValueKindText:
		v, _ := res.Value.Text()
		row.ValueText = sql.NullString{String: v, Valid: true}
	case model.ValueKindCoded:
		v, _ := res.Value.Coded()
		row.ValueCoded = sql.NullString{String: v, Valid: true}
	case model.ValueKindBoolean:
		v, _ := res.Value.Boolean()
		row.ValueBoolean = sql.NullBool{Bool: v, Valid: true}
	}
	return row
}

func (row *labResultRow) toModel() *model.LabResult {
	res := &model.LabResult{
		Base: model.Base{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		OrderItemID:      row.OrderItemID,
		ParameterID:      row.ParameterID,
		Unit:             row.Unit,
		UnitCode:         row.UnitCode,
		UnitSystem:       row.UnitSystem,
		MethodID:         row.MethodID,
		DeviceID:         row.DeviceID,
		PerformedBy:      row.PerformedBy,
		VerifiedBy:       row.VerifiedBy,
		VerifiedAt:       row.VerifiedAt,
		Signature:        row.Signature,
		Status:           model.ResultStatus(row.Status),
		IsCorrected:      row.IsCorrected,
		CorrectionReason: row.CorrectionReason,
		PreviousResultID: row.PreviousResultID,
		DeltaCheck: model.DeltaCheckOutcome{
			Performed: row.DeltaPerformed,
			Passed:    row.DeltaPassed,
			Notes:     row.DeltaNotes,
		},
		Notes: row.Notes,
	}
	if row.Interpretation.Valid {
		res.Interpretation = model.Interpretation(row.Interpretation.String)
	}
	switch model.ValueKind(row.ValueKind) {
	case model.ValueKindNumeric:
		res.Value = model.NewNumericValue(row.ValueNumeric.Float64)
	case model.ValueKindText:
		res.Value = model.NewTextValue(row.ValueText.String)
	case model.ValueKindCoded:
		res.Value = model.NewCodedValue(row.ValueCoded.String)
	case model.ValueKindBoolean:
		res.Value = model.NewBooleanValue(row.ValueBoolean.Bool)
	}
	return res
}

const resultColumns = `
	id, order_item_id, parameter_id, value_kind, value_numeric, value_text,
	value_coded, value_boolean, unit, unit_code, unit_system, interpretation,
	method_id, device_id, performed_by, verified_by, verified_at, signature,
	status, is_corrected, correction_reason, previous_result_id,
	delta_check_performed, delta_check_passed, delta_check_notes, notes,
	created_at, updated_at
`

func (r *resultRepository) Create(ctx context.Context, result *model.LabResult) error {
	query := `
		INSERT INTO lab_results (` + resultColumns + `) VALUES (
			:id, :order_item_id, :parameter_id, :value_kind, :value_numeric,
			:value_text, :value_coded, :value_boolean, :unit, :unit_code,
			:unit_system, :interpretation, :method_id, :device_id,
			:performed_by, :verified_by, :verified_at, :signature, :status,
			:is_corrected, :correction_reason, :previous_result_id,
			:delta_check_performed, :delta_check_passed, :delta_check_notes,
			:notes, :created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, rowFromResult(result)); err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to create lab result: %w", err))
	}
	return nil
}

func (r *resultRepository) Get(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	query := `SELECT ` + resultColumns + ` FROM lab_results WHERE id = $1`

	var row labResultRow
	if err := sqlx.GetContext(ctx, r.ext(ctx), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("lab result", err)
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get lab result: %w", err))
	}
	return row.toModel(), nil
}

func (r *resultRepository) Update(ctx context.Context, result *model.LabResult) error {
	result.UpdatedAt = time.Now()

	query := `
		UPDATE lab_results SET
			parameter_id = :parameter_id,
			value_kind = :value_kind,
			value_numeric = :value_numeric,
			value_text = :value_text,
			value_coded = :value_coded,
			value_boolean = :value_boolean,
			unit = :unit,
			unit_code = :unit_code,
			unit_system = :unit_system,
			interpretation = :interpretation,
			method_id = :method_id,
			device_id = :device_id,
			verified_by = :verified_by,
			verified_at = :verified_at,
			signature = :signature,
			status = :status,
			delta_check_performed = :delta_check_performed,
			delta_check_passed = :delta_check_passed,
			delta_check_notes = :delta_check_notes,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, rowFromResult(result))
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to update lab result: %w", err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rows == 0 {
		return apperrors.NotFound("lab result", nil)
	}
	return nil
}

func (r *resultRepository) MarkCorrected(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE lab_results
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.ext(ctx).ExecContext(ctx, query,
		model.ResultStatusCorrected, time.Now(), id, model.ResultStatusFinal)
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to mark result corrected: %w", err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rows == 0 {
		return apperrors.Conflict("result is not in final status", nil)
	}
	return nil
}

func (r *resultRepository) GetLatestPrior(ctx context.Context, patientID, testID uuid.UUID, parameterID, excludeID *uuid.UUID) (*model.LabResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM lab_results r
		WHERE r.order_item_id IN (
			SELECT oi.id FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE o.patient_id = $1 AND oi.test_id = $2
		)
		AND r.status IN ($3, $4)
	`
	args := []interface{}{patientID, testID, model.ResultStatusPreliminary, model.ResultStatusFinal}

	if parameterID != nil {
		query += fmt.Sprintf(" AND r.parameter_id = $%d", len(args)+1)
		args = append(args, *parameterID)
	}
	if excludeID != nil {
		query += fmt.Sprintf(" AND r.id <> $%d", len(args)+1)
		args = append(args, *excludeID)
	}
	query += " ORDER BY r.created_at DESC LIMIT 1"

	var row labResultRow
	if err := sqlx.GetContext(ctx, r.ext(ctx), &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get prior result: %w", err))
	}
	return row.toModel(), nil
}

func (r *resultRepository) ListByOrderItem(ctx context.Context, orderItemID uuid.UUID, page model.Pagination) ([]*model.LabResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM lab_results
		WHERE order_item_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	var rows []labResultRow
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &rows, query, orderItemID, page.Limit(), page.Offset()); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to list results: %w", err))
	}

	results := make([]*model.LabResult, 0, len(rows))
	for i := range rows {
		results = append(results, rows[i].toModel())
	}
	return results, nil
}

func (r *resultRepository) CountDistinctParameters(ctx context.Context, orderItemID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(DISTINCT parameter_id)
		FROM lab_results
		WHERE order_item_id = $1 AND parameter_id IS NOT NULL AND status <> $2
	`
	var count int
	if err := sqlx.GetContext(ctx, r.ext(ctx), &count, query, orderItemID, model.ResultStatusCancelled); err != nil {
		return 0, apperrors.Persistence(fmt.Errorf("failed to count parameters with results: %w", err))
	}
	return count, nil
}

func (r *resultRepository) HasAnyResult(ctx context.Context, orderItemID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM lab_results
			WHERE order_item_id = $1 AND status <> $2
		)
	`
	var exists bool
	if err := sqlx.GetContext(ctx, r.ext(ctx), &exists, query, orderItemID, model.ResultStatusCancelled); err != nil {
		return false, apperrors.Persistence(fmt.Errorf("failed to check for results: %w", err))
	}
	return exists, nil
}

func (r *resultRepository) GetReadModel(ctx context.Context, resultID uuid.UUID) (*model.ResultReadModel, error) {
	result, err := r.Get(ctx, resultID)
	if err != nil {
		return nil, err
	}

	var item model.OrderItem
	if err := sqlx.GetContext(ctx, r.ext(ctx), &item,
		`SELECT id, order_id, test_id, status, created_at, updated_at FROM order_items WHERE id = $1`,
		result.OrderItemID); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to get order item: %w", err))
	}

	var test model.Test
	if err := sqlx.GetContext(ctx, r.ext(ctx), &test,
		`SELECT id, code, name, created_at, updated_at FROM tests WHERE id = $1`,
		item.TestID); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to get test: %w", err))
	}

	var patient model.Patient
	if err := sqlx.GetContext(ctx, r.ext(ctx), &patient,
		`SELECT p.id, p.name, p.gender, p.date_of_birth, p.created_at, p.updated_at
		 FROM patients p
		 JOIN orders o ON o.patient_id = p.id
		 WHERE o.id = $1`,
		item.OrderID); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to get patient: %w", err))
	}

	return &model.ResultReadModel{
		Result:    result,
		OrderItem: &item,
		Test:      &test,
		Patient:   &patient,
	}, nil
}
