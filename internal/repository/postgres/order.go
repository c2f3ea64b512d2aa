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

type orderRepository struct {
	BaseRepository
}

func NewOrderRepository(base BaseRepository) repository.OrderRepository {
	return &orderRepository{base}
}

func (r *orderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT id, patient_id, order_number, status, created_at, updated_at FROM orders WHERE id = $1`

	var order model.Order
	if err := sqlx.GetContext(ctx, r.ext(ctx), &order, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("order", err)
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get order: %w", err))
	}
	return &order, nil
}

func (r *orderRepository) GetOrderItem(ctx context.Context, id uuid.UUID) (*model.OrderItem, error) {
	query := `SELECT id, order_id, test_id, status, created_at, updated_at FROM order_items WHERE id = $1`

	var item model.OrderItem
	if err := sqlx.GetContext(ctx, r.ext(ctx), &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("order item", err)
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get order item: %w", err))
	}
	return &item, nil
}

func (r *orderRepository) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]*model.OrderItem, error) {
	query := `
		SELECT id, order_id, test_id, status, created_at, updated_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC
	`
	var items []*model.OrderItem
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, orderID); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to list order items: %w", err))
	}
	return items, nil
}

func (r *orderRepository) GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	query := `SELECT id, code, name, created_at, updated_at FROM tests WHERE id = $1`

	var test model.Test
	if err := sqlx.GetContext(ctx, r.ext(ctx), &test, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("test", err)
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get test: %w", err))
	}
	return &test, nil
}

func (r *orderRepository) GetParameter(ctx context.Context, id uuid.UUID) (*model.Parameter, error) {
	query := `SELECT id, test_id, code, name, unit, created_at, updated_at FROM parameters WHERE id = $1`

	var param model.Parameter
	if err := sqlx.GetContext(ctx, r.ext(ctx), &param, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("parameter", err)
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get parameter: %w", err))
	}
	return &param, nil
}

func (r *orderRepository) ListParameters(ctx context.Context, testID uuid.UUID) ([]*model.Parameter, error) {
	query := `
		SELECT id, test_id, code, name, unit, created_at, updated_at
		FROM parameters
		WHERE test_id = $1
		ORDER BY code ASC
	`
	var params []*model.Parameter
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &params, query, testID); err != nil {
		return nil, apperrors.Persistence(fmt.Errorf("failed to list parameters: %w", err))
	}
	return params, nil
}

func (r *orderRepository) GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	query := `SELECT id, name, serial_number, created_at, updated_at FROM devices WHERE id = $1`

	var device model.Device
	if err := sqlx.GetContext(ctx, r.ext(ctx), &device, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("device", err)
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get device: %w", err))
	}
	return &device, nil
}

func (r *orderRepository) GetPatientForOrder(ctx context.Context, orderID uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT p.id, p.name, p.gender, p.date_of_birth, p.created_at, p.updated_at
		FROM patients p
		JOIN orders o ON o.patient_id = p.id
		WHERE o.id = $1
	`
	var patient model.Patient
	if err := sqlx.GetContext(ctx, r.ext(ctx), &patient, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, apperrors.Persistence(fmt.Errorf("failed to get patient: %w", err))
	}
	return &patient, nil
}

// MarkItemCompleted is idempotent: an already-completed item is left alone.
// Concurrent callers converge on the same derived status, so last-writer-wins
// is safe here.
func (r *orderRepository) MarkItemCompleted(ctx context.Context, itemID uuid.UUID) error {
	query := `UPDATE order_items SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.ext(ctx).ExecContext(ctx, query, model.OrderItemStatusCompleted, time.Now(), itemID); err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to mark order item completed: %w", err))
	}
	return nil
}

func (r *orderRepository) MarkOrderCompleted(ctx context.Context, orderID uuid.UUID) error {
	query := `UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.ext(ctx).ExecContext(ctx, query, model.OrderStatusCompleted, time.Now(), orderID); err != nil {
		return apperrors.Persistence(fmt.Errorf("failed to mark order completed: %w", err))
	}
	return nil
}
