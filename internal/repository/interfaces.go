package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/labnode/lims-api/internal/model"
)

// TxRunner runs fn inside one atomic unit of work. Repository calls made with
// the ctx passed to fn join that transaction; any returned error rolls the
// whole unit back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// All repository interfaces in one file
type (
	// ResultRepository handles lab result rows.
	ResultRepository interface {
		Create(ctx context.Context, result *model.LabResult) error
		Get(ctx context.Context, id uuid.UUID) (*model.LabResult, error)
		Update(ctx context.Context, result *model.LabResult) error
		// MarkCorrected flips a finalized row to corrected as part of the
		// append-only correction path.
		MarkCorrected(ctx context.Context, id uuid.UUID) error
		// GetLatestPrior returns the most recent prior result for the same
		// patient and test (and parameter, when given), excluding excludeID.
		// Returns (nil, nil) when no comparable prior result exists.
		GetLatestPrior(ctx context.Context, patientID, testID uuid.UUID, parameterID, excludeID *uuid.UUID) (*model.LabResult, error)
		ListByOrderItem(ctx context.Context, orderItemID uuid.UUID, page model.Pagination) ([]*model.LabResult, error)
		// CountDistinctParameters counts the parameters of the item's test
		// that already have at least one non-cancelled result.
		CountDistinctParameters(ctx context.Context, orderItemID uuid.UUID) (int, error)
		HasAnyResult(ctx context.Context, orderItemID uuid.UUID) (bool, error)
		// GetReadModel returns the composed view: result + order item + test + patient.
		GetReadModel(ctx context.Context, resultID uuid.UUID) (*model.ResultReadModel, error)
	}

	// OrderRepository reads order structure and applies derived status writes.
	OrderRepository interface {
		GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
		GetOrderItem(ctx context.Context, id uuid.UUID) (*model.OrderItem, error)
		ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]*model.OrderItem, error)
		GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error)
		GetParameter(ctx context.Context, id uuid.UUID) (*model.Parameter, error)
		ListParameters(ctx context.Context, testID uuid.UUID) ([]*model.Parameter, error)
		GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error)
		GetPatientForOrder(ctx context.Context, orderID uuid.UUID) (*model.Patient, error)
		MarkItemCompleted(ctx context.Context, itemID uuid.UUID) error
		MarkOrderCompleted(ctx context.Context, orderID uuid.UUID) error
	}

	// ReferenceRepository serves reference ranges and delta check rules.
	ReferenceRepository interface {
		// ListRanges returns candidates for the (test, parameter) pair in
		// specificity order: gender+age, gender, age, unscoped.
		ListRanges(ctx context.Context, testID uuid.UUID, parameterID *uuid.UUID) ([]*model.ReferenceRange, error)
		// GetDeltaRule returns (nil, nil) when no rule is configured.
		GetDeltaRule(ctx context.Context, testID uuid.UUID, parameterID *uuid.UUID) (*model.DeltaCheckRule, error)
	}

	AlertRepository interface {
		// CreateIfAbsent inserts the alert unless an unresolved alert already
		// exists for the result. The uniqueness lives in a storage
		// constraint, so concurrent inserts cannot double-alert.
		CreateIfAbsent(ctx context.Context, alert *model.CriticalAlert) (bool, error)
		Get(ctx context.Context, id uuid.UUID) (*model.CriticalAlert, error)
		Update(ctx context.Context, alert *model.CriticalAlert) error
		ListByStatus(ctx context.Context, status model.AlertStatus, page model.Pagination) ([]*model.CriticalAlert, error)
	}

	ReportRepository interface {
		// GetByOrder returns (nil, nil) when no report exists yet.
		GetByOrder(ctx context.Context, orderID uuid.UUID) (*model.Report, error)
		// CreateIfAbsent creates the order's report unless one already
		// exists; reports are created at most once per order.
		CreateIfAbsent(ctx context.Context, report *model.Report) (bool, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingWithLock locks the returned rows for the caller's
		// transaction; run it inside TxRunner.WithTx so the locks hold
		// until the batch is marked.
		GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	}
)
