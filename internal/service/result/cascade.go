package result

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labnode/lims-api/internal/model"
)

// runCascade propagates completion after a result is persisted: parameter
// coverage decides the order item, the items decide the order, and a newly
// completed order gets its report. Every step re-checks current state, so
// re-running on an already-completed item, order, or report is a no-op; two
// racing submissions both converge on the same derived statuses.
func (s *Service) runCascade(ctx context.Context, actor model.ActorContext, item *model.OrderItem) error {
	complete, err := s.itemComplete(ctx, item)
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}

	if item.Status != model.OrderItemStatusCompleted {
		if err := s.orders.MarkItemCompleted(ctx, item.ID); err != nil {
			return err
		}
		item.Status = model.OrderItemStatusCompleted
		s.metrics.CascadeCompletions.WithLabelValues("order_item").Inc()
	}

	items, err := s.orders.ListOrderItems(ctx, item.OrderID)
	if err != nil {
		return err
	}
	for _, sibling := range items {
		if sibling.ID == item.ID {
			continue
		}
		if sibling.Status != model.OrderItemStatusCompleted {
			return nil
		}
	}

	order, err := s.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		return err
	}
	if order.Status != model.OrderStatusCompleted {
		if err := s.orders.MarkOrderCompleted(ctx, order.ID); err != nil {
			return err
		}
		s.metrics.CascadeCompletions.WithLabelValues("order").Inc()
	}

	now := time.Now()
	report := &model.Report{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		OrderID:     order.ID,
		GeneratedBy: actor.UserID,
		Status:      model.ReportStatusPreliminary,
	}
	created, err := s.reports.CreateIfAbsent(ctx, report)
	if err != nil {
		return err
	}
	if created {
		s.metrics.CascadeCompletions.WithLabelValues("report").Inc()
		s.logger.Info("report generated", "order_id", order.ID.String(), "report_id", report.ID.String())
	}
	return nil
}

// itemComplete: a parameter-less test is complete once any result exists;
// otherwise every parameter of the test needs at least one result.
func (s *Service) itemComplete(ctx context.Context, item *model.OrderItem) (bool, error) {
	params, err := s.orders.ListParameters(ctx, item.TestID)
	if err != nil {
		return false, err
	}

	if len(params) == 0 {
		return s.results.HasAnyResult(ctx, item.ID)
	}

	covered, err := s.results.CountDistinctParameters(ctx, item.ID)
	if err != nil {
		return false, err
	}
	return covered >= len(params), nil
}
