package result

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/internal/service/alert"
	apperrors "github.com/labnode/lims-api/pkg/errors"
	"github.com/labnode/lims-api/pkg/logger"
	"github.com/labnode/lims-api/pkg/metrics"
	"github.com/labnode/lims-api/pkg/security"
)

// Shared across the package's tests: promauto registers into the default
// registry, so the collectors exist once per test binary.
var testMetrics = metrics.New("result_service_test")

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func cloneResult(r *model.LabResult) *model.LabResult {
	c := *r
	return &c
}

type fakeResultRepo struct {
	rows map[uuid.UUID]*model.LabResult
	seq  []uuid.UUID
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{rows: make(map[uuid.UUID]*model.LabResult)}
}

func (f *fakeResultRepo) Create(ctx context.Context, result *model.LabResult) error {
	f.rows[result.ID] = cloneResult(result)
	f.seq = append(f.seq, result.ID)
	return nil
}

func (f *fakeResultRepo) Get(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, apperrors.NotFound("result", nil)
	}
	return cloneResult(row), nil
}

func (f *fakeResultRepo) Update(ctx context.Context, result *model.LabResult) error {
	if _, ok := f.rows[result.ID]; !ok {
		return apperrors.NotFound("result", nil)
	}
	f.rows[result.ID] = cloneResult(result)
	return nil
}

func (f *fakeResultRepo) MarkCorrected(ctx context.Context, id uuid.UUID) error {
	row, ok := f.rows[id]
	if !ok {
		return apperrors.NotFound("result", nil)
	}
	if row.Status != model.ResultStatusFinal {
		return apperrors.Conflict("result is not in final status", nil)
	}
	row.Status = model.ResultStatusCorrected
	return nil
}

func (f *fakeResultRepo) GetLatestPrior(ctx context.Context, patientID, testID uuid.UUID, parameterID, excludeID *uuid.UUID) (*model.LabResult, error) {
	for i := len(f.seq) - 1; i >= 0; i-- {
		row := f.rows[f.seq[i]]
		if excludeID != nil && row.ID == *excludeID {
			continue
		}
		if row.Status != model.ResultStatusPreliminary && row.Status != model.ResultStatusFinal {
			continue
		}
		if (parameterID == nil) != (row.ParameterID == nil) {
			continue
		}
		if parameterID != nil && *parameterID != *row.ParameterID {
			continue
		}
		return cloneResult(row), nil
	}
	return nil, nil
}

func (f *fakeResultRepo) ListByOrderItem(ctx context.Context, orderItemID uuid.UUID, page model.Pagination) ([]*model.LabResult, error) {
	var out []*model.LabResult
	for _, id := range f.seq {
		if f.rows[id].OrderItemID == orderItemID {
			out = append(out, cloneResult(f.rows[id]))
		}
	}
	if page.Offset() >= len(out) {
		return nil, nil
	}
	out = out[page.Offset():]
	if len(out) > page.Limit() {
		out = out[:page.Limit()]
	}
	return out, nil
}

func (f *fakeResultRepo) CountDistinctParameters(ctx context.Context, orderItemID uuid.UUID) (int, error) {
	seen := make(map[uuid.UUID]bool)
	for _, row := range f.rows {
		if row.OrderItemID == orderItemID && row.ParameterID != nil && row.Status != model.ResultStatusCancelled {
			seen[*row.ParameterID] = true
		}
	}
	return len(seen), nil
}

func (f *fakeResultRepo) HasAnyResult(ctx context.Context, orderItemID uuid.UUID) (bool, error) {
	for _, row := range f.rows {
		if row.OrderItemID == orderItemID && row.Status != model.ResultStatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResultRepo) GetReadModel(ctx context.Context, resultID uuid.UUID) (*model.ResultReadModel, error) {
	row, err := f.Get(ctx, resultID)
	if err != nil {
		return nil, err
	}
	return &model.ResultReadModel{Result: row}, nil
}

type fakeOrderRepo struct {
	orders          map[uuid.UUID]*model.Order
	items           map[uuid.UUID]*model.OrderItem
	tests           map[uuid.UUID]*model.Test
	params          map[uuid.UUID]*model.Parameter
	devices         map[uuid.UUID]*model.Device
	patients        map[uuid.UUID]*model.Patient
	itemsCompleted  int
	ordersCompleted int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:   make(map[uuid.UUID]*model.Order),
		items:    make(map[uuid.UUID]*model.OrderItem),
		tests:    make(map[uuid.UUID]*model.Test),
		params:   make(map[uuid.UUID]*model.Parameter),
		devices:  make(map[uuid.UUID]*model.Device),
		patients: make(map[uuid.UUID]*model.Patient),
	}
}

func (f *fakeOrderRepo) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", nil)
	}
	return o, nil
}

func (f *fakeOrderRepo) GetOrderItem(ctx context.Context, id uuid.UUID) (*model.OrderItem, error) {
	i, ok := f.items[id]
	if !ok {
		return nil, apperrors.NotFound("order item", nil)
	}
	return i, nil
}

func (f *fakeOrderRepo) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]*model.OrderItem, error) {
	var out []*model.OrderItem
	for _, item := range f.items {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t, ok := f.tests[id]
	if !ok {
		return nil, apperrors.NotFound("test", nil)
	}
	return t, nil
}

func (f *fakeOrderRepo) GetParameter(ctx context.Context, id uuid.UUID) (*model.Parameter, error) {
	p, ok := f.params[id]
	if !ok {
		return nil, apperrors.NotFound("parameter", nil)
	}
	return p, nil
}

func (f *fakeOrderRepo) ListParameters(ctx context.Context, testID uuid.UUID) ([]*model.Parameter, error) {
	var out []*model.Parameter
	for _, p := range f.params {
		if p.TestID == testID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return nil, apperrors.NotFound("device", nil)
	}
	return d, nil
}

func (f *fakeOrderRepo) GetPatientForOrder(ctx context.Context, orderID uuid.UUID) (*model.Patient, error) {
	p, ok := f.patients[orderID]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	return p, nil
}

func (f *fakeOrderRepo) MarkItemCompleted(ctx context.Context, itemID uuid.UUID) error {
	f.items[itemID].Status = model.OrderItemStatusCompleted
	f.itemsCompleted++
	return nil
}

func (f *fakeOrderRepo) MarkOrderCompleted(ctx context.Context, orderID uuid.UUID) error {
	f.orders[orderID].Status = model.OrderStatusCompleted
	f.ordersCompleted++
	return nil
}

type fakeRefRepo struct {
	ranges []*model.ReferenceRange
	rule   *model.DeltaCheckRule
}

func (f *fakeRefRepo) ListRanges(ctx context.Context, testID uuid.UUID, parameterID *uuid.UUID) ([]*model.ReferenceRange, error) {
	return f.ranges, nil
}

func (f *fakeRefRepo) GetDeltaRule(ctx context.Context, testID uuid.UUID, parameterID *uuid.UUID) (*model.DeltaCheckRule, error) {
	return f.rule, nil
}

type fakeReportRepo struct {
	reports map[uuid.UUID]*model.Report
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{reports: make(map[uuid.UUID]*model.Report)}
}

func (f *fakeReportRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*model.Report, error) {
	return f.reports[orderID], nil
}

func (f *fakeReportRepo) CreateIfAbsent(ctx context.Context, report *model.Report) (bool, error) {
	if _, exists := f.reports[report.OrderID]; exists {
		return false, nil
	}
	f.reports[report.OrderID] = report
	return true, nil
}

type fakeAlertRepo struct {
	alerts map[uuid.UUID]*model.CriticalAlert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[uuid.UUID]*model.CriticalAlert)}
}

func (f *fakeAlertRepo) CreateIfAbsent(ctx context.Context, a *model.CriticalAlert) (bool, error) {
	for _, existing := range f.alerts {
		if existing.ResultID == a.ResultID && existing.Status != model.AlertStatusResolved {
			return false, nil
		}
	}
	f.alerts[a.ID] = a
	return true, nil
}

func (f *fakeAlertRepo) Get(ctx context.Context, id uuid.UUID) (*model.CriticalAlert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, apperrors.NotFound("alert", nil)
	}
	return a, nil
}

func (f *fakeAlertRepo) Update(ctx context.Context, a *model.CriticalAlert) error {
	f.alerts[a.ID] = a
	return nil
}

func (f *fakeAlertRepo) ListByStatus(ctx context.Context, status model.AlertStatus, page model.Pagination) ([]*model.CriticalAlert, error) {
	var out []*model.CriticalAlert
	for _, a := range f.alerts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeOutboxRepo struct {
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepo) GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return nil
}

func (f *fakeOutboxRepo) eventTypes() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

// testEnv wires the workflow engine against in-memory fakes: one patient, one
// order with a single parameter-less test.
type testEnv struct {
	svc     *Service
	results *fakeResultRepo
	orders  *fakeOrderRepo
	refs    *fakeRefRepo
	reports *fakeReportRepo
	alerts  *fakeAlertRepo
	outbox  *fakeOutboxRepo

	patient *model.Patient
	order   *model.Order
	item    *model.OrderItem
	test    *model.Test
	actor   model.ActorContext
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	enc, err := security.NewAESEncryptor(bytes.Repeat([]byte("k"), 32))
	require.NoError(t, err)

	lg := logger.NewLogger(nil)

	dob := time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC)
	patient := &model.Patient{
		Base:        model.Base{ID: uuid.New()},
		Name:        "Ada Reyes",
		Gender:      model.GenderFemale,
		DateOfBirth: &dob,
	}
	test := &model.Test{
		Base: model.Base{ID: uuid.New()},
		Code: "GLU",
		Name: "Glucose",
	}
	order := &model.Order{
		Base:        model.Base{ID: uuid.New()},
		PatientID:   patient.ID,
		OrderNumber: "ORD-1001",
		Status:      model.OrderStatusPending,
	}
	item := &model.OrderItem{
		Base:    model.Base{ID: uuid.New()},
		OrderID: order.ID,
		TestID:  test.ID,
		Status:  model.OrderItemStatusPending,
	}

	orders := newFakeOrderRepo()
	orders.orders[order.ID] = order
	orders.items[item.ID] = item
	orders.tests[test.ID] = test
	orders.patients[order.ID] = patient

	refs := &fakeRefRepo{
		ranges: []*model.ReferenceRange{{
			Base:         model.Base{ID: uuid.New()},
			TestID:       test.ID,
			NormalLow:    f64(4.0),
			NormalHigh:   f64(10.0),
			CriticalLow:  f64(2.0),
			CriticalHigh: f64(20.0),
		}},
	}

	results := newFakeResultRepo()
	reports := newFakeReportRepo()
	alertsRepo := newFakeAlertRepo()
	outbox := &fakeOutboxRepo{}

	alertSvc := alert.NewService(alertsRepo, enc, alert.DefaultAlertable(), lg)
	svc := NewService(
		fakeTxRunner{},
		results,
		orders,
		refs,
		reports,
		outbox,
		alertSvc,
		enc,
		lg,
		testMetrics,
		Config{},
	)

	return &testEnv{
		svc:     svc,
		results: results,
		orders:  orders,
		refs:    refs,
		reports: reports,
		alerts:  alertsRepo,
		outbox:  outbox,
		patient: patient,
		order:   order,
		item:    item,
		test:    test,
		actor: model.ActorContext{
			UserID: uuid.New(),
			Roles:  []string{model.RoleTechnician},
		},
	}
}

func (e *testEnv) numericSubmission(v float64) *model.ResultSubmission {
	return &model.ResultSubmission{
		OrderItemID:  e.item.ID,
		NumericValue: &v,
		Unit:         "mmol/L",
	}
}
