package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labnode/lims-api/internal/model"
	"github.com/labnode/lims-api/pkg/logger"
	"github.com/labnode/lims-api/pkg/messaging"
	"github.com/labnode/lims-api/pkg/metrics"
)

var testMetrics = metrics.New("outbox_worker_test")

// trackingTxRunner records whether repository calls happen inside the unit
// of work it opened.
type trackingTxRunner struct {
	inTx  bool
	calls int
}

func (t *trackingTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	t.inTx = true
	defer func() { t.inTx = false }()
	return fn(ctx)
}

type fakeOutboxRepo struct {
	tx        *trackingTxRunner
	pending   []*model.OutboxEvent
	processed []uuid.UUID
	failed    map[uuid.UUID]string

	fetchedInTx bool
	markedInTx  bool
}

func newFakeOutboxRepo(tx *trackingTxRunner) *fakeOutboxRepo {
	return &fakeOutboxRepo{tx: tx, failed: make(map[uuid.UUID]string)}
}

func (f *fakeOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	f.pending = append(f.pending, event)
	return nil
}

func (f *fakeOutboxRepo) GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	f.fetchedInTx = f.tx.inTx
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	f.markedInTx = f.tx.inTx
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	f.markedInTx = f.tx.inTx
	f.failed[id] = errMsg
	return nil
}

type fakeBroker struct {
	published []messaging.Message
	fail      bool
}

func (f *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, message.(messaging.Message))
	return nil
}

func (f *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBroker) Close() error { return nil }

func pendingEvent(eventType string) *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{"result_id":"x"}`),
		Status:    model.OutboxStatusPending,
	}
}

func newTestProcessor(repo *fakeOutboxRepo, tx *trackingTxRunner, broker *fakeBroker) *OutboxProcessor {
	return NewOutboxProcessor(repo, tx, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, logger.NewLogger(nil), testMetrics)
}

func TestProcessEventsPublishesAndMarksInOneUnitOfWork(t *testing.T) {
	tx := &trackingTxRunner{}
	repo := newFakeOutboxRepo(tx)
	broker := &fakeBroker{}

	ev1 := pendingEvent(messaging.ChannelResultCreated)
	ev2 := pendingEvent(messaging.ChannelAlertCreated)
	repo.pending = []*model.OutboxEvent{ev1, ev2}

	p := newTestProcessor(repo, tx, broker)
	require.NoError(t, p.processEvents(context.Background()))

	require.Len(t, broker.published, 2)
	assert.Equal(t, messaging.ChannelResultCreated, broker.published[0].Type)
	assert.ElementsMatch(t, []uuid.UUID{ev1.ID, ev2.ID}, repo.processed)

	// Fetch and mark must share one transaction, otherwise the row locks
	// drop before the batch is marked and another worker can re-claim it.
	assert.Equal(t, 1, tx.calls)
	assert.True(t, repo.fetchedInTx)
	assert.True(t, repo.markedInTx)
}

func TestProcessEventsMarksFailedWhenPublishFails(t *testing.T) {
	tx := &trackingTxRunner{}
	repo := newFakeOutboxRepo(tx)
	broker := &fakeBroker{fail: true}

	ev := pendingEvent(messaging.ChannelResultCreated)
	repo.pending = []*model.OutboxEvent{ev}

	p := newTestProcessor(repo, tx, broker)
	require.NoError(t, p.processEvents(context.Background()))

	assert.Empty(t, repo.processed)
	require.Contains(t, repo.failed, ev.ID)
	assert.Contains(t, repo.failed[ev.ID], "broker unavailable")
	assert.True(t, repo.markedInTx)
}
