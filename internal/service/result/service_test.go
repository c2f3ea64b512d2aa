package result

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labnode/lims-api/internal/model"
	apperrors "github.com/labnode/lims-api/pkg/errors"
	"github.com/labnode/lims-api/pkg/messaging"
)

func TestSubmitCreatesPreliminaryResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)

	assert.Equal(t, model.ResultStatusPreliminary, res.Status)
	assert.Equal(t, model.InterpretationNormal, res.Interpretation)
	assert.Equal(t, env.actor.UserID, res.PerformedBy)
	assert.Equal(t, "mmol/L", res.Unit)
	assert.Len(t, env.results.rows, 1)
	assert.Contains(t, env.outbox.eventTypes(), messaging.ChannelResultCreated)
	assert.Empty(t, env.alerts.alerts)
}

func TestSubmitCascadeCompletesItemOrderAndReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)

	assert.Equal(t, model.OrderItemStatusCompleted, env.item.Status)
	assert.Equal(t, model.OrderStatusCompleted, env.order.Status)
	require.Len(t, env.reports.reports, 1)
	report := env.reports.reports[env.order.ID]
	assert.Equal(t, model.ReportStatusPreliminary, report.Status)
	assert.Equal(t, env.actor.UserID, report.GeneratedBy)
}

func TestSubmitCascadeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, env.actor, env.numericSubmission(7.5))
	require.NoError(t, err)

	// The second submission re-evaluates but must not complete anything
	// twice or create a second report.
	assert.Equal(t, 1, env.orders.itemsCompleted)
	assert.Equal(t, 1, env.orders.ordersCompleted)
	assert.Len(t, env.reports.reports, 1)
}

func TestSubmitIncompleteItemDoesNotCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A second parameterized test keeps its item pending: one of its two
	// parameters is still uncovered.
	test2 := &model.Test{Base: model.Base{ID: uuid.New()}, Code: "CBC", Name: "Blood Count"}
	p1 := &model.Parameter{Base: model.Base{ID: uuid.New()}, TestID: test2.ID, Code: "HGB", Name: "Hemoglobin"}
	p2 := &model.Parameter{Base: model.Base{ID: uuid.New()}, TestID: test2.ID, Code: "WBC", Name: "White Cells"}
	item2 := &model.OrderItem{Base: model.Base{ID: uuid.New()}, OrderID: env.order.ID, TestID: test2.ID, Status: model.OrderItemStatusPending}
	env.orders.tests[test2.ID] = test2
	env.orders.params[p1.ID] = p1
	env.orders.params[p2.ID] = p2
	env.orders.items[item2.ID] = item2

	sub := env.numericSubmission(7.0)
	sub.OrderItemID = item2.ID
	sub.ParameterID = &p1.ID
	_, err := env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)

	assert.Equal(t, model.OrderItemStatusPending, item2.Status)
	assert.Equal(t, model.OrderStatusPending, env.order.Status)
	assert.Empty(t, env.reports.reports)

	// Covering the second parameter completes the item, but the first
	// item is still pending so the order stays open.
	sub = env.numericSubmission(4.2)
	sub.OrderItemID = item2.ID
	sub.ParameterID = &p2.ID
	_, err = env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)

	assert.Equal(t, model.OrderItemStatusCompleted, item2.Status)
	assert.Equal(t, model.OrderStatusPending, env.order.Status)
	assert.Empty(t, env.reports.reports)
}

func TestSubmitCriticalValueCreatesAlert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(1.5))
	require.NoError(t, err)

	assert.Equal(t, model.InterpretationCriticalLow, res.Interpretation)
	require.Len(t, env.alerts.alerts, 1)
	for _, a := range env.alerts.alerts {
		assert.Equal(t, res.ID, a.ResultID)
		assert.Equal(t, model.AlertStatusPending, a.Status)
		assert.Equal(t, "1.5", a.ValueSnapshot)
		assert.Equal(t, model.InterpretationCriticalLow, a.Interpretation)
	}
	assert.Contains(t, env.outbox.eventTypes(), messaging.ChannelAlertCreated)
}

func TestAlertNotDuplicatedForSameResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(1.5))
	require.NoError(t, err)
	require.Len(t, env.alerts.alerts, 1)

	// An in-place revision of the same still-critical result re-runs the
	// alert step, which must converge on the existing open alert.
	_, err = env.svc.Update(ctx, env.actor, res.ID, env.numericSubmission(1.2))
	require.NoError(t, err)

	assert.Len(t, env.alerts.alerts, 1)
}

func TestSubmitExplicitInterpretationWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	interp := "high"
	sub := env.numericSubmission(5.0) // would classify as normal
	sub.Interpretation = &interp

	res, err := env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)
	assert.Equal(t, model.InterpretationHigh, res.Interpretation)
}

func TestSubmitDeltaCheckRecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(6.0))
	require.NoError(t, err)

	sub := env.numericSubmission(9.5)
	sub.RunDeltaCheck = true
	res, err := env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)

	// 6.0 -> 9.5 is 58.33% against the 50% default. The failed check is a
	// recorded outcome; the submission itself succeeds.
	assert.True(t, res.DeltaCheck.Performed)
	assert.False(t, res.DeltaCheck.Passed)
	assert.Contains(t, res.DeltaCheck.Notes, "58.33%")
}

func TestSubmitDeltaCheckFirstResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sub := env.numericSubmission(6.0)
	sub.RunDeltaCheck = true
	res, err := env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)

	assert.True(t, res.DeltaCheck.Performed)
	assert.True(t, res.DeltaCheck.Passed)
	assert.Equal(t, "no comparable prior result", res.DeltaCheck.Notes)
}

func TestSubmitNotesAreEncryptedAtRest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sub := env.numericSubmission(7.0)
	sub.Notes = "slightly lipemic sample"

	res, err := env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)

	// The caller sees plaintext; the stored row does not.
	assert.Equal(t, "slightly lipemic sample", res.Notes)
	stored := env.results.rows[res.ID]
	assert.NotEqual(t, "slightly lipemic sample", stored.Notes)
	assert.NotEmpty(t, stored.Notes)
}

func TestCorrectFinalResultCreatesNewVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	original, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)
	_, err = env.svc.Verify(ctx, env.actor, original.ID, &model.VerificationRequest{Signature: "sig-1"})
	require.NoError(t, err)

	sub := env.numericSubmission(8.2)
	sub.IsCorrected = true
	sub.PreviousResultID = &original.ID
	sub.CorrectionReason = "transcription error"

	revision, err := env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)

	// Two rows: the finalized original flips to corrected, the revision is
	// a fresh preliminary row linked back to it.
	assert.NotEqual(t, original.ID, revision.ID)
	assert.Len(t, env.results.rows, 2)
	assert.Equal(t, model.ResultStatusCorrected, env.results.rows[original.ID].Status)

	assert.Equal(t, model.ResultStatusPreliminary, revision.Status)
	assert.True(t, revision.IsCorrected)
	require.NotNil(t, revision.PreviousResultID)
	assert.Equal(t, original.ID, *revision.PreviousResultID)
	assert.Equal(t, "transcription error", revision.CorrectionReason)

	// Verification state never carries into the revision.
	assert.Nil(t, revision.VerifiedBy)
	assert.Empty(t, revision.Signature)

	v, ok := revision.Value.Numeric()
	require.True(t, ok)
	assert.Equal(t, 8.2, v)

	assert.Contains(t, env.outbox.eventTypes(), messaging.ChannelResultCorrected)
}

func TestCorrectPreliminaryResultUpdatesInPlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	original, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)

	sub := env.numericSubmission(7.4)
	sub.IsCorrected = true
	sub.PreviousResultID = &original.ID
	sub.CorrectionReason = "analyzer flagged rerun"

	revised, err := env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)

	assert.Equal(t, original.ID, revised.ID)
	assert.Len(t, env.results.rows, 1)
	v, ok := env.results.rows[original.ID].Value.Numeric()
	require.True(t, ok)
	assert.Equal(t, 7.4, v)

	// The reason survives an in-place correction too: plaintext on the
	// returned result, ciphertext at rest.
	assert.Equal(t, "analyzer flagged rerun", revised.CorrectionReason)
	stored := env.results.rows[original.ID].CorrectionReason
	assert.NotEmpty(t, stored)
	assert.NotEqual(t, "analyzer flagged rerun", stored)
}

func TestCorrectionRejectsForeignOrderItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	test2 := &model.Test{Base: model.Base{ID: uuid.New()}, Code: "NA", Name: "Sodium"}
	item2 := &model.OrderItem{Base: model.Base{ID: uuid.New()}, OrderID: env.order.ID, TestID: test2.ID, Status: model.OrderItemStatusPending}
	env.orders.tests[test2.ID] = test2
	env.orders.items[item2.ID] = item2

	original, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)
	_, err = env.svc.Verify(ctx, env.actor, original.ID, &model.VerificationRequest{Signature: "sig-1"})
	require.NoError(t, err)

	// A correction must cite a result of the item it targets; pointing it
	// at another item's result would run every downstream check against
	// the wrong test and patient history.
	sub := env.numericSubmission(140.0)
	sub.OrderItemID = item2.ID
	sub.IsCorrected = true
	sub.PreviousResultID = &original.ID

	_, err = env.svc.Submit(ctx, env.actor, sub)
	assert.True(t, apperrors.IsValidation(err))

	assert.Len(t, env.results.rows, 1)
	assert.Equal(t, model.ResultStatusFinal, env.results.rows[original.ID].Status)
}

func TestCorrectTerminalResultConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	original, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)
	_, err = env.svc.Verify(ctx, env.actor, original.ID, &model.VerificationRequest{Signature: "sig-1"})
	require.NoError(t, err)

	sub := env.numericSubmission(8.2)
	sub.IsCorrected = true
	sub.PreviousResultID = &original.ID
	_, err = env.svc.Submit(ctx, env.actor, sub)
	require.NoError(t, err)

	// Correcting the already-corrected row again is a conflict.
	sub = env.numericSubmission(9.0)
	sub.IsCorrected = true
	sub.PreviousResultID = &original.ID
	_, err = env.svc.Submit(ctx, env.actor, sub)
	assert.True(t, apperrors.IsConflict(err))
}

func TestVerifyFinalizesResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)

	verified, err := env.svc.Verify(ctx, env.actor, res.ID, &model.VerificationRequest{Signature: "sig-1"})
	require.NoError(t, err)

	assert.Equal(t, model.ResultStatusFinal, verified.Status)
	require.NotNil(t, verified.VerifiedBy)
	assert.Equal(t, env.actor.UserID, *verified.VerifiedBy)
	assert.NotNil(t, verified.VerifiedAt)
	assert.Equal(t, "sig-1", verified.Signature)
}

func TestVerifyTwiceConflictsAndKeepsFirstVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)
	_, err = env.svc.Verify(ctx, env.actor, res.ID, &model.VerificationRequest{Signature: "first"})
	require.NoError(t, err)

	second := model.ActorContext{UserID: uuid.New(), Roles: []string{model.RolePathologist}}
	_, err = env.svc.Verify(ctx, second, res.ID, &model.VerificationRequest{Signature: "second"})
	assert.True(t, apperrors.IsConflict(err))

	stored := env.results.rows[res.ID]
	assert.Equal(t, env.actor.UserID, *stored.VerifiedBy)
	assert.Equal(t, "first", stored.Signature)
}

func TestVerifyRequiresVerifierRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)

	outsider := model.ActorContext{UserID: uuid.New(), Roles: []string{"receptionist"}}
	_, err = env.svc.Verify(ctx, outsider, res.ID, &model.VerificationRequest{Signature: "x"})
	assert.Equal(t, apperrors.ErrForbidden, apperrors.Code(err))
}

func TestUpdateFinalizedResultConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(7.0))
	require.NoError(t, err)
	_, err = env.svc.Verify(ctx, env.actor, res.ID, &model.VerificationRequest{Signature: "sig"})
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, env.actor, res.ID, env.numericSubmission(7.5))
	assert.True(t, apperrors.IsConflict(err))
}

func TestSubmitRejectsMissingValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sub := &model.ResultSubmission{OrderItemID: env.item.ID}
	_, err := env.svc.Submit(ctx, env.actor, sub)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSubmitRejectsMultipleValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	text := "cloudy"
	sub := env.numericSubmission(7.0)
	sub.TextValue = &text
	_, err := env.svc.Submit(ctx, env.actor, sub)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSubmitUnknownOrderItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sub := env.numericSubmission(7.0)
	sub.OrderItemID = uuid.New()
	_, err := env.svc.Submit(ctx, env.actor, sub)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSubmitRejectsForeignParameter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	otherTest := &model.Test{Base: model.Base{ID: uuid.New()}, Code: "NA", Name: "Sodium"}
	foreign := &model.Parameter{Base: model.Base{ID: uuid.New()}, TestID: otherTest.ID, Code: "NA", Name: "Sodium"}
	env.orders.tests[otherTest.ID] = otherTest
	env.orders.params[foreign.ID] = foreign

	sub := env.numericSubmission(7.0)
	sub.ParameterID = &foreign.ID
	_, err := env.svc.Submit(ctx, env.actor, sub)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSubmitFailureRecordsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sub := env.numericSubmission(7.0)
	sub.OrderItemID = uuid.New()
	_, err := env.svc.Submit(ctx, env.actor, sub)
	require.Error(t, err)

	assert.Empty(t, env.results.rows)
	assert.Empty(t, env.outbox.events)
	assert.Empty(t, env.alerts.alerts)
	assert.Empty(t, env.reports.reports)
}

func TestListByOrderItemPaginates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, v := range []float64{5.1, 6.2, 7.3} {
		_, err := env.svc.Submit(ctx, env.actor, env.numericSubmission(v))
		require.NoError(t, err)
	}

	first, err := env.svc.ListByOrderItem(ctx, env.item.ID, model.Pagination{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := env.svc.ListByOrderItem(ctx, env.item.ID, model.Pagination{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[1].ID, second[0].ID)

	empty, err := env.svc.ListByOrderItem(ctx, env.item.ID, model.Pagination{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
