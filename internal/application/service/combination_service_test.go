package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/apperr"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

var combineNow = time.Date(2026, 10, 19, 14, 30, 5, 0, time.UTC)

type combineFixture struct {
	store *memStore
	disp  *recordingDispatcher
	svc   CombinationService
}

func newCombineFixture(exporter *stubExporter) *combineFixture {
	store := newMemStore()
	disp := &recordingDispatcher{}
	var exp port.LotExporter
	if exporter != nil {
		exp = exporter
	}
	svc := NewCombinationService(
		memRequests{store}, memItems{store}, memHistory{store}, memCombined{store},
		store, nil, exp, disp, fixedClock(combineNow), &testLogger{},
	)
	return &combineFixture{store: store, disp: disp, svc: svc}
}

func (f *combineFixture) seed(ref string, dept int64, status workflow.State, total int64, tags ...string) *entity.Request {
	return f.store.seedRequest(&entity.Request{
		Reference:        ref,
		Title:            "Request " + ref,
		DepartmentID:     dept,
		RequesterID:      7,
		Currency:         "JMD",
		ProcurementTypes: tags,
		Status:           status,
		Items:            []entity.RequestItem{entity.NewRequestItem("line", 1, decimal.NewFromInt(total))},
	})
}

type stubExporter struct {
	view *entity.CombinedView
	err  error
}

func (e *stubExporter) WriteLots(w io.Writer, view *entity.CombinedView) error {
	e.view = view
	if e.err != nil {
		return e.err
	}
	_, err := w.Write([]byte(view.Reference))
	return err
}

var procurementOfficer = policy.NewActor(40, "Pat Procurement", 1, []string{"PROCUREMENT_OFFICER"})

func TestCombine_NumbersLotsInInputOrder(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)
	b := f.seed("REQ-20261019-0002", 2, workflow.StateDepartmentReview, 2000)
	c := f.seed("REQ-20261019-0003", 1, workflow.StateDraft, 3000)

	view, err := f.svc.Combine(context.Background(), CombineCommand{
		Title:      "Office refit",
		RequestIDs: []int64{c.ID, a.ID, b.ID},
	}, procurementOfficer)
	require.NoError(t, err)

	assert.Equal(t, "CMB-20261019143005", view.Reference)
	assert.Equal(t, 3, view.LotsCount)
	assert.True(t, decimal.NewFromInt(6000).Equal(view.TotalValue))
	assert.Equal(t, 3, view.TotalItems)

	wantOrder := []int64{c.ID, a.ID, b.ID}
	for i, lot := range view.Lots {
		assert.Equal(t, wantOrder[i], lot.ID)
		require.NotNil(t, lot.LotNumber)
		assert.Equal(t, i+1, *lot.LotNumber)
		assert.Equal(t, workflow.StateProcurementReview, lot.Status)
		assert.True(t, lot.IsCombined)

		stored := f.store.requests[lot.ID]
		assert.Equal(t, workflow.StateProcurementReview, stored.Status)
		assert.Equal(t, view.ID, *stored.CombinedRequestID)
	}
	assert.Equal(t, "LOT-1: Request REQ-20261019-0003", view.Lots[0].Title)
	assert.Equal(t, "LOT-3: Request REQ-20261019-0002", view.Lots[2].Title)

	// lot 1 carries its own COMBINE entry plus the summary
	first := f.store.historyFor(c.ID)
	require.Len(t, first, 2)
	assert.Equal(t, entity.HistoryActionCombine, first[0].Action)
	assert.Equal(t, workflow.StateDraft, first[0].PreviousStatus)
	assert.Equal(t, "Combined into CMB-20261019143005 as lot 1", first[0].Comment)
	assert.Equal(t, entity.HistoryActionCombineSummary, first[1].Action)
	assert.Contains(t, first[1].Comment, "REQ-20261019-0003, REQ-20261019-0001, REQ-20261019-0002")

	second := f.store.historyFor(a.ID)
	require.Len(t, second, 1)
	assert.Equal(t, "Combined into CMB-20261019143005 as lot 2", second[0].Comment)

	created := f.disp.ofType(event.TypeCombinationCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "6000", created[0].Payload["total_value"])
	assert.Empty(t, f.disp.ofType(event.TypeThresholdExceeded))
}

func TestCombine_AllOrNothing(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)
	closed := f.seed("REQ-20261019-0002", 1, workflow.StateClosed, 2000)

	_, err := f.svc.Combine(context.Background(), CombineCommand{
		Title:      "Mixed",
		RequestIDs: []int64{a.ID, closed.ID, 999},
	}, procurementOfficer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []int64{999}, appErr.Details["missing_ids"])
	assert.Equal(t, map[int64]string{closed.ID: "CLOSED"}, appErr.Details["ineligible"])

	assert.Empty(t, f.store.combined)
	assert.False(t, f.store.requests[a.ID].IsCombined)
	assert.Equal(t, workflow.StateSubmitted, f.store.requests[a.ID].Status)
	assert.Empty(t, f.store.history)
	assert.Empty(t, f.disp.events)
}

func TestCombine_RollsBackWhenALotWriteFails(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)
	b := f.seed("REQ-20261019-0002", 1, workflow.StateSubmitted, 2000)
	f.store.failAt = "requests.AssignLot#2"

	_, err := f.svc.Combine(context.Background(), CombineCommand{
		Title:      "Partial",
		RequestIDs: []int64{a.ID, b.ID},
	}, procurementOfficer)
	require.Error(t, err)
	assert.True(t, apperr.Retryable(err))

	assert.Empty(t, f.store.combined)
	assert.False(t, f.store.requests[a.ID].IsCombined)
	assert.Nil(t, f.store.requests[a.ID].LotNumber)
	assert.Empty(t, f.store.history)
}

func TestCombine_AlreadyCombinedMember(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)
	b := f.seed("REQ-20261019-0002", 1, workflow.StateSubmitted, 2000)
	c := f.seed("REQ-20261019-0003", 1, workflow.StateSubmitted, 3000)

	_, err := f.svc.Combine(context.Background(), CombineCommand{Title: "First", RequestIDs: []int64{a.ID, b.ID}}, procurementOfficer)
	require.NoError(t, err)

	_, err = f.svc.Combine(context.Background(), CombineCommand{Title: "Second", RequestIDs: []int64{b.ID, c.ID}}, procurementOfficer)
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, []int64{b.ID}, appErr.Details["already_combined_ids"])
	assert.False(t, f.store.requests[c.ID].IsCombined)
}

func TestCombine_CrossDepartmentNeedsCapability(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)
	b := f.seed("REQ-20261019-0002", 2, workflow.StateSubmitted, 2000)
	manager := policy.NewActor(20, "Dana Manager", 1, []string{"DEPARTMENT_MANAGER"})

	_, err := f.svc.Combine(context.Background(), CombineCommand{Title: "Cross", RequestIDs: []int64{a.ID, b.ID}}, manager)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []int64{1, 2}, appErr.Details["department_ids"])
	assert.Empty(t, f.store.combined)
}

func TestCombine_SameDepartmentWithoutCapability(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 3, workflow.StateSubmitted, 1000)
	b := f.seed("REQ-20261019-0002", 3, workflow.StateSubmitted, 2000)
	manager := policy.NewActor(20, "Dana Manager", 3, []string{"DEPARTMENT_MANAGER"})

	view, err := f.svc.Combine(context.Background(), CombineCommand{Title: "Same dept", RequestIDs: []int64{a.ID, b.ID}}, manager)
	require.NoError(t, err)
	assert.Equal(t, 2, view.LotsCount)
}

func TestCombine_RejectsMixedCurrencies(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)
	b := f.seed("REQ-20261019-0002", 1, workflow.StateSubmitted, 2000)
	f.store.requests[b.ID].Currency = "USD"

	_, err := f.svc.Combine(context.Background(), CombineCommand{Title: "FX", RequestIDs: []int64{a.ID, b.ID}}, procurementOfficer)
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, []string{"JMD", "USD"}, appErr.Details["currencies"])
}

func TestCombine_InputValidation(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)

	tests := []struct {
		name string
		cmd  CombineCommand
	}{
		{name: "single request", cmd: CombineCommand{Title: "One", RequestIDs: []int64{a.ID}}},
		{name: "missing title", cmd: CombineCommand{RequestIDs: []int64{a.ID, 2}}},
		{name: "duplicate ids", cmd: CombineCommand{Title: "Dup", RequestIDs: []int64{a.ID, a.ID}}},
		{name: "non-positive id", cmd: CombineCommand{Title: "Zero", RequestIDs: []int64{a.ID, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Combine(context.Background(), tt.cmd, procurementOfficer)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}
	assert.Empty(t, f.store.combined)
}

func TestCombine_ThresholdUsesAggregateValue(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1_500_000, "goods")
	b := f.seed("REQ-20261019-0002", 1, workflow.StateSubmitted, 1_500_000, "services")

	view, err := f.svc.Combine(context.Background(), CombineCommand{Title: "Bulk supplies", RequestIDs: []int64{a.ID, b.ID}}, procurementOfficer)
	require.NoError(t, err)

	alerts := f.disp.ofType(event.TypeThresholdExceeded)
	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, view.ID, alert.EntityID)
	assert.Equal(t, view.Reference, alert.Reference)
	assert.Equal(t, entity.AuditEntityCombined, alert.Payload["entity"])
	assert.Equal(t, "3000000", alert.Payload["total"])
	assert.Equal(t, "3000000", alert.Payload["threshold_amount"])
	assert.Equal(t, int64(1), alert.Payload["department_id"])

	created := f.disp.ofType(event.TypeCombinationCreated)
	require.Len(t, created, 1)
	assert.Equal(t, created[0].CorrelationID, alert.CorrelationID)
}

func TestCombine_ThresholdAcrossDepartmentsHasNoDepartment(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 4_000_000, "construction")
	b := f.seed("REQ-20261019-0002", 2, workflow.StateSubmitted, 1_000_000)

	_, err := f.svc.Combine(context.Background(), CombineCommand{Title: "Works", RequestIDs: []int64{a.ID, b.ID}}, procurementOfficer)
	require.NoError(t, err)

	alerts := f.disp.ofType(event.TypeThresholdExceeded)
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(0), alerts[0].Payload["department_id"])
	assert.Equal(t, "5000000", alerts[0].Payload["threshold_amount"])
}

func TestGetCombined(t *testing.T) {
	f := newCombineFixture(nil)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)
	b := f.seed("REQ-20261019-0002", 1, workflow.StateSubmitted, 2500)

	created, err := f.svc.Combine(context.Background(), CombineCommand{Title: "Read back", RequestIDs: []int64{b.ID, a.ID}}, procurementOfficer)
	require.NoError(t, err)

	view, err := f.svc.GetCombined(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.LotsCount)
	assert.True(t, decimal.NewFromInt(3500).Equal(view.TotalValue))
	assert.Equal(t, b.ID, view.Lots[0].ID)
	assert.Len(t, view.Lots[0].Items, 1)

	_, err = f.svc.GetCombined(context.Background(), 4242)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestExportLots(t *testing.T) {
	exporter := &stubExporter{}
	f := newCombineFixture(exporter)
	a := f.seed("REQ-20261019-0001", 1, workflow.StateSubmitted, 1000)
	b := f.seed("REQ-20261019-0002", 1, workflow.StateSubmitted, 2000)

	created, err := f.svc.Combine(context.Background(), CombineCommand{Title: "Export", RequestIDs: []int64{a.ID, b.ID}}, procurementOfficer)
	require.NoError(t, err)

	var buf bytes.Buffer
	view, err := f.svc.ExportLots(context.Background(), created.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, created.Reference, buf.String())
	assert.Equal(t, view, exporter.view)

	exporter.err = errors.New("disk full")
	_, err = f.svc.ExportLots(context.Background(), created.ID, &buf)
	assert.Error(t, err)
}
