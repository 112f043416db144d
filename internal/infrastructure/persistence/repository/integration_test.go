package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	appwf "github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/domain/apperr"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
	"github.com/garyjia/procurement-tracker/internal/domain/threshold"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

type discardLogger struct{}

func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}

var (
	requester = policy.NewActor(10, "Riley Requester", 2, []string{"REQUESTER"})
	manager   = policy.NewActor(11, "Dana Manager", 2, []string{"DEPARTMENT_MANAGER", "REQUESTER"})
)

func (e *testEnv) requestService(disp dispatcher.Dispatcher) service.RequestService {
	return service.NewRequestService(e.requests, e.items, e.history, e.sequences, e.directory, e.tx, disp, nil, discardLogger{})
}

func (e *testEnv) engine(disp dispatcher.Dispatcher) appwf.RequestEngine {
	return appwf.NewEngine(e.requests, e.items, e.history, e.directory, e.tx,
		threshold.New(threshold.DefaultConfig()),
		appwf.WithDispatcher(disp),
	)
}

func TestConcurrentDraftsGetDistinctReferences(t *testing.T) {
	env := newTestEnv(t)
	svc := env.requestService(dispatcher.NewDispatcher())
	ctx := context.Background()

	const n = 10
	refs := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := svc.CreateDraft(ctx, service.CreateRequestCommand{
				Title:    fmt.Sprintf("Draft %d", i),
				Currency: "JMD",
			}, requester)
			errs[i] = err
			if err == nil {
				refs[i] = req.Reference
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Strings(refs)
	for i, ref := range refs {
		// same day prefix, numbers 1..n without gaps
		assert.Equal(t, fmt.Sprintf("%04d", i+1), ref[len(ref)-4:])
	}
}

func TestConcurrentApprovalsKeepHistoryConsistent(t *testing.T) {
	env := newTestEnv(t)
	disp := dispatcher.NewDispatcher()
	service.NewAuditTrail(env.audit, discardLogger{}).Register(disp)

	svc := env.requestService(disp)
	engine := env.engine(disp)
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, service.CreateRequestCommand{
		Title:            "Office chairs",
		Currency:         "JMD",
		ProcurementTypes: []string{"goods"},
		Items: []service.ItemInput{
			{Description: "Chair", Quantity: 20, UnitPrice: decimal.NewFromInt(15_000)},
		},
	}, requester)
	require.NoError(t, err)

	_, err = engine.Submit(ctx, draft.ID, requester)
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Act(ctx, draft.ID, workflow.TriggerApprove, manager, "ok")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	// the manager may act on SUBMITTED and DEPARTMENT_REVIEW only; later
	// attempts see HOD_REVIEW and are refused
	assert.Equal(t, 2, succeeded)
	for _, err := range failures {
		assert.True(t, errors.Is(err, apperr.ErrForbidden), "unexpected error: %v", err)
	}

	got, err := svc.GetRequest(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateHODReview, got.Status)
	assert.Equal(t, int64(4), got.Version)

	history, err := svc.GetHistory(ctx, draft.ID)
	require.NoError(t, err)
	actions := make([]string, len(history))
	for i, entry := range history {
		actions[i] = entry.Action
		if i > 0 {
			assert.Equal(t, history[i-1].Status, entry.PreviousStatus, "entry %d", i)
		}
	}
	assert.Equal(t, []string{"CREATE", "SUBMIT", "APPROVE", "APPROVE", "ROUTE"}, actions)
	assert.Equal(t, "system", history[4].ActorName)

	require.NoError(t, disp.Close())
	audit, err := env.audit.ListByEntity(ctx, entity.AuditEntityRequest, draft.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, audit)
}

func TestConcurrentVotesKeepCountersExact(t *testing.T) {
	env := newTestEnv(t)
	ideas := service.NewIdeaService(env.ideas, env.votes, env.tx, dispatcher.NewDispatcher(), nil, discardLogger{})
	ctx := context.Background()

	idea, err := ideas.CreateIdea(ctx, service.CreateIdeaCommand{
		Title:       "Shared printer pool",
		Description: "Pool printers across floors",
	}, requester)
	require.NoError(t, err)

	const voters = 12
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			voter := policy.NewActor(int64(100+i), fmt.Sprintf("Voter %d", i), 2, []string{"REQUESTER"})
			voteType := entity.VoteUp
			if i%3 == 0 {
				voteType = entity.VoteDown
			}
			_, err := ideas.Vote(ctx, idea.ID, voteType, voter)
			assert.NoError(t, err)

			// every fourth voter changes their mind
			if i%4 == 0 {
				_, err = ideas.Vote(ctx, idea.ID, entity.VoteUp, voter)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	var up, down int64
	rows, err := env.db.QueryContext(ctx, `SELECT vote_type, COUNT(*) FROM idea_votes WHERE idea_id = ? GROUP BY vote_type`, idea.ID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var (
			voteType string
			count    int64
		)
		require.NoError(t, rows.Scan(&voteType, &count))
		if entity.VoteType(voteType) == entity.VoteUp {
			up = count
		} else {
			down = count
		}
	}
	require.NoError(t, rows.Err())

	got, err := ideas.GetIdea(ctx, idea.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(voters), up+down)
	assert.Equal(t, up, got.UpvoteCount)
	assert.Equal(t, down, got.DownvoteCount)
	assert.Equal(t, up-down, got.VoteCount)
	// voters 3, 6 and 9 stay down; 0 flipped to up
	assert.Equal(t, int64(3), down)
}

func TestAssignLotConflictLeavesRequestUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.createRequest(t, "REQ-20261019-0001", workflow.StateSubmitted, 10)

	err := env.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		parent := &entity.CombinedRequest{Reference: "CMB-20261019143005", Title: "Bundle", CreatedBy: 12, CreatedAt: time.Now()}
		if err := env.combined.Create(txCtx, parent); err != nil {
			return err
		}
		return env.requests.AssignLot(txCtx, port.LotAssignment{
			RequestID:       req.ID,
			ExpectedVersion: 7,
			CombinedID:      parent.ID,
			LotNumber:       1,
			Title:           "LOT-1: stale",
			Status:          workflow.StateProcurementReview,
		})
	})
	require.Error(t, err)

	got, err := env.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCombined)
	assert.Equal(t, int64(1), got.Version)

	list, err := env.combined.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
