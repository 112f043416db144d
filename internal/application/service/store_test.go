package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
)

// memStore is an in-memory stand-in for the relational store. Transactions
// hold the store lock for their whole duration and restore a snapshot when
// the callback fails, so partial writes are observable as rollbacks.
type memStore struct {
	mu sync.Mutex

	requests     map[int64]*entity.Request
	items        map[int64][]entity.RequestItem
	history      []*entity.StatusHistoryEntry
	combined     map[int64]*entity.CombinedRequest
	combinedRefs map[string]bool
	ideas        map[int64]*entity.Idea
	votes        map[[2]int64]*entity.IdeaVote
	sequences    map[string]int
	users        map[int64]*entity.User
	departments  map[int64]*entity.Department
	nextID       int64

	// failAt makes the named operation fail once, for rollback tests
	failAt string
}

func newMemStore() *memStore {
	return &memStore{
		requests:     map[int64]*entity.Request{},
		items:        map[int64][]entity.RequestItem{},
		combined:     map[int64]*entity.CombinedRequest{},
		combinedRefs: map[string]bool{},
		ideas:        map[int64]*entity.Idea{},
		votes:        map[[2]int64]*entity.IdeaVote{},
		sequences:    map[string]int{},
		users:        map[int64]*entity.User{},
		departments:  map[int64]*entity.Department{},
		nextID:       1000,
	}
}

var errInjected = errors.New("injected failure")

func (s *memStore) fail(op string) error {
	if s.failAt == op {
		s.failAt = ""
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

type snapshot struct {
	requests     map[int64]entity.Request
	items        map[int64][]entity.RequestItem
	history      int
	combined     map[int64]entity.CombinedRequest
	combinedRefs map[string]bool
	ideas        map[int64]entity.Idea
	votes        map[[2]int64]entity.IdeaVote
	sequences    map[string]int
}

func (s *memStore) snapshot() snapshot {
	snap := snapshot{
		requests:     map[int64]entity.Request{},
		items:        map[int64][]entity.RequestItem{},
		history:      len(s.history),
		combined:     map[int64]entity.CombinedRequest{},
		combinedRefs: map[string]bool{},
		ideas:        map[int64]entity.Idea{},
		votes:        map[[2]int64]entity.IdeaVote{},
		sequences:    map[string]int{},
	}
	for k, v := range s.requests {
		snap.requests[k] = *v
	}
	for k, v := range s.items {
		snap.items[k] = append([]entity.RequestItem(nil), v...)
	}
	for k, v := range s.combined {
		snap.combined[k] = *v
	}
	for k, v := range s.combinedRefs {
		snap.combinedRefs[k] = v
	}
	for k, v := range s.ideas {
		snap.ideas[k] = *v
	}
	for k, v := range s.votes {
		snap.votes[k] = *v
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.requests = map[int64]*entity.Request{}
	for k, v := range snap.requests {
		v := v
		s.requests[k] = &v
	}
	s.items = snap.items
	s.history = s.history[:snap.history]
	s.combined = map[int64]*entity.CombinedRequest{}
	for k, v := range snap.combined {
		v := v
		s.combined[k] = &v
	}
	s.combinedRefs = snap.combinedRefs
	s.ideas = map[int64]*entity.Idea{}
	for k, v := range snap.ideas {
		v := v
		s.ideas[k] = &v
	}
	s.votes = map[[2]int64]*entity.IdeaVote{}
	for k, v := range snap.votes {
		v := v
		s.votes[k] = &v
	}
	s.sequences = snap.sequences
}

// WithTransaction implements port.TransactionManager
func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) seedRequest(r *entity.Request) *entity.Request {
	if r.ID == 0 {
		r.ID = s.id()
	}
	if r.Version == 0 {
		r.Version = 1
	}
	if len(r.Items) > 0 {
		r.SetItems(r.Items)
		s.items[r.ID] = r.Items
	}
	cp := *r
	cp.Items = nil
	s.requests[r.ID] = &cp
	return r
}

func (s *memStore) historyFor(requestID int64) []*entity.StatusHistoryEntry {
	var out []*entity.StatusHistoryEntry
	for _, e := range s.history {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out
}

// Request repository

type memRequests struct{ s *memStore }

func (r memRequests) Create(ctx context.Context, req *entity.Request) error {
	if err := r.s.fail("requests.Create"); err != nil {
		return err
	}
	req.ID = r.s.id()
	cp := *req
	cp.Items = nil
	r.s.requests[req.ID] = &cp
	return nil
}

func (r memRequests) GetByID(ctx context.Context, id int64) (*entity.Request, error) {
	req, ok := r.s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (r memRequests) GetByIDs(ctx context.Context, ids []int64) ([]*entity.Request, error) {
	var out []*entity.Request
	for _, id := range ids {
		if req, ok := r.s.requests[id]; ok {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memRequests) List(ctx context.Context, filter port.RequestFilter) ([]*entity.Request, error) {
	var out []*entity.Request
	for _, req := range r.s.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.DepartmentID != 0 && req.DepartmentID != filter.DepartmentID {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r memRequests) ListByCombinedID(ctx context.Context, combinedID int64) ([]*entity.Request, error) {
	var out []*entity.Request
	for _, req := range r.s.requests {
		if req.CombinedRequestID != nil && *req.CombinedRequestID == combinedID {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].LotNumber < *out[j].LotNumber })
	return out, nil
}

func (r memRequests) checkVersion(id, expected int64) (*entity.Request, error) {
	req, ok := r.s.requests[id]
	if !ok || req.Version != expected {
		return nil, port.ErrStaleVersion
	}
	return req, nil
}

func (r memRequests) UpdateDetails(ctx context.Context, in *entity.Request, expectedVersion int64) error {
	req, err := r.checkVersion(in.ID, expectedVersion)
	if err != nil {
		return err
	}
	req.Title = in.Title
	req.Description = in.Description
	req.Priority = in.Priority
	req.ProcurementTypes = in.ProcurementTypes
	req.TotalEstimated = in.TotalEstimated
	req.Version++
	return nil
}

func (r memRequests) UpdateStatus(ctx context.Context, change port.StatusChange) error {
	req, err := r.checkVersion(change.RequestID, change.ExpectedVersion)
	if err != nil {
		return err
	}
	req.Status = change.Status
	req.Version++
	return nil
}

func (r memRequests) SetAssignee(ctx context.Context, requestID, expectedVersion, assigneeID int64) error {
	req, err := r.checkVersion(requestID, expectedVersion)
	if err != nil {
		return err
	}
	req.CurrentAssigneeID = &assigneeID
	req.Version++
	return nil
}

func (r memRequests) AssignLot(ctx context.Context, lot port.LotAssignment) error {
	if err := r.s.fail(fmt.Sprintf("requests.AssignLot#%d", lot.LotNumber)); err != nil {
		return err
	}
	req, err := r.checkVersion(lot.RequestID, lot.ExpectedVersion)
	if err != nil {
		return err
	}
	combinedID, lotNumber := lot.CombinedID, lot.LotNumber
	req.IsCombined = true
	req.CombinedRequestID = &combinedID
	req.LotNumber = &lotNumber
	req.Title = lot.Title
	req.Status = lot.Status
	req.Version++
	return nil
}

// Item repository

type memItems struct{ s *memStore }

func (r memItems) ReplaceForRequest(ctx context.Context, requestID int64, items []entity.RequestItem) error {
	stored := make([]entity.RequestItem, len(items))
	for i, item := range items {
		item.ID = r.s.id()
		item.RequestID = requestID
		stored[i] = item
	}
	r.s.items[requestID] = stored
	return nil
}

func (r memItems) GetByRequestID(ctx context.Context, requestID int64) ([]entity.RequestItem, error) {
	return append([]entity.RequestItem(nil), r.s.items[requestID]...), nil
}

func (r memItems) GetByRequestIDs(ctx context.Context, ids []int64) (map[int64][]entity.RequestItem, error) {
	out := make(map[int64][]entity.RequestItem, len(ids))
	for _, id := range ids {
		out[id] = append([]entity.RequestItem(nil), r.s.items[id]...)
	}
	return out, nil
}

// History repository

type memHistory struct{ s *memStore }

func (r memHistory) Append(ctx context.Context, entry *entity.StatusHistoryEntry) error {
	if err := r.s.fail("history.Append:" + entry.Action); err != nil {
		return err
	}
	entry.ID = r.s.id()
	r.s.history = append(r.s.history, entry)
	return nil
}

func (r memHistory) GetByRequestID(ctx context.Context, requestID int64) ([]*entity.StatusHistoryEntry, error) {
	return r.s.historyFor(requestID), nil
}

// Sequence repository

type memSequences struct{ s *memStore }

func (r memSequences) Next(ctx context.Context, dayKey string) (int, error) {
	r.s.sequences[dayKey]++
	return r.s.sequences[dayKey], nil
}

// Combined repository

type memCombined struct{ s *memStore }

func (r memCombined) Create(ctx context.Context, c *entity.CombinedRequest) error {
	if r.s.combinedRefs[c.Reference] {
		return fmt.Errorf("UNIQUE constraint failed: combined_requests.reference")
	}
	c.ID = r.s.id()
	cp := *c
	r.s.combined[c.ID] = &cp
	r.s.combinedRefs[c.Reference] = true
	return nil
}

func (r memCombined) GetByID(ctx context.Context, id int64) (*entity.CombinedRequest, error) {
	c, ok := r.s.combined[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r memCombined) List(ctx context.Context, limit, offset int) ([]*entity.CombinedRequest, error) {
	var out []*entity.CombinedRequest
	for _, c := range r.s.combined {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// Idea and vote repositories

type memIdeas struct{ s *memStore }

func (r memIdeas) Create(ctx context.Context, idea *entity.Idea) error {
	idea.ID = r.s.id()
	cp := *idea
	r.s.ideas[idea.ID] = &cp
	return nil
}

func (r memIdeas) GetByID(ctx context.Context, id int64) (*entity.Idea, error) {
	idea, ok := r.s.ideas[id]
	if !ok {
		return nil, nil
	}
	cp := *idea
	return &cp, nil
}

func (r memIdeas) List(ctx context.Context, status entity.IdeaStatus, limit, offset int) ([]*entity.Idea, error) {
	var out []*entity.Idea
	for _, idea := range r.s.ideas {
		if status == "" || idea.Status == status {
			cp := *idea
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memIdeas) UpdateReview(ctx context.Context, id int64, status entity.IdeaStatus, reviewerID int64, comment string) error {
	idea := r.s.ideas[id]
	idea.Status = status
	idea.ReviewedBy = &reviewerID
	idea.ReviewComment = comment
	return nil
}

func (r memIdeas) ApplyVoteDelta(ctx context.Context, id int64, delta entity.VoteDelta) error {
	if err := r.s.fail("ideas.ApplyVoteDelta"); err != nil {
		return err
	}
	idea := r.s.ideas[id]
	idea.VoteCount += delta.Votes
	idea.UpvoteCount += delta.Up
	idea.DownvoteCount += delta.Down
	return nil
}

type memVotes struct{ s *memStore }

func (r memVotes) Get(ctx context.Context, ideaID, userID int64) (*entity.IdeaVote, error) {
	v, ok := r.s.votes[[2]int64{ideaID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r memVotes) Upsert(ctx context.Context, vote *entity.IdeaVote) error {
	cp := *vote
	r.s.votes[[2]int64{vote.IdeaID, vote.UserID}] = &cp
	return nil
}

func (r memVotes) Delete(ctx context.Context, ideaID, userID int64) error {
	delete(r.s.votes, [2]int64{ideaID, userID})
	return nil
}

// Directory

type memDirectory struct{ s *memStore }

func (d memDirectory) GetUser(ctx context.Context, id int64) (*entity.User, error) {
	return d.s.users[id], nil
}

func (d memDirectory) GetDepartment(ctx context.Context, id int64) (*entity.Department, error) {
	return d.s.departments[id], nil
}

func (d memDirectory) UsersWithRoles(ctx context.Context, roles []string) ([]*entity.User, error) {
	want := map[string]bool{}
	for _, r := range roles {
		want[r] = true
	}
	var out []*entity.User
	for _, u := range d.s.users {
		for _, r := range u.Roles {
			if want[r] && u.Active {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

// Collaborators

type recordingDispatcher struct {
	dispatcher.Dispatcher
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) ofType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, e := range d.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func fixedClock(t time.Time) port.Clock {
	return func() time.Time { return t }
}
