package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/apperr"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
	"github.com/garyjia/procurement-tracker/internal/domain/policy"
	"github.com/garyjia/procurement-tracker/pkg/utils"
)

// CreateIdeaCommand carries a new innovation idea
type CreateIdeaCommand struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=4000"`
}

// ReviewIdeaCommand carries a committee decision
type ReviewIdeaCommand struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Comment  string `json:"comment" validate:"max=2000"`
}

// IdeaService manages innovation ideas and their votes
type IdeaService interface {
	CreateIdea(ctx context.Context, cmd CreateIdeaCommand, actor policy.Actor) (*entity.Idea, error)
	ReviewIdea(ctx context.Context, id int64, cmd ReviewIdeaCommand, actor policy.Actor) (*entity.Idea, error)
	Vote(ctx context.Context, ideaID int64, voteType entity.VoteType, actor policy.Actor) (*entity.Idea, error)
	RemoveVote(ctx context.Context, ideaID int64, actor policy.Actor) (*entity.Idea, error)
	GetIdea(ctx context.Context, id int64) (*entity.Idea, error)
	ListIdeas(ctx context.Context, status entity.IdeaStatus, limit, offset int) ([]*entity.Idea, error)
}

type ideaServiceImpl struct {
	ideas     port.IdeaRepository
	votes     port.VoteRepository
	txManager port.TransactionManager

	dispatcher dispatcher.Dispatcher
	validate   *validator.Validate
	clock      port.Clock
	logger     Logger
}

// NewIdeaService creates a new IdeaService
func NewIdeaService(
	ideas port.IdeaRepository,
	votes port.VoteRepository,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	clock port.Clock,
	logger Logger,
) IdeaService {
	if clock == nil {
		clock = time.Now
	}
	return &ideaServiceImpl{
		ideas:      ideas,
		votes:      votes,
		txManager:  txManager,
		dispatcher: disp,
		validate:   utils.NewValidator(),
		clock:      clock,
		logger:     logger,
	}
}

func (s *ideaServiceImpl) CreateIdea(ctx context.Context, cmd CreateIdeaCommand, actor policy.Actor) (*entity.Idea, error) {
	const op = "idea.CreateIdea"

	cmd.Title = utils.SanitizeString(cmd.Title)
	cmd.Description = utils.SanitizeString(cmd.Description)
	if err := s.validate.Struct(cmd); err != nil {
		msgs := utils.ValidationMessages(err)
		return nil, apperr.Validation(op, "invalid input: %s", strings.Join(msgs, "; ")).WithDetail("fields", msgs)
	}

	now := s.clock()
	idea := &entity.Idea{
		Title:       cmd.Title,
		Description: cmd.Description,
		SubmittedBy: actor.UserID,
		Status:      entity.IdeaStatusSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.ideas.Create(ctx, idea); err != nil {
		s.logger.Error("Failed to create idea", "error", err)
		return nil, apperr.AsTransactionFailure(op, err)
	}

	s.logger.Info("Idea created", "id", idea.ID)
	s.emit(ctx, event.TypeIdeaCreated, idea, actor, map[string]any{"title": idea.Title})
	return idea, nil
}

func (s *ideaServiceImpl) ReviewIdea(ctx context.Context, id int64, cmd ReviewIdeaCommand, actor policy.Actor) (*entity.Idea, error) {
	const op = "idea.ReviewIdea"

	cmd.Decision = strings.ToUpper(strings.TrimSpace(cmd.Decision))
	cmd.Comment = utils.SanitizeString(cmd.Comment)
	if err := s.validate.Struct(cmd); err != nil {
		msgs := utils.ValidationMessages(err)
		return nil, apperr.Validation(op, "invalid input: %s", strings.Join(msgs, "; ")).WithDetail("fields", msgs)
	}
	if !actor.Capabilities.CanReviewIdeas {
		return nil, apperr.Forbidden(op, "actor %s cannot review ideas", actor.Label())
	}

	status := entity.IdeaStatusApproved
	if cmd.Decision == "REJECT" {
		status = entity.IdeaStatusRejected
	}

	var idea *entity.Idea
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		idea, err = s.load(txCtx, op, id)
		if err != nil {
			return err
		}
		if idea.Status != entity.IdeaStatusSubmitted {
			return apperr.InvalidState(op, "idea %d was already reviewed (%s)", id, idea.Status).
				WithDetail("current_status", string(idea.Status)).
				WithDetail("action", cmd.Decision)
		}
		if err := s.ideas.UpdateReview(txCtx, id, status, actor.UserID, cmd.Comment); err != nil {
			return fmt.Errorf("update review: %w", err)
		}
		idea.Status = status
		idea.ReviewedBy = &actor.UserID
		idea.ReviewComment = cmd.Comment
		idea.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, apperr.AsTransactionFailure(op, err)
	}

	s.emit(ctx, event.TypeIdeaReviewed, idea, actor, map[string]any{
		"status":  string(idea.Status),
		"comment": idea.ReviewComment,
	})
	return idea, nil
}

// Vote casts or changes the actor's vote. Casting the vote already held
// changes nothing.
func (s *ideaServiceImpl) Vote(ctx context.Context, ideaID int64, voteType entity.VoteType, actor policy.Actor) (*entity.Idea, error) {
	const op = "idea.Vote"

	voteType = entity.VoteType(strings.ToUpper(strings.TrimSpace(string(voteType))))
	if !voteType.Valid() {
		return nil, apperr.Validation(op, "vote type must be UPVOTE or DOWNVOTE").WithDetail("vote_type", string(voteType))
	}
	return s.mutateVote(ctx, op, ideaID, voteType, actor)
}

// RemoveVote withdraws the actor's vote, if any
func (s *ideaServiceImpl) RemoveVote(ctx context.Context, ideaID int64, actor policy.Actor) (*entity.Idea, error) {
	return s.mutateVote(ctx, "idea.RemoveVote", ideaID, entity.VoteNone, actor)
}

// mutateVote reads the held vote, computes the signed counter delta and
// applies both inside one transaction
func (s *ideaServiceImpl) mutateVote(ctx context.Context, op string, ideaID int64, next entity.VoteType, actor policy.Actor) (*entity.Idea, error) {
	var (
		idea     *entity.Idea
		previous entity.VoteType
		delta    entity.VoteDelta
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		idea, err = s.load(txCtx, op, ideaID)
		if err != nil {
			return err
		}
		if !idea.Status.Votable() {
			return apperr.InvalidState(op, "idea %d is %s and closed for voting", ideaID, idea.Status).
				WithDetail("current_status", string(idea.Status))
		}

		held, err := s.votes.Get(txCtx, ideaID, actor.UserID)
		if err != nil {
			return fmt.Errorf("load vote: %w", err)
		}
		previous = entity.VoteNone
		if held != nil {
			previous = held.VoteType
		}

		delta = entity.ComputeVoteDelta(previous, next)
		if delta.IsZero() {
			return nil
		}

		now := s.clock()
		if next == entity.VoteNone {
			err = s.votes.Delete(txCtx, ideaID, actor.UserID)
		} else {
			err = s.votes.Upsert(txCtx, &entity.IdeaVote{
				IdeaID:    ideaID,
				UserID:    actor.UserID,
				VoteType:  next,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if err != nil {
			return fmt.Errorf("write vote: %w", err)
		}

		if err := s.ideas.ApplyVoteDelta(txCtx, ideaID, delta); err != nil {
			return fmt.Errorf("apply vote delta: %w", err)
		}

		idea, err = s.ideas.GetByID(txCtx, ideaID)
		if err != nil {
			return fmt.Errorf("reload idea: %w", err)
		}
		if idea == nil {
			return apperr.NotFound(op, "idea", ideaID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Vote failed", "error", err, "idea_id", ideaID, "user_id", actor.UserID)
		return nil, apperr.AsTransactionFailure(op, err)
	}

	if !delta.IsZero() {
		s.emit(ctx, event.TypeIdeaVoted, idea, actor, map[string]any{
			"previous": string(previous),
			"vote":     string(next),
		})
	}
	return idea, nil
}

func (s *ideaServiceImpl) GetIdea(ctx context.Context, id int64) (*entity.Idea, error) {
	idea, err := s.load(ctx, "idea.GetIdea", id)
	if err != nil {
		return nil, apperr.AsTransactionFailure("idea.GetIdea", err)
	}
	return idea, nil
}

func (s *ideaServiceImpl) ListIdeas(ctx context.Context, status entity.IdeaStatus, limit, offset int) ([]*entity.Idea, error) {
	limit, offset = clampPage(limit, offset)
	ideas, err := s.ideas.List(ctx, status, limit, offset)
	if err != nil {
		return nil, apperr.AsTransactionFailure("idea.ListIdeas", err)
	}
	return ideas, nil
}

func (s *ideaServiceImpl) load(ctx context.Context, op string, id int64) (*entity.Idea, error) {
	idea, err := s.ideas.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load idea: %w", err)
	}
	if idea == nil {
		return nil, apperr.NotFound(op, "idea", id)
	}
	return idea, nil
}

func (s *ideaServiceImpl) emit(ctx context.Context, eventType event.Type, idea *entity.Idea, actor policy.Actor, payload map[string]any) {
	if s.dispatcher == nil {
		return
	}
	evt := event.NewEvent(eventType, idea.ID, "", payload).WithActor(actor.UserID, actor.Label())
	s.dispatcher.DispatchAsync(ctx, evt)
}
