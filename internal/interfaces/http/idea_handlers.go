package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
)

// ListIdeasQuery holds the filters of GET /api/ideas
type ListIdeasQuery struct {
	PageQuery
	Status string `form:"status"`
}

// VoteRequest is the body of PUT /api/ideas/:id/vote
type VoteRequest struct {
	VoteType string `json:"vote_type"`
}

// CreateIdea handles POST /api/ideas
func (h *Handlers) CreateIdea(c *gin.Context) {
	actor, _ := actorFrom(c)

	var cmd service.CreateIdeaCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	idea, err := h.deps.Ideas.CreateIdea(c.Request.Context(), cmd, actor)
	if err != nil {
		h.respondError(c, "ideas.Create", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: idea})
}

// ListIdeas handles GET /api/ideas
func (h *Handlers) ListIdeas(c *gin.Context) {
	var q ListIdeasQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	ideas, err := h.deps.Ideas.ListIdeas(c.Request.Context(), entity.IdeaStatus(strings.ToUpper(q.Status)), q.Limit, q.Offset)
	if err != nil {
		h.respondError(c, "ideas.List", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ideas})
}

// GetIdea handles GET /api/ideas/:id
func (h *Handlers) GetIdea(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	idea, err := h.deps.Ideas.GetIdea(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "ideas.Get", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: idea})
}

// ReviewIdea handles POST /api/ideas/:id/review
func (h *Handlers) ReviewIdea(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := actorFrom(c)

	var cmd service.ReviewIdeaCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	idea, err := h.deps.Ideas.ReviewIdea(c.Request.Context(), id, cmd, actor)
	if err != nil {
		h.respondError(c, "ideas.Review", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: idea})
}

// VoteIdea handles PUT /api/ideas/:id/vote
func (h *Handlers) VoteIdea(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := actorFrom(c)

	var body VoteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	idea, err := h.deps.Ideas.Vote(c.Request.Context(), id, entity.VoteType(body.VoteType), actor)
	if err != nil {
		h.respondError(c, "ideas.Vote", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: idea})
}

// RemoveVote handles DELETE /api/ideas/:id/vote
func (h *Handlers) RemoveVote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := actorFrom(c)

	idea, err := h.deps.Ideas.RemoveVote(c.Request.Context(), id, actor)
	if err != nil {
		h.respondError(c, "ideas.RemoveVote", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: idea})
}
