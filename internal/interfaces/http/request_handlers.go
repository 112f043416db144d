package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/domain/apperr"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// ListRequestsQuery holds the filters of GET /api/requests
type ListRequestsQuery struct {
	PageQuery
	Status       string `form:"status"`
	DepartmentID int64  `form:"department_id"`
	RequesterID  int64  `form:"requester_id"`
	AssigneeID   int64  `form:"assignee_id"`
}

// ActionRequest is the body of POST /api/requests/:id/actions
type ActionRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// AssignRequest is the body of POST /api/requests/:id/assign.
// A zero user id assigns the caller.
type AssignRequest struct {
	UserID int64 `json:"user_id"`
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	actor, _ := actorFrom(c)

	var cmd service.CreateRequestCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req, err := h.deps.Requests.CreateDraft(c.Request.Context(), cmd, actor)
	if err != nil {
		h.respondError(c, "requests.Create", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	filter := port.RequestFilter{
		DepartmentID: q.DepartmentID,
		RequesterID:  q.RequesterID,
		AssigneeID:   q.AssigneeID,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
	if q.Status != "" {
		filter.Status = domainwf.State(q.Status)
		if !filter.Status.IsValid() {
			badRequest(c, "unknown status: "+q.Status)
			return
		}
	}

	requests, err := h.deps.Requests.ListRequests(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "requests.List", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	req, err := h.deps.Requests.GetRequest(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "requests.Get", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// UpdateRequest handles PATCH /api/requests/:id
func (h *Handlers) UpdateRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := actorFrom(c)

	var cmd service.UpdateRequestCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req, err := h.deps.Requests.UpdateRequest(c.Request.Context(), id, cmd, actor)
	if err != nil {
		h.respondError(c, "requests.Update", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// GetHistory handles GET /api/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	history, err := h.deps.Requests.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "requests.History", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// SubmitRequest handles POST /api/requests/:id/submit
func (h *Handlers) SubmitRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := actorFrom(c)

	req, err := h.deps.Workflow.Submit(c.Request.Context(), id, actor)
	if err != nil {
		h.respondError(c, "requests.Submit", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// ActOnRequest handles POST /api/requests/:id/actions
func (h *Handlers) ActOnRequest(c *gin.Context) {
	const op = "requests.Act"

	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := actorFrom(c)

	var body ActionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	trigger, ok := domainwf.ParseAction(body.Action)
	if !ok {
		h.respondError(c, op, apperr.Validation(op, "unknown action %q", body.Action).
			WithDetail("action", body.Action))
		return
	}

	req, err := h.deps.Workflow.Act(c.Request.Context(), id, trigger, actor, body.Comment)
	if err != nil {
		h.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// AssignRequest handles POST /api/requests/:id/assign
func (h *Handlers) AssignRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor, _ := actorFrom(c)

	var body AssignRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	var err error
	var result interface{}
	if body.UserID == 0 {
		result, err = h.deps.Workflow.AssignSelf(c.Request.Context(), id, actor)
	} else {
		result, err = h.deps.Workflow.Assign(c.Request.Context(), id, body.UserID, actor)
	}
	if err != nil {
		h.respondError(c, "requests.Assign", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}
