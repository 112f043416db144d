package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// PageQuery is the common limit/offset query
type PageQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.deps.Health != nil {
		healthy, details := h.deps.Health()
		resp.Components = details
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    resp,
	})
}

// EvaluateThreshold handles GET /api/threshold/evaluate?total=&type=&currency=
// Types may repeat or be comma separated.
func (h *Handlers) EvaluateThreshold(c *gin.Context) {
	total, err := decimal.NewFromString(c.Query("total"))
	if err != nil || total.IsNegative() {
		badRequest(c, "total must be a non-negative amount")
		return
	}

	var tags []string
	for _, raw := range c.QueryArray("type") {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	decision := h.deps.Evaluator.Evaluate(total, tags, c.Query("currency"))
	c.JSON(http.StatusOK, Response{Success: true, Data: decision})
}

// ActiveUsers handles GET /api/users/active?minutes=
func (h *Handlers) ActiveUsers(c *gin.Context) {
	if h.deps.Activity == nil {
		c.JSON(http.StatusOK, Response{Success: true, Data: []int64{}})
		return
	}

	minutes := 15
	if raw := c.Query("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "minutes must be a positive integer")
			return
		}
		minutes = n
	}

	ids, err := h.deps.Activity.Active(c.Request.Context(), time.Now().Add(-time.Duration(minutes)*time.Minute))
	if err != nil {
		h.respondError(c, "activity.Active", err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ids})
}

// pathID parses the :id parameter, writing a 400 on failure
func pathID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id: "+raw)
		return 0, false
	}
	return id, true
}
