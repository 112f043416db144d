package http

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procurement-tracker/internal/application/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CombineRequests handles POST /api/combined
func (h *Handlers) CombineRequests(c *gin.Context) {
	actor, _ := actorFrom(c)

	var cmd service.CombineCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	view, err := h.deps.Combination.Combine(c.Request.Context(), cmd, actor)
	if err != nil {
		h.respondError(c, "combined.Create", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: view})
}

// ListCombined handles GET /api/combined
func (h *Handlers) ListCombined(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	list, err := h.deps.Combination.ListCombined(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.respondError(c, "combined.List", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// GetCombined handles GET /api/combined/:id
func (h *Handlers) GetCombined(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	view, err := h.deps.Combination.GetCombined(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "combined.Get", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ExportCombined handles GET /api/combined/:id/export. The workbook is
// buffered so a failure can still be reported as JSON.
func (h *Handlers) ExportCombined(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	view, err := h.deps.Combination.ExportLots(c.Request.Context(), id, &buf)
	if err != nil {
		h.respondError(c, "combined.Export", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-lots.xlsx"`, view.Reference))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
