package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CombinedRequest groups several requests as numbered lots of one submission
type CombinedRequest struct {
	ID          int64          `json:"id"`
	Reference   string         `json:"reference"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Config      map[string]any `json:"config,omitempty"`
	CreatedBy   int64          `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CombinedView is a combined request with totals computed from its lots at read time
type CombinedView struct {
	CombinedRequest
	Lots       []*Request      `json:"lots"`
	LotsCount  int             `json:"lots_count"`
	TotalValue decimal.Decimal `json:"total_value"`
	TotalItems int             `json:"total_items"`
}

// NewCombinedView aggregates the current state of the lots
func NewCombinedView(parent CombinedRequest, lots []*Request) *CombinedView {
	view := &CombinedView{
		CombinedRequest: parent,
		Lots:            lots,
		LotsCount:       len(lots),
		TotalValue:      decimal.Zero,
	}
	for _, lot := range lots {
		view.TotalValue = view.TotalValue.Add(lot.TotalEstimated)
		view.TotalItems += len(lot.Items)
	}
	return view
}
