package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Request is a single procurement ask moving through the approval pipeline
type Request struct {
	ID                int64           `json:"id"`
	Reference         string          `json:"reference"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	DepartmentID      int64           `json:"department_id"`
	RequesterID       int64           `json:"requester_id"`
	CurrentAssigneeID *int64          `json:"current_assignee_id,omitempty"`
	TotalEstimated    decimal.Decimal `json:"total_estimated"`
	Currency          string          `json:"currency"`
	Priority          string          `json:"priority"`
	ProcurementTypes  []string        `json:"procurement_types"`
	Status            workflow.State  `json:"status"`
	Version           int64           `json:"version"`
	IsCombined        bool            `json:"is_combined"`
	CombinedRequestID *int64          `json:"combined_request_id,omitempty"`
	LotNumber         *int            `json:"lot_number,omitempty"`
	Items             []RequestItem   `json:"items,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	SubmittedAt       *time.Time      `json:"submitted_at,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RequestItem is one line of a request
type RequestItem struct {
	ID          int64           `json:"id"`
	RequestID   int64           `json:"request_id"`
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// NewRequestItem builds an item with its total computed
func NewRequestItem(description string, quantity int64, unitPrice decimal.Decimal) RequestItem {
	return RequestItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  unitPrice.Mul(decimal.NewFromInt(quantity)),
	}
}

// SetItems replaces the item list, renumbers positions and recomputes the estimate
func (r *Request) SetItems(items []RequestItem) {
	r.Items = make([]RequestItem, len(items))
	for i, item := range items {
		item.RequestID = r.ID
		item.Position = i + 1
		item.TotalPrice = item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))
		r.Items[i] = item
	}
	r.TotalEstimated = SumItems(r.Items)
}

// SumItems totals item prices
func SumItems(items []RequestItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.TotalPrice)
	}
	return total
}

// IsOwnedBy reports whether the user is the requester
func (r *Request) IsOwnedBy(userID int64) bool {
	return r.RequesterID == userID
}

// Priority values
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)
