// Package threshold classifies a procurement value against the executive sign-off thresholds.
package threshold

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Category is the procurement category a request's tags resolve to
type Category string

const (
	CategoryWorks         Category = "Works"
	CategoryGoodsServices Category = "GoodsServices"
	CategoryOther         Category = "Other"
)

var worksTags = map[string]bool{
	"works":          true,
	"construction":   true,
	"infrastructure": true,
}

var goodsServicesTags = map[string]bool{
	"goods":      true,
	"services":   true,
	"consulting": true,
	"supplies":   true,
	"equipment":  true,
	"materials":  true,
}

// Config holds the threshold amounts per category
type Config struct {
	Works             decimal.Decimal
	GoodsServices     decimal.Decimal
	ReferenceCurrency string
}

// DefaultConfig returns the statutory default thresholds
func DefaultConfig() Config {
	return Config{
		Works:             decimal.NewFromInt(5_000_000),
		GoodsServices:     decimal.NewFromInt(3_000_000),
		ReferenceCurrency: "JMD",
	}
}

// Decision is the routing outcome for one evaluation
type Decision struct {
	RequiresExecutiveApproval bool            `json:"requires_executive_approval"`
	ThresholdAmount           decimal.Decimal `json:"threshold_amount"`
	Category                  Category        `json:"category"`
	Currency                  string          `json:"currency"`
	Reason                    string          `json:"reason"`
}

// Evaluator holds no mutable state after construction.
type Evaluator struct {
	cfg Config
}

// New creates an evaluator. Zero amounts fall back to the defaults.
func New(cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.Works.IsZero() {
		cfg.Works = def.Works
	}
	if cfg.GoodsServices.IsZero() {
		cfg.GoodsServices = def.GoodsServices
	}
	if cfg.ReferenceCurrency == "" {
		cfg.ReferenceCurrency = def.ReferenceCurrency
	}
	return &Evaluator{cfg: cfg}
}

// Config returns the thresholds in use
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Categorize resolves tags to a category. Works takes precedence over goods/services.
func Categorize(tags []string) Category {
	goods := false
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if worksTags[t] {
			return CategoryWorks
		}
		if goodsServicesTags[t] {
			goods = true
		}
	}
	if goods {
		return CategoryGoodsServices
	}
	return CategoryOther
}

// Evaluate decides whether a value requires executive approval.
// The boundary is inclusive: a value equal to the threshold escalates.
func (e *Evaluator) Evaluate(total decimal.Decimal, tags []string, currency string) Decision {
	category := Categorize(tags)

	amount := e.cfg.GoodsServices
	if category == CategoryWorks {
		amount = e.cfg.Works
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = e.cfg.ReferenceCurrency
	}

	requires := total.GreaterThanOrEqual(amount)

	var reason string
	if requires {
		reason = fmt.Sprintf("%s value %s %s meets or exceeds the %s threshold of %s",
			category, total.StringFixed(2), currency, category, amount.StringFixed(2))
	} else {
		reason = fmt.Sprintf("%s value %s %s is below the %s threshold of %s",
			category, total.StringFixed(2), currency, category, amount.StringFixed(2))
	}
	if category == CategoryOther {
		reason += " (goods/services threshold applied)"
	}

	return Decision{
		RequiresExecutiveApproval: requires,
		ThresholdAmount:           amount,
		Category:                  category,
		Currency:                  currency,
		Reason:                    reason,
	}
}
