package threshold

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want Category
	}{
		{"works", []string{"works"}, CategoryWorks},
		{"construction mixed case", []string{" Construction "}, CategoryWorks},
		{"infrastructure", []string{"infrastructure"}, CategoryWorks},
		{"goods", []string{"goods"}, CategoryGoodsServices},
		{"consulting", []string{"consulting"}, CategoryGoodsServices},
		{"works wins over goods", []string{"goods", "works"}, CategoryWorks},
		{"unknown tags", []string{"software"}, CategoryOther},
		{"no tags", nil, CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.tags))
		})
	}
}

func TestEvaluate_GoodsAboveThreshold(t *testing.T) {
	e := New(DefaultConfig())

	got := e.Evaluate(d("3500000"), []string{"goods"}, "JMD")

	assert.True(t, got.RequiresExecutiveApproval)
	assert.True(t, got.ThresholdAmount.Equal(d("3000000")))
	assert.Equal(t, CategoryGoodsServices, got.Category)
	assert.Equal(t, "JMD", got.Currency)
	assert.Contains(t, got.Reason, "meets or exceeds")
}

func TestEvaluate_InclusiveBoundary(t *testing.T) {
	e := New(DefaultConfig())

	tests := []struct {
		name  string
		value string
		tags  []string
		want  bool
	}{
		{"goods at threshold", "3000000", []string{"goods"}, true},
		{"goods one cent below", "2999999.99", []string{"goods"}, false},
		{"works at threshold", "5000000", []string{"works"}, true},
		{"works one cent below", "4999999.99", []string{"works"}, false},
		{"works above goods threshold", "4000000", []string{"construction"}, false},
		{"other falls back to goods threshold", "3000000", []string{"misc"}, true},
		{"other below", "2999999.99", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate(d(tt.value), tt.tags, "JMD")
			assert.Equal(t, tt.want, got.RequiresExecutiveApproval)
		})
	}
}

func TestEvaluate_OtherUsesGoodsThreshold(t *testing.T) {
	e := New(DefaultConfig())

	got := e.Evaluate(d("10"), []string{"training"}, "usd")

	assert.Equal(t, CategoryOther, got.Category)
	assert.True(t, got.ThresholdAmount.Equal(d("3000000")))
	assert.Equal(t, "USD", got.Currency)
	assert.Contains(t, got.Reason, "goods/services threshold applied")
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := New(DefaultConfig())

	first := e.Evaluate(d("1234567.89"), []string{"services"}, "JMD")
	second := e.Evaluate(d("1234567.89"), []string{"services"}, "JMD")

	assert.Equal(t, first.RequiresExecutiveApproval, second.RequiresExecutiveApproval)
	assert.True(t, first.ThresholdAmount.Equal(second.ThresholdAmount))
	assert.Equal(t, first.Category, second.Category)
	assert.Equal(t, first.Reason, second.Reason)
}

func TestEvaluate_ConcurrentUse(t *testing.T) {
	e := New(DefaultConfig())

	var wg sync.WaitGroup
	results := make([]Decision, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Evaluate(d("5000000"), []string{"works"}, "JMD")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.RequiresExecutiveApproval)
		assert.Equal(t, CategoryWorks, r.Category)
	}
}

func TestNew_FillsZeroAmounts(t *testing.T) {
	e := New(Config{Works: d("100")})

	cfg := e.Config()
	assert.True(t, cfg.Works.Equal(d("100")))
	assert.True(t, cfg.GoodsServices.Equal(d("3000000")))
	assert.Equal(t, "JMD", cfg.ReferenceCurrency)

	assert.True(t, e.Evaluate(d("100"), []string{"works"}, "").RequiresExecutiveApproval)
}
