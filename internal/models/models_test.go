package models

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectivePrice(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		product Product
		want    int64
	}{
		{"not on offer", Product{Price: 1000, DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(100)}, 1000},
		{"flat", Product{Price: 1000, OnOffer: true, DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(150)}, 850},
		{"flat floors at zero", Product{Price: 100, OnOffer: true, DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(150)}, 0},
		{"percentage", Product{Price: 1000, OnOffer: true, DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(20)}, 800},
		{"percentage rounds half up", Product{Price: 999, OnOffer: true, DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(50)}, 500},
		{"percentage clamped", Product{Price: 999, OnOffer: true, DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(150)}, 0},
		{"negative percentage ignored", Product{Price: 999, OnOffer: true, DiscountType: DiscountPercentage, DiscountValue: decimal.NewFromInt(-10)}, 999},
		{"expired", Product{Price: 1000, OnOffer: true, DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(100), DiscountExpiry: &past}, 1000},
		{"not yet expired", Product{Price: 1000, OnOffer: true, DiscountType: DiscountFlat, DiscountValue: decimal.NewFromInt(100), DiscountExpiry: &future}, 900},
		{"unknown type", Product{Price: 1000, OnOffer: true, DiscountType: "bogo"}, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.product.EffectivePrice(now))
		})
	}
}

func TestIsKit(t *testing.T) {
	assert.False(t, (&Product{}).IsKit())
	assert.False(t, (&Product{Contents: pq.StringArray{" "}, AssemblyInstructions: "  "}).IsKit())
	assert.True(t, (&Product{Contents: pq.StringArray{"motor", "chassis"}}).IsKit())
	assert.True(t, (&Product{AssemblyInstructions: "Step 1: attach wheels"}).IsKit())
}

func TestOrderLines(t *testing.T) {
	o := Order{CartItems: []byte(`[{"product_id":"p1","title":"Robot","unit_price":600,"quantity":2,"line_total":1200,"is_kit":true}]`)}
	lines, err := o.Lines()
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1200), lines[0].LineTotal)
	assert.True(t, lines[0].IsKit)

	o.TotalAmount = 1200
	assert.Equal(t, int64(120000), o.AmountMinor())
	assert.Equal(t, "1200", MinorToRupees(120000).String())
}
