package pricing_test

import (
	"testing"

	"github.com/forgeline/forgeline/internal/pricing"
	"github.com/stretchr/testify/assert"
)

func TestDefaultTables_Valid(t *testing.T) {
	assert.NoError(t, pricing.DefaultTables().Validate())
}

func TestTablesValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pricing.Tables)
	}{
		{"missing fallback", func(tb *pricing.Tables) { delete(tb.Materials, pricing.OtherMaterial) }},
		{"zero rate", func(tb *pricing.Tables) { tb.Materials["brass"] = pricing.MaterialRate{BaseRate: 0, Factor: 1} }},
		{"no breaks", func(tb *pricing.Tables) { tb.QuantityBreaks = nil }},
		{"overlap", func(tb *pricing.Tables) { tb.QuantityBreaks[1].Min = 10 }},
		{"increasing multiplier", func(tb *pricing.Tables) { tb.QuantityBreaks[2].Multiplier = 0.9 }},
		{"overflow too high", func(tb *pricing.Tables) { tb.OverflowMultiplier = 0.45 }},
		{"missing complexity", func(tb *pricing.Tables) { delete(tb.Complexity, pricing.ComplexityModerate) }},
		{"rush not above one", func(tb *pricing.Tables) { tb.RushMultiplier = 1 }},
		{"inverted floors", func(tb *pricing.Tables) { tb.FloorLow = 100 }},
		{"unsorted lead steps", func(tb *pricing.Tables) {
			tb.LeadSteps[0], tb.LeadSteps[1] = tb.LeadSteps[1], tb.LeadSteps[0]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := pricing.DefaultTables()
			tt.mutate(&tables)
			assert.Error(t, tables.Validate())
		})
	}
}

func TestMaterialCodes(t *testing.T) {
	codes := pricing.DefaultTables().MaterialCodes()

	assert.Len(t, codes, 9)
	assert.Equal(t, "aluminum-5052", codes[0])
	assert.Equal(t, pricing.OtherMaterial, codes[len(codes)-1])
}
