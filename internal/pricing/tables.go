package pricing

import (
	"fmt"
	"sort"
)

// OtherMaterial is the row used for material codes the table does not know.
const OtherMaterial = "other"

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

type MaterialRate struct {
	BaseRate float64 `yaml:"base_rate" json:"base_rate"`
	Factor   float64 `yaml:"factor" json:"factor"`
}

// QuantityBreak covers quantities in [Min, Max] inclusive.
type QuantityBreak struct {
	Min        int     `yaml:"min" json:"min"`
	Max        int     `yaml:"max" json:"max"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
}

// LeadStep gives Days for quantities up to and including MaxQuantity.
type LeadStep struct {
	MaxQuantity int `yaml:"max_quantity"`
	Days        int `yaml:"days"`
}

type Tables struct {
	Materials          map[string]MaterialRate `yaml:"materials"`
	QuantityBreaks     []QuantityBreak         `yaml:"quantity_breaks"`
	OverflowMultiplier float64                 `yaml:"overflow_multiplier"`
	Complexity         map[Complexity]float64  `yaml:"complexity"`
	RushMultiplier     float64                 `yaml:"rush_multiplier"`
	SpreadLow          float64                 `yaml:"spread_low"`
	SpreadHigh         float64                 `yaml:"spread_high"`
	FloorLow           int64                   `yaml:"floor_low"`
	FloorHigh          int64                   `yaml:"floor_high"`
	LeadSteps          []LeadStep              `yaml:"lead_steps"`
	LeadOverflowDays   int                     `yaml:"lead_overflow_days"`
	ComplexLeadPenalty int                     `yaml:"complex_lead_penalty"`
	RushLeadDays       int                     `yaml:"rush_lead_days"`
}

func DefaultTables() Tables {
	return Tables{
		Materials: map[string]MaterialRate{
			"mild-steel":          {BaseRate: 25, Factor: 1.0},
			"stainless-steel-304": {BaseRate: 45, Factor: 1.8},
			"stainless-steel-316": {BaseRate: 55, Factor: 2.2},
			"aluminum-5052":       {BaseRate: 35, Factor: 1.4},
			"aluminum-6061":       {BaseRate: 38, Factor: 1.5},
			"galvanized-steel":    {BaseRate: 30, Factor: 1.2},
			"brass":               {BaseRate: 60, Factor: 2.5},
			"copper":              {BaseRate: 65, Factor: 2.6},
			OtherMaterial:         {BaseRate: 40, Factor: 1.6},
		},
		QuantityBreaks: []QuantityBreak{
			{Min: 1, Max: 10, Multiplier: 1.0},
			{Min: 11, Max: 50, Multiplier: 0.85},
			{Min: 51, Max: 100, Multiplier: 0.75},
			{Min: 101, Max: 250, Multiplier: 0.68},
			{Min: 251, Max: 500, Multiplier: 0.60},
			{Min: 501, Max: 1000, Multiplier: 0.55},
			{Min: 1001, Max: 5000, Multiplier: 0.50},
			{Min: 5001, Max: 10000, Multiplier: 0.45},
		},
		OverflowMultiplier: 0.40,
		Complexity: map[Complexity]float64{
			ComplexitySimple:   1.0,
			ComplexityModerate: 1.3,
			ComplexityComplex:  1.8,
		},
		RushMultiplier: 1.5,
		SpreadLow:      0.8,
		SpreadHigh:     1.2,
		FloorLow:       50,
		FloorHigh:      75,
		LeadSteps: []LeadStep{
			{MaxQuantity: 10, Days: 5},
			{MaxQuantity: 100, Days: 7},
			{MaxQuantity: 500, Days: 10},
			{MaxQuantity: 1000, Days: 14},
		},
		LeadOverflowDays:   21,
		ComplexLeadPenalty: 3,
		RushLeadDays:       1,
	}
}

// Validate checks the invariants the calculator relies on.
func (t Tables) Validate() error {
	other, ok := t.Materials[OtherMaterial]
	if !ok {
		return fmt.Errorf("materials: missing %q fallback row", OtherMaterial)
	}
	if other.BaseRate <= 0 || other.Factor <= 0 {
		return fmt.Errorf("materials: %q row must have positive rate and factor", OtherMaterial)
	}
	for code, m := range t.Materials {
		if m.BaseRate <= 0 || m.Factor <= 0 {
			return fmt.Errorf("materials: %q must have positive rate and factor", code)
		}
	}

	if len(t.QuantityBreaks) == 0 {
		return fmt.Errorf("quantity_breaks: at least one range is required")
	}
	for i, b := range t.QuantityBreaks {
		if b.Min < 1 || b.Max < b.Min {
			return fmt.Errorf("quantity_breaks[%d]: invalid range %d-%d", i, b.Min, b.Max)
		}
		if b.Multiplier <= 0 {
			return fmt.Errorf("quantity_breaks[%d]: multiplier must be positive", i)
		}
		if i == 0 {
			continue
		}
		prev := t.QuantityBreaks[i-1]
		if b.Min <= prev.Max {
			return fmt.Errorf("quantity_breaks[%d]: range %d-%d overlaps or precedes %d-%d", i, b.Min, b.Max, prev.Min, prev.Max)
		}
		if b.Multiplier >= prev.Multiplier {
			return fmt.Errorf("quantity_breaks[%d]: multiplier %v must be below %v", i, b.Multiplier, prev.Multiplier)
		}
	}
	last := t.QuantityBreaks[len(t.QuantityBreaks)-1]
	if t.OverflowMultiplier <= 0 || t.OverflowMultiplier >= last.Multiplier {
		return fmt.Errorf("overflow_multiplier %v must be positive and below %v", t.OverflowMultiplier, last.Multiplier)
	}

	for _, c := range []Complexity{ComplexitySimple, ComplexityModerate, ComplexityComplex} {
		if t.Complexity[c] <= 0 {
			return fmt.Errorf("complexity: %q factor must be positive", c)
		}
	}

	if t.RushMultiplier <= 1 {
		return fmt.Errorf("rush_multiplier %v must be greater than 1", t.RushMultiplier)
	}
	if t.SpreadLow <= 0 || t.SpreadHigh < t.SpreadLow {
		return fmt.Errorf("spread %v-%v is invalid", t.SpreadLow, t.SpreadHigh)
	}
	if t.FloorLow < 0 || t.FloorHigh < t.FloorLow {
		return fmt.Errorf("floors %d/%d are invalid", t.FloorLow, t.FloorHigh)
	}

	if !sort.SliceIsSorted(t.LeadSteps, func(i, j int) bool {
		return t.LeadSteps[i].MaxQuantity < t.LeadSteps[j].MaxQuantity
	}) {
		return fmt.Errorf("lead_steps must be sorted by max_quantity")
	}

	return nil
}

// MaterialCodes lists the known materials in alphabetical order, fallback
// row last.
func (t Tables) MaterialCodes() []string {
	codes := make([]string, 0, len(t.Materials))
	for code := range t.Materials {
		if code != OtherMaterial {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	if _, ok := t.Materials[OtherMaterial]; ok {
		codes = append(codes, OtherMaterial)
	}
	return codes
}
