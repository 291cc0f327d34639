package pricing

import "math"

type Input struct {
	Material        string `json:"material"`
	Quantity        int    `json:"quantity"`
	Rush            bool   `json:"rush"`
	FileCount       int    `json:"file_count"`
	HasComplexFiles bool   `json:"has_complex_files"`
}

type Result struct {
	LowPrice    int64 `json:"low_price"`
	HighPrice   int64 `json:"high_price"`
	EstLeadDays int   `json:"est_lead_days"`

	Breakdown Breakdown `json:"breakdown"`
}

// Breakdown exposes the intermediate factors behind a Result.
type Breakdown struct {
	Material           string     `json:"material"`
	BaseRate           float64    `json:"base_rate"`
	MaterialFactor     float64    `json:"material_factor"`
	QuantityMultiplier float64    `json:"quantity_multiplier"`
	Complexity         Complexity `json:"complexity"`
	ComplexityFactor   float64    `json:"complexity_factor"`
	RushMultiplier     float64    `json:"rush_multiplier"`
	BasePrice          float64    `json:"base_price"`
}

type Calculator struct {
	tables Tables
}

func NewCalculator(tables Tables) *Calculator {
	return &Calculator{tables: tables}
}

func (c *Calculator) Tables() Tables {
	return c.tables
}

// Calculate prices a request. It has no error path: unknown materials use
// the fallback row and quantities past the table use the overflow multiplier.
func (c *Calculator) Calculate(in Input) Result {
	material, rate := c.material(in.Material)
	qtyMult := c.QuantityMultiplier(in.Quantity)
	complexity := ComplexityFor(in.FileCount, in.HasComplexFiles)
	complexityFactor := c.tables.Complexity[complexity]

	base := rate.BaseRate * rate.Factor * float64(in.Quantity) * qtyMult * complexityFactor

	rush := 1.0
	if in.Rush {
		rush = c.tables.RushMultiplier
	}

	low := int64(math.Round(base * c.tables.SpreadLow * rush))
	high := int64(math.Round(base * c.tables.SpreadHigh * rush))
	if low < c.tables.FloorLow {
		low = c.tables.FloorLow
	}
	if high < c.tables.FloorHigh {
		high = c.tables.FloorHigh
	}

	return Result{
		LowPrice:    low,
		HighPrice:   high,
		EstLeadDays: c.LeadDays(in.Quantity, in.Rush, in.HasComplexFiles),
		Breakdown: Breakdown{
			Material:           material,
			BaseRate:           rate.BaseRate,
			MaterialFactor:     rate.Factor,
			QuantityMultiplier: qtyMult,
			Complexity:         complexity,
			ComplexityFactor:   complexityFactor,
			RushMultiplier:     rush,
			BasePrice:          base,
		},
	}
}

func (c *Calculator) material(code string) (string, MaterialRate) {
	if rate, ok := c.tables.Materials[code]; ok {
		return code, rate
	}
	return OtherMaterial, c.tables.Materials[OtherMaterial]
}

// QuantityMultiplier returns the volume discount for quantity.
func (c *Calculator) QuantityMultiplier(quantity int) float64 {
	breaks := c.tables.QuantityBreaks
	if len(breaks) == 0 {
		return 1
	}
	if quantity < breaks[0].Min {
		return breaks[0].Multiplier
	}
	for _, b := range breaks {
		if quantity >= b.Min && quantity <= b.Max {
			return b.Multiplier
		}
	}
	return c.tables.OverflowMultiplier
}

// LeadDays estimates business days until the order ships.
func (c *Calculator) LeadDays(quantity int, rush, complexFiles bool) int {
	if rush {
		return max(c.tables.RushLeadDays, 1)
	}

	days := c.tables.LeadOverflowDays
	for _, step := range c.tables.LeadSteps {
		if quantity <= step.MaxQuantity {
			days = step.Days
			break
		}
	}
	if complexFiles {
		days += c.tables.ComplexLeadPenalty
	}
	return max(days, 1)
}

// ComplexityFor maps uploaded files onto the three complexity tiers.
func ComplexityFor(fileCount int, hasComplexFiles bool) Complexity {
	switch {
	case hasComplexFiles:
		return ComplexityComplex
	case fileCount > 0:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}
