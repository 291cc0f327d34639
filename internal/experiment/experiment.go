package experiment

import (
	"path"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusComplete Status = "complete"
)

// ControlVariant is returned whenever no experiment is running for a name.
const ControlVariant = "control"

type Experiment struct {
	ID       string     `yaml:"id"`
	Status   Status     `yaml:"status"`
	Start    *time.Time `yaml:"start,omitempty"`
	End      *time.Time `yaml:"end,omitempty"`
	Pages    []string   `yaml:"pages,omitempty"` // path.Match patterns
	Variants []Variant  `yaml:"variants"`
}

type Variant struct {
	ID      string  `yaml:"id"`
	Weight  float64 `yaml:"weight"`
	Content string  `yaml:"content"`
}

type Assignment struct {
	ExperimentID string `json:"experiment_id"`
	VariantID    string `json:"variant_id"`
	Content      string `json:"content,omitempty"`
	Control      bool   `json:"control"`
}

type ConversionEvent struct {
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}

// Running reports whether the experiment can hand out variants at now.
func (e *Experiment) Running(now time.Time) bool {
	if e.Status != StatusActive || len(e.Variants) == 0 {
		return false
	}
	if e.Start != nil && e.Start.After(now) {
		return false
	}
	if e.End != nil && now.After(*e.End) {
		return false
	}
	return true
}

// MatchesPage reports whether page falls under one of the experiment's
// patterns. An experiment without patterns runs on every page.
func (e *Experiment) MatchesPage(page string) bool {
	if len(e.Pages) == 0 {
		return true
	}
	for _, pattern := range e.Pages {
		if ok, err := path.Match(pattern, page); err == nil && ok {
			return true
		}
	}
	return false
}

func (e *Experiment) Variant(id string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// TotalWeight sums the variant weights.
func (e *Experiment) TotalWeight() float64 {
	total := 0.0
	for _, v := range e.Variants {
		total += v.Weight
	}
	return total
}

func controlAssignment(experimentID string) Assignment {
	return Assignment{
		ExperimentID: experimentID,
		VariantID:    ControlVariant,
		Control:      true,
	}
}
