package experiment

import (
	"fmt"
	"time"
)

// Registry is the read-only set of configured experiments, kept in the
// order they were declared.
type Registry struct {
	byID  map[string]*Experiment
	order []*Experiment
}

func NewRegistry(experiments []Experiment) (*Registry, error) {
	r := &Registry{byID: make(map[string]*Experiment, len(experiments))}

	for i := range experiments {
		exp := experiments[i]
		if err := validate(&exp); err != nil {
			return nil, err
		}
		if _, dup := r.byID[exp.ID]; dup {
			return nil, fmt.Errorf("duplicate experiment id %q", exp.ID)
		}
		exp.Variants = append([]Variant(nil), exp.Variants...)
		exp.Pages = append([]string(nil), exp.Pages...)
		r.byID[exp.ID] = &exp
		r.order = append(r.order, &exp)
	}

	return r, nil
}

func validate(exp *Experiment) error {
	if exp.ID == "" {
		return fmt.Errorf("experiment id is required")
	}

	switch exp.Status {
	case StatusActive, StatusInactive, StatusComplete:
	case "":
		exp.Status = StatusInactive
	default:
		return fmt.Errorf("experiment %q: unknown status %q", exp.ID, exp.Status)
	}

	if exp.Start != nil && exp.End != nil && exp.End.Before(*exp.Start) {
		return fmt.Errorf("experiment %q: end %s is before start %s",
			exp.ID, exp.End.Format(time.RFC3339), exp.Start.Format(time.RFC3339))
	}

	seen := make(map[string]bool, len(exp.Variants))
	for _, v := range exp.Variants {
		if v.ID == "" {
			return fmt.Errorf("experiment %q: variant id is required", exp.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("experiment %q: duplicate variant id %q", exp.ID, v.ID)
		}
		if v.Weight < 0 {
			return fmt.Errorf("experiment %q: variant %q has negative weight %v", exp.ID, v.ID, v.Weight)
		}
		seen[v.ID] = true
	}

	return nil
}

// Get returns the experiment with the given id regardless of its status.
func (r *Registry) Get(id string) (*Experiment, bool) {
	exp, ok := r.byID[id]
	return exp, ok
}

func (r *Registry) All() []*Experiment {
	return append([]*Experiment(nil), r.order...)
}

func (r *Registry) Len() int {
	return len(r.order)
}
