package experiment_test

import (
	"testing"
	"time"

	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_PreservesOrder(t *testing.T) {
	a := heroExperiment()
	b := heroExperiment()
	b.ID = "cta"

	reg, err := experiment.NewRegistry([]experiment.Experiment{a, b})
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "hero", all[0].ID)
	assert.Equal(t, "cta", all[1].ID)
	assert.Equal(t, 2, reg.Len())
}

func TestNewRegistry_DefaultsStatusToInactive(t *testing.T) {
	exp := heroExperiment()
	exp.Status = ""

	reg, err := experiment.NewRegistry([]experiment.Experiment{exp})
	require.NoError(t, err)

	got, ok := reg.Get("hero")
	require.True(t, ok)
	assert.Equal(t, experiment.StatusInactive, got.Status)
}

func TestNewRegistry_Rejects(t *testing.T) {
	dupVariant := heroExperiment()
	dupVariant.Variants[1].ID = dupVariant.Variants[0].ID

	negative := heroExperiment()
	negative.Variants[0].Weight = -1

	badStatus := heroExperiment()
	badStatus.Status = "paused"

	backwards := heroExperiment()
	backwards.Start = timePtr(fixedNow)
	backwards.End = timePtr(fixedNow.Add(-time.Hour))

	noID := heroExperiment()
	noID.ID = ""

	tests := []struct {
		name string
		exps []experiment.Experiment
	}{
		{"duplicate experiment", []experiment.Experiment{heroExperiment(), heroExperiment()}},
		{"duplicate variant", []experiment.Experiment{dupVariant}},
		{"negative weight", []experiment.Experiment{negative}},
		{"unknown status", []experiment.Experiment{badStatus}},
		{"end before start", []experiment.Experiment{backwards}},
		{"missing id", []experiment.Experiment{noID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := experiment.NewRegistry(tt.exps)
			assert.Error(t, err)
		})
	}
}

func TestNewRegistry_CopiesInput(t *testing.T) {
	exps := []experiment.Experiment{heroExperiment()}
	reg, err := experiment.NewRegistry(exps)
	require.NoError(t, err)

	exps[0].Variants[0].ID = "mutated"

	got, _ := reg.Get("hero")
	assert.Equal(t, "precision", got.Variants[0].ID)
}

func TestMatchesPage(t *testing.T) {
	exp := heroExperiment()

	assert.True(t, exp.MatchesPage("/"))
	assert.True(t, exp.MatchesPage("/services/welding"))
	assert.False(t, exp.MatchesPage("/services/welding/aluminum"))
	assert.False(t, exp.MatchesPage("/about"))

	exp.Pages = nil
	assert.True(t, exp.MatchesPage("/anything"))
}
