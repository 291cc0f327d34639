package cli

import (
	"fmt"
	"path/filepath"

	"github.com/forgeline/forgeline/internal/config"
	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/forgeline/forgeline/internal/pricing"
	"github.com/forgeline/forgeline/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func loadRegistry() (*experiment.Registry, error) {
	return config.LoadExperiments(settings.Paths.Experiments)
}

func loadCalculator() (*pricing.Calculator, error) {
	tables, err := config.LoadPricing(settings.Paths.Pricing)
	if err != nil {
		return nil, err
	}
	return pricing.NewCalculator(tables), nil
}

// getTokenFilePath returns the path to the token file
func getTokenFilePath() string {
	if settings.Server.TokenFile != "" {
		return settings.Server.TokenFile
	}
	// Store token file alongside the database
	return filepath.Join(filepath.Dir(dbPath), ".forgeline-token")
}
