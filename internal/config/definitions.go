package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/forgeline/forgeline/internal/pricing"
)

//go:embed defaults/*.yaml
var defaults embed.FS

type experimentsFile struct {
	Experiments []experiment.Experiment `yaml:"experiments"`
}

// LoadExperiments builds a registry from the YAML file at path, or from the
// built-in experiments when path is empty.
func LoadExperiments(path string) (*experiment.Registry, error) {
	data, err := readDefinition(path, "defaults/experiments.yaml")
	if err != nil {
		return nil, err
	}

	var file experimentsFile
	if err := decodeStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode experiments: %w", err)
	}

	registry, err := experiment.NewRegistry(file.Experiments)
	if err != nil {
		return nil, fmt.Errorf("invalid experiments: %w", err)
	}
	return registry, nil
}

// LoadPricing reads pricing tables from the YAML file at path, or the
// built-in tables when path is empty. Keys a file leaves out keep their
// default values.
func LoadPricing(path string) (pricing.Tables, error) {
	data, err := readDefinition(path, "defaults/pricing.yaml")
	if err != nil {
		return pricing.Tables{}, err
	}

	tables := pricing.DefaultTables()
	if err := decodeStrict(data, &tables); err != nil {
		return pricing.Tables{}, fmt.Errorf("failed to decode pricing: %w", err)
	}
	if err := tables.Validate(); err != nil {
		return pricing.Tables{}, fmt.Errorf("invalid pricing: %w", err)
	}
	return tables, nil
}

func readDefinition(path, builtin string) ([]byte, error) {
	if path == "" {
		data, err := defaults.ReadFile(builtin)
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in %s: %w", builtin, err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
