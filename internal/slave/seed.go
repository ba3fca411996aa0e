package slave

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"uptimefleet/internal/domain"
)

type seedFile struct {
	Services []domain.ServiceConfig `yaml:"services"`
}

// LoadSeed reads a YAML service list registered at slave boot. Invalid
// entries are returned alongside the valid ones so the caller can log and
// skip them rather than refuse to start.
func LoadSeed(path string) (valid []domain.ServiceConfig, rejected []error, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read services file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse services file: %w", err)
	}

	for _, cfg := range f.Services {
		if verr := domain.Validate(cfg); verr != nil {
			rejected = append(rejected, fmt.Errorf("service %q: %w", cfg.ID, verr))
			continue
		}
		valid = append(valid, cfg)
	}
	return valid, rejected, nil
}
