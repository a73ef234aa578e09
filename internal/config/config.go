package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SeedEndpoint is one RPC endpoint entry in a seed file, consumed by
// cmd/seed-endpoints to populate app.rpc_endpoints idempotently.
type SeedEndpoint struct {
	URL       string  `yaml:"url"`
	RateLimit float64 `yaml:"rate_limit_per_sec"`
	Priority  int     `yaml:"priority"`
}

// SeedNetwork is one network entry in a seed file, with its endpoints.
type SeedNetwork struct {
	Name      string         `yaml:"name"`
	ChainType string         `yaml:"chain_type"`
	ChainID   string         `yaml:"chain_id"`
	Endpoints []SeedEndpoint `yaml:"endpoints"`
}

// Seed is the top-level shape of a seed YAML file.
type Seed struct {
	Networks []SeedNetwork `yaml:"networks"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, err
	}
	return &seed, nil
}
