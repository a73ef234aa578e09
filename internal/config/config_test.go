package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSeedParsesNetworksAndEndpoints(t *testing.T) {
	t.Parallel()

	const yamlBody = `
networks:
  - name: ethereum-mainnet
    chain_type: evm
    chain_id: "1"
    endpoints:
      - url: https://eth-mainnet.example.com
        rate_limit_per_sec: 10
        priority: 0
  - name: tron-mainnet
    chain_type: tron
    chain_id: "0x2b6653dc"
    endpoints: []
`
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(seed.Networks) != 2 {
		t.Fatalf("got %d networks, want 2", len(seed.Networks))
	}
	if seed.Networks[0].Name != "ethereum-mainnet" || len(seed.Networks[0].Endpoints) != 1 {
		t.Fatalf("unexpected first network: %+v", seed.Networks[0])
	}
	if seed.Networks[0].Endpoints[0].RateLimit != 10 {
		t.Fatalf("rate_limit_per_sec=%v want 10", seed.Networks[0].Endpoints[0].RateLimit)
	}
	if len(seed.Networks[1].Endpoints) != 0 {
		t.Fatalf("expected tron-mainnet to have no endpoints")
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
