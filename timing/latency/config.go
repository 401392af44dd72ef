package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds the execution latency of each unit class.
type TimingConfig struct {
	// ALULatency covers integer arithmetic, logic and shifts.
	// Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// MultiplyLatency is the integer multiply latency. Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency"`

	// DivideLatency is the integer divide latency. Default: 12 cycles.
	DivideLatency uint64 `json:"divide_latency"`

	// BranchLatency is the resolution latency of branches and jumps.
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// LoadLatency assumes a first-level cache hit. Default: 4 cycles.
	LoadLatency uint64 `json:"load_latency"`

	// StoreLatency is the time to hand a store to the store queue.
	// Default: 1 cycle.
	StoreLatency uint64 `json:"store_latency"`

	// RedirectLatency is the latency of instructions that redirect fetch at
	// retirement, such as fence.i. Default: 1 cycle.
	RedirectLatency uint64 `json:"redirect_latency"`

	// RedirectPenalty is the number of cycles fetch stays idle after a
	// redirect before it sends the first instruction of the new path.
	// Default: 2 cycles.
	RedirectPenalty uint64 `json:"redirect_penalty"`
}

// DefaultTimingConfig returns the default latencies.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:      1,
		MultiplyLatency: 3,
		DivideLatency:   12,
		BranchLatency:   1,
		LoadLatency:     4,
		StoreLatency:    1,
		RedirectLatency: 1,
		RedirectPenalty: 2,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Missing fields keep
// their defaults.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that every execution latency is at least one cycle.
func (c *TimingConfig) Validate() error {
	checks := []struct {
		name  string
		value uint64
	}{
		{"alu_latency", c.ALULatency},
		{"multiply_latency", c.MultiplyLatency},
		{"divide_latency", c.DivideLatency},
		{"branch_latency", c.BranchLatency},
		{"load_latency", c.LoadLatency},
		{"store_latency", c.StoreLatency},
		{"redirect_latency", c.RedirectLatency},
	}

	for _, chk := range checks {
		if chk.value == 0 {
			return fmt.Errorf("%s must be > 0", chk.name)
		}
	}

	return nil
}

// Clone returns a copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
