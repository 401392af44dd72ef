package core

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"

	"github.com/sarchlab/oocore/timing/decode"
	"github.com/sarchlab/oocore/timing/latency"
	"github.com/sarchlab/oocore/timing/rob"
)

// Config aggregates the parameters of every unit of the core.
type Config struct {
	// FetchWidth is the number of instructions fetch sends per cycle.
	// Default: 4.
	FetchWidth uint32 `json:"fetch_width"`

	// DispatchWidth is the number of instructions dispatch moves into the
	// reorder buffer per cycle. Default: 4.
	DispatchWidth uint32 `json:"dispatch_width"`

	// UopQueueSize is the capacity of the queue between decode and
	// dispatch. Default: 8.
	UopQueueSize uint32 `json:"uop_queue_size"`

	// PortLatency is the delivery latency of every unit-to-unit port.
	// Flushes rely on it being 0 or 1. Default: 1.
	PortLatency uint64 `json:"port_latency"`

	Decode decode.Config          `json:"decode"`
	ROB    rob.Config             `json:"rob"`
	Timing *latency.TimingConfig `json:"timing"`
}

// DefaultConfig returns the default core parameters.
func DefaultConfig() *Config {
	return &Config{
		FetchWidth:    4,
		DispatchWidth: 4,
		UopQueueSize:  8,
		PortLatency:   1,
		Decode:        decode.DefaultConfig(),
		ROB:           rob.DefaultConfig(),
		Timing:        latency.DefaultTimingConfig(),
	}
}

// LoadConfig loads a Config from a JSON file. Missing fields keep their
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read core config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse core config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize core config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write core config file: %w", err)
	}

	return nil
}

// Validate checks the core parameters and those of every unit.
func (c *Config) Validate() error {
	if c.FetchWidth == 0 {
		return fmt.Errorf("fetch_width must be > 0")
	}
	if c.DispatchWidth == 0 {
		return fmt.Errorf("dispatch_width must be > 0")
	}
	if c.UopQueueSize == 0 {
		return fmt.Errorf("uop_queue_size must be > 0")
	}
	if c.PortLatency > 1 {
		return fmt.Errorf("port_latency must be 0 or 1, got %d", c.PortLatency)
	}
	if err := c.Decode.Validate(); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := c.ROB.Validate(); err != nil {
		return fmt.Errorf("rob: %w", err)
	}
	if c.Timing == nil {
		return fmt.Errorf("timing config is missing")
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Timing != nil {
		clone.Timing = c.Timing.Clone()
	}
	return &clone
}

// Environment variables read by ApplyEnv.
const (
	EnvFetchWidth            = "OOCORE_FETCH_WIDTH"
	EnvNumToDecode           = "OOCORE_NUM_TO_DECODE"
	EnvFetchQueueSize        = "OOCORE_FETCH_QUEUE_SIZE"
	EnvFuseInsts             = "OOCORE_FUSE_INSTS"
	EnvFuseMode              = "OOCORE_FUSE_MODE"
	EnvNumToRetire           = "OOCORE_NUM_TO_RETIRE"
	EnvNumInstsToRetire      = "OOCORE_NUM_INSTS_TO_RETIRE"
	EnvRetireHeartbeat       = "OOCORE_RETIRE_HEARTBEAT"
	EnvRetireTimeoutInterval = "OOCORE_RETIRE_TIMEOUT_INTERVAL"
	EnvRetireQueueDepth      = "OOCORE_RETIRE_QUEUE_DEPTH"
)

// ApplyEnv overrides parameters from OOCORE_* environment variables.
// Unset variables leave the parameter alone.
func (c *Config) ApplyEnv() error {
	u32 := []struct {
		name  string
		field *uint32
	}{
		{EnvFetchWidth, &c.FetchWidth},
		{EnvNumToDecode, &c.Decode.NumToDecode},
		{EnvFetchQueueSize, &c.Decode.FetchQueueSize},
		{EnvNumToRetire, &c.ROB.NumToRetire},
		{EnvRetireQueueDepth, &c.ROB.RetireQueueDepth},
	}
	for _, v := range u32 {
		if !env.Has(v.name) {
			continue
		}
		n := env.Int(v.name, -1)
		if n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", v.name, env.Str(v.name))
		}
		*v.field = uint32(n)
	}

	u64 := []struct {
		name  string
		field *uint64
	}{
		{EnvNumInstsToRetire, &c.ROB.NumInstsToRetire},
		{EnvRetireHeartbeat, &c.ROB.RetireHeartbeat},
		{EnvRetireTimeoutInterval, &c.ROB.RetireTimeoutInterval},
	}
	for _, v := range u64 {
		if !env.Has(v.name) {
			continue
		}
		n := env.Int64(v.name, -1)
		if n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", v.name, env.Str(v.name))
		}
		*v.field = uint64(n)
	}

	if env.Has(EnvFuseInsts) {
		c.Decode.FuseInsts = env.Bool(EnvFuseInsts)
	}

	if env.Has(EnvFuseMode) {
		mode, err := decode.ParseFuseMode(env.Str(EnvFuseMode))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFuseMode, err)
		}
		c.Decode.FuseMode = mode
	}

	return nil
}
