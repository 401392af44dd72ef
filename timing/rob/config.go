package rob

import "fmt"

// Config holds the retirement parameters.
type Config struct {
	// NumToRetire is the per-cycle retire limit. Default: 2.
	NumToRetire uint32 `json:"num_to_retire"`

	// NumInstsToRetire stops the simulation once this many instructions have
	// retired. Zero means no limit. Default: 0.
	NumInstsToRetire uint64 `json:"num_insts_to_retire"`

	// RetireHeartbeat is the number of retired instructions between
	// statistics snapshots. Zero disables snapshots. Default: 1000000.
	RetireHeartbeat uint64 `json:"retire_heartbeat"`

	// RetireTimeoutInterval is the number of cycles without a retirement
	// after which the pipeline is declared stalled. Zero disables the
	// watchdog. Default: 1000.
	RetireTimeoutInterval uint64 `json:"retire_timeout_interval"`

	// RetireQueueDepth is the reorder buffer capacity. Default: 30.
	RetireQueueDepth uint32 `json:"retire_queue_depth"`
}

// DefaultConfig returns the default retirement parameters.
func DefaultConfig() Config {
	return Config{
		NumToRetire:           2,
		NumInstsToRetire:      0,
		RetireHeartbeat:       1000000,
		RetireTimeoutInterval: 1000,
		RetireQueueDepth:      30,
	}
}

// Validate checks that the parameters describe a working reorder buffer.
func (c Config) Validate() error {
	if c.NumToRetire == 0 {
		return fmt.Errorf("num_to_retire must be > 0")
	}
	if c.RetireQueueDepth == 0 {
		return fmt.Errorf("retire_queue_depth must be > 0")
	}
	return nil
}
