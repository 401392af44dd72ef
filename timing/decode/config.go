package decode

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FuseMode selects how the fusion pass scans a decode batch.
type FuseMode uint8

const (
	// FuseAdjacent only pairs back-to-back instructions.
	FuseAdjacent FuseMode = iota
	// FuseWindow pairs an instruction with any later one in the batch, up to
	// the first destination-register conflict.
	FuseWindow
)

func (m FuseMode) String() string {
	if m == FuseWindow {
		return "window"
	}
	return "adjacent"
}

// ParseFuseMode accepts "adjacent" or "window".
func ParseFuseMode(s string) (FuseMode, error) {
	switch strings.ToLower(s) {
	case "adjacent", "back-to-back", "":
		return FuseAdjacent, nil
	case "window", "windowed":
		return FuseWindow, nil
	}
	return FuseAdjacent, fmt.Errorf("unknown fuse mode %q", s)
}

// MarshalJSON writes the mode name.
func (m FuseMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON reads the mode name.
func (m *FuseMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, err := ParseFuseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Config holds the decode parameters.
type Config struct {
	// NumToDecode is the issue width: instructions drained per cycle.
	// Default: 4.
	NumToDecode uint32 `json:"num_to_decode"`

	// FetchQueueSize is the capacity of the admission queue. Default: 10.
	FetchQueueSize uint32 `json:"fetch_queue_size"`

	// FuseInsts enables macro-op fusion. Default: false.
	FuseInsts bool `json:"fuse_insts"`

	// FuseMode selects the fusion scan. Default: adjacent.
	FuseMode FuseMode `json:"fuse_mode"`
}

// DefaultConfig returns the default decode parameters.
func DefaultConfig() Config {
	return Config{
		NumToDecode:    4,
		FetchQueueSize: 10,
		FuseInsts:      false,
		FuseMode:       FuseAdjacent,
	}
}

// Validate checks that the parameters describe a working decoder.
func (c Config) Validate() error {
	if c.NumToDecode == 0 {
		return fmt.Errorf("num_to_decode must be > 0")
	}
	if c.FetchQueueSize == 0 {
		return fmt.Errorf("fetch_queue_size must be > 0")
	}
	if c.FuseMode > FuseWindow {
		return fmt.Errorf("fuse_mode %d is not supported", c.FuseMode)
	}
	return nil
}
