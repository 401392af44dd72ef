package port

import (
	"errors"
	"fmt"
)

// ErrCreditOverdraw is returned when a producer spends more credits than it
// holds.
var ErrCreditOverdraw = errors.New("credit overdraw")

// Credits tracks the free capacity a producer knows its consumer has.
type Credits struct {
	name      string
	available uint32
}

// NewCredits creates an empty credit counter.
func NewCredits(name string) *Credits {
	return &Credits{name: name}
}

// Available returns the credits currently held.
func (c *Credits) Available() uint32 {
	return c.available
}

// Add replenishes n credits.
func (c *Credits) Add(n uint32) {
	c.available += n
}

// Consume spends n credits.
func (c *Credits) Consume(n uint32) error {
	if n > c.available {
		return fmt.Errorf("%w: %s spends %d, holds %d", ErrCreditOverdraw, c.name, n, c.available)
	}
	c.available -= n
	return nil
}

// Reset drops all held credits.
func (c *Credits) Reset() {
	c.available = 0
}
