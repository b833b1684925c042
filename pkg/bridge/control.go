package bridge

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Principal identifies a caller.
type Principal = common.Address

// Authorizer decides whether caller may run an admin operation.
type Authorizer interface {
	Authorize(caller Principal) error
}

// Control is the administrative state of one bridge instance: its owner and
// pause flag. It is not safe for concurrent use; bridges guard it with their
// own lock.
type Control struct {
	owner  Principal
	paused bool
}

func NewControl(owner Principal) (*Control, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner", ErrZeroAddress)
	}
	return &Control{owner: owner}, nil
}

// Authorize admits only the owner.
func (c *Control) Authorize(caller Principal) error {
	if caller != c.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller.Hex())
	}
	return nil
}

func (c *Control) Owner() Principal { return c.owner }

func (c *Control) Paused() bool { return c.paused }

// SetPaused sets the pause flag. Setting it to its current value succeeds.
func (c *Control) SetPaused(caller Principal, paused bool) error {
	if err := c.Authorize(caller); err != nil {
		return err
	}
	c.paused = paused
	return nil
}

func (c *Control) TransferOwnership(caller, newOwner Principal) error {
	if err := c.Authorize(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: new owner", ErrZeroAddress)
	}
	c.owner = newOwner
	return nil
}

// whenNotPaused gates value-moving operations.
func (c *Control) whenNotPaused() error {
	if c.paused {
		return ErrPaused
	}
	return nil
}
