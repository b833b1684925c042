// Package token provides the fungible token ledgers the bridges move value
// through: an ERC-20 style Ledger with a single privileged bridge role, and an
// OFT that burns on send and mints on receive through a LayerZero endpoint.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrZeroAddress           = errors.New("zero address")
	ErrZeroAmount            = errors.New("amount must be greater than zero")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotAuthorized         = errors.New("caller is not authorized")
	ErrBridgeAlreadySet      = errors.New("bridge already set")
	ErrSupplyOverflow        = errors.New("total supply overflow")
)

// Ledger is an ERC-20 style balance sheet. The owner may mint to itself; the
// bridge account, once set, may mint to anyone and burn with allowance.
type Ledger struct {
	name     string
	symbol   string
	decimals uint8
	owner    common.Address

	mu          sync.Mutex
	bridge      common.Address
	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

func NewLedger(name, symbol string, decimals uint8, owner common.Address) (*Ledger, error) {
	if owner == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	return &Ledger{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		owner:       owner,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}, nil
}

func (l *Ledger) Name() string { return l.name }

func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) Decimals() uint8 { return l.decimals }

func (l *Ledger) Owner() common.Address { return l.owner }

func (l *Ledger) Bridge() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bridge
}

// SetBridge assigns the bridge role. Only the owner may call it, only once.
func (l *Ledger) SetBridge(caller, bridge common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return fmt.Errorf("%w: %s is not the owner", ErrNotAuthorized, caller.Hex())
	}
	if bridge == (common.Address{}) {
		return ErrZeroAddress
	}
	if l.bridge != (common.Address{}) {
		return ErrBridgeAlreadySet
	}
	l.bridge = bridge
	return nil
}

func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSupply.Clone()
}

func (l *Ledger) BalanceOf(account common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceOf(account).Clone()
}

func (l *Ledger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowance(owner, spender).Clone()
}

func (l *Ledger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = spenders
	}
	spenders[spender] = amountOrZero(amount).Clone()
	return nil
}

func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amountOrZero(amount))
}

// TransferFrom moves amount from from to to, spending the allowance granted to
// spender. A spender moving its own funds needs no allowance.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount = amountOrZero(amount)
	if err := l.checkAllowance(spender, from, amount); err != nil {
		return err
	}
	if err := l.transfer(from, to, amount); err != nil {
		return err
	}
	l.spendAllowance(spender, from, amount)
	return nil
}

// ReverseTransferFrom undoes a TransferFrom: amount goes back from to to from
// and the allowance spender used is restored.
func (l *Ledger) ReverseTransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount = amountOrZero(amount)
	if err := l.transfer(to, from, amount); err != nil {
		return err
	}
	if spender != from {
		if l.allowances[from] == nil {
			l.allowances[from] = make(map[common.Address]*uint256.Int)
		}
		// cannot overflow: the allowance held at least amount before it was spent
		l.allowances[from][spender] = new(uint256.Int).Add(l.allowance(from, spender), amount)
	}
	return nil
}

// Mint creates amount for to. The bridge may mint to anyone, the owner only to itself.
func (l *Ledger) Mint(caller, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	isBridge := l.bridge != (common.Address{}) && caller == l.bridge
	if !isBridge && !(caller == l.owner && to == l.owner) {
		return fmt.Errorf("%w: %s may not mint to %s", ErrNotAuthorized, caller.Hex(), to.Hex())
	}
	return l.mint(to, amountOrZero(amount))
}

// Burn destroys amount of the caller's own balance.
func (l *Ledger) Burn(caller common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burn(caller, amountOrZero(amount))
}

// BurnFrom destroys amount of from's balance, spending the allowance granted to spender.
func (l *Ledger) BurnFrom(spender, from common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount = amountOrZero(amount)
	if err := l.checkAllowance(spender, from, amount); err != nil {
		return err
	}
	if err := l.burn(from, amount); err != nil {
		return err
	}
	l.spendAllowance(spender, from, amount)
	return nil
}

func (l *Ledger) balanceOf(account common.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (l *Ledger) allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := l.allowances[owner][spender]; ok {
		return a
	}
	return new(uint256.Int)
}

func (l *Ledger) checkAllowance(spender, from common.Address, amount *uint256.Int) error {
	if spender == from {
		return nil
	}
	if l.allowance(from, spender).Lt(amount) {
		return fmt.Errorf("%w: %s for %s", ErrInsufficientAllowance, spender.Hex(), from.Hex())
	}
	return nil
}

func (l *Ledger) spendAllowance(spender, from common.Address, amount *uint256.Int) {
	if spender == from {
		return
	}
	current := l.allowance(from, spender)
	l.allowances[from][spender] = new(uint256.Int).Sub(current, amount)
}

func (l *Ledger) transfer(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal := l.balanceOf(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal.Dec(), amount.Dec())
	}
	l.balances[from] = new(uint256.Int).Sub(fromBal, amount)
	// cannot overflow: the sum of all balances is the total supply
	l.balances[to] = new(uint256.Int).Add(l.balanceOf(to), amount)
	return nil
}

func (l *Ledger) mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	supply, overflow := new(uint256.Int).AddOverflow(l.totalSupply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	l.totalSupply = supply
	l.balances[to] = new(uint256.Int).Add(l.balanceOf(to), amount)
	return nil
}

func (l *Ledger) burn(from common.Address, amount *uint256.Int) error {
	bal := l.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal.Dec(), amount.Dec())
	}
	l.balances[from] = new(uint256.Int).Sub(bal, amount)
	l.totalSupply = new(uint256.Int).Sub(l.totalSupply, amount)
	return nil
}

func amountOrZero(amount *uint256.Int) *uint256.Int {
	if amount == nil {
		return new(uint256.Int)
	}
	return amount
}
