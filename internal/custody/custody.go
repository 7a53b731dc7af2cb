// Package custody moves a fungible asset between identities and escrow
// accounts on top of a ledger unit of work.
//
// Locked funds are represented by a Locked handle bound to an escrow account.
// Extracting from the handle yields Funds that must be credited to an identity
// before the unit of work commits; the ledger posting happens on Credit.
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/paystream/internal/ledger"
)

var (
	// ErrInsufficientBalance is returned when an identity cannot cover a debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientEscrow is returned when an extraction exceeds what a lock still holds.
	ErrInsufficientEscrow = errors.New("insufficient escrow")

	// ErrNegativeAmount is returned for negative debits or extractions.
	ErrNegativeAmount = errors.New("amount must not be negative")
)

// WalletAccount is the ledger account holding an identity's spendable balance of asset.
func WalletAccount(identity, asset string) string {
	return fmt.Sprintf("wallet:%s:%s", identity, asset)
}

// EscrowAccount is the ledger account holding the funds locked by owner's stream of asset.
func EscrowAccount(owner, asset string) string {
	return fmt.Sprintf("escrow:%s:%s", owner, asset)
}

// SuspenseAccount parks card funding for asset until settlement.
func SuspenseAccount(asset string) string {
	return fmt.Sprintf("suspense:card:%s", asset)
}

// Locked is a handle on funds held in an escrow account.
type Locked struct {
	account   string
	asset     string
	remaining int64
}

// Resume rebuilds a handle for funds that were locked by an earlier unit of work.
func Resume(account, asset string, remaining int64) *Locked {
	return &Locked{account: account, asset: asset, remaining: remaining}
}

// Account returns the escrow account code backing the handle.
func (l *Locked) Account() string { return l.account }

// Remaining returns the amount still held.
func (l *Locked) Remaining() int64 { return l.remaining }

// Funds is value taken out of a lock and not yet credited to anyone.
type Funds struct {
	Asset  string
	Amount int64
	source string
}

// Custodian exposes the asset primitives a stream needs for one asset within a
// single ledger transaction.
type Custodian struct {
	tx    ledger.Tx
	asset string
	kinds Kinds
}

// Kinds names the ledger transactions posted by the custodian.
type Kinds struct {
	Debit  string
	Credit string
}

// New binds a custodian for asset to the unit of work tx.
func New(tx ledger.Tx, asset string, kinds Kinds) *Custodian {
	return &Custodian{tx: tx, asset: asset, kinds: kinds}
}

// Balance reports identity's spendable balance.
func (c *Custodian) Balance(ctx context.Context, identity string) (int64, error) {
	return c.tx.Balance(ctx, WalletAccount(identity, c.asset))
}

// Debit moves amount from identity's wallet into the escrow account and
// returns a handle on the locked funds.
func (c *Custodian) Debit(ctx context.Context, identity, escrowAccount string, amount int64) (*Locked, error) {
	if amount < 0 {
		return nil, ErrNegativeAmount
	}
	lock := &Locked{account: escrowAccount, asset: c.asset}
	if amount == 0 {
		return lock, nil
	}
	_, err := c.tx.Post(ctx, ledger.Posting{
		From:   WalletAccount(identity, c.asset),
		To:     escrowAccount,
		Kind:   c.kinds.Debit,
		Amount: amount,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("debit %s: %w", identity, err)
	}
	lock.remaining = amount
	return lock, nil
}

// Extract takes amount out of the lock.
func (c *Custodian) Extract(_ context.Context, lock *Locked, amount int64) (Funds, error) {
	if amount < 0 {
		return Funds{}, ErrNegativeAmount
	}
	if amount > lock.remaining {
		return Funds{}, fmt.Errorf("extract %d of %d: %w", amount, lock.remaining, ErrInsufficientEscrow)
	}
	lock.remaining -= amount
	return Funds{Asset: lock.asset, Amount: amount, source: lock.account}, nil
}

// ExtractAll empties the lock.
func (c *Custodian) ExtractAll(_ context.Context, lock *Locked) Funds {
	f := Funds{Asset: lock.asset, Amount: lock.remaining, source: lock.account}
	lock.remaining = 0
	return f
}

// Credit posts funds to identity's wallet. Crediting zero is a no-op.
func (c *Custodian) Credit(ctx context.Context, identity string, f Funds) error {
	if f.Amount == 0 {
		return nil
	}
	if f.Asset != c.asset {
		return fmt.Errorf("credit %s funds through %s custodian", f.Asset, c.asset)
	}
	_, err := c.tx.Post(ctx, ledger.Posting{
		From:   f.source,
		To:     WalletAccount(identity, c.asset),
		Kind:   c.kinds.Credit,
		Amount: f.Amount,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return ErrInsufficientEscrow
		}
		return fmt.Errorf("credit %s: %w", identity, err)
	}
	return nil
}
