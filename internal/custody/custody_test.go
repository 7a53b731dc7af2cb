package custody

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/paystream/internal/ledger"
)

var testKinds = Kinds{Debit: "lock", Credit: "release"}

func setup(t *testing.T) ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewInMemory()
	for _, code := range []string{WalletAccount("alice", "XAF"), WalletAccount("bob", "XAF"), EscrowAccount("alice", "XAF")} {
		require.NoError(t, l.EnsureAccount(ctx, code))
	}
	ledger.SeedBalance(l, WalletAccount("alice", "XAF"), 1_000)
	return l
}

func TestDebitExtractCredit(t *testing.T) {
	ctx := context.Background()
	l := setup(t)

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		c := New(tx, "XAF", testKinds)
		lock, err := c.Debit(ctx, "alice", EscrowAccount("alice", "XAF"), 600)
		require.NoError(t, err)
		require.Equal(t, int64(600), lock.Remaining())

		bal, err := c.Balance(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, int64(400), bal)

		funds, err := c.Extract(ctx, lock, 250)
		require.NoError(t, err)
		require.Equal(t, int64(350), lock.Remaining())
		require.NoError(t, c.Credit(ctx, "bob", funds))

		rest := c.ExtractAll(ctx, lock)
		require.Equal(t, int64(350), rest.Amount)
		require.Zero(t, lock.Remaining())
		return c.Credit(ctx, "alice", rest)
	})
	require.NoError(t, err)

	alice, _ := l.Balance(ctx, WalletAccount("alice", "XAF"))
	bob, _ := l.Balance(ctx, WalletAccount("bob", "XAF"))
	escrow, _ := l.Balance(ctx, EscrowAccount("alice", "XAF"))
	require.Equal(t, int64(750), alice)
	require.Equal(t, int64(250), bob)
	require.Zero(t, escrow)
}

func TestDebitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := setup(t)

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		_, err := New(tx, "XAF", testKinds).Debit(ctx, "alice", EscrowAccount("alice", "XAF"), 1_001)
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	alice, _ := l.Balance(ctx, WalletAccount("alice", "XAF"))
	require.Equal(t, int64(1_000), alice)
}

func TestExtractMoreThanRemaining(t *testing.T) {
	ctx := context.Background()
	lock := Resume(EscrowAccount("alice", "XAF"), "XAF", 100)
	c := New(nil, "XAF", testKinds)

	_, err := c.Extract(ctx, lock, 101)
	require.ErrorIs(t, err, ErrInsufficientEscrow)
	require.Equal(t, int64(100), lock.Remaining())

	_, err = c.Extract(ctx, lock, -1)
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestCreditFailsWhenEscrowAccountIsShort(t *testing.T) {
	ctx := context.Background()
	l := setup(t)

	// The handle claims more than the escrow account actually holds.
	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		c := New(tx, "XAF", testKinds)
		lock := Resume(EscrowAccount("alice", "XAF"), "XAF", 500)
		funds, err := c.Extract(ctx, lock, 500)
		require.NoError(t, err)
		return c.Credit(ctx, "bob", funds)
	})
	require.ErrorIs(t, err, ErrInsufficientEscrow)
}

func TestZeroAmountsPostNothing(t *testing.T) {
	ctx := context.Background()
	l := setup(t)

	err := l.Atomic(ctx, func(tx ledger.Tx) error {
		c := New(tx, "XAF", testKinds)
		lock, err := c.Debit(ctx, "alice", EscrowAccount("alice", "XAF"), 0)
		if err != nil {
			return err
		}
		return c.Credit(ctx, "bob", c.ExtractAll(ctx, lock))
	})
	require.NoError(t, err)
	require.Equal(t, int64(1_000), ledger.TotalBalance(l))
}

func TestAccountCodes(t *testing.T) {
	require.Equal(t, "wallet:alice:XAF", WalletAccount("alice", "XAF"))
	require.Equal(t, "escrow:alice:XAF", EscrowAccount("alice", "XAF"))
	require.Equal(t, "suspense:card:XAF", SuspenseAccount("XAF"))
}
