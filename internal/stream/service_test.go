package stream

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/paystream/internal/clock"
	"github.com/congo-pay/paystream/internal/custody"
	"github.com/congo-pay/paystream/internal/ledger"
	"github.com/congo-pay/paystream/internal/logging"
	"github.com/congo-pay/paystream/internal/notification"
)

const (
	start    = int64(1_700_000_000)
	sender   = "alice"
	receiver = "bob"
	asset    = "XAF"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type fixture struct {
	ledger   ledger.Ledger
	clock    *clock.Manual
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T, senderBalance int64) *fixture {
	t.Helper()
	l := ledger.NewInMemory()
	require.NoError(t, l.EnsureAccount(context.Background(), custody.WalletAccount(sender, asset)))
	ledger.SeedBalance(l, custody.WalletAccount(sender, asset), senderBalance)
	clk := clock.NewManual(start)
	n := &recordingNotifier{}
	return &fixture{
		ledger:   l,
		clock:    clk,
		notifier: n,
		svc:      NewService(l, clk, n, logging.Discard(), asset),
	}
}

func (f *fixture) balance(t *testing.T, code string) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), code)
	require.NoError(t, err)
	return b
}

func (f *fixture) open(t *testing.T, duration, rate int64) ledger.Stream {
	t.Helper()
	rec, err := f.svc.Open(context.Background(), OpenInput{
		Sender:   sender,
		Receiver: receiver,
		EndTime:  f.clock.Now() + duration,
		Rate:     rate,
	})
	require.NoError(t, err)
	return rec
}

// assertConserved checks withdrawn + escrow == total and that the escrow
// account in the ledger holds exactly the record's escrow.
func (f *fixture) assertConserved(t *testing.T) {
	t.Helper()
	rec, err := f.ledger.Stream(context.Background(), ledger.StreamKey{Owner: sender, Asset: asset})
	require.NoError(t, err)
	require.Equal(t, Total(rec), rec.Withdrawn+rec.Escrow)
	require.Equal(t, rec.Escrow, f.balance(t, custody.EscrowAccount(sender, asset)))
}

func TestOpenLocksTotal(t *testing.T) {
	f := newFixture(t, 10_000)
	rec := f.open(t, 100, 20)

	require.Equal(t, start, rec.StartTime)
	require.Equal(t, start+100, rec.EndTime)
	require.Equal(t, int64(2_000), rec.Escrow)
	require.Zero(t, rec.Withdrawn)
	require.Equal(t, int64(8_000), f.balance(t, custody.WalletAccount(sender, asset)))
	require.Equal(t, int64(2_000), f.balance(t, custody.EscrowAccount(sender, asset)))
	f.assertConserved(t)

	require.Len(t, f.notifier.sent, 1)
	require.Equal(t, notification.KindStreamOpened, f.notifier.sent[0].Kind)
	require.Equal(t, receiver, f.notifier.sent[0].Destination)
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)

	cases := []struct {
		name string
		in   OpenInput
		err  error
	}{
		{"end in past", OpenInput{Sender: sender, Receiver: receiver, EndTime: start - 1, Rate: 1}, ErrInvalidTimeRange},
		{"end now", OpenInput{Sender: sender, Receiver: receiver, EndTime: start, Rate: 1}, ErrInvalidTimeRange},
		{"zero rate", OpenInput{Sender: sender, Receiver: receiver, EndTime: start + 10, Rate: 0}, ErrInvalidRate},
		{"negative rate", OpenInput{Sender: sender, Receiver: receiver, EndTime: start + 10, Rate: -5}, ErrInvalidRate},
		{"overflow", OpenInput{Sender: sender, Receiver: receiver, EndTime: start + 1_000, Rate: 1 << 62}, ErrAmountOverflow},
		{"insufficient", OpenInput{Sender: sender, Receiver: receiver, EndTime: start + 100, Rate: 101}, ErrInsufficientBalance},
		{"missing receiver", OpenInput{Sender: sender, EndTime: start + 100, Rate: 1}, ErrMissingIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Open(ctx, tc.in)
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, int64(10_000), f.balance(t, custody.WalletAccount(sender, asset)))
			_, err = f.ledger.Stream(ctx, ledger.StreamKey{Owner: sender, Asset: asset})
			require.ErrorIs(t, err, ledger.ErrStreamNotFound)
		})
	}
}

func TestOpenDuplicateLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	first := f.open(t, 100, 20)

	f.clock.Advance(10)
	_, err := f.svc.Open(ctx, OpenInput{Sender: sender, Receiver: "carol", EndTime: start + 50, Rate: 1})
	require.ErrorIs(t, err, ErrStreamAlreadyExists)

	got, err := f.ledger.Stream(ctx, first.Key())
	require.NoError(t, err)
	require.Equal(t, first, got)
	require.Equal(t, int64(8_000), f.balance(t, custody.WalletAccount(sender, asset)))
	require.Equal(t, int64(2_000), f.balance(t, custody.EscrowAccount(sender, asset)))
}

func TestOpenRejectedForBalanceCreatesNoAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)

	_, err := f.svc.Open(ctx, OpenInput{Sender: sender, Receiver: "dave", EndTime: start + 100, Rate: 2})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.ledger.Balance(ctx, custody.EscrowAccount(sender, asset))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = f.ledger.Balance(ctx, custody.WalletAccount("dave", asset))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	require.Equal(t, int64(100), f.balance(t, custody.WalletAccount(sender, asset)))
}

func TestOpenSameOwnerDifferentAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)

	require.NoError(t, f.ledger.EnsureAccount(ctx, custody.WalletAccount(sender, "USD")))
	ledger.SeedBalance(f.ledger, custody.WalletAccount(sender, "USD"), 500)
	rec, err := f.svc.Open(ctx, OpenInput{Sender: sender, Receiver: receiver, Asset: "USD", EndTime: start + 10, Rate: 50})
	require.NoError(t, err)
	require.Equal(t, "USD", rec.Asset)
	require.Zero(t, f.balance(t, custody.WalletAccount(sender, "USD")))
}

func TestWithdrawPaysLinearly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)

	var paidTotal int64
	for _, step := range []int64{1, 9, 25, 40, 25} {
		now := f.clock.Advance(step)
		rec, err := f.ledger.Stream(ctx, ledger.StreamKey{Owner: sender, Asset: asset})
		require.NoError(t, err)
		want := (now-start)*20 - rec.Withdrawn

		res, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
		require.NoError(t, err)
		require.Equal(t, want, res.Paid)
		require.LessOrEqual(t, res.Stream.Withdrawn, int64(2_000))
		paidTotal += res.Paid
		f.assertConserved(t)
	}
	require.Equal(t, int64(2_000), paidTotal)
	require.Equal(t, int64(2_000), f.balance(t, custody.WalletAccount(receiver, asset)))
}

func TestWithdrawIdempotentAtSameInstant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)
	f.clock.Advance(30)

	first, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.NoError(t, err)
	require.Equal(t, int64(600), first.Paid)

	second, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.NoError(t, err)
	require.Zero(t, second.Paid)
	require.Equal(t, int64(600), second.Stream.Withdrawn)
	require.Equal(t, int64(600), f.balance(t, custody.WalletAccount(receiver, asset)))
	f.assertConserved(t)
}

func TestWithdrawAfterEndCapsAndKeepsStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)
	f.clock.Advance(5_000)

	res, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.NoError(t, err)
	require.Equal(t, int64(2_000), res.Paid)
	require.Zero(t, res.Stream.Escrow)

	_, err = f.ledger.Stream(ctx, ledger.StreamKey{Owner: sender, Asset: asset})
	require.NoError(t, err, "stream must survive a withdrawal after its end")
}

func TestWithdrawErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)

	_, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.ErrorIs(t, err, ErrNoSuchStream)

	f.open(t, 100, 20)
	f.clock.Advance(10)
	_, err = f.svc.Withdraw(ctx, WithdrawInput{Caller: "mallory", Owner: sender})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Withdraw(ctx, WithdrawInput{Caller: sender, Owner: sender})
	require.ErrorIs(t, err, ErrUnauthorized, "the owner is not the receiver")
	f.assertConserved(t)
}

func TestWithdrawUnderflowWhenClockGoesBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)

	f.clock.Advance(50)
	_, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.NoError(t, err)

	f.clock.Set(start + 20)
	_, err = f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.ErrorIs(t, err, ErrAccountingUnderflow)

	f.clock.Set(start - 1)
	_, err = f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.ErrorIs(t, err, ErrAccountingUnderflow)

	rec, err := f.ledger.Stream(ctx, ledger.StreamKey{Owner: sender, Asset: asset})
	require.NoError(t, err)
	require.Equal(t, int64(1_000), rec.Withdrawn)
	f.assertConserved(t)
}

func TestCloseMidStreamSplits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)

	f.clock.Advance(25)
	_, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.NoError(t, err)

	f.clock.Advance(15)
	escrowBefore := f.balance(t, custody.EscrowAccount(sender, asset))
	res, err := f.svc.Close(ctx, CloseInput{Caller: sender})
	require.NoError(t, err)

	require.Equal(t, int64(300), res.ReceiverPayout)
	require.Equal(t, int64(1_200), res.OwnerRefund)
	require.Equal(t, escrowBefore, res.ReceiverPayout+res.OwnerRefund)
	require.Equal(t, int64(800), f.balance(t, custody.WalletAccount(receiver, asset)))
	require.Equal(t, int64(9_200), f.balance(t, custody.WalletAccount(sender, asset)))
	require.Zero(t, f.balance(t, custody.EscrowAccount(sender, asset)))

	_, err = f.ledger.Stream(ctx, ledger.StreamKey{Owner: sender, Asset: asset})
	require.ErrorIs(t, err, ledger.ErrStreamNotFound)
	require.Equal(t, int64(10_000), ledger.TotalBalance(f.ledger))
}

func TestCloseAfterEndClampsToEscrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)

	f.clock.Advance(60)
	_, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.NoError(t, err)

	// Raw vesting at close would be 200*20-1200 = 2800 against 800 of escrow.
	f.clock.Advance(140)
	res, err := f.svc.Close(ctx, CloseInput{Caller: sender})
	require.NoError(t, err)
	require.Equal(t, int64(800), res.ReceiverPayout)
	require.Zero(t, res.OwnerRefund)
	require.Equal(t, int64(2_000), f.balance(t, custody.WalletAccount(receiver, asset)))
	require.Equal(t, int64(8_000), f.balance(t, custody.WalletAccount(sender, asset)))
}

func TestCloseImmediatelyRefundsEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)

	res, err := f.svc.Close(ctx, CloseInput{Caller: sender, Owner: sender})
	require.NoError(t, err)
	require.Zero(t, res.ReceiverPayout)
	require.Equal(t, int64(2_000), res.OwnerRefund)
	require.Equal(t, int64(10_000), f.balance(t, custody.WalletAccount(sender, asset)))
}

func TestCloseErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)

	_, err := f.svc.Close(ctx, CloseInput{Caller: sender})
	require.ErrorIs(t, err, ErrNoSuchStream)

	f.open(t, 100, 20)
	_, err = f.svc.Close(ctx, CloseInput{Caller: receiver, Owner: sender})
	require.ErrorIs(t, err, ErrUnauthorized)
	f.assertConserved(t)
}

func TestCloseRollsBackWhenEscrowIsShort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)
	f.clock.Advance(50)

	// Corrupt the escrow account so the payout cannot be covered.
	ledger.SeedBalance(f.ledger, custody.EscrowAccount(sender, asset), 400)

	_, err := f.svc.Close(ctx, CloseInput{Caller: sender})
	require.ErrorIs(t, err, ErrInsufficientEscrow)

	rec, err := f.ledger.Stream(ctx, ledger.StreamKey{Owner: sender, Asset: asset})
	require.NoError(t, err, "record must survive a failed close")
	require.Equal(t, int64(2_000), rec.Escrow)
	require.Equal(t, int64(400), f.balance(t, custody.EscrowAccount(sender, asset)))
	require.Zero(t, f.balance(t, custody.WalletAccount(receiver, asset)))
}

func TestScenarioFullyWithdrawnThenClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)

	rec := f.open(t, 100, 20)
	require.Equal(t, int64(2_000), rec.Escrow)
	require.Equal(t, int64(8_000), f.balance(t, custody.WalletAccount(sender, asset)))

	f.clock.Set(rec.EndTime)
	res, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender})
	require.NoError(t, err)
	require.Equal(t, int64(2_000), res.Paid)
	require.Equal(t, int64(8_000), f.balance(t, custody.WalletAccount(sender, asset)))

	live, err := f.ledger.Stream(ctx, rec.Key())
	require.NoError(t, err)
	require.Equal(t, int64(2_000), live.Withdrawn)
	require.Zero(t, live.Escrow)

	closed, err := f.svc.Close(ctx, CloseInput{Caller: sender})
	require.NoError(t, err)
	require.Zero(t, closed.ReceiverPayout)
	require.Zero(t, closed.OwnerRefund)
	_, err = f.ledger.Stream(ctx, rec.Key())
	require.ErrorIs(t, err, ledger.ErrStreamNotFound)

	// The owner can open a fresh stream once the old one is gone.
	f.open(t, 10, 1)
}

func TestGetAndIncoming(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)

	_, err := f.svc.Get(ctx, sender, "")
	require.ErrorIs(t, err, ErrNoSuchStream)

	f.open(t, 100, 20)
	f.clock.Advance(10)

	snap, err := f.svc.Get(ctx, sender, asset)
	require.NoError(t, err)
	require.Equal(t, int64(200), snap.Vested)
	require.Equal(t, int64(200), snap.Withdrawable)
	require.Equal(t, start+10, snap.Now)

	incoming, err := f.svc.Incoming(ctx, receiver)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.Equal(t, sender, incoming[0].Stream.Owner)

	none, err := f.svc.Incoming(ctx, "carol")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestConcurrentWithdrawalsNeverDoublePay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10_000)
	f.open(t, 100, 20)
	f.clock.Advance(70)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Withdraw(ctx, WithdrawInput{Caller: receiver, Owner: sender}); err != nil {
				t.Errorf("withdraw: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1_400), f.balance(t, custody.WalletAccount(receiver, asset)))
	f.assertConserved(t)
}
