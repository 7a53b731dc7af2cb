package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/paystream/internal/clock"
	"github.com/congo-pay/paystream/internal/custody"
	"github.com/congo-pay/paystream/internal/ledger"
	"github.com/congo-pay/paystream/internal/notification"
)

// Ledger transaction kinds posted by stream operations.
const (
	KindOpen        = "stream_open"
	KindWithdraw    = "stream_withdraw"
	KindClosePayout = "stream_close_payout"
	KindCloseRefund = "stream_close_refund"
)

// Service runs the stream state machine against the ledger.
type Service struct {
	ledger       ledger.Ledger
	clock        clock.Clock
	notifier     notification.Notifier
	logger       *slog.Logger
	defaultAsset string
}

// NewService builds a stream service. Operations that do not name an asset use defaultAsset.
func NewService(l ledger.Ledger, c clock.Clock, notifier notification.Notifier, logger *slog.Logger, defaultAsset string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, clock: c, notifier: notifier, logger: logger, defaultAsset: defaultAsset}
}

// OpenInput captures what a sender provides to start a stream.
type OpenInput struct {
	Sender   string
	Receiver string
	Asset    string
	EndTime  int64
	Rate     int64
}

// WithdrawInput identifies the stream a receiver withdraws from.
type WithdrawInput struct {
	Caller string
	Owner  string
	Asset  string
}

// WithdrawResult describes a withdrawal. Paid is zero when nothing new vested.
type WithdrawResult struct {
	Stream ledger.Stream
	Paid   int64
	At     int64
}

// CloseInput identifies the stream to close. Owner defaults to Caller.
type CloseInput struct {
	Caller string
	Owner  string
	Asset  string
}

// CloseResult describes how a closed stream was settled.
type CloseResult struct {
	Owner          string
	Receiver       string
	Asset          string
	ReceiverPayout int64
	OwnerRefund    int64
	ClosedAt       int64
}

// Snapshot is a stream as seen at a point in time.
type Snapshot struct {
	Stream       ledger.Stream
	Now          int64
	Vested       int64
	Withdrawable int64
}

func (s *Service) asset(asset string) string {
	if asset == "" {
		return s.defaultAsset
	}
	return asset
}

// Open locks (EndTime-now)*Rate of the sender's balance in escrow and starts
// vesting it linearly to the receiver.
func (s *Service) Open(ctx context.Context, in OpenInput) (ledger.Stream, error) {
	if in.Sender == "" || in.Receiver == "" {
		return ledger.Stream{}, ErrMissingIdentity
	}
	if in.Rate <= 0 {
		return ledger.Stream{}, ErrInvalidRate
	}
	asset := s.asset(in.Asset)
	now := s.clock.Now()
	if now >= in.EndTime {
		return ledger.Stream{}, ErrInvalidTimeRange
	}
	total, ok := mulChecked(in.EndTime-now, in.Rate)
	if !ok {
		return ledger.Stream{}, ErrAmountOverflow
	}

	escrowAccount := custody.EscrowAccount(in.Sender, asset)
	rec := ledger.Stream{
		Owner:     in.Sender,
		Asset:     asset,
		Receiver:  in.Receiver,
		StartTime: now,
		EndTime:   in.EndTime,
		Rate:      in.Rate,
		CreatedAt: time.Now().UTC(),
	}

	err := s.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		if _, err := tx.Stream(ctx, rec.Key()); err == nil {
			return ErrStreamAlreadyExists
		} else if !errors.Is(err, ledger.ErrStreamNotFound) {
			return err
		}

		for _, code := range []string{
			custody.WalletAccount(in.Sender, asset),
			custody.WalletAccount(in.Receiver, asset),
			escrowAccount,
		} {
			if err := tx.EnsureAccount(ctx, code); err != nil {
				return err
			}
		}

		lock, err := custody.New(tx, asset, custody.Kinds{Debit: KindOpen}).Debit(ctx, in.Sender, escrowAccount, total)
		if err != nil {
			return err
		}
		rec.Escrow = lock.Remaining()

		if err := tx.InsertStream(ctx, rec); err != nil {
			if errors.Is(err, ledger.ErrStreamExists) {
				return ErrStreamAlreadyExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return ledger.Stream{}, err
	}

	s.logger.Info("stream opened",
		slog.String("owner", rec.Owner),
		slog.String("receiver", rec.Receiver),
		slog.String("asset", rec.Asset),
		slog.Int64("escrow", rec.Escrow),
		slog.Int64("rate", rec.Rate),
		slog.Int64("end_time", rec.EndTime),
	)
	s.notify(ctx, notification.KindStreamOpened, rec.Receiver,
		fmt.Sprintf("%s is streaming %s to you until %d", rec.Owner, notification.FormatAmount(rec.Escrow, asset), rec.EndTime))

	return rec, nil
}

// Withdraw pays the receiver everything vested since their last withdrawal.
// Calling it twice at the same instant pays nothing the second time.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (WithdrawResult, error) {
	if in.Caller == "" || in.Owner == "" {
		return WithdrawResult{}, ErrMissingIdentity
	}
	asset := s.asset(in.Asset)
	now := s.clock.Now()
	key := ledger.StreamKey{Owner: in.Owner, Asset: asset}

	var res WithdrawResult
	err := s.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		rec, err := loadStream(ctx, tx, key)
		if err != nil {
			return err
		}
		if rec.Receiver != in.Caller {
			return ErrUnauthorized
		}

		entitled, err := entitlement(rec, now)
		if err != nil {
			return err
		}
		payable := entitled - rec.Withdrawn
		if payable < 0 {
			return fmt.Errorf("withdrawn %d exceeds entitlement %d: %w", rec.Withdrawn, entitled, ErrAccountingUnderflow)
		}

		c := custody.New(tx, asset, custody.Kinds{Credit: KindWithdraw})
		lock := custody.Resume(custody.EscrowAccount(rec.Owner, asset), asset, rec.Escrow)
		funds, err := c.Extract(ctx, lock, payable)
		if err != nil {
			return err
		}
		if err := c.Credit(ctx, rec.Receiver, funds); err != nil {
			return err
		}

		rec.Withdrawn = entitled
		rec.Escrow = lock.Remaining()
		if err := tx.UpdateStream(ctx, rec); err != nil {
			return err
		}
		res = WithdrawResult{Stream: rec, Paid: payable, At: now}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountingUnderflow) {
			s.logger.Error("stream withdraw underflow",
				slog.String("owner", in.Owner),
				slog.String("asset", asset),
				slog.Int64("now", now),
				slog.Any("error", err),
			)
		}
		return WithdrawResult{}, err
	}

	s.logger.Info("stream withdrawal",
		slog.String("owner", in.Owner),
		slog.String("receiver", in.Caller),
		slog.String("asset", asset),
		slog.Int64("paid", res.Paid),
		slog.Int64("withdrawn", res.Stream.Withdrawn),
		slog.Int64("escrow", res.Stream.Escrow),
	)
	if res.Paid > 0 {
		s.notify(ctx, notification.KindStreamWithdrawal, in.Caller,
			fmt.Sprintf("You withdrew %s from %s's stream", notification.FormatAmount(res.Paid, asset), in.Owner))
	}
	return res, nil
}

// Close settles the stream: the receiver gets what vested and was not
// withdrawn, the owner gets the rest of the escrow, and the record is removed.
// All three happen in one unit of work.
func (s *Service) Close(ctx context.Context, in CloseInput) (CloseResult, error) {
	if in.Caller == "" {
		return CloseResult{}, ErrMissingIdentity
	}
	owner := in.Owner
	if owner == "" {
		owner = in.Caller
	}
	asset := s.asset(in.Asset)
	now := s.clock.Now()
	key := ledger.StreamKey{Owner: owner, Asset: asset}

	var res CloseResult
	err := s.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		rec, err := loadStream(ctx, tx, key)
		if err != nil {
			return err
		}
		if rec.Owner != in.Caller {
			return ErrUnauthorized
		}

		owed := closingOwed(rec, now)
		payable := clamp(owed, 0, rec.Escrow)
		switch {
		case owed < 0:
			s.logger.Warn("stream close owed negative, paying receiver nothing",
				slog.String("owner", rec.Owner),
				slog.String("asset", asset),
				slog.Int64("owed", owed),
				slog.Int64("now", now),
				slog.Int64("start_time", rec.StartTime),
			)
		case owed > payable:
			s.logger.Debug("stream close owed capped at escrow",
				slog.String("owner", rec.Owner),
				slog.String("asset", asset),
				slog.Int64("owed", owed),
				slog.Int64("escrow", rec.Escrow),
			)
		}

		lock := custody.Resume(custody.EscrowAccount(rec.Owner, asset), asset, rec.Escrow)

		payout := custody.New(tx, asset, custody.Kinds{Credit: KindClosePayout})
		funds, err := payout.Extract(ctx, lock, payable)
		if err != nil {
			return err
		}
		if err := payout.Credit(ctx, rec.Receiver, funds); err != nil {
			return err
		}

		refund := custody.New(tx, asset, custody.Kinds{Credit: KindCloseRefund})
		rest := refund.ExtractAll(ctx, lock)
		if err := refund.Credit(ctx, rec.Owner, rest); err != nil {
			return err
		}

		if err := tx.DeleteStream(ctx, key); err != nil {
			return err
		}
		res = CloseResult{
			Owner:          rec.Owner,
			Receiver:       rec.Receiver,
			Asset:          asset,
			ReceiverPayout: funds.Amount,
			OwnerRefund:    rest.Amount,
			ClosedAt:       now,
		}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}

	s.logger.Info("stream closed",
		slog.String("owner", res.Owner),
		slog.String("receiver", res.Receiver),
		slog.String("asset", asset),
		slog.Int64("receiver_payout", res.ReceiverPayout),
		slog.Int64("owner_refund", res.OwnerRefund),
	)
	s.notify(ctx, notification.KindStreamClosed, res.Receiver,
		fmt.Sprintf("%s closed their stream, you received %s", res.Owner, notification.FormatAmount(res.ReceiverPayout, asset)))
	s.notify(ctx, notification.KindStreamClosed, res.Owner,
		fmt.Sprintf("Your stream to %s closed, %s returned to you", res.Receiver, notification.FormatAmount(res.OwnerRefund, asset)))
	return res, nil
}

// Get returns the owner's live stream of asset as of now.
func (s *Service) Get(ctx context.Context, owner, asset string) (Snapshot, error) {
	rec, err := s.ledger.Stream(ctx, ledger.StreamKey{Owner: owner, Asset: s.asset(asset)})
	if err != nil {
		if errors.Is(err, ledger.ErrStreamNotFound) {
			return Snapshot{}, ErrNoSuchStream
		}
		return Snapshot{}, err
	}
	return s.snapshot(rec, s.clock.Now()), nil
}

// Incoming lists every live stream paying receiver.
func (s *Service) Incoming(ctx context.Context, receiver string) ([]Snapshot, error) {
	recs, err := s.ledger.StreamsByReceiver(ctx, receiver)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.snapshot(rec, now))
	}
	return out, nil
}

func (s *Service) snapshot(rec ledger.Stream, now int64) Snapshot {
	return Snapshot{
		Stream:       rec,
		Now:          now,
		Vested:       VestedAt(rec, now),
		Withdrawable: Withdrawable(rec, now),
	}
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body}); err != nil {
		s.logger.Warn("notification failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

func loadStream(ctx context.Context, tx ledger.Tx, key ledger.StreamKey) (ledger.Stream, error) {
	rec, err := tx.Stream(ctx, key)
	if err != nil {
		if errors.Is(err, ledger.ErrStreamNotFound) {
			return ledger.Stream{}, ErrNoSuchStream
		}
		return ledger.Stream{}, err
	}
	return rec, nil
}
