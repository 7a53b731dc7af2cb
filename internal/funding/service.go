package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/paystream/internal/custody"
	"github.com/congo-pay/paystream/internal/ledger"
	"github.com/congo-pay/paystream/internal/wallet"
)

// Ledger transaction kinds posted by card flows.
const (
	KindCardIn  = "card_in"
	KindCardOut = "card_out"
)

var (
	// ErrInvalidAmount is returned for non-positive card amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidCard is returned for malformed card numbers.
	ErrInvalidCard = errors.New("card number must be 12 to 19 digits")
	// ErrNotWalletOwner is returned when moving funds of someone else's wallet.
	ErrNotWalletOwner = errors.New("wallet belongs to another user")
)

// Service moves money between cards and wallets through the card suspense
// account, so wallets can be funded before streams are opened from them.
type Service struct {
	ledger   ledger.Ledger
	wallets  *wallet.Service
	acquirer Acquirer
	logger   *slog.Logger
}

// NewService prepares a funding service.
func NewService(ledgerBackend ledger.Ledger, wallets *wallet.Service, acquirer Acquirer, logger *slog.Logger) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledgerBackend, wallets: wallets, acquirer: acquirer, logger: logger}, nil
}

// CardInInput captures the required data for a card top-up.
type CardInInput struct {
	CallerID   string
	WalletID   string
	Amount     int64
	ClientTxID string
	CardNumber string
	Expiry     string
	CVV        string
}

// CardOutInput captures the required data for a card withdrawal.
type CardOutInput struct {
	CallerID   string
	WalletID   string
	Amount     int64
	ClientTxID string
	CardNumber string
}

// FundingResult represents the domain outcome of a card operation.
type FundingResult struct {
	TransactionID     string
	Status            string
	Currency          string
	WalletBalance     int64
	AcquirerReference string
	CompletedAt       time.Time
}

// CardIn authorizes and records a card top-up into the specified wallet.
// Replaying a ClientTxID returns the original result with ErrDuplicateTransaction.
func (s *Service) CardIn(ctx context.Context, input CardInInput) (FundingResult, error) {
	w, clientTxID, err := s.prepare(ctx, input.CallerID, input.WalletID, input.CardNumber, input.Amount, input.ClientTxID)
	if err != nil {
		return FundingResult{}, err
	}

	decision, err := s.acquirer.AuthorizeCardIn(ctx, CardInAuthorization{
		CardNumber: input.CardNumber,
		Expiry:     input.Expiry,
		CVV:        input.CVV,
		Amount:     input.Amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	res, err := s.post(ctx, ledger.Posting{
		From:           custody.SuspenseAccount(w.Currency),
		To:             w.AccountCode,
		Kind:           KindCardIn,
		Amount:         input.Amount,
		ClientTxID:     clientTxID,
		Status:         ledger.StatusPendingSettlement,
		AllowOverdraft: true,
	})
	result := FundingResult{
		TransactionID:     res.TransactionID,
		Status:            res.Status,
		Currency:          w.Currency,
		WalletBalance:     res.ToBalance,
		AcquirerReference: decision.Reference,
		CompletedAt:       time.Now().UTC(),
	}
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return result, err
		}
		return FundingResult{}, err
	}

	s.logger.Info("card funding recorded",
		slog.String("wallet_id", w.ID),
		slog.String("transaction_id", result.TransactionID),
		slog.Int64("amount", input.Amount),
	)
	return result, nil
}

// CardOut authorizes and records a withdrawal to the provided card.
func (s *Service) CardOut(ctx context.Context, input CardOutInput) (FundingResult, error) {
	w, clientTxID, err := s.prepare(ctx, input.CallerID, input.WalletID, input.CardNumber, input.Amount, input.ClientTxID)
	if err != nil {
		return FundingResult{}, err
	}

	decision, err := s.acquirer.AuthorizeCardOut(ctx, CardOutAuthorization{
		CardNumber: input.CardNumber,
		Amount:     input.Amount,
	})
	if err != nil {
		return FundingResult{}, err
	}

	res, err := s.post(ctx, ledger.Posting{
		From:       w.AccountCode,
		To:         custody.SuspenseAccount(w.Currency),
		Kind:       KindCardOut,
		Amount:     input.Amount,
		ClientTxID: clientTxID,
		Status:     ledger.StatusPendingSettlement,
	})
	result := FundingResult{
		TransactionID:     res.TransactionID,
		Status:            res.Status,
		Currency:          w.Currency,
		WalletBalance:     res.FromBalance,
		AcquirerReference: decision.Reference,
		CompletedAt:       time.Now().UTC(),
	}
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return result, err
		}
		return FundingResult{}, err
	}

	s.logger.Info("card withdrawal recorded",
		slog.String("wallet_id", w.ID),
		slog.String("transaction_id", result.TransactionID),
		slog.Int64("amount", input.Amount),
	)
	return result, nil
}

func (s *Service) prepare(ctx context.Context, callerID, walletID, card string, amount int64, clientTxID string) (wallet.Wallet, string, error) {
	if err := validateCardNumber(card); err != nil {
		return wallet.Wallet{}, "", err
	}
	if amount <= 0 {
		return wallet.Wallet{}, "", ErrInvalidAmount
	}
	if clientTxID == "" {
		clientTxID = uuid.NewString()
	}

	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return wallet.Wallet{}, "", err
	}
	if callerID != "" && w.OwnerID != callerID {
		return wallet.Wallet{}, "", ErrNotWalletOwner
	}
	for _, code := range []string{w.AccountCode, custody.SuspenseAccount(w.Currency)} {
		if err := s.ledger.EnsureAccount(ctx, code); err != nil {
			return wallet.Wallet{}, "", err
		}
	}
	return w, clientTxID, nil
}

func (s *Service) post(ctx context.Context, p ledger.Posting) (ledger.TransactionResult, error) {
	var res ledger.TransactionResult
	err := s.ledger.Atomic(ctx, func(tx ledger.Tx) error {
		var err error
		res, err = tx.Post(ctx, p)
		return err
	})
	return res, err
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return ErrInvalidCard
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ErrInvalidCard
		}
	}
	return nil
}
