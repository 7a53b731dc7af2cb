package wallet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/paystream/internal/custody"
	"github.com/congo-pay/paystream/internal/ledger"
)

const (
	statusActive = "active"
)

// Service exposes wallet operations backed by the ledger.
type Service struct {
	repo            Repository
	ledger          ledger.Ledger
	defaultCurrency string
}

// NewService builds a wallet service instance. Wallets created without a
// currency use defaultCurrency.
func NewService(repo Repository, ledger ledger.Ledger, defaultCurrency string) *Service {
	if defaultCurrency == "" {
		defaultCurrency = "XAF"
	}
	return &Service{repo: repo, ledger: ledger, defaultCurrency: defaultCurrency}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID  string
	Currency string
}

func (s *Service) currency(c string) string {
	if c == "" {
		return s.defaultCurrency
	}
	return strings.ToUpper(c)
}

// Create provisions a wallet and its ledger account. Creating a wallet the
// owner already holds returns the existing one.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, err
	}
	currency := s.currency(input.Currency)

	if existing, err := s.repo.GetByOwner(ctx, input.OwnerID, currency); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, err
	}

	accountCode := custody.WalletAccount(input.OwnerID, currency)
	if err := s.ledger.EnsureAccount(ctx, accountCode); err != nil {
		return Wallet{}, err
	}

	wallet := Wallet{
		ID:          uuid.New().String(),
		OwnerID:     input.OwnerID,
		AccountCode: accountCode,
		Currency:    currency,
		Status:      statusActive,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, wallet); err != nil {
		return Wallet{}, err
	}

	return wallet, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// GetByOwner retrieves the owner's wallet of currency, or of the default
// currency when none is given.
func (s *Service) GetByOwner(ctx context.Context, ownerID, currency string) (Wallet, error) {
	return s.repo.GetByOwner(ctx, ownerID, s.currency(currency))
}

// Balance returns the ledger balance for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	wallet, err := s.repo.Get(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	amount, err := s.ledger.Balance(ctx, wallet.AccountCode)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: wallet.ID, Currency: wallet.Currency, Amount: amount, AsOf: time.Now().UTC()}, nil
}
