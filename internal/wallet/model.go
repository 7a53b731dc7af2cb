package wallet

import "time"

// Wallet is an owner's spendable balance of one currency. Its ledger account
// is the one stream escrow is debited from and paid into.
type Wallet struct {
	ID          string
	OwnerID     string
	AccountCode string
	Currency    string
	Status      string
	CreatedAt   time.Time
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Currency string
	Amount   int64
	AsOf     time.Time
}
