package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidAmount is returned for postings that do not move a positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAccountNotFound is returned when a posting references an unknown account code.
	ErrAccountNotFound = errors.New("account not found")

	// ErrStreamNotFound is returned when no live stream record exists for a key.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamExists is returned when inserting a record for a key that is already live.
	ErrStreamExists = errors.New("stream already exists")
)

const (
	// StatusPendingSettlement indicates a card transaction awaiting settlement confirmation.
	StatusPendingSettlement = "pending_settlement"
	// StatusCompleted represents a settled transaction.
	StatusCompleted = "completed"
)

// Posting describes a balanced movement of Amount from one account to another.
type Posting struct {
	From   string
	To     string
	Kind   string
	Amount int64
	// ClientTxID makes the posting idempotent per Kind when set.
	ClientTxID string
	// Status defaults to StatusCompleted.
	Status string
	// AllowOverdraft skips the balance check on the source account. Only
	// suspense accounts are posted this way.
	AllowOverdraft bool
}

// TransactionResult captures the outcome of a ledger posting.
type TransactionResult struct {
	TransactionID string
	Status        string
	FromBalance   int64
	ToBalance     int64
}

// StreamKey identifies the single live stream an owner may hold per asset.
type StreamKey struct {
	Owner string
	Asset string
}

// Stream is the persisted record of a linear payment stream.
type Stream struct {
	Owner     string
	Asset     string
	Receiver  string
	StartTime int64
	EndTime   int64
	Rate      int64
	Withdrawn int64
	Escrow    int64
	CreatedAt time.Time
}

// Key returns the ledger key of the stream.
func (s Stream) Key() StreamKey {
	return StreamKey{Owner: s.Owner, Asset: s.Asset}
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
//
// Every mutation happens inside Atomic: postings and stream record changes made
// through the Tx either all commit or all roll back when fn returns an error.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	Stream(ctx context.Context, key StreamKey) (Stream, error)
	StreamsByReceiver(ctx context.Context, receiver string) ([]Stream, error)
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a unit of work against the ledger.
type Tx interface {
	// EnsureAccount creates the account when missing. The account is rolled
	// back with the rest of the unit of work.
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	Post(ctx context.Context, p Posting) (TransactionResult, error)
	// Stream loads a record for update. Backends hold the record until the unit
	// of work ends.
	Stream(ctx context.Context, key StreamKey) (Stream, error)
	InsertStream(ctx context.Context, s Stream) error
	UpdateStream(ctx context.Context, s Stream) error
	DeleteStream(ctx context.Context, key StreamKey) error
}

func postingStatus(p Posting) string {
	if p.Status == "" {
		return StatusCompleted
	}
	return p.Status
}
