package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	balances     map[string]int64
	transactions map[string]TransactionResult
	streams      map[StreamKey]Stream
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development runs without Postgres.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]int64),
		transactions: make(map[string]TransactionResult),
		streams:      make(map[StreamKey]Stream),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[code]
	if !exists {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Stream(_ context.Context, key StreamKey) (Stream, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.streams[key]
	if !ok {
		return Stream{}, ErrStreamNotFound
	}
	return s, nil
}

func (l *inMemoryLedger) StreamsByReceiver(_ context.Context, receiver string) ([]Stream, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Stream
	for _, s := range l.streams {
		if s.Receiver == receiver {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].Asset < out[j].Asset
	})
	return out, nil
}

// Atomic runs fn with the ledger locked. Writes are staged on the transaction
// and only applied to the ledger when fn returns nil.
func (l *inMemoryLedger) Atomic(_ context.Context, fn func(tx Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &inMemoryTx{
		l:            l,
		balances:     make(map[string]int64),
		transactions: make(map[string]TransactionResult),
		streams:      make(map[StreamKey]*Stream),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for code, balance := range tx.balances {
		l.balances[code] = balance
	}
	for key, res := range tx.transactions {
		l.transactions[key] = res
	}
	for key, s := range tx.streams {
		if s == nil {
			delete(l.streams, key)
			continue
		}
		l.streams[key] = *s
	}
	return nil
}

type inMemoryTx struct {
	l            *inMemoryLedger
	balances     map[string]int64
	transactions map[string]TransactionResult
	// nil marks a deleted record
	streams map[StreamKey]*Stream
}

func (tx *inMemoryTx) balance(code string) (int64, bool) {
	if b, ok := tx.balances[code]; ok {
		return b, true
	}
	b, ok := tx.l.balances[code]
	return b, ok
}

func (tx *inMemoryTx) EnsureAccount(_ context.Context, code string) error {
	if _, ok := tx.balance(code); !ok {
		tx.balances[code] = 0
	}
	return nil
}

func (tx *inMemoryTx) Balance(_ context.Context, code string) (int64, error) {
	b, ok := tx.balance(code)
	if !ok {
		return 0, ErrAccountNotFound
	}
	return b, nil
}

func (tx *inMemoryTx) Post(_ context.Context, p Posting) (TransactionResult, error) {
	if p.Amount <= 0 {
		return TransactionResult{}, ErrInvalidAmount
	}

	idemKey := ""
	if p.ClientTxID != "" {
		idemKey = p.Kind + ":" + p.ClientTxID
		if res, exists := tx.transactions[idemKey]; exists {
			return res, ErrDuplicateTransaction
		}
		if res, exists := tx.l.transactions[idemKey]; exists {
			return res, ErrDuplicateTransaction
		}
	}

	fromBalance, ok := tx.balance(p.From)
	if !ok {
		return TransactionResult{}, ErrAccountNotFound
	}
	toBalance, ok := tx.balance(p.To)
	if !ok {
		return TransactionResult{}, ErrAccountNotFound
	}
	if !p.AllowOverdraft && fromBalance < p.Amount {
		return TransactionResult{}, ErrInsufficientFunds
	}

	fromBalance -= p.Amount
	tx.balances[p.From] = fromBalance
	// self transfers net to zero
	toBalance, _ = tx.balance(p.To)
	toBalance += p.Amount
	tx.balances[p.To] = toBalance

	res := TransactionResult{
		TransactionID: uuid.NewString(),
		Status:        postingStatus(p),
		FromBalance:   fromBalance,
		ToBalance:     toBalance,
	}
	if idemKey != "" {
		tx.transactions[idemKey] = res
	}
	return res, nil
}

func (tx *inMemoryTx) Stream(_ context.Context, key StreamKey) (Stream, error) {
	if s, staged := tx.streams[key]; staged {
		if s == nil {
			return Stream{}, ErrStreamNotFound
		}
		return *s, nil
	}
	s, ok := tx.l.streams[key]
	if !ok {
		return Stream{}, ErrStreamNotFound
	}
	return s, nil
}

func (tx *inMemoryTx) InsertStream(ctx context.Context, s Stream) error {
	if _, err := tx.Stream(ctx, s.Key()); err == nil {
		return ErrStreamExists
	}
	tx.streams[s.Key()] = &s
	return nil
}

func (tx *inMemoryTx) UpdateStream(ctx context.Context, s Stream) error {
	if _, err := tx.Stream(ctx, s.Key()); err != nil {
		return err
	}
	tx.streams[s.Key()] = &s
	return nil
}

func (tx *inMemoryTx) DeleteStream(ctx context.Context, key StreamKey) error {
	if _, err := tx.Stream(ctx, key); err != nil {
		return err
	}
	tx.streams[key] = nil
	return nil
}
