package ledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

// PostgresLedger persists ledger entries and stream records in PostgreSQL ensuring double-entry balance.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees an account exists for the provided code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return errors.Wrapf(err, "ensure account %s", code)
}

// Balance returns the summed balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	var id uuid.UUID
	if err := l.db.QueryRow(ctx, `SELECT id FROM accounts WHERE code = $1`, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, errors.Wrapf(err, "lookup account %s", code)
	}
	const query = `SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`
	var balance int64
	if err := l.db.QueryRow(ctx, query, id).Scan(&balance); err != nil {
		return 0, errors.Wrapf(err, "balance for %s", code)
	}
	return balance, nil
}

const streamColumns = `owner_id, asset, receiver_id, start_time, end_time, rate, withdrawn, escrow, created_at`

// Stream reads a stream record without locking it.
func (l *PostgresLedger) Stream(ctx context.Context, key StreamKey) (Stream, error) {
	row := l.db.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE owner_id = $1 AND asset = $2`, key.Owner, key.Asset)
	return scanStream(row)
}

// StreamsByReceiver lists every live stream paying the given receiver.
func (l *PostgresLedger) StreamsByReceiver(ctx context.Context, receiver string) ([]Stream, error) {
	rows, err := l.db.Query(ctx, `SELECT `+streamColumns+` FROM streams WHERE receiver_id = $1
        ORDER BY owner_id, asset`, receiver)
	if err != nil {
		return nil, errors.Wrap(err, "query streams by receiver")
	}
	defer rows.Close()

	var out []Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate streams")
}

// Atomic runs fn inside a single database transaction.
func (l *PostgresLedger) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) EnsureAccount(ctx context.Context, code string) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return errors.Wrapf(err, "ensure account %s", code)
}

func (t *postgresTx) Balance(ctx context.Context, code string) (int64, error) {
	id, err := accountIDForCode(ctx, t.tx, code)
	if err != nil {
		return 0, err
	}
	return balanceForAccount(ctx, t.tx, id)
}

// Post records a balanced posting between two accounts.
func (t *postgresTx) Post(ctx context.Context, p Posting) (TransactionResult, error) {
	if p.Amount <= 0 {
		return TransactionResult{}, ErrInvalidAmount
	}

	// Lock in a stable order so concurrent postings between the same pair cannot deadlock.
	codes := []string{p.From, p.To}
	sort.Strings(codes)
	ids := make(map[string]uuid.UUID, 2)
	for _, code := range codes {
		if _, done := ids[code]; done {
			continue
		}
		id, err := accountIDForCode(ctx, t.tx, code)
		if err != nil {
			return TransactionResult{}, err
		}
		ids[code] = id
	}
	fromID, toID := ids[p.From], ids[p.To]

	if p.ClientTxID != "" {
		const existingQuery = `SELECT id, status FROM transactions WHERE client_tx_id = $1 AND kind = $2`
		var existingID uuid.UUID
		var existingStatus string
		err := t.tx.QueryRow(ctx, existingQuery, p.ClientTxID, p.Kind).Scan(&existingID, &existingStatus)
		switch {
		case err == nil:
			fromBal, err := balanceForAccount(ctx, t.tx, fromID)
			if err != nil {
				return TransactionResult{}, err
			}
			toBal, err := balanceForAccount(ctx, t.tx, toID)
			if err != nil {
				return TransactionResult{}, err
			}
			return TransactionResult{TransactionID: existingID.String(), Status: existingStatus, FromBalance: fromBal, ToBalance: toBal}, ErrDuplicateTransaction
		case !errors.Is(err, pgx.ErrNoRows):
			return TransactionResult{}, errors.Wrap(err, "lookup client transaction")
		}
	}

	if !p.AllowOverdraft {
		fromBalance, err := balanceForAccount(ctx, t.tx, fromID)
		if err != nil {
			return TransactionResult{}, err
		}
		if fromBalance < p.Amount {
			return TransactionResult{}, ErrInsufficientFunds
		}
	}

	var clientTxID *string
	if p.ClientTxID != "" {
		clientTxID = &p.ClientTxID
	}
	status := postingStatus(p)
	txID := uuid.New()
	if _, err := t.tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, kind, status) VALUES ($1, $2, $3, $4)`, txID, clientTxID, p.Kind, status); err != nil {
		return TransactionResult{}, errors.Wrap(err, "insert transaction")
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), txID, fromID, -p.Amount); err != nil {
		return TransactionResult{}, errors.Wrap(err, "insert debit entry")
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), txID, toID, p.Amount); err != nil {
		return TransactionResult{}, errors.Wrap(err, "insert credit entry")
	}

	fromBal, err := balanceForAccount(ctx, t.tx, fromID)
	if err != nil {
		return TransactionResult{}, err
	}
	toBal, err := balanceForAccount(ctx, t.tx, toID)
	if err != nil {
		return TransactionResult{}, err
	}
	return TransactionResult{TransactionID: txID.String(), Status: status, FromBalance: fromBal, ToBalance: toBal}, nil
}

func (t *postgresTx) Stream(ctx context.Context, key StreamKey) (Stream, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE owner_id = $1 AND asset = $2 FOR UPDATE`, key.Owner, key.Asset)
	return scanStream(row)
}

func (t *postgresTx) InsertStream(ctx context.Context, s Stream) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO streams (`+streamColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.Owner, s.Asset, s.Receiver, s.StartTime, s.EndTime, s.Rate, s.Withdrawn, s.Escrow, s.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrStreamExists
		}
		return errors.Wrap(err, "insert stream")
	}
	return nil
}

func (t *postgresTx) UpdateStream(ctx context.Context, s Stream) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE streams SET withdrawn = $1, escrow = $2
        WHERE owner_id = $3 AND asset = $4`, s.Withdrawn, s.Escrow, s.Owner, s.Asset)
	if err != nil {
		return errors.Wrap(err, "update stream")
	}
	if cmd.RowsAffected() == 0 {
		return ErrStreamNotFound
	}
	return nil
}

func (t *postgresTx) DeleteStream(ctx context.Context, key StreamKey) error {
	cmd, err := t.tx.Exec(ctx, `DELETE FROM streams WHERE owner_id = $1 AND asset = $2`, key.Owner, key.Asset)
	if err != nil {
		return errors.Wrap(err, "delete stream")
	}
	if cmd.RowsAffected() == 0 {
		return ErrStreamNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStream(row scanner) (Stream, error) {
	var s Stream
	if err := row.Scan(&s.Owner, &s.Asset, &s.Receiver, &s.StartTime, &s.EndTime, &s.Rate, &s.Withdrawn, &s.Escrow, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stream{}, ErrStreamNotFound
		}
		return Stream{}, errors.Wrap(err, "scan stream")
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func accountIDForCode(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	const query = `SELECT id FROM accounts WHERE code = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, errors.Wrapf(ErrAccountNotFound, "account %s", code)
		}
		return uuid.Nil, errors.Wrapf(err, "lock account %s", code)
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		return 0, errors.Wrap(err, "sum entries")
	}
	return balance, nil
}
