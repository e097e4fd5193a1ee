package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transactionColumns = `id, user_id, customer_email, item_id, amount::text, currency, duration_days,
	status, gateway_provider, gateway_session_id, checkout_url, failure_reason,
	created_at, updated_at, settled_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *TransactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO transactions
		 (id, user_id, customer_email, item_id, amount, currency, duration_days, status,
		  gateway_provider, gateway_session_id, checkout_url, failure_reason, created_at, updated_at, settled_at)
		 VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		tx.ID, tx.UserID, tx.CustomerEmail, tx.ItemID, centsToNumericString(tx.Amount.ValueCents), tx.Amount.Currency,
		tx.DurationDays, string(tx.Status), nullIfEmpty(tx.GatewayProvider), tx.GatewaySessionID, tx.CheckoutURL,
		tx.FailureReason, tx.CreatedAt, tx.UpdatedAt, tx.SettledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return fmt.Errorf("insert transaction %s: %w", tx.ID, domainErrors.ErrConflict)
			case "23503":
				return fmt.Errorf("insert transaction %s: %w", tx.ID, domainErrors.ErrItemNotFound)
			}
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (r *TransactionRepository) GetBySessionID(ctx context.Context, sessionID string) (*transaction.Transaction, error) {
	return scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE gateway_session_id = $1`, sessionID))
}

func (r *TransactionRepository) GetPending(ctx context.Context, userID string, itemID int64) (*transaction.Transaction, error) {
	return scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = $1 AND item_id = $2 AND status = 'pending'`, userID, itemID))
}

// AttachSession records the gateway session. A transaction that already left
// pending keeps its state and ErrInvalidStateTransition is returned.
func (r *TransactionRepository) AttachSession(ctx context.Context, tx *transaction.Transaction) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions
		 SET gateway_provider = $1, gateway_session_id = $2, checkout_url = $3, updated_at = $4
		 WHERE id = $5 AND status = 'pending'`,
		nullIfEmpty(tx.GatewayProvider), tx.GatewaySessionID, tx.CheckoutURL, tx.UpdatedAt, tx.ID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("attach session to %s: %w", tx.ID, domainErrors.ErrConflict)
		}
		return fmt.Errorf("attach session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attach session to %s: %w", tx.ID, domainErrors.ErrInvalidStateTransition)
	}
	return nil
}

// CompareAndSetStatus is the single conditional write that moves a
// transaction out of expected. Concurrent callers race on the row lock;
// exactly one sees a row affected.
func (r *TransactionRepository) CompareAndSetStatus(ctx context.Context, next *transaction.Transaction, expected transaction.Status) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions
		 SET status = $1, failure_reason = $2, updated_at = $3, settled_at = $4
		 WHERE id = $5 AND status = $6`,
		string(next.Status), next.FailureReason, next.UpdatedAt, next.SettledAt, next.ID, string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, f transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, f.PageSize())
	argIdx++

	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	return r.queryTransactions(ctx, query, args...)
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`, cutoff, limit)
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*transaction.Transaction, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *TransactionRepository) AddEvent(ctx context.Context, event *transaction.Event) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO transaction_events (id, transaction_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.TransactionID, event.EventType, data, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction event: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Event, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, transaction_id, event_type, event_data, created_at
		 FROM transaction_events WHERE transaction_id = $1 ORDER BY created_at ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("get transaction events: %w", err)
	}
	defer rows.Close()

	var events []*transaction.Event
	for rows.Next() {
		e := &transaction.Event{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.EventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.EventData); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanTransaction(row scanner) (*transaction.Transaction, error) {
	tx := &transaction.Transaction{}
	var amount, status string
	var provider *string

	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.CustomerEmail, &tx.ItemID, &amount, &tx.Amount.Currency, &tx.DurationDays,
		&status, &provider, &tx.GatewaySessionID, &tx.CheckoutURL, &tx.FailureReason,
		&tx.CreatedAt, &tx.UpdatedAt, &tx.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if tx.Amount.ValueCents, err = numericStringToCents(amount); err != nil {
		return nil, fmt.Errorf("scan transaction %s amount: %w", tx.ID, err)
	}
	tx.Status = transaction.Status(status)
	if provider != nil {
		tx.GatewayProvider = *provider
	}
	return tx, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
