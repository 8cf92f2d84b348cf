package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/vaultpay/backend/internal/models"
)

// TransactionLog is the append-only record of every balance-affecting
// operation. Rows are never updated after settling except for the single
// pending -> completed/failed status transition. Listing is newest first with
// the log sequence number breaking created_at ties, so ordering is
// deterministic even for records written in the same clock tick.
type TransactionLog struct {
	db *sql.DB
}

func NewTransactionLog(db *sql.DB) *TransactionLog {
	return &TransactionLog{db: db}
}

const insertTransactionSQL = `
	INSERT INTO transactions
	(id, account_id, kind, gross_amount, fee, net_amount, status, executor, destination, method_label, external_reference, failure_reason, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const settleTransactionSQL = `
	UPDATE transactions
	SET status = $1, external_reference = $2, failure_reason = $3
	WHERE id = $4 AND status IN ('pending', 'reconciling')`

const selectTransactionColumns = `
	SELECT id, seq, account_id, kind, gross_amount, fee, net_amount, status,
	       COALESCE(executor, '') as executor, destination, COALESCE(method_label, '') as method_label,
	       COALESCE(external_reference, '') as external_reference, COALESCE(failure_reason, '') as failure_reason, created_at
	FROM transactions`

// AppendTx writes a record inside the engine's database transaction so the
// log entry and the balance mutation commit as one atomic unit.
func (l *TransactionLog) AppendTx(dbTx *sql.Tx, rec *models.TransactionRecord) error {
	_, err := dbTx.Exec(insertTransactionSQL,
		rec.ID, rec.AccountID, rec.Kind, rec.GrossAmount, rec.Fee, rec.NetAmount,
		rec.Status, rec.Executor, rec.Destination, rec.MethodLabel,
		rec.ExternalReference, rec.FailureReason, rec.CreatedAt)
	return l.mapWriteError(err)
}

// Append writes a record in its own transaction. Used for failed-attempt
// audit records that must never ride the balance commit.
func (l *TransactionLog) Append(ctx context.Context, rec *models.TransactionRecord) error {
	_, err := l.db.ExecContext(ctx, insertTransactionSQL,
		rec.ID, rec.AccountID, rec.Kind, rec.GrossAmount, rec.Fee, rec.NetAmount,
		rec.Status, rec.Executor, rec.Destination, rec.MethodLabel,
		rec.ExternalReference, rec.FailureReason, rec.CreatedAt)
	return l.mapWriteError(err)
}

// SettleTx transitions a pending or reconciling record exactly once.
func (l *TransactionLog) SettleTx(dbTx *sql.Tx, id, status, externalReference, failureReason string) error {
	result, err := dbTx.Exec(settleTransactionSQL, status, externalReference, failureReason, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s already settled", id)
	}
	return nil
}

// MarkReconciling flags a withdrawal whose rail outcome is unknown. Runs in
// its own transaction: the reservation stays committed from the reserve phase.
func (l *TransactionLog) MarkReconciling(ctx context.Context, id, reason string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE transactions SET status = $1, failure_reason = $2 WHERE id = $3 AND status = 'pending'`,
		models.StatusReconciling, reason, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListByAccount returns the account's records newest first. A limit of zero
// or less returns the full history, so a caller that performed N operations
// always gets N records back.
func (l *TransactionLog) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.TransactionRecord, error) {
	query := selectTransactionColumns + ` WHERE account_id = $1 ORDER BY created_at DESC, seq DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return l.scanRecords(rows)
}

// ListUnsettled returns withdrawals without a final status older than the
// cutoff, oldest first, for the reconciler to settle. Stale pending rows are
// included: a crash between the reserve commit and the outcome being recorded
// leaves the record at pending with its reservation held, and only this sweep
// can reach it.
func (l *TransactionLog) ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]models.TransactionRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		selectTransactionColumns+` WHERE kind = 'withdrawal' AND status IN ('pending', 'reconciling') AND created_at < $1 ORDER BY created_at ASC, seq ASC LIMIT $2`,
		olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return l.scanRecords(rows)
}

func (l *TransactionLog) scanRecords(rows *sql.Rows) ([]models.TransactionRecord, error) {
	records := []models.TransactionRecord{}
	for rows.Next() {
		var rec models.TransactionRecord
		err := rows.Scan(
			&rec.ID, &rec.Seq, &rec.AccountID, &rec.Kind, &rec.GrossAmount, &rec.Fee, &rec.NetAmount,
			&rec.Status, &rec.Executor, &rec.Destination, &rec.MethodLabel,
			&rec.ExternalReference, &rec.FailureReason, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

func (l *TransactionLog) mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicateID, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
