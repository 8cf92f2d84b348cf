package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/vaultpay/backend/internal/audit"
	"github.com/vaultpay/backend/internal/events"
	"github.com/vaultpay/backend/internal/executors"
	"github.com/vaultpay/backend/internal/models"
)

// LedgerService is the sole writer of account balance state. Every mutation
// for an account runs under that account's row lock (SELECT ... FOR UPDATE)
// with an optimistic version check on the update, so at most one mutation per
// account is in flight while operations on different accounts proceed in
// parallel.
//
// Withdrawals follow a reserve -> execute -> settle protocol: the gross
// amount moves from available into pending before the external rail is
// called, so concurrent withdrawals cannot overdraw while a call is in
// flight. The balance mutation and its transaction record commit in one
// database transaction.
type LedgerService struct {
	db          *sql.DB
	txLog       *TransactionLog
	audit       *audit.Logger
	events      events.Publisher
	feeAccount  string
	currency    string
	execTimeout time.Duration
}

func NewLedgerService(db *sql.DB, txLog *TransactionLog, publisher events.Publisher) *LedgerService {
	viper.SetDefault("ledger.fee_account", "0000000001")
	viper.SetDefault("ledger.currency", "USD")
	viper.SetDefault("ledger.executor_timeout", 30*time.Second)

	return &LedgerService{
		db:          db,
		txLog:       txLog,
		audit:       audit.NewLogger(),
		events:      publisher,
		feeAccount:  viper.GetString("ledger.fee_account"),
		currency:    viper.GetString("ledger.currency"),
		execTimeout: viper.GetDuration("ledger.executor_timeout"),
	}
}

const selectAccountColumns = `
	SELECT account_id, display_name, available, pending, total_deposited, total_withdrawn, version, updated_at
	FROM accounts WHERE account_id = $1`

const createAccountSQL = `
	INSERT INTO accounts (account_id, display_name, available, pending, total_deposited, total_withdrawn, version, updated_at)
	VALUES ($1, $2, 0, 0, 0, 0, 1, NOW())
	ON CONFLICT (account_id) DO NOTHING`

const updateAccountSQL = `
	UPDATE accounts
	SET available = $1, pending = $2, total_deposited = $3, total_withdrawn = $4, version = version + 1, updated_at = NOW()
	WHERE account_id = $5 AND version = $6`

// GetBalance returns the committed balance snapshot. Accounts exist lazily:
// an unknown id reads as a zero balance without writing anything.
func (l *LedgerService) GetBalance(ctx context.Context, accountID string) (*models.AccountBalance, error) {
	var acct models.AccountBalance
	err := l.db.QueryRowContext(ctx, selectAccountColumns, accountID).Scan(
		&acct.AccountID, &acct.DisplayName, &acct.Available, &acct.Pending,
		&acct.TotalDeposited, &acct.TotalWithdrawn, &acct.Version, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.AccountBalance{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &acct, nil
}

// Deposit credits net = gross - fee to the account. When an executor is
// supplied it is invoked first; a rail failure commits no balance change and
// only a failed audit record. The fee never enters the account: available and
// totalDeposited both grow by net, keeping available == deposited - withdrawn.
func (l *LedgerService) Deposit(ctx context.Context, accountID string, gross int64, fees FeeSchedule, exec executors.TransferExecutor, destination models.Metadata, methodLabel string) (*models.TransactionRecord, error) {
	if gross <= 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive, got %d", ErrInvalidAmount, gross)
	}
	fee := fees.Fee(gross)
	if fee < 0 || fee >= gross {
		return nil, fmt.Errorf("%w: fee %d not payable from amount %d", ErrInvalidAmount, fee, gross)
	}

	rec := models.NewTransactionRecord(accountID, models.KindDeposit, gross, fee)
	rec.Destination = destination
	rec.MethodLabel = methodLabel

	if exec != nil {
		rec.Executor = exec.Name()
		res, err := l.execute(ctx, exec, rec)
		if err != nil {
			return nil, l.failBeforeCommit(ctx, rec, exec.Name(), err.Error())
		}
		if !res.Succeeded {
			rec.ExternalReference = res.ExternalReference
			return nil, l.failBeforeCommit(ctx, rec, exec.Name(), res.FailureReason)
		}
		rec.ExternalReference = res.ExternalReference
	}

	dbTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer dbTx.Rollback()

	acct, err := l.lockAccount(dbTx, accountID)
	if err != nil {
		return nil, err
	}

	rec.Status = models.StatusCompleted
	if err := l.txLog.AppendTx(dbTx, rec); err != nil {
		return nil, err
	}

	acct.Available += rec.NetAmount
	acct.TotalDeposited += rec.NetAmount
	if err := l.updateAccount(dbTx, acct); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	l.audit.LogOperation(rec.ID, accountID, "DEPOSIT", rec.NetAmount, "COMPLETED")
	l.publishCompleted(rec)
	return rec, nil
}

// Withdraw debits gross from the account and pays net to the destination
// through the executor. The gross amount is reserved under the account lock
// before the rail is called and released only on a definitive rail failure.
// An unknown outcome (timeout) keeps the reservation and marks the record
// reconciling for the reconciler to settle.
func (l *LedgerService) Withdraw(ctx context.Context, accountID string, gross int64, fees FeeSchedule, exec executors.TransferExecutor, destination models.Metadata, methodLabel string) (*models.TransactionRecord, error) {
	if exec == nil {
		return nil, errors.New("withdraw requires a transfer executor")
	}
	if gross <= 0 {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive, got %d", ErrInvalidAmount, gross)
	}
	fee := fees.Fee(gross)
	if fee < 0 || fee >= gross {
		return nil, fmt.Errorf("%w: fee %d not payable from amount %d", ErrInvalidAmount, fee, gross)
	}

	rec := models.NewTransactionRecord(accountID, models.KindWithdrawal, gross, fee)
	rec.Executor = exec.Name()
	rec.Destination = destination
	rec.MethodLabel = methodLabel

	if err := l.reserve(ctx, rec); err != nil {
		return nil, err
	}

	res, err := l.execute(ctx, exec, rec)
	if err != nil {
		// Rail outcome unknown. Keep the reservation; the reconciler
		// re-executes under the same idempotency reference and settles.
		log.Printf("[LEDGER] Withdrawal %s outcome unknown on %s: %v", rec.ID, exec.Name(), err)
		if markErr := l.txLog.MarkReconciling(ctx, rec.ID, err.Error()); markErr != nil {
			log.Printf("[LEDGER] Failed to mark %s reconciling: %v", rec.ID, markErr)
		}
		rec.Status = models.StatusReconciling
		rec.FailureReason = err.Error()
		l.audit.LogError(rec.ID, accountID, err)
		return rec, &ExecutionError{Executor: exec.Name(), Reason: err.Error(), Pending: true}
	}

	if !res.Succeeded {
		if relErr := l.release(ctx, rec, res.ExternalReference, res.FailureReason); relErr != nil {
			return rec, relErr
		}
		l.audit.LogOperation(rec.ID, accountID, "WITHDRAWAL", rec.GrossAmount, "FAILED")
		return rec, &ExecutionError{Executor: exec.Name(), Reason: res.FailureReason}
	}

	if err := l.settle(ctx, rec, res.ExternalReference); err != nil {
		return rec, err
	}

	l.audit.LogOperation(rec.ID, accountID, "WITHDRAWAL", rec.GrossAmount, "COMPLETED")
	l.publishCompleted(rec)
	return rec, nil
}

// Reconcile settles an unsettled withdrawal by re-invoking its executor with
// the original idempotency reference. Idempotency makes the retry safe: the
// rail returns the prior outcome without moving money twice. A transport
// error leaves the record for the next pass.
//
// Stale pending records are eligible alongside reconciling ones: a crash
// after the reserve commit leaves the record at pending with its reservation
// held, and reconciliation is the only way to settle or release it.
func (l *LedgerService) Reconcile(ctx context.Context, rec *models.TransactionRecord, exec executors.TransferExecutor) error {
	if rec.Kind != models.KindWithdrawal ||
		(rec.Status != models.StatusReconciling && rec.Status != models.StatusPending) {
		return fmt.Errorf("transaction %s is not awaiting reconciliation", rec.ID)
	}

	res, err := l.execute(ctx, exec, rec)
	if err != nil {
		return fmt.Errorf("reconcile %s: rail still unreachable: %w", rec.ID, err)
	}

	if !res.Succeeded {
		if err := l.release(ctx, rec, res.ExternalReference, res.FailureReason); err != nil {
			return err
		}
		l.audit.LogOperation(rec.ID, rec.AccountID, "RECONCILE_RELEASE", rec.GrossAmount, "FAILED")
		return nil
	}

	if err := l.settle(ctx, rec, res.ExternalReference); err != nil {
		return err
	}
	l.audit.LogOperation(rec.ID, rec.AccountID, "RECONCILE_COMMIT", rec.GrossAmount, "COMPLETED")
	l.publishCompleted(rec)
	return nil
}

// reserve moves gross out of available into pending and writes the pending
// record, all under the account lock. Closes the check-then-act race: the
// balance check happens against the locked row, not a stale read.
func (l *LedgerService) reserve(ctx context.Context, rec *models.TransactionRecord) error {
	dbTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer dbTx.Rollback()

	acct, err := l.lockAccount(dbTx, rec.AccountID)
	if err != nil {
		return err
	}

	if acct.Available < rec.GrossAmount {
		return &InsufficientFundsError{
			AccountID: rec.AccountID,
			Available: acct.Available,
			Requested: rec.GrossAmount,
		}
	}

	if err := l.txLog.AppendTx(dbTx, rec); err != nil {
		return err
	}

	acct.Available -= rec.GrossAmount
	acct.Pending += rec.GrossAmount
	if err := l.updateAccount(dbTx, acct); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	l.audit.LogOperation(rec.ID, rec.AccountID, "RESERVE", rec.GrossAmount, "PENDING")
	return nil
}

// settle commits a reserved withdrawal: pending drops by gross, lifetime
// withdrawn grows by gross, and the fee is credited as revenue to the system
// fee account inside the same transaction. Accounts are locked in id order to
// prevent deadlocks.
func (l *LedgerService) settle(ctx context.Context, rec *models.TransactionRecord, externalReference string) error {
	dbTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer dbTx.Rollback()

	creditFee := rec.Fee > 0 && l.feeAccount != "" && l.feeAccount != rec.AccountID

	var acct, feeAcct *models.AccountBalance
	if creditFee && l.feeAccount < rec.AccountID {
		if feeAcct, err = l.lockAccount(dbTx, l.feeAccount); err != nil {
			return err
		}
		if acct, err = l.lockAccount(dbTx, rec.AccountID); err != nil {
			return err
		}
	} else {
		if acct, err = l.lockAccount(dbTx, rec.AccountID); err != nil {
			return err
		}
		if creditFee {
			if feeAcct, err = l.lockAccount(dbTx, l.feeAccount); err != nil {
				return err
			}
		}
	}

	acct.Pending -= rec.GrossAmount
	acct.TotalWithdrawn += rec.GrossAmount
	if err := l.updateAccount(dbTx, acct); err != nil {
		return err
	}

	if creditFee {
		feeAcct.Available += rec.Fee
		feeAcct.TotalDeposited += rec.Fee
		if err := l.updateAccount(dbTx, feeAcct); err != nil {
			return err
		}
	}

	if err := l.txLog.SettleTx(dbTx, rec.ID, models.StatusCompleted, externalReference, ""); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec.Status = models.StatusCompleted
	rec.ExternalReference = externalReference
	if creditFee {
		l.audit.LogOperation(rec.ID, l.feeAccount, "FEE_CREDIT", rec.Fee, "COMPLETED")
	}
	return nil
}

// release returns a reservation to available after a definitive rail failure.
func (l *LedgerService) release(ctx context.Context, rec *models.TransactionRecord, externalReference, reason string) error {
	dbTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer dbTx.Rollback()

	acct, err := l.lockAccount(dbTx, rec.AccountID)
	if err != nil {
		return err
	}

	acct.Pending -= rec.GrossAmount
	acct.Available += rec.GrossAmount
	if err := l.updateAccount(dbTx, acct); err != nil {
		return err
	}

	if err := l.txLog.SettleTx(dbTx, rec.ID, models.StatusFailed, externalReference, reason); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rec.Status = models.StatusFailed
	rec.ExternalReference = externalReference
	rec.FailureReason = reason
	return nil
}

// failBeforeCommit persists a failed audit record for a deposit whose rail
// declined before any balance change existed.
func (l *LedgerService) failBeforeCommit(ctx context.Context, rec *models.TransactionRecord, executor, reason string) error {
	rec.Status = models.StatusFailed
	rec.FailureReason = reason
	if err := l.txLog.Append(ctx, rec); err != nil {
		log.Printf("[LEDGER] Failed to persist audit record %s: %v", rec.ID, err)
	}
	l.audit.LogError(rec.ID, rec.AccountID, errors.New(reason))
	return &ExecutionError{Executor: executor, Reason: reason}
}

func (l *LedgerService) execute(ctx context.Context, exec executors.TransferExecutor, rec *models.TransactionRecord) (*executors.Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, l.execTimeout)
	defer cancel()

	return exec.Execute(execCtx, executors.Request{
		Reference:   rec.ID,
		AccountID:   rec.AccountID,
		Amount:      rec.NetAmount,
		Currency:    l.currency,
		Destination: rec.Destination,
	})
}

// lockAccount locks the account row, creating a zero balance on first
// reference.
func (l *LedgerService) lockAccount(dbTx *sql.Tx, accountID string) (*models.AccountBalance, error) {
	acct, err := l.selectForUpdate(dbTx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := dbTx.Exec(createAccountSQL, accountID, ""); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		acct, err = l.selectForUpdate(dbTx, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return acct, nil
}

func (l *LedgerService) selectForUpdate(dbTx *sql.Tx, accountID string) (*models.AccountBalance, error) {
	var acct models.AccountBalance
	err := dbTx.QueryRow(selectAccountColumns+` FOR UPDATE`, accountID).Scan(
		&acct.AccountID, &acct.DisplayName, &acct.Available, &acct.Pending,
		&acct.TotalDeposited, &acct.TotalWithdrawn, &acct.Version, &acct.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (l *LedgerService) updateAccount(dbTx *sql.Tx, acct *models.AccountBalance) error {
	result, err := dbTx.Exec(updateAccountSQL,
		acct.Available, acct.Pending, acct.TotalDeposited, acct.TotalWithdrawn,
		acct.AccountID, acct.Version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: optimistic lock failed for account %s", ErrStoreUnavailable, acct.AccountID)
	}
	return nil
}

func (l *LedgerService) publishCompleted(rec *models.TransactionRecord) {
	if l.events == nil {
		return
	}
	event := events.TransactionCompleted{
		TransactionID: rec.ID,
		AccountID:     rec.AccountID,
		Kind:          rec.Kind,
		NetAmount:     decimal.NewFromInt(rec.NetAmount).Div(decimal.NewFromInt(100)),
		Currency:      l.currency,
		OccurredAt:    time.Now().UTC(),
	}
	if err := l.events.Publish("transaction_completed", event); err != nil {
		log.Printf("[LEDGER] Failed to publish event for %s: %v", rec.ID, err)
	}
}
