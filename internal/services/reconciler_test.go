package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/vaultpay/backend/internal/executors"
	"github.com/vaultpay/backend/internal/models"
)

func TestReconciler_RunOnce(t *testing.T) {
	t.Run("settles a withdrawal whose rail succeeded during the outage", func(t *testing.T) {
		ledger, mock, db := newTestLedger(t)
		defer db.Close()

		exec := &stubExecutor{
			name:   "stub",
			result: &executors.Result{ExternalReference: "ext_5", Succeeded: true},
		}
		txLog := NewTransactionLog(db)
		reconciler := NewReconciler(ledger, txLog, executors.NewRegistry(exec))

		mock.ExpectQuery(`FROM transactions WHERE kind = 'withdrawal' AND status IN \('pending', 'reconciling'\)`).
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow("tx-7", 7, "1234567890", models.KindWithdrawal, 4000, 0, 4000, models.StatusReconciling,
					"stub", nil, "", "", "request timed out", time.Now().Add(-10*time.Minute)))

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountRegex).
			WithArgs("1234567890").
			WillReturnRows(sqlmock.NewRows(accountColumns).
				AddRow("1234567890", "Jane Doe", 6000, 4000, 10000, 0, 2, time.Now()))
		mock.ExpectExec(updateAccountRegex).
			WithArgs(int64(6000), int64(0), int64(10000), int64(4000), "1234567890", 2).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(settleTxRegex).
			WithArgs(models.StatusCompleted, "ext_5", "", "tx-7").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		settled, err := reconciler.RunOnce(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, settled)
		assert.Equal(t, "tx-7", exec.lastRef)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("settles a stale pending withdrawal orphaned by a crash", func(t *testing.T) {
		ledger, mock, db := newTestLedger(t)
		defer db.Close()

		exec := &stubExecutor{
			name:   "stub",
			result: &executors.Result{ExternalReference: "ext_6", Succeeded: true},
		}
		txLog := NewTransactionLog(db)
		reconciler := NewReconciler(ledger, txLog, executors.NewRegistry(exec))

		// Reserve committed, then the process died before the rail outcome
		// was recorded: the record is still pending with the gross amount
		// held in the account's pending column.
		mock.ExpectQuery(`FROM transactions WHERE kind = 'withdrawal' AND status IN \('pending', 'reconciling'\)`).
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow("tx-10", 10, "1234567890", models.KindWithdrawal, 2000, 0, 2000, models.StatusPending,
					"stub", nil, "", "", "", time.Now().Add(-20*time.Minute)))

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountRegex).
			WithArgs("1234567890").
			WillReturnRows(sqlmock.NewRows(accountColumns).
				AddRow("1234567890", "Jane Doe", 8000, 2000, 10000, 0, 2, time.Now()))
		mock.ExpectExec(updateAccountRegex).
			WithArgs(int64(8000), int64(0), int64(10000), int64(2000), "1234567890", 2).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(settleTxRegex).
			WithArgs(models.StatusCompleted, "ext_6", "", "tx-10").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		settled, err := reconciler.RunOnce(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, settled)
		assert.Equal(t, "tx-10", exec.lastRef)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreachable rail leaves the record for the next sweep", func(t *testing.T) {
		ledger, mock, db := newTestLedger(t)
		defer db.Close()

		exec := &stubExecutor{name: "stub", err: errors.New("connection refused")}
		txLog := NewTransactionLog(db)
		reconciler := NewReconciler(ledger, txLog, executors.NewRegistry(exec))

		mock.ExpectQuery(`FROM transactions WHERE kind = 'withdrawal' AND status IN \('pending', 'reconciling'\)`).
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow("tx-8", 8, "1234567890", models.KindWithdrawal, 4000, 0, 4000, models.StatusReconciling,
					"stub", nil, "", "", "request timed out", time.Now().Add(-10*time.Minute)))

		settled, err := reconciler.RunOnce(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 0, settled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown executor is skipped", func(t *testing.T) {
		ledger, mock, db := newTestLedger(t)
		defer db.Close()

		txLog := NewTransactionLog(db)
		reconciler := NewReconciler(ledger, txLog, executors.NewRegistry())

		mock.ExpectQuery(`FROM transactions WHERE kind = 'withdrawal' AND status IN \('pending', 'reconciling'\)`).
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow("tx-9", 9, "1234567890", models.KindWithdrawal, 4000, 0, 4000, models.StatusReconciling,
					"decommissioned", nil, "", "", "request timed out", time.Now().Add(-10*time.Minute)))

		settled, err := reconciler.RunOnce(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 0, settled)
	})

	t.Run("nothing to reconcile", func(t *testing.T) {
		ledger, mock, db := newTestLedger(t)
		defer db.Close()

		txLog := NewTransactionLog(db)
		reconciler := NewReconciler(ledger, txLog, executors.NewRegistry())

		mock.ExpectQuery(`FROM transactions WHERE kind = 'withdrawal' AND status IN \('pending', 'reconciling'\)`).
			WillReturnRows(sqlmock.NewRows(transactionColumns))

		settled, err := reconciler.RunOnce(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 0, settled)
	})
}
