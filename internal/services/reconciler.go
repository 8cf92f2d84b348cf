package services

import (
	"context"
	"log"
	"time"

	"github.com/spf13/viper"
	"github.com/vaultpay/backend/internal/executors"
)

// Reconciler sweeps withdrawals without a final status, both reconciling
// records and pending ones orphaned by a crash, and settles them by
// re-invoking their rail with the original idempotency reference. Records
// whose rail is still unreachable stay put for the next pass.
type Reconciler struct {
	ledger    *LedgerService
	txLog     *TransactionLog
	registry  *executors.Registry
	interval  time.Duration
	minAge    time.Duration
	batchSize int
}

func NewReconciler(ledger *LedgerService, txLog *TransactionLog, registry *executors.Registry) *Reconciler {
	viper.SetDefault("reconciler.interval", time.Minute)
	// min_age must exceed ledger.executor_timeout so withdrawals still
	// executing on their rail are never swept as stale pending.
	viper.SetDefault("reconciler.min_age", 2*time.Minute)
	viper.SetDefault("reconciler.batch_size", 50)

	return &Reconciler{
		ledger:    ledger,
		txLog:     txLog,
		registry:  registry,
		interval:  viper.GetDuration("reconciler.interval"),
		minAge:    viper.GetDuration("reconciler.min_age"),
		batchSize: viper.GetInt("reconciler.batch_size"),
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	log.Printf("[RECONCILER] Starting with interval %s, min age %s", r.interval, r.minAge)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[RECONCILER] Stopped")
			return
		case <-ticker.C:
			if settled, err := r.RunOnce(ctx); err != nil {
				log.Printf("[RECONCILER] Sweep failed: %v", err)
			} else if settled > 0 {
				log.Printf("[RECONCILER] Settled %d transaction(s)", settled)
			}
		}
	}
}

// RunOnce processes one batch and reports how many records reached a final
// status.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.minAge)
	records, err := r.txLog.ListUnsettled(ctx, cutoff, r.batchSize)
	if err != nil {
		return 0, err
	}

	settled := 0
	for i := range records {
		rec := &records[i]

		exec, err := r.registry.Get(rec.Executor)
		if err != nil {
			log.Printf("[RECONCILER] Transaction %s references unknown executor %q, skipping", rec.ID, rec.Executor)
			continue
		}

		if err := r.ledger.Reconcile(ctx, rec, exec); err != nil {
			log.Printf("[RECONCILER] Transaction %s not settled: %v", rec.ID, err)
			continue
		}
		settled++
	}

	return settled, nil
}
