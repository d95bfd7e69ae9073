// Package expirer fails payment transactions the provider never answered.
package expirer

import (
	"context"
	"time"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	batchSize     = 1000
	workersNumber = 10
)

type Transactions interface {
	GetStaleTransactions(context.Context, time.Time, int) ([]entities.Transaction, error)
}

type Gateway interface {
	CheckTimeout(ctx context.Context, txn entities.Transaction) (entities.Transaction, error)
}

type Expirer struct {
	transactions Transactions
	gateway      Gateway
	interval     time.Duration
	timeout      time.Duration

	now func() time.Time
}

func NewExpirer(transactions Transactions, gateway Gateway, interval time.Duration, timeout time.Duration) *Expirer {
	return &Expirer{
		transactions: transactions,
		gateway:      gateway,
		interval:     interval,
		timeout:      timeout,
		now:          time.Now,
	}
}

func (e *Expirer) Start(ctx context.Context) error {
	if e.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				zap.L().Info("error expire transactions", zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep fails one batch of stale transactions and returns how many it
// looked at.
func (e *Expirer) Sweep(ctx context.Context) (int, error) {
	txns, err := e.transactions.GetStaleTransactions(ctx, e.now().Add(-e.timeout), batchSize)
	if err != nil {
		return 0, err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workersNumber)

	for _, txn := range txns {
		txn := txn

		eg.Go(func() error {
			if _, err := e.gateway.CheckTimeout(ctx, txn); err != nil {
				zap.L().Info("error expire transaction", zap.Int64("transaction_id", txn.ID), zap.Error(err))
			}

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return 0, err
	}

	if len(txns) > 0 {
		zap.L().Info("expired stale transactions", zap.Int("count", len(txns)))
	}

	return len(txns), nil
}
