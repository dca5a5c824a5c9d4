package parsers

import (
	"context"

	"golang.org/x/sync/errgroup"

	"cashflow-forecast-service/internal/models"
	"cashflow-forecast-service/pkg/logger"
)

// ParseTransactionsStream hands valid transactions to callback in batches of
// at most batchSize, so large files never sit in memory at once. A callback
// error stops the parse and is returned.
func (tp *TransactionParser) ParseTransactionsStream(ctx context.Context, filePath string, batchSize int,
	callback func(context.Context, []models.Transaction) error) (*ParseStats, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	batch := make([]models.Transaction, 0, batchSize)
	stats, err := tp.parse(ctx, filePath, func(t models.Transaction) error {
		batch = append(batch, t)
		if len(batch) < batchSize {
			return nil
		}
		if err := callback(ctx, batch); err != nil {
			return err
		}
		batch = make([]models.Transaction, 0, batchSize)
		return nil
	})
	if err != nil {
		return stats, err
	}
	if len(batch) > 0 {
		if err := callback(ctx, batch); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// FileResult is the outcome of parsing one file of a multi-file batch
type FileResult struct {
	FilePath     string
	Transactions []models.Transaction
	Stats        *ParseStats
}

// ParseTransactionFiles parses several transaction files concurrently, at
// most maxConcurrency at a time. Results keep the order of filePaths. The
// first file that fails cancels the rest.
func (tp *TransactionParser) ParseTransactionFiles(ctx context.Context, filePaths []string, maxConcurrency int) ([]FileResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	results := make([]FileResult, len(filePaths))
	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "parse_transaction_files",
		Total:     int64(len(filePaths)),
		Logger:    tp.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, path := range filePaths {
		i, path := i, path
		g.Go(func() error {
			txns, stats, err := tp.ParseTransactions(gctx, path)
			progress.Done(err != nil)
			if err != nil {
				return err
			}

			results[i] = FileResult{FilePath: path, Transactions: txns, Stats: stats}
			return nil
		})
	}

	err := g.Wait()
	progress.Complete(err)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// MergeResults concatenates the transactions of every file
func MergeResults(results []FileResult) []models.Transaction {
	var n int
	for _, r := range results {
		n += len(r.Transactions)
	}
	all := make([]models.Transaction, 0, n)
	for _, r := range results {
		all = append(all, r.Transactions...)
	}
	return all
}
