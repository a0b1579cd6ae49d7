package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"go.uber.org/zap"
)

const transactionColumns = `
	id, portfolio_id, asset_id, type, quantity, price_per_unit, fee_amount,
	total_amount, notes, executed_at, created_at
`

// CreateTransaction inserts a transaction record.
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.PortfolioID, tx.AssetID, tx.Type, tx.Quantity,
		tx.PricePerUnit, tx.FeeAmount, tx.TotalAmount, tx.Notes,
		tx.ExecutedAt, tx.CreatedAt,
	)
	if err != nil {
		logger.Log.Error("Failed to create transaction",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// GetTransaction retrieves one transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", apperrors.ErrNotFound, id)
		}
		logger.Log.Error("Failed to retrieve transaction",
			zap.String("transaction_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	return tx, nil
}

// UpdateTransaction rewrites a transaction's fields.
func (s *Store) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		UPDATE transactions
		SET type = $1, quantity = $2, price_per_unit = $3, fee_amount = $4,
		    total_amount = $5, notes = $6, executed_at = $7
		WHERE id = $8
	`

	_, err := s.db.ExecContext(ctx, query,
		tx.Type, tx.Quantity, tx.PricePerUnit, tx.FeeAmount,
		tx.TotalAmount, tx.Notes, tx.ExecutedAt, tx.ID,
	)
	if err != nil {
		logger.Log.Error("Failed to update transaction",
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// DeleteTransaction removes a transaction by id.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		logger.Log.Error("Failed to delete transaction",
			zap.String("transaction_id", id),
			zap.Error(err),
		)
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: transaction %s", apperrors.ErrNotFound, id)
	}

	return nil
}

// ListTransactionsByPair retrieves the full ordered history for one
// (portfolio, asset) pair. Oldest first; this is the replay order the
// holdings ledger depends on.
func (s *Store) ListTransactionsByPair(ctx context.Context, portfolioID, assetID string) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1 AND asset_id = $2
		ORDER BY executed_at ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, portfolioID, assetID)
	if err != nil {
		logger.Log.Error("Failed to query transactions by pair",
			zap.String("portfolio_id", portfolioID),
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListTransactionsByPortfolio retrieves every transaction in a portfolio,
// oldest first.
func (s *Store) ListTransactionsByPortfolio(ctx context.Context, portfolioID string) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE portfolio_id = $1
		ORDER BY executed_at ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		logger.Log.Error("Failed to query transactions by portfolio",
			zap.String("portfolio_id", portfolioID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var notes sql.NullString

	err := row.Scan(
		&tx.ID, &tx.PortfolioID, &tx.AssetID, &tx.Type, &tx.Quantity,
		&tx.PricePerUnit, &tx.FeeAmount, &tx.TotalAmount, &notes,
		&tx.ExecutedAt, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if notes.Valid {
		tx.Notes = notes.String
	}

	return &tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*models.Transaction, error) {
	var txs []*models.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return txs, nil
}
