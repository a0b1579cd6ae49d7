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

// CreatePortfolio inserts a portfolio for a user.
func (s *Store) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	query := `
		INSERT INTO portfolios (id, user_id, name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.Name, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		logger.Log.Error("Failed to create portfolio",
			zap.String("portfolio_id", p.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// GetPortfolio retrieves one portfolio by id.
func (s *Store) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	query := `
		SELECT id, user_id, name, total_value, total_cost, total_profit_loss,
		       total_profit_loss_percentage, is_active, created_at, updated_at
		FROM portfolios
		WHERE id = $1
	`

	var p models.Portfolio
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.TotalValue, &p.TotalCost,
		&p.TotalProfitLoss, &p.TotalProfitLossPct, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: portfolio %s", apperrors.ErrNotFound, id)
		}
		logger.Log.Error("Failed to retrieve portfolio",
			zap.String("portfolio_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	return &p, nil
}

// ListPortfoliosByUser retrieves a user's active portfolios.
func (s *Store) ListPortfoliosByUser(ctx context.Context, userID string) ([]*models.Portfolio, error) {
	query := `
		SELECT id, user_id, name, total_value, total_cost, total_profit_loss,
		       total_profit_loss_percentage, is_active, created_at, updated_at
		FROM portfolios
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		logger.Log.Error("Failed to query portfolios by user",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	var portfolios []*models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Name, &p.TotalValue, &p.TotalCost,
			&p.TotalProfitLoss, &p.TotalProfitLossPct, &p.IsActive,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		portfolios = append(portfolios, &p)
	}

	return portfolios, rows.Err()
}

// UpdatePortfolioTotals rewrites the cached aggregate fields.
func (s *Store) UpdatePortfolioTotals(ctx context.Context, p *models.Portfolio) error {
	query := `
		UPDATE portfolios
		SET total_value = $1, total_cost = $2, total_profit_loss = $3,
		    total_profit_loss_percentage = $4, updated_at = $5
		WHERE id = $6
	`

	_, err := s.db.ExecContext(ctx, query,
		p.TotalValue, p.TotalCost, p.TotalProfitLoss,
		p.TotalProfitLossPct, p.UpdatedAt, p.ID,
	)
	if err != nil {
		logger.Log.Error("Failed to update portfolio totals",
			zap.String("portfolio_id", p.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// VerifyOwnership reports whether the portfolio belongs to the user.
func (s *Store) VerifyOwnership(ctx context.Context, portfolioID, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM portfolios WHERE id = $1 AND user_id = $2)`

	var owned bool
	if err := s.db.QueryRowContext(ctx, query, portfolioID, userID).Scan(&owned); err != nil {
		logger.Log.Error("Failed to verify portfolio ownership", zap.Error(err))
		return false, err
	}

	return owned, nil
}

// GetHolding retrieves the holding for one (portfolio, asset) pair.
func (s *Store) GetHolding(ctx context.Context, portfolioID, assetID string) (*models.Holding, error) {
	query := `
		SELECT portfolio_id, asset_id, quantity, average_buy_price, total_cost, updated_at
		FROM holdings
		WHERE portfolio_id = $1 AND asset_id = $2
	`

	var h models.Holding
	err := s.db.QueryRowContext(ctx, query, portfolioID, assetID).Scan(
		&h.PortfolioID, &h.AssetID, &h.Quantity, &h.AverageBuyPrice,
		&h.TotalCost, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: holding %s/%s", apperrors.ErrNotFound, portfolioID, assetID)
		}
		return nil, err
	}

	return &h, nil
}

// UpsertHolding writes the recomputed holding for a (portfolio, asset) pair.
func (s *Store) UpsertHolding(ctx context.Context, h *models.Holding) error {
	query := `
		INSERT INTO holdings (portfolio_id, asset_id, quantity, average_buy_price, total_cost, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (portfolio_id, asset_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    average_buy_price = EXCLUDED.average_buy_price,
		    total_cost = EXCLUDED.total_cost,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		h.PortfolioID, h.AssetID, h.Quantity, h.AverageBuyPrice,
		h.TotalCost, h.UpdatedAt,
	)
	if err != nil {
		logger.Log.Error("Failed to upsert holding",
			zap.String("portfolio_id", h.PortfolioID),
			zap.String("asset_id", h.AssetID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// DeleteHolding removes the holding for a (portfolio, asset) pair. Deleting
// an absent holding is not an error; recompute calls this unconditionally
// when quantity reaches zero.
func (s *Store) DeleteHolding(ctx context.Context, portfolioID, assetID string) error {
	query := `DELETE FROM holdings WHERE portfolio_id = $1 AND asset_id = $2`

	if _, err := s.db.ExecContext(ctx, query, portfolioID, assetID); err != nil {
		logger.Log.Error("Failed to delete holding",
			zap.String("portfolio_id", portfolioID),
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// ListHoldingsByPortfolio retrieves every holding in a portfolio.
func (s *Store) ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]*models.Holding, error) {
	query := `
		SELECT portfolio_id, asset_id, quantity, average_buy_price, total_cost, updated_at
		FROM holdings
		WHERE portfolio_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, portfolioID)
	if err != nil {
		logger.Log.Error("Failed to query holdings",
			zap.String("portfolio_id", portfolioID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	var holdings []*models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(
			&h.PortfolioID, &h.AssetID, &h.Quantity, &h.AverageBuyPrice,
			&h.TotalCost, &h.UpdatedAt,
		); err != nil {
			return nil, err
		}
		holdings = append(holdings, &h)
	}

	return holdings, rows.Err()
}
