// Package ledger recomputes portfolio holdings from transaction history.
// The replay is a pure function of the ordered transaction list; the engine
// wraps it with store access and the dependent portfolio-totals refresh.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"go.uber.org/zap"
)

// Quantities this close to zero count as an exhausted position.
const quantityEpsilon = 1e-9

// Recompute replays the transactions for one (portfolio, asset) pair in
// timestamp order and derives the holding. It returns nil when the final
// quantity is zero: the holding is deleted, not retained at zero.
//
// A SELL exceeding the currently held quantity is rejected with
// ErrValidation. Short positions are not supported; the transaction that
// would create one must be fixed or removed.
func Recompute(portfolioID, assetID string, txs []*models.Transaction) (*models.Holding, error) {
	ordered := make([]*models.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
	})

	var quantity, totalCost float64
	var totalBuyQuantity, totalBuyCost float64

	for _, tx := range ordered {
		switch tx.Type {
		case models.TransactionBuy:
			quantity += tx.Quantity
			totalBuyQuantity += tx.Quantity
			cost := tx.Quantity*tx.PricePerUnit + tx.FeeAmount
			totalCost += cost
			totalBuyCost += cost
		case models.TransactionSell:
			if tx.Quantity > quantity+quantityEpsilon {
				return nil, fmt.Errorf("%w: sell of %f exceeds held quantity %f (transaction %s)",
					apperrors.ErrValidation, tx.Quantity, quantity, tx.ID)
			}
			// Cost basis shrinks pro-rata with the quantity sold, not by
			// FIFO/LIFO lot matching.
			sellRatio := tx.Quantity / quantity
			totalCost -= totalCost * sellRatio
			quantity -= tx.Quantity
		default:
			return nil, fmt.Errorf("%w: unknown transaction type %q", apperrors.ErrValidation, tx.Type)
		}
	}

	if quantity <= quantityEpsilon {
		return nil, nil
	}

	averageBuyPrice := 0.0
	if totalBuyQuantity > 0 {
		averageBuyPrice = totalBuyCost / totalBuyQuantity
	}

	return &models.Holding{
		PortfolioID:     portfolioID,
		AssetID:         assetID,
		Quantity:        quantity,
		AverageBuyPrice: averageBuyPrice,
		TotalCost:       totalCost,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

// Store is the persistence surface the engine needs.
type Store interface {
	ListTransactionsByPair(ctx context.Context, portfolioID, assetID string) ([]*models.Transaction, error)
	UpsertHolding(ctx context.Context, h *models.Holding) error
	DeleteHolding(ctx context.Context, portfolioID, assetID string) error
	ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]*models.Holding, error)
	GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error)
	UpdatePortfolioTotals(ctx context.Context, p *models.Portfolio) error
	GetAssetByID(ctx context.Context, id string) (*models.TrackedAsset, error)
}

// Engine applies Recompute through the store and keeps portfolio aggregates
// in step.
type Engine struct {
	store Store
}

// NewEngine builds a ledger engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// RecomputePair re-derives the holding for one (portfolio, asset) pair from
// its full transaction history and then refreshes the portfolio totals as a
// dependent operation. It returns the written holding, or nil when the
// position is exhausted and the holding row was deleted.
func (e *Engine) RecomputePair(ctx context.Context, portfolioID, assetID string) (*models.Holding, error) {
	txs, err := e.store.ListTransactionsByPair(ctx, portfolioID, assetID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	holding, err := Recompute(portfolioID, assetID, txs)
	if err != nil {
		return nil, err
	}

	if holding == nil {
		if err := e.store.DeleteHolding(ctx, portfolioID, assetID); err != nil {
			return nil, fmt.Errorf("delete exhausted holding: %w", err)
		}
	} else {
		if err := e.store.UpsertHolding(ctx, holding); err != nil {
			return nil, fmt.Errorf("write holding: %w", err)
		}
	}

	if err := e.RefreshTotals(ctx, portfolioID); err != nil {
		return nil, err
	}

	logger.Log.Info("Recomputed holding",
		zap.String("portfolio_id", portfolioID),
		zap.String("asset_id", assetID),
		zap.Bool("deleted", holding == nil),
	)

	return holding, nil
}

// RefreshTotals re-sums current value and cost basis across every holding in
// the portfolio and writes the cached aggregates.
func (e *Engine) RefreshTotals(ctx context.Context, portfolioID string) error {
	portfolio, err := e.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return err
	}

	holdings, err := e.store.ListHoldingsByPortfolio(ctx, portfolioID)
	if err != nil {
		return err
	}

	var totalValue, totalCost float64
	for _, h := range holdings {
		asset, err := e.store.GetAssetByID(ctx, h.AssetID)
		if err != nil {
			return fmt.Errorf("price lookup for holding: %w", err)
		}
		totalValue += h.Quantity * asset.CurrentPrice
		totalCost += h.TotalCost
	}

	portfolio.TotalValue = totalValue
	portfolio.TotalCost = totalCost
	portfolio.TotalProfitLoss = totalValue - totalCost
	if totalCost > 0 {
		portfolio.TotalProfitLossPct = (portfolio.TotalProfitLoss / totalCost) * 100
	} else {
		portfolio.TotalProfitLossPct = 0
	}
	portfolio.UpdatedAt = time.Now().UTC()

	return e.store.UpdatePortfolioTotals(ctx, portfolio)
}
