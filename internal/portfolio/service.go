// Package portfolio owns portfolio and transaction lifecycle. Every
// transaction mutation funnels through the ledger recompute so holdings are
// always a pure function of the surviving transaction history.
package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/ledger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the persistence surface the service needs.
type Store interface {
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error)
	ListPortfoliosByUser(ctx context.Context, userID string) ([]*models.Portfolio, error)
	ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]*models.Holding, error)

	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactionsByPortfolio(ctx context.Context, portfolioID string) ([]*models.Transaction, error)

	GetAssetBySymbol(ctx context.Context, symbol string) (*models.TrackedAsset, error)
	GetAssetByID(ctx context.Context, id string) (*models.TrackedAsset, error)
}

// Notifier pushes portfolio change events to a user's live connections.
type Notifier interface {
	SendPortfolioUpdate(userID, portfolioID string, data map[string]any)
}

// Service coordinates portfolio CRUD, transaction mutations and the ledger
// recompute they trigger.
type Service struct {
	store    Store
	ledger   *ledger.Engine
	notifier Notifier
}

// NewService builds the portfolio service. notifier may be nil.
func NewService(store Store, eng *ledger.Engine, notifier Notifier) *Service {
	return &Service{store: store, ledger: eng, notifier: notifier}
}

// CreatePortfolio opens a new empty portfolio for the user.
func (s *Service) CreatePortfolio(ctx context.Context, userID, name string) (*models.Portfolio, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: portfolio name is required", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	p := &models.Portfolio{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePortfolio(ctx, p); err != nil {
		return nil, err
	}

	logger.Log.Info("Created portfolio",
		zap.String("portfolio_id", p.ID),
		zap.String("user_id", userID),
	)
	return p, nil
}

// GetPortfolio returns one portfolio, enforcing ownership.
func (s *Service) GetPortfolio(ctx context.Context, userID, portfolioID string) (*models.Portfolio, error) {
	return s.owned(ctx, userID, portfolioID)
}

// ListPortfolios returns all of the user's portfolios.
func (s *Service) ListPortfolios(ctx context.Context, userID string) ([]*models.Portfolio, error) {
	return s.store.ListPortfoliosByUser(ctx, userID)
}

// HoldingView is a holding joined with its asset's live market data.
type HoldingView struct {
	models.Holding
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	CurrentPrice     float64 `json:"current_price"`
	CurrentValue     float64 `json:"current_value"`
	ProfitLoss       float64 `json:"profit_loss"`
	ProfitLossPct    float64 `json:"profit_loss_percentage"`
	PriceChangePct24 float64 `json:"price_change_percentage_24h"`
}

// ListHoldings returns the portfolio's holdings priced at current market
// values.
func (s *Service) ListHoldings(ctx context.Context, userID, portfolioID string) ([]*HoldingView, error) {
	if _, err := s.owned(ctx, userID, portfolioID); err != nil {
		return nil, err
	}

	holdings, err := s.store.ListHoldingsByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	views := make([]*HoldingView, 0, len(holdings))
	for _, h := range holdings {
		asset, err := s.store.GetAssetByID(ctx, h.AssetID)
		if err != nil {
			return nil, fmt.Errorf("asset lookup for holding: %w", err)
		}
		v := &HoldingView{
			Holding:          *h,
			Symbol:           asset.Symbol,
			Name:             asset.Name,
			CurrentPrice:     asset.CurrentPrice,
			CurrentValue:     h.Quantity * asset.CurrentPrice,
			PriceChangePct24: asset.PriceChangePct24h,
		}
		v.ProfitLoss = v.CurrentValue - h.TotalCost
		if h.TotalCost > 0 {
			v.ProfitLossPct = v.ProfitLoss / h.TotalCost * 100
		}
		views = append(views, v)
	}
	return views, nil
}

// TransactionParams carries the caller-supplied fields of a transaction.
type TransactionParams struct {
	Symbol       string                 `json:"symbol"`
	Type         models.TransactionType `json:"type"`
	Quantity     float64                `json:"quantity"`
	PricePerUnit float64                `json:"price_per_unit"`
	FeeAmount    float64                `json:"fee_amount"`
	Notes        string                 `json:"notes"`
	ExecutedAt   *time.Time             `json:"executed_at"`
}

func (p *TransactionParams) validate() error {
	switch p.Type {
	case models.TransactionBuy, models.TransactionSell:
	default:
		return fmt.Errorf("%w: type must be BUY or SELL", apperrors.ErrValidation)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", apperrors.ErrValidation)
	}
	if p.PricePerUnit <= 0 {
		return fmt.Errorf("%w: price_per_unit must be positive", apperrors.ErrValidation)
	}
	if p.FeeAmount < 0 {
		return fmt.Errorf("%w: fee_amount must not be negative", apperrors.ErrValidation)
	}
	return nil
}

// totalAmount is the cash delta: cost including fee for buys, net proceeds
// after fee for sells.
func (p *TransactionParams) totalAmount() float64 {
	gross := p.Quantity * p.PricePerUnit
	if p.Type == models.TransactionBuy {
		return gross + p.FeeAmount
	}
	return gross - p.FeeAmount
}

// AddTransaction records a transaction and recomputes the affected holding.
// A sell exceeding the held quantity is rejected before anything is written.
func (s *Service) AddTransaction(ctx context.Context, userID, portfolioID string, params TransactionParams) (*models.Transaction, error) {
	if _, err := s.owned(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	asset, err := s.store.GetAssetBySymbol(ctx, params.Symbol)
	if err != nil {
		return nil, err
	}

	executedAt := time.Now().UTC()
	if params.ExecutedAt != nil {
		executedAt = params.ExecutedAt.UTC()
	}

	tx := &models.Transaction{
		ID:           uuid.New().String(),
		PortfolioID:  portfolioID,
		AssetID:      asset.ID,
		Type:         params.Type,
		Quantity:     params.Quantity,
		PricePerUnit: params.PricePerUnit,
		FeeAmount:    params.FeeAmount,
		TotalAmount:  params.totalAmount(),
		Notes:        params.Notes,
		ExecutedAt:   executedAt,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.rejectOversell(ctx, tx, ""); err != nil {
		return nil, err
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	if err := s.recomputeAndNotify(ctx, userID, portfolioID, asset.ID); err != nil {
		return nil, err
	}

	logger.Log.Info("Recorded transaction",
		zap.String("transaction_id", tx.ID),
		zap.String("portfolio_id", portfolioID),
		zap.String("symbol", asset.Symbol),
		zap.String("type", string(tx.Type)),
	)
	return tx, nil
}

// UpdateTransaction replaces the mutable fields of a transaction and replays
// the affected holding. The asset of a transaction cannot change; delete and
// re-add instead.
func (s *Service) UpdateTransaction(ctx context.Context, userID, transactionID string, params TransactionParams) (*models.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, userID, tx.PortfolioID); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	tx.Type = params.Type
	tx.Quantity = params.Quantity
	tx.PricePerUnit = params.PricePerUnit
	tx.FeeAmount = params.FeeAmount
	tx.TotalAmount = params.totalAmount()
	tx.Notes = params.Notes
	if params.ExecutedAt != nil {
		tx.ExecutedAt = params.ExecutedAt.UTC()
	}

	if err := s.rejectOversell(ctx, tx, tx.ID); err != nil {
		return nil, err
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	if err := s.recomputeAndNotify(ctx, userID, tx.PortfolioID, tx.AssetID); err != nil {
		return nil, err
	}
	return tx, nil
}

// DeleteTransaction removes a transaction and replays the affected holding.
// Deletion is rejected when the remaining history would oversell.
func (s *Service) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if _, err := s.owned(ctx, userID, tx.PortfolioID); err != nil {
		return err
	}

	remaining, err := s.historyWithout(ctx, tx.PortfolioID, tx.AssetID, tx.ID)
	if err != nil {
		return err
	}
	if _, err := ledger.Recompute(tx.PortfolioID, tx.AssetID, remaining); err != nil {
		return fmt.Errorf("deleting this transaction would break the position: %w", err)
	}

	if err := s.store.DeleteTransaction(ctx, transactionID); err != nil {
		return err
	}
	return s.recomputeAndNotify(ctx, userID, tx.PortfolioID, tx.AssetID)
}

// ListTransactions returns the portfolio's transactions in execution order.
func (s *Service) ListTransactions(ctx context.Context, userID, portfolioID string) ([]*models.Transaction, error) {
	if _, err := s.owned(ctx, userID, portfolioID); err != nil {
		return nil, err
	}
	return s.store.ListTransactionsByPortfolio(ctx, portfolioID)
}

// rejectOversell dry-runs the replay with the candidate transaction in place
// so an invalid sell never reaches the store. excludeID drops the stored
// version of a transaction being updated.
func (s *Service) rejectOversell(ctx context.Context, candidate *models.Transaction, excludeID string) error {
	history, err := s.historyWithout(ctx, candidate.PortfolioID, candidate.AssetID, excludeID)
	if err != nil {
		return err
	}
	history = append(history, candidate)
	_, err = ledger.Recompute(candidate.PortfolioID, candidate.AssetID, history)
	return err
}

func (s *Service) historyWithout(ctx context.Context, portfolioID, assetID, excludeID string) ([]*models.Transaction, error) {
	all, err := s.store.ListTransactionsByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	kept := make([]*models.Transaction, 0, len(all))
	for _, tx := range all {
		if tx.AssetID != assetID || tx.ID == excludeID {
			continue
		}
		kept = append(kept, tx)
	}
	return kept, nil
}

func (s *Service) recomputeAndNotify(ctx context.Context, userID, portfolioID, assetID string) error {
	holding, err := s.ledger.RecomputePair(ctx, portfolioID, assetID)
	if err != nil {
		return err
	}

	if s.notifier != nil {
		p, err := s.store.GetPortfolio(ctx, portfolioID)
		if err != nil {
			logger.Log.Warn("Portfolio reload for notification failed", zap.Error(err))
			return nil
		}
		data := map[string]any{
			"totalValue":                p.TotalValue,
			"totalProfitLoss":           p.TotalProfitLoss,
			"totalProfitLossPercentage": p.TotalProfitLossPct,
		}
		if holding != nil {
			data["holding"] = holding
		}
		s.notifier.SendPortfolioUpdate(userID, portfolioID, data)
	}
	return nil
}

func (s *Service) owned(ctx context.Context, userID, portfolioID string) (*models.Portfolio, error) {
	p, err := s.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		// Ownership failures look like absence so portfolio IDs cannot be
		// probed.
		return nil, fmt.Errorf("%w: portfolio %s", apperrors.ErrNotFound, portfolioID)
	}
	return p, nil
}
