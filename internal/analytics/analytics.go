// Package analytics aggregates portfolio performance summaries. The ROI
// time series approximates historical portfolio value by scaling the
// current value with the ratio of capital invested to date over total
// invested; it is an estimate, not a replay of historical prices.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"
)

// Store is the persistence surface for analytics reads.
type Store interface {
	ListPortfoliosByUser(ctx context.Context, userID string) ([]*models.Portfolio, error)
	ListTransactionsByPortfolio(ctx context.Context, portfolioID string) ([]*models.Transaction, error)
	ListHoldingsByPortfolio(ctx context.Context, portfolioID string) ([]*models.Holding, error)
	GetAssetByID(ctx context.Context, id string) (*models.TrackedAsset, error)
}

// Service computes read-only performance aggregates.
type Service struct {
	store Store
}

// NewService builds an analytics service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// DashboardSummary is the top-level account overview.
type DashboardSummary struct {
	TotalPortfolios      int     `json:"totalPortfolios"`
	TotalTransactions    int     `json:"totalTransactions"`
	UniqueAssets         int     `json:"uniqueAssets"`
	TotalCurrentValue    float64 `json:"totalCurrentValue"`
	TotalInvested        float64 `json:"totalInvested"`
	TotalProfitLoss      float64 `json:"totalProfitLoss"`
	TotalRoiPercentage   float64 `json:"totalRoiPercentage"`
	BestPerformerSymbol  string  `json:"bestPerformerSymbol"`
	BestPerformerChange  float64 `json:"bestPerformerChange24h"`
	WorstPerformerSymbol string  `json:"worstPerformerSymbol"`
	WorstPerformerChange float64 `json:"worstPerformerChange24h"`
}

// Dashboard summarizes everything a user holds across active portfolios.
func (s *Service) Dashboard(ctx context.Context, userID string) (*DashboardSummary, error) {
	portfolios, err := s.store.ListPortfoliosByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{TotalPortfolios: len(portfolios)}

	uniqueAssets := make(map[string]struct{})
	var totalValue, totalInvested, totalWithdrawn float64
	bestChange := math.Inf(-1)
	worstChange := math.Inf(1)

	for _, p := range portfolios {
		txs, err := s.store.ListTransactionsByPortfolio(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		summary.TotalTransactions += len(txs)
		for _, tx := range txs {
			if tx.Type == models.TransactionBuy {
				totalInvested += tx.TotalAmount
			} else {
				totalWithdrawn += tx.TotalAmount
			}
		}

		holdings, err := s.store.ListHoldingsByPortfolio(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, h := range holdings {
			asset, err := s.store.GetAssetByID(ctx, h.AssetID)
			if err != nil {
				return nil, err
			}
			uniqueAssets[asset.Symbol] = struct{}{}
			totalValue += h.Quantity * asset.CurrentPrice

			if asset.PriceChangePct24h > bestChange {
				bestChange = asset.PriceChangePct24h
				summary.BestPerformerSymbol = asset.Symbol
			}
			if asset.PriceChangePct24h < worstChange {
				worstChange = asset.PriceChangePct24h
				summary.WorstPerformerSymbol = asset.Symbol
			}
		}
	}

	netInvested := totalInvested - totalWithdrawn
	summary.UniqueAssets = len(uniqueAssets)
	summary.TotalCurrentValue = round2(totalValue)
	summary.TotalInvested = round2(netInvested)
	summary.TotalProfitLoss = round2(totalValue - netInvested)
	if netInvested > 0 {
		summary.TotalRoiPercentage = round2((totalValue - netInvested) / netInvested * 100)
	}
	if !math.IsInf(bestChange, -1) {
		summary.BestPerformerChange = round2(bestChange)
	}
	if !math.IsInf(worstChange, 1) {
		summary.WorstPerformerChange = round2(worstChange)
	}

	return summary, nil
}

// RoiPoint is one day of the estimated ROI series.
type RoiPoint struct {
	Date            time.Time `json:"date"`
	InvestedCapital float64   `json:"investedCapital"`
	PortfolioValue  float64   `json:"portfolioValue"`
	RoiPercentage   float64   `json:"roiPercentage"`
}

// RoiSummary is the ROI report for one user, optionally scoped to a
// portfolio.
type RoiSummary struct {
	TotalInvested        float64    `json:"totalInvested"`
	CurrentValue         float64    `json:"currentValue"`
	TotalProfitLoss      float64    `json:"totalProfitLoss"`
	TotalRoiPercentage   float64    `json:"totalRoiPercentage"`
	AnnualisedReturn     float64    `json:"annualisedReturn"`
	FirstTransactionDate *time.Time `json:"firstTransactionDate,omitempty"`
	DataPoints           []RoiPoint `json:"dataPoints"`
}

// Roi builds the estimated ROI time series. The full transaction history is
// always consulted so invested capital is exact even when the output would
// be sliced to a shorter range by the caller.
func (s *Service) Roi(ctx context.Context, userID, portfolioID string) (*RoiSummary, error) {
	portfolioIDs, err := s.resolvePortfolios(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	var allTx []*models.Transaction
	var currentValue float64
	for _, pid := range portfolioIDs {
		txs, err := s.store.ListTransactionsByPortfolio(ctx, pid)
		if err != nil {
			return nil, err
		}
		allTx = append(allTx, txs...)

		holdings, err := s.store.ListHoldingsByPortfolio(ctx, pid)
		if err != nil {
			return nil, err
		}
		for _, h := range holdings {
			asset, err := s.store.GetAssetByID(ctx, h.AssetID)
			if err != nil {
				return nil, err
			}
			currentValue += h.Quantity * asset.CurrentPrice
		}
	}

	if len(allTx) == 0 {
		return &RoiSummary{DataPoints: []RoiPoint{}}, nil
	}

	sort.Slice(allTx, func(i, j int) bool {
		return allTx[i].ExecutedAt.Before(allTx[j].ExecutedAt)
	})

	type bucket struct{ buyAmt, sellAmt float64 }
	dayBuckets := make(map[string]*bucket)
	var totalInvested, totalWithdrawn float64
	for _, tx := range allTx {
		day := tx.ExecutedAt.UTC().Format("2006-01-02")
		b := dayBuckets[day]
		if b == nil {
			b = &bucket{}
			dayBuckets[day] = b
		}
		if tx.Type == models.TransactionBuy {
			b.buyAmt += tx.TotalAmount
			totalInvested += tx.TotalAmount
		} else {
			b.sellAmt += tx.TotalAmount
			totalWithdrawn += tx.TotalAmount
		}
	}

	days := make([]string, 0, len(dayBuckets))
	for day := range dayBuckets {
		days = append(days, day)
	}
	sort.Strings(days)

	// Estimated value per day: scale the current value by the share of
	// total capital that had been deployed by then. Historical prices are
	// deliberately not replayed.
	var cumulativeInvested float64
	points := make([]RoiPoint, 0, len(days))
	for _, day := range days {
		b := dayBuckets[day]
		cumulativeInvested += b.buyAmt - b.sellAmt

		ratio := 0.0
		if totalInvested > 0 {
			ratio = cumulativeInvested / totalInvested
		}
		estValue := currentValue * ratio

		roi := 0.0
		if cumulativeInvested > 0 {
			roi = (estValue - cumulativeInvested) / cumulativeInvested * 100
		}

		date, _ := time.Parse("2006-01-02", day)
		points = append(points, RoiPoint{
			Date:            date,
			InvestedCapital: round2(cumulativeInvested),
			PortfolioValue:  round2(estValue),
			RoiPercentage:   round2(roi),
		})
	}

	netInvested := totalInvested - totalWithdrawn
	totalPL := currentValue - netInvested
	totalRoi := 0.0
	if netInvested > 0 {
		totalRoi = totalPL / netInvested * 100
	}

	firstTxDate := allTx[0].ExecutedAt
	holdingDays := math.Max(1, time.Since(firstTxDate).Hours()/24)
	annualised := totalRoi * (365 / holdingDays)

	return &RoiSummary{
		TotalInvested:        round2(netInvested),
		CurrentValue:         round2(currentValue),
		TotalProfitLoss:      round2(totalPL),
		TotalRoiPercentage:   round2(totalRoi),
		AnnualisedReturn:     round2(annualised),
		FirstTransactionDate: &firstTxDate,
		DataPoints:           points,
	}, nil
}

// AllocationItem is one asset's share of the current portfolio value,
// aggregated across portfolios.
type AllocationItem struct {
	Symbol               string  `json:"symbol"`
	Name                 string  `json:"name"`
	Quantity             float64 `json:"quantity"`
	CurrentValue         float64 `json:"currentValue"`
	AllocationPercentage float64 `json:"allocationPercentage"`
	TotalCost            float64 `json:"totalCost"`
	ProfitLoss           float64 `json:"profitLoss"`
	ProfitLossPercentage float64 `json:"profitLossPercentage"`
}

// Allocation breaks the current value down per asset, largest position
// first. Holdings of the same asset in different portfolios are merged.
func (s *Service) Allocation(ctx context.Context, userID, portfolioID string) ([]AllocationItem, error) {
	portfolioIDs, err := s.resolvePortfolios(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]*AllocationItem)
	for _, pid := range portfolioIDs {
		holdings, err := s.store.ListHoldingsByPortfolio(ctx, pid)
		if err != nil {
			return nil, err
		}
		for _, h := range holdings {
			asset, err := s.store.GetAssetByID(ctx, h.AssetID)
			if err != nil {
				return nil, err
			}

			item := bySymbol[asset.Symbol]
			if item == nil {
				item = &AllocationItem{Symbol: asset.Symbol, Name: asset.Name}
				bySymbol[asset.Symbol] = item
			}
			item.Quantity += h.Quantity
			item.TotalCost += h.TotalCost
			item.CurrentValue += h.Quantity * asset.CurrentPrice
		}
	}

	var totalValue float64
	for _, item := range bySymbol {
		totalValue += item.CurrentValue
	}

	items := make([]AllocationItem, 0, len(bySymbol))
	for _, item := range bySymbol {
		item.ProfitLoss = item.CurrentValue - item.TotalCost
		if totalValue > 0 {
			item.AllocationPercentage = round2(item.CurrentValue / totalValue * 100)
		}
		if item.TotalCost > 0 {
			item.ProfitLossPercentage = round2(item.ProfitLoss / item.TotalCost * 100)
		}
		item.Quantity = math.Round(item.Quantity*1e8) / 1e8
		item.CurrentValue = round2(item.CurrentValue)
		item.TotalCost = round2(item.TotalCost)
		item.ProfitLoss = round2(item.ProfitLoss)
		items = append(items, *item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CurrentValue > items[j].CurrentValue
	})

	return items, nil
}

func (s *Service) resolvePortfolios(ctx context.Context, userID, portfolioID string) ([]string, error) {
	if portfolioID != "" {
		return []string{portfolioID}, nil
	}

	portfolios, err := s.store.ListPortfoliosByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(portfolios))
	for _, p := range portfolios {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
