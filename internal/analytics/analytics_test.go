package analytics

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"
)

type fakeStore struct {
	portfolios []*models.Portfolio
	txs        map[string][]*models.Transaction
	holdings   map[string][]*models.Holding
	assets     map[string]*models.TrackedAsset
}

func (f *fakeStore) ListPortfoliosByUser(_ context.Context, userID string) ([]*models.Portfolio, error) {
	var out []*models.Portfolio
	for _, p := range f.portfolios {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTransactionsByPortfolio(_ context.Context, portfolioID string) ([]*models.Transaction, error) {
	return f.txs[portfolioID], nil
}

func (f *fakeStore) ListHoldingsByPortfolio(_ context.Context, portfolioID string) ([]*models.Holding, error) {
	return f.holdings[portfolioID], nil
}

func (f *fakeStore) GetAssetByID(_ context.Context, id string) (*models.TrackedAsset, error) {
	asset, ok := f.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: asset %s", apperrors.ErrNotFound, id)
	}
	return asset, nil
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 0.01 {
		t.Errorf("%s = %f, want %f", name, got, want)
	}
}

func day(d int) time.Time {
	return time.Date(2026, 1, d, 12, 0, 0, 0, time.UTC)
}

func buyTx(pid, assetID string, total float64, at time.Time) *models.Transaction {
	return &models.Transaction{
		PortfolioID: pid, AssetID: assetID,
		Type: models.TransactionBuy, TotalAmount: total, ExecutedAt: at,
	}
}

func sellTx(pid, assetID string, total float64, at time.Time) *models.Transaction {
	return &models.Transaction{
		PortfolioID: pid, AssetID: assetID,
		Type: models.TransactionSell, TotalAmount: total, ExecutedAt: at,
	}
}

func TestDashboard(t *testing.T) {
	store := &fakeStore{
		portfolios: []*models.Portfolio{
			{ID: "p1", UserID: "u1"},
			{ID: "p2", UserID: "u1"},
			{ID: "p3", UserID: "u2"}, // someone else's
		},
		txs: map[string][]*models.Transaction{
			"p1": {buyTx("p1", "btc", 10000, day(1))},
			"p2": {buyTx("p2", "eth", 5000, day(2)), sellTx("p2", "eth", 1000, day(3))},
		},
		holdings: map[string][]*models.Holding{
			"p1": {{PortfolioID: "p1", AssetID: "btc", Quantity: 0.25}},
			"p2": {{PortfolioID: "p2", AssetID: "eth", Quantity: 2}},
		},
		assets: map[string]*models.TrackedAsset{
			"btc": {ID: "btc", Symbol: "BTC", CurrentPrice: 50000, PriceChangePct24h: 2.5},
			"eth": {ID: "eth", Symbol: "ETH", CurrentPrice: 2500, PriceChangePct24h: -1.2},
		},
	}

	svc := NewService(store)
	summary, err := svc.Dashboard(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}

	if summary.TotalPortfolios != 2 {
		t.Errorf("TotalPortfolios = %d, want 2", summary.TotalPortfolios)
	}
	if summary.TotalTransactions != 3 {
		t.Errorf("TotalTransactions = %d, want 3", summary.TotalTransactions)
	}
	if summary.UniqueAssets != 2 {
		t.Errorf("UniqueAssets = %d, want 2", summary.UniqueAssets)
	}
	// 0.25*50000 + 2*2500 = 17500 current; 10000+5000-1000 = 14000 net in.
	approx(t, "TotalCurrentValue", summary.TotalCurrentValue, 17500)
	approx(t, "TotalInvested", summary.TotalInvested, 14000)
	approx(t, "TotalProfitLoss", summary.TotalProfitLoss, 3500)
	approx(t, "TotalRoiPercentage", summary.TotalRoiPercentage, 25)
	if summary.BestPerformerSymbol != "BTC" || summary.WorstPerformerSymbol != "ETH" {
		t.Errorf("performers = %s/%s, want BTC/ETH",
			summary.BestPerformerSymbol, summary.WorstPerformerSymbol)
	}
}

func TestRoiSeries(t *testing.T) {
	store := &fakeStore{
		portfolios: []*models.Portfolio{{ID: "p1", UserID: "u1"}},
		txs: map[string][]*models.Transaction{
			"p1": {
				buyTx("p1", "btc", 6000, day(1)),
				buyTx("p1", "btc", 4000, day(5)),
			},
		},
		holdings: map[string][]*models.Holding{
			"p1": {{PortfolioID: "p1", AssetID: "btc", Quantity: 0.25}},
		},
		assets: map[string]*models.TrackedAsset{
			"btc": {ID: "btc", Symbol: "BTC", CurrentPrice: 48000},
		},
	}

	svc := NewService(store)
	summary, err := svc.Roi(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Roi failed: %v", err)
	}

	approx(t, "TotalInvested", summary.TotalInvested, 10000)
	approx(t, "CurrentValue", summary.CurrentValue, 12000)
	approx(t, "TotalProfitLoss", summary.TotalProfitLoss, 2000)
	approx(t, "TotalRoiPercentage", summary.TotalRoiPercentage, 20)

	if len(summary.DataPoints) != 2 {
		t.Fatalf("got %d data points, want 2", len(summary.DataPoints))
	}

	first, second := summary.DataPoints[0], summary.DataPoints[1]
	if !first.Date.Before(second.Date) {
		t.Error("data points out of order")
	}
	approx(t, "first.InvestedCapital", first.InvestedCapital, 6000)
	// Day one deployed 60% of total capital, so the estimate scales the
	// current value by 0.6.
	approx(t, "first.PortfolioValue", first.PortfolioValue, 7200)
	approx(t, "first.RoiPercentage", first.RoiPercentage, 20)
	approx(t, "second.InvestedCapital", second.InvestedCapital, 10000)
	approx(t, "second.PortfolioValue", second.PortfolioValue, 12000)

	if summary.FirstTransactionDate == nil || !summary.FirstTransactionDate.Equal(day(1)) {
		t.Errorf("FirstTransactionDate = %v, want %v", summary.FirstTransactionDate, day(1))
	}
}

func TestAllocationMergesHoldingsAcrossPortfolios(t *testing.T) {
	store := &fakeStore{
		portfolios: []*models.Portfolio{
			{ID: "p1", UserID: "u1"},
			{ID: "p2", UserID: "u1"},
		},
		holdings: map[string][]*models.Holding{
			"p1": {
				{PortfolioID: "p1", AssetID: "btc", Quantity: 0.1, TotalCost: 4000},
				{PortfolioID: "p1", AssetID: "eth", Quantity: 1, TotalCost: 2000},
			},
			"p2": {
				{PortfolioID: "p2", AssetID: "btc", Quantity: 0.05, TotalCost: 2600},
			},
		},
		assets: map[string]*models.TrackedAsset{
			"btc": {ID: "btc", Symbol: "BTC", Name: "Bitcoin", CurrentPrice: 50000},
			"eth": {ID: "eth", Symbol: "ETH", Name: "Ethereum", CurrentPrice: 2500},
		},
	}

	svc := NewService(store)
	items, err := svc.Allocation(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Allocation failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// 0.15 BTC at 50000 = 7500, 1 ETH at 2500 = 2500; largest first.
	btc, eth := items[0], items[1]
	if btc.Symbol != "BTC" || eth.Symbol != "ETH" {
		t.Fatalf("order = [%s %s], want [BTC ETH]", items[0].Symbol, items[1].Symbol)
	}
	approx(t, "BTC.Quantity", btc.Quantity, 0.15)
	approx(t, "BTC.CurrentValue", btc.CurrentValue, 7500)
	approx(t, "BTC.AllocationPercentage", btc.AllocationPercentage, 75)
	approx(t, "BTC.TotalCost", btc.TotalCost, 6600)
	approx(t, "BTC.ProfitLoss", btc.ProfitLoss, 900)
	approx(t, "BTC.ProfitLossPercentage", btc.ProfitLossPercentage, 13.64)
	approx(t, "ETH.AllocationPercentage", eth.AllocationPercentage, 25)
	approx(t, "ETH.ProfitLoss", eth.ProfitLoss, 500)
}

func TestAllocationScopedToPortfolio(t *testing.T) {
	store := &fakeStore{
		portfolios: []*models.Portfolio{
			{ID: "p1", UserID: "u1"},
			{ID: "p2", UserID: "u1"},
		},
		holdings: map[string][]*models.Holding{
			"p1": {{PortfolioID: "p1", AssetID: "btc", Quantity: 0.1, TotalCost: 4000}},
			"p2": {{PortfolioID: "p2", AssetID: "eth", Quantity: 1, TotalCost: 2000}},
		},
		assets: map[string]*models.TrackedAsset{
			"btc": {ID: "btc", Symbol: "BTC", Name: "Bitcoin", CurrentPrice: 50000},
			"eth": {ID: "eth", Symbol: "ETH", Name: "Ethereum", CurrentPrice: 2500},
		},
	}

	svc := NewService(store)
	items, err := svc.Allocation(context.Background(), "u1", "p2")
	if err != nil {
		t.Fatalf("Allocation failed: %v", err)
	}
	if len(items) != 1 || items[0].Symbol != "ETH" {
		t.Fatalf("items = %+v, want only ETH", items)
	}
	approx(t, "ETH.AllocationPercentage", items[0].AllocationPercentage, 100)
}

func TestRoiEmptyHistory(t *testing.T) {
	store := &fakeStore{
		portfolios: []*models.Portfolio{{ID: "p1", UserID: "u1"}},
		txs:        map[string][]*models.Transaction{},
		holdings:   map[string][]*models.Holding{},
		assets:     map[string]*models.TrackedAsset{},
	}

	svc := NewService(store)
	summary, err := svc.Roi(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Roi failed: %v", err)
	}
	if len(summary.DataPoints) != 0 || summary.TotalInvested != 0 {
		t.Errorf("expected an empty report, got %+v", summary)
	}
}
