package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/ledger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"
)

func TestMain(m *testing.M) {
	logger.InitTestLogger()
	m.Run()
}

type fakeStore struct {
	portfolios map[string]*models.Portfolio
	txs        map[string]*models.Transaction
	holdings   map[string]*models.Holding
	assets     map[string]*models.TrackedAsset
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		portfolios: make(map[string]*models.Portfolio),
		txs:        make(map[string]*models.Transaction),
		holdings:   make(map[string]*models.Holding),
		assets:     make(map[string]*models.TrackedAsset),
	}
}

func pairKey(portfolioID, assetID string) string { return portfolioID + "/" + assetID }

func (f *fakeStore) CreatePortfolio(_ context.Context, p *models.Portfolio) error {
	f.portfolios[p.ID] = p
	return nil
}

func (f *fakeStore) GetPortfolio(_ context.Context, id string) (*models.Portfolio, error) {
	p, ok := f.portfolios[id]
	if !ok {
		return nil, fmt.Errorf("%w: portfolio %s", apperrors.ErrNotFound, id)
	}
	return p, nil
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

func (f *fakeStore) ListHoldingsByPortfolio(_ context.Context, portfolioID string) ([]*models.Holding, error) {
	var out []*models.Holding
	for _, h := range f.holdings {
		if h.PortfolioID == portfolioID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	f.txs[tx.ID] = tx
	return nil
}

func (f *fakeStore) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	tx, ok := f.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", apperrors.ErrNotFound, id)
	}
	return tx, nil
}

func (f *fakeStore) UpdateTransaction(_ context.Context, tx *models.Transaction) error {
	f.txs[tx.ID] = tx
	return nil
}

func (f *fakeStore) DeleteTransaction(_ context.Context, id string) error {
	delete(f.txs, id)
	return nil
}

func (f *fakeStore) ListTransactionsByPortfolio(_ context.Context, portfolioID string) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, tx := range f.txs {
		if tx.PortfolioID == portfolioID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTransactionsByPair(_ context.Context, portfolioID, assetID string) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for _, tx := range f.txs {
		if tx.PortfolioID == portfolioID && tx.AssetID == assetID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertHolding(_ context.Context, h *models.Holding) error {
	f.holdings[pairKey(h.PortfolioID, h.AssetID)] = h
	return nil
}

func (f *fakeStore) DeleteHolding(_ context.Context, portfolioID, assetID string) error {
	delete(f.holdings, pairKey(portfolioID, assetID))
	return nil
}

func (f *fakeStore) UpdatePortfolioTotals(_ context.Context, p *models.Portfolio) error {
	f.portfolios[p.ID] = p
	return nil
}

func (f *fakeStore) GetAssetBySymbol(_ context.Context, symbol string) (*models.TrackedAsset, error) {
	for _, a := range f.assets {
		if a.Symbol == symbol {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: asset %s", apperrors.ErrNotFound, symbol)
}

func (f *fakeStore) GetAssetByID(_ context.Context, id string) (*models.TrackedAsset, error) {
	a, ok := f.assets[id]
	if !ok {
		return nil, fmt.Errorf("%w: asset %s", apperrors.ErrNotFound, id)
	}
	return a, nil
}

type fakeNotifier struct {
	updates []string // portfolio ids in notification order
}

func (f *fakeNotifier) SendPortfolioUpdate(userID, portfolioID string, data map[string]any) {
	f.updates = append(f.updates, portfolioID)
}

func newService(t *testing.T) (*Service, *fakeStore, *fakeNotifier) {
	t.Helper()
	store := newFakeStore()
	store.assets["btc"] = &models.TrackedAsset{ID: "btc", Symbol: "BTC", CurrentPrice: 50000}
	store.portfolios["p1"] = &models.Portfolio{ID: "p1", UserID: "u1", Name: "Main"}
	notifier := &fakeNotifier{}
	svc := NewService(store, ledger.NewEngine(store), notifier)
	return svc, store, notifier
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %f, want %f", name, got, want)
	}
}

func TestAddBuyTransactionCreatesHolding(t *testing.T) {
	svc, store, notifier := newService(t)

	tx, err := svc.AddTransaction(context.Background(), "u1", "p1", TransactionParams{
		Symbol:       "BTC",
		Type:         models.TransactionBuy,
		Quantity:     1.0,
		PricePerUnit: 40000,
		FeeAmount:    10,
	})
	if err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}
	approx(t, "TotalAmount", tx.TotalAmount, 40010)

	h := store.holdings[pairKey("p1", "btc")]
	if h == nil {
		t.Fatal("holding not created")
	}
	approx(t, "Quantity", h.Quantity, 1.0)
	approx(t, "AverageBuyPrice", h.AverageBuyPrice, 40010)

	// Portfolio totals refreshed and the owner notified.
	approx(t, "portfolio.TotalValue", store.portfolios["p1"].TotalValue, 50000)
	if len(notifier.updates) != 1 || notifier.updates[0] != "p1" {
		t.Errorf("notifications = %v, want [p1]", notifier.updates)
	}
}

func TestSellComputesProceedsAndProRataCost(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	executed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionBuy,
		Quantity: 1.0, PricePerUnit: 40000, FeeAmount: 10, ExecutedAt: &executed,
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	sellAt := executed.Add(24 * time.Hour)
	tx, err := svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionSell,
		Quantity: 0.4, PricePerUnit: 45000, FeeAmount: 5, ExecutedAt: &sellAt,
	})
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	approx(t, "TotalAmount", tx.TotalAmount, 17995) // 0.4*45000 - 5

	h := store.holdings[pairKey("p1", "btc")]
	approx(t, "Quantity", h.Quantity, 0.6)
	approx(t, "TotalCost", h.TotalCost, 24006)
	approx(t, "AverageBuyPrice", h.AverageBuyPrice, 40010)
}

func TestOversellRejectedBeforePersisting(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionBuy,
		Quantity: 1.0, PricePerUnit: 40000,
	}); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	_, err := svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionSell,
		Quantity: 2.0, PricePerUnit: 45000,
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("oversell: got %v, want ErrValidation", err)
	}

	// The rejected sell must not appear in the history.
	if len(store.txs) != 1 {
		t.Errorf("stored transactions = %d, want 1", len(store.txs))
	}
	h := store.holdings[pairKey("p1", "btc")]
	approx(t, "Quantity", h.Quantity, 1.0)
}

func TestExactExhaustionDeletesHolding(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	executed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionBuy,
		Quantity: 1.0, PricePerUnit: 40000, ExecutedAt: &executed,
	})

	sellAt := executed.Add(time.Hour)
	if _, err := svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionSell,
		Quantity: 1.0, PricePerUnit: 45000, ExecutedAt: &sellAt,
	}); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if _, ok := store.holdings[pairKey("p1", "btc")]; ok {
		t.Error("exhausted holding must be deleted, not kept at zero")
	}
	approx(t, "portfolio.TotalValue", store.portfolios["p1"].TotalValue, 0)
}

func TestDeleteTransactionGuardsPosition(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	executed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	buy, err := svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionBuy,
		Quantity: 1.0, PricePerUnit: 40000, ExecutedAt: &executed,
	})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	sellAt := executed.Add(time.Hour)
	sell, err := svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionSell,
		Quantity: 0.5, PricePerUnit: 45000, ExecutedAt: &sellAt,
	})
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	// Removing the buy would leave a naked sell.
	if err := svc.DeleteTransaction(ctx, "u1", buy.ID); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("delete of load-bearing buy: got %v, want ErrValidation", err)
	}

	// Removing the sell is fine and restores the full position.
	if err := svc.DeleteTransaction(ctx, "u1", sell.ID); err != nil {
		t.Fatalf("delete of sell failed: %v", err)
	}
	h := store.holdings[pairKey("p1", "btc")]
	approx(t, "Quantity", h.Quantity, 1.0)
}

func TestTransactionValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		params TransactionParams
		want   error
	}{
		{"bad type", TransactionParams{Symbol: "BTC", Type: "SWAP", Quantity: 1, PricePerUnit: 1}, apperrors.ErrValidation},
		{"zero quantity", TransactionParams{Symbol: "BTC", Type: models.TransactionBuy, Quantity: 0, PricePerUnit: 1}, apperrors.ErrValidation},
		{"zero price", TransactionParams{Symbol: "BTC", Type: models.TransactionBuy, Quantity: 1, PricePerUnit: 0}, apperrors.ErrValidation},
		{"negative fee", TransactionParams{Symbol: "BTC", Type: models.TransactionBuy, Quantity: 1, PricePerUnit: 1, FeeAmount: -1}, apperrors.ErrValidation},
		{"unknown symbol", TransactionParams{Symbol: "DOGE", Type: models.TransactionBuy, Quantity: 1, PricePerUnit: 1}, apperrors.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddTransaction(ctx, "u1", "p1", tc.params); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestPortfolioOwnershipScoping(t *testing.T) {
	svc, store, _ := newService(t)
	store.portfolios["p2"] = &models.Portfolio{ID: "p2", UserID: "u2", Name: "Other"}
	ctx := context.Background()

	// Foreign portfolios read as absent.
	if _, err := svc.GetPortfolio(ctx, "u1", "p2"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("foreign get: got %v, want ErrNotFound", err)
	}
	if _, err := svc.AddTransaction(ctx, "u1", "p2", TransactionParams{
		Symbol: "BTC", Type: models.TransactionBuy, Quantity: 1, PricePerUnit: 1,
	}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("foreign add: got %v, want ErrNotFound", err)
	}
}

func TestCreatePortfolio(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, "u1", "  Retirement  ")
	if err != nil {
		t.Fatalf("CreatePortfolio failed: %v", err)
	}
	if p.Name != "Retirement" || !p.IsActive {
		t.Errorf("unexpected portfolio %+v", p)
	}

	if _, err := svc.CreatePortfolio(ctx, "u1", "   "); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("blank name: got %v, want ErrValidation", err)
	}
}

func TestListHoldingsPricesAtMarket(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	executed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.AddTransaction(ctx, "u1", "p1", TransactionParams{
		Symbol: "BTC", Type: models.TransactionBuy,
		Quantity: 0.5, PricePerUnit: 40000, ExecutedAt: &executed,
	})

	store.assets["btc"].CurrentPrice = 60000
	views, err := svc.ListHoldings(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("ListHoldings failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d holdings, want 1", len(views))
	}
	approx(t, "CurrentValue", views[0].CurrentValue, 30000)
	approx(t, "ProfitLoss", views[0].ProfitLoss, 10000)
	approx(t, "ProfitLossPct", views[0].ProfitLossPct, 50)
}
