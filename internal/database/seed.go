package database

import (
	"context"
	"errors"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SeedStore is the store surface the seeder needs.
type SeedStore interface {
	GetAssetBySymbol(ctx context.Context, symbol string) (*models.TrackedAsset, error)
	CreateAsset(ctx context.Context, asset *models.TrackedAsset) error
}

// defaultAssets is the starter set of tracked assets for a fresh deployment.
// Market data is filled in by the first refresh cycle.
var defaultAssets = []struct {
	coinGeckoID string
	symbol      string
	name        string
}{
	{"bitcoin", "BTC", "Bitcoin"},
	{"ethereum", "ETH", "Ethereum"},
	{"binancecoin", "BNB", "BNB"},
	{"ripple", "XRP", "XRP"},
	{"cardano", "ADA", "Cardano"},
	{"solana", "SOL", "Solana"},
	{"dogecoin", "DOGE", "Dogecoin"},
	{"polkadot", "DOT", "Polkadot"},
	{"avalanche-2", "AVAX", "Avalanche"},
	{"matic-network", "MATIC", "Polygon"},
}

// SeedAssets inserts the default tracked assets, skipping any symbol that
// already exists. It returns the number of assets created, so re-running is
// safe and a no-op on an already seeded database.
func SeedAssets(ctx context.Context, store SeedStore) (int, error) {
	created := 0

	for _, def := range defaultAssets {
		_, err := store.GetAssetBySymbol(ctx, def.symbol)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return created, err
		}

		asset := &models.TrackedAsset{
			ID:          uuid.New().String(),
			CoinGeckoID: def.coinGeckoID,
			Symbol:      def.symbol,
			Name:        def.name,
			LastUpdated: time.Now().UTC(),
		}
		if err := store.CreateAsset(ctx, asset); err != nil {
			return created, err
		}
		created++

		logger.Log.Info("Seeded tracked asset",
			zap.String("symbol", def.symbol),
			zap.String("coingecko_id", def.coinGeckoID),
		)
	}

	return created, nil
}
