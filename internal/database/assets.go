package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const assetColumns = `
	id, coingecko_id, symbol, name, current_price, market_cap, market_cap_rank,
	total_volume, price_change_24h, price_change_percentage_24h,
	price_change_percentage_7d, price_change_percentage_30d,
	ath, ath_date, atl, atl_date, last_updated
`

// CreateAsset inserts a newly tracked asset.
func (s *Store) CreateAsset(ctx context.Context, asset *models.TrackedAsset) error {
	query := `
		INSERT INTO tracked_assets (id, coingecko_id, symbol, name, last_updated)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		asset.ID, asset.CoinGeckoID, asset.Symbol, asset.Name, asset.LastUpdated)
	if err != nil {
		logger.Log.Error("Failed to create tracked asset",
			zap.String("symbol", asset.Symbol),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// GetAssetBySymbol retrieves one asset by its globally unique symbol.
func (s *Store) GetAssetBySymbol(ctx context.Context, symbol string) (*models.TrackedAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM tracked_assets WHERE symbol = $1`

	row := s.db.QueryRowContext(ctx, query, strings.ToUpper(symbol))
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: asset %s", apperrors.ErrNotFound, symbol)
		}
		logger.Log.Error("Failed to retrieve asset",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil, err
	}

	return asset, nil
}

// GetAssetByID retrieves one asset by primary id.
func (s *Store) GetAssetByID(ctx context.Context, id string) (*models.TrackedAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM tracked_assets WHERE id = $1`

	asset, err := scanAsset(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: asset %s", apperrors.ErrNotFound, id)
		}
		logger.Log.Error("Failed to retrieve asset",
			zap.String("asset_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	return asset, nil
}

// ListAssets retrieves every tracked asset ordered by market cap rank.
func (s *Store) ListAssets(ctx context.Context) ([]*models.TrackedAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM tracked_assets ORDER BY market_cap_rank ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		logger.Log.Error("Failed to query tracked assets", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return scanAssets(rows)
}

// ListAssetsBySymbols retrieves the tracked assets matching the given
// symbols. Unknown symbols are simply absent from the result.
func (s *Store) ListAssetsBySymbols(ctx context.Context, symbols []string) ([]*models.TrackedAsset, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	upper := make([]string, len(symbols))
	for i, sym := range symbols {
		upper[i] = strings.ToUpper(sym)
	}

	query := `SELECT ` + assetColumns + ` FROM tracked_assets WHERE symbol = ANY($1) ORDER BY market_cap_rank ASC`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(upper))
	if err != nil {
		logger.Log.Error("Failed to query assets by symbols", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return scanAssets(rows)
}

// UpdateMarketData rewrites the mutable snapshot portion of an asset.
func (s *Store) UpdateMarketData(ctx context.Context, asset *models.TrackedAsset) error {
	query := `
		UPDATE tracked_assets
		SET current_price = $1, market_cap = $2, market_cap_rank = $3,
		    total_volume = $4, price_change_24h = $5,
		    price_change_percentage_24h = $6, price_change_percentage_7d = $7,
		    price_change_percentage_30d = $8, ath = $9, ath_date = $10,
		    atl = $11, atl_date = $12, last_updated = $13
		WHERE id = $14
	`

	_, err := s.db.ExecContext(ctx, query,
		asset.CurrentPrice, asset.MarketCap, asset.MarketCapRank,
		asset.TotalVolume, asset.PriceChange24h,
		asset.PriceChangePct24h, asset.PriceChangePct7d,
		asset.PriceChangePct30d, asset.ATH, asset.ATHDate,
		asset.ATL, asset.ATLDate, asset.LastUpdated,
		asset.ID,
	)
	if err != nil {
		logger.Log.Error("Failed to update asset market data",
			zap.String("symbol", asset.Symbol),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// AppendHistoryPoint records one price observation. History is append-only.
func (s *Store) AppendHistoryPoint(ctx context.Context, point *models.PriceHistoryPoint) error {
	query := `
		INSERT INTO price_history (id, asset_id, price, market_cap, volume, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		point.ID, point.AssetID, point.Price, point.MarketCap, point.Volume, point.CapturedAt)
	if err != nil {
		logger.Log.Error("Failed to append price history point",
			zap.String("asset_id", point.AssetID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// ListHistory retrieves the most recent limit history points for an asset,
// returned in chronological order.
func (s *Store) ListHistory(ctx context.Context, assetID string, limit int) ([]*models.PriceHistoryPoint, error) {
	query := `
		SELECT id, asset_id, price, market_cap, volume, captured_at
		FROM price_history
		WHERE asset_id = $1
		ORDER BY captured_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, assetID, limit)
	if err != nil {
		logger.Log.Error("Failed to query price history",
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	var points []*models.PriceHistoryPoint
	for rows.Next() {
		var p models.PriceHistoryPoint
		if err := rows.Scan(&p.ID, &p.AssetID, &p.Price, &p.MarketCap, &p.Volume, &p.CapturedAt); err != nil {
			return nil, err
		}
		points = append(points, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query returns newest first so the limit trims old points; flip
	// back to chronological for callers.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	return points, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*models.TrackedAsset, error) {
	var asset models.TrackedAsset
	var athDate, atlDate sql.NullTime

	err := row.Scan(
		&asset.ID, &asset.CoinGeckoID, &asset.Symbol, &asset.Name,
		&asset.CurrentPrice, &asset.MarketCap, &asset.MarketCapRank,
		&asset.TotalVolume, &asset.PriceChange24h, &asset.PriceChangePct24h,
		&asset.PriceChangePct7d, &asset.PriceChangePct30d,
		&asset.ATH, &athDate, &asset.ATL, &atlDate, &asset.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if athDate.Valid {
		t := athDate.Time
		asset.ATHDate = &t
	}
	if atlDate.Valid {
		t := atlDate.Time
		asset.ATLDate = &t
	}

	return &asset, nil
}

func scanAssets(rows *sql.Rows) ([]*models.TrackedAsset, error) {
	var assets []*models.TrackedAsset

	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assets, nil
}
