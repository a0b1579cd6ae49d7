// Package pricesync owns the periodic market data refresh cycle. A single
// in-flight guard serializes refreshes; requests arriving while one runs are
// dropped with a logged skip, never queued.
package pricesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/cache"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/market"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// ErrRefreshInFlight reports that a refresh was skipped because another one
// is still running.
var ErrRefreshInFlight = errors.New("price refresh already in progress")

var (
	refreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_refresh_cycles_total",
			Help: "Total number of completed price refresh cycles",
		},
		[]string{"result"},
	)
	refreshSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_refresh_skipped_total",
			Help: "Total number of refresh requests dropped by the single-flight guard",
		},
	)
)

func init() {
	prometheus.MustRegister(refreshCyclesTotal, refreshSkippedTotal)
}

// AssetStore is the persistence surface the synchronizer needs.
type AssetStore interface {
	ListAssets(ctx context.Context) ([]*models.TrackedAsset, error)
	ListAssetsBySymbols(ctx context.Context, symbols []string) ([]*models.TrackedAsset, error)
	UpdateMarketData(ctx context.Context, asset *models.TrackedAsset) error
	AppendHistoryPoint(ctx context.Context, point *models.PriceHistoryPoint) error
}

// Fetcher pulls market snapshots from the external provider.
type Fetcher interface {
	Fetch(ctx context.Context, assetIDs []string) ([]market.Snapshot, error)
}

// Listener is notified once per successful cycle with the updated assets.
// The alert engine and the websocket hub register here; the synchronizer
// holds references to them, never the other way around.
type Listener interface {
	PricesUpdated(ctx context.Context, assets []*models.TrackedAsset)
}

// Synchronizer runs the guarded refresh cycle.
type Synchronizer struct {
	store        AssetStore
	fetcher      Fetcher
	listeners    []Listener
	fetchTimeout time.Duration
	instance     string

	// 0 = idle, 1 = refresh in flight. Compare-and-swap keeps the
	// "try to start, else skip" decision race-free.
	inFlight int32
}

// New builds a synchronizer. Listeners are registered afterwards with
// AddListener, which must complete before Run starts.
func New(store AssetStore, fetcher Fetcher, instance string) *Synchronizer {
	return &Synchronizer{
		store:        store,
		fetcher:      fetcher,
		fetchTimeout: 30 * time.Second,
		instance:     instance,
	}
}

// AddListener registers a post-cycle listener. Not safe to call after Run.
func (s *Synchronizer) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Refresh fetches current market data for the given symbols, or for every
// tracked asset when none are given, and applies the updates in provider
// order. At most one refresh executes at a time; a concurrent call returns
// ErrRefreshInFlight without touching the provider.
func (s *Synchronizer) Refresh(ctx context.Context, symbols ...string) error {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		refreshSkippedTotal.Inc()
		logger.Log.Warn("Price update already in progress, skipping")
		return ErrRefreshInFlight
	}
	defer atomic.StoreInt32(&s.inFlight, 0)

	tracer := otel.Tracer("crypto-portfolio-tracker")
	ctx, span := tracer.Start(ctx, "PriceRefresh")
	defer span.End()

	assets, err := s.resolveAssets(ctx, symbols)
	if err != nil {
		refreshCyclesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("resolve assets: %w", err)
	}
	if len(assets) == 0 {
		logger.Log.Warn("No tracked assets to update")
		refreshCyclesTotal.WithLabelValues("noop").Inc()
		return nil
	}

	byProviderID := make(map[string]*models.TrackedAsset, len(assets))
	ids := make([]string, 0, len(assets))
	for _, asset := range assets {
		byProviderID[asset.CoinGeckoID] = asset
		ids = append(ids, asset.CoinGeckoID)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	snapshots, err := s.fetcher.Fetch(fetchCtx, ids)
	cancel()
	if err != nil {
		refreshCyclesTotal.WithLabelValues("error").Inc()
		logger.Log.Error("Market snapshot fetch failed, aborting cycle", zap.Error(err))
		return err
	}

	// Providers may omit unknown ids, so results are matched on id, and
	// updates are applied in the order the provider returned them.
	updated := make([]*models.TrackedAsset, 0, len(snapshots))
	now := time.Now().UTC()

	for _, snap := range snapshots {
		asset, ok := byProviderID[snap.ID]
		if !ok {
			continue
		}

		asset.CurrentPrice = snap.CurrentPrice
		asset.MarketCap = snap.MarketCap
		asset.MarketCapRank = snap.MarketCapRank
		asset.TotalVolume = snap.TotalVolume
		asset.PriceChange24h = snap.PriceChange24h
		asset.PriceChangePct24h = snap.PriceChangePct24h
		asset.PriceChangePct7d = snap.PriceChangePct7d
		asset.PriceChangePct30d = snap.PriceChangePct30d
		asset.ATH = snap.ATH
		asset.ATHDate = market.ParseDate(snap.ATHDate)
		asset.ATL = snap.ATL
		asset.ATLDate = market.ParseDate(snap.ATLDate)
		asset.LastUpdated = now

		if err := s.store.UpdateMarketData(ctx, asset); err != nil {
			logger.Log.Error("Failed to persist asset update, skipping asset",
				zap.String("symbol", asset.Symbol),
				zap.Error(err),
			)
			continue
		}

		point := &models.PriceHistoryPoint{
			ID:         uuid.New().String(),
			AssetID:    asset.ID,
			Price:      asset.CurrentPrice,
			MarketCap:  asset.MarketCap,
			Volume:     asset.TotalVolume,
			CapturedAt: now,
		}
		if err := s.store.AppendHistoryPoint(ctx, point); err != nil {
			logger.Log.Error("Failed to append history point",
				zap.String("symbol", asset.Symbol),
				zap.Error(err),
			)
		}

		cache.DeleteCache(ctx, cache.KeyAsset(asset.Symbol))
		cache.InvalidateByPrefix(ctx, cache.KeyHistory(asset.Symbol)+":", "/assets/{symbol}/history", s.instance)
		updated = append(updated, asset)

		logger.Log.Info("Updated asset price",
			zap.String("symbol", asset.Symbol),
			zap.Float64("price", asset.CurrentPrice),
		)
	}

	cache.DeleteCache(ctx, cache.KeyAllAssets)

	s.publishUpdates(updated)
	for _, l := range s.listeners {
		l.PricesUpdated(ctx, updated)
	}

	refreshCyclesTotal.WithLabelValues("success").Inc()
	logger.Log.Info("Price refresh cycle completed",
		zap.Int("updated", len(updated)),
		zap.String("instance", s.instance),
	)

	return nil
}

// TriggerUpdate is the manual refresh path. It reuses the guarded Refresh,
// so a manual trigger racing the scheduler is still serialized.
func (s *Synchronizer) TriggerUpdate(ctx context.Context, symbols ...string) error {
	logger.Log.Info("Manual price update triggered", zap.Strings("symbols", symbols))
	return s.Refresh(ctx, symbols...)
}

// InFlight reports whether a refresh is currently running.
func (s *Synchronizer) InFlight() bool {
	return atomic.LoadInt32(&s.inFlight) == 1
}

// Run drives the refresh schedule until ctx is cancelled: a frequent ticker
// plus an hourly backstop that only fires while the frequent path is idle.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	backstop := time.NewTicker(time.Hour)
	defer ticker.Stop()
	defer backstop.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInFlight) {
				logger.Log.Error("Scheduled price update failed", zap.Error(err))
			}
		case <-backstop.C:
			if s.InFlight() {
				continue
			}
			logger.Log.Info("Running hourly backstop price update")
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInFlight) {
				logger.Log.Error("Backstop price update failed", zap.Error(err))
			}
		}
	}
}

func (s *Synchronizer) resolveAssets(ctx context.Context, symbols []string) ([]*models.TrackedAsset, error) {
	if len(symbols) == 0 {
		return s.store.ListAssets(ctx)
	}
	return s.store.ListAssetsBySymbols(ctx, symbols)
}

// priceUpdateMessage mirrors the price-update event shape carried over the
// redis channel for sibling instances.
type priceUpdateMessage struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change24h"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Synchronizer) publishUpdates(assets []*models.TrackedAsset) {
	for _, asset := range assets {
		payload, err := json.Marshal(priceUpdateMessage{
			Symbol:    asset.Symbol,
			Price:     asset.CurrentPrice,
			Change24h: asset.PriceChangePct24h,
			Timestamp: asset.LastUpdated,
		})
		if err != nil {
			continue
		}
		if err := cache.PublishMessage(cache.ChannelPriceUpdates, string(payload)); err != nil {
			logger.Log.Warn("Failed to publish price update",
				zap.String("symbol", asset.Symbol),
				zap.Error(err),
			)
		}
	}
}
