package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/cache"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	assetListTTL = 30 * time.Second
	assetTTL     = 30 * time.Second
	historyTTL   = 60 * time.Second
)

// ListAssets returns every tracked asset ranked by market cap.
func (s *Server) ListAssets(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "ListAssets")
	defer span.End()

	if cached, err := cache.GetCache(ctx, cache.KeyAllAssets, "/assets", s.instance); err == nil && cached != "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	body := Response{Message: "Assets retrieved successfully", Data: assets}
	respBytes, err := json.Marshal(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := cache.SetCache(ctx, cache.KeyAllAssets, string(respBytes), assetListTTL, "/assets", s.instance); err != nil {
		logger.Log.Warn("Failed to cache asset list", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)
}

// GetAsset returns one tracked asset by symbol.
func (s *Server) GetAsset(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "GetAsset")
	defer span.End()

	symbol := strings.ToUpper(r.PathValue("symbol"))
	cacheKey := cache.KeyAsset(symbol)

	if cached, err := cache.GetCache(ctx, cacheKey, "/assets/{symbol}", s.instance); err == nil && cached != "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	asset, err := s.store.GetAssetBySymbol(ctx, symbol)
	if err != nil {
		writeError(w, err)
		return
	}

	body := Response{Message: "Asset retrieved successfully", Data: asset}
	respBytes, err := json.Marshal(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := cache.SetCache(ctx, cacheKey, string(respBytes), assetTTL, "/assets/{symbol}", s.instance); err != nil {
		logger.Log.Warn("Failed to cache asset",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)
}

// GetAssetHistory returns the most recently recorded price points for one
// asset in chronological order. The limit query parameter caps the result
// (default 100, max 1000).
func (s *Server) GetAssetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "GetAssetHistory")
	defer span.End()

	symbol := strings.ToUpper(r.PathValue("symbol"))

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	// Keyed under the asset's history prefix so a price refresh can
	// invalidate every cached variant in one sweep.
	cacheKey := generateCacheKey(r, cache.KeyHistory(symbol)+":")
	if cached, err := cache.GetCache(ctx, cacheKey, "/assets/{symbol}/history", s.instance); err == nil && cached != "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	asset, err := s.store.GetAssetBySymbol(ctx, symbol)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := s.store.ListHistory(ctx, asset.ID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	body := Response{Message: "Price history retrieved successfully", Data: history}
	respBytes, err := json.Marshal(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := cache.SetCache(ctx, cacheKey, string(respBytes), historyTTL, "/assets/{symbol}/history", s.instance); err != nil {
		logger.Log.Warn("Failed to cache price history",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)
}
