package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/alerts"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/cache"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/pricesync"

	"github.com/go-redis/redis_rate/v10"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Manual refresh and sweep triggers are throttled per caller. Redis absence
// disables throttling rather than the endpoints.
const manualTriggersPerMinute = 3

// allowManual rate-limits one manual trigger key for one caller.
func allowManual(r *http.Request, key string) bool {
	if cache.RedisClient == nil {
		return true
	}

	limiter := redis_rate.NewLimiter(cache.RedisClient)
	res, err := limiter.Allow(r.Context(), "manual:"+key+":"+callerKey(r), redis_rate.PerMinute(manualTriggersPerMinute))
	if err != nil {
		logger.Log.Warn("Rate limiter check failed, allowing request", zap.Error(err))
		return true
	}
	return res.Allowed > 0
}

func callerKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return auth
	}
	return r.RemoteAddr
}

// TriggerRefreshRequest optionally narrows a manual refresh to a symbol
// subset.
type TriggerRefreshRequest struct {
	Symbols []string `json:"symbols,omitempty"`
}

// TriggerRefresh starts a price refresh cycle on demand. A cycle already in
// flight yields 409 without touching the provider.
func (s *Server) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "TriggerRefresh")
	defer span.End()

	if !allowManual(r, "refresh") {
		writeJSON(w, http.StatusTooManyRequests, Response{Message: "Too many refresh requests"})
		return
	}

	var req TriggerRefreshRequest
	if r.Body != nil {
		// An empty body means a full refresh.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := s.synchronizer.TriggerUpdate(ctx, req.Symbols...); err != nil {
		if errors.Is(err, pricesync.ErrRefreshInFlight) {
			writeJSON(w, http.StatusConflict, Response{Message: "A refresh is already in progress"})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "Refresh completed successfully"})
}

// TriggerAlertCheck sweeps every ACTIVE alert against stored prices on
// demand. A sweep already in flight yields 409.
func (s *Server) TriggerAlertCheck(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "TriggerAlertCheck")
	defer span.End()

	if !allowManual(r, "alert-check") {
		writeJSON(w, http.StatusTooManyRequests, Response{Message: "Too many check requests"})
		return
	}

	triggered, err := s.alertEngine.CheckAll(ctx)
	if err != nil {
		if errors.Is(err, alerts.ErrCheckInFlight) {
			writeJSON(w, http.StatusConflict, Response{Message: "An alert check is already in progress"})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Alert check completed successfully",
		Data:    map[string]any{"triggered": len(triggered)},
	})
}
