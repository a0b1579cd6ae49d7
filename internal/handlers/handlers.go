// Package handlers is the HTTP surface. Handlers stay thin: decode, resolve
// the caller, delegate to a service, map the error taxonomy to a status
// code.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/alerts"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/analytics"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/database"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/portfolio"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/pricesync"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/ws"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const tracerName = "crypto-portfolio-tracker"

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	UserIDFromToken(token string) (string, error)
}

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server holds every handler dependency and owns the route table.
type Server struct {
	store        *database.Store
	alertSvc     *alerts.Service
	alertEngine  *alerts.Engine
	portfolioSvc *portfolio.Service
	analytics    *analytics.Service
	synchronizer *pricesync.Synchronizer
	hub          *ws.Hub
	auth         Authenticator
	instance     string
}

// NewServer wires the handler dependencies.
func NewServer(
	store *database.Store,
	alertSvc *alerts.Service,
	alertEngine *alerts.Engine,
	portfolioSvc *portfolio.Service,
	analyticsSvc *analytics.Service,
	synchronizer *pricesync.Synchronizer,
	hub *ws.Hub,
	auth Authenticator,
	instance string,
) *Server {
	return &Server{
		store:        store,
		alertSvc:     alertSvc,
		alertEngine:  alertEngine,
		portfolioSvc: portfolioSvc,
		analytics:    analyticsSvc,
		synchronizer: synchronizer,
		hub:          hub,
		auth:         auth,
		instance:     instance,
	}
}

// Routes builds the full route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /assets", s.ListAssets)
	mux.HandleFunc("GET /assets/{symbol}", s.GetAsset)
	mux.HandleFunc("GET /assets/{symbol}/history", s.GetAssetHistory)

	mux.HandleFunc("POST /alerts", s.CreateAlert)
	mux.HandleFunc("GET /alerts", s.ListAlerts)
	mux.HandleFunc("GET /alerts/stats", s.AlertStats)
	mux.HandleFunc("GET /alerts/{id}", s.GetAlert)
	mux.HandleFunc("PATCH /alerts/{id}", s.UpdateAlert)
	mux.HandleFunc("POST /alerts/{id}/cancel", s.CancelAlert)
	mux.HandleFunc("DELETE /alerts/{id}", s.DeleteAlert)

	mux.HandleFunc("POST /portfolios", s.CreatePortfolio)
	mux.HandleFunc("GET /portfolios", s.ListPortfolios)
	mux.HandleFunc("GET /portfolios/{id}", s.GetPortfolio)
	mux.HandleFunc("GET /portfolios/{id}/holdings", s.ListHoldings)
	mux.HandleFunc("GET /portfolios/{id}/transactions", s.ListTransactions)
	mux.HandleFunc("POST /portfolios/{id}/transactions", s.AddTransaction)
	mux.HandleFunc("PATCH /transactions/{id}", s.UpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.DeleteTransaction)

	mux.HandleFunc("GET /analytics/dashboard", s.Dashboard)
	mux.HandleFunc("GET /analytics/roi", s.Roi)
	mux.HandleFunc("GET /analytics/allocation", s.Allocation)

	mux.HandleFunc("POST /refresh", s.TriggerRefresh)
	mux.HandleFunc("POST /alerts/check", s.TriggerAlertCheck)

	mux.HandleFunc("GET /ws", s.hub.HandleWS)
	mux.HandleFunc("GET /healthz", s.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Health reports liveness and hub statistics.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Message: "ok",
		Data:    s.hub.Stats(),
	})
}

// userID resolves the caller from the Authorization header. Empty means
// anonymous.
func (s *Server) userID(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	id, err := s.auth.UserIDFromToken(strings.TrimSpace(token))
	if err != nil {
		return ""
	}
	return id
}

// requireUser resolves the caller and writes a 401 when anonymous.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := s.userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "Authentication required"})
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Anything outside
// the taxonomy is a 500 with a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, apperrors.ErrInvalidState):
		status, message = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, apperrors.ErrRateLimited):
		status, message = http.StatusTooManyRequests, err.Error()
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		status, message = http.StatusBadGateway, err.Error()
	case errors.Is(err, pricesync.ErrRefreshInFlight),
		errors.Is(err, alerts.ErrCheckInFlight):
		status, message = http.StatusConflict, err.Error()
	default:
		logger.Log.Error("Unhandled error in request", zap.Error(err))
	}

	writeJSON(w, status, Response{Message: message})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", apperrors.ErrValidation)
	}
	return nil
}

func generateCacheKey(r *http.Request, prefix string) string {
	queryParams := r.URL.Query()
	var keys []string
	for k := range queryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var queryString []string
	for _, k := range keys {
		queryString = append(queryString, fmt.Sprintf("%s=%s", k, strings.Join(queryParams[k], ",")))
	}
	joined := strings.Join(queryString, "&")

	hash := sha256.Sum256([]byte(joined))
	return prefix + hex.EncodeToString(hash[:8])
}
