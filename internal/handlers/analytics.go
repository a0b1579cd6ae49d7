package handlers

import (
	"net/http"

	"go.opentelemetry.io/otel"
)

// Dashboard summarizes everything the caller holds across portfolios.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "Dashboard")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	summary, err := s.analytics.Dashboard(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Dashboard retrieved successfully",
		Data:    summary,
	})
}

// Roi returns the estimated ROI time series, optionally scoped to one
// portfolio via the portfolio_id query parameter.
func (s *Server) Roi(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "Roi")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	portfolioID := r.URL.Query().Get("portfolio_id")
	if portfolioID != "" {
		// Scoping to a portfolio still enforces ownership.
		if _, err := s.portfolioSvc.GetPortfolio(ctx, userID, portfolioID); err != nil {
			writeError(w, err)
			return
		}
	}

	summary, err := s.analytics.Roi(ctx, userID, portfolioID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "ROI retrieved successfully",
		Data:    summary,
	})
}

// Allocation breaks the caller's current value down per asset, optionally
// scoped to one portfolio via the portfolio_id query parameter.
func (s *Server) Allocation(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "Allocation")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	portfolioID := r.URL.Query().Get("portfolio_id")
	if portfolioID != "" {
		if _, err := s.portfolioSvc.GetPortfolio(ctx, userID, portfolioID); err != nil {
			writeError(w, err)
			return
		}
	}

	items, err := s.analytics.Allocation(ctx, userID, portfolioID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Allocation retrieved successfully",
		Data:    items,
	})
}
