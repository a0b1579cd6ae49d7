package handlers

import (
	"net/http"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/portfolio"

	"go.opentelemetry.io/otel"
)

// CreatePortfolioRequest is the body of POST /portfolios.
type CreatePortfolioRequest struct {
	Name string `json:"name"`
}

// CreatePortfolio opens a new portfolio for the caller.
func (s *Server) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "CreatePortfolio")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req CreatePortfolioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.portfolioSvc.CreatePortfolio(ctx, userID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Message: "Portfolio created successfully",
		Data:    p,
	})
}

// ListPortfolios returns all of the caller's portfolios.
func (s *Server) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "ListPortfolios")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	portfolios, err := s.portfolioSvc.ListPortfolios(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Portfolios retrieved successfully",
		Data:    portfolios,
	})
}

// GetPortfolio returns one of the caller's portfolios with cached totals.
func (s *Server) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "GetPortfolio")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	p, err := s.portfolioSvc.GetPortfolio(ctx, userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Portfolio retrieved successfully",
		Data:    p,
	})
}

// ListHoldings returns the portfolio's holdings priced at current market
// values.
func (s *Server) ListHoldings(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "ListHoldings")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	holdings, err := s.portfolioSvc.ListHoldings(ctx, userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Holdings retrieved successfully",
		Data:    holdings,
	})
}

// ListTransactions returns the portfolio's transactions in execution order.
func (s *Server) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "ListTransactions")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	txs, err := s.portfolioSvc.ListTransactions(ctx, userID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Transactions retrieved successfully",
		Data:    txs,
	})
}

// AddTransaction records a buy or sell and recomputes the affected holding.
func (s *Server) AddTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "AddTransaction")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var params portfolio.TransactionParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	tx, err := s.portfolioSvc.AddTransaction(ctx, userID, r.PathValue("id"), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Message: "Transaction recorded successfully",
		Data:    tx,
	})
}

// UpdateTransaction rewrites a transaction and replays the affected holding.
func (s *Server) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "UpdateTransaction")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var params portfolio.TransactionParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	tx, err := s.portfolioSvc.UpdateTransaction(ctx, userID, r.PathValue("id"), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Transaction updated successfully",
		Data:    tx,
	})
}

// DeleteTransaction removes a transaction and replays the affected holding.
func (s *Server) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "DeleteTransaction")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	if err := s.portfolioSvc.DeleteTransaction(ctx, userID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "Transaction deleted successfully"})
}
