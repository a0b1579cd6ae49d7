package handlers

import (
	"net/http"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/alerts"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"go.opentelemetry.io/otel"
)

// CreateAlertRequest is the body of POST /alerts.
type CreateAlertRequest struct {
	Symbol      string  `json:"symbol"`
	Direction   string  `json:"direction"`
	TargetPrice float64 `json:"target_price"`
	Message     string  `json:"message,omitempty"`
}

// UpdateAlertRequest is the body of PATCH /alerts/{id}. Nil fields are left
// unchanged.
type UpdateAlertRequest struct {
	Direction   *string  `json:"direction,omitempty"`
	TargetPrice *float64 `json:"target_price,omitempty"`
	Message     *string  `json:"message,omitempty"`
}

// CreateAlert registers a new price alert rule for the caller.
func (s *Server) CreateAlert(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "CreateAlert")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req CreateAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rule, err := s.alertSvc.Create(ctx, userID, alerts.CreateParams{
		Symbol:      req.Symbol,
		Direction:   models.AlertDirection(req.Direction),
		TargetPrice: req.TargetPrice,
		Message:     req.Message,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Message: "Alert created successfully",
		Data:    rule,
	})
}

// ListAlerts returns the caller's alerts, optionally filtered by status.
func (s *Server) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "ListAlerts")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	status := models.AlertStatus(r.URL.Query().Get("status"))
	rules, err := s.alertSvc.List(ctx, userID, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Alerts retrieved successfully",
		Data:    rules,
	})
}

// GetAlert returns one of the caller's alerts.
func (s *Server) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "GetAlert")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	rule, err := s.alertSvc.Get(ctx, r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Alert retrieved successfully",
		Data:    rule,
	})
}

// UpdateAlert modifies an ACTIVE alert.
func (s *Server) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "UpdateAlert")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	params := alerts.UpdateParams{
		TargetPrice: req.TargetPrice,
		Message:     req.Message,
	}
	if req.Direction != nil {
		direction := models.AlertDirection(*req.Direction)
		params.Direction = &direction
	}

	rule, err := s.alertSvc.Update(ctx, r.PathValue("id"), userID, params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Alert updated successfully",
		Data:    rule,
	})
}

// CancelAlert moves an ACTIVE alert to its CANCELLED terminal state.
func (s *Server) CancelAlert(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "CancelAlert")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	rule, err := s.alertSvc.Cancel(ctx, r.PathValue("id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Alert cancelled successfully",
		Data:    rule,
	})
}

// DeleteAlert removes one of the caller's alerts in any state.
func (s *Server) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "DeleteAlert")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	if err := s.alertSvc.Delete(ctx, r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "Alert deleted successfully"})
}

// AlertStats summarizes the caller's alerts by status and symbol.
func (s *Server) AlertStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "AlertStats")
	defer span.End()

	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	stats, err := s.alertSvc.GetStats(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Message: "Alert stats retrieved successfully",
		Data:    stats,
	})
}
