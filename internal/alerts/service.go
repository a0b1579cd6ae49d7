package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceStore is the persistence surface for single-rule operations.
type ServiceStore interface {
	GetAssetBySymbol(ctx context.Context, symbol string) (*models.TrackedAsset, error)
	HasActiveDuplicate(ctx context.Context, userID, assetID string, direction models.AlertDirection, targetPrice float64) (bool, error)
	CreateAlert(ctx context.Context, alert *models.AlertRule) error
	GetAlert(ctx context.Context, id string) (*models.AlertRule, error)
	UpdateAlert(ctx context.Context, alert *models.AlertRule) error
	DeleteAlert(ctx context.Context, id string) error
	ListAlertsByUser(ctx context.Context, userID string, status models.AlertStatus) ([]*models.AlertRule, error)
}

// Service owns user-driven alert rule operations: create with duplicate
// suppression, update and cancel while ACTIVE, and read paths.
type Service struct {
	store ServiceStore
}

// NewService builds an alert service over the given store.
func NewService(store ServiceStore) *Service {
	return &Service{store: store}
}

// CreateParams are the user-supplied fields of a new rule.
type CreateParams struct {
	Symbol      string
	Direction   models.AlertDirection
	TargetPrice float64
	Message     string
}

// Create validates the asset and target, suppresses duplicate ACTIVE rules
// for the same (user, asset, direction, target) tuple, and persists the new
// rule in ACTIVE state.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (*models.AlertRule, error) {
	if params.Direction != models.AlertAbove && params.Direction != models.AlertBelow {
		return nil, fmt.Errorf("%w: direction must be ABOVE or BELOW", apperrors.ErrValidation)
	}
	if params.TargetPrice <= 0 {
		return nil, fmt.Errorf("%w: target price must be positive", apperrors.ErrValidation)
	}

	asset, err := s.store.GetAssetBySymbol(ctx, params.Symbol)
	if err != nil {
		return nil, err
	}

	duplicate, err := s.store.HasActiveDuplicate(ctx, userID, asset.ID, params.Direction, params.TargetPrice)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, fmt.Errorf("%w: an identical active alert already exists for %s",
			apperrors.ErrConflict, asset.Symbol)
	}

	now := time.Now().UTC()
	alert := &models.AlertRule{
		ID:          uuid.New().String(),
		UserID:      userID,
		AssetID:     asset.ID,
		Symbol:      asset.Symbol,
		Direction:   params.Direction,
		TargetPrice: params.TargetPrice,
		Message:     params.Message,
		Status:      models.AlertActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}

	logger.Log.Info("Alert created",
		zap.String("user_id", userID),
		zap.String("symbol", alert.Symbol),
		zap.String("direction", string(alert.Direction)),
		zap.Float64("target", alert.TargetPrice),
	)

	return alert, nil
}

// UpdateParams are the fields a user may change on an ACTIVE rule. Nil
// means unchanged.
type UpdateParams struct {
	Direction   *models.AlertDirection
	TargetPrice *float64
	Message     *string
}

// Update modifies an ACTIVE rule. TRIGGERED rules are immutable and
// CANCELLED rules are terminal; both are rejected.
func (s *Service) Update(ctx context.Context, id, userID string, params UpdateParams) (*models.AlertRule, error) {
	alert, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if alert.Status != models.AlertActive {
		return nil, fmt.Errorf("%w: cannot update a %s alert",
			apperrors.ErrInvalidState, alert.Status)
	}

	if params.Direction != nil {
		if *params.Direction != models.AlertAbove && *params.Direction != models.AlertBelow {
			return nil, fmt.Errorf("%w: direction must be ABOVE or BELOW", apperrors.ErrValidation)
		}
		alert.Direction = *params.Direction
	}
	if params.TargetPrice != nil {
		if *params.TargetPrice <= 0 {
			return nil, fmt.Errorf("%w: target price must be positive", apperrors.ErrValidation)
		}
		alert.TargetPrice = *params.TargetPrice
	}
	if params.Message != nil {
		alert.Message = *params.Message
	}
	alert.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}

	logger.Log.Info("Alert updated", zap.String("alert_id", id), zap.String("user_id", userID))
	return alert, nil
}

// Cancel transitions an ACTIVE rule to CANCELLED. Only ACTIVE rules can be
// cancelled; CANCELLED is terminal.
func (s *Service) Cancel(ctx context.Context, id, userID string) (*models.AlertRule, error) {
	alert, err := s.owned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if alert.Status != models.AlertActive {
		return nil, fmt.Errorf("%w: only active alerts can be cancelled", apperrors.ErrInvalidState)
	}

	alert.Status = models.AlertCancelled
	alert.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}

	logger.Log.Info("Alert cancelled", zap.String("alert_id", id), zap.String("user_id", userID))
	return alert, nil
}

// Delete removes a rule entirely.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.owned(ctx, id, userID); err != nil {
		return err
	}
	return s.store.DeleteAlert(ctx, id)
}

// Get retrieves one rule scoped to its owner.
func (s *Service) Get(ctx context.Context, id, userID string) (*models.AlertRule, error) {
	return s.owned(ctx, id, userID)
}

// List retrieves a user's rules, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID string, status models.AlertStatus) ([]*models.AlertRule, error) {
	return s.store.ListAlertsByUser(ctx, userID, status)
}

// Stats summarizes a user's rules by status and symbol.
type Stats struct {
	TotalAlerts     int            `json:"totalAlerts"`
	ActiveAlerts    int            `json:"activeAlerts"`
	TriggeredAlerts int            `json:"triggeredAlerts"`
	CancelledAlerts int            `json:"cancelledAlerts"`
	AlertsBySymbol  map[string]int `json:"alertsBySymbol"`
}

// GetStats computes alert statistics for a user.
func (s *Service) GetStats(ctx context.Context, userID string) (*Stats, error) {
	alerts, err := s.store.ListAlertsByUser(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalAlerts:    len(alerts),
		AlertsBySymbol: make(map[string]int),
	}
	for _, alert := range alerts {
		switch alert.Status {
		case models.AlertActive:
			stats.ActiveAlerts++
		case models.AlertTriggered:
			stats.TriggeredAlerts++
		case models.AlertCancelled:
			stats.CancelledAlerts++
		}
		stats.AlertsBySymbol[alert.Symbol]++
	}

	return stats, nil
}

func (s *Service) owned(ctx context.Context, id, userID string) (*models.AlertRule, error) {
	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.UserID != userID {
		return nil, fmt.Errorf("%w: alert %s", apperrors.ErrNotFound, id)
	}
	return alert, nil
}
