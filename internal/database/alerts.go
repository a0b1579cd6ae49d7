package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"go.uber.org/zap"
)

// Alert queries join the asset symbol so callers and events never need a
// second lookup.
const alertColumns = `
	a.id, a.user_id, a.asset_id, t.symbol, a.direction, a.target_price,
	a.message, a.status, a.triggered_at, a.created_at, a.updated_at
`

const alertFrom = ` FROM alert_rules a JOIN tracked_assets t ON t.id = a.asset_id `

// CreateAlert inserts a new alert rule.
func (s *Store) CreateAlert(ctx context.Context, alert *models.AlertRule) error {
	query := `
		INSERT INTO alert_rules (id, user_id, asset_id, direction, target_price, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.UserID, alert.AssetID, alert.Direction,
		alert.TargetPrice, alert.Message, alert.Status,
		alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		logger.Log.Error("Failed to create alert rule",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// GetAlert retrieves one alert rule by id.
func (s *Store) GetAlert(ctx context.Context, id string) (*models.AlertRule, error) {
	query := `SELECT ` + alertColumns + alertFrom + ` WHERE a.id = $1`

	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: alert %s", apperrors.ErrNotFound, id)
		}
		logger.Log.Error("Failed to retrieve alert rule",
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return nil, err
	}

	return alert, nil
}

// ListAlertsByUser retrieves a user's alert rules, newest first. An empty
// status means all statuses.
func (s *Store) ListAlertsByUser(ctx context.Context, userID string, status models.AlertStatus) ([]*models.AlertRule, error) {
	query := `SELECT ` + alertColumns + alertFrom + ` WHERE a.user_id = $1`
	args := []any{userID}

	if status != "" {
		query += ` AND a.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY a.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Log.Error("Failed to query alerts by user",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// ListActiveAlertsByAsset retrieves every ACTIVE rule referencing an asset.
func (s *Store) ListActiveAlertsByAsset(ctx context.Context, assetID string) ([]*models.AlertRule, error) {
	query := `SELECT ` + alertColumns + alertFrom + ` WHERE a.asset_id = $1 AND a.status = $2`

	rows, err := s.db.QueryContext(ctx, query, assetID, models.AlertActive)
	if err != nil {
		logger.Log.Error("Failed to query active alerts by asset",
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// ListActiveAlerts retrieves every ACTIVE rule across all users and assets.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]*models.AlertRule, error) {
	query := `SELECT ` + alertColumns + alertFrom + ` WHERE a.status = $1`

	rows, err := s.db.QueryContext(ctx, query, models.AlertActive)
	if err != nil {
		logger.Log.Error("Failed to query active alerts", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// HasActiveDuplicate reports whether an identical ACTIVE rule already exists
// for the (user, asset, direction, target price) tuple.
func (s *Store) HasActiveDuplicate(ctx context.Context, userID, assetID string, direction models.AlertDirection, targetPrice float64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM alert_rules
			WHERE user_id = $1 AND asset_id = $2 AND direction = $3
			  AND target_price = $4 AND status = $5
		)
	`

	var exists bool
	err := s.db.QueryRowContext(ctx, query,
		userID, assetID, direction, targetPrice, models.AlertActive).Scan(&exists)
	if err != nil {
		logger.Log.Error("Failed to check for duplicate alert", zap.Error(err))
		return false, err
	}

	return exists, nil
}

// UpdateAlert persists the mutable fields and lifecycle state of a rule.
func (s *Store) UpdateAlert(ctx context.Context, alert *models.AlertRule) error {
	query := `
		UPDATE alert_rules
		SET direction = $1, target_price = $2, message = $3, status = $4,
		    triggered_at = $5, updated_at = $6
		WHERE id = $7
	`

	_, err := s.db.ExecContext(ctx, query,
		alert.Direction, alert.TargetPrice, alert.Message, alert.Status,
		alert.TriggeredAt, alert.UpdatedAt, alert.ID,
	)
	if err != nil {
		logger.Log.Error("Failed to update alert rule",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// DeleteAlert removes an alert rule by id.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		logger.Log.Error("Failed to delete alert rule",
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func scanAlert(row rowScanner) (*models.AlertRule, error) {
	var alert models.AlertRule
	var message sql.NullString
	var triggeredAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.UserID, &alert.AssetID, &alert.Symbol,
		&alert.Direction, &alert.TargetPrice, &message, &alert.Status,
		&triggeredAt, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if message.Valid {
		alert.Message = message.String
	}
	if triggeredAt.Valid {
		t := triggeredAt.Time
		alert.TriggeredAt = &t
	}

	return &alert, nil
}

func scanAlerts(rows *sql.Rows) ([]*models.AlertRule, error) {
	var alerts []*models.AlertRule

	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}
