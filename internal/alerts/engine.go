// Package alerts evaluates active price alert rules against current market
// data, drives their lifecycle transitions, and emits trigger events.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrCheckInFlight reports that a full sweep was skipped because another one
// is still running.
var ErrCheckInFlight = errors.New("alert check already in progress")

var alertsTriggeredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "alerts_triggered_total",
		Help: "Total number of alert rules transitioned to TRIGGERED",
	},
)

func init() {
	prometheus.MustRegister(alertsTriggeredTotal)
}

// TriggerEvent describes one ACTIVE -> TRIGGERED transition. It is handed to
// every registered sink; delivery failure never rolls the transition back.
type TriggerEvent struct {
	AlertID      string                `json:"alertId"`
	UserID       string                `json:"userId"`
	Symbol       string                `json:"symbol"`
	Direction    models.AlertDirection `json:"direction"`
	TargetPrice  float64               `json:"target"`
	CurrentPrice float64               `json:"currentPrice"`
	Message      string                `json:"message"`
	TriggeredAt  time.Time             `json:"triggeredAt"`
}

// Sink receives trigger events. The websocket hub, the notification
// dispatch producer and the redis publisher all register here.
type Sink interface {
	AlertTriggered(ctx context.Context, event TriggerEvent)
}

// RuleStore is the persistence surface the engine needs.
type RuleStore interface {
	ListActiveAlerts(ctx context.Context) ([]*models.AlertRule, error)
	ListActiveAlertsByAsset(ctx context.Context, assetID string) ([]*models.AlertRule, error)
	UpdateAlert(ctx context.Context, alert *models.AlertRule) error
	GetAssetByID(ctx context.Context, id string) (*models.TrackedAsset, error)
}

// Engine evaluates rules and performs trigger transitions.
type Engine struct {
	store RuleStore
	sinks []Sink

	// 0 = idle, 1 = sweep in flight.
	checking int32
}

// NewEngine builds an alert engine over the given store.
func NewEngine(store RuleStore) *Engine {
	return &Engine{store: store}
}

// AddSink registers a trigger event sink. Not safe to call once the engine
// is running.
func (e *Engine) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

// ShouldTrigger reports whether a rule fires at the given price. The
// boundary is inclusive in both directions: price == target triggers.
func ShouldTrigger(rule *models.AlertRule, currentPrice float64) bool {
	if rule.Direction == models.AlertAbove {
		return currentPrice >= rule.TargetPrice
	}
	return currentPrice <= rule.TargetPrice
}

// Evaluate checks the ACTIVE rules referencing each updated asset against
// its just-refreshed price and returns the rules it triggered. It implements
// the synchronizer's Listener contract via PricesUpdated.
func (e *Engine) Evaluate(ctx context.Context, assets []*models.TrackedAsset) []*models.AlertRule {
	var triggered []*models.AlertRule

	for _, asset := range assets {
		rules, err := e.store.ListActiveAlertsByAsset(ctx, asset.ID)
		if err != nil {
			// One asset's rule group failing must not block the others.
			logger.Log.Error("Failed to load alert rules for asset",
				zap.String("symbol", asset.Symbol),
				zap.Error(err),
			)
			continue
		}

		for _, rule := range rules {
			if !ShouldTrigger(rule, asset.CurrentPrice) {
				continue
			}
			if err := e.trigger(ctx, rule, asset.CurrentPrice); err != nil {
				logger.Log.Error("Failed to trigger alert",
					zap.String("alert_id", rule.ID),
					zap.Error(err),
				)
				continue
			}
			triggered = append(triggered, rule)
		}
	}

	if len(triggered) > 0 {
		logger.Log.Info("Alerts triggered by price refresh", zap.Int("count", len(triggered)))
	}

	return triggered
}

// PricesUpdated adapts Evaluate to the price synchronizer's listener
// interface.
func (e *Engine) PricesUpdated(ctx context.Context, assets []*models.TrackedAsset) {
	e.Evaluate(ctx, assets)
}

// CheckAll sweeps every ACTIVE rule, grouped by asset to minimize price
// lookups. At most one sweep runs at a time; a concurrent call returns
// ErrCheckInFlight. A failed lookup for one asset's group is logged and the
// sweep moves on.
func (e *Engine) CheckAll(ctx context.Context) ([]*models.AlertRule, error) {
	if !atomic.CompareAndSwapInt32(&e.checking, 0, 1) {
		logger.Log.Debug("Alert check already in progress, skipping")
		return nil, ErrCheckInFlight
	}
	defer atomic.StoreInt32(&e.checking, 0)

	rules, err := e.store.ListActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active alerts: %w", err)
	}

	byAsset := make(map[string][]*models.AlertRule)
	for _, rule := range rules {
		byAsset[rule.AssetID] = append(byAsset[rule.AssetID], rule)
	}

	var triggered []*models.AlertRule
	for assetID, group := range byAsset {
		asset, err := e.store.GetAssetByID(ctx, assetID)
		if err != nil {
			logger.Log.Error("Failed to look up asset for alert group",
				zap.String("asset_id", assetID),
				zap.Error(err),
			)
			continue
		}

		for _, rule := range group {
			if !ShouldTrigger(rule, asset.CurrentPrice) {
				continue
			}
			if err := e.trigger(ctx, rule, asset.CurrentPrice); err != nil {
				logger.Log.Error("Failed to trigger alert",
					zap.String("alert_id", rule.ID),
					zap.Error(err),
				)
				continue
			}
			triggered = append(triggered, rule)
		}
	}

	if len(triggered) > 0 {
		logger.Log.Info("Total alerts triggered", zap.Int("count", len(triggered)))
	}

	return triggered, nil
}

// InFlight reports whether a sweep is currently running.
func (e *Engine) InFlight() bool {
	return atomic.LoadInt32(&e.checking) == 1
}

// Run drives the periodic sweep until ctx is cancelled: a frequent ticker
// plus a slower backstop that only fires while the frequent path is idle.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	backstop := time.NewTicker(5 * interval)
	defer ticker.Stop()
	defer backstop.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.CheckAll(ctx); err != nil && !errors.Is(err, ErrCheckInFlight) {
				logger.Log.Error("Failed to check alerts", zap.Error(err))
			}
		case <-backstop.C:
			if e.InFlight() {
				continue
			}
			if _, err := e.CheckAll(ctx); err != nil && !errors.Is(err, ErrCheckInFlight) {
				logger.Log.Error("Backstop alert check failed", zap.Error(err))
			}
		}
	}
}

// trigger performs the ACTIVE -> TRIGGERED transition, persists it, and
// fans the event out to every sink.
func (e *Engine) trigger(ctx context.Context, rule *models.AlertRule, currentPrice float64) error {
	now := time.Now().UTC()
	rule.Status = models.AlertTriggered
	rule.TriggeredAt = &now
	rule.UpdatedAt = now

	if err := e.store.UpdateAlert(ctx, rule); err != nil {
		return err
	}

	alertsTriggeredTotal.Inc()
	logger.Log.Info("Alert triggered",
		zap.String("symbol", rule.Symbol),
		zap.String("direction", string(rule.Direction)),
		zap.Float64("target", rule.TargetPrice),
		zap.Float64("current_price", currentPrice),
	)

	event := TriggerEvent{
		AlertID:      rule.ID,
		UserID:       rule.UserID,
		Symbol:       rule.Symbol,
		Direction:    rule.Direction,
		TargetPrice:  rule.TargetPrice,
		CurrentPrice: currentPrice,
		Message:      rule.Message,
		TriggeredAt:  now,
	}
	if event.Message == "" {
		event.Message = defaultMessage(rule, currentPrice)
	}

	for _, sink := range e.sinks {
		sink.AlertTriggered(ctx, event)
	}

	return nil
}

func defaultMessage(rule *models.AlertRule, currentPrice float64) string {
	return fmt.Sprintf("%s price alert: now at $%.2f (%s your target of $%.2f)",
		rule.Symbol, currentPrice, strings.ToLower(string(rule.Direction)), rule.TargetPrice)
}
