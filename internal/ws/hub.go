// Package ws maintains live client connections and fans price, alert and
// portfolio events out to the right subscribers. The subscription state is
// process-local, owned exclusively by the hub, and rebuilt from scratch as
// connections come and go.
package ws

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/alerts"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/logger"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var wsConnectionsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Current number of live websocket connections",
	},
)

func init() {
	prometheus.MustRegister(wsConnectionsGauge)
}

// AssetReader resolves symbols during subscribe so unknown ones can be
// dropped and the accepted ones answered with a current snapshot.
type AssetReader interface {
	GetAssetBySymbol(ctx context.Context, symbol string) (*models.TrackedAsset, error)
}

// Authenticator resolves an opportunistic credential to a user id. A
// failure means the connection stays anonymous, not that it is rejected.
type Authenticator interface {
	UserIDFromToken(token string) (string, error)
}

// Event is one named server-to-client frame.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PriceUpdate is the payload of a price-update event.
type PriceUpdate struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change24h"`
	Timestamp time.Time `json:"timestamp"`
}

// SymbolPrice is the per-symbol snapshot returned on subscribe.
type SymbolPrice struct {
	Price       float64   `json:"price"`
	Change24h   float64   `json:"change24h"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Hub owns the connection registry and the symbol subscription index. All
// mutation goes through its methods; no other component touches the maps.
type Hub struct {
	assets AssetReader
	auth   Authenticator

	mu       sync.RWMutex
	clients  map[string]*client            // connection id -> client
	bySymbol map[string]map[string]*client // symbol -> connection id -> client
	byUser   map[string]map[string]*client // user id -> connection id -> client
}

// NewHub builds a hub. auth may be nil, in which case every connection is
// anonymous.
func NewHub(assets AssetReader, auth Authenticator) *Hub {
	return &Hub{
		assets:   assets,
		clients:  make(map[string]*client),
		bySymbol: make(map[string]map[string]*client),
		byUser:   make(map[string]map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	if c.userID != "" {
		if h.byUser[c.userID] == nil {
			h.byUser[c.userID] = make(map[string]*client)
		}
		h.byUser[c.userID][c.id] = c
	}
	total := len(h.clients)
	h.mu.Unlock()

	wsConnectionsGauge.Set(float64(total))
	logger.Log.Info("Client connected",
		zap.String("client_id", c.id),
		zap.Bool("authenticated", c.userID != ""),
		zap.Int("total_clients", total),
	)

	c.enqueue(Event{Event: "connected", Data: map[string]any{
		"clientId":      c.id,
		"authenticated": c.userID != "",
	}})
	h.emitStats()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	for symbol := range c.subscriptions {
		h.dropSubscriptionLocked(symbol, c.id)
	}
	delete(h.clients, c.id)
	if c.userID != "" {
		if conns := h.byUser[c.userID]; conns != nil {
			delete(conns, c.id)
			if len(conns) == 0 {
				delete(h.byUser, c.userID)
			}
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	wsConnectionsGauge.Set(float64(total))
	logger.Log.Info("Client disconnected",
		zap.String("client_id", c.id),
		zap.Int("total_clients", total),
	)
	h.emitStats()
}

// Subscribe validates the requested symbols, drops unknown ones silently,
// records the survivors for the connection, and returns them together with
// their current prices.
func (h *Hub) Subscribe(ctx context.Context, c *client, symbols []string) ([]string, map[string]SymbolPrice) {
	valid := make([]string, 0, len(symbols))
	prices := make(map[string]SymbolPrice, len(symbols))

	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}

		asset, err := h.assets.GetAssetBySymbol(ctx, symbol)
		if err != nil {
			logger.Log.Warn("Ignoring subscription to unknown symbol",
				zap.String("client_id", c.id),
				zap.String("symbol", symbol),
			)
			continue
		}

		valid = append(valid, symbol)
		prices[symbol] = SymbolPrice{
			Price:       asset.CurrentPrice,
			Change24h:   asset.PriceChangePct24h,
			LastUpdated: asset.LastUpdated,
		}
	}

	h.mu.Lock()
	for _, symbol := range valid {
		if h.bySymbol[symbol] == nil {
			h.bySymbol[symbol] = make(map[string]*client)
		}
		h.bySymbol[symbol][c.id] = c
		c.subscriptions[symbol] = struct{}{}
	}
	h.mu.Unlock()

	h.emitStats()
	return valid, prices
}

// Unsubscribe removes the given symbols from the connection's subscription
// set. The last subscriber leaving a symbol prunes its index entry.
func (h *Hub) Unsubscribe(c *client, symbols []string) []string {
	removed := make([]string, 0, len(symbols))

	h.mu.Lock()
	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		h.dropSubscriptionLocked(symbol, c.id)
		delete(c.subscriptions, symbol)
		removed = append(removed, symbol)
	}
	h.mu.Unlock()

	h.emitStats()
	return removed
}

// dropSubscriptionLocked removes one (symbol, connection) edge and prunes
// empty symbol entries. Caller holds h.mu.
func (h *Hub) dropSubscriptionLocked(symbol, clientID string) {
	subscribers := h.bySymbol[symbol]
	if subscribers == nil {
		return
	}
	delete(subscribers, clientID)
	if len(subscribers) == 0 {
		delete(h.bySymbol, symbol)
	}
}

// BroadcastPrice sends a price-update event to every subscriber of the
// symbol. A symbol with no subscribers is a no-op.
func (h *Hub) BroadcastPrice(symbol string, price, change24h float64) {
	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.bySymbol[symbol]))
	for _, c := range h.bySymbol[symbol] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	event := Event{Event: "price-update", Data: PriceUpdate{
		Symbol:    symbol,
		Price:     price,
		Change24h: change24h,
		Timestamp: time.Now().UTC(),
	}}
	for _, c := range subscribers {
		c.enqueue(event)
	}

	logger.Log.Debug("Broadcasted price update",
		zap.String("symbol", symbol),
		zap.Int("subscribers", len(subscribers)),
	)
}

// BroadcastMany fans out a batch of price updates, one symbol at a time.
func (h *Hub) BroadcastMany(updates []PriceUpdate) {
	for _, u := range updates {
		h.BroadcastPrice(u.Symbol, u.Price, u.Change24h)
	}
}

// PricesUpdated adapts the hub to the price synchronizer's listener
// interface.
func (h *Hub) PricesUpdated(_ context.Context, assets []*models.TrackedAsset) {
	updates := make([]PriceUpdate, 0, len(assets))
	for _, asset := range assets {
		updates = append(updates, PriceUpdate{
			Symbol:    asset.Symbol,
			Price:     asset.CurrentPrice,
			Change24h: asset.PriceChangePct24h,
			Timestamp: asset.LastUpdated,
		})
	}
	h.BroadcastMany(updates)
}

// AlertTriggered implements the alert engine's sink: the trigger event goes
// to every live connection of the rule's owner.
func (h *Hub) AlertTriggered(_ context.Context, event alerts.TriggerEvent) {
	h.SendToUser(event.UserID, Event{Event: "alert-triggered", Data: event})
}

// SendToUser delivers an event to every live connection authenticated as
// the given user. Anonymous connections are never targeted.
func (h *Hub) SendToUser(userID string, event Event) {
	if userID == "" {
		return
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.byUser[userID]))
	for _, c := range h.byUser[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	for _, c := range conns {
		c.enqueue(event)
	}

	logger.Log.Debug("Sent event to user",
		zap.String("user_id", userID),
		zap.String("event", event.Event),
		zap.Int("connections", len(conns)),
	)
}

// SendPortfolioUpdate pushes refreshed portfolio totals to the owner.
func (h *Hub) SendPortfolioUpdate(userID, portfolioID string, data map[string]any) {
	payload := map[string]any{"portfolioId": portfolioID, "timestamp": time.Now().UTC()}
	for k, v := range data {
		payload[k] = v
	}
	h.SendToUser(userID, Event{Event: "portfolio-update", Data: payload})
}

// BroadcastToAll sends an event to every live connection.
func (h *Hub) BroadcastToAll(event Event) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(event)
	}
}

// Announce broadcasts a system announcement to everyone.
func (h *Hub) Announce(message, kind string) {
	h.BroadcastToAll(Event{Event: "announcement", Data: map[string]any{
		"message":   message,
		"type":      kind,
		"timestamp": time.Now().UTC(),
	}})
}

// StatsSnapshot summarizes the live connection state.
type StatsSnapshot struct {
	TotalConnections         int            `json:"totalConnections"`
	AuthenticatedConnections int            `json:"authenticatedConnections"`
	ConnectedUsers           int            `json:"connectedUsers"`
	Subscriptions            map[string]int `json:"subscriptions"`
}

// Stats returns the current connection and subscription counts.
func (h *Hub) Stats() StatsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := StatsSnapshot{
		TotalConnections: len(h.clients),
		ConnectedUsers:   len(h.byUser),
		Subscriptions:    make(map[string]int, len(h.bySymbol)),
	}
	for _, c := range h.clients {
		if c.userID != "" {
			stats.AuthenticatedConnections++
		}
	}
	for symbol, subscribers := range h.bySymbol {
		stats.Subscriptions[symbol] = len(subscribers)
	}

	return stats
}

func (h *Hub) emitStats() {
	h.BroadcastToAll(Event{Event: "stats", Data: h.Stats()})
}
