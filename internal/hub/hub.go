// Package hub owns the set of live realtime connections. Every
// cross-connection event — new messages, receipts, typing signals, the
// online roster — is routed through the Hub, which consults the presence
// registry for the target user's connections and fans the event out to each.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aditya2785/web-chat/internal/auth"
	"github.com/aditya2785/web-chat/internal/event"
	"github.com/aditya2785/web-chat/internal/metrics"
	"github.com/aditya2785/web-chat/internal/presence"
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type Hub struct {
	registry *presence.Registry
	tokens   *auth.TokenService
	logger   *zap.Logger

	clients   map[string]*Client // connection id -> client
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewHub(registry *presence.Registry, tokens *auth.TokenService, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:   registry,
		tokens:     tokens,
		logger:     logger,
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		ctx:        ctx,
		cancel:     cancel,
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// run serializes register/unregister so that registry mutation and the
// roster broadcast that follows it happen in order per lifecycle change.
func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c.ID] = c
	h.clientsMu.Unlock()

	h.registry.Register(c.userID, c.ID)
	h.updateGauges()

	h.logger.Debug("client registered",
		zap.String("conn_id", c.ID),
		zap.String("user_id", c.userID),
	)

	// The client is Active once the fresh roster has gone out.
	h.broadcastRoster()
}

func (h *Hub) removeClient(c *Client) {
	h.clientsMu.Lock()
	_, exists := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.clientsMu.Unlock()

	if !exists {
		// Double-disconnect race; nothing left to do.
		return
	}

	h.registry.Unregister(c.userID, c.ID)
	h.updateGauges()
	c.Close()

	h.logger.Debug("client removed",
		zap.String("conn_id", c.ID),
		zap.String("user_id", c.userID),
	)

	h.broadcastRoster()
}

// -----------------------------------------------------------------
// Fan-out
// -----------------------------------------------------------------

// SendToUser delivers ev to every live connection of userID. A user with no
// connections simply receives nothing; the store remains the source of truth.
func (h *Hub) SendToUser(userID string, ev event.WsEvent) {
	connIDs := h.registry.ConnectionsFor(userID)
	if len(connIDs) == 0 {
		metrics.PresenceMisses.Inc()
		h.logger.Debug("presence miss",
			zap.String("user_id", userID),
			zap.String("event", ev.Event),
		)
		return
	}

	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		if c.SafeSend(ev, sendTimeout) {
			metrics.EventsTotal.WithLabelValues(ev.Event).Inc()
		}
	}
}

// Broadcast delivers ev to every live connection.
func (h *Hub) Broadcast(ev event.WsEvent) {
	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		if c.SafeSend(ev, sendTimeout) {
			metrics.EventsTotal.WithLabelValues(ev.Event).Inc()
		}
	}
}

func (h *Hub) broadcastRoster() {
	ev, err := event.New(event.EventOnlineUsers, h.registry.OnlineUserIDs())
	if err != nil {
		h.logger.Error("failed to encode roster", zap.Error(err))
		return
	}
	h.Broadcast(ev)
}

func (h *Hub) updateGauges() {
	metrics.ConnectionsTotal.Set(float64(h.registry.ConnectionCount()))
	metrics.OnlineUsers.Set(float64(len(h.registry.OnlineUserIDs())))
}

// -----------------------------------------------------------------
// Inbound event routing
// -----------------------------------------------------------------

// relayedMessage is the slice of a message record the optimistic send relay
// needs for routing; the rest of the record passes through untouched.
type relayedMessage struct {
	ID         string `json:"_id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventClientTyping, event.EventClientStopTyping:
		var sig event.TypingSignal
		if err := json.Unmarshal(ev.Payload, &sig); err != nil {
			h.logger.Warn("bad typing signal", zap.String("conn_id", c.ID), zap.Error(err))
			return
		}
		if sig.ReceiverID == "" {
			return
		}
		// Forward only the authenticated sender id, only to the named
		// receiver's connections. The server keeps no typing state; the
		// receiving client clears the indicator itself.
		out, err := event.New(ev.Event, event.TypingSignal{SenderID: c.userID})
		if err != nil {
			return
		}
		h.SendToUser(sig.ReceiverID, out)

	case event.EventClientSend:
		// Optimistic relay of an already-persisted message record.
		var msg relayedMessage
		if err := json.Unmarshal(ev.Payload, &msg); err != nil || msg.ReceiverID == "" {
			return
		}
		if newMsg, err := event.New(event.EventNewMessage, json.RawMessage(ev.Payload)); err == nil {
			h.SendToUser(msg.ReceiverID, newMsg)
		}
		if delivered, err := event.New(event.EventMessageDelivered, msg.ID); err == nil {
			h.SendToUser(c.userID, delivered)
		}

	default:
		h.logger.Warn("unknown event type",
			zap.String("event", ev.Event),
			zap.String("conn_id", c.ID),
		)
	}
}

// -----------------------------------------------------------------
// Connection handshake
// -----------------------------------------------------------------

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS authenticates and upgrades a realtime connection. The credential
// is resolved exactly once; a missing or invalid token closes the connection
// before any event is processed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.ResolveToken(r.URL.Query().Get("token"))
	if err != nil {
		h.logger.Info("socket rejected: invalid credential", zap.Error(err))
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	RegisterClient(claims.UserID, conn, h)
}

// Stop shuts the hub down: all clients are closed and the worker pool
// drains. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		h.clientsMu.RLock()
		for _, c := range h.clients {
			c.Close()
		}
		h.clientsMu.RUnlock()

		close(h.inbound)
		h.wg.Wait()
	})
}
