package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a websocket frame in either direction: a typed envelope
// with a JSON payload.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 16
)

type wsClient struct {
	conn *websocket.Conn
	send chan Event
}

// Hub tracks open websocket connections per user so server-side
// events (deposit settlement from the background sweep) can be pushed
// without a client request in flight.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64]map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[int64]map[*wsClient]struct{})}
}

func (h *Hub) register(userID int64, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*wsClient]struct{})
	}
	h.conns[userID][c] = struct{}{}
}

func (h *Hub) unregister(userID int64, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns[userID], c)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// Push sends an event to every open connection of the user. A client
// with a full send buffer misses the event; it can always re-poll.
func (h *Hub) Push(userID int64, eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Error("marshal ws event", "type", eventType, "error", err)
		return
	}

	event := Event{Type: eventType, Data: raw}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns[userID] {
		select {
		case c.send <- event:
		default:
		}
	}
}

// WSHandler binds the spin and deposit operations onto a websocket
// connection, mirroring the HTTP surface.
type WSHandler struct {
	hub      *Hub
	ledger   LedgerService
	deposits DepositService
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, ledgerSvc LedgerService, depositSvc DepositService) *WSHandler {
	return &WSHandler{
		hub:      hub,
		ledger:   ledgerSvc,
		deposits: depositSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeHTTP handles GET /api/ws. Requires the auth middleware: the
// token rides in the query string since browsers cannot set headers on
// the upgrade request.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan Event, wsSendBuffer)}
	h.hub.register(userID, client)

	done := make(chan struct{})
	go h.writePump(client, done)

	h.readLoop(r, userID, client)

	h.hub.unregister(userID, client)
	close(done)
	_ = conn.Close()
}

func (h *WSHandler) writePump(c *wsClient, done <-chan struct{}) {
	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

			err := c.conn.WriteJSON(event)
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WSHandler) readLoop(r *http.Request, userID int64, c *wsClient) {
	for {
		var req Event
		err := c.conn.ReadJSON(&req)
		if err != nil {
			return
		}

		resp := h.dispatch(r, userID, req)

		// Direct replies must not be dropped: wait for buffer space,
		// and give up on the connection if the client cannot keep up.
		if !sendReply(c, resp, wsWriteWait) {
			return
		}
	}
}

func sendReply(c *wsClient, event Event, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.send <- event:
		return true
	case <-timer.C:
		return false
	}
}

type wsErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func wsError(code int, msg string) Event {
	raw, _ := json.Marshal(wsErrorBody{Code: code, Message: msg})

	return Event{Type: "error", Data: raw}
}

func wsResult(eventType string, v any) Event {
	raw, err := json.Marshal(v)
	if err != nil {
		return wsError(http.StatusInternalServerError, "internal error")
	}

	return Event{Type: eventType, Data: raw}
}

func (h *WSHandler) dispatch(r *http.Request, userID int64, req Event) Event {
	switch req.Type {
	case "ping":
		return Event{Type: "pong"}

	case "balance":
		balance, err := h.ledger.GetBalance(r.Context(), userID)
		if err != nil {
			return wsError(domainStatus(err))
		}

		return wsResult("balance", map[string]int64{"balance": balance})

	case "spin":
		var body spinRequest
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return wsError(http.StatusBadRequest, "invalid spin request")
		}

		res, err := h.ledger.SettleSpin(r.Context(), userID, body.BetCredits, body.SatsPerCredit)
		if err != nil {
			return wsError(domainStatus(err))
		}

		return wsResult("spin", spinResultBody(res))

	case "deposit":
		var body createDepositRequest
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return wsError(http.StatusBadRequest, "invalid deposit request")
		}

		dep, err := h.deposits.RequestDeposit(r.Context(), userID, body.AmountSats)
		if err != nil {
			return wsError(domainStatus(err))
		}

		return wsResult("deposit", depositResponse{
			PaymentRequest: dep.PaymentRequest,
			PaymentHash:    dep.PaymentHash,
			AmountSats:     dep.AmountSats,
		})

	case "deposit_status":
		var body struct {
			PaymentHash string `json:"payment_hash"`
		}
		if err := json.Unmarshal(req.Data, &body); err != nil || body.PaymentHash == "" {
			return wsError(http.StatusBadRequest, "invalid deposit_status request")
		}

		st, err := h.deposits.CheckAndSettle(r.Context(), userID, body.PaymentHash)
		if err != nil {
			return wsError(domainStatus(err))
		}

		return wsResult("deposit_status", depositStatusResponse{
			PaymentHash:  st.PaymentHash,
			Paid:         st.Paid,
			CreditedSats: st.CreditedSats,
			Balance:      st.Balance,
		})

	default:
		return wsError(http.StatusBadRequest, "unknown message type")
	}
}
