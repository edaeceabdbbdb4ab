package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	paymentService "github.com/zhouzirui/xrp-pay/backend/internal/service/payment"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

type outgoingMessage struct {
	Type      string                     `json:"type"`
	PaymentID string                     `json:"paymentId"`
	Data      *paymentService.StatusView `json:"data,omitempty"`
	Timestamp int64                      `json:"timestamp"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writeControl(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

// handleWebSocket 推送支付状态变化，支付完成后关闭连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := h.paymentID(r)
	if id == "" {
		http.Error(w, "paymentUuid is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "payment_id", id, "error", err)
		return
	}
	defer conn.Close()

	log := h.log.With("payment_id", id)
	log.Debugw("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws := &wsConn{conn: conn}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients never send anything meaningful; reading drives pong and close
	// handling and tells us when the peer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debugw("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	go h.pingLoop(ctx, ws)

	for view := range h.svc.Watch(ctx, id, h.interval) {
		msg := outgoingMessage{Type: "status", PaymentID: id, Data: &view, Timestamp: time.Now().UnixMilli()}
		if err := ws.writeJSON(msg); err != nil {
			log.Debugw("websocket write failed", "error", err)
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	_ = ws.writeJSON(outgoingMessage{Type: "end", PaymentID: id, Timestamp: time.Now().UnixMilli()})
	_ = ws.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "payment finished"))
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, ws *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
