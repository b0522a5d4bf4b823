package kds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Client adalah identitas pemilik koneksi websocket.
type Client struct {
	AccountID uint
	Roles     models.RoleSet
}

// subscriber is one registered connection with its outgoing queue.
type subscriber struct {
	Client
	send chan []byte
}

// Hub menampung semua client (diner, chef, admin) yang menerima event marketplace.
// Publish never writes to a socket itself; each connection has its own writer.
type Hub struct {
	clients    map[*websocket.Conn]*subscriber
	mutex      sync.Mutex
	writeWait  time.Duration
	pingPeriod time.Duration
	sendBuffer int
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*subscriber),
		writeWait:  writeWait,
		pingPeriod: pingPeriod,
		sendBuffer: sendBuffer,
	}
}

var defaultHub = NewHub()

// Default returns the process-wide hub used by the websocket endpoint.
func Default() *Hub {
	return defaultHub
}

// Register -> menambahkan connection ke hub dan menjalankan writer-nya
func (h *Hub) Register(conn *websocket.Conn, client Client) {
	sub := &subscriber{Client: client, send: make(chan []byte, h.sendBuffer)}

	h.mutex.Lock()
	h.clients[conn] = sub
	h.mutex.Unlock()

	go h.writePump(conn, sub)
}

// Unregister -> melepaskan connection. Aman dipanggil lebih dari sekali.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.drop(conn)
}

// drop must be called with h.mutex held.
func (h *Hub) drop(conn *websocket.Conn) {
	sub, ok := h.clients[conn]
	if !ok {
		return
	}
	delete(h.clients, conn)
	close(sub.send)
	conn.Close()
}

func (h *Hub) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Publish queues e for every client allowed to see it: untargeted events go to
// everyone, targeted events to their account and to admins. A client whose
// queue is full is disconnected instead of stalling the caller.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn, sub := range h.clients {
		if e.AccountID != 0 && sub.AccountID != e.AccountID && !sub.Roles.Has(models.RoleAdmin) {
			continue
		}
		select {
		case sub.send <- data:
		default:
			utils.ErrorLogger.WithFields(logrus.Fields{
				"event":      e.Type,
				"account_id": sub.AccountID,
			}).Warn("client too slow, disconnecting")
			h.drop(conn)
		}
	}
	return nil
}

// writePump is the only goroutine writing to conn.
func (h *Hub) writePump(conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		h.Unregister(conn)
	}()

	for {
		select {
		case data, ok := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				utils.ErrorLogger.Printf("Error sending to account %d: %v", sub.AccountID, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
