package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/neighborhood-grub/kds"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventsHandler meng-upgrade koneksi dan mendaftarkannya ke hub sampai client menutup koneksi.
func EventsHandler(hub *kds.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := actor(c)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			utils.ErrorLogger.Errorf("websocket upgrade failed: %v", err)
			return
		}

		hub.Register(conn, kds.Client{AccountID: a.AccountID, Roles: a.Roles})
		utils.InfoLogger.WithField("account_id", a.AccountID).Info("event stream connected")
		defer hub.Unregister(conn)

		// read loop hanya untuk mendeteksi close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}
