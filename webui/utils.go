package webui

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// monitorWebSocket liest, bis der Client die Verbindung schließt.
func monitorWebSocket(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logrus.Debugf("WEBUI: WebSocket disconnected: %v", err)
			conn.Close()
			return
		}
	}
}

func gracefulShutdown(conn *websocket.Conn) {
	if err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		logrus.Debugf("WEBUI: error closing WebSocket: %v", err)
	}
	conn.Close()
}
