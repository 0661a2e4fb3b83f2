package stream

import (
	"sync"
	"time"

	"appgen/internal/domain/entity"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WSWriter sends each event as a JSON text message on a websocket connection.
type WSWriter struct {
	conn *websocket.Conn
	once sync.Once
}

func NewWSWriter(conn *websocket.Conn) *WSWriter {
	return &WSWriter{conn: conn}
}

func (ws *WSWriter) WriteFrame(ev entity.ProgressEvent) error {
	if err := ws.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return ws.conn.WriteJSON(ev)
}

// Close sends a normal closure frame and closes the connection.
func (ws *WSWriter) Close() error {
	var err error
	ws.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = ws.conn.Close()
	})
	return err
}
