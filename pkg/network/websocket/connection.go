package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// frameConn is a gorilla connection with a write deadline on every frame.
type frameConn struct {
	sock      *websocket.Conn
	writeWait time.Duration
}

// listen limits incoming frames, with keepAlive a missing pong
// within pongTime breaks the next read.
func (c frameConn) listen(keepAlive bool) {
	c.sock.SetReadLimit(maxMessageSize)
	if !keepAlive {
		return
	}
	extend := func(string) error { return c.sock.SetReadDeadline(time.Now().Add(pongTime)) }
	_ = extend("")
	c.sock.SetPongHandler(extend)
}

func (c frameConn) next() ([]byte, error) {
	_, data, err := c.sock.ReadMessage()
	return data, err
}

func (c frameConn) send(kind int, data []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.sock.WriteMessage(kind, data)
}

// bye says goodbye to the other side and drops the connection.
func (c frameConn) bye() {
	_ = c.send(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.sock.Close()
}

func (c frameConn) close() error { return c.sock.Close() }
