// Package websocket wraps gorilla connections into a pair of pumps:
// one goroutine reads into a callback, one serializes all writes.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/blastzone/netplay/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
	sendBuffer     = 64
)

var ErrClosed = errors.New("websocket closed")

type WS struct {
	conn frameConn
	send chan []byte
	log  *logger.Logger

	// OnMessage is called from the reader goroutine, set it before Start.
	OnMessage func(message []byte)
	// OnClose is called once after both pumps stopped.
	OnClose func()

	pingPong bool

	once     sync.Once
	quit     chan struct{}
	shutdown sync.WaitGroup
	Done     chan struct{}
}

// Upgrader accepts requests from the origin only, any origin when it's empty.
func Upgrader(origin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteBufferPool: &sync.Pool{},
		CheckOrigin: func(r *http.Request) bool {
			return origin == "" || r.Header.Get("Origin") == origin
		},
	}
}

// NewServer upgrades a request into a server side socket with keep-alive pings.
// The backlog is the size of the write queue, 0 for the default.
func NewServer(up *websocket.Upgrader, w http.ResponseWriter, r *http.Request, backlog int, log *logger.Logger) (*WS, error) {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, backlog, log), nil
}

func NewClient(ctx context.Context, address string, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, 0, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, backlog int, log *logger.Logger) *WS {
	if backlog <= 0 {
		backlog = sendBuffer
	}
	return &WS{
		conn:     frameConn{sock: conn, writeWait: writeWait},
		send:     make(chan []byte, backlog),
		log:      log,
		pingPong: pingPong,
		quit:     make(chan struct{}),
		Done:     make(chan struct{}),
	}
}

// Start runs the pumps.
func (ws *WS) Start() {
	ws.shutdown.Add(2)
	go ws.writer()
	go ws.reader()
	go func() {
		ws.shutdown.Wait()
		_ = ws.conn.close()
		if ws.OnClose != nil {
			ws.OnClose()
		}
		close(ws.Done)
	}()
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		ws.shutdown.Done()
		ws.Close()
		ws.log.Debug().Msg("[ws] CLOSE READER")
	}()
	ws.conn.listen(ws.pingPong)
	for {
		message, err := ws.conn.next()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Warn().Err(err).Msg("[ws] read")
			}
			return
		}
		if ws.OnMessage != nil {
			ws.OnMessage(message)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Serializes all websocket writes.
func (ws *WS) writer() {
	var ping <-chan time.Time
	if ws.pingPong {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() {
		ws.shutdown.Done()
		ws.log.Debug().Msg("[ws] CLOSE WRITER")
	}()
	for {
		select {
		case message := <-ws.send:
			if err := ws.conn.send(websocket.TextMessage, message); err != nil {
				ws.log.Warn().Err(err).Msg("[ws] write")
				ws.Close()
				return
			}
		case <-ping:
			if err := ws.conn.send(websocket.PingMessage, nil); err != nil {
				ws.Close()
				return
			}
		case <-ws.quit:
			// unblocks the reader
			ws.conn.bye()
			return
		}
	}
}

// Write queues a text message.
func (ws *WS) Write(data []byte) error {
	select {
	case <-ws.quit:
		return ErrClosed
	default:
	}
	select {
	case ws.send <- data:
		return nil
	case <-ws.quit:
		return ErrClosed
	}
}

// Close stops both pumps, it is safe to call many times.
func (ws *WS) Close() { ws.once.Do(func() { close(ws.quit) }) }
