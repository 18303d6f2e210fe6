package relay

import (
	"context"
	"net/http"

	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
	"github.com/blastzone/netplay/pkg/network/websocket"
	gorilla "github.com/gorilla/websocket"
)

// Server exposes a hub over websockets, one connection per joined topic.
type Server struct {
	hub     *Hub
	up      *gorilla.Upgrader
	backlog int
	log     *logger.Logger
}

func NewServer(hub *Hub, conf config.Relay, log *logger.Logger) *Server {
	return &Server{hub: hub, up: websocket.Upgrader(conf.Origin), backlog: conf.Backlog, log: log}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.NewServer(s.up, w, r, s.backlog, s.log)
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	log := s.log.Extend(s.log.With().Str("conn", network.NewUid().Short()).Str("remote", r.RemoteAddr))

	var ch Channel
	send := func(f Frame) {
		data, err := f.Encode()
		if err != nil {
			log.Error().Err(err).Msg("Frame encode")
			return
		}
		_ = ws.Write(data)
	}

	// frames come one by one from the reader goroutine
	ws.OnMessage = func(message []byte) {
		f, err := DecodeFrame(message)
		if err != nil {
			send(Frame{Op: OpError, Error: "malformed frame"})
			return
		}
		switch f.Op {
		case OpJoin:
			if ch != nil {
				send(Frame{Op: OpError, Error: "already joined"})
				return
			}
			ch, err = s.hub.Join(context.Background(), f.Topic, Handlers{
				OnMessage: func(from string, data []byte) {
					send(Frame{Op: OpMessage, Key: from, Data: data})
				},
				OnPresence: func(p Presence) { send(presenceFrame(p)) },
			})
			if err != nil {
				send(Frame{Op: OpError, Error: err.Error()})
				return
			}
			log.Info().Str("topic", f.Topic).Str("key", ch.Key()).Msg("Relay join")
		case OpPublish:
			if ch == nil {
				send(Frame{Op: OpError, Error: "not joined"})
				return
			}
			_ = ch.Publish(f.Data)
		case OpLeave:
			if ch != nil {
				_ = ch.Close()
				ch = nil
			}
			ws.Close()
		default:
			send(Frame{Op: OpError, Error: "unknown op"})
		}
	}
	ws.OnClose = func() {
		if ch != nil {
			_ = ch.Close()
		}
		log.Debug().Msg("Relay connection closed")
	}
	ws.Start()
}
