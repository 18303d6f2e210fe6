// Package session is the room: relay topic, player ids and
// the routing of packets between the relay and the peer links.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
	"github.com/blastzone/netplay/pkg/peer"
	"github.com/blastzone/netplay/pkg/relay"
)

var (
	ErrRelay  = errors.New("relay failure")
	ErrNoHost = errors.New("room has no host")
)

type Room struct {
	Code          string
	HostID        int
	LocalPlayerID int
	MemberCount   int
}

// Handler gets an accepted packet, From is the authenticated sender id.
type Handler func(in api.In)

// Events are called from relay and transport goroutines.
type Events struct {
	// OnAssigned tells a client its player id.
	OnAssigned     func(id int)
	OnConnected    func(id int)
	OnDisconnected func(id int)
	// OnPeerLeft is a member that left the relay topic.
	OnPeerLeft func(id int)
	// OnAlone is called when the room has less than two members.
	OnAlone func()
	// OnClosed means the relay is lost.
	OnClosed func(err error)
}

type Options struct {
	Conf     config.Connection
	Log      *logger.Logger
	Events   Events
	Handlers map[api.Kind]Handler
}

type Session struct {
	host   bool
	events Events
	log    *logger.Logger
	peers  *peer.Manager
	roster *Roster

	ch    relay.Channel
	ready chan struct{}
	first chan relay.Presence

	mu       sync.Mutex
	room     Room
	key      string
	hostKey  string
	handlers map[api.Kind]Handler
	left     bool
}

func newSession(host bool, code string, dialer network.Dialer, opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = logger.Default()
	}
	s := &Session{
		host:     host,
		events:   opts.Events,
		log:      log.Tagged(logger.RoomField, code),
		ready:    make(chan struct{}),
		first:    make(chan relay.Presence, 1),
		room:     Room{Code: code, HostID: api.HostId},
		handlers: make(map[api.Kind]Handler),
	}
	for k, h := range opts.Handlers {
		s.handlers[k] = h
	}
	if host {
		s.roster = NewRoster()
		s.room.LocalPlayerID = api.HostId
	}
	s.peers = peer.NewManager(dialer, peer.SignalFunc(s.signal), opts.Conf, s.log)
	s.peers.Handle(peer.Handlers{
		OnPacket:     func(from int, in api.In) { s.dispatch(from, in, true) },
		OnConnect:    s.events.OnConnected,
		OnDisconnect: s.events.OnDisconnected,
	})
	if host {
		s.peers.SetLocalPlayerID(api.HostId)
	}
	return s
}

// Create opens a new room, the caller is its host.
func Create(ctx context.Context, r relay.Relay, dialer network.Dialer, opts Options) (*Session, error) {
	code, err := NewRoomCode()
	if err != nil {
		return nil, err
	}
	s := newSession(true, code, dialer, opts)
	if err = s.join(ctx, r, code); err != nil {
		return nil, err
	}
	s.log.Info().Msg("Room created")
	return s, nil
}

// Join enters the room of the code as a client.
// It fails with ErrNoHost when nobody is in there.
func Join(ctx context.Context, r relay.Relay, dialer network.Dialer, code string, opts Options) (*Session, error) {
	code = NormalizeCode(code)
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	s := newSession(false, code, dialer, opts)
	if err := s.join(ctx, r, code); err != nil {
		return nil, err
	}
	select {
	case p := <-s.first:
		if len(p.Keys) < 2 {
			_ = s.Leave()
			return nil, fmt.Errorf("%v: %w", code, ErrNoHost)
		}
	case <-ctx.Done():
		_ = s.Leave()
		return nil, ctx.Err()
	}
	s.log.Info().Msg("Room joined")
	return s, nil
}

func (s *Session) join(ctx context.Context, r relay.Relay, code string) error {
	ch, err := r.Join(ctx, Topic(code), relay.Handlers{
		OnMessage:  s.relayMessage,
		OnPresence: s.presence,
		OnClose:    s.relayClosed,
	})
	if err != nil {
		close(s.ready)
		return fmt.Errorf("%w: %v", ErrRelay, err)
	}
	s.ch = ch
	s.mu.Lock()
	s.key = ch.Key()
	s.mu.Unlock()
	close(s.ready)
	return nil
}

// wait holds relay events until the channel is known.
func (s *Session) wait() bool {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch != nil && !s.left
}

func (s *Session) Room() Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) IsHost() bool { return s.host }

func (s *Session) LocalID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.LocalPlayerID
}

func (s *Session) Peers() *peer.Manager { return s.peers }

// Handle sets the handler of a packet kind.
func (s *Session) Handle(kind api.Kind, fn Handler) {
	s.mu.Lock()
	s.handlers[kind] = fn
	s.mu.Unlock()
}

func (s *Session) presence(p relay.Presence) {
	select {
	case s.first <- p:
	default:
	}
	if !s.wait() {
		return
	}

	s.mu.Lock()
	s.room.MemberCount = len(p.Keys)
	if !s.host && s.hostKey == "" && len(p.Keys) > 1 && p.Keys[0] != p.Self {
		s.hostKey = p.Keys[0]
	}
	hostKey := s.hostKey
	s.mu.Unlock()

	if s.host {
		assigned, left := s.roster.Sync(p.Keys, p.Self)
		for _, a := range assigned {
			s.log.Info().Str("key", a.PresenceKey).Int(logger.PlayerField, a.PlayerId).Msg("Player id assigned")
			if err := s.publish(api.AssignId, a); err != nil {
				s.log.Error().Err(err).Msg("Id assignment")
				continue
			}
			if err := s.peers.Connect(a.PlayerId); err != nil {
				s.log.Error().Err(err).Int(logger.PlayerField, a.PlayerId).Msg("Connect")
			}
		}
		if len(p.Joined) > len(assigned) && len(p.Keys) > s.roster.Len() {
			s.log.Warn().Int("members", len(p.Keys)).Msg("Room is full, members left without id")
		}
		for _, id := range left {
			_ = s.peers.Close(id)
			s.log.Info().Int(logger.PlayerField, id).Msg("Player left")
			if s.events.OnPeerLeft != nil {
				s.events.OnPeerLeft(id)
			}
		}
	} else {
		for _, k := range p.Left {
			if k == hostKey {
				s.log.Info().Msg("Host left")
				if s.events.OnPeerLeft != nil {
					s.events.OnPeerLeft(api.HostId)
				}
			}
		}
	}
	if len(p.Keys) < 2 && len(p.Left) > 0 && s.events.OnAlone != nil {
		s.events.OnAlone()
	}
}

func (s *Session) relayMessage(key string, data []byte) {
	if !s.wait() {
		return
	}
	in, err := api.Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Dropped relay message")
		return
	}
	from := 0
	if s.host {
		id, ok := s.roster.Id(key)
		if !ok {
			s.log.Debug().Str("key", key).Msg("Message of a member without id")
			return
		}
		from = id
	} else {
		s.mu.Lock()
		fromHost := key == s.hostKey
		s.mu.Unlock()
		if !fromHost {
			return
		}
		from = api.HostId
	}
	s.dispatch(from, in, false)
}

func (s *Session) relayClosed(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	left := s.left
	s.mu.Unlock()
	if left {
		return
	}
	s.log.Error().Err(err).Msg("Relay lost")
	if s.events.OnClosed != nil {
		s.events.OnClosed(fmt.Errorf("%w: %v", ErrRelay, err))
	}
}

// accepts tells if a packet kind may come from the sender.
func (s *Session) accepts(kind api.Kind, from int) bool {
	switch kind.Producer() {
	case api.HostOnly:
		return !s.host && from == api.HostId
	case api.ClientOnly:
		return s.host && from > api.HostId
	}
	return true
}

// dispatch routes a packet from an authenticated sender.
func (s *Session) dispatch(from int, in api.In, direct bool) {
	in.From = from
	if !s.accepts(in.T, from) {
		s.log.Debug().Str("kind", in.T.String()).Int(logger.PlayerField, from).Msg("Not allowed from the sender")
		return
	}

	switch {
	case in.T.IsSignal():
		if direct {
			return
		}
		sig, err := api.Unwrap[api.Signal](in.Payload)
		if err != nil {
			s.log.Warn().Err(err).Msg("Bad signal")
			return
		}
		sig.From = from
		if err = s.peers.HandleSignal(in.T, *sig); err != nil {
			s.log.Warn().Err(err).Str("kind", in.T.String()).Int(logger.PlayerField, from).Msg("Signal")
		}
		return
	case in.T == api.AssignId:
		if !direct {
			s.assigned(in)
		}
		return
	}

	s.mu.Lock()
	fn := s.handlers[in.T]
	s.mu.Unlock()
	if fn != nil {
		fn(in)
	}
}

func (s *Session) assigned(in api.In) {
	a, err := api.Unwrap[api.IdAssignment](in.Payload)
	if err != nil {
		s.log.Warn().Err(err).Msg("Bad id assignment")
		return
	}
	s.mu.Lock()
	if a.PresenceKey != s.key || s.room.LocalPlayerID != 0 || a.PlayerId <= api.HostId {
		s.mu.Unlock()
		return
	}
	s.room.LocalPlayerID = a.PlayerId
	s.mu.Unlock()

	s.log.Info().Int(logger.PlayerField, a.PlayerId).Msg("Got player id")
	s.peers.SetLocalPlayerID(a.PlayerId)
	if s.events.OnAssigned != nil {
		s.events.OnAssigned(a.PlayerId)
	}
}

// signal publishes setup messages of the peer links.
func (s *Session) signal(kind api.Kind, sig api.Signal) error {
	return s.publish(kind, sig)
}

func (s *Session) publish(kind api.Kind, payload interface{}) error {
	s.mu.Lock()
	ch, local, left := s.ch, s.room.LocalPlayerID, s.left
	s.mu.Unlock()
	if ch == nil || left {
		return relay.ErrClosed
	}
	data, err := api.Encode(kind, local, payload)
	if err != nil {
		return err
	}
	if err = ch.Publish(data); err != nil {
		return fmt.Errorf("%w: %v", ErrRelay, err)
	}
	return nil
}

// Send picks the path of a packet: game streams go over the peer links,
// the host broadcasts them and clients send them to the host.
// The rest goes over the relay.
func (s *Session) Send(kind api.Kind, payload interface{}) error {
	if !kind.IsStream() {
		return s.publish(kind, payload)
	}
	if s.host {
		return s.peers.Broadcast(kind, payload)
	}
	return s.peers.Send(api.HostId, kind, payload)
}

// Leave closes the peer links and the relay channel.
func (s *Session) Leave() error {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return nil
	}
	s.left = true
	ch := s.ch
	s.mu.Unlock()

	s.peers.Destroy()
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, relay.ErrClosed) {
			return err
		}
	}
	s.log.Info().Msg("Left the room")
	return nil
}
