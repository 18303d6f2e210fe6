// Package peer keeps one direct link per remote player and drives
// the offer/answer/candidate negotiation of each of them.
package peer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
)

type State int

const (
	Init State = iota
	OfferSent
	OfferReceived
	AnswerExchanged
	Connected
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case OfferSent:
		return "OFFER_SENT"
	case OfferReceived:
		return "OFFER_RECEIVED"
	case AnswerExchanged:
		return "ANSWER_EXCHANGED"
	case Connected:
		return "CONNECTED"
	case Failed:
		return "FAILED"
	case Closed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

func (s State) done() bool { return s == Failed || s == Closed }

var (
	ErrUnknownPeer = errors.New("unknown peer")
	ErrNotReady    = errors.New("peer not connected")
	ErrDestroyed   = errors.New("peer manager destroyed")
)

// Signaler delivers setup messages to other room members, usually over the relay.
type Signaler interface {
	Signal(kind api.Kind, s api.Signal) error
}

// SignalFunc makes a Signaler of a plain function.
type SignalFunc func(kind api.Kind, s api.Signal) error

func (f SignalFunc) Signal(kind api.Kind, s api.Signal) error { return f(kind, s) }

// Handlers are called from transport goroutines, never under the manager lock.
type Handlers struct {
	// OnPacket gets decoded data channel frames, from is the id of the link
	// the frame came through.
	OnPacket     func(from int, in api.In)
	OnConnect    func(id int)
	OnDisconnect func(id int)
}

type Manager struct {
	dialer   network.Dialer
	signaler Signaler
	conf     config.Connection
	log      *logger.Logger
	h        Handlers
	now      func() time.Time

	mu        sync.Mutex
	local     int
	conns     map[int]*conn
	early     map[int][]candidate
	backlog   []pending
	destroyed bool
}

type conn struct {
	id     int
	link   network.Link
	state  State
	remote bool
	buf    []candidate
	seen   map[string]struct{}
	timer  *time.Timer
}

type candidate struct {
	c  api.IceCandidate
	at time.Time
}

type pending struct {
	kind api.Kind
	s    api.Signal
}

func NewManager(dialer network.Dialer, signaler Signaler, conf config.Connection, log *logger.Logger) *Manager {
	if conf.MaxPendingSignals <= 0 {
		conf.MaxPendingSignals = config.DefaultConnection().MaxPendingSignals
	}
	return &Manager{
		dialer:   dialer,
		signaler: signaler,
		conf:     conf,
		log:      log,
		now:      time.Now,
		conns:    make(map[int]*conn),
		early:    make(map[int][]candidate),
	}
}

// Handle sets the callbacks, call it before any link exists.
func (m *Manager) Handle(h Handlers) { m.h = h }

// SetLocalPlayerID makes the manager answer signals addressed to id.
// Signals that came before are replayed, those for other ids are dropped.
func (m *Manager) SetLocalPlayerID(id int) {
	m.mu.Lock()
	m.local = id
	backlog := m.backlog
	m.backlog = nil
	m.mu.Unlock()

	for _, p := range backlog {
		if p.s.To != id {
			continue
		}
		if err := m.HandleSignal(p.kind, p.s); err != nil {
			m.log.Warn().Err(err).Str("kind", p.kind.String()).Int(logger.PeerField, p.s.From).Msg("Buffered signal")
		}
	}
}

func (m *Manager) LocalPlayerID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// Connect starts the negotiation with a remote player as the offering side.
func (m *Manager) Connect(id int) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if c, ok := m.conns[id]; ok && !c.state.done() {
		m.mu.Unlock()
		return nil
	}
	c := &conn{id: id, state: Init, seen: make(map[string]struct{})}
	m.conns[id] = c
	local := m.local
	m.mu.Unlock()

	link, err := m.dialer.Dial(m.linkHandlers(c))
	if err != nil {
		m.fail(c, "dial")
		return fmt.Errorf("dial %v: %w", id, err)
	}
	if !m.attach(c, link) {
		return ErrDestroyed
	}
	offer, err := link.CreateOffer()
	if err != nil {
		m.fail(c, "offer")
		return fmt.Errorf("offer %v: %w", id, err)
	}
	m.advance(c, OfferSent)
	m.startTimer(c)
	m.log.Info().Int(logger.PeerField, id).Msg("Offer")
	return m.signaler.Signal(api.WebrtcOffer, api.Signal{From: local, To: id, Sdp: &offer})
}

// HandleSignal takes an offer, answer or ice signal from the relay.
// Signals for other players are ignored.
func (m *Manager) HandleSignal(kind api.Kind, s api.Signal) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return nil
	}
	if m.local == 0 {
		if len(m.backlog) >= m.conf.MaxPendingSignals {
			m.backlog = m.backlog[1:]
		}
		m.backlog = append(m.backlog, pending{kind: kind, s: s})
		m.mu.Unlock()
		return nil
	}
	if s.To != m.local || s.From == m.local {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	switch kind {
	case api.WebrtcOffer:
		if s.Sdp == nil {
			return fmt.Errorf("%w: offer without sdp", api.ErrMalformed)
		}
		return m.offer(s.From, *s.Sdp)
	case api.WebrtcAnswer:
		if s.Sdp == nil {
			return fmt.Errorf("%w: answer without sdp", api.ErrMalformed)
		}
		return m.answer(s.From, *s.Sdp)
	case api.WebrtcIce:
		if s.Candidate == nil {
			return nil
		}
		return m.candidate(s.From, *s.Candidate)
	}
	return fmt.Errorf("%w: %v", api.ErrUnknownKind, kind)
}

func (m *Manager) offer(id int, sdp api.SessionDescription) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return nil
	}
	if c, ok := m.conns[id]; ok && !c.state.done() {
		m.mu.Unlock()
		m.log.Debug().Int(logger.PeerField, id).Msg("Duplicate offer")
		return nil
	}
	c := &conn{id: id, state: OfferReceived, seen: make(map[string]struct{})}
	m.conns[id] = c
	local := m.local
	m.mu.Unlock()

	link, err := m.dialer.Dial(m.linkHandlers(c))
	if err != nil {
		m.fail(c, "dial")
		return fmt.Errorf("dial %v: %w", id, err)
	}
	if !m.attach(c, link) {
		return nil
	}
	answer, err := link.AcceptOffer(sdp)
	if err != nil {
		m.fail(c, "answer")
		return fmt.Errorf("accept offer %v: %w", id, err)
	}
	m.remoteSet(c)
	m.advance(c, AnswerExchanged)
	m.startTimer(c)
	m.log.Info().Int(logger.PeerField, id).Msg("Answer")
	return m.signaler.Signal(api.WebrtcAnswer, api.Signal{From: local, To: id, Sdp: &answer})
}

func (m *Manager) answer(id int, sdp api.SessionDescription) error {
	m.mu.Lock()
	c, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("answer from %v: %w", id, ErrUnknownPeer)
	}
	if c.state != OfferSent || c.link == nil {
		m.mu.Unlock()
		return nil
	}
	link := c.link
	m.mu.Unlock()

	if err := link.AcceptAnswer(sdp); err != nil {
		m.fail(c, "answer")
		return fmt.Errorf("accept answer %v: %w", id, err)
	}
	m.advance(c, AnswerExchanged)
	m.remoteSet(c)
	return nil
}

func (m *Manager) candidate(id int, ice api.IceCandidate) error {
	key := ice.Key()
	now := m.now()

	m.mu.Lock()
	c, ok := m.conns[id]
	if !ok || c.state.done() {
		early := m.fresh(m.early[id], now)
		for _, e := range early {
			if e.c.Key() == key {
				m.mu.Unlock()
				return nil
			}
		}
		if len(early) >= m.conf.MaxPendingSignals {
			early = early[1:]
		}
		m.early[id] = append(early, candidate{c: ice, at: now})
		m.mu.Unlock()
		return nil
	}
	if _, dup := c.seen[key]; dup {
		m.mu.Unlock()
		return nil
	}
	c.seen[key] = struct{}{}
	if !c.remote {
		c.buf = append(m.fresh(c.buf, now), candidate{c: ice, at: now})
		m.mu.Unlock()
		return nil
	}
	link := c.link
	m.mu.Unlock()

	if err := link.AddCandidate(ice); err != nil && !network.IsClosed(err) {
		return fmt.Errorf("candidate %v: %w", id, err)
	}
	return nil
}

// remoteSet marks the remote description applied and flushes
// candidates kept until then.
func (m *Manager) remoteSet(c *conn) {
	now := m.now()

	m.mu.Lock()
	if c.remote || c.state.done() {
		m.mu.Unlock()
		return
	}
	c.remote = true
	var flush []candidate
	for _, e := range m.fresh(m.early[c.id], now) {
		key := e.c.Key()
		if _, dup := c.seen[key]; dup {
			continue
		}
		c.seen[key] = struct{}{}
		flush = append(flush, e)
	}
	delete(m.early, c.id)
	flush = append(flush, m.fresh(c.buf, now)...)
	c.buf = nil
	link := c.link
	m.mu.Unlock()

	for _, e := range flush {
		if err := link.AddCandidate(e.c); err != nil {
			m.log.Warn().Err(err).Int(logger.PeerField, c.id).Msg("Buffered candidate")
		}
	}
}

// fresh drops candidates older than the TTL.
func (m *Manager) fresh(list []candidate, now time.Time) []candidate {
	if m.conf.CandidateTTL <= 0 {
		return list
	}
	i := 0
	for i < len(list) && now.Sub(list[i].at) > m.conf.CandidateTTL {
		i++
	}
	return list[i:]
}

func (m *Manager) attach(c *conn, link network.Link) bool {
	m.mu.Lock()
	if m.destroyed || c.state.done() {
		m.mu.Unlock()
		_ = link.Close()
		return false
	}
	c.link = link
	m.mu.Unlock()
	return true
}

// advance moves a link forward, it never goes back from a later state.
func (m *Manager) advance(c *conn, s State) {
	m.mu.Lock()
	if c.state < s && !c.state.done() {
		c.state = s
	}
	m.mu.Unlock()
}

func (m *Manager) startTimer(c *conn) {
	if m.conf.NegotiationTimeout <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.timer != nil || c.state == Connected || c.state.done() {
		return
	}
	c.timer = time.AfterFunc(m.conf.NegotiationTimeout, func() {
		m.mu.Lock()
		connected := c.state == Connected
		m.mu.Unlock()
		if !connected {
			m.fail(c, "negotiation timeout")
		}
	})
}

func (m *Manager) linkHandlers(c *conn) network.LinkHandlers {
	return network.LinkHandlers{
		OnCandidate: func(ice *api.IceCandidate) {
			if ice == nil {
				return
			}
			m.mu.Lock()
			local, skip := m.local, m.destroyed || c.state.done()
			m.mu.Unlock()
			if skip {
				return
			}
			if err := m.signaler.Signal(api.WebrtcIce, api.Signal{From: local, To: c.id, Candidate: ice}); err != nil {
				m.log.Warn().Err(err).Int(logger.PeerField, c.id).Msg("Candidate signal")
			}
		},
		OnOpen: func() {
			m.mu.Lock()
			if c.state.done() || m.conns[c.id] != c {
				m.mu.Unlock()
				return
			}
			c.state = Connected
			if c.timer != nil {
				c.timer.Stop()
			}
			m.mu.Unlock()
			connections.WithLabelValues("connected").Inc()
			m.log.Info().Int(logger.PeerField, c.id).Msg("Connected")
			if m.h.OnConnect != nil {
				m.h.OnConnect(c.id)
			}
		},
		OnMessage: func(data []byte) {
			m.mu.Lock()
			live := !c.state.done()
			m.mu.Unlock()
			if !live {
				return
			}
			in, err := api.Decode(data)
			if err != nil {
				malformed.Inc()
				m.log.Warn().Err(err).Int(logger.PeerField, c.id).Msg("Dropped frame")
				return
			}
			if m.h.OnPacket != nil {
				m.h.OnPacket(c.id, in)
			}
		},
		OnClose: func() { m.fail(c, "closed") },
		OnState: func(s network.LinkState) {
			m.log.Debug().Int(logger.PeerField, c.id).Str("state", s.String()).Msg("Link")
			if s == network.LinkFailed || s == network.LinkClosed {
				m.fail(c, s.String())
			}
		},
	}
}

// fail moves a link to Failed and tells about it once.
func (m *Manager) fail(c *conn, reason string) {
	m.mu.Lock()
	if c.state.done() {
		m.mu.Unlock()
		return
	}
	wasConnected := c.state == Connected
	c.state = Failed
	if c.timer != nil {
		c.timer.Stop()
	}
	c.buf = nil
	notify := !m.destroyed && m.conns[c.id] == c
	link := c.link
	m.mu.Unlock()

	if !wasConnected {
		connections.WithLabelValues("failed").Inc()
	}
	m.log.Warn().Int(logger.PeerField, c.id).Str("reason", reason).Msg("Link failed")
	if link != nil {
		// close handlers of the link may be the caller
		go func() { _ = link.Close() }()
	}
	if notify {
		disconnects.Inc()
		if m.h.OnDisconnect != nil {
			m.h.OnDisconnect(c.id)
		}
	}
}

// Close drops the link to a player without a disconnect notification.
func (m *Manager) Close(id int) error {
	m.mu.Lock()
	c, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownPeer
	}
	delete(m.conns, id)
	delete(m.early, id)
	if !c.state.done() {
		c.state = Closed
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	link := c.link
	m.mu.Unlock()

	if link != nil {
		if err := link.Close(); err != nil && !network.IsClosed(err) {
			return err
		}
	}
	m.log.Info().Int(logger.PeerField, id).Msg("Closed")
	return nil
}

// Destroy closes every link and forgets all signaling state.
// The manager ignores anything that comes after.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	var links []network.Link
	for _, c := range m.conns {
		if !c.state.done() {
			c.state = Closed
		}
		if c.timer != nil {
			c.timer.Stop()
		}
		if c.link != nil {
			links = append(links, c.link)
		}
	}
	m.conns = make(map[int]*conn)
	m.early = make(map[int][]candidate)
	m.backlog = nil
	m.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}
}

// Send writes a packet to one connected player.
func (m *Manager) Send(id int, kind api.Kind, payload interface{}) error {
	m.mu.Lock()
	c, ok := m.conns[id]
	local := m.local
	m.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	data, err := api.Encode(kind, local, payload)
	if err != nil {
		return err
	}
	return m.send(c, data)
}

func (m *Manager) send(c *conn, data []byte) error {
	m.mu.Lock()
	state, link := c.state, c.link
	m.mu.Unlock()
	if state != Connected {
		return ErrNotReady
	}
	return link.Send(data)
}

// Broadcast writes a packet to every connected player.
// Links that are not connected yet are skipped.
func (m *Manager) Broadcast(kind api.Kind, payload interface{}) error {
	m.mu.Lock()
	local := m.local
	conns := make([]*conn, 0, len(m.conns))
	for _, c := range m.conns {
		if c.state == Connected {
			conns = append(conns, c)
		}
	}
	m.mu.Unlock()
	if len(conns) == 0 {
		return nil
	}

	data, err := api.Encode(kind, local, payload)
	if err != nil {
		return err
	}
	var first error
	for _, c := range conns {
		if err := m.send(c, data); err != nil && first == nil {
			first = fmt.Errorf("peer %v: %w", c.id, err)
		}
	}
	return first
}

func (m *Manager) State(id int) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return Init, false
	}
	return c.state, true
}

// Ready tells if there is at least one link and all of them are connected.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return false
	}
	for _, c := range m.conns {
		if c.state != Connected {
			return false
		}
	}
	return true
}

// Connected returns the ids of connected players in order.
func (m *Manager) Connected() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int
	for id, c := range m.conns {
		if c.state == Connected {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
