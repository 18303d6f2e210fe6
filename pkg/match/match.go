// Package match runs one multiplayer match on top of a room session.
//
// All simulation state is owned by the goroutine of Run,
// network callbacks only post events into its queue.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/game"
	"github.com/blastzone/netplay/pkg/input"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
	"github.com/blastzone/netplay/pkg/relay"
	"github.com/blastzone/netplay/pkg/session"
	"github.com/blastzone/netplay/pkg/statesync"
)

type Status int32

const (
	// StatusMenu is where a match ends up after an error.
	StatusMenu Status = iota
	StatusLobby
	StatusPlaying
	StatusOver
)

func (s Status) String() string {
	switch s {
	case StatusMenu:
		return "menu"
	case StatusLobby:
		return "lobby"
	case StatusPlaying:
		return "playing"
	case StatusOver:
		return "over"
	}
	return "unknown"
}

var (
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrStopped          = errors.New("match stopped")
)

// staleAfter is how long a client waits for snapshots before it complains.
const staleAfter = 2 * time.Second

type Options struct {
	Conf config.PeerConfig
	Log  *logger.Logger
	// MapIndex and Players are used by the host, the match starts
	// once Players-1 clients are connected. Clients that lose their link
	// in the lobby don't count.
	MapIndex int
	Players  int
	Seed     int64
	// Input is the local player, nil plays idle.
	Input input.Source
	// OnStatus is called from the match loop.
	OnStatus func(s Status)
}

type Match struct {
	s      *session.Session
	host   bool
	conf   config.PeerConfig
	log    *logger.Logger
	events chan func()
	done   chan struct{}
	status int32

	opts  Options
	local input.Source

	// host
	world   *game.World
	sync    *statesync.Host
	remotes map[int]*input.Remote
	sources map[int]input.Source

	// client
	replica   *game.Replica
	client    *statesync.Client
	lastInput api.PlayerInput
	resend    float64
	stale     bool

	err         error
	finished    bool
	disconnects int
}

func newMatch(host bool, opts Options) *Match {
	log := opts.Log
	if log == nil {
		log = logger.Default()
	}
	local := opts.Input
	if local == nil {
		local = input.Idle{}
	}
	return &Match{
		host:   host,
		conf:   opts.Conf,
		log:    log,
		events: make(chan func(), 256),
		done:   make(chan struct{}),
		status: int32(StatusLobby),
		opts:   opts,
		local:  local,
	}
}

// Host creates a room and hosts the match in it.
func Host(ctx context.Context, r relay.Relay, dialer network.Dialer, opts Options) (*Match, error) {
	if opts.Players < 2 || opts.Players > game.MaxPlayers {
		return nil, fmt.Errorf("%w: %v", game.ErrPlayers, opts.Players)
	}
	if _, err := game.MapByIndex(opts.MapIndex); err != nil {
		return nil, err
	}
	m := newMatch(true, opts)
	m.sync = statesync.NewHost(opts.Conf.Sync)
	s, err := session.Create(ctx, r, dialer, m.sessionOptions(map[api.Kind]session.Handler{
		api.Input: m.onInput,
	}))
	if err != nil {
		return nil, err
	}
	m.s = s
	return m, nil
}

// Join enters a room by its code as a client.
func Join(ctx context.Context, r relay.Relay, dialer network.Dialer, code string, opts Options) (*Match, error) {
	m := newMatch(false, opts)
	m.replica = game.NewReplica()
	m.client = statesync.NewClient(opts.Conf.Sync)
	s, err := session.Join(ctx, r, dialer, code, m.sessionOptions(map[api.Kind]session.Handler{
		api.SelectMap: m.onMapSelected,
		api.State:     m.onState,
		api.Event:     m.onEvent,
	}))
	if err != nil {
		return nil, err
	}
	m.s = s
	return m, nil
}

func (m *Match) sessionOptions(h map[api.Kind]session.Handler) session.Options {
	return session.Options{
		Conf:     m.conf.Connection,
		Log:      m.log,
		Handlers: h,
		Events: session.Events{
			OnConnected:    func(id int) { m.post(func() { m.onConnected(id) }) },
			OnDisconnected: func(id int) { m.post(func() { m.onDisconnected(id) }) },
			OnPeerLeft:     func(id int) { m.post(func() { m.onPeerLeft(id) }) },
			OnAlone:        func() { m.post(m.onAlone) },
			OnClosed:       func(err error) { m.post(func() { m.abort(err) }) },
		},
	}
}

func (m *Match) Room() session.Room { return m.s.Room() }

func (m *Match) Status() Status { return Status(atomic.LoadInt32(&m.status)) }

// Disconnects counts lost peer links, read it after Run returns.
func (m *Match) Disconnects() int { return m.disconnects }

func (m *Match) setStatus(s Status) {
	if Status(atomic.SwapInt32(&m.status, int32(s))) == s {
		return
	}
	m.log.Info().Str("status", s.String()).Msg("Match")
	if m.opts.OnStatus != nil {
		m.opts.OnStatus(s)
	}
}

func (m *Match) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.done:
	}
}

// Query runs fn inside the match loop and waits for it.
func (m *Match) Query(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case m.events <- func() { fn(); close(ran) }:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// World is the host simulation, use it only from Query.
func (m *Match) World() *game.World { return m.world }

// Replica is the client view, use it only from Query.
func (m *Match) Replica() *game.Replica { return m.replica }

// LastSnapshot is the timestamp of the newest applied snapshot, use it only from Query.
func (m *Match) LastSnapshot() int64 {
	if m.client == nil {
		return 0
	}
	return m.client.LastTimestamp()
}

// Run is the match loop, it returns when the match is over,
// fails or ctx ends, and leaves the room.
func (m *Match) Run(ctx context.Context) error {
	defer func() {
		close(m.done)
		_ = m.s.Leave()
	}()

	rate := m.conf.Peer.TickRate
	if rate <= 0 {
		rate = 60
	}
	tick := time.NewTicker(time.Second / time.Duration(rate))
	defer tick.Stop()
	last := time.Now()

	for !m.finished {
		select {
		case <-ctx.Done():
			m.setStatus(StatusMenu)
			return ctx.Err()
		case fn := <-m.events:
			fn()
		case now := <-tick.C:
			dt := now.Sub(last).Seconds()
			last = now
			if m.host {
				m.hostTick(dt)
			} else {
				m.clientTick(dt, now)
			}
		}
	}
	return m.err
}

func (m *Match) finish(status Status, err error) {
	if m.finished {
		return
	}
	m.finished, m.err = true, err
	m.setStatus(status)
}

// abort ends the match on a failure and returns to the menu.
func (m *Match) abort(err error) {
	if m.finished {
		return
	}
	m.log.Warn().Err(err).Msg("Match aborted")
	if m.host {
		_ = m.s.Send(api.Event, api.GameEvent{Type: api.EventAborted})
	}
	m.finish(StatusMenu, err)
}

func (m *Match) onConnected(id int) {
	m.log.Info().Int(logger.PlayerField, id).Msg("Peer connected")
	if !m.host || m.world != nil {
		return
	}
	if len(m.s.Peers().Connected())+1 >= m.opts.Players {
		m.start()
	}
}

func (m *Match) onDisconnected(id int) {
	m.disconnects++
	if m.host {
		m.dropPlayer(id, "link lost")
		return
	}
	if id == api.HostId {
		m.abort(fmt.Errorf("%w: %v", ErrPeerDisconnected, id))
	}
}

func (m *Match) onPeerLeft(id int) {
	if m.host {
		m.dropPlayer(id, "left")
		return
	}
	if id == api.HostId {
		m.abort(fmt.Errorf("%w: %v left", ErrPeerDisconnected, id))
	}
}

// onAlone is a room without other members, a host in the lobby
// keeps waiting for joiners.
func (m *Match) onAlone() {
	if m.host && m.world == nil {
		m.log.Info().Msg("Waiting for players")
		return
	}
	m.abort(fmt.Errorf("%w: alone in the room", ErrPeerDisconnected))
}

// dropPlayer takes a lost client out of the match.
// The match goes on while at least two players are left.
func (m *Match) dropPlayer(id int, reason string) {
	if m.world == nil {
		m.log.Info().Int(logger.PlayerField, id).Str("reason", reason).Msg("Player gone from the lobby")
		return
	}
	if !m.world.Leave(id) {
		return
	}
	delete(m.remotes, id)
	delete(m.sources, id)
	if m.world.Active() < 2 {
		m.abort(fmt.Errorf("%w: %v %v", ErrPeerDisconnected, id, reason))
		return
	}
	m.log.Warn().Int(logger.PlayerField, id).Str("reason", reason).Int("active", m.world.Active()).Msg("Player dropped")
	m.roundEvent(api.GameEvent{Type: api.EventPlayerLeft, PlayerId: id, Round: m.world.Round})
}

// host side

func (m *Match) start() {
	// roster ids are never reused, so the seats may have gaps
	ids := append([]int{api.HostId}, m.s.Peers().Connected()...)
	world, err := game.NewWorld(m.opts.MapIndex, ids, m.opts.Seed)
	if err != nil {
		m.abort(err)
		return
	}
	m.world = world
	m.remotes = make(map[int]*input.Remote)
	m.sources = map[int]input.Source{api.HostId: m.local}
	for _, id := range ids[1:] {
		r := input.NewRemote()
		m.remotes[id], m.sources[id] = r, r
	}
	m.log.Info().Ints("players", ids).Msg("Match starts")
	sel := api.MapSelection{MapIndex: m.opts.MapIndex, HumanCount: len(ids), PlayerIds: ids}
	if err = m.s.Send(api.SelectMap, sel); err != nil {
		m.abort(err)
		return
	}
	m.world.StartRound()
	m.sync.ResetRound()
	m.roundEvent(api.GameEvent{Type: api.EventRoundStart, Round: m.world.Round})
	m.setStatus(StatusPlaying)
}

func (m *Match) onInput(in api.In) {
	pi, err := api.Unwrap[api.PlayerInput](in.Payload)
	if err != nil {
		m.log.Warn().Err(err).Int(logger.PlayerField, in.From).Msg("Bad input")
		return
	}
	from := in.From
	m.post(func() {
		if r, ok := m.remotes[from]; ok {
			r.Apply(*pi)
		}
	})
}

func (m *Match) roundEvent(e api.GameEvent) {
	if err := m.s.Send(api.Event, e); err != nil {
		m.log.Warn().Err(err).Str("event", string(e.Type)).Msg("Event")
	}
}

func (m *Match) hostTick(dt float64) {
	if m.world == nil {
		return
	}
	phase, changed := m.world.Update(dt, m.sources)
	if changed {
		switch phase {
		case game.PhaseCountdown:
			m.sync.ResetRound()
			m.roundEvent(api.GameEvent{Type: api.EventRoundStart, Round: m.world.Round})
		case game.PhaseRoundOver:
			m.roundEvent(api.GameEvent{Type: api.EventRoundOver, Round: m.world.Round, Winner: m.world.Winner()})
		case game.PhaseGameOver:
			m.broadcast(m.sync.Snapshot(m.world))
			m.roundEvent(api.GameEvent{Type: api.EventGameOver, Round: m.world.Round, Winner: m.world.Champion()})
			m.finish(StatusOver, nil)
			return
		}
	}
	if s, ok := m.sync.Tick(dt, m.world); ok {
		m.broadcast(s)
	}
}

func (m *Match) broadcast(s *api.GameState) {
	if err := m.s.Send(api.State, s); err != nil {
		m.log.Debug().Err(err).Msg("Snapshot")
	}
}

// client side

func (m *Match) onMapSelected(in api.In) {
	sel, err := api.Unwrap[api.MapSelection](in.Payload)
	if err != nil {
		m.log.Warn().Err(err).Msg("Bad map selection")
		return
	}
	m.post(func() {
		def, err := game.MapByIndex(sel.MapIndex)
		if err != nil {
			m.abort(err)
			return
		}
		m.log.Info().Str("map", def.Name).Int("players", sel.HumanCount).Msg("Map selected")
		if !seated(sel.PlayerIds, m.s.LocalID()) {
			m.log.Warn().Ints("players", sel.PlayerIds).Msg("Not seated in the match, watching")
		}
		m.replica.Load(def)
		m.setStatus(StatusPlaying)
	})
}

func (m *Match) onState(in api.In) {
	s, err := api.Unwrap[api.GameState](in.Payload)
	if err != nil {
		m.log.Warn().Err(err).Msg("Bad snapshot")
		return
	}
	m.post(func() {
		if m.client.Apply(m.replica, s) {
			m.stale = false
		}
	})
}

func (m *Match) onEvent(in api.In) {
	e, err := api.Unwrap[api.GameEvent](in.Payload)
	if err != nil {
		m.log.Warn().Err(err).Msg("Bad event")
		return
	}
	m.post(func() {
		m.log.Info().Str("event", string(e.Type)).Int("round", e.Round).Int("winner", e.Winner).Msg("Game event")
		switch e.Type {
		case api.EventGameOver:
			m.finish(StatusOver, nil)
		case api.EventAborted:
			m.abort(fmt.Errorf("%w: match aborted by the host", ErrPeerDisconnected))
		case api.EventPlayerLeft:
			m.log.Warn().Int(logger.PlayerField, e.PlayerId).Msg("Player left the match")
		}
	})
}

// seated tells if the player has a seat, an empty list is from
// a host that doesn't send seats.
func seated(ids []int, id int) bool {
	if len(ids) == 0 {
		return true
	}
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (m *Match) clientTick(dt float64, now time.Time) {
	if m.Status() != StatusPlaying {
		return
	}
	m.client.Smooth(m.replica, dt)
	if !m.stale && m.client.Stale(now, staleAfter) {
		m.stale = true
		m.log.Warn().Dur("since", m.client.Since(now)).Msg("No snapshots")
	}

	id := m.s.LocalID()
	if id == 0 {
		return
	}
	in := input.Snapshot(m.local, id)
	m.resend += dt
	if in.Keys != m.lastInput.Keys || len(in.Pressed) > 0 || m.resend >= m.conf.Peer.InputResend.Seconds() {
		if err := m.s.Send(api.Input, in); err != nil {
			m.log.Debug().Err(err).Msg("Input")
		}
		m.lastInput, m.resend = in, 0
	}
	m.local.Update()
}
