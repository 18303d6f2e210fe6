package peer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
)

// board routes signals straight to the addressed manager.
type board struct {
	mu    sync.Mutex
	peers map[int]*Manager
	drop  func(kind api.Kind) bool
}

func newBoard() *board { return &board{peers: make(map[int]*Manager)} }

func (b *board) signaler() Signaler {
	return SignalFunc(func(kind api.Kind, s api.Signal) error {
		b.mu.Lock()
		m, drop := b.peers[s.To], b.drop
		b.mu.Unlock()
		if m == nil || (drop != nil && drop(kind)) {
			return nil
		}
		return m.HandleSignal(kind, s)
	})
}

type recorder struct {
	mu           sync.Mutex
	packets      []api.In
	from         []int
	connects     int32
	disconnects  int32
	disconnected chan int
}

func (r *recorder) handlers() Handlers {
	r.disconnected = make(chan int, 8)
	return Handlers{
		OnPacket: func(from int, in api.In) {
			r.mu.Lock()
			r.packets = append(r.packets, in)
			r.from = append(r.from, from)
			r.mu.Unlock()
		},
		OnConnect: func(int) { atomic.AddInt32(&r.connects, 1) },
		OnDisconnect: func(id int) {
			atomic.AddInt32(&r.disconnects, 1)
			r.disconnected <- id
		},
	}
}

func (r *recorder) got() ([]api.In, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.In(nil), r.packets...), append([]int(nil), r.from...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %v", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testConf() config.Connection {
	return config.Connection{CandidateTTL: 30 * time.Second, NegotiationTimeout: 2 * time.Second, MaxPendingSignals: 16}
}

type room struct {
	net   *network.MemoryNet
	board *board
	m     map[int]*Manager
	r     map[int]*recorder
}

// newRoom makes managers with local ids set.
func newRoom(ids ...int) *room {
	rm := &room{net: network.NewMemoryNet(), board: newBoard(), m: map[int]*Manager{}, r: map[int]*recorder{}}
	for _, id := range ids {
		m := NewManager(rm.net.Dialer(), rm.board.signaler(), testConf(), logger.Nop())
		rec := &recorder{}
		m.Handle(rec.handlers())
		m.SetLocalPlayerID(id)
		rm.m[id], rm.r[id] = m, rec
		rm.board.peers[id] = m
	}
	return rm
}

func (rm *room) destroy() {
	for _, m := range rm.m {
		m.Destroy()
	}
}

func TestStarExchange(t *testing.T) {
	rm := newRoom(1, 2, 3)
	defer rm.destroy()
	host := rm.m[1]

	for _, id := range []int{2, 3} {
		if err := host.Connect(id); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "host ready", func() bool { return host.Ready() && len(host.Connected()) == 2 })
	waitFor(t, "clients ready", func() bool { return rm.m[2].Ready() && rm.m[3].Ready() })

	if s, _ := host.State(2); s != Connected {
		t.Errorf("state %v", s)
	}

	if err := host.Broadcast(api.Event, api.GameEvent{Type: api.EventRoundStart, Round: 1}); err != nil {
		t.Fatal(err)
	}
	if err := rm.m[3].Send(1, api.Input, api.PlayerInput{PlayerId: 3, Pressed: []string{"BOMB"}}); err != nil {
		t.Fatal(err)
	}

	for _, id := range []int{2, 3} {
		rec := rm.r[id]
		waitFor(t, "event", func() bool { p, _ := rec.got(); return len(p) == 1 })
		p, from := rec.got()
		if p[0].T != api.Event || from[0] != 1 || p[0].From != 1 {
			t.Errorf("client %v got %+v from %v", id, p[0], from[0])
		}
	}
	waitFor(t, "input", func() bool { p, _ := rm.r[1].got(); return len(p) == 1 })
	p, from := rm.r[1].got()
	if p[0].T != api.Input || from[0] != 3 {
		t.Errorf("host got %+v from %v", p[0], from[0])
	}
	in, err := api.Unwrap[api.PlayerInput](p[0].Payload)
	if err != nil || in.Pressed[0] != "BOMB" {
		t.Errorf("bad input %+v, %v", in, err)
	}
	if c := atomic.LoadInt32(&rm.r[1].connects); c != 2 {
		t.Errorf("host connects %v", c)
	}
}

func TestSignalsBeforeLocalId(t *testing.T) {
	net, b := network.NewMemoryNet(), newBoard()
	host := NewManager(net.Dialer(), b.signaler(), testConf(), logger.Nop())
	host.SetLocalPlayerID(1)
	client := NewManager(net.Dialer(), b.signaler(), testConf(), logger.Nop())
	b.peers[1], b.peers[2] = host, client
	defer host.Destroy()
	defer client.Destroy()

	if err := host.Connect(2); err != nil {
		t.Fatal(err)
	}
	// someone else's offer that would fail if it were taken
	bogus := api.SessionDescription{Type: "offer", Sdp: "nope"}
	_ = client.HandleSignal(api.WebrtcOffer, api.Signal{From: 4, To: 3, Sdp: &bogus})

	if _, ok := client.State(1); ok {
		t.Fatalf("client answered without an id")
	}
	client.SetLocalPlayerID(2)

	waitFor(t, "connected", func() bool { return host.Ready() && client.Ready() })
	if _, ok := client.State(4); ok {
		t.Errorf("signal for another player was taken")
	}
}

func TestNegotiationTimeout(t *testing.T) {
	rm := newRoom(1, 2)
	defer rm.destroy()
	rm.board.drop = func(kind api.Kind) bool { return kind == api.WebrtcAnswer }
	host := rm.m[1]
	host.conf.NegotiationTimeout = 50 * time.Millisecond

	if err := host.Connect(2); err != nil {
		t.Fatal(err)
	}
	select {
	case id := <-rm.r[1].disconnected:
		if id != 2 {
			t.Errorf("disconnect of %v", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no timeout")
	}
	if s, _ := host.State(2); s != Failed {
		t.Errorf("state %v", s)
	}
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&rm.r[1].disconnects); n != 1 {
		t.Errorf("disconnects %v", n)
	}
}

func TestFailureNotifiesOnce(t *testing.T) {
	rm := newRoom(1, 2)
	defer rm.destroy()
	host := rm.m[1]
	if err := host.Connect(2); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connected", func() bool { return host.Ready() && rm.m[2].Ready() })

	links := rm.net.Links()
	if len(links) != 2 {
		t.Fatalf("links %v", len(links))
	}
	links[0].Fail()

	waitFor(t, "host disconnect", func() bool { return atomic.LoadInt32(&rm.r[1].disconnects) > 0 })
	waitFor(t, "client disconnect", func() bool { return atomic.LoadInt32(&rm.r[2].disconnects) > 0 })
	time.Sleep(50 * time.Millisecond)

	for id, rec := range rm.r {
		if n := atomic.LoadInt32(&rec.disconnects); n != 1 {
			t.Errorf("peer %v disconnects %v", id, n)
		}
	}
	if s, _ := host.State(2); s != Failed {
		t.Errorf("state %v", s)
	}
	if err := host.Send(2, api.Event, api.GameEvent{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("send on failed link: %v", err)
	}
	if host.Ready() {
		t.Errorf("ready with a failed link")
	}
}

func TestCloseIsQuiet(t *testing.T) {
	rm := newRoom(1, 2)
	defer rm.destroy()
	host := rm.m[1]
	_ = host.Connect(2)
	waitFor(t, "connected", func() bool { return host.Ready() && rm.m[2].Ready() })

	if err := host.Close(2); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "remote sees it", func() bool { return atomic.LoadInt32(&rm.r[2].disconnects) == 1 })
	if n := atomic.LoadInt32(&rm.r[1].disconnects); n != 0 {
		t.Errorf("local close notified %v", n)
	}
	if _, ok := host.State(2); ok {
		t.Errorf("closed link kept")
	}
	if err := host.Close(2); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("second close: %v", err)
	}
}

func TestMalformedFrameDropped(t *testing.T) {
	rm := newRoom(1, 2)
	defer rm.destroy()
	_ = rm.m[1].Connect(2)
	waitFor(t, "connected", func() bool { return rm.m[1].Ready() && rm.m[2].Ready() })

	for _, l := range rm.net.Links() {
		_ = l.Send([]byte("{broken"))
		_ = l.Send([]byte(`{"t":"chat"}`))
	}
	_ = rm.m[2].Send(1, api.Input, api.PlayerInput{PlayerId: 2})

	waitFor(t, "input", func() bool { p, _ := rm.r[1].got(); return len(p) > 0 })
	time.Sleep(20 * time.Millisecond)
	if p, _ := rm.r[1].got(); len(p) != 1 || p[0].T != api.Input {
		t.Errorf("host got %+v", p)
	}
	if p, _ := rm.r[2].got(); len(p) != 0 {
		t.Errorf("client got %+v", p)
	}
}

func TestDestroyIgnoresLateSignals(t *testing.T) {
	rm := newRoom(1, 2)
	host := rm.m[1]
	_ = host.Connect(2)
	waitFor(t, "connected", func() bool { return host.Ready() })
	rm.destroy()

	sdp := api.SessionDescription{Type: "answer", Sdp: "mem-1"}
	if err := host.HandleSignal(api.WebrtcAnswer, api.Signal{From: 2, To: 1, Sdp: &sdp}); err != nil {
		t.Errorf("late answer: %v", err)
	}
	if err := host.Connect(3); !errors.Is(err, ErrDestroyed) {
		t.Errorf("connect after destroy: %v", err)
	}
	if _, ok := host.State(2); ok {
		t.Errorf("state kept")
	}
	if n := atomic.LoadInt32(&rm.r[1].disconnects); n != 0 {
		t.Errorf("destroy notified %v", n)
	}
}

type fakeLink struct {
	mu    sync.Mutex
	added []string
}

func (f *fakeLink) CreateOffer() (api.SessionDescription, error) {
	return api.SessionDescription{Type: "offer", Sdp: "x"}, nil
}
func (f *fakeLink) AcceptOffer(api.SessionDescription) (api.SessionDescription, error) {
	return api.SessionDescription{Type: "answer", Sdp: "y"}, nil
}
func (f *fakeLink) AcceptAnswer(api.SessionDescription) error { return nil }
func (f *fakeLink) AddCandidate(c api.IceCandidate) error {
	f.mu.Lock()
	f.added = append(f.added, c.Candidate)
	f.mu.Unlock()
	return nil
}
func (f *fakeLink) Send([]byte) error { return nil }
func (f *fakeLink) Close() error      { return nil }

type fakeDialer struct{ links []*fakeLink }

func (d *fakeDialer) Dial(network.LinkHandlers) (network.Link, error) {
	l := &fakeLink{}
	d.links = append(d.links, l)
	return l, nil
}

func TestCandidateBuffer(t *testing.T) {
	d := &fakeDialer{}
	answers := 0
	m := NewManager(d, SignalFunc(func(kind api.Kind, _ api.Signal) error {
		if kind == api.WebrtcAnswer {
			answers++
		}
		return nil
	}), config.Connection{CandidateTTL: 10 * time.Second, MaxPendingSignals: 8}, logger.Nop())
	m.SetLocalPlayerID(2)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	ice := func(c string) {
		t.Helper()
		if err := m.HandleSignal(api.WebrtcIce, api.Signal{From: 1, To: 2, Candidate: &api.IceCandidate{Candidate: c}}); err != nil {
			t.Fatal(err)
		}
	}
	offer := api.SessionDescription{Type: "offer", Sdp: "x"}

	ice("c0")
	now = now.Add(15 * time.Second)
	ice("c1")
	ice("c1")
	ice("c2")
	if err := m.HandleSignal(api.WebrtcOffer, api.Signal{From: 1, To: 2, Sdp: &offer}); err != nil {
		t.Fatal(err)
	}
	ice("c3")
	ice("c2")
	if err := m.HandleSignal(api.WebrtcOffer, api.Signal{From: 1, To: 2, Sdp: &offer}); err != nil {
		t.Fatal(err)
	}

	if len(d.links) != 1 || answers != 1 {
		t.Fatalf("duplicate offer taken: links %v, answers %v", len(d.links), answers)
	}
	got := d.links[0].added
	want := []string{"c1", "c2", "c3"}
	if len(got) != len(want) {
		t.Fatalf("candidates %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidates %v, want %v", got, want)
			break
		}
	}
	if s, _ := m.State(1); s != AnswerExchanged {
		t.Errorf("state %v", s)
	}
	if err := m.Send(1, api.Input, api.PlayerInput{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("send before open: %v", err)
	}
	if err := m.Send(3, api.Input, api.PlayerInput{}); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("send to nobody: %v", err)
	}
}

func TestIgnoresOtherAddressees(t *testing.T) {
	d := &fakeDialer{}
	m := NewManager(d, SignalFunc(func(api.Kind, api.Signal) error { return nil }), testConf(), logger.Nop())
	m.SetLocalPlayerID(3)
	offer := api.SessionDescription{Type: "offer", Sdp: "x"}

	tests := []struct {
		name string
		kind api.Kind
		s    api.Signal
	}{
		{"other player", api.WebrtcOffer, api.Signal{From: 1, To: 2, Sdp: &offer}},
		{"echo", api.WebrtcOffer, api.Signal{From: 3, To: 3, Sdp: &offer}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := m.HandleSignal(test.kind, test.s); err != nil {
				t.Fatal(err)
			}
			if len(d.links) != 0 {
				t.Errorf("link made")
			}
		})
	}
	if err := m.HandleSignal(api.WebrtcOffer, api.Signal{From: 1, To: 3}); !errors.Is(err, api.ErrMalformed) {
		t.Errorf("offer without sdp: %v", err)
	}
}
