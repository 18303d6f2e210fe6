package network

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blastzone/netplay/pkg/api"
)

// MemoryNet is an in-process link fabric.
// Offers carry a link id in the SDP, the answering side finds its pair by it.
// Delivery is asynchronous and in order, one goroutine per link.
type MemoryNet struct {
	mu    sync.Mutex
	seq   uint64
	links map[string]*MemoryLink
}

func NewMemoryNet() *MemoryNet { return &MemoryNet{links: make(map[string]*MemoryLink)} }

type memoryDialer struct{ net *MemoryNet }

func (n *MemoryNet) Dialer() Dialer { return memoryDialer{n} }

func (d memoryDialer) Dial(h LinkHandlers) (Link, error) {
	id := atomic.AddUint64(&d.net.seq, 1)
	l := &MemoryLink{
		id:    fmt.Sprintf("mem-%d", id),
		net:   d.net,
		h:     h,
		inbox: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go l.loop()
	d.net.mu.Lock()
	d.net.links[l.id] = l
	d.net.mu.Unlock()
	return l, nil
}

// Link returns a live link by its id, an id is the SDP of its description.
func (n *MemoryNet) Link(id string) *MemoryLink {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[id]
}

// Links returns all links not closed yet.
func (n *MemoryNet) Links() []*MemoryLink {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*MemoryLink, 0, len(n.links))
	for _, l := range n.links {
		out = append(out, l)
	}
	return out
}

type MemoryLink struct {
	id  string
	net *MemoryNet
	h   LinkHandlers

	mu     sync.Mutex
	remote *MemoryLink
	open   bool
	closed bool

	inbox chan func()
	done  chan struct{}
	once  sync.Once
}

func (l *MemoryLink) Id() string { return l.id }

func (l *MemoryLink) loop() {
	for {
		select {
		case fn := <-l.inbox:
			fn()
		case <-l.done:
			return
		}
	}
}

func (l *MemoryLink) post(fn func()) {
	select {
	case l.inbox <- fn:
	case <-l.done:
	}
}

func (l *MemoryLink) state(s LinkState) {
	if l.h.OnState != nil {
		l.post(func() { l.h.OnState(s) })
	}
}

func (l *MemoryLink) candidate() {
	if l.h.OnCandidate == nil {
		return
	}
	mid := "0"
	c := api.IceCandidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host " + l.id, SdpMid: &mid}
	l.post(func() { l.h.OnCandidate(&c) })
	l.post(func() { l.h.OnCandidate(nil) })
}

func (l *MemoryLink) CreateOffer() (api.SessionDescription, error) {
	l.state(LinkConnecting)
	l.candidate()
	return api.SessionDescription{Type: "offer", Sdp: l.id}, nil
}

func (l *MemoryLink) AcceptOffer(offer api.SessionDescription) (api.SessionDescription, error) {
	if offer.Type != "offer" {
		return api.SessionDescription{}, fmt.Errorf("not an offer: %v", offer.Type)
	}
	remote := l.net.Link(offer.Sdp)
	if remote == nil {
		return api.SessionDescription{}, fmt.Errorf("no link %v", offer.Sdp)
	}
	l.mu.Lock()
	l.remote = remote
	l.mu.Unlock()
	l.state(LinkConnecting)
	l.candidate()
	return api.SessionDescription{Type: "answer", Sdp: l.id}, nil
}

func (l *MemoryLink) AcceptAnswer(answer api.SessionDescription) error {
	if answer.Type != "answer" {
		return fmt.Errorf("not an answer: %v", answer.Type)
	}
	remote := l.net.Link(answer.Sdp)
	if remote == nil {
		return fmt.Errorf("no link %v", answer.Sdp)
	}
	l.mu.Lock()
	l.remote = remote
	l.mu.Unlock()
	l.opened()
	remote.opened()
	return nil
}

func (l *MemoryLink) opened() {
	l.mu.Lock()
	if l.open || l.closed {
		l.mu.Unlock()
		return
	}
	l.open = true
	l.mu.Unlock()
	l.state(LinkConnected)
	if l.h.OnOpen != nil {
		l.post(l.h.OnOpen)
	}
}

func (l *MemoryLink) AddCandidate(api.IceCandidate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLinkClosed
	}
	return nil
}

func (l *MemoryLink) Send(data []byte) error {
	l.mu.Lock()
	open, closed, remote := l.open, l.closed, l.remote
	l.mu.Unlock()
	if closed {
		return ErrLinkClosed
	}
	if !open || remote == nil {
		return ErrLinkNotOpen
	}
	msg := append([]byte(nil), data...)
	if remote.h.OnMessage != nil {
		remote.post(func() { remote.h.OnMessage(msg) })
	}
	return nil
}

// Fail drops the link as a broken transport would, both sides see it.
func (l *MemoryLink) Fail() {
	l.mu.Lock()
	remote := l.remote
	l.mu.Unlock()
	l.shutdown(LinkFailed)
	if remote != nil {
		remote.shutdown(LinkFailed)
	}
}

func (l *MemoryLink) Close() error {
	l.mu.Lock()
	remote := l.remote
	l.mu.Unlock()
	if !l.shutdown(LinkClosed) {
		return ErrLinkClosed
	}
	if remote != nil {
		remote.shutdown(LinkDisconnected)
	}
	return nil
}

func (l *MemoryLink) shutdown(s LinkState) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.closed = true
	l.mu.Unlock()

	l.net.mu.Lock()
	delete(l.net.links, l.id)
	l.net.mu.Unlock()

	l.state(s)
	if l.h.OnClose != nil {
		l.post(l.h.OnClose)
	}
	// the loop drains what was posted before it stops
	l.post(func() { l.once.Do(func() { close(l.done) }) })
	return true
}

var _ Link = (*MemoryLink)(nil)

// IsClosed tells if err means the link is gone.
func IsClosed(err error) bool { return errors.Is(err, ErrLinkClosed) }
