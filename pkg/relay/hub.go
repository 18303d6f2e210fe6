package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/blastzone/netplay/pkg/com"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/gofrs/uuid"
)

// Hub is an in-memory relay.
// Every member has its own delivery goroutine, so a slow member
// never blocks the others.
type Hub struct {
	topics *com.Map[string, *topic]
	log    *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{topics: com.NewMap[string, *topic](), log: log}
}

type topic struct {
	name    string
	mu      sync.Mutex
	members []*member
	gone    bool
}

func (h *Hub) Join(ctx context.Context, name string, handlers Handlers) (Channel, error) {
	if name == "" {
		return nil, ErrBadTopic
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("presence key: %w", err)
	}
	m := &member{key: key.String(), h: handlers, hub: h, wake: make(chan struct{}, 1), quit: make(chan struct{})}
	go m.deliver()

	for {
		t, _ := h.topics.GetOrPut(name, func() *topic { return &topic{name: name} })
		t.mu.Lock()
		// lost a race with the last member leaving
		if t.gone {
			t.mu.Unlock()
			continue
		}
		m.topic = t
		t.members = append(t.members, m)
		t.presence([]string{m.key}, nil)
		t.mu.Unlock()
		break
	}
	membersGauge.Inc()
	h.log.Debug().Str("topic", name).Str("key", m.key).Msg("Joined")
	return m, nil
}

// Topics returns the number of live topics.
func (h *Hub) Topics() int { return h.topics.Len() }

// presence sends the member list to all members, must be called under the lock.
func (t *topic) presence(joined, left []string) {
	keys := make([]string, len(t.members))
	for i, m := range t.members {
		keys[i] = m.key
	}
	for _, m := range t.members {
		fn := m.h.OnPresence
		if fn == nil {
			continue
		}
		p := Presence{Self: m.key, Keys: keys, Joined: joined, Left: left}
		m.push(func() { fn(p) })
	}
}

type member struct {
	key   string
	h     Handlers
	hub   *Hub
	topic *topic

	mu    sync.Mutex
	queue []func()
	// left is set by Close, closed once the delivery stopped.
	left   bool
	closed bool
	wake   chan struct{}
	quit   chan struct{}
}

func (m *member) Key() string { return m.key }

func (m *member) push(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *member) deliver() {
	for {
		select {
		case <-m.wake:
		case <-m.quit:
			return
		}
		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			fn := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			fn()
		}
	}
}

func (m *member) Publish(data []byte) error {
	m.mu.Lock()
	left := m.left
	m.mu.Unlock()
	if left {
		return ErrClosed
	}
	msg := append([]byte(nil), data...)
	t := m.topic
	t.mu.Lock()
	for _, other := range t.members {
		if other == m {
			continue
		}
		o := other
		o.push(func() {
			if o.h.OnMessage != nil {
				o.h.OnMessage(m.key, msg)
			}
		})
		messagesTotal.Inc()
	}
	t.mu.Unlock()
	return nil
}

func (m *member) Close() error {
	m.mu.Lock()
	if m.left {
		m.mu.Unlock()
		return ErrClosed
	}
	m.left = true
	m.mu.Unlock()

	t := m.topic
	t.mu.Lock()
	for i, x := range t.members {
		if x == m {
			t.members = append(t.members[:i], t.members[i+1:]...)
			break
		}
	}
	t.presence(nil, []string{m.key})
	if len(t.members) == 0 {
		t.gone = true
		m.hub.topics.RemoveByKey(t.name)
	}
	t.mu.Unlock()

	// what was queued before leaving is still delivered
	m.push(func() {
		m.mu.Lock()
		m.closed = true
		m.queue = nil
		m.mu.Unlock()
		if m.h.OnClose != nil {
			m.h.OnClose(nil)
		}
		close(m.quit)
	})
	membersGauge.Dec()
	m.hub.log.Debug().Str("topic", t.name).Str("key", m.key).Msg("Left")
	return nil
}
