// Package relay is the broadcast signaling service of a room.
//
// Members join a topic, get a random presence key and see each other's
// messages and the presence list. The relay never talks for its members,
// it only stamps the sender key on what it forwards.
package relay

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrClosed   = errors.New("relay channel closed")
	ErrBadTopic = errors.New("bad topic")
)

// Presence is the member list of a topic in join order,
// with the difference to the previous one.
type Presence struct {
	// Self is the key of the member getting the event.
	Self   string
	Keys   []string
	Joined []string
	Left   []string
}

type Handlers struct {
	// OnMessage gets messages of the other members.
	OnMessage  func(from string, data []byte)
	OnPresence func(p Presence)
	// OnClose is called once when the channel is gone, err is nil after Close.
	OnClose func(err error)
}

type Relay interface {
	Join(ctx context.Context, topic string, h Handlers) (Channel, error)
}

type Channel interface {
	Key() string
	// Publish sends data to every other member of the topic.
	Publish(data []byte) error
	Close() error
}

var (
	membersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "netplay",
		Subsystem: "relay",
		Name:      "members",
		Help:      "Members joined to relay topics.",
	})
	messagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "netplay",
		Subsystem: "relay",
		Name:      "messages_total",
		Help:      "Messages forwarded to members.",
	})
)
