// Package network defines the direct peer link used by the game
// and a few helpers shared by the transports.
package network

import (
	"errors"

	"github.com/blastzone/netplay/pkg/api"
)

// ChannelLabel is the label of the game data channel.
const ChannelLabel = "game"

var (
	ErrLinkClosed  = errors.New("link closed")
	ErrLinkNotOpen = errors.New("link not open")
)

// LinkState is a coarse transport state reported by a link.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// Link is a direct connection to one remote peer carrying a single
// unordered, unreliable data channel.
//
// The side that calls CreateOffer owns the data channel, the other side
// receives it with the offer.
type Link interface {
	CreateOffer() (api.SessionDescription, error)
	AcceptOffer(offer api.SessionDescription) (api.SessionDescription, error)
	AcceptAnswer(answer api.SessionDescription) error
	AddCandidate(c api.IceCandidate) error
	Send(data []byte) error
	Close() error
}

// LinkHandlers are called from transport goroutines.
type LinkHandlers struct {
	// OnCandidate gets local ICE candidates, nil once gathering is complete.
	OnCandidate func(c *api.IceCandidate)
	OnOpen      func()
	OnMessage   func(data []byte)
	OnClose     func()
	OnState     func(s LinkState)
}

// Dialer makes new links.
type Dialer interface {
	Dial(h LinkHandlers) (Link, error)
}
