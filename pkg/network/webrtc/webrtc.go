// Package webrtc is the pion implementation of the direct game link.
package webrtc

import (
	"fmt"
	"sync"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
	"github.com/pion/webrtc/v3"
)

// Peer is one pion peer connection with the game data channel.
type Peer struct {
	conn *webrtc.PeerConnection
	log  *logger.Logger
	h    network.LinkHandlers

	mu   sync.Mutex
	d    *webrtc.DataChannel
	once sync.Once
}

var _ network.Link = (*Peer)(nil)

func newPeer(conn *webrtc.PeerConnection, h network.LinkHandlers, log *logger.Logger) *Peer {
	p := &Peer{conn: conn, h: h, log: log}
	conn.OnICECandidate(p.handleICECandidate)
	conn.OnConnectionStateChange(p.handleState)
	// the answering side gets the channel with the offer
	conn.OnDataChannel(func(ch *webrtc.DataChannel) {
		if ch.Label() != network.ChannelLabel {
			p.log.Warn().Str("label", ch.Label()).Msg("Unexpected data channel")
			_ = ch.Close()
			return
		}
		p.addDataChannel(ch)
	})
	return p
}

func (p *Peer) CreateOffer() (api.SessionDescription, error) {
	ordered := false
	var retransmits uint16
	ch, err := p.conn.CreateDataChannel(network.ChannelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})
	if err != nil {
		return api.SessionDescription{}, err
	}
	p.addDataChannel(ch)

	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return api.SessionDescription{}, err
	}
	if err = p.conn.SetLocalDescription(offer); err != nil {
		return api.SessionDescription{}, err
	}
	p.log.Debug().Msg("Created Offer")
	return toApi(offer), nil
}

func (p *Peer) AcceptOffer(offer api.SessionDescription) (api.SessionDescription, error) {
	if err := p.conn.SetRemoteDescription(fromApi(offer)); err != nil {
		return api.SessionDescription{}, fmt.Errorf("remote offer: %w", err)
	}
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return api.SessionDescription{}, err
	}
	if err = p.conn.SetLocalDescription(answer); err != nil {
		return api.SessionDescription{}, err
	}
	p.log.Debug().Msg("Created Answer")
	return toApi(answer), nil
}

func (p *Peer) AcceptAnswer(answer api.SessionDescription) error {
	if err := p.conn.SetRemoteDescription(fromApi(answer)); err != nil {
		p.log.Error().Err(err).Msg("Set remote description from peer failed")
		return err
	}
	p.log.Debug().Msg("Set Remote Description")
	return nil
}

func (p *Peer) AddCandidate(c api.IceCandidate) error {
	ice := webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SdpMid,
		SDPMLineIndex:    c.SdpMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
	if err := p.conn.AddICECandidate(ice); err != nil {
		return err
	}
	p.log.Debug().Str("candidate", c.Candidate).Msg("Ice")
	return nil
}

func (p *Peer) Send(data []byte) error {
	p.mu.Lock()
	d := p.d
	p.mu.Unlock()
	if d == nil || d.ReadyState() != webrtc.DataChannelStateOpen {
		return network.ErrLinkNotOpen
	}
	// text frames, the payload is JSON
	return d.SendText(string(data))
}

func (p *Peer) Close() error {
	if p.conn.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return network.ErrLinkClosed
	}
	err := p.conn.Close()
	p.closed()
	return err
}

func (p *Peer) closed() {
	p.once.Do(func() {
		if p.h.OnClose != nil {
			p.h.OnClose()
		}
	})
}

func (p *Peer) handleICECandidate(ice *webrtc.ICECandidate) {
	if p.h.OnCandidate == nil {
		return
	}
	// ICE gathering finish condition
	if ice == nil {
		p.log.Debug().Msg("ICE gathering was complete probably")
		p.h.OnCandidate(nil)
		return
	}
	c := ice.ToJSON()
	p.h.OnCandidate(&api.IceCandidate{
		Candidate:        c.Candidate,
		SdpMid:           c.SDPMid,
		SdpMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *Peer) handleState(state webrtc.PeerConnectionState) {
	p.log.Debug().Str(".state", state.String()).Msg("Peer")
	var s network.LinkState
	switch state {
	case webrtc.PeerConnectionStateNew:
		s = network.LinkNew
	case webrtc.PeerConnectionStateConnecting:
		s = network.LinkConnecting
	case webrtc.PeerConnectionStateConnected:
		s = network.LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		s = network.LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		s = network.LinkFailed
		p.log.Error().Msgf("WebRTC connection fail! ice: %v, gathering: %v, signalling: %v",
			p.conn.ICEConnectionState(), p.conn.ICEGatheringState(), p.conn.SignalingState())
	case webrtc.PeerConnectionStateClosed:
		s = network.LinkClosed
	default:
		p.log.Debug().Msg("Peer state is not handled!")
		return
	}
	if p.h.OnState != nil {
		p.h.OnState(s)
	}
	if s == network.LinkFailed || s == network.LinkClosed {
		p.closed()
	}
}

func (p *Peer) addDataChannel(ch *webrtc.DataChannel) {
	p.mu.Lock()
	p.d = ch
	p.mu.Unlock()
	ch.OnOpen(func() {
		p.log.Debug().Str("label", ch.Label()).Msg("Data channel opened")
		if p.h.OnOpen != nil {
			p.h.OnOpen()
		}
	})
	ch.OnError(func(err error) { p.log.Error().Err(err).Msg("Data channel") })
	ch.OnMessage(func(m webrtc.DataChannelMessage) {
		if len(m.Data) == 0 {
			return
		}
		if p.h.OnMessage != nil {
			p.h.OnMessage(m.Data)
		}
	})
	ch.OnClose(func() {
		p.log.Debug().Msg("Data channel has been closed")
		p.closed()
	})
}

func toApi(d webrtc.SessionDescription) api.SessionDescription {
	return api.SessionDescription{Type: d.Type.String(), Sdp: d.SDP}
}

func fromApi(d api.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.Sdp}
}
