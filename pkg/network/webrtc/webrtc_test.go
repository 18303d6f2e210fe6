package webrtc

import (
	"strings"
	"testing"

	"github.com/blastzone/netplay/pkg/api"
	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
)

func TestOfferAnswer(t *testing.T) {
	conf := config.Webrtc{LogLevel: int(logger.ErrorLevel)}
	host, err := NewApiFactory(conf, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	client, err := NewApiFactory(conf, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}

	a, err := host.Dial(network.LinkHandlers{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Close() }()
	b, err := client.Dial(network.LinkHandlers{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = b.Close() }()

	offer, err := a.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if offer.Type != "offer" || !strings.Contains(offer.Sdp, "webrtc-datachannel") {
		t.Fatalf("offer has no data channel: %+v", offer)
	}
	answer, err := b.AcceptOffer(offer)
	if err != nil {
		t.Fatal(err)
	}
	if answer.Type != "answer" {
		t.Fatalf("got %v", answer.Type)
	}
	if err := a.AcceptAnswer(answer); err != nil {
		t.Errorf("answer rejected: %v", err)
	}
}

func TestBadConfig(t *testing.T) {
	conf := config.Webrtc{IceServers: []config.IceServer{{Urls: "turn:example.com"}}}
	if _, err := NewApiFactory(conf, logger.Nop()); err == nil {
		t.Errorf("TURN without credentials accepted")
	}
}

func TestBadOffer(t *testing.T) {
	f, err := NewApiFactory(config.Webrtc{LogLevel: int(logger.ErrorLevel)}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	l, _ := f.Dial(network.LinkHandlers{})
	defer func() { _ = l.Close() }()
	if err := l.Send([]byte("x")); err != network.ErrLinkNotOpen {
		t.Errorf("send without a channel: %v", err)
	}
	if _, err := l.AcceptOffer(api.SessionDescription{Type: "offer", Sdp: "garbage"}); err == nil {
		t.Errorf("garbage offer accepted")
	}
}
