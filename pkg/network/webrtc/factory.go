package webrtc

import (
	"fmt"

	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/network"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// ApiFactory keeps one configured pion API for all links of a peer.
type ApiFactory struct {
	api  *webrtc.API
	conf webrtc.Configuration
	log  *logger.Logger
}

var _ network.Dialer = (*ApiFactory)(nil)

func NewApiFactory(conf config.Webrtc, log *logger.Logger) (*ApiFactory, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
			return nil, err
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := webrtc.SettingEngine{LoggerFactory: customLogger}
	if conf.HasPortRange() {
		if err := s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return nil, err
		}
	}
	if conf.HasSinglePort() {
		udp, err := listenUDP(conf.SinglePort)
		if err != nil {
			return nil, fmt.Errorf("single port: %w", err)
		}
		s.SetICEUDPMux(webrtc.NewICEUDPMux(customLogger.NewLogger("mux"), udp))
		log.Info().Msgf("The single port mode is active for %s", udp.LocalAddr())
	}
	if conf.HasIceIpMap() {
		s.SetNAT1To1IPs([]string{conf.IceIpMap}, webrtc.ICECandidateTypeHost)
		log.Info().Msgf("The NAT mapping is active for %v", conf.IceIpMap)
	}
	if conf.IceLite {
		s.SetLite(true)
	}

	c := webrtc.Configuration{ICEServers: []webrtc.ICEServer{}}
	for _, server := range conf.IceServers {
		c.ICEServers = append(c.ICEServers, webrtc.ICEServer{
			URLs:       []string{server.Urls},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return &ApiFactory{
		api:  webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		conf: c,
		log:  log,
	}, nil
}

// Dial opens a new peer connection, the data channel comes with the offer.
func (a *ApiFactory) Dial(h network.LinkHandlers) (network.Link, error) {
	conn, err := a.api.NewPeerConnection(a.conf)
	if err != nil {
		return nil, err
	}
	return newPeer(conn, h, a.log), nil
}
