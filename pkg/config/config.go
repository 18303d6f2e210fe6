package config

import (
	"time"

	flag "github.com/spf13/pflag"
)

type Peer struct {
	Debug    bool
	NoColor  bool
	RelayUrl string
	// TickRate is the local simulation rate (ticks per second).
	TickRate int
	// InputResend repeats unchanged client input so a lost frame
	// doesn't leave a key stuck on the host.
	InputResend time.Duration
}

type Connection struct {
	// CandidateTTL bounds how long early ICE candidates wait
	// for the remote description.
	CandidateTTL time.Duration
	// NegotiationTimeout fails a link that didn't open its data channel in time.
	NegotiationTimeout time.Duration
	// MaxPendingSignals caps signals kept before the local player id is known.
	MaxPendingSignals int
}

type Sync struct {
	BroadcastInterval time.Duration
	// DeltaThreshold is the max number of changed cells sent as a delta,
	// above that the full grid is sent.
	DeltaThreshold int
	// KeyframeEvery forces a full grid every n snapshots, 0 disables.
	KeyframeEvery int
	// SmoothingRate is the exponential approach rate (1/s) of remote poses.
	SmoothingRate float64
}

type Relay struct {
	Address string
	Origin  string
	// Backlog is the per-member outgoing queue length.
	Backlog int
	Https   bool
	Tls     struct {
		Address         string
		Domain          string
		HttpsKey        string
		HttpsCert       string
		RedirectAddress string
	}
}

// IsAutoHttps is true when certificates are requested from Let's Encrypt.
func (r *Relay) IsAutoHttps() bool {
	return r.Https && r.Tls.HttpsCert == "" && r.Tls.HttpsKey == ""
}

type Monitoring struct {
	Port             int
	URLPrefix        string
	MetricEnabled    bool `fig:"metric_enabled"`
	ProfilingEnabled bool `fig:"profiling_enabled"`
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

type PeerConfig struct {
	Peer       Peer
	Webrtc     Webrtc
	Connection Connection
	Sync       Sync
	Monitoring Monitoring
}

type RelayConfig struct {
	Relay Relay
	Debug bool
	// JsonLog writes structured records into stderr instead of the console.
	JsonLog    bool
	Monitoring Monitoring
}

func DefaultConnection() Connection {
	return Connection{
		CandidateTTL:       30 * time.Second,
		NegotiationTimeout: 20 * time.Second,
		MaxPendingSignals:  256,
	}
}

func DefaultSync() Sync {
	return Sync{
		BroadcastInterval: time.Second / 15,
		DeltaThreshold:    20,
		KeyframeEvery:     30,
		SmoothingRate:     15,
	}
}

func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		Peer: Peer{
			RelayUrl:    "ws://localhost:8800/relay",
			TickRate:    60,
			InputResend: 250 * time.Millisecond,
		},
		Webrtc: Webrtc{
			IceServers: []IceServer{
				{Urls: "stun:stun.l.google.com:19302"},
				{Urls: "stun:stun1.l.google.com:19302"},
			},
			LogLevel: int(WarnLogLevel),
		},
		Connection: DefaultConnection(),
		Sync:       DefaultSync(),
		Monitoring: Monitoring{Port: 6611, URLPrefix: "/peer"},
	}
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Relay:      Relay{Address: ":8800", Backlog: 64},
		Monitoring: Monitoring{Port: 6610, URLPrefix: "/relay"},
	}
}

// WarnLogLevel mirrors zerolog's warn level without importing it here.
const WarnLogLevel = 2

// NewPeerConfig returns defaults overlaid with the config file and env.
func NewPeerConfig(path string) (conf PeerConfig, err error) {
	conf = DefaultPeerConfig()
	err = LoadConfig(&conf, path)
	return
}

func NewRelayConfig(path string) (conf RelayConfig, err error) {
	conf = DefaultRelayConfig()
	err = LoadConfig(&conf, path)
	return
}

// PathFlag picks the --config value out of the command line,
// the rest of the flags are parsed once the file is loaded.
func PathFlag(args []string) string {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.StringP("config", "c", "", "")
	_ = fs.Parse(args)
	return *path
}

func (c *PeerConfig) WithFlags(fs *flag.FlagSet) *PeerConfig {
	fs.StringP("config", "c", "", "Config file directory")
	fs.BoolVarP(&c.Peer.Debug, "debug", "d", c.Peer.Debug, "Enable debug logs")
	fs.StringVarP(&c.Peer.RelayUrl, "relay", "r", c.Peer.RelayUrl, "Relay websocket address")
	fs.BoolVar(&c.Monitoring.MetricEnabled, "metrics", c.Monitoring.MetricEnabled, "Serve Prometheus metrics")
	return c
}

func (c *RelayConfig) WithFlags(fs *flag.FlagSet) *RelayConfig {
	fs.StringP("config", "c", "", "Config file directory")
	fs.BoolVarP(&c.Debug, "debug", "d", c.Debug, "Enable debug logs")
	fs.BoolVar(&c.JsonLog, "json", c.JsonLog, "Log JSON records")
	fs.StringVarP(&c.Relay.Address, "addr", "a", c.Relay.Address, "Relay listen address")
	fs.StringVar(&c.Relay.Origin, "origin", c.Relay.Origin, "Allowed websocket origin (empty for any)")
	fs.BoolVar(&c.Relay.Https, "https", c.Relay.Https, "Serve over TLS")
	fs.StringVar(&c.Relay.Tls.Domain, "domain", c.Relay.Tls.Domain, "Domain for automatic certificates")
	fs.BoolVar(&c.Monitoring.MetricEnabled, "metrics", c.Monitoring.MetricEnabled, "Serve Prometheus metrics")
	return c
}
