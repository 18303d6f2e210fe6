package main

import (
	"context"
	goflag "flag"
	"time"

	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/monitoring"
	"github.com/blastzone/netplay/pkg/network/httpx"
	"github.com/blastzone/netplay/pkg/os"
	"github.com/blastzone/netplay/pkg/relay"
	"github.com/blastzone/netplay/pkg/service"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewRelayConfig(config.PathFlag(os.Args()))
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("config")
	}
	// flags go over the file values
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.WithFlags(flag.CommandLine)
	flag.Parse()

	log := logger.NewConsole(conf.Debug, "r", false)
	if conf.JsonLog {
		log = logger.New(conf.Debug)
	}
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	hub := relay.NewHub(log)
	address := conf.Relay.Address
	opts := []httpx.Option{httpx.WithLogger(log), httpx.WithTimeouts(120*time.Second, 0)}
	if conf.Relay.Https {
		if conf.Relay.Tls.Address != "" {
			address = conf.Relay.Tls.Address
		}
		opts = append(opts, httpx.WithHttps(
			conf.Relay.Tls.Domain, conf.Relay.Tls.HttpsCert, conf.Relay.Tls.HttpsKey, conf.Relay.Tls.RedirectAddress))
		if conf.Relay.IsAutoHttps() {
			log.Info().Str("domain", conf.Relay.Tls.Domain).Msg("Certificates from Let's Encrypt")
		}
	}
	rs := relay.NewServer(hub, conf.Relay, log)
	server, err := httpx.NewServer(address, func(*httpx.Server) httpx.Handler {
		return httpx.NewServeMux("").
			Handle("/relay", rs).
			HandleW("/healthz", func(w httpx.ResponseWriter) { _, _ = w.Write([]byte("ok")) })
	}, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("relay server")
	}

	services := service.Group{}
	services.Add(server)
	if conf.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Monitoring, log)
		if err != nil {
			log.Error().Err(err).Msg("monitoring server")
		} else {
			services.Add(mon)
		}
	}
	services.Start()

	sig, stop := os.Interruptible(context.Background())
	defer stop()
	<-sig.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := services.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
