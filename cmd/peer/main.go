package main

import (
	"context"
	"errors"
	goflag "flag"
	"fmt"
	goos "os"
	"time"

	"github.com/blastzone/netplay/pkg/config"
	"github.com/blastzone/netplay/pkg/game"
	"github.com/blastzone/netplay/pkg/input"
	"github.com/blastzone/netplay/pkg/logger"
	"github.com/blastzone/netplay/pkg/match"
	"github.com/blastzone/netplay/pkg/monitoring"
	"github.com/blastzone/netplay/pkg/network/webrtc"
	"github.com/blastzone/netplay/pkg/os"
	"github.com/blastzone/netplay/pkg/relay"
	"github.com/blastzone/netplay/pkg/service"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewPeerConfig(config.PathFlag(os.Args()))
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("config")
	}
	var (
		host    bool
		code    string
		mapIdx  int
		players int
	)
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.WithFlags(flag.CommandLine)
	flag.BoolVar(&host, "host", false, "Create a room")
	flag.StringVar(&code, "join", "", "Join the room with the code")
	flag.IntVar(&mapIdx, "map", 0, "Map index of a hosted match")
	flag.IntVar(&players, "players", 2, "Number of players of a hosted match")
	flag.Parse()

	log := logger.NewConsole(conf.Peer.Debug, "p", conf.Peer.NoColor)
	log.Info().Msgf("version %s", Version)
	if host == (code != "") {
		log.Fatal().Msg("either --host or --join CODE")
	}
	if err = conf.Webrtc.Validate(); err != nil {
		log.Fatal().Err(err).Msg("webrtc config")
	}

	services := service.Group{}
	if conf.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Monitoring, log)
		if err != nil {
			log.Error().Err(err).Msg("monitoring server")
		} else {
			services.Add(mon)
		}
	}
	services.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := services.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()

	dialer, err := webrtc.NewApiFactory(conf.Webrtc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc")
	}
	rc := relay.NewClient(conf.Peer.RelayUrl, log)

	ctx, stop := os.Interruptible(context.Background())
	defer stop()

	keys := input.NewLocal()
	go func() {
		if err := input.ReadConsole(goos.Stdin, keys); err != nil {
			log.Warn().Err(err).Msg("console")
		}
	}()

	opts := match.Options{
		Conf:     conf,
		Log:      log,
		MapIndex: mapIdx,
		Players:  players,
		Seed:     time.Now().UnixNano(),
		Input:    keys,
		OnStatus: func(s match.Status) { log.Info().Str("status", s.String()).Msg("Match") },
	}
	var m *match.Match
	if host {
		m, err = match.Host(ctx, rc, dialer, opts)
	} else {
		m, err = match.Join(ctx, rc, dialer, code, opts)
	}
	if err != nil {
		log.Error().Err(err).Msg("room")
		return
	}
	room := m.Room()
	if host {
		def, _ := game.MapByIndex(mapIdx)
		fmt.Printf("Room code: %v (map %q, %v players)\n", room.Code, def.Name, players)
	}
	fmt.Println("Keys: +up -up +down +left +right, bomb")

	if err = m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("match")
		return
	}
	log.Info().Msg("Bye")
}
