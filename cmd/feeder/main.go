// Command feeder runs the always-on ADS-B/Mode-S telemetry feeder core:
// it reads Beast frames from a local receiver, filters and buffers them,
// and relays them to an upstream network collector over a single
// reconnecting TCP uplink, alongside the login handshake, GPS position
// reporting and the downlink talkback channel.
//
// Grounded on nishisan-dev-n-backup/cmd/nbackup-agent/main.go's
// flag-parse -> load-config -> build-logger -> run shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/openskynetwork/opensky-sensor-sub000/internal/buffer"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/config"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/driver"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/filter"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/gps"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/inputparser"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/logging"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/login"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/network"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/pipeline"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/serialprovider"
	"github.com/openskynetwork/opensky-sensor-sub000/internal/talkback"
)

func main() {
	configPath := flag.String("config", "/etc/opensky/feeder.yaml", "path to the feeder config file")
	inputAddr := flag.String("input", "127.0.0.1:30005", "host:port of the local Beast-format receiver")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, *inputAddr, logger); err != nil {
		logger.Error("feeder exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, inputAddr string, logger *slog.Logger) error {
	buf := buffer.New(buffer.Configuration{
		StaticBacklog:     cfg.Buffer.StaticBacklog,
		DynamicBacklog:    cfg.Buffer.DynamicBacklog,
		DynamicIncrements: cfg.Buffer.DynamicIncrements,
		History:           cfg.Buffer.History,
		GC:                cfg.Buffer.GC,
		GCInterval:        cfg.Buffer.GCInterval,
		GCLevel:           cfg.Buffer.GCLevel,
	})

	filt := filter.New(filter.Configuration{
		CRC:                  cfg.Filter.CRC,
		ModeSExtSquitterOnly: cfg.Filter.ModeSExtSquitterOnly,
		SyncFilter:           cfg.Filter.SyncFilter,
	})

	inputDrv := driver.NewTCPDriver(inputAddr)
	filt.OnReconfigure = func() {
		if err := inputDrv.Reconfigure(); err != nil {
			logger.Warn("input driver reconfigure failed", "error", err)
		}
	}
	parser := inputparser.New(inputDrv)

	dscp, err := network.ParseDSCP(cfg.Network.DSCP)
	if err != nil {
		return fmt.Errorf("network.dscp: %w", err)
	}
	uplink := network.New(network.DialTCP(cfg.Network.Host, cfg.Network.Port, network.TuneUplink(dscp, cfg.Network.Timeout)))

	gpsState := gps.New(uplink)
	serial := serialprovider.StaticProvider{Serial: cfg.Ident.Serial}
	handshake := login.New(uplink, serial, gpsState, login.Config{
		Identity: login.Identity{
			DeviceType:   cfg.Ident.DeviceType,
			VersionMajor: cfg.Ident.VersionMajor,
			VersionMinor: cfg.Ident.VersionMinor,
			VersionPatch: cfg.Ident.VersionPatch,
		},
		Username: cfg.Ident.Username,
	}, logger)

	tb := talkback.New(uplink, logger)
	talkback.RegisterFilterReconfigure(tb, filt)

	throttle := pipeline.NewThrottle(cfg.Network.RateLimitBytesPerSec)

	go uplink.Run(ctx)
	go pipeline.Receive(ctx, parser, filt, buf, logger)
	go runLoginOnEveryConnect(ctx, uplink, handshake, logger)
	go tb.Run(ctx)
	if cfg.Buffer.GC {
		go buf.RunGC(ctx)
	}

	pipeline.Relay(ctx, buf, uplink, cfg.Network.Timeout, throttle, logger)
	return nil
}

// runLoginOnEveryConnect re-runs the handshake each time the uplink
// (re)connects. WaitReconnect (rather than WaitConnected) is used so a
// connection that stays up doesn't cause the handshake to spin in a tight
// loop once it has already run for that connection.
func runLoginOnEveryConnect(ctx context.Context, uplink *network.Network, handshake *login.Login, logger *slog.Logger) {
	gen := 0
	for {
		var err error
		gen, err = uplink.WaitReconnect(ctx, gen)
		if err != nil {
			return
		}
		if !handshake.Run() {
			logger.Warn("login handshake failed, will retry on next connection")
		}
	}
}
