// Command sacnrx receives one sACN universe and logs, serves and forwards its DMX data.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Hundemeier/go-sacn/internal/config"
	"github.com/Hundemeier/go-sacn/internal/logging"
	"github.com/Hundemeier/go-sacn/internal/metrics"
	"github.com/Hundemeier/go-sacn/internal/mqttbridge"
	"github.com/Hundemeier/go-sacn/internal/status"
	"github.com/Hundemeier/go-sacn/sacn"
)

func main() {
	configPath := flag.String("config", "", "path to a .toml or .yaml config file")
	universe := flag.Uint("universe", 0, "universe to receive (overrides the config file)")
	debug := flag.Bool("debug", false, "log why datagrams are discarded")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = applyFlags(&cfg, *universe, *debug)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sacnrx: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "sacnrx: %v\n", err)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, universe uint, debug bool) error {
	if universe != 0 {
		if universe > sacn.MaxUniverse {
			return fmt.Errorf("universe %d not in range [1-%d]", universe, sacn.MaxUniverse)
		}
		cfg.Receiver.Universe = uint16(universe)
	}
	if debug {
		cfg.Receiver.Debug = true
	}
	return cfg.Validate()
}

func run(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.Logging, "sacnrx").With().Uint16("universe", cfg.Receiver.Universe).Logger()
	if cfg.Receiver.Debug && log.GetLevel() > zerolog.DebugLevel {
		log = log.Level(zerolog.DebugLevel)
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return err
	}

	var bridge *mqttbridge.Bridge
	if cfg.MQTT.Enabled {
		bridge, err = mqttbridge.Connect(cfg.MQTT, cfg.Receiver.Universe, log)
		if err != nil {
			return err
		}
		defer bridge.Close()
	}

	opts := []sacn.Option{sacn.WithLogger(log), sacn.WithObserver(collector)}
	if cfg.Receiver.Mode == config.ModeCallback {
		opts = append(opts, sacn.WithCallback(func(frame sacn.DMXFrame) {
			logFrame(log, frame)
			if bridge != nil {
				bridge.OnFrame(frame)
			}
		}))
	}
	recv, err := sacn.NewReceiver(cfg.Receiver.Universe, cfg.Receiver.Debug, opts...)
	if err != nil {
		return err
	}

	var ifi *net.Interface
	if cfg.Receiver.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Receiver.Interface)
		if err != nil {
			return fmt.Errorf("interface %q: %w", cfg.Receiver.Interface, err)
		}
	}
	sock, err := sacn.ListenMulticast(ifi, cfg.Receiver.Universe)
	if err != nil {
		return err
	}
	defer sock.Close()
	log.Info().Str("group", sacn.MulticastAddr(cfg.Receiver.Universe).String()).
		Str("mode", cfg.Receiver.Mode).Msg("listening")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(sock.Serve(ctx, recv))
	})
	g.Go(func() error {
		watchLiveness(ctx, recv, cfg.Receiver.StaleAfter.Duration, collector, bridge, log)
		return nil
	})
	if cfg.Status.Enabled {
		g.Go(func() error {
			return status.Serve(ctx, cfg.Status.Addr, status.NewRouter(recv, cfg.Receiver.StaleAfter.Duration, reg), log)
		})
	}
	if cfg.Receiver.Mode == config.ModePoll {
		g.Go(func() error {
			for {
				frame, err := recv.WaitForNewData(ctx)
				if err != nil {
					return ignoreCanceled(err)
				}
				logFrame(log, frame)
				if bridge != nil {
					if err := bridge.PublishFrame(frame); err != nil {
						log.Warn().Err(err).Msg("frame not published")
					}
				}
			}
		})
	}
	return g.Wait()
}

//watchLiveness reports transitions between a live and a stale source
func watchLiveness(ctx context.Context, recv *sacn.Receiver, staleAfter time.Duration,
	collector *metrics.Collector, bridge *mqttbridge.Bridge, log zerolog.Logger) {
	ticker := time.NewTicker(max(staleAfter/2, time.Millisecond))
	defer ticker.Stop()
	known := false
	wasStale := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stale := recv.Stale(staleAfter)
		if known && stale == wasStale {
			continue
		}
		known, wasStale = true, stale
		if collector != nil {
			collector.SetStale(recv.Universe(), stale)
		}
		if stale {
			log.Warn().Time("last_received", recv.LastReceived()).Msg("source is stale")
		} else {
			log.Info().Msg("source is online")
		}
		if bridge != nil {
			if err := bridge.PublishStatus(stale); err != nil {
				log.Warn().Err(err).Msg("status not published")
			}
		}
	}
}

func logFrame(log zerolog.Logger, frame sacn.DMXFrame) {
	active := 0
	for ch := 1; ch <= sacn.ChannelCount; ch++ {
		if frame.Channel(ch) != 0 {
			active++
		}
	}
	log.Info().Int("active_channels", active).
		Uint8("ch1", frame.Channel(1)).Uint8("ch2", frame.Channel(2)).Uint8("ch3", frame.Channel(3)).
		Msg("new DMX data")
}

func ignoreCanceled(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}
