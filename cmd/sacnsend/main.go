// Command sacnsend transmits a moving test pattern on one universe.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Hundemeier/go-sacn/internal/config"
	"github.com/Hundemeier/go-sacn/internal/logging"
	"github.com/Hundemeier/go-sacn/sacn"
)

//maxFPS is the highest accepted frame rate
const maxFPS = 1000

//shutdownTimeout is how long run waits for the stream terminated packet on exit
const shutdownTimeout = 2 * time.Second

func main() {
	universe := flag.Uint("universe", 1, "universe to transmit on")
	bind := flag.String("bind", "", "local address to bind to, needed for multicast on some systems")
	dest := flag.String("dest", "", "comma separated unicast destinations")
	multicast := flag.Bool("multicast", true, "send to the multicast group of the universe")
	fps := flag.Int("fps", 10, "frames per second")
	name := flag.String("name", "sacnsend", "source name")
	flag.Parse()

	log := logging.New(config.LoggingConfig{Level: "info", Format: "text"}, "sacnsend")
	if *universe > sacn.MaxUniverse {
		fmt.Fprintf(os.Stderr, "sacnsend: universe %d not in range [1-%d]\n", *universe, sacn.MaxUniverse)
		os.Exit(1)
	}
	if err := run(log, uint16(*universe), *bind, *dest, *multicast, *fps, *name); err != nil {
		fmt.Fprintf(os.Stderr, "sacnsend: %v\n", err)
		os.Exit(1)
	}
}

func run(log zerolog.Logger, universe uint16, bind, dest string, multicast bool, fps int, name string) error {
	if fps <= 0 || fps > maxFPS {
		return fmt.Errorf("fps %d not in range [1-%d]", fps, maxFPS)
	}
	cid := uuid.New()
	trans, err := sacn.NewTransmitter(bind, cid, name)
	if err != nil {
		return err
	}
	ch, err := trans.Activate(universe)
	if err != nil {
		return err
	}
	//deactivate the universe on exit and wait until the stream terminated packet is out
	defer stop(log, trans, universe, ch)

	trans.SetMulticast(universe, multicast)
	if dest != "" {
		for _, err := range trans.SetDestinations(universe, strings.Split(dest, ",")) {
			log.Warn().Err(err).Msg("destination ignored")
		}
	}
	log.Info().Uint16("universe", universe).Str("cid", cid.String()).Msg("transmitting")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for step := 0; ; step++ {
		select {
		case <-sig:
			return nil
		case <-ticker.C:
		}
		ch <- chase(step)
	}
}

func stop(log zerolog.Logger, trans *sacn.Transmitter, universe uint16, ch chan<- [sacn.ChannelCount]byte) {
	close(ch)
	select {
	case <-trans.Done(universe):
	case <-time.After(shutdownTimeout):
		log.Warn().Uint16("universe", universe).Msg("stream terminated packet not confirmed")
	}
}

//chase lights one channel at a time, moving one channel per step
func chase(step int) [sacn.ChannelCount]byte {
	var data [sacn.ChannelCount]byte
	data[step%sacn.ChannelCount] = 255
	return data
}
