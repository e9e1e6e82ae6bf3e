// Command marker-sender plays the Optotrak host: it sends simulated
// three-marker packets to a UDP address so the receiver can be exercised
// without tracker hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/banshee-data/optotrak/internal/monitoring"
	"github.com/banshee-data/optotrak/internal/network"
	"github.com/banshee-data/optotrak/internal/packet"
)

var (
	target = flag.String("addr", "127.0.0.1:40023", "Destination host:port")
	tick   = flag.Duration("tick", network.DefaultSimulationTick, "Interval between packets")
	count  = flag.Int("count", 0, "Stop after this many packets (0 = run until interrupted)")
)

func main() {
	flag.Parse()
	log := monitoring.Component("marker-sender")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *target).Msg("failed to dial")
	}
	defer conn.Close()

	src := network.NewSimulatedSource(nil, *tick)
	defer src.Close()

	var packetCount, byteCount int64
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				packets := atomic.SwapInt64(&packetCount, 0)
				bytes := atomic.SwapInt64(&byteCount, 0)
				log.Info().Int64("packets_per_sec", packets).Int64("bytes_per_sec", bytes).Msg("sending")
			}
		}
	}()

	log.Info().Str("addr", *target).Dur("tick", *tick).Msg("sending simulated markers")
	buf := make([]byte, packet.Size)
	sent := 0
	for *count == 0 || sent < *count {
		n, err := src.Next(ctx, buf)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Error().Err(err).Msg("simulation failed")
			os.Exit(1)
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			log.Warn().Err(err).Msg("write failed")
			continue
		}
		sent++
		atomic.AddInt64(&packetCount, 1)
		atomic.AddInt64(&byteCount, int64(n))
	}
	log.Info().Int("sent", sent).Msg("done")
}
