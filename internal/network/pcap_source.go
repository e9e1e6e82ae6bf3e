package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/optotrak/internal/monitoring"
	"github.com/banshee-data/optotrak/internal/timeutil"
)

// PcapSource replays marker datagrams from a classic pcap capture. Only UDP
// payloads addressed to the configured destination port are returned. It
// uses the pure-Go pcapgo reader, so no libpcap is needed.
type PcapSource struct {
	reader   *pcapgo.Reader
	closer   io.Closer
	port     uint16
	clock    timeutil.Clock
	realtime bool

	lastTS   time.Time
	packets  int
	skipped  int
	closeMu  sync.Mutex
	closed   bool
	closeErr error
}

// NewPcapSource reads a capture from r. With realtime set, Next sleeps on
// clock for the gap between capture timestamps.
func NewPcapSource(r io.Reader, port uint16, clock timeutil.Clock, realtime bool) (*PcapSource, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	p := &PcapSource{
		reader:   reader,
		port:     port,
		clock:    clock,
		realtime: realtime,
	}
	if c, ok := r.(io.Closer); ok {
		p.closer = c
	}
	return p, nil
}

// OpenPcapFile opens path and wraps it in a PcapSource.
func OpenPcapFile(path string, port uint16, clock timeutil.Clock, realtime bool) (*PcapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	p, err := NewPcapSource(f, port, clock, realtime)
	if err != nil {
		f.Close()
		return nil, err
	}
	log := monitoring.Component("network")
	log.Info().Str("file", path).Uint16("port", port).Bool("realtime", realtime).Msg("replaying capture")
	return p, nil
}

// Next implements Source. It returns io.EOF at the end of the capture.
func (p *PcapSource) Next(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if p.isClosed() {
			return 0, net.ErrClosed
		}

		data, ci, err := p.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log := monitoring.Component("network")
				log.Info().Int("packets", p.packets).Int("skipped", p.skipped).Msg("capture replay finished")
				return 0, io.EOF
			}
			return 0, fmt.Errorf("failed to read pcap packet: %w", err)
		}

		pkt := gopacket.NewPacket(data, p.reader.LinkType(), gopacket.Default)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			p.skipped++
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || uint16(udp.DstPort) != p.port {
			p.skipped++
			continue
		}

		if p.realtime && !p.lastTS.IsZero() {
			if gap := ci.Timestamp.Sub(p.lastTS); gap > 0 {
				select {
				case <-ctx.Done():
					return 0, ctx.Err()
				case <-p.clock.After(gap):
				}
			}
		}
		p.lastTS = ci.Timestamp
		p.packets++
		return copy(buf, udp.Payload), nil
	}
}

func (p *PcapSource) isClosed() bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closed
}

// Close releases the underlying reader if it is closable.
func (p *PcapSource) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return p.closeErr
	}
	p.closed = true
	if p.closer != nil {
		p.closeErr = p.closer.Close()
	}
	return p.closeErr
}
