package tracker

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/banshee-data/optotrak/internal/monitoring"
)

const meterName = "github.com/banshee-data/optotrak/internal/tracker"

var markerNames = [3]string{"a", "b", "c"}

// Stats is a point-in-time copy of the receiver counters.
type Stats struct {
	PacketsReceived  uint64 `json:"packets_received"`
	BytesReceived    uint64 `json:"bytes_received"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	SamplesInvisible uint64 `json:"samples_invisible"`
	Reconnects       uint64 `json:"reconnects"`
}

// packetStats keeps atomic totals for Stats and mirrors them to
// OpenTelemetry counters.
type packetStats struct {
	received   atomic.Uint64
	bytes      atomic.Uint64
	dropped    atomic.Uint64
	invisible  atomic.Uint64
	reconnects atomic.Uint64

	receivedCounter   metric.Int64Counter
	droppedCounter    metric.Int64Counter
	invisibleCounter  metric.Int64Counter
	reconnectsCounter metric.Int64Counter

	markerAttrs [3]metric.AddOption
}

func newPacketStats(meter metric.Meter) *packetStats {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	s := &packetStats{
		receivedCounter: int64Counter(meter, "optotrak.packets.received",
			"Marker datagrams read from the source.", "{packet}"),
		droppedCounter: int64Counter(meter, "optotrak.packets.dropped",
			"Datagrams discarded because they failed to decode.", "{packet}"),
		invisibleCounter: int64Counter(meter, "optotrak.samples.invisible",
			"Smoothed marker samples rejected by the visibility filter.", "{sample}"),
		reconnectsCounter: int64Counter(meter, "optotrak.reconnects",
			"UDP re-bind attempts after a socket error.", "{attempt}"),
	}
	for i, name := range markerNames {
		s.markerAttrs[i] = metric.WithAttributes(attribute.String("marker", name))
	}
	return s
}

func int64Counter(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		monitoring.Logf("failed to create counter %s: %v", name, err)
		return noop.Int64Counter{}
	}
	return c
}

func (s *packetStats) addPacket(ctx context.Context, n int) {
	s.received.Add(1)
	s.bytes.Add(uint64(n))
	s.receivedCounter.Add(ctx, 1)
}

func (s *packetStats) addDropped(ctx context.Context) {
	s.dropped.Add(1)
	s.droppedCounter.Add(ctx, 1)
}

func (s *packetStats) addInvisible(ctx context.Context, marker int) {
	s.invisible.Add(1)
	s.invisibleCounter.Add(ctx, 1, s.markerAttrs[marker])
}

func (s *packetStats) addReconnect(ctx context.Context) {
	s.reconnects.Add(1)
	s.reconnectsCounter.Add(ctx, 1)
}

func (s *packetStats) snapshot() Stats {
	return Stats{
		PacketsReceived:  s.received.Load(),
		BytesReceived:    s.bytes.Load(),
		PacketsDropped:   s.dropped.Load(),
		SamplesInvisible: s.invisible.Load(),
		Reconnects:       s.reconnects.Load(),
	}
}
