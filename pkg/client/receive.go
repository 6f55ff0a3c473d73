package client

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/replicate/pkg/metrics"
	"github.com/opd-ai/replicate/pkg/replication"
	"github.com/opd-ai/replicate/pkg/transport"
	"github.com/opd-ai/replicate/pkg/wire"
)

// Receiver is the client-side counterpart of spec.md §4.8: it
// deserializes each server datagram, maintains the ack record and
// snapshot cache, and feeds reconstructed snapshots into the jitter
// buffer. Grounded on the Rust client_receive_network_system's
// server-address filtering (applied upstream, at the transport.Transport
// this Receiver reads from) and the teacher's LagCompensator bound-
// eviction idiom reused in SnapshotCache.
type Receiver struct {
	Ack      AckState
	Cache    *SnapshotCache
	Jitter   *JitterBuffer
	Incoming <-chan transport.NetworkEvent
	Metrics  *metrics.Metrics
}

// NewReceiver wires a SnapshotCache and JitterBuffer of the given
// sizes to events arriving on incoming.
func NewReceiver(incoming <-chan transport.NetworkEvent, cacheSize, jitterMinFill int) *Receiver {
	return &Receiver{
		Cache:    NewSnapshotCache(cacheSize),
		Jitter:   NewJitterBuffer(jitterMinFill),
		Incoming: incoming,
	}
}

// Run processes events from Incoming until ctx is canceled or the
// channel closes. Malformed datagrams are logged and dropped rather
// than propagated, per spec.md §4.9.
func (r *Receiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.Incoming:
			if !ok {
				return
			}
			if ev.Kind != transport.NetPacket {
				continue
			}
			r.handlePacket(ev.Payload)
		}
	}
}

func (r *Receiver) handlePacket(payload []byte) {
	msg, err := wire.DecodeServerMessage(payload)
	if err != nil {
		logrus.WithError(err).WithField("system_name", "client_receiver").Warn("dropping malformed server datagram")
		return
	}

	switch msg.Kind() {
	case wire.KindSnapshot:
		r.handleSnapshot(*msg.Snapshot)
	case wire.KindDelta:
		r.handleDelta(*msg.Delta)
	}
}

func (r *Receiver) handleSnapshot(snap replication.WorldSnapshot) {
	r.Ack.OnSnapshot(snap.Frame)
	r.Jitter.Push(snap)
	r.Cache.Put(snap)
	r.reportJitterDepth()
}

func (r *Receiver) handleDelta(d replication.WorldDelta) {
	r.Ack.OnDelta(d.Frame)
	base, ok := r.Cache.Get(d.SnapshotFrame)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"system_name":    "client_receiver",
			"snapshot_frame": d.SnapshotFrame,
		}).Debug("delta references snapshot not in cache, discarding")
		return
	}
	applied, err := d.Apply(base)
	if err != nil {
		logrus.WithError(err).WithField("system_name", "client_receiver").Warn("failed to apply delta")
		return
	}
	r.Jitter.Push(applied)
	r.reportJitterDepth()
}

func (r *Receiver) reportJitterDepth() {
	if r.Metrics != nil {
		r.Metrics.JitterBufferDepth.Set(float64(r.Jitter.Len()))
	}
}
