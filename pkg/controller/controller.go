// Package controller implements the server-side Network Controller:
// a per-tick clock that decides, per spec.md §4.7, whether the tick
// produces a full snapshot or a delta against the one persisted
// reference snapshot.
package controller

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/replicate/pkg/engine"
	"github.com/opd-ai/replicate/pkg/metrics"
	"github.com/opd-ai/replicate/pkg/replication"
	"github.com/opd-ai/replicate/pkg/replicator"
	"github.com/opd-ai/replicate/pkg/transport"
	"github.com/opd-ai/replicate/pkg/wire"
)

// deltaStreamID is the fixed stream id deltas are sent on, so an
// unrelated reliable stream never head-of-line-blocks them.
const deltaStreamID byte = 1

// Controller holds the frame clock and the single persisted reference
// snapshot deltas are computed against.
type Controller struct {
	Frame             uint32
	SnapshotFrequency uint32

	reference *replication.WorldSnapshot
}

// New returns a Controller that emits a full snapshot every
// snapshotFrequency ticks. A frequency of zero is treated as 1 (every
// tick is a snapshot frame).
func New(snapshotFrequency uint32) *Controller {
	if snapshotFrequency == 0 {
		snapshotFrequency = 1
	}
	return &Controller{SnapshotFrequency: snapshotFrequency}
}

// Tick advances the frame counter.
func (c *Controller) Tick() {
	c.Frame++
}

// IsSnapshotFrame reports whether the current frame is a snapshot
// frame: spec.md §4.7's frame % snapshot_frequency == 0.
func (c *Controller) IsSnapshotFrame() bool {
	return c.Frame%c.SnapshotFrequency == 0
}

// Server runs a Controller against a live World and broadcasts to a
// transport.Transport's connected clients.
type Server struct {
	Controller *Controller
	Replicator *replicator.Replicator
	Transport  *transport.Transport
	Metrics    *metrics.Metrics

	// CompressThresholdBytes enables zstd compression (wire.CompressIfLarger)
	// for encoded payloads at or above this size. Zero disables it.
	CompressThresholdBytes int
}

// NewServer wires a Controller, Replicator, and Transport together.
func NewServer(snapshotFrequency uint32, repl *replicator.Replicator, tr *transport.Transport) *Server {
	return &Server{Controller: New(snapshotFrequency), Replicator: repl, Transport: tr}
}

// RunTick implements spec.md §4.7's 4-step per-tick algorithm exactly:
// advance, build snapshot, then either persist + Unreliable broadcast
// (snapshot frame) or diff against the reference + ReliableSequenced
// broadcast (delta frame). Grounded on the teacher's GameServer.tick/
// gameLoop ticker pattern and DeltaEncoder.EncodeDelta's
// baseline-vs-current split.
func (s *Server) RunTick(store *engine.World) error {
	s.Controller.Tick()
	snap := s.Replicator.Snapshot(store, s.Controller.Frame)

	dests := s.Transport.Clients().Snapshot()
	if len(dests) == 0 {
		if s.Controller.IsSnapshotFrame() {
			s.Controller.reference = &snap
		}
		return nil
	}

	if s.Controller.IsSnapshotFrame() {
		return s.broadcastSnapshot(snap, dests)
	}
	return s.broadcastDelta(snap, dests)
}

func (s *Server) broadcastSnapshot(snap replication.WorldSnapshot, dests []net.Addr) error {
	s.Controller.reference = &snap

	payload, err := wire.EncodeServerMessageCompressed(wire.ServerMessage{Snapshot: &snap}, s.CompressThresholdBytes)
	if err != nil {
		return err
	}
	s.Transport.Enqueue(transport.Message{
		Destinations: dests,
		Payload:      payload,
		Delivery:     transport.Delivery{Mode: transport.Unreliable},
	})
	if s.Metrics != nil {
		s.Metrics.SnapshotFrames.Inc()
	}
	logrus.WithFields(logrus.Fields{
		"system_name": "controller",
		"frame":       s.Controller.Frame,
		"clients":     len(dests),
	}).Debug("broadcast snapshot frame")
	return nil
}

func (s *Server) broadcastDelta(snap replication.WorldSnapshot, dests []net.Addr) error {
	if s.Controller.reference == nil {
		// No reference yet: treat this as a snapshot frame instead of
		// diffing against nothing.
		return s.broadcastSnapshot(snap, dests)
	}

	delta, err := snap.Delta(*s.Controller.reference)
	if err != nil {
		return err
	}
	payload, err := wire.EncodeServerMessageCompressed(wire.ServerMessage{Delta: &delta}, s.CompressThresholdBytes)
	if err != nil {
		return err
	}
	s.Transport.Enqueue(transport.Message{
		Destinations: dests,
		Payload:      payload,
		Delivery:     transport.Delivery{Mode: transport.ReliableSequenced, StreamID: deltaStreamID},
	})
	if s.Metrics != nil {
		s.Metrics.DeltaFrames.Inc()
	}
	logrus.WithFields(logrus.Fields{
		"system_name":    "controller",
		"frame":          s.Controller.Frame,
		"snapshot_frame": s.Controller.reference.Frame,
		"clients":        len(dests),
	}).Debug("broadcast delta frame")
	return nil
}
