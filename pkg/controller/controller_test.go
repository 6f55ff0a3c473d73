package controller

import (
	"context"
	"net"
	"testing"

	"github.com/opd-ai/replicate/pkg/components"
	"github.com/opd-ai/replicate/pkg/engine"
	"github.com/opd-ai/replicate/pkg/netid"
	"github.com/opd-ai/replicate/pkg/replicator"
	"github.com/opd-ai/replicate/pkg/transport"
	"github.com/opd-ai/replicate/pkg/wire"
)

const (
	compNetID engine.ComponentID = iota
	compPosition
	compColor
)

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

type recordingSocket struct {
	events chan transport.SocketEvent
	sent   []sentRecord
}

type sentRecord struct {
	dest     net.Addr
	payload  []byte
	delivery transport.Delivery
}

func newRecordingSocket() *recordingSocket {
	return &recordingSocket{events: make(chan transport.SocketEvent, 4)}
}

func (s *recordingSocket) Send(dest net.Addr, payload []byte, delivery transport.Delivery) error {
	s.sent = append(s.sent, sentRecord{dest: dest, payload: payload, delivery: delivery})
	return nil
}
func (s *recordingSocket) Events() <-chan transport.SocketEvent { return s.events }
func (s *recordingSocket) Close() error                          { close(s.events); return nil }

func TestTickAdvancesFrame(t *testing.T) {
	c := New(5)
	c.Tick()
	c.Tick()
	if c.Frame != 2 {
		t.Errorf("Frame = %d, want 2", c.Frame)
	}
}

func TestIsSnapshotFrame(t *testing.T) {
	c := New(3)
	c.Tick() // frame 1
	if c.IsSnapshotFrame() {
		t.Error("frame 1 with frequency 3 should not be a snapshot frame")
	}
	c.Tick()
	c.Tick() // frame 3
	if !c.IsSnapshotFrame() {
		t.Error("frame 3 with frequency 3 should be a snapshot frame")
	}
}

func newTestServer(t *testing.T, snapshotFrequency uint32) (*Server, *engine.World, *recordingSocket) {
	t.Helper()
	w := engine.NewWorld()
	repl := replicator.New(w, compNetID, compPosition, compColor)
	sock := newRecordingSocket()
	tr := transport.New(sock, 1000, 16)
	return NewServer(snapshotFrequency, repl, tr), w, sock
}

func TestRunTickSendsSnapshotOnSnapshotFrame(t *testing.T) {
	srv, w, sock := newTestServer(t, 2)
	e := w.CreateEntity()
	w.Attach(e, compNetID, netid.ID(1))
	w.Attach(e, compPosition, components.Position{X: 1, Y: 1})
	srv.Transport.Clients().Add(fakeAddr("peer:1"))

	if err := srv.RunTick(w); err != nil {
		t.Fatalf("RunTick() error: %v", err)
	}
	srv.Transport.SendPass(context.Background())

	if len(sock.sent) != 1 {
		t.Fatalf("sent count = %d, want 1", len(sock.sent))
	}
	if sock.sent[0].delivery.Mode != transport.Unreliable {
		t.Errorf("delivery mode = %v, want Unreliable", sock.sent[0].delivery.Mode)
	}
	msg, err := wire.DecodeServerMessage(sock.sent[0].payload)
	if err != nil {
		t.Fatalf("DecodeServerMessage() error: %v", err)
	}
	if msg.Kind() != wire.KindSnapshot {
		t.Errorf("Kind() = %v, want KindSnapshot", msg.Kind())
	}
}

func TestRunTickSendsDeltaOnNonSnapshotFrame(t *testing.T) {
	srv, w, sock := newTestServer(t, 3)
	e := w.CreateEntity()
	w.Attach(e, compNetID, netid.ID(1))
	w.Attach(e, compPosition, components.Position{X: 1, Y: 1})
	srv.Transport.Clients().Add(fakeAddr("peer:1"))

	// frame 1 (1 % 3 != 0): no reference yet, falls back to a
	// snapshot and establishes the reference.
	if err := srv.RunTick(w); err != nil {
		t.Fatalf("RunTick() error: %v", err)
	}
	srv.Transport.SendPass(context.Background())

	if err := srv.RunTick(w); err != nil {
		t.Fatalf("RunTick() error: %v", err)
	}
	srv.Transport.SendPass(context.Background())

	if len(sock.sent) != 2 {
		t.Fatalf("sent count = %d, want 2", len(sock.sent))
	}
	second := sock.sent[1]
	if second.delivery.Mode != transport.ReliableSequenced {
		t.Errorf("delivery mode = %v, want ReliableSequenced", second.delivery.Mode)
	}
	msg, err := wire.DecodeServerMessage(second.payload)
	if err != nil {
		t.Fatalf("DecodeServerMessage() error: %v", err)
	}
	if msg.Kind() != wire.KindDelta {
		t.Errorf("Kind() = %v, want KindDelta", msg.Kind())
	}
}

func TestRunTickSkipsSendWithNoConnectedClients(t *testing.T) {
	srv, w, sock := newTestServer(t, 1)
	if err := srv.RunTick(w); err != nil {
		t.Fatalf("RunTick() error: %v", err)
	}
	srv.Transport.SendPass(context.Background())
	if len(sock.sent) != 0 {
		t.Errorf("sent count = %d, want 0 with no connected clients", len(sock.sent))
	}
}
