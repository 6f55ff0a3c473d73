// Package transport abstracts a datagram socket into the send/receive
// pipeline spec.md §4.6 describes: a queue of outbound Messages
// drained by a rate-limited send pass, and a dedicated receive task
// translating raw socket events into typed NetworkEvents while
// maintaining the connected-clients set.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/replicate/pkg/event"
	"github.com/opd-ai/replicate/pkg/metrics"
)

// DeliveryMode selects the reliability/ordering guarantee a Message is
// sent with. Sequenced and Ordered modes carry a stream id so unrelated
// delta/state streams never block each other.
type DeliveryMode int

const (
	Unreliable DeliveryMode = iota
	UnreliableSequenced
	Reliable
	ReliableSequenced
	ReliableOrdered
)

func (m DeliveryMode) String() string {
	switch m {
	case Unreliable:
		return "unreliable"
	case UnreliableSequenced:
		return "unreliable_sequenced"
	case Reliable:
		return "reliable"
	case ReliableSequenced:
		return "reliable_sequenced"
	case ReliableOrdered:
		return "reliable_ordered"
	default:
		return "unknown"
	}
}

// Delivery pairs a DeliveryMode with the stream id that Sequenced and
// Ordered modes multiplex on. StreamID is ignored for Unreliable and
// Reliable.
type Delivery struct {
	Mode     DeliveryMode
	StreamID byte
}

// Message is one outbound send: the same payload fanned out to every
// destination with one delivery guarantee.
type Message struct {
	Destinations []net.Addr
	Payload      []byte
	Delivery     Delivery
}

// SocketEvent is what a concrete Socket implementation reports off the
// wire, before translation into a NetworkEvent.
type SocketEvent struct {
	Kind    SocketEventKind
	Addr    net.Addr
	Payload []byte
}

type SocketEventKind int

const (
	EventPacket SocketEventKind = iota
	EventConnect
	EventTimeout
)

// Socket is the collaborator contract a concrete transport (see
// pkg/udptransport) implements.
type Socket interface {
	Send(dest net.Addr, payload []byte, delivery Delivery) error
	Events() <-chan SocketEvent
	Close() error
}

// NetworkEventKind distinguishes the typed events the receive pipeline
// emits onto its bus.
type NetworkEventKind int

const (
	NetPacket NetworkEventKind = iota
	NetConnect
	NetDisconnect
)

// NetworkEvent is the receive pipeline's translated output.
type NetworkEvent struct {
	Kind    NetworkEventKind
	Addr    net.Addr
	Payload []byte
}

// ClientList tracks addresses the receive pipeline has seen Connect
// from and not yet Timeout on.
type ClientList struct {
	mu      sync.RWMutex
	clients map[string]net.Addr
}

// NewClientList returns an empty ClientList.
func NewClientList() *ClientList {
	return &ClientList{clients: make(map[string]net.Addr)}
}

// Add records addr as connected. Idempotent: a duplicate Connect is
// absorbed without producing a second entry.
func (c *ClientList) Add(addr net.Addr) (added bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := addr.String()
	if _, exists := c.clients[key]; exists {
		return false
	}
	c.clients[key] = addr
	return true
}

// Remove drops addr from the connected set.
func (c *ClientList) Remove(addr net.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, addr.String())
}

// Snapshot returns every currently connected address.
func (c *ClientList) Snapshot() []net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]net.Addr, 0, len(c.clients))
	for _, a := range c.clients {
		out = append(out, a)
	}
	return out
}

// Transport owns the outbound queue, the rate limiter, and the
// connected-clients set for one local socket. It is grounded on the
// Rust TransportResource/send_network_system split: messages queue up
// independently of the send pass that drains them.
type Transport struct {
	socket Socket
	limit  rate.Limit

	mu       sync.Mutex
	queue    []Message
	limiters map[string]*rate.Limiter

	clients *ClientList
	events  *event.Bus[NetworkEvent]
	filter  func(SocketEvent) bool
	metrics *metrics.Metrics
}

// SetMetrics attaches a Metrics instance; once set, SendPass and the
// receive pipeline report packet counts and connected-client depth to
// it.
func (t *Transport) SetMetrics(m *metrics.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// New wraps socket with a send/receive pipeline. sendRateLimit bounds
// datagrams per second, per destination address.
func New(socket Socket, sendRateLimit int, eventBufferSize int) *Transport {
	if sendRateLimit <= 0 {
		sendRateLimit = 120
	}
	return &Transport{
		socket:   socket,
		limit:    rate.Limit(sendRateLimit),
		limiters: make(map[string]*rate.Limiter),
		clients:  NewClientList(),
		events:   event.NewBus[NetworkEvent](eventBufferSize),
	}
}

// Clients exposes the connected-clients set the receive pipeline
// maintains.
func (t *Transport) Clients() *ClientList { return t.clients }

// SetFilter installs a predicate the receive pipeline consults before
// translating each SocketEvent; events for which it returns false are
// dropped. Clients use ServerFilter to admit only the configured
// server's address.
func (t *Transport) SetFilter(f func(SocketEvent) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter = f
}

// Events returns the channel of translated NetworkEvents.
func (t *Transport) Events() <-chan NetworkEvent { return t.events.Events() }

// Enqueue appends msg to the outbound queue; it is drained on the
// next SendPass.
func (t *Transport) Enqueue(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, msg)
}

// SendPass drains the outbound queue and submits one datagram per
// (message x destination), pacing each destination via a per-address
// token bucket. Grounded on send_network_system's drain-and-clear
// loop in the Rust original.
func (t *Transport) SendPass(ctx context.Context) {
	t.mu.Lock()
	queue := t.queue
	t.queue = nil
	t.mu.Unlock()

	for _, msg := range queue {
		for _, dest := range msg.Destinations {
			limiter := t.limiterFor(dest)
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := t.socket.Send(dest, msg.Payload, msg.Delivery); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"system_name": "transport",
					"dest":        dest.String(),
					"delivery":    msg.Delivery.Mode.String(),
				}).Warn("send failed")
				continue
			}
			if t.metrics != nil {
				t.metrics.PacketsSent.WithLabelValues(msg.Delivery.Mode.String()).Inc()
			}
		}
	}
}

func (t *Transport) limiterFor(dest net.Addr) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := dest.String()
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(t.limit, int(t.limit)+1)
		t.limiters[key] = l
	}
	return l
}

// RunReceive translates raw SocketEvents into NetworkEvents, updating
// the connected-clients set, until ctx is canceled or the socket's
// event channel closes. Run this in its own goroutine.
func (t *Transport) RunReceive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case se, ok := <-t.socket.Events():
			if !ok {
				return
			}
			t.translate(se)
		}
	}
}

func (t *Transport) translate(se SocketEvent) {
	t.mu.Lock()
	filter := t.filter
	t.mu.Unlock()
	if filter != nil && !filter(se) {
		return
	}
	switch se.Kind {
	case EventPacket:
		t.publish(NetworkEvent{Kind: NetPacket, Addr: se.Addr, Payload: se.Payload})
	case EventConnect:
		t.clients.Add(se.Addr)
		t.publish(NetworkEvent{Kind: NetConnect, Addr: se.Addr})
		t.reportClientCount()
	case EventTimeout:
		t.clients.Remove(se.Addr)
		t.publish(NetworkEvent{Kind: NetDisconnect, Addr: se.Addr})
		t.reportClientCount()
	}
}

func (t *Transport) reportClientCount() {
	t.mu.Lock()
	m := t.metrics
	t.mu.Unlock()
	if m != nil {
		m.ConnectedClients.Set(float64(len(t.clients.Snapshot())))
	}
}

func (t *Transport) publish(ev NetworkEvent) {
	if err := t.events.TryPublish(ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"system_name": "transport",
		}).Warn("event bus full, dropping network event")
	}
}

// ServerFilter wraps a raw SocketEvent source so only packets
// originating from one of servers report as NetPacket events;
// everything else is dropped silently. Mirrors
// client_receive_network_system's "packet.addr() == server" guard.
// Multiple addresses are accepted because a Socket implementation may
// split unreliable and reliable traffic across distinct local
// addresses for the same logical server (see pkg/udptransport).
func ServerFilter(servers ...net.Addr) func(SocketEvent) bool {
	allowed := make(map[string]bool, len(servers))
	for _, s := range servers {
		allowed[s.String()] = true
	}
	return func(se SocketEvent) bool {
		return se.Kind != EventPacket || allowed[se.Addr.String()]
	}
}

// TickTransport runs SendPass on a fixed period until ctx is
// canceled, matching the teacher's gameLoop ticker idiom.
func TickTransport(ctx context.Context, t *Transport, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.SendPass(ctx)
		}
	}
}
