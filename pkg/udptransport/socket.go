// Package udptransport is the reference Socket implementation:
// unreliable traffic rides a plain net.UDPConn, reliable traffic rides
// a github.com/xtaci/kcp-go/v5 session per peer, multiplexed by a
// one-byte stream-id header. ReliableSequenced staleness dropping is
// enforced here, per peer+stream, with a monotonic sequence counter.
package udptransport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/xtaci/kcp-go/v5"

	"github.com/opd-ai/replicate/pkg/transport"
)

// reliablePortOffset is the fixed offset between a peer's unreliable
// UDP port and its reliable (kcp) port: the two channels are separate
// sockets so unreliable reads never block behind kcp's congestion
// control, and vice versa.
const reliablePortOffset = 1

// Socket implements transport.Socket over one unreliable net.UDPConn
// and one kcp.Listener (server) or dialed sessions (client).
type Socket struct {
	unreliableConn *net.UDPConn
	isServer       bool

	kcpListener *kcp.Listener

	mu       sync.Mutex
	sessions map[string]*kcp.UDPSession

	seqMu   sync.Mutex
	sendSeq map[string]uint32
	lastSeq map[string]uint32

	events    chan transport.SocketEvent
	done      chan struct{}
	closeOnce sync.Once
}

// ListenServer binds addr (e.g. "0.0.0.0:7777") for unreliable traffic
// and addr's port+1 for reliable (kcp) traffic.
func ListenServer(addr string) (*Socket, error) {
	udpAddr, reliableAddr, err := splitAddr(addr)
	if err != nil {
		return nil, err
	}

	unreliableConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen unreliable: %w", err)
	}

	kcpListener, err := kcp.ListenWithOptions(reliableAddr.String(), nil, 0, 0)
	if err != nil {
		unreliableConn.Close()
		return nil, fmt.Errorf("udptransport: listen reliable: %w", err)
	}

	s := newSocket(unreliableConn, true)
	s.kcpListener = kcpListener

	go s.acceptReliableLoop()
	go s.readUnreliableLoop()
	return s, nil
}

// DialClient binds localAddr for unreliable traffic and dials
// serverAddr's port+1 for the reliable session to that server.
func DialClient(localAddr, serverAddr string) (*Socket, error) {
	localUDPAddr, _, err := splitAddr(localAddr)
	if err != nil {
		return nil, err
	}
	unreliableConn, err := net.ListenUDP("udp", localUDPAddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen unreliable: %w", err)
	}

	_, reliableServerAddr, err := splitAddr(serverAddr)
	if err != nil {
		unreliableConn.Close()
		return nil, err
	}
	session, err := kcp.DialWithOptions(reliableServerAddr.String(), nil, 0, 0)
	if err != nil {
		unreliableConn.Close()
		return nil, fmt.Errorf("udptransport: dial reliable: %w", err)
	}

	s := newSocket(unreliableConn, false)
	s.sessions[session.RemoteAddr().String()] = session

	go s.readUnreliableLoop()
	go s.readReliableSession(session)
	s.events <- transport.SocketEvent{Kind: transport.EventConnect, Addr: session.RemoteAddr()}
	return s, nil
}

func newSocket(conn *net.UDPConn, isServer bool) *Socket {
	return &Socket{
		unreliableConn: conn,
		isServer:       isServer,
		sessions:       make(map[string]*kcp.UDPSession),
		sendSeq:        make(map[string]uint32),
		lastSeq:        make(map[string]uint32),
		events:         make(chan transport.SocketEvent, 256),
		done:           make(chan struct{}),
	}
}

func splitAddr(addr string) (udpAddr, reliableAddr *net.UDPAddr, err error) {
	udpAddr, err = net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("udptransport: resolve %q: %w", addr, err)
	}
	reliableAddr = &net.UDPAddr{IP: udpAddr.IP, Port: udpAddr.Port + reliablePortOffset}
	return udpAddr, reliableAddr, nil
}

// Events implements transport.Socket.
func (s *Socket) Events() <-chan transport.SocketEvent { return s.events }

// Close implements transport.Socket.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.unreliableConn.Close()
		if s.kcpListener != nil {
			s.kcpListener.Close()
		}
		s.mu.Lock()
		for _, sess := range s.sessions {
			sess.Close()
		}
		s.mu.Unlock()
	})
	return nil
}

// Send implements transport.Socket.
func (s *Socket) Send(dest net.Addr, payload []byte, delivery transport.Delivery) error {
	switch delivery.Mode {
	case transport.Unreliable:
		return s.sendUnreliable(dest, delivery.StreamID, payload, false)
	case transport.UnreliableSequenced:
		return s.sendUnreliable(dest, delivery.StreamID, payload, true)
	default:
		return s.sendReliable(dest, delivery.StreamID, payload)
	}
}

func (s *Socket) sendUnreliable(dest net.Addr, streamID byte, payload []byte, sequenced bool) error {
	udpDest, ok := dest.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", dest.String())
		if err != nil {
			return fmt.Errorf("udptransport: resolve destination %q: %w", dest.String(), err)
		}
		udpDest = resolved
	}

	seq := uint32(0)
	if sequenced {
		seq = s.nextSendSeq(dest.String(), streamID)
	}
	frame := encodeDatagramFrame(streamID, seq, payload)
	_, err := s.unreliableConn.WriteToUDP(frame, udpDest)
	return err
}

func (s *Socket) sendReliable(dest net.Addr, streamID byte, payload []byte) error {
	sess, err := s.sessionFor(dest)
	if err != nil {
		return err
	}
	seq := s.nextSendSeq(dest.String(), streamID)
	frame := encodeStreamFrame(streamID, seq, payload)
	_, err = sess.Write(frame)
	return err
}

func (s *Socket) sessionFor(dest net.Addr) (*kcp.UDPSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[dest.String()]; ok {
		return sess, nil
	}
	if s.isServer {
		return nil, fmt.Errorf("udptransport: no reliable session for %s (awaiting client connect)", dest.String())
	}
	udpAddr, reliableAddr, err := splitAddr(dest.String())
	if err != nil {
		return nil, err
	}
	_ = udpAddr
	sess, err := kcp.DialWithOptions(reliableAddr.String(), nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("udptransport: dial reliable session to %s: %w", dest.String(), err)
	}
	s.sessions[dest.String()] = sess
	go s.readReliableSession(sess)
	return sess, nil
}

func (s *Socket) nextSendSeq(peerKey string, streamID byte) uint32 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	key := seqKey(peerKey, streamID)
	s.sendSeq[key]++
	return s.sendSeq[key]
}

// admitSequenced reports whether a frame with seq should be delivered:
// strictly newer than the last delivered frame on that peer+stream.
func (s *Socket) admitSequenced(peerKey string, streamID byte, seq uint32) bool {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	key := seqKey(peerKey, streamID)
	if seq != 0 && seq <= s.lastSeq[key] {
		return false
	}
	s.lastSeq[key] = seq
	return true
}

func seqKey(peerKey string, streamID byte) string {
	return fmt.Sprintf("%s/%d", peerKey, streamID)
}

func (s *Socket) readUnreliableLoop() {
	buf := make([]byte, 65536)
	for {
		n, addr, err := s.unreliableConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				logrus.WithError(err).WithField("system_name", "udptransport").Warn("unreliable read failed")
				return
			}
		}
		streamID, seq, payload, err := decodeDatagramFrame(buf[:n])
		if err != nil {
			logrus.WithError(err).WithField("system_name", "udptransport").Warn("dropping malformed unreliable datagram")
			continue
		}
		if seq != 0 && !s.admitSequenced(addr.String(), streamID, seq) {
			continue
		}
		s.emit(transport.SocketEvent{Kind: transport.EventPacket, Addr: addr, Payload: payload})
	}
}

func (s *Socket) acceptReliableLoop() {
	for {
		sess, err := s.kcpListener.AcceptKCP()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				logrus.WithError(err).WithField("system_name", "udptransport").Warn("reliable accept failed")
				return
			}
		}
		s.mu.Lock()
		s.sessions[sess.RemoteAddr().String()] = sess
		s.mu.Unlock()
		s.emit(transport.SocketEvent{Kind: transport.EventConnect, Addr: sess.RemoteAddr()})
		go s.readReliableSession(sess)
	}
}

func (s *Socket) readReliableSession(sess *kcp.UDPSession) {
	r := bufio.NewReader(sess)
	for {
		streamID, seq, payload, err := decodeStreamFrame(r)
		if err != nil {
			s.mu.Lock()
			delete(s.sessions, sess.RemoteAddr().String())
			s.mu.Unlock()
			if err != io.EOF {
				logrus.WithError(err).WithField("system_name", "udptransport").Warn("reliable session closed")
			}
			s.emit(transport.SocketEvent{Kind: transport.EventTimeout, Addr: sess.RemoteAddr()})
			return
		}
		if seq != 0 && !s.admitSequenced(sess.RemoteAddr().String(), streamID, seq) {
			continue
		}
		s.emit(transport.SocketEvent{Kind: transport.EventPacket, Addr: sess.RemoteAddr(), Payload: payload})
	}
}

func (s *Socket) emit(ev transport.SocketEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// encodeDatagramFrame prefixes payload with [streamID(1)][seq(4 BE)];
// a whole UDP datagram is already message-delimited so no length
// prefix is needed here.
func encodeDatagramFrame(streamID byte, seq uint32, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = streamID
	binary.BigEndian.PutUint32(frame[1:5], seq)
	copy(frame[5:], payload)
	return frame
}

func decodeDatagramFrame(frame []byte) (streamID byte, seq uint32, payload []byte, err error) {
	if len(frame) < 5 {
		return 0, 0, nil, fmt.Errorf("udptransport: datagram frame too short (%d bytes)", len(frame))
	}
	return frame[0], binary.BigEndian.Uint32(frame[1:5]), frame[5:], nil
}

// encodeStreamFrame additionally carries a length prefix: a kcp
// session is a byte stream, so message boundaries must be encoded
// explicitly.
func encodeStreamFrame(streamID byte, seq uint32, payload []byte) []byte {
	frame := make([]byte, 9+len(payload))
	frame[0] = streamID
	binary.BigEndian.PutUint32(frame[1:5], seq)
	binary.BigEndian.PutUint32(frame[5:9], uint32(len(payload)))
	copy(frame[9:], payload)
	return frame
}

func decodeStreamFrame(r *bufio.Reader) (streamID byte, seq uint32, payload []byte, err error) {
	header := make([]byte, 9)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, 0, nil, err
	}
	streamID = header[0]
	seq = binary.BigEndian.Uint32(header[1:5])
	length := binary.BigEndian.Uint32(header[5:9])
	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, err
	}
	return streamID, seq, payload, nil
}
