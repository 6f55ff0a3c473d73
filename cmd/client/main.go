package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/replicate/pkg/applier"
	"github.com/opd-ai/replicate/pkg/client"
	"github.com/opd-ai/replicate/pkg/config"
	"github.com/opd-ai/replicate/pkg/engine"
	"github.com/opd-ai/replicate/pkg/transport"
	"github.com/opd-ai/replicate/pkg/udptransport"
	"github.com/opd-ai/replicate/pkg/wire"
)

// Component ids for the client-side world. Must agree with
// cmd/server's assignment: NetId, Position, Color.
const (
	componentNetID engine.ComponentID = iota
	componentPosition
	componentColor
)

var (
	logLevel  = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	localAddr = flag.String("local-addr", "127.0.0.1:0", "local address to bind the unreliable socket to")
)

func main() {
	flag.Parse()

	if err := config.Load(); err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.WithFields(logrus.Fields{
		"server_addr": config.C.ServerAddr,
	}).Info("starting replication client")

	world := engine.NewWorld()
	netIDMap := client.NewNetIDMap()
	app := applier.New(componentPosition, componentColor)

	sock, err := udptransport.DialClient(*localAddr, config.C.ServerAddr)
	if err != nil {
		logrus.WithError(err).Fatal("failed to dial server")
	}

	tr := transport.New(sock, config.C.SendRateLimit, 256)
	tr.SetFilter(transport.ServerFilter(serverAddresses(config.C.ServerAddr)...))

	receiver := client.NewReceiver(tr.Events(), config.C.SnapshotCacheSize, config.C.JitterMinFill)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tr.RunReceive(ctx)
	go transport.TickTransport(ctx, tr, config.C.TickPeriod)
	go receiver.Run(ctx)
	go runAckLoop(ctx, tr, &receiver.Ack, config.C.TickPeriod)
	go runApplyLoop(ctx, receiver, world, netIDMap, app, config.C.TickPeriod)

	logrus.Info("client started, connected to server")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logrus.Info("shutdown signal received, stopping client")
	cancel()
	if err := sock.Close(); err != nil {
		logrus.WithError(err).Error("error closing socket")
	}
	logrus.Info("client stopped")
}

// runApplyLoop drains the jitter buffer at a fixed period and applies
// each released snapshot to the local world, per spec.md §4.9's
// render-side consumption of the buffer.
func runApplyLoop(ctx context.Context, r *client.Receiver, world *engine.World, netIDMap *client.NetIDMap, app *applier.Applier, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, ok := r.Jitter.Pop()
			if !ok {
				continue
			}
			app.ApplyTo(world, netIDMap, snap)
			logrus.WithFields(logrus.Fields{
				"frame":    snap.Frame,
				"entities": len(snap.EntitiesID),
			}).Debug("applied snapshot")
		}
	}
}

// runAckLoop periodically reports the client's last-received frame
// back to the server as a NetworkClientState, per spec.md §4.8.
func runAckLoop(ctx context.Context, tr *transport.Transport, ack *client.AckState, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := wire.EncodeClientState(wire.NetworkClientState{Ack: ack.LastFrame()})
			if err != nil {
				logrus.WithError(err).Warn("failed to encode client ack")
				continue
			}
			for _, dest := range tr.Clients().Snapshot() {
				tr.Enqueue(transport.Message{
					Destinations: []net.Addr{dest},
					Payload:      payload,
					Delivery:     transport.Delivery{Mode: transport.Unreliable},
				})
			}
		}
	}
}

// serverAddresses resolves both halves of a udptransport server
// address: the unreliable base port and the reliable (kcp) port+1 a
// packet may legitimately arrive from.
func serverAddresses(addr string) []net.Addr {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		logrus.WithError(err).WithField("addr", addr).Fatal("invalid server address")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logrus.WithError(err).WithField("addr", addr).Fatal("invalid server port")
	}
	base, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		logrus.WithError(err).WithField("addr", addr).Fatal("failed to resolve server address")
	}
	reliable, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port+1))
	if err != nil {
		logrus.WithError(err).WithField("addr", addr).Fatal("failed to resolve server reliable address")
	}
	return []net.Addr{base, reliable}
}
