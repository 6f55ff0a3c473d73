package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/replicate/pkg/components"
	"github.com/opd-ai/replicate/pkg/config"
	"github.com/opd-ai/replicate/pkg/controller"
	"github.com/opd-ai/replicate/pkg/engine"
	"github.com/opd-ai/replicate/pkg/metrics"
	"github.com/opd-ai/replicate/pkg/netid"
	"github.com/opd-ai/replicate/pkg/replicator"
	"github.com/opd-ai/replicate/pkg/transport"
	"github.com/opd-ai/replicate/pkg/udptransport"
)

// Component ids for the reference server's demo world. A real
// deployment would register these through whatever component
// registry the game defines; the reference binary only ever
// replicates NetId, Position, and Color, the same field set the
// generated packet schema covers.
const (
	componentNetID engine.ComponentID = iota
	componentPosition
	componentColor
)

var logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")

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
		"bind_addr":          config.C.BindAddr,
		"snapshot_frequency": config.C.SnapshotFrequency,
		"tick_period":        config.C.TickPeriod,
	}).Info("starting replication server")

	world := engine.NewWorld()
	seedDemoEntities(world)

	repl := replicator.New(world, componentNetID, componentPosition, componentColor)

	sock, err := udptransport.ListenServer(config.C.BindAddr)
	if err != nil {
		logrus.WithError(err).Fatal("failed to bind udp transport")
	}

	tr := transport.New(sock, config.C.SendRateLimit, 256)

	m := metrics.New()
	tr.SetMetrics(m)
	if config.C.MetricsAddr != "" {
		serveMetrics(config.C.MetricsAddr)
	}

	srv := controller.NewServer(uint32(config.C.SnapshotFrequency), repl, tr)
	srv.Metrics = m
	if config.C.CompressSnapshots {
		srv.CompressThresholdBytes = config.C.CompressThresholdBytes
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tr.RunReceive(ctx)
	go transport.TickTransport(ctx, tr, config.C.TickPeriod)
	go runSimulation(ctx, srv, world, config.C.TickPeriod)

	logrus.Info("server started, waiting for connections")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logrus.Info("shutdown signal received, stopping server")
	cancel()
	if err := sock.Close(); err != nil {
		logrus.WithError(err).Error("error closing socket")
	}
	logrus.Info("server stopped")
}

// seedDemoEntities populates the world with a handful of networked
// entities so the replication pipeline has visible content to
// broadcast, mirroring the small fixed demo set the Rust original's
// shared.rs Position/Color pair describes.
func seedDemoEntities(world *engine.World) {
	alloc := netid.NewAllocator()
	seedPositions := []components.Position{
		{X: 0, Y: 0},
		{X: 10, Y: 0},
		{X: 0, Y: 10},
		{X: -10, Y: -10},
	}
	seedColors := []components.Color{
		{R: 255, G: 0, B: 0, A: 255},
		{R: 0, G: 255, B: 0, A: 255},
		{R: 0, G: 0, B: 255, A: 255},
		{R: 255, G: 255, B: 0, A: 255},
	}
	for i := range seedPositions {
		e := world.CreateEntity()
		world.Attach(e, componentNetID, alloc.Next())
		world.Attach(e, componentPosition, seedPositions[i])
		world.Attach(e, componentColor, seedColors[i])
	}
}

// runSimulation drives the demo entities' positions and the
// controller's snapshot/delta tick in lockstep, so each tick has
// something to replicate. A real game loop would run its own systems
// here instead of moveDemoEntities.
func runSimulation(ctx context.Context, srv *controller.Server, world *engine.World, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			moveDemoEntities(world)
			if err := srv.RunTick(world); err != nil {
				logrus.WithError(err).Warn("tick failed")
			}
		}
	}
}

// moveDemoEntities nudges every entity carrying a Position one step along the
// x axis, wrapping at +/-50, giving the reference server continuous
// motion to replicate without depending on any external input source.
func moveDemoEntities(world *engine.World) {
	it := world.Query(componentPosition)
	for it.Next() {
		e := it.Entity()
		c, ok := world.Get(e, componentPosition)
		if !ok {
			continue
		}
		pos := c.(components.Position)
		pos.X++
		if pos.X > 50 {
			pos.X = -50
		}
		world.Set(e, componentPosition, pos)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	logrus.WithField("metrics_addr", addr).Info("serving prometheus metrics")
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("metrics server failed")
		}
	}()
}
