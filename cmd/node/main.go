package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chordring/internal/bootstrap"
	"chordring/internal/bootstrap/register"
	"chordring/internal/client"
	"chordring/internal/config"
	"chordring/internal/domain"
	"chordring/internal/logger"
	zapfactory "chordring/internal/logger/zap"
	"chordring/internal/node"
	"chordring/internal/routingtable"
	"chordring/internal/server"
	"chordring/internal/telemetry"
)

var defaultConfigPath = "config/node/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.ValidateConfig(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = &logger.NopLogger{}
	}
	cfg.LogConfig(lgr)

	lis, advertised, err := cfg.Listen()
	if err != nil {
		lgr.Error("failed to initialize listener", logger.F("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = lis.Close() }()
	lgr.Debug("created listener", logger.F("advertised_addr", advertised))

	space, err := domain.NewSpace(cfg.DHT.IDBits, cfg.DHT.SuccessorListSize)
	if err != nil {
		lgr.Error("failed to initialize identifier space", logger.F("err", err.Error()))
		os.Exit(1)
	}

	host, portStr, err := splitAdvertised(advertised)
	if err != nil {
		lgr.Error("failed to parse advertised address", logger.F("err", err.Error()))
		os.Exit(1)
	}
	port, err := parsePort(portStr)
	if err != nil {
		lgr.Error("invalid advertised port", logger.F("err", err.Error()))
		os.Exit(1)
	}

	self := domain.NewNodeRef(space, host, port)
	if cfg.Node.Id != "" {
		id, err := space.FromHexString(cfg.Node.Id)
		if err != nil {
			lgr.Error("invalid node id in configuration", logger.F("err", err.Error()))
			os.Exit(1)
		}
		self.ID = id
	}
	lgr = lgr.Named("node").With(logger.FNode("self", self))
	lgr.Info("node starting")

	shutdownTracer := telemetry.InitTracer(cfg.Telemetry, "chordring-node", self.ID)
	defer func() { _ = shutdownTracer(context.Background()) }()

	rt := routingtable.New(self, space, cfg.DHT.SuccessorListSize, routingtable.WithLogger(lgr.Named("routingtable")))

	cp := client.New(space, cfg.DHT.RPCTimeout, client.WithLogger(lgr.Named("clientpool")))
	defer cp.Close()

	n := node.New(rt, cp, cfg.DHT.RPCTimeout, node.WithLogger(lgr))

	srv, err := server.New(lis, n, server.WithLogger(lgr.Named("server")))
	if err != nil {
		lgr.Error("failed to initialize server", logger.F("err", err.Error()))
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()
	lgr.Debug("server started")

	peers, err := bootstrap.ResolveBootstrap(cfg.DHT.Bootstrap, lgr.Named("bootstrap"))
	if err != nil {
		lgr.Error("failed to resolve bootstrap peers", logger.F("err", err.Error()))
		srv.Stop()
		os.Exit(1)
	}

	if len(peers) == 0 {
		lgr.Info("no seed resolved, starting solo ring")
	} else {
		seedHost, seedPortStr, err := splitAdvertised(peers[0])
		if err != nil {
			lgr.Error("invalid seed address", logger.F("seed", peers[0]), logger.F("err", err.Error()))
			srv.Stop()
			os.Exit(1)
		}
		seedPort, err := parsePort(seedPortStr)
		if err != nil {
			lgr.Error("invalid seed port", logger.F("seed", peers[0]), logger.F("err", err.Error()))
			srv.Stop()
			os.Exit(1)
		}
		seed := domain.NewNodeRef(space, seedHost, seedPort)

		joinCtx, joinCancel := context.WithTimeout(context.Background(), 10*time.Second)
		ok := n.Join(joinCtx, seed)
		joinCancel()
		if !ok {
			lgr.Warn("failed to join seed, starting solo ring instead", logger.FNode("seed", seed))
		} else {
			lgr.Info("joined ring", logger.FNode("seed", seed))
		}
	}

	var registrar register.Registrar
	registered := false
	if cfg.DHT.Bootstrap.Register.Enabled {
		regCtx, regCancel := context.WithTimeout(context.Background(), 10*time.Second)
		registrar, err = register.NewRegistrar(regCtx, cfg.DHT.Bootstrap.Register)
		regCancel()
		if err != nil {
			lgr.Error("failed to initialize registrar", logger.F("err", err.Error()))
		} else {
			regCtx, regCancel := context.WithTimeout(context.Background(), 10*time.Second)
			err = registrar.RegisterNode(regCtx, self.ID.ToHexString(false), host, port)
			regCancel()
			if err != nil {
				lgr.Warn("failed to self-register", logger.F("err", err.Error()))
			} else {
				registered = true
				lgr.Info("self-registered for discovery")
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	if registered {
		go renewRegistration(ctx, registrar, cfg.DHT.Bootstrap.Register.TTL, self.ID.ToHexString(false), host, port, lgr.Named("register"))
	}

	n.Start(ctx, node.StabilizerIntervals{
		UpdateFingerTable:     cfg.DHT.Stabilizer.UpdateFingerTable,
		StabilizePredecessors: cfg.DHT.Stabilizer.StabilizePredecessors,
		StabilizeSuccessors:   cfg.DHT.Stabilizer.StabilizeSuccessors,
		ReJoin:                cfg.DHT.Stabilizer.ReJoin,
	})
	lgr.Debug("stabilizer tasks started")

	select {
	case <-ctx.Done():
		lgr.Info("shutdown signal received, stopping gracefully")
		stop()

		if registrar != nil {
			deregCtx, deregCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := registrar.DeregisterNode(deregCtx, self.ID.ToHexString(false), host, port); err != nil {
				lgr.Warn("failed to deregister node", logger.F("err", err.Error()))
			}
			deregCancel()
			_ = registrar.Close()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.GracefulStop(shutdownCtx); err != nil {
			lgr.Warn("graceful stop timed out, forcing shutdown", logger.F("err", err.Error()))
			srv.Stop()
		}

		n.Stop()
		lgr.Info("shutdown complete")

	case err := <-serveErr:
		lgr.Error("server terminated unexpectedly", logger.F("err", err.Error()))
		stop()
		n.Stop()
		os.Exit(1)
	}
}

// renewRegistration keeps this node's discovery record alive on a ticker
// until ctx is cancelled, at a third of its TTL so a single missed renewal
// doesn't let the record expire. A non-positive TTL disables renewal.
func renewRegistration(ctx context.Context, registrar register.Registrar, ttlSeconds int64, nodeID, host string, port int, lgr logger.Logger) {
	if ttlSeconds <= 0 {
		return
	}
	interval := time.Duration(ttlSeconds) * time.Second / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := registrar.RenewNode(renewCtx, nodeID, host, port)
			cancel()
			if err != nil {
				lgr.Warn("failed to renew registration", logger.F("err", err.Error()))
			}
		}
	}
}

func splitAdvertised(addr string) (host, port string, err error) {
	return net.SplitHostPort(addr)
}

func parsePort(s string) (int, error) {
	return strconv.Atoi(s)
}
