package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shadowmesh/netcore/pkg/connection"
	"github.com/shadowmesh/netcore/pkg/dispatcher"
	"github.com/shadowmesh/netcore/pkg/hub"
	"github.com/shadowmesh/netcore/pkg/netconfig"
	"github.com/shadowmesh/netcore/pkg/netframe"
	"github.com/shadowmesh/netcore/pkg/netlog"
	"github.com/shadowmesh/netcore/pkg/packet"
	"github.com/shadowmesh/netcore/pkg/ratelimit"
)

// echoOpcode is the opcode the demo handler registered below answers.
// Real deployments register their own descriptors before serving;
// this one only exists so a freshly generated config is exercisable with
// nothing more than netcat and a hand-built frame.
const echoOpcode uint16 = 0x0001

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := netconfig.LoadOrCreateConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *netconfig.Config) error {
	printBanner()

	log := netlog.NewStdLogger(parseLevel(cfg.Logging.Level), logOutput(cfg.Logging.OutputFile)).
		WithComponent("netcored")

	h := hub.New(log.WithComponent("hub"))

	limiter := ratelimit.New(time.Duration(cfg.RateLimit.IdleEvictSeconds) * time.Second)
	d := dispatcher.New(log.WithComponent("dispatcher"), limiter, nil, nil)
	registerDemoHandlers(d)

	listener, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.ListenAddr, err)
	}
	log.Info("listening", netlog.Fields{"addr": cfg.Server.ListenAddr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acceptErrCh := make(chan error, 1)
	go acceptLoop(ctx, listener, cfg, log, h, d, acceptErrCh)

	stopStats := startStatsReporter(h, log)
	defer stopStats()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal", netlog.Fields{"signal": sig.String()})
	case err := <-acceptErrCh:
		log.Error("accept loop exited", netlog.Fields{"err": err.Error()})
	}

	log.Info("shutting down", nil)
	cancel()
	_ = listener.Close()
	h.Dispose()
	log.Info("shutdown complete", nil)

	return nil
}

func acceptLoop(ctx context.Context, listener net.Listener, cfg *netconfig.Config, log netlog.Logger, h *hub.Hub, d *dispatcher.Dispatcher, errCh chan<- error) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			errCh <- err
			return
		}

		go handleSocket(ctx, conn, cfg, log, h, d)
	}
}

func handleSocket(ctx context.Context, socket net.Conn, cfg *netconfig.Config, log netlog.Logger, h *hub.Hub, d *dispatcher.Dispatcher) {
	channel := netframe.New(socket, netframe.Options{
		MaxFrameSize:  uint32(cfg.Limits.MaxFrameSize),
		QueueCapacity: cfg.Limits.IncomingQueueSize,
	})

	conn, err := connection.New(channel)
	if err != nil {
		log.Error("failed to construct connection", netlog.Fields{"err": err.Error()})
		_ = socket.Close()
		return
	}

	if !h.Register(conn) {
		log.Warn("duplicate connection id rejected", netlog.Fields{"id": conn.ID().String()})
		conn.Close(true)
		return
	}

	conn.OnProcess(func(frame *netframe.Frame) {
		d.Dispatch(ctx, frame, conn)
	})

	log.Debug("connection accepted", netlog.Fields{
		"id":         conn.ID().String(),
		"remoteAddr": socket.RemoteAddr().String(),
	})

	conn.Run()
}

// registerDemoHandlers wires echoOpcode to an unauthenticated echo that
// mirrors the inbound body back as-is.
func registerDemoHandlers(d *dispatcher.Dispatcher) {
	_ = d.Register(dispatcher.Descriptor{
		Opcode:     echoOpcode,
		ReturnKind: dispatcher.ReturnBytes,
		Permission: connection.PermissionNone,
		Encryption: dispatcher.EncryptionAny,
		Handler: func(ctx context.Context, pkt packet.Packet, conn *connection.Connection) (any, error) {
			reply := packet.Encode(packet.Packet{
				Opcode:     pkt.Opcode,
				SequenceId: pkt.SequenceId,
				Body:       pkt.Body,
			})
			return reply, nil
		},
	})
}

func startStatsReporter(h *hub.Hub, log netlog.Logger) func() {
	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				log.Info("stats", netlog.Fields{"connections": h.Count()})
			}
		}
	}()

	return func() { close(stopCh) }
}

func parseLevel(level string) netlog.Level {
	switch level {
	case "debug":
		return netlog.Debug
	case "warn":
		return netlog.Warn
	case "error":
		return netlog.Error
	default:
		return netlog.Info
	}
}

func logOutput(path string) *os.File {
	if path == "" {
		return os.Stdout
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netcored: failed to open log file %s: %v, falling back to stdout\n", path, err)
		return os.Stdout
	}
	return f
}
