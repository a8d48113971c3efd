// Command ax25d is a standalone AX.25 v2.2 data-link node: it owns one or
// more KISS serial links, runs the data-link state machine over them, and
// exposes Prometheus metrics for observability. It carries no application
// layer of its own; on every new connection it just echoes inbound data
// back to the peer, which is enough to prove the stack end to end over a
// real TNC or a dev pty.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/vk7xyz/ax25d/dlsm"
	"github.com/vk7xyz/ax25d/pkg/kiss"
	"github.com/vk7xyz/ax25d/pkg/ssid"
)

// tickInterval drives Core.Tick; it must be frequent enough that T1/T2's
// sub-second backoffs are serviced promptly without busy-spinning the
// reactor.
const tickInterval = 200 * time.Millisecond

func main() {
	configPath := pflag.String("config", "", "path to YAML configuration file")
	metricsAddr := pflag.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9100 (overrides config)")
	logLevel := pflag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	devPTY := pflag.Bool("dev-pty", false, "ignore configured ports and open a single dev pty instead")
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ax25d:", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := log.New(os.Stderr)
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	local, err := localAddress(cfg)
	if err != nil {
		logger.Fatal("invalid node identity", "err", err)
	}

	links, err := openLinks(cfg, *devPTY, logger)
	if err != nil {
		logger.Fatal("failed to open serial links", "err", err)
	}
	defer func() {
		for _, l := range links {
			l.Close()
		}
	}()

	platform := newRealtimePlatform(links)
	core := dlsm.New(cfg.dlsmConfig(), platform, logger)

	if cfg.MetricsAddr != "" {
		serveMetrics(cfg.MetricsAddr, core, logger)
	}

	for _, l := range links {
		port := kiss.PortFor(0, l.index)
		if _, err := core.Listen(port, local, echoCallbacks(core, logger)); err != nil {
			logger.Fatal("listen failed", "port", port, "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*devPTY {
		devices := make([]string, len(cfg.Ports))
		for i, pc := range cfg.Ports {
			devices[i] = pc.Device
		}
		go watchSerialHotplug(ctx, devices, logger)
	}

	runReactor(ctx, core, links, logger)
}

// localAddress resolves the node's default SSID from the configured
// callsign, defaulting to NOCALL-0 so the binary still starts (producing
// useless but harmless traffic) when misconfigured.
func localAddress(cfg Config) (ssid.Address, error) {
	callsign := cfg.Callsign
	if callsign == "" {
		callsign = "NOCALL-0"
	}
	return ssid.Parse(callsign)
}

// echoCallbacks builds the connection-level callback set every accepted
// connection gets: log the lifecycle, and bounce inbound data straight
// back to the peer.
func echoCallbacks(core *dlsm.Core, logger *log.Logger) dlsm.Callbacks {
	return dlsm.Callbacks{
		OnConnect: func(c *dlsm.Connection) {
			logger.Info("connected", "conn", c.ID, "local", c.Local, "remote", c.Remote)
			c.Socket.Callbacks.OnData = func(conn *dlsm.Connection, info []byte) {
				logger.Debug("data", "conn", conn.ID, "bytes", len(info))
				core.Send(conn, info)
			}
		},
		OnDisconnect: func(c *dlsm.Connection, err error) {
			logger.Info("disconnected", "conn", c.ID, "err", err)
		},
		OnError: func(c *dlsm.Connection, e dlsm.DLError) {
			logger.Warn("data-link error", "conn", c.ID, "code", string(e.Code), "message", e.Error())
		},
	}
}

func serveMetrics(addr string, core *dlsm.Core, logger *log.Logger) {
	reg := prometheus.NewRegistry()
	core.Metrics().Register(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
}
