// Command stormsocket-echo wires pkg/storm together with the reference
// frontends and ambient collaborators into a runnable server: a raw-TCP
// echo acceptor, Prometheus metrics on /metrics, and (when configured)
// Postgres/SQLite audit logging and a NATS event relay. Grounded on the
// teacher's examples/todo-api/cmd/main.go startup shape: flag/env
// resolution, collaborator construction, signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxorio/stormsocket/pkg/audit"
	"github.com/fluxorio/stormsocket/pkg/eventrelay"
	"github.com/fluxorio/stormsocket/pkg/frontend"
	"github.com/fluxorio/stormsocket/pkg/observability"
	"github.com/fluxorio/stormsocket/pkg/storm"
	"github.com/fluxorio/stormsocket/pkg/stormconfig"
	"github.com/fluxorio/stormsocket/pkg/stormlog"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML/JSON settings file (optional; defaults used if empty)")
	listenAddr := flag.String("listen", ":9000", "raw TCP echo acceptor address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus /metrics listen address")
	flag.Parse()

	logger := stormlog.NewDefaultLogger()

	settings := storm.DefaultSettings()
	var fileSettings stormconfig.FileSettings
	if *configPath != "" {
		var s storm.Settings
		var err error
		fileSettings, s, err = stormconfig.LoadBackendSettings(*configPath)
		if err != nil {
			log.Fatalf("stormsocket-echo: loading config: %v", err)
		}
		settings = s
	} else {
		fileSettings = stormconfig.DefaultFileSettings()
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewPrometheusMetrics(registry, fileSettings.MetricsNamespace)

	opts := []storm.BackendOption{
		storm.WithLogger(logger),
		storm.WithMetrics(metrics),
	}

	if sink := buildAuditSink(fileSettings, logger); sink != nil {
		opts = append(opts, storm.WithAuditSink(sink))
		defer closeAuditSink(sink)
	}

	if fileSettings.NATSURL != "" {
		relay, err := eventrelay.NewNATSRelay(eventrelay.Config{URL: fileSettings.NATSURL})
		if err != nil {
			logger.Warnf("stormsocket-echo: event relay disabled, connect failed: %v", err)
		} else {
			opts = append(opts, storm.WithEventRelay(relay))
			defer relay.Close()
		}
	}

	backend := storm.New(settings, opts...)
	defer backend.Close()

	echo := frontend.NewRawFrontend(backend, frontend.EchoHandler)
	if _, err := backend.InitAcceptor(echo, *listenAddr); err != nil {
		log.Fatalf("stormsocket-echo: InitAcceptor(%s): %v", *listenAddr, err)
	}
	logger.Infof("stormsocket-echo: echoing TCP connections on %s", *listenAddr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		logger.Infof("stormsocket-echo: serving metrics on %s", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warnf("stormsocket-echo: metrics server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Infof("stormsocket-echo: shutting down")

	shutdownCtx, cancel := context.WithCancel(context.Background())
	metricsServer.Shutdown(shutdownCtx)
	cancel()
}

func buildAuditSink(fs stormconfig.FileSettings, logger stormlog.Logger) storm.AuditSink {
	switch fs.AuditDriver {
	case "postgres":
		sink, err := audit.NewPostgresSink(context.Background(), fs.AuditDSN)
		if err != nil {
			logger.Warnf("stormsocket-echo: postgres audit sink disabled: %v", err)
			return nil
		}
		if err := sink.EnsureSchema(context.Background()); err != nil {
			logger.Warnf("stormsocket-echo: postgres audit schema setup failed: %v", err)
		}
		return sink
	case "sqlite":
		sink, err := audit.NewSQLiteSink(fs.AuditDSN)
		if err != nil {
			logger.Warnf("stormsocket-echo: sqlite audit sink disabled: %v", err)
			return nil
		}
		if err := sink.EnsureSchema(context.Background()); err != nil {
			logger.Warnf("stormsocket-echo: sqlite audit schema setup failed: %v", err)
		}
		return sink
	default:
		return nil
	}
}

func closeAuditSink(sink storm.AuditSink) {
	switch s := sink.(type) {
	case *audit.PostgresSink:
		s.Close()
	case *audit.SQLiteSink:
		s.Close()
	}
}
