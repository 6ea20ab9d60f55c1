package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentdialog"
	"github.com/hupe1980/agentdialog/config"
	"github.com/hupe1980/agentdialog/logging"
	"github.com/hupe1980/agentdialog/metrics"
	"github.com/hupe1980/agentdialog/push"
)

// app bundles the façade with the optional observer endpoints.
type app struct {
	cfg    *config.Config
	logger *logging.ExperimentLogger
	dialog *agentdialog.Dialog
	hub    *push.Hub
	server *http.Server
	addr   string
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	return cfg, nil
}

// newApp builds the façade. When a listen address is configured it also
// starts an HTTP server exposing Prometheus metrics and the push hub.
func newApp(cmd *cobra.Command, cfg *config.Config) (*app, error) {
	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false).
		WithComponent("cli").
		WithContext("provider", cfg.Provider.Name)

	rt := &app{cfg: cfg, logger: logger}

	var (
		broadcaster push.Broadcaster = push.NoOp{}
		recorder    metrics.Recorder = metrics.NoOpRecorder{}
		reg         *prometheus.Registry
	)
	if cfg.Server.Listen != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorder(reg)
		rt.hub = push.NewHub(func(o *push.HubOptions) { o.Logger = logger.WithComponent("push") })
		broadcaster = rt.hub
	}

	d, err := agentdialog.New(func(o *agentdialog.Options) {
		o.Config = cfg
		o.Logger = logger
		o.Broadcaster = broadcaster
		o.Recorder = recorder
	})
	if err != nil {
		return nil, err
	}
	rt.dialog = d

	if reg != nil {
		if err := rt.serve(reg); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (rt *app) serve(reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", rt.cfg.Server.Listen)
	if err != nil {
		return err
	}
	rt.addr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/ws", rt.hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rt.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := rt.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("observer server stopped", "error", err.Error())
		}
	}()
	rt.logger.Info("observer endpoints listening", "addr", rt.addr)
	return nil
}

func (rt *app) Close() {
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.server.Shutdown(ctx)
	}
	if rt.hub != nil {
		rt.hub.Close()
	}
}
