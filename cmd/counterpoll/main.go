// cmd/counterpoll/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/counterpoll/internal/config"
	"github.com/tamzrod/counterpoll/internal/poller"
	"github.com/tamzrod/counterpoll/internal/poller/modbus/tcp"
	"github.com/tamzrod/counterpoll/internal/rate"
	"github.com/tamzrod/counterpoll/internal/status"
	"github.com/tamzrod/counterpoll/internal/writer"
)

func main() {
	once := flag.Bool("once", false, "poll every channel once, print the results and exit")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: counterpoll [-once] <config.yaml>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	// bootstrap logger until the config says otherwise
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	log = newLogger(cfg.Log)

	// --------------------
	// Metrics
	// --------------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := poller.NewMetrics(reg)

	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" && !*once {
		metricsSrv = serveMetrics(cfg.Metrics.Listen, reg, log)
	}

	// --------------------
	// Writers
	// --------------------

	writers := []writer.Writer{
		writer.NewLogWriter(log, writer.LogOptions{OverflowThreshold: cfg.Counters.OverflowThreshold}),
	}

	var disconnectMQTT func()
	if cfg.MQTT.Enabled() {
		client, err := writer.DialMQTT(cfg.MQTT, log)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect failed")
		}
		disconnectMQTT = func() { client.Disconnect(uint(cfg.MQTT.PublishTimeoutMs)) }

		writers = append(writers, writer.NewMQTTWriter(client, writer.MQTTOptions{
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			PublishTimeout: cfg.MQTT.PublishTimeout(),
			QoS:            1,
		}))
	}

	out := writer.Multi(writers...)
	window := rate.NewWindow(cfg.Counters.RateWindow())

	// --------------------
	// Poller
	// --------------------

	targets, closeSessions, err := poller.Build(cfg, tcp.New(log), log)
	if err != nil {
		log.Fatal().Err(err).Msg("poller build failed")
	}

	labels := make([]string, 0, len(targets))
	for _, t := range targets {
		labels = append(labels, t.Endpoint.Label)
	}

	events := make(chan poller.Event, 64)
	p := poller.New(events,
		poller.WithTimeout(cfg.Poll.Timeout()),
		poller.WithLogger(log),
		poller.WithMetrics(metrics),
	)

	code := 0
	if *once {
		code = runOnce(p, targets, events, out, window, log)
	} else {
		runDaemon(p, targets, cfg, events, out, window, status.NewTracker(labels...), log)
	}

	// --------------------
	// Shutdown
	// --------------------

	if err := closeSessions(); err != nil {
		log.Warn().Err(err).Msg("session close failed")
	}
	if disconnectMQTT != nil {
		disconnectMQTT()
	}
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = metricsSrv.Shutdown(ctx)
		cancel()
	}

	os.Exit(code)
}

// runOnce polls a single cycle and writes its events.
// It returns 1 when every read failed.
func runOnce(p *poller.Poller, targets []poller.Target, events chan poller.Event, out writer.Writer, window *rate.Window, log zerolog.Logger) int {
	done := make(chan error, 1)
	go func() {
		done <- p.Once(context.Background(), targets)
		close(events)
	}()

	var ok, failed int
	for ev := range events {
		if ev.Kind == poller.EventReadFailure {
			failed++
		} else {
			ok++
		}
		if err := out.Write(writer.NewRecord(ev, window)); err != nil {
			log.Warn().Err(err).Msg("writer error")
		}
	}

	if err := <-done; err != nil {
		log.Error().Err(err).Msg("poll failed")
		return 1
	}

	log.Info().Int("ok", ok).Int("failed", failed).Msg("single poll finished")
	if ok == 0 {
		return 1
	}
	return 0
}

// runDaemon polls until SIGINT/SIGTERM.
func runDaemon(
	p *poller.Poller,
	targets []poller.Target,
	cfg *config.Config,
	events chan poller.Event,
	out *writer.MultiWriter,
	window *rate.Window,
	tracker *status.Tracker,
	log zerolog.Logger,
) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Orchestrator (runner-owned state + 1Hz seconds ticker)
	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)

		secTicker := time.NewTicker(time.Second)
		defer secTicker.Stop()

		// Full status assert on start.
		for _, label := range tracker.Labels() {
			snap, _ := tracker.Snapshot(label)
			if err := out.WriteStatus(label, snap); err != nil {
				log.Warn().Err(err).Str("device", label).Msg("status write failed on start")
			}
		}

		for {
			select {
			case ev, open := <-events:
				if !open {
					return
				}

				// --- data delivery ---
				if err := out.Write(writer.NewRecord(ev, window)); err != nil {
					log.Warn().Err(err).Str("device", ev.Device).Msg("writer error")
				}

				// --- status update (device-level truth) ---
				if snap, changed := tracker.Observe(ev); changed {
					if err := out.WriteStatus(ev.Device, snap); err != nil {
						log.Warn().Err(err).Str("device", ev.Device).Msg("status write failed")
					}
				}

			case <-secTicker.C:
				for _, label := range tracker.Tick() {
					snap, _ := tracker.Snapshot(label)
					if err := out.WriteStatus(label, snap); err != nil {
						log.Warn().Err(err).Str("device", label).Msg("status seconds tick write failed")
					}
				}
			}
		}
	}()

	if err := p.Start(targets, cfg.Poll.Interval()); err != nil {
		log.Fatal().Err(err).Msg("poller start failed")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Stop waits for the in-flight cycle, which needs the orchestrator draining events.
	if err := p.Stop(); err != nil {
		log.Warn().Err(err).Msg("poller stop failed")
	}
	close(events)
	<-orchestratorDone
}

func newLogger(c config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if c.Format == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return l.Level(level).With().Timestamp().Logger()
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("listen", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("listen", addr).Msg("metrics enabled")
	return srv
}
