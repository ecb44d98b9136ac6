package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fleetview: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dash := NewDashboard(log, cfg.MergePolicy, time.Now)
	hub := newHub(log, dash)

	closeSinks := wireSinks(ctx, cfg, log, dash)
	defer closeSinks()

	fetcher := NewFetcher(cfg.GatewayURL, cfg.RequestTimeout)
	sched := newScheduler(log)
	err = sched.Start(ctx,
		fleetFeed(fetcher, dash, cfg.FleetInterval),
		eventFeed(fetcher, dash, cfg.EventsInterval, cfg.EventsPage, cfg.EventsLimit),
	)
	if err != nil {
		return err
	}
	defer sched.Stop()
	log.Info("polling started",
		"gateway", cfg.GatewayURL,
		"fleet_interval", cfg.FleetInterval,
		"events_interval", cfg.EventsInterval,
		"merge_policy", cfg.MergePolicy)

	srv := newServer(cfg, log, dash, hub)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info("shut down")
	return nil
}

func newLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// wireSinks connects the optional cache and publishers. Each one that
// fails to connect is logged and left out; the dashboard runs without it.
func wireSinks(ctx context.Context, cfg Config, log *slog.Logger, dash *Dashboard) func() {
	var closers []func()

	if cfg.RedisAddr != "" {
		cctx, cancel := context.WithTimeout(ctx, cfg.SinkTimeout)
		cache, err := newRedisCache(cctx, cfg.RedisAddr, cfg.RedisKey, cfg.RedisTTL)
		if err != nil {
			log.Warn("snapshot cache disabled", "err", err)
		} else {
			seedFromCache(cctx, log, cache, dash)
			dash.OnFleet(cacheOnFleet(log, cache, cfg.SinkTimeout))
			closers = append(closers, func() { _ = cache.Close() })
		}
		cancel()
	}

	var pubs []Publisher
	if cfg.NatsURL != "" {
		p, err := newNatsPublisher(log, cfg.NatsURL, cfg.NatsSubject, cfg.NatsUser, cfg.NatsPassword)
		if err != nil {
			log.Warn("NATS publisher disabled", "err", err)
		} else {
			pubs = append(pubs, p)
		}
	}
	if cfg.MQTTBroker != "" {
		p, err := newMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, cfg.SinkTimeout)
		if err != nil {
			log.Warn("MQTT publisher disabled", "err", err)
		} else {
			pubs = append(pubs, p)
		}
	}
	if len(pubs) > 0 {
		dash.OnFleet(publishOnFleet(log, pubs, cfg.SinkTimeout, time.Now))
		for _, p := range pubs {
			closers = append(closers, p.Close)
		}
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}
}
