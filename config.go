package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config holds runtime settings. Every flag defaults to an environment
// variable, optionally read from .env.
type Config struct {
	Port            int
	StaticDir       string
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
	LogFormat       string

	GatewayURL     string
	RequestTimeout time.Duration
	FleetInterval  time.Duration
	EventsInterval time.Duration
	EventsPage     int
	EventsLimit    int
	MergePolicy    MergePolicy

	RedisAddr string
	RedisKey  string
	RedisTTL  time.Duration

	NatsURL      string
	NatsSubject  string
	NatsUser     string
	NatsPassword string

	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	SinkTimeout time.Duration
}

// LoadConfig parses args (without the program name) on top of the
// environment.
func LoadConfig(args []string) (Config, error) {
	_ = godotenv.Load() // ignore missing file

	var cfg Config
	var env envDefaults
	var policy, level string
	fs := pflag.NewFlagSet("fleetview", pflag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", env.intVal("PORT", 8080), "HTTP port")
	fs.StringVar(&cfg.StaticDir, "static-dir", envString("STATIC_DIR", "./static"), "directory served at /")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", env.durationVal("SHUTDOWN_TIMEOUT", 10*time.Second), "HTTP server shutdown timeout")
	fs.StringVar(&level, "log-level", envString("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", envString("LOG_FORMAT", "json"), "log format: json or text")

	fs.StringVar(&cfg.GatewayURL, "gateway-url", envString("GATEWAY_URL", "http://localhost"), "base URL routing /lt and /cd to the backend services")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", env.durationVal("REQUEST_TIMEOUT", 10*time.Second), "per-request timeout, 0 disables")
	fs.DurationVar(&cfg.FleetInterval, "fleet-interval", env.durationVal("FLEET_INTERVAL", 500*time.Millisecond), "delay between position/detail ticks")
	fs.DurationVar(&cfg.EventsInterval, "events-interval", env.durationVal("EVENTS_INTERVAL", 5*time.Second), "delay between event log ticks")
	fs.IntVar(&cfg.EventsPage, "events-page", env.intVal("EVENTS_PAGE", 1), "event log page to display")
	fs.IntVar(&cfg.EventsLimit, "events-limit", env.intVal("EVENTS_LIMIT", 100), "events per page")
	fs.StringVar(&policy, "merge-policy", envString("MERGE_POLICY", string(MergeAtomic)), "atomic or partial")

	fs.StringVar(&cfg.RedisAddr, "redis-addr", envString("REDIS_ADDR", ""), "Redis address for the snapshot cache, empty disables")
	fs.StringVar(&cfg.RedisKey, "redis-key", envString("REDIS_KEY", "fleetview:snapshots"), "Redis key of the snapshot cache")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", env.durationVal("REDIS_TTL", time.Hour), "snapshot cache TTL")

	fs.StringVar(&cfg.NatsURL, "nats-url", envString("NATS_URL", ""), "NATS URL for tick publishing, empty disables")
	fs.StringVar(&cfg.NatsSubject, "nats-subject", envString("NATS_SUBJECT", "fleet.snapshots"), "NATS subject")
	fs.StringVar(&cfg.NatsUser, "nats-user", envString("NATS_USER", ""), "NATS user")
	fs.StringVar(&cfg.NatsPassword, "nats-password", envString("NATS_PASSWORD", ""), "NATS password")

	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", envString("MQTT_BROKER", ""), "MQTT broker for tick publishing, empty disables")
	fs.StringVar(&cfg.MQTTClientID, "mqtt-client-id", envString("MQTT_CLIENT_ID", "fleetview"), "MQTT client id")
	fs.StringVar(&cfg.MQTTTopic, "mqtt-topic", envString("MQTT_TOPIC", "fleet/snapshots"), "MQTT topic")

	fs.DurationVar(&cfg.SinkTimeout, "sink-timeout", env.durationVal("SINK_TIMEOUT", 2*time.Second), "timeout for cache and publisher calls")

	if err := errors.Join(env.errs...); err != nil {
		return cfg, err
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	var err error
	if cfg.MergePolicy, err = ParseMergePolicy(policy); err != nil {
		return cfg, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return cfg, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port: %d", c.Port)
	case c.GatewayURL == "":
		return fmt.Errorf("gateway url is required")
	case c.FleetInterval <= 0:
		return fmt.Errorf("fleet interval must be positive, got %s", c.FleetInterval)
	case c.EventsInterval <= 0:
		return fmt.Errorf("events interval must be positive, got %s", c.EventsInterval)
	case c.RequestTimeout < 0:
		return fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout)
	case c.EventsPage < 1:
		return fmt.Errorf("events page must be at least 1, got %d", c.EventsPage)
	case c.EventsLimit < 1:
		return fmt.Errorf("events limit must be at least 1, got %d", c.EventsLimit)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	return nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

// envDefaults reads typed flag defaults from the environment and keeps
// the parse errors so LoadConfig can report them.
type envDefaults struct {
	errs []error
}

func (e *envDefaults) intVal(key string, fallback int) int {
	v := envString(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %s", key, v))
		return fallback
	}
	return n
}

func (e *envDefaults) durationVal(key string, fallback time.Duration) time.Duration {
	v := envString(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return d
}
