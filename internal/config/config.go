package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"chat-core/internal/ws"
)

// Config is the process configuration.
type Config struct {
	ServiceName string `toml:"service_name"`
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
	DebugRoutes bool   `toml:"debug_routes"`

	HTTP     HTTPConfig     `toml:"http"`
	GRPC     GRPCConfig     `toml:"grpc"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	AMQP     AMQPConfig     `toml:"amqp"`
	Tracing  TracingConfig  `toml:"tracing"`
	WS       WSConfig       `toml:"ws"`
}

type HTTPConfig struct {
	Port            string   `toml:"port"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Port string `toml:"port"`
}

type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type AMQPConfig struct {
	URL             string `toml:"url"`
	Exchange        string `toml:"exchange"`
	AuditRoutingKey string `toml:"audit_routing_key"`
}

type TracingConfig struct {
	Endpoint string `toml:"endpoint"`
}

// WSConfig carries per-connection websocket limits.
type WSConfig struct {
	SendBuffer      int      `toml:"send_buffer"`
	MaxMessageSize  int64    `toml:"max_message_size"`
	WriteWait       Duration `toml:"write_wait"`
	PongWait        Duration `toml:"pong_wait"`
	RequestTimeout  Duration `toml:"request_timeout"`
	EventsPerSecond float64  `toml:"events_per_second"`
	EventBurst      int      `toml:"event_burst"`
}

// Duration decodes TOML strings such as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	wsDefaults := ws.DefaultSettings()
	return Config{
		ServiceName: "chat-core",
		Environment: "local",
		LogLevel:    "info",
		HTTP:        HTTPConfig{Port: "8083", ShutdownTimeout: Duration{10 * time.Second}},
		GRPC:        GRPCConfig{Port: "9093"},
		AMQP:        AMQPConfig{Exchange: "chat.events", AuditRoutingKey: "audit.chat"},
		WS: WSConfig{
			SendBuffer:      wsDefaults.SendBuffer,
			MaxMessageSize:  wsDefaults.MaxMessageSize,
			WriteWait:       Duration{wsDefaults.WriteWait},
			PongWait:        Duration{wsDefaults.PongWait},
			RequestTimeout:  Duration{wsDefaults.RequestTimeout},
			EventsPerSecond: wsDefaults.EventsPerSecond,
			EventBurst:      wsDefaults.EventBurst,
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by CHAT_CONFIG and environment overrides, in that order. A .env file in
// the working directory is loaded into the environment first.
func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path := os.Getenv("CHAT_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Environment = getEnv("APP_ENV", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	c.GRPC.Port = getEnv("GRPC_PORT", c.GRPC.Port)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.AMQP.URL = getEnv("AMQP_URL", c.AMQP.URL)
	c.AMQP.Exchange = getEnv("AMQP_EXCHANGE", c.AMQP.Exchange)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(envBool("DEBUG_ROUTES", &c.DebugRoutes))
	collect(envInt("WS_SEND_BUFFER", &c.WS.SendBuffer))
	collect(envInt64("WS_MAX_MESSAGE_SIZE", &c.WS.MaxMessageSize))
	collect(envDuration("WS_WRITE_WAIT", &c.WS.WriteWait))
	collect(envDuration("WS_PONG_WAIT", &c.WS.PongWait))
	collect(envDuration("WS_REQUEST_TIMEOUT", &c.WS.RequestTimeout))
	collect(envFloat("WS_EVENTS_PER_SECOND", &c.WS.EventsPerSecond))
	collect(envInt("WS_EVENT_BURST", &c.WS.EventBurst))
	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws send buffer must be positive"))
	}
	if c.WS.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("ws max message size must be positive"))
	}
	if c.WS.WriteWait.Duration <= 0 || c.WS.PongWait.Duration <= 0 || c.WS.RequestTimeout.Duration <= 0 {
		errs = append(errs, errors.New("ws timeouts must be positive"))
	}
	if c.WS.EventsPerSecond <= 0 || c.WS.EventBurst <= 0 {
		errs = append(errs, errors.New("ws rate limit must be positive"))
	}
	return errors.Join(errs...)
}

// WSSettings maps the websocket section onto connection settings.
func (c Config) WSSettings() ws.Settings {
	return ws.Settings{
		SendBuffer:      c.WS.SendBuffer,
		MaxMessageSize:  c.WS.MaxMessageSize,
		WriteWait:       c.WS.WriteWait.Duration,
		PongWait:        c.WS.PongWait.Duration,
		RequestTimeout:  c.WS.RequestTimeout.Duration,
		EventsPerSecond: c.WS.EventsPerSecond,
		EventBurst:      c.WS.EventBurst,
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func envBool(key string, dst *bool) error {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func envInt(key string, dst *int) error {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func envInt64(key string, dst *int64) error {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func envFloat(key string, dst *float64) error {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func envDuration(key string, dst *Duration) error {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	dst.Duration = parsed
	return nil
}
