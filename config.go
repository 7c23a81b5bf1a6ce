package spineweb

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spineio/spineweb.go/internal/codec"
	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/logger"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "SPINEWEB"

// Configuration keys. Environment variables use the upper-cased key with
// dashes replaced by underscores, e.g. SPINEWEB_ENDPOINT_URL.
const (
	KeyEndpointURL       = "endpoint-url"
	KeyPushStoreURL      = "push-store-url"
	KeyPushStoreRESTURL  = "push-store-rest-url"
	KeyActor             = "actor"
	KeyCodec             = "codec"
	KeyHTTPTimeout       = "http-timeout"
	KeyRetryMax          = "retry-max"
	KeyKeepAliveInterval = "keep-alive-interval"
	KeyLogLevel          = "log-level"
	KeyLogFormat         = "log-format"
	KeyLogPath           = "log-path"
)

// Log formats understood by Config.NewLogger.
const (
	LogFormatText    = "text"
	LogFormatJSON    = "json"
	LogFormatZerolog = "zerolog"
)

// Config holds the settings of a Client.
type Config struct {
	// EndpointURL is the base URL of the command, query and subscription routes.
	EndpointURL string `mapstructure:"endpoint-url"`
	// PushStoreURL is the websocket URL of the push store.
	PushStoreURL string `mapstructure:"push-store-url"`
	// PushStoreRESTURL is the base URL of one-shot push store reads.
	// Derived from PushStoreURL when empty.
	PushStoreRESTURL string `mapstructure:"push-store-rest-url"`
	// Actor identifies the user on whose behalf requests are made.
	Actor string `mapstructure:"actor"`
	// Codec is the request body encoding, "json" or "cbor".
	Codec             string        `mapstructure:"codec"`
	HTTPTimeout       time.Duration `mapstructure:"http-timeout"`
	RetryMax          int           `mapstructure:"retry-max"`
	KeepAliveInterval time.Duration `mapstructure:"keep-alive-interval"`
	LogLevel          string        `mapstructure:"log-level"`
	LogFormat         string        `mapstructure:"log-format"`
	// LogPath is the file zerolog output is appended to. Stderr when empty.
	LogPath string `mapstructure:"log-path"`
}

var ErrInvalidConfig = errors.New("invalid config")

func DefaultConfig() *Config {
	return &Config{
		Actor:             GetEnvOrDefault("USER", "anonymous"),
		Codec:             "json",
		HTTPTimeout:       constants.DefaultHTTPTimeout,
		KeepAliveInterval: constants.DefaultKeepAliveInterval,
		LogLevel:          "info",
		LogFormat:         LogFormatText,
	}
}

// NewViper returns a viper instance carrying the defaults of every key and
// reading SPINEWEB_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault(KeyEndpointURL, def.EndpointURL)
	v.SetDefault(KeyPushStoreURL, def.PushStoreURL)
	v.SetDefault(KeyPushStoreRESTURL, def.PushStoreRESTURL)
	v.SetDefault(KeyActor, def.Actor)
	v.SetDefault(KeyCodec, def.Codec)
	v.SetDefault(KeyHTTPTimeout, def.HTTPTimeout)
	v.SetDefault(KeyRetryMax, def.RetryMax)
	v.SetDefault(KeyKeepAliveInterval, def.KeepAliveInterval)
	v.SetDefault(KeyLogLevel, def.LogLevel)
	v.SetDefault(KeyLogFormat, def.LogFormat)
	v.SetDefault(KeyLogPath, def.LogPath)
	return v
}

// LoadConfig reads the config file at path, if any, and overlays the
// environment.
func LoadConfig(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return ConfigFromViper(v)
}

// ConfigFromViper decodes and validates the settings held by v.
func ConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Actor == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Codec) {
	case "", "json", "cbor":
	default:
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	}
	switch c.LogFormat {
	case "", LogFormatText, LogFormatJSON, LogFormatZerolog:
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("%w: retry-max must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) marshaler() codec.Marshaler {
	return codec.ByName(strings.ToLower(c.Codec))
}

// restURL is the configured REST base of the push store, or the websocket
// URL with its scheme switched to http(s).
func (c *Config) restURL() string {
	if c.PushStoreRESTURL != "" {
		return c.PushStoreRESTURL
	}
	switch {
	case strings.HasPrefix(c.PushStoreURL, constants.WebsocketSecureScheme+"://"):
		return constants.HTTPSecureScheme + strings.TrimPrefix(c.PushStoreURL, constants.WebsocketSecureScheme)
	case strings.HasPrefix(c.PushStoreURL, constants.WebsocketScheme+"://"):
		return constants.HTTPScheme + strings.TrimPrefix(c.PushStoreURL, constants.WebsocketScheme)
	}
	return c.PushStoreURL
}

// NewLogger builds the Logger described by LogFormat and LogLevel, writing
// to w. The returned io.Closer releases the log file of the zerolog format.
func (c *Config) NewLogger(w io.Writer) (logger.Logger, io.Closer, error) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: logger.ParseLevel(c.LogLevel)}

	switch c.LogFormat {
	case LogFormatJSON:
		return logger.New(slog.NewJSONHandler(w, opts)), nopCloser{}, nil
	case LogFormatZerolog:
		build := logger.NewBuild().Level(c.LogLevel)
		if c.LogPath != "" {
			build = build.FromPath(c.LogPath)
		} else {
			build = build.FromBuffer(w)
		}
		l, closer, err := build.Make()
		if err != nil {
			return nil, nil, fmt.Errorf("open log: %w", err)
		}
		return l, closer, nil
	default:
		return logger.New(slog.NewTextHandler(w, opts)), nopCloser{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
