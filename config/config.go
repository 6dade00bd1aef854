package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	SubmissionMode_Paper = "paper"
	SubmissionMode_Live  = "live"
)

const (
	SequencePolicy_Contiguous = "contiguous"
	SequencePolicy_Monotonic  = "monotonic"
)

type Config struct {
	Lighter struct {
		URL             string   `yaml:"url"`
		WSURL           string   `yaml:"ws_url"`
		AccountIndex    int64    `yaml:"account_index"`
		APIKeyIndex     int      `yaml:"api_key_index"`
		Trader          string   `yaml:"trader"`
		WeightPerMinute int      `yaml:"weight_per_minute"`
		Markets         []string `yaml:"markets"`
	} `yaml:"lighter"`

	Signer struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"signer"`

	SubmissionMode string `yaml:"submission_mode"`

	Server struct {
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`

	Redis struct {
		Addr string        `yaml:"addr"`
		DB   int           `yaml:"db"`
		TTL  time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Books struct {
		PublishInterval time.Duration `yaml:"publish_interval"`
		MaxBatch        int           `yaml:"max_batch"`
		Depth           int           `yaml:"depth"`
		SequencePolicy  string        `yaml:"sequence_policy"`
	} `yaml:"books"`

	Orders struct {
		SubmitTimeout     time.Duration `yaml:"submit_timeout"`
		StaleAfter        time.Duration `yaml:"stale_after"`
		ReconcileInterval time.Duration `yaml:"reconcile_interval"`
		Retention         time.Duration `yaml:"retention"`
		FallbackWindow    time.Duration `yaml:"fallback_window"`
	} `yaml:"orders"`

	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`
}

// Load reads .env (if present), the YAML file at path (if not empty), then
// applies environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	cfg := &Config{}
	cfg.Lighter.AccountIndex = -1
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) overrideWithEnv() error {
	setString(&c.Lighter.URL, "LIGHTER_URL")
	setString(&c.Lighter.WSURL, "LIGHTER_WS_URL")
	setString(&c.Signer.URL, "LIGHTER_SIGNER_URL")
	setString(&c.SubmissionMode, "CPTY_SUBMISSION_MODE")
	setString(&c.Server.Host, "CPTY_SERVER_HOST")
	setString(&c.Server.MetricsAddr, "CPTY_METRICS_ADDR")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Books.SequencePolicy, "CPTY_SEQUENCE_POLICY")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if v, ok := os.LookupEnv("LIGHTER_ACCOUNT_INDEX"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrap(err, "LIGHTER_ACCOUNT_INDEX")
		}
		c.Lighter.AccountIndex = n
	}
	if v, ok := os.LookupEnv("LIGHTER_API_KEY_INDEX"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "LIGHTER_API_KEY_INDEX")
		}
		c.Lighter.APIKeyIndex = n
	}
	if v, ok := os.LookupEnv("CPTY_SERVER_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "CPTY_SERVER_PORT")
		}
		c.Server.Port = n
	}
	if v, ok := os.LookupEnv("LIGHTER_API_AUTH"); ok {
		if err := c.applyAPIAuth(v); err != nil {
			return err
		}
	}
	return nil
}

// applyAPIAuth unpacks "trader:account_index:api_key_index:private_key".
// The key itself stays with the signer service and is not kept.
func (c *Config) applyAPIAuth(v string) error {
	parts := strings.SplitN(v, ":", 4)
	if len(parts) != 4 {
		return errors.New("LIGHTER_API_AUTH must be trader:account_index:api_key_index:private_key")
	}
	account, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return errors.Wrap(err, "LIGHTER_API_AUTH account index")
	}
	keyIndex, err := strconv.Atoi(parts[2])
	if err != nil {
		return errors.Wrap(err, "LIGHTER_API_AUTH api key index")
	}
	c.Lighter.Trader = parts[0]
	c.Lighter.AccountIndex = account
	c.Lighter.APIKeyIndex = keyIndex
	return nil
}

func (c *Config) setDefaults() {
	if c.Lighter.URL == "" {
		c.Lighter.URL = "https://mainnet.zklighter.elliot.ai"
	}
	if c.Lighter.WSURL == "" {
		c.Lighter.WSURL = deriveWSURL(c.Lighter.URL)
	}
	if c.Lighter.WeightPerMinute == 0 {
		c.Lighter.WeightPerMinute = 2400
	}
	if c.SubmissionMode == "" {
		c.SubmissionMode = SubmissionMode_Paper
	}
	if c.Signer.Timeout == 0 {
		c.Signer.Timeout = 5 * time.Second
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 50051
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 300 * time.Second
	}
	if c.Books.SequencePolicy == "" {
		c.Books.SequencePolicy = SequencePolicy_Contiguous
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// deriveWSURL maps https://host to wss://host/stream.
func deriveWSURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := "wss"
	if u.Scheme == "http" {
		scheme = "ws"
	}
	return scheme + "://" + u.Host + "/stream"
}

func (c *Config) Validate() error {
	if err := checkURL(c.Lighter.URL, "http", "https"); err != nil {
		return errors.Wrap(err, "lighter.url")
	}
	if err := checkURL(c.Lighter.WSURL, "ws", "wss"); err != nil {
		return errors.Wrap(err, "lighter.ws_url")
	}
	if c.Lighter.APIKeyIndex < 0 {
		return errors.Errorf("lighter.api_key_index %d is negative", c.Lighter.APIKeyIndex)
	}
	if c.Lighter.WeightPerMinute < 0 {
		return errors.New("lighter.weight_per_minute is negative")
	}

	switch c.SubmissionMode {
	case SubmissionMode_Paper:
	case SubmissionMode_Live:
		if c.Lighter.AccountIndex < 0 {
			return errors.New("live submission requires lighter.account_index")
		}
		if err := checkURL(c.Signer.URL, "http", "https"); err != nil {
			return errors.Wrap(err, "live submission requires signer.url")
		}
	default:
		return errors.Errorf("submission_mode %q is not paper or live", c.SubmissionMode)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, "logging.level")
	}
	if c.Books.MaxBatch < 0 || c.Books.Depth < 0 {
		return errors.New("books.max_batch and books.depth must not be negative")
	}
	switch c.Books.SequencePolicy {
	case SequencePolicy_Contiguous, SequencePolicy_Monotonic:
	default:
		return errors.Errorf("books.sequence_policy %q is not contiguous or monotonic", c.Books.SequencePolicy)
	}
	return nil
}

func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return errors.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return errors.Errorf("%q: scheme must be one of %s", raw, strings.Join(schemes, ", "))
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
