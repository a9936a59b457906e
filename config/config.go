// Package config loads the settings of a satori host from a YAML file,
// with SATORI_* environment variables taking precedence over the file.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/satori-http/satori/request"
	"github.com/satori-http/satori/secret"
	"github.com/satori-http/satori/session"
	"github.com/satori-http/satori/sphyrw/cookie"
)

// Store backends.
const (
	BackendRAM        = "ram"
	BackendFilesystem = "filesystem"
	BackendRedis      = "redis"
)

// Config is the whole of a host's configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	Log     LogConfig     `yaml:"log"`
	Session SessionConfig `yaml:"session"`
	Store   StoreConfig   `yaml:"store"`
	Request RequestConfig `yaml:"request"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type SessionConfig struct {
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`

	// IDKey and SigningKey are hex. An empty IDKey means session IDs
	// don't survive a restart; an empty SigningKey leaves the cookie
	// unsigned.
	IDKey      string `yaml:"id_key"`
	SigningKey string `yaml:"signing_key"`
	IDBuffer   int    `yaml:"id_buffer"`

	DisableCookies bool         `yaml:"disable_cookies"`
	Cookie         CookieConfig `yaml:"cookie"`
}

type CookieConfig struct {
	Path          string        `yaml:"path"`
	Domain        string        `yaml:"domain"`
	Insecure      bool          `yaml:"insecure"`
	ClientCanRead bool          `yaml:"client_can_read"`
	SameSite      string        `yaml:"same_site"`
	Lifetime      time.Duration `yaml:"lifetime"`
}

type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	Directory     string        `yaml:"directory"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

type RequestConfig struct {
	ServerName          string `yaml:"server_name"`
	TrustForwardedProto bool   `yaml:"trust_forwarded_proto"`
	MaxBodyBytes        int64  `yaml:"max_body_bytes"`
}

// Default returns the configuration used for anything a file doesn't
// set.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log: LogConfig{
			Level: "info",
		},
		Session: SessionConfig{
			Name:     session.DefaultName,
			Timeout:  time.Hour,
			IDBuffer: 128,
			Cookie: CookieConfig{
				Path:     "/",
				SameSite: "strict",
			},
		},
		Store: StoreConfig{
			Backend:     BackendRAM,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "session:",
		},
		Request: RequestConfig{
			MaxBodyBytes: request.DefaultMaxBodyBytes,
		},
	}
}

// Load reads the file at path over the defaults, applies the environment
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := c.Decode(f); err != nil {
			return nil, err
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Decode reads YAML over c. Unknown keys are errors, since a misspelled
// cookie setting silently falling back to a default is a security
// problem.
func (c *Config) Decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("config: reading: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("config: parsing: %w", err)
	}
	return nil
}

// ApplyEnv overrides c from the environment, as seen through lookup
// (normally os.LookupEnv).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, target *string) {
		if v, have := lookup(name); have && v != "" {
			*target = v
		}
	}
	var errs []error
	boolean := func(name string, target *bool) {
		if v, have := lookup(name); have && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
				return
			}
			*target = b
		}
	}
	duration := func(name string, target *time.Duration) {
		if v, have := lookup(name); have && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
				return
			}
			*target = d
		}
	}

	str("SATORI_LISTEN", &c.Listen)
	str("SATORI_LOG_LEVEL", &c.Log.Level)
	boolean("SATORI_LOG_DEVELOPMENT", &c.Log.Development)
	str("SATORI_SESSION_NAME", &c.Session.Name)
	duration("SATORI_SESSION_TIMEOUT", &c.Session.Timeout)
	str("SATORI_SESSION_ID_KEY", &c.Session.IDKey)
	str("SATORI_SESSION_SIGNING_KEY", &c.Session.SigningKey)
	boolean("SATORI_SESSION_DISABLE_COOKIES", &c.Session.DisableCookies)
	str("SATORI_COOKIE_DOMAIN", &c.Session.Cookie.Domain)
	boolean("SATORI_COOKIE_INSECURE", &c.Session.Cookie.Insecure)
	str("SATORI_STORE_BACKEND", &c.Store.Backend)
	str("SATORI_STORE_DIRECTORY", &c.Store.Directory)
	str("SATORI_REDIS_ADDR", &c.Store.RedisAddr)
	str("SATORI_REDIS_PREFIX", &c.Store.RedisPrefix)
	str("SATORI_SERVER_NAME", &c.Request.ServerName)
	boolean("SATORI_TRUST_FORWARDED_PROTO", &c.Request.TrustForwardedProto)

	return errors.Join(errs...)
}

// Validate checks everything that can be checked without side effects.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}
	if !cookie.ValidName(c.Session.Name) {
		return fmt.Errorf("config: %q is not a usable session name", c.Session.Name)
	}
	if c.Session.Timeout <= 0 {
		return errors.New("config: session timeout must be positive")
	}
	if _, err := cookie.ParseStrictness(c.Session.Cookie.SameSite); err != nil {
		return fmt.Errorf("config: same_site: %w", err)
	}
	if _, err := c.Session.IDKeyBytes(); err != nil {
		return err
	}
	if _, err := c.Session.Signer(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendRAM, BackendRedis:
	case BackendFilesystem:
		if c.Store.Directory == "" {
			return errors.New("config: the filesystem store needs a directory")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	if c.Request.MaxBodyBytes < 0 {
		return errors.New("config: max_body_bytes can't be negative")
	}
	return nil
}

// IDKeyBytes decodes the session ID key, nil if none is configured.
func (sc SessionConfig) IDKeyBytes() ([]byte, error) {
	if sc.IDKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(sc.IDKey)
	if err != nil {
		return nil, fmt.Errorf("config: id_key: %w", err)
	}
	return key, nil
}

// Signer returns the cookie signer, nil if none is configured.
func (sc SessionConfig) Signer() (secret.Signer, error) {
	if sc.SigningKey == "" {
		return nil, nil
	}
	s, err := secret.FromHex(sc.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("config: signing_key: %w", err)
	}
	return s, nil
}

// Settings builds session.Settings from the configuration.
func (sc SessionConfig) Settings() (*session.Settings, error) {
	sameSite, err := cookie.ParseStrictness(sc.Cookie.SameSite)
	if err != nil {
		return nil, fmt.Errorf("config: same_site: %w", err)
	}
	signer, err := sc.Signer()
	if err != nil {
		return nil, err
	}
	return &session.Settings{
		Name:           sc.Name,
		DisableCookies: sc.DisableCookies,
		Signer:         signer,
		Cookie: session.CookieParams{
			Path:          sc.Cookie.Path,
			Domain:        sc.Cookie.Domain,
			Insecure:      sc.Cookie.Insecure,
			ClientCanRead: sc.Cookie.ClientCanRead,
			SameSite:      sameSite,
			Lifetime:      sc.Cookie.Lifetime,
		},
	}, nil
}

// Options builds request.Options from the configuration.
func (rc RequestConfig) Options() *request.Options {
	return &request.Options{
		ServerName:          rc.ServerName,
		TrustForwardedProto: rc.TrustForwardedProto,
		MaxBodyBytes:        rc.MaxBodyBytes,
	}
}

// Logger builds the process logger.
func (lc LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
