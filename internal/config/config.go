// Package config loads client and server settings.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// TERMCHAT_* environment variables, then command-line flags. Each layer only
// overrides what it sets.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"

	"github.com/omochice/termchat/pkg/protocol"
)

// EnvPrefix is the prefix of environment overrides, e.g. TERMCHAT_ADDRESS.
const EnvPrefix = "TERMCHAT"

// Transports accepted by the client.
const (
	TransportTLS       = "tls"
	TransportWebSocket = "ws"
)

// ErrHelp is returned by the loaders when -h/--help was given.
var ErrHelp = pflag.ErrHelp

// Client holds the chat client settings.
type Client struct {
	Address      string        `toml:"address" envconfig:"ADDRESS"`
	ServerName   string        `toml:"server_name" envconfig:"SERVER_NAME"`
	CAFile       string        `toml:"ca_file" envconfig:"CA_FILE"`
	Transport    string        `toml:"transport" envconfig:"TRANSPORT"`
	WSURL        string        `toml:"ws_url" envconfig:"WS_URL"`
	Framing      string        `toml:"framing" envconfig:"FRAMING"`
	PollInterval time.Duration `toml:"poll_interval" envconfig:"POLL_INTERVAL"`
	ReadWait     time.Duration `toml:"read_wait" envconfig:"READ_WAIT"`
	DialTimeout  time.Duration `toml:"dial_timeout" envconfig:"DIAL_TIMEOUT"`
	LogFile      string        `toml:"log_file" envconfig:"LOG_FILE"`
	Verbose      bool          `toml:"verbose" envconfig:"VERBOSE"`
}

// DefaultClient returns the client defaults.
func DefaultClient() *Client {
	return &Client{
		Address:      "localhost:8080",
		CAFile:       "certificate.crt",
		Transport:    TransportTLS,
		Framing:      protocol.FramingTerminator,
		PollInterval: protocol.DefaultBackoff,
		ReadWait:     10 * time.Millisecond,
		DialTimeout:  10 * time.Second,
	}
}

// Account seeds a login on the reference server.
type Account struct {
	Login    string `toml:"login"`
	Password string `toml:"password"`
	Username string `toml:"username"`
}

// Server holds the reference server settings.
type Server struct {
	Listen    string    `toml:"listen" envconfig:"LISTEN"`
	CertFile  string    `toml:"cert_file" envconfig:"CERT_FILE"`
	KeyFile   string    `toml:"key_file" envconfig:"KEY_FILE"`
	Framing   string    `toml:"framing" envconfig:"FRAMING"`
	RateLimit float64   `toml:"rate_limit" envconfig:"RATE_LIMIT"`
	RateBurst int       `toml:"rate_burst" envconfig:"RATE_BURST"`
	Verbose   bool      `toml:"verbose" envconfig:"VERBOSE"`
	Accounts  []Account `toml:"accounts" ignored:"true"`

	// HandshakeTimeout bounds protocol detection and the WebSocket upgrade.
	HandshakeTimeout time.Duration `toml:"handshake_timeout" envconfig:"HANDSHAKE_TIMEOUT"`
}

// DefaultServer returns the server defaults.
func DefaultServer() *Server {
	return &Server{
		Listen:    ":8080",
		Framing:   protocol.FramingTerminator,
		RateLimit: 5,
		RateBurst: 10,

		HandshakeTimeout: 10 * time.Second,
	}
}

// LoadClient builds the client configuration from args (without the program name).
func LoadClient(args []string) (*Client, *pflag.FlagSet, error) {
	cfg := DefaultClient()

	fs := pflag.NewFlagSet("termchat", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a TOML config file")
	fs.StringP("address", "a", cfg.Address, "server address (host:port)")
	fs.String("server-name", "", "TLS server name (default: host of --address)")
	fs.String("ca-file", cfg.CAFile, "PEM file with the root certificate to trust (empty: system roots)")
	fs.StringP("transport", "t", cfg.Transport, "transport: tls or ws")
	fs.String("ws-url", "", "WebSocket URL (default: wss://<address>/)")
	fs.String("framing", cfg.Framing, "frame format: terminator or varint")
	fs.Duration("poll-interval", cfg.PollInterval, "wait between reads when no data is available")
	fs.Duration("read-wait", cfg.ReadWait, "how long a single read may wait for data")
	fs.Duration("dial-timeout", cfg.DialTimeout, "connection timeout")
	fs.String("log-file", "", "write JSON logs to this file")
	fs.BoolP("verbose", "v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if err := loadLayers(*configPath, cfg); err != nil {
		return nil, fs, err
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "address":
			cfg.Address = f.Value.String()
		case "server-name":
			cfg.ServerName = f.Value.String()
		case "ca-file":
			cfg.CAFile = f.Value.String()
		case "transport":
			cfg.Transport = f.Value.String()
		case "ws-url":
			cfg.WSURL = f.Value.String()
		case "framing":
			cfg.Framing = f.Value.String()
		case "poll-interval":
			cfg.PollInterval, err = fs.GetDuration(f.Name)
		case "read-wait":
			cfg.ReadWait, err = fs.GetDuration(f.Name)
		case "dial-timeout":
			cfg.DialTimeout, err = fs.GetDuration(f.Name)
		case "log-file":
			cfg.LogFile = f.Value.String()
		case "verbose":
			cfg.Verbose, err = fs.GetBool(f.Name)
		}
	})
	if err != nil {
		return nil, fs, err
	}

	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return nil, fs, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, fs, nil
}

// LoadServer builds the server configuration from args (without the program name).
func LoadServer(args []string) (*Server, *pflag.FlagSet, error) {
	cfg := DefaultServer()

	fs := pflag.NewFlagSet("termchat-server", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a TOML config file")
	fs.StringP("listen", "l", cfg.Listen, "address to listen on for TLS and WebSocket clients")
	fs.String("cert-file", "", "PEM certificate (empty: plain TCP)")
	fs.String("key-file", "", "PEM private key")
	fs.String("framing", cfg.Framing, "frame format: terminator or varint")
	fs.Float64("rate-limit", cfg.RateLimit, "messages per second allowed per client")
	fs.Int("rate-burst", cfg.RateBurst, "burst of messages allowed per client")
	fs.Duration("handshake-timeout", cfg.HandshakeTimeout, "time a new connection has to identify its protocol")
	fs.BoolP("verbose", "v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if err := loadLayers(*configPath, cfg); err != nil {
		return nil, fs, err
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = f.Value.String()
		case "cert-file":
			cfg.CertFile = f.Value.String()
		case "key-file":
			cfg.KeyFile = f.Value.String()
		case "framing":
			cfg.Framing = f.Value.String()
		case "rate-limit":
			cfg.RateLimit, err = fs.GetFloat64(f.Name)
		case "rate-burst":
			cfg.RateBurst, err = fs.GetInt(f.Name)
		case "handshake-timeout":
			cfg.HandshakeTimeout, err = fs.GetDuration(f.Name)
		case "verbose":
			cfg.Verbose, err = fs.GetBool(f.Name)
		}
	})
	if err != nil {
		return nil, fs, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fs, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, fs, nil
}

// loadLayers applies the TOML file (when given) and then the environment.
func loadLayers(path string, cfg any) error {
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	return nil
}

func (c *Client) fillDerived() {
	if c.ServerName == "" {
		if host, _, err := net.SplitHostPort(c.Address); err == nil {
			c.ServerName = host
		} else {
			c.ServerName = c.Address
		}
	}
	if c.Transport == TransportWebSocket && c.WSURL == "" {
		c.WSURL = (&url.URL{Scheme: "wss", Host: c.Address, Path: "/"}).String()
	}
}

// Validate checks the client settings.
func (c *Client) Validate() error {
	var errs []error
	if c.Address == "" && c.WSURL == "" {
		errs = append(errs, errors.New("address is required"))
	}
	switch c.Transport {
	case TransportTLS:
	case TransportWebSocket:
		if u, err := url.Parse(c.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("ws_url must be a ws:// or wss:// URL, got %q", c.WSURL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if _, err := protocol.NewFramer(c.Framing, 0); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.ReadWait <= 0 {
		errs = append(errs, errors.New("read_wait must be positive"))
	}
	if c.DialTimeout <= 0 {
		errs = append(errs, errors.New("dial_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Validate checks the server settings.
func (s *Server) Validate() error {
	var errs []error
	if s.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if (s.CertFile == "") != (s.KeyFile == "") {
		errs = append(errs, errors.New("cert_file and key_file must be set together"))
	}
	if _, err := protocol.NewFramer(s.Framing, 0); err != nil {
		errs = append(errs, err)
	}
	if s.RateLimit <= 0 {
		errs = append(errs, errors.New("rate_limit must be positive"))
	}
	if s.RateBurst <= 0 {
		errs = append(errs, errors.New("rate_burst must be positive"))
	}
	if s.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("handshake_timeout must be positive"))
	}
	for i, a := range s.Accounts {
		if a.Login == "" || a.Password == "" {
			errs = append(errs, fmt.Errorf("accounts[%d]: login and password are required", i))
		}
	}
	return errors.Join(errs...)
}
