// Package config loads the settings shared by the proxy server and its
// clients from a YAML, TOML or JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"dhcpproxy/codec"
	"dhcpproxy/loadbalance"
	"dhcpproxy/protocol"
	"dhcpproxy/transport"
)

var ErrUnknownFormat = errors.New("config file must end in .yaml, .yml, .toml or .json")

type Config struct {
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" toml:"log_file" json:"log_file"`

	Proxy     Proxy     `yaml:"proxy" toml:"proxy" json:"proxy"`
	Transport Transport `yaml:"transport" toml:"transport" json:"transport"`
	Client    Client    `yaml:"client" toml:"client" json:"client"`
	Registry  Registry  `yaml:"registry" toml:"registry" json:"registry"`
	Server    Server    `yaml:"server" toml:"server" json:"server"`
	Metrics   Metrics   `yaml:"metrics" toml:"metrics" json:"metrics"`
}

// Proxy is the endpoint clients dial when no registry is configured.
type Proxy struct {
	Network        string   `yaml:"network" toml:"network" json:"network"`
	Address        string   `yaml:"address" toml:"address" json:"address"`
	ConnectTimeout Duration `yaml:"connect_timeout" toml:"connect_timeout" json:"connect_timeout"`
	IOTimeout      Duration `yaml:"io_timeout" toml:"io_timeout" json:"io_timeout"`
}

type Transport struct {
	BufferSize        int `yaml:"buffer_size" toml:"buffer_size" json:"buffer_size"`
	MaxRetainedBuffer int `yaml:"max_retained_buffer" toml:"max_retained_buffer" json:"max_retained_buffer"`
	MaxResponseSize   int `yaml:"max_response_size" toml:"max_response_size" json:"max_response_size"`
}

type Client struct {
	PoolSize int    `yaml:"pool_size" toml:"pool_size" json:"pool_size"`
	Codec    string `yaml:"codec" toml:"codec" json:"codec"`
	Balancer string `yaml:"balancer" toml:"balancer" json:"balancer"`
	HashKey  string `yaml:"hash_key" toml:"hash_key" json:"hash_key"`
}

// Registry enables etcd discovery when Endpoints is not empty.
type Registry struct {
	Endpoints   []string `yaml:"endpoints" toml:"endpoints" json:"endpoints"`
	ServiceName string   `yaml:"service_name" toml:"service_name" json:"service_name"`
	TTL         int64    `yaml:"ttl" toml:"ttl" json:"ttl"`
}

type Server struct {
	AdvertiseAddress string                `yaml:"advertise_address" toml:"advertise_address" json:"advertise_address"`
	ProxyVersion     int32                 `yaml:"proxy_version" toml:"proxy_version" json:"proxy_version"`
	RateLimit        float64               `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"` // requests per second, 0 disables
	Burst            int                   `yaml:"burst" toml:"burst" json:"burst"`
	HandlerTimeout   Duration              `yaml:"handler_timeout" toml:"handler_timeout" json:"handler_timeout"`
	RetryAttempts    int                   `yaml:"retry_attempts" toml:"retry_attempts" json:"retry_attempts"`
	RetryDelay       Duration              `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`
	ShutdownTimeout  Duration              `yaml:"shutdown_timeout" toml:"shutdown_timeout" json:"shutdown_timeout"`
	DhcpServers      map[string]DhcpServer `yaml:"dhcp_servers" toml:"dhcp_servers" json:"dhcp_servers"`
}

// DhcpServer is a server the emulating proxy answers for.
type DhcpServer struct {
	Major int32 `yaml:"major" toml:"major" json:"major"`
	Minor int32 `yaml:"minor" toml:"minor" json:"minor"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Host    string `yaml:"host" toml:"host" json:"host"`
	Port    int    `yaml:"port" toml:"port" json:"port"`
}

// DefaultPipeAddress is where the proxy listens unless configured otherwise.
func DefaultPipeAddress() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\DhcpProxy`
	}
	return "/run/dhcp-proxy.sock"
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Proxy: Proxy{
			Network:        transport.NetworkPipe,
			Address:        DefaultPipeAddress(),
			ConnectTimeout: Duration(transport.DefaultConnectTimeout),
		},
		Transport: Transport{
			BufferSize:        transport.DefaultBufferSize,
			MaxRetainedBuffer: transport.DefaultMaxRetainedBuffer,
			MaxResponseSize:   transport.DefaultMaxResponseSize,
		},
		Client: Client{
			PoolSize: 2,
			Codec:    "binary",
			Balancer: "round_robin",
		},
		Registry: Registry{
			ServiceName: "dhcp-proxy",
			TTL:         10,
		},
		Server: Server{
			ProxyVersion:    1,
			Burst:           1,
			HandlerTimeout:  Duration(30 * time.Second),
			RetryAttempts:   2,
			RetryDelay:      Duration(100 * time.Millisecond),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Metrics: Metrics{
			Host: "127.0.0.1",
			Port: 9464,
		},
	}
}

// Load reads path over the defaults, choosing the decoder by file
// extension, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		_, err = toml.Decode(string(data), &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error

	if c.Proxy.Address == "" {
		errs = append(errs, errors.New("proxy.address is empty"))
	}
	if c.Proxy.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("proxy.connect_timeout must be positive"))
	}
	if c.Proxy.IOTimeout < 0 {
		errs = append(errs, errors.New("proxy.io_timeout must not be negative"))
	}
	if c.Transport.BufferSize < 8 || c.Transport.MaxRetainedBuffer < 8 {
		errs = append(errs, errors.New("transport buffers must hold at least a frame header"))
	}
	if c.Transport.MaxResponseSize < 0 || c.Transport.MaxResponseSize > protocol.MaxPayloadLength {
		errs = append(errs, fmt.Errorf("transport.max_response_size must be between 0 and %d", protocol.MaxPayloadLength))
	}
	if c.Client.PoolSize < 1 {
		errs = append(errs, errors.New("client.pool_size must be at least 1"))
	}
	if _, err := codec.ParseCodecType(c.Client.Codec); err != nil {
		errs = append(errs, fmt.Errorf("client.codec: %w", err))
	}
	if _, err := loadbalance.New(c.Client.Balancer, c.Client.HashKey); err != nil {
		errs = append(errs, fmt.Errorf("client.balancer: %w", err))
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.Burst < 1) {
		errs = append(errs, errors.New("server.rate_limit needs a burst of at least 1"))
	}
	if c.Server.HandlerTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server timeouts must be positive"))
	}
	if c.Server.RetryAttempts < 0 {
		errs = append(errs, errors.New("server.retry_attempts must not be negative"))
	}

	return errors.Join(errs...)
}

// TransportOptions turns the proxy and transport sections into transport
// options.
func (c Config) TransportOptions() []transport.Option {
	return []transport.Option{
		transport.WithConnectTimeout(time.Duration(c.Proxy.ConnectTimeout)),
		transport.WithIOTimeout(time.Duration(c.Proxy.IOTimeout)),
		transport.WithBufferSize(c.Transport.BufferSize),
		transport.WithMaxRetainedBuffer(c.Transport.MaxRetainedBuffer),
		transport.WithMaxResponseSize(c.Transport.MaxResponseSize),
	}
}
