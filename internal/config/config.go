package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/welterm/udsd/internal/errors"
)

const (
	// EnvConfigFile overrides the config file location when the
	// --config flag is not given.
	EnvConfigFile = "UDSD_CONFIG_FILE"

	defaultEnvPrefix  = "UDSD"
	defaultConfigPath = "config.json"

	DefaultOneWireBasePath = "/sys/bus/w1/devices"
	DefaultNUTPort         = 3493
	DefaultEndpointPort    = 63623

	// Pollers may not spin faster than these floors no matter what
	// the file says; values below are clamped up, not rejected.
	minPollCooldown = 200 * time.Millisecond
	minSendCooldown = time.Second
)

type Config struct {
	OneWire         OneWire         `mapstructure:"one_wire"`
	UPSMonitoring   UPSMonitoring   `mapstructure:"ups_monitoring"`
	ActiveSender    ActiveSender    `mapstructure:"active_data_sender"`
	PassiveEndpoint PassiveEndpoint `mapstructure:"passive_data_endpoint"`
	Log             Log             `mapstructure:"log"`
}

type OneWire struct {
	Enabled    bool          `mapstructure:"enabled"`
	BasePath   string        `mapstructure:"base_path"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	EvictStale bool          `mapstructure:"evict_stale"`
}

type UPSMonitoring struct {
	Enabled  bool          `mapstructure:"enabled"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Servers  []NUTServer   `mapstructure:"servers"`
}

type NUTServer struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	EnableTLS bool   `mapstructure:"enable_tls"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Upses     []UPS  `mapstructure:"upses"`
}

type UPS struct {
	Name               string   `mapstructure:"name"`
	VariablesToMonitor []string `mapstructure:"variables_to_monitor"`
}

type ActiveSender struct {
	Enabled                bool          `mapstructure:"enabled"`
	Cooldown               time.Duration `mapstructure:"cooldown"`
	IgnoreConnectionErrors bool          `mapstructure:"ignore_connection_errors"`
	Endpoints              []Endpoint    `mapstructure:"endpoints"`
}

type Endpoint struct {
	URL         string `mapstructure:"url"`
	BearerToken string `mapstructure:"bearer_token"`
}

type PassiveEndpoint struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port"`
	BearerToken string `mapstructure:"bearer_token"`
}

type Log struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// ParseFlags registers and parses the daemon's command-line flags.
// Call once from main; Load picks up whatever was parsed.
func ParseFlags() {
	if pflag.Parsed() {
		return
	}

	pflag.String("config", "", "Path to the configuration file")
	pflag.Bool("debug", false, "Enable debug logging")
	pflag.Bool("console", false, "Render human-readable log output")
	pflag.Parse()
}

// Load resolves, reads and validates the configuration. When the
// resolved file does not exist, a default one is written and the
// returned error carries the ErrDefaultConfigWritten code so main can
// tell the operator to edit it.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	// A .env alongside the binary may carry UDSD_* overrides.
	_ = godotenv.Load()

	path := resolvePath(o)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefaultConfig(path); err != nil {
			return nil, err
		}
		return nil, errFactory.WithData(errors.ErrDefaultConfigWritten, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	applyFlagOverrides(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolvePath(o *options) string {
	if o.configPath != "" {
		return o.configPath
	}
	if path, ok := flagString("config"); ok && path != "" {
		return path
	}
	if path := os.Getenv(EnvConfigFile); path != "" {
		return path
	}

	return defaultConfigPath
}

// applyFlagOverrides lets command-line flags win over file and
// environment values.
func applyFlagOverrides(v *viper.Viper) {
	if flagBool("debug") {
		v.Set("log.level", string(LogLevelDebug))
	}
	if flagBool("console") {
		v.Set("log.console", true)
	}
}

func flagString(name string) (string, bool) {
	f := pflag.Lookup(name)
	if f == nil || !f.Changed {
		return "", false
	}

	return f.Value.String(), true
}

func flagBool(name string) bool {
	f := pflag.Lookup(name)

	return f != nil && f.Changed && f.Value.String() == "true"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("one_wire.enabled", false)
	v.SetDefault("one_wire.base_path", DefaultOneWireBasePath)
	v.SetDefault("one_wire.cooldown", "5s")
	v.SetDefault("one_wire.evict_stale", false)

	v.SetDefault("ups_monitoring.enabled", false)
	v.SetDefault("ups_monitoring.cooldown", "10s")

	v.SetDefault("active_data_sender.enabled", false)
	v.SetDefault("active_data_sender.cooldown", "10s")
	v.SetDefault("active_data_sender.ignore_connection_errors", false)

	v.SetDefault("passive_data_endpoint.enabled", false)
	v.SetDefault("passive_data_endpoint.port", DefaultEndpointPort)

	v.SetDefault("log.level", string(LogLevelInfo))
	v.SetDefault("log.console", false)
}

// normalize fills derived defaults that viper cannot apply inside
// list elements.
func (c *Config) normalize() {
	for i := range c.UPSMonitoring.Servers {
		if c.UPSMonitoring.Servers[i].Port == 0 {
			c.UPSMonitoring.Servers[i].Port = DefaultNUTPort
		}
	}
}

// Validate rejects configurations the daemon could not run with.
// Disabled modules are not checked; their settings are inert.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.Log.Level).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.Log.Level)
	}

	if c.OneWire.Enabled {
		if c.OneWire.BasePath == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "one_wire.base_path must not be empty")
		}
		if c.OneWire.Cooldown <= 0 {
			return errFactory.WithMessage(errors.ErrInvalidCooldown, "one_wire.cooldown must be positive")
		}
	}

	if c.UPSMonitoring.Enabled {
		if err := c.validateUPSMonitoring(errFactory); err != nil {
			return err
		}
	}

	if c.ActiveSender.Enabled {
		if err := c.validateActiveSender(errFactory); err != nil {
			return err
		}
	}

	if c.PassiveEndpoint.Enabled && !validPort(c.PassiveEndpoint.Port) {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "passive_data_endpoint.port must be between 1 and 65535")
	}

	return nil
}

func (c *Config) validateUPSMonitoring(errFactory errors.Factory) error {
	if c.UPSMonitoring.Cooldown <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidCooldown, "ups_monitoring.cooldown must be positive")
	}
	if len(c.UPSMonitoring.Servers) == 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "ups_monitoring.servers must not be empty")
	}

	for i, srv := range c.UPSMonitoring.Servers {
		if srv.Host == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				fmt.Sprintf("ups_monitoring.servers[%d].host must not be empty", i))
		}
		if !validPort(srv.Port) {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				fmt.Sprintf("ups_monitoring.servers[%d].port must be between 1 and 65535", i))
		}
		if len(srv.Upses) == 0 {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				fmt.Sprintf("ups_monitoring.servers[%d].upses must not be empty", i))
		}
		for j, ups := range srv.Upses {
			if ups.Name == "" {
				return errFactory.WithMessage(errors.ErrInvalidConfig,
					fmt.Sprintf("ups_monitoring.servers[%d].upses[%d].name must not be empty", i, j))
			}
		}
	}

	return nil
}

func (c *Config) validateActiveSender(errFactory errors.Factory) error {
	if c.ActiveSender.Cooldown <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidCooldown, "active_data_sender.cooldown must be positive")
	}
	if len(c.ActiveSender.Endpoints) == 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "active_data_sender.endpoints must not be empty")
	}

	for i, ep := range c.ActiveSender.Endpoints {
		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				fmt.Sprintf("active_data_sender.endpoints[%d].url must be an absolute http(s) URL", i))
		}
	}

	return nil
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

// PollCooldown is the effective one-wire cycle cooldown
func (c OneWire) PollCooldown() time.Duration {
	return max(c.Cooldown, minPollCooldown)
}

// PollCooldown is the effective UPS monitoring cycle cooldown
func (c UPSMonitoring) PollCooldown() time.Duration {
	return max(c.Cooldown, minPollCooldown)
}

// SendCooldown is the effective sender cycle cooldown
func (c ActiveSender) SendCooldown() time.Duration {
	return max(c.Cooldown, minSendCooldown)
}

// Addr is the dial target for this server
func (s NUTServer) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ServerID names this server inside composite UPS hardware ids
func (s NUTServer) ServerID() string {
	if s.Username == "" {
		return s.Addr()
	}

	return s.Username + "@" + s.Addr()
}

func writeDefaultConfig(path string) error {
	if err := os.WriteFile(path, []byte(defaultConfigJSON), 0o600); err != nil {
		return errors.New().Wrap(errors.ErrWriteConfig, err)
	}

	return nil
}

// defaultConfigJSON is written verbatim when no config file exists.
// Every module starts disabled; the list entries are editing
// templates, ignored until their module is enabled.
const defaultConfigJSON = `{
    "one_wire": {
        "enabled": false,
        "base_path": "/sys/bus/w1/devices",
        "cooldown": "5s",
        "evict_stale": false
    },
    "ups_monitoring": {
        "enabled": false,
        "cooldown": "10s",
        "servers": [
            {
                "host": "127.0.0.1",
                "port": 3493,
                "enable_tls": false,
                "username": "",
                "password": "",
                "upses": [
                    {
                        "name": "ups",
                        "variables_to_monitor": []
                    }
                ]
            }
        ]
    },
    "active_data_sender": {
        "enabled": false,
        "cooldown": "10s",
        "ignore_connection_errors": false,
        "endpoints": [
            {
                "url": "http://127.0.0.1:8080/ingest",
                "bearer_token": ""
            }
        ]
    },
    "passive_data_endpoint": {
        "enabled": false,
        "port": 63623,
        "bearer_token": ""
    },
    "log": {
        "level": "info",
        "console": false
    }
}
`
