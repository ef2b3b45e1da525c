package config

// Option customizes how Load resolves configuration
type Option func(*options) error

// options holds internal resolution settings
type options struct {
	configPath string
	envPrefix  string
}

func defaultOptions() *options {
	return &options{envPrefix: defaultEnvPrefix}
}

// WithConfigFile bypasses flag and environment resolution and loads
// the given file
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix overrides the environment variable prefix
// Default is "UDSD"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
