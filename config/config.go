package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SWARMCHAT"

// Supported model providers.
const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderMock        = "mock"
)

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
	Swarm     SwarmConfig     `mapstructure:"swarm"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	RateLimit         float64       `mapstructure:"rate_limit"` // requests per second per client, 0 disables
	RateBurst         int           `mapstructure:"rate_burst"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// ProviderConfig selects and configures the model backend shared by all roles.
type ProviderConfig struct {
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// EndpointsConfig holds the per-role inference endpoints used by the
// huggingface provider.
type EndpointsConfig struct {
	ProjectManager     string `mapstructure:"project_manager"`
	SoftwareEngineer   string `mapstructure:"software_engineer"`
	QATester           string `mapstructure:"qa_tester"`
	DeploymentEngineer string `mapstructure:"deployment_engineer"`
	DataEngineer       string `mapstructure:"data_engineer"`
}

// Endpoint returns the endpoint configured for role, or "".
func (e EndpointsConfig) Endpoint(role string) string {
	switch role {
	case "project_manager":
		return e.ProjectManager
	case "software_engineer":
		return e.SoftwareEngineer
	case "qa_tester":
		return e.QATester
	case "deployment_engineer":
		return e.DeploymentEngineer
	case "data_engineer":
		return e.DataEngineer
	}
	return ""
}

// SwarmConfig bounds each conversation's swarm.
type SwarmConfig struct {
	MaxHistory    int `mapstructure:"max_history"`
	MaxModelCalls int `mapstructure:"max_model_calls"`
}

// PipelineConfig bounds pipeline execution.
type PipelineConfig struct {
	StepTimeout    time.Duration `mapstructure:"step_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxConcurrentRuns caps simultaneous runs across conversations; 0 is unbounded.
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
}

// RegistryConfig bounds the conversation registry.
type RegistryConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	CreateTimeout time.Duration `mapstructure:"create_timeout"`
}

// WarehouseConfig enables SQL execution for the data engineer when DSN is set.
type WarehouseConfig struct {
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	Schema  string `mapstructure:"schema"`
	MaxRows int    `mapstructure:"max_rows"`
}

// Enabled reports whether a warehouse is configured.
func (w WarehouseConfig) Enabled() bool { return w.DSN != "" }

// LogConfig configures logging.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`  // text or json
	Backend string `mapstructure:"backend"` // slog or zap
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// legacyEnv maps keys to the unprefixed variable names of legacy deployments.
var legacyEnv = map[string]string{
	"provider.api_key":              "HF_API_KEY",
	"endpoints.project_manager":     "PROJECT_MANAGER_ENDPOINT",
	"endpoints.software_engineer":   "SOFTWARE_ENGINEER_ENDPOINT",
	"endpoints.qa_tester":           "QA_TESTER_ENDPOINT",
	"endpoints.deployment_engineer": "DEPLOYMENT_ENGINEER_ENDPOINT",
	"endpoints.data_engineer":       "DATA_ENGINEER_ENDPOINT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("provider.name", ProviderHuggingFace)
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.temperature", 0.1)
	v.SetDefault("provider.max_tokens", 8192)

	for key := range legacyEnv {
		if strings.HasPrefix(key, "endpoints.") {
			v.SetDefault(key, "")
		}
	}

	v.SetDefault("swarm.max_history", 20)
	v.SetDefault("swarm.max_model_calls", 0)

	v.SetDefault("pipeline.step_timeout", 2*time.Minute)
	v.SetDefault("pipeline.request_timeout", 10*time.Minute)
	v.SetDefault("pipeline.max_concurrent_runs", 0)

	v.SetDefault("registry.ttl", 30*time.Minute)
	v.SetDefault("registry.max_entries", 10000)
	v.SetDefault("registry.sweep_interval", time.Minute)
	v.SetDefault("registry.create_timeout", time.Minute)

	v.SetDefault("warehouse.driver", "sqlite")
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.schema", "")
	v.SetDefault("warehouse.max_rows", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.backend", "slog")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "swarmchat")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "swarmchat")
	v.SetDefault("telemetry.sample_rate", 0.1)
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith reads the configuration into v. A nil v gets a fresh instance.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider.Name {
	case ProviderHuggingFace:
		// Endpoints are checked when the swarm is built; a partially
		// configured deployment can still serve health checks.
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("provider.name: unknown provider %q", c.Provider.Name))
	}

	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		errs = append(errs, fmt.Errorf("provider.temperature: %v out of range [0, 2]", c.Provider.Temperature))
	}
	if c.Provider.MaxTokens <= 0 {
		errs = append(errs, errors.New("provider.max_tokens: must be positive"))
	}
	if c.Pipeline.StepTimeout < 0 || c.Pipeline.RequestTimeout < 0 || c.Pipeline.MaxConcurrentRuns < 0 {
		errs = append(errs, errors.New("pipeline: limits must not be negative"))
	}
	if c.Registry.TTL < 0 || c.Registry.MaxEntries < 0 || c.Registry.SweepInterval < 0 || c.Registry.CreateTimeout < 0 {
		errs = append(errs, errors.New("registry: limits must not be negative"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit: must not be negative"))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		errs = append(errs, errors.New("server.rate_burst: must be positive when rate limiting is enabled"))
	}
	if c.Warehouse.Enabled() && c.Warehouse.Driver == "" {
		errs = append(errs, errors.New("warehouse.driver: required when warehouse.dsn is set"))
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.OTLPEndpoint == "" {
			errs = append(errs, errors.New("telemetry.otlp_endpoint: required when telemetry is enabled"))
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("telemetry.sample_rate: %v out of range [0, 1]", c.Telemetry.SampleRate))
		}
	}
	switch c.Log.Format {
	case "text", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	switch c.Log.Backend {
	case "slog", "zap":
	default:
		errs = append(errs, fmt.Errorf("log.backend: unknown backend %q", c.Log.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
