package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "modernc.org/sqlite"

	"github.com/hupe1980/swarmchat"
	"github.com/hupe1980/swarmchat/agent"
	"github.com/hupe1980/swarmchat/config"
	"github.com/hupe1980/swarmchat/internal/metrics"
	"github.com/hupe1980/swarmchat/internal/telemetry"
	"github.com/hupe1980/swarmchat/logging"
	"github.com/hupe1980/swarmchat/model"
	"github.com/hupe1980/swarmchat/model/anthropic"
	"github.com/hupe1980/swarmchat/model/huggingface"
	"github.com/hupe1980/swarmchat/model/openai"
	"github.com/hupe1980/swarmchat/warehouse"
)

type app struct {
	cfg          *config.Config
	logger       logging.Logger
	promRegistry *prometheus.Registry
	collector    *metrics.Collector
	telemetry    *telemetry.Provider
	warehouse    *warehouse.Client
	orchestrator *swarmchat.Orchestrator
	closers      []func() error
}

func wireApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	a.logger, err = newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.promRegistry = prometheus.NewRegistry()
		a.promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.collector = metrics.NewCollector(cfg.Metrics.Namespace, a.promRegistry, a.logger)
	}

	a.telemetry, err = telemetry.Init(context.Background(), cfg.Telemetry, a.logger)
	if err != nil {
		return nil, fmt.Errorf("wire telemetry: %w", err)
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.telemetry.Shutdown(ctx)
	})

	if cfg.Warehouse.Enabled() {
		a.warehouse, err = warehouse.Open(cfg.Warehouse.Driver, cfg.Warehouse.DSN, func(o *warehouse.ClientOptions) {
			o.MaxRows = cfg.Warehouse.MaxRows
			o.Logger = a.logger
		})
		if err != nil {
			return nil, fmt.Errorf("wire warehouse: %w", err)
		}
		a.closers = append(a.closers, a.warehouse.Close)
	}

	factory := agent.NewFactory(func() ([]*agent.RoleAgent, error) {
		return a.roles()
	}, func(o *agent.SwarmOptions) {
		o.MaxHistory = cfg.Swarm.MaxHistory
		o.MaxModelCalls = cfg.Swarm.MaxModelCalls
		o.Logger = a.logger
	})

	a.orchestrator = swarmchat.New(factory, func(o *swarmchat.Options) {
		o.TTL = cfg.Registry.TTL
		o.MaxConversations = cfg.Registry.MaxEntries
		o.SweepInterval = cfg.Registry.SweepInterval
		o.CreateTimeout = cfg.Registry.CreateTimeout
		o.StepTimeout = cfg.Pipeline.StepTimeout
		o.RequestTimeout = cfg.Pipeline.RequestTimeout
		o.MaxConcurrentRuns = cfg.Pipeline.MaxConcurrentRuns
		if a.collector != nil {
			o.RegistryMetrics = a.collector
			o.RunMetrics = a.collector
		}
		o.Logger = a.logger
	})
	a.closers = append(a.closers, a.orchestrator.Close)

	return a, nil
}

// roles builds the default roles for one conversation.
func (a *app) roles() ([]*agent.RoleAgent, error) {
	roles, err := agent.DefaultRoles(a.modelFor)
	if err != nil {
		return nil, err
	}

	if a.warehouse != nil {
		schema := a.cfg.Warehouse.Schema
		if schema == "" {
			schema = warehouse.DefaultSchema
		}
		processor := warehouse.NewProcessor(a.warehouse, func(o *warehouse.ProcessorOptions) { o.Logger = a.logger })
		for _, r := range roles {
			if r.Name == agent.DataEngineer {
				r.Prompt = r.Prompt + "\n\nAnswer with a single ```sql fenced query for this database:\n" + schema
				r.PostProcessor = processor
			}
		}
	}

	for _, r := range roles {
		r.Temperature = a.cfg.Provider.Temperature
		r.MaxTokens = a.cfg.Provider.MaxTokens
	}

	return roles, nil
}

// modelFor resolves the configured provider for role.
func (a *app) modelFor(role string) (model.Model, error) {
	p := a.cfg.Provider

	var m model.Model
	switch p.Name {
	case config.ProviderHuggingFace:
		endpoint := a.cfg.Endpoints.Endpoint(role)
		if endpoint == "" {
			return nil, fmt.Errorf("no endpoint configured for %s", role)
		}
		m = huggingface.NewModel(endpoint, func(o *huggingface.Options) {
			o.APIKey = p.APIKey
			o.Temperature = p.Temperature
			o.MaxTokens = p.MaxTokens
		})
	case config.ProviderOpenAI:
		m = openai.NewModel(func(o *openai.Options) {
			if p.Model != "" {
				o.Model = p.Model
			}
			o.APIKey = p.APIKey
			o.BaseURL = p.BaseURL
			o.Temperature = p.Temperature
			o.MaxCompletionTokens = int64(p.MaxTokens)
		})
	case config.ProviderAnthropic:
		m = anthropic.NewModel(func(o *anthropic.Options) {
			if p.Model != "" {
				o.Model = anthropicsdk.Model(p.Model)
			}
			o.APIKey = p.APIKey
			o.BaseURL = p.BaseURL
			o.Temperature = p.Temperature
			o.MaxTokens = int64(p.MaxTokens)
		})
	case config.ProviderMock:
		m = model.NewMockModel(role)
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Name)
	}

	if a.collector != nil {
		m = model.Instrument(m, a.collector)
	}
	return m, nil
}

func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)

	switch cfg.Backend {
	case "zap":
		return logging.NewZapLogger(os.Stderr, level, cfg.Format), nil
	case "slog", "":
		return logging.NewSlogLoggerWithWriter(os.Stderr, level, cfg.Format, false), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

// Close releases everything wireApp opened, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if z, ok := a.logger.(*logging.ZapAdapter); ok {
		_ = z.Sync()
	}
	return errors.Join(errs...)
}
