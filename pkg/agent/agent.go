// Package agent implements the controller that owns the lifecycle state and
// drives planning, tool execution and response composition for each request.
package agent

import (
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/kairos-orchestrator/pkg/api"
	"github.com/jllopis/kairos-orchestrator/pkg/core"
	"github.com/jllopis/kairos-orchestrator/pkg/llm"
	"github.com/jllopis/kairos-orchestrator/pkg/memory"
	"github.com/jllopis/kairos-orchestrator/pkg/observer"
	"github.com/jllopis/kairos-orchestrator/pkg/planner"
	"github.com/jllopis/kairos-orchestrator/pkg/prompts"
	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
	"github.com/jllopis/kairos-orchestrator/pkg/tools"
)

// DefaultMaxIterations bounds the number of steps a plan may grow to through refinement.
const DefaultMaxIterations = 10

// Config describes an agent.
type Config struct {
	Model          string   `json:"model"`
	AvailableTools []string `json:"available_tools,omitempty"`
	MaxIterations  int      `json:"max_iterations"`
	// Temperature overrides the gateway default when positive.
	Temperature float64 `json:"temperature,omitempty"`
	// DebugMode stores the reasoning trace in memory and logs every step
	// transition at debug level.
	DebugMode bool `json:"debug_mode,omitempty"`
}

// DefaultConfig returns the configuration used by CreateAgent for zero fields.
func DefaultConfig() Config {
	return Config{
		Model:         "default",
		MaxIterations: DefaultMaxIterations,
		Temperature:   llm.DefaultTemperature,
	}
}

// Option configures a Controller.
type Option func(*options) error

type options struct {
	id          string
	provider    llm.Provider
	gateway     *llm.Gateway
	memory      *memory.Store
	observer    *observer.Observer
	registry    *tools.Registry
	extraTools  []tools.Tool
	planner     *planner.Planner
	audit       planner.AuditStore
	logger      *slog.Logger
	toolTimeout time.Duration
	apiClient   *api.Client
	prompts     *prompts.Set
	now         func() time.Time
}

// WithID sets the agent identifier. A generated id is used otherwise.
func WithID(id string) Option {
	return func(o *options) error {
		o.id = id
		return nil
	}
}

// WithProvider sets the model provider behind the controller's gateway.
func WithProvider(p llm.Provider) Option {
	return func(o *options) error {
		o.provider = p
		return nil
	}
}

// WithGateway uses an existing gateway instead of building one from a provider.
func WithGateway(g *llm.Gateway) Option {
	return func(o *options) error {
		o.gateway = g
		return nil
	}
}

// WithMemory attaches a memory store.
func WithMemory(m *memory.Store) Option {
	return func(o *options) error {
		o.memory = m
		return nil
	}
}

// WithObserver attaches an observer.
func WithObserver(obs *observer.Observer) Option {
	return func(o *options) error {
		o.observer = obs
		return nil
	}
}

// WithToolRegistry uses reg as is. AvailableTools, WithTools, WithToolTimeout
// and WithAPIClient do not apply to a supplied registry.
func WithToolRegistry(reg *tools.Registry) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

// WithTools adds tools to the registry built by the controller.
func WithTools(ts ...tools.Tool) Option {
	return func(o *options) error {
		o.extraTools = append(o.extraTools, ts...)
		return nil
	}
}

// WithPlanner uses an existing planner. Its model calls are not reported to
// the observer.
func WithPlanner(p *planner.Planner) Option {
	return func(o *options) error {
		o.planner = p
		return nil
	}
}

// WithAuditStore records every executed plan step in store.
func WithAuditStore(store planner.AuditStore) Option {
	return func(o *options) error {
		o.audit = store
		return nil
	}
}

// WithLogger sets the logger for debug output and audit failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// WithToolTimeout bounds every tool call. Zero disables the timeout.
func WithToolTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return NewInvalidInputError("tool timeout must not be negative", nil)
		}
		o.toolTimeout = d
		return nil
	}
}

// WithAPIClient backs the built-in web_search tool with the client's search service.
func WithAPIClient(c *api.Client) Option {
	return func(o *options) error {
		o.apiClient = c
		return nil
	}
}

// WithPrompts overrides the prompt templates.
func WithPrompts(set prompts.Set) Option {
	return func(o *options) error {
		o.prompts = &set
		return nil
	}
}

// WithClock overrides the time source used for latencies.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		o.now = now
		return nil
	}
}

// Controller is the orchestration root. It owns one gateway, memory store,
// tool registry, planner and observer and moves through the lifecycle
// idle → initialized → processing → idle, with error and terminated as
// side exits.
type Controller struct {
	id       string
	cfg      Config
	gateway  *llm.Gateway
	memory   *memory.Store
	registry *tools.Registry
	planner  *planner.Planner
	executor *planner.Executor
	observer *observer.Observer
	prompts  prompts.Set
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu       sync.Mutex
	state    core.State
	lastPlan *planner.Plan
}

// New builds a controller. A provider (or gateway) is required; every other
// collaborator gets a default.
func New(cfg Config, opts ...Option) (*Controller, error) {
	o := options{toolTimeout: tools.DefaultTimeout}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	if o.provider == nil && o.gateway == nil {
		return nil, ErrMissingProvider
	}

	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MaxIterations < 3 {
		return nil, NewInvalidInputError("max iterations must allow the three planned steps", nil)
	}

	c := &Controller{
		id:     o.id,
		cfg:    cfg,
		logger: o.logger,
		tracer: otel.Tracer("kairos/agent"),
		now:    o.now,
		state:  core.StateIdle,
	}
	if c.id == "" {
		c.id = textutil.GenerateID()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.prompts = prompts.Default()
	if o.prompts != nil {
		c.prompts = *o.prompts
	}

	c.gateway = o.gateway
	if c.gateway == nil {
		gcfg := llm.DefaultConfig(cfg.Model)
		if cfg.Temperature > 0 {
			gcfg.Temperature = cfg.Temperature
		}
		c.gateway = llm.NewGateway(o.provider, gcfg)
	}

	c.memory = o.memory
	if c.memory == nil {
		c.memory = memory.New()
	}

	c.observer = o.observer
	if c.observer == nil {
		c.observer = observer.New(observer.DefaultConfig(), observer.WithLogger(c.logger))
	}

	c.registry = o.registry
	if c.registry == nil {
		topts := []tools.Option{
			tools.WithAllowList(cfg.AvailableTools...),
			tools.WithTimeout(o.toolTimeout),
			tools.WithTools(o.extraTools...),
		}
		if o.apiClient != nil {
			topts = append(topts, tools.WithSearchBackend(o.apiClient))
		}
		reg, err := tools.New(topts...)
		if err != nil {
			return nil, err
		}
		c.registry = reg
	}

	c.planner = o.planner
	if c.planner == nil {
		c.planner = planner.New(c.gateway,
			planner.WithPrompts(c.prompts),
			planner.WithResponseHook(c.onPlannerResponse),
		)
	}

	c.executor = planner.NewExecutor(c.handlers(),
		planner.WithAuditStore(o.audit),
		planner.WithAuditHook(c.onStepEvent),
		planner.WithLogger(c.logger),
	)
	return c, nil
}

// CreateAgent builds a controller from cfg with provider as model backend.
func CreateAgent(cfg Config, provider llm.Provider, opts ...Option) (*Controller, error) {
	return New(cfg, append([]Option{WithProvider(provider)}, opts...)...)
}

// ID returns the agent identifier.
func (c *Controller) ID() string { return c.id }

// Config returns the agent configuration.
func (c *Controller) Config() Config { return c.cfg }

// Gateway returns the model gateway.
func (c *Controller) Gateway() *llm.Gateway { return c.gateway }

// Memory returns the memory store.
func (c *Controller) Memory() *memory.Store { return c.memory }

// Registry returns the tool registry.
func (c *Controller) Registry() *tools.Registry { return c.registry }

// Planner returns the planner.
func (c *Controller) Planner() *planner.Planner { return c.planner }

// Observer returns the observer.
func (c *Controller) Observer() *observer.Observer { return c.observer }

// Metrics returns a snapshot of the observer metrics.
func (c *Controller) Metrics() observer.Metrics { return c.observer.Metrics() }

// Events returns the recorded events matching filter.
func (c *Controller) Events(filter observer.Filter) []observer.Event {
	return c.observer.Events(filter)
}

// LastPlan returns a copy of the plan executed by the most recent request.
func (c *Controller) LastPlan() (*planner.Plan, bool) {
	c.mu.Lock()
	plan := c.lastPlan
	c.mu.Unlock()
	if plan == nil {
		return nil, false
	}
	cp, err := plan.Clone(textutil.CopyStructure)
	if err != nil {
		return nil, false
	}
	return cp, true
}
