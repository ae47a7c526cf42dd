package orchestrator

import (
	"fmt"
	"time"

	"github.com/kadirpekel/orchestrator/pkg/checkpoint"
	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/retry"
)

// ExecutionStrategy selects how the Orchestrator dispatches the agents
// responsible for a stage (spec §4.8).
type ExecutionStrategy string

const (
	Sequential ExecutionStrategy = "SEQUENTIAL"
	Parallel   ExecutionStrategy = "PARALLEL"
	Adaptive   ExecutionStrategy = "ADAPTIVE"
)

// RetryConfig mirrors spec §4.8's retry_policy configuration surface,
// adding RetryOnErrors: an explicit allowlist of llm.Kind values to
// retry, intersected with each kind's own default retryability
// (spec §7's error taxonomy). A nil/empty allowlist retries every kind
// the taxonomy itself classifies as retryable.
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	RetryOnErrors   []llm.Kind
}

func (r RetryConfig) toPolicy() retry.Policy {
	allow := make(map[llm.Kind]bool, len(r.RetryOnErrors))
	for _, k := range r.RetryOnErrors {
		allow[k] = true
	}
	return retry.Policy{
		MaxRetries:      r.MaxRetries,
		InitialDelay:    r.InitialDelay,
		MaxDelay:        r.MaxDelay,
		ExponentialBase: r.ExponentialBase,
		Retryable: func(err error) bool {
			lerr, ok := err.(*llm.Error)
			if !ok {
				return false
			}
			if !lerr.IsRetryable() {
				return false
			}
			if len(allow) == 0 {
				return true
			}
			return allow[lerr.Kind]
		},
	}
}

// CachePolicy mirrors spec §4.8/§1b's cache_policy configuration surface.
type CachePolicy struct {
	Enabled        bool
	MaxCacheSize   int
	CacheDirectory string
	// RedisAddr, if set, routes Result Cache persistence through the
	// Redis backend instead of the file backend (spec §4.5, §1b).
	RedisAddr string
}

func (c *CachePolicy) setDefaults() {
	if c.MaxCacheSize == 0 {
		c.MaxCacheSize = 1000
	}
	if c.CacheDirectory == "" {
		c.CacheDirectory = "./cache"
	}
}

// Config is the Workflow Orchestrator's full configuration surface
// (spec §4.8, §6).
type Config struct {
	ProjectID       string
	Requirements    string
	OutputDirectory string

	ExecutionStrategy ExecutionStrategy
	MaxIterations     int
	SkipUIDesign      bool
	TimeoutPerStage   time.Duration
	MaxParallelAgents int

	RetryPolicy      RetryConfig
	CachePolicy      CachePolicy
	CheckpointPolicy checkpoint.Policy
}

// SetDefaults fills zero-valued fields with the engine's defaults.
func (c *Config) SetDefaults() {
	if c.ExecutionStrategy == "" {
		c.ExecutionStrategy = Sequential
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 3
	}
	if c.TimeoutPerStage == 0 {
		c.TimeoutPerStage = 5 * time.Minute
	}
	if c.MaxParallelAgents == 0 {
		c.MaxParallelAgents = 4
	}
	c.CachePolicy.setDefaults()
	c.CheckpointPolicy.SetDefaults()
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("orchestrator: project_id is required")
	}
	switch c.ExecutionStrategy {
	case Sequential, Parallel, Adaptive:
	default:
		return fmt.Errorf("orchestrator: unknown execution_strategy %q", c.ExecutionStrategy)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("orchestrator: max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.MaxParallelAgents < 1 {
		return fmt.Errorf("orchestrator: max_parallel_agents must be >= 1, got %d", c.MaxParallelAgents)
	}
	return nil
}
