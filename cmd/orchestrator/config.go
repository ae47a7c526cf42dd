package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/orchestrator/pkg/checkpoint"
	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/orchestrator"
)

// projectsFile is the on-disk shape of the --projects-file YAML document:
// one entry per project, carrying both the ProjectDescriptor fields a
// ProjectRepository resolves and the orchestrator tuning knobs spec §4.8
// exposes as Config. Splitting these between two runtime types
// (ProjectDescriptor, Config) but one file format mirrors how hector's
// own zero-config flattens several runtime structs into one YAML
// document (cmd/hector/main.go's config_loader.go).
type projectsFile struct {
	Projects []projectEntry `yaml:"projects"`
}

type projectEntry struct {
	ProjectID       string         `yaml:"project_id"`
	Name            string         `yaml:"name"`
	Requirements    string         `yaml:"requirements"`
	OutputDirectory string         `yaml:"output_directory"`
	LLM             map[string]any `yaml:"llm"`

	ExecutionStrategy string        `yaml:"execution_strategy"`
	MaxIterations     int           `yaml:"max_iterations"`
	SkipUIDesign      bool          `yaml:"skip_ui_design"`
	TimeoutPerStage   time.Duration `yaml:"timeout_per_stage"`
	MaxParallelAgents int           `yaml:"max_parallel_agents"`

	RetryPolicy      retryPolicyEntry      `yaml:"retry_policy"`
	CachePolicy      cachePolicyEntry      `yaml:"cache_policy"`
	CheckpointPolicy checkpointPolicyEntry `yaml:"checkpoint_policy"`
}

type retryPolicyEntry struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	ExponentialBase float64       `yaml:"exponential_base"`
	RetryOnErrors   []string      `yaml:"retry_on_errors"`
}

type cachePolicyEntry struct {
	Enabled        bool   `yaml:"enabled"`
	MaxCacheSize   int    `yaml:"max_cache_size"`
	CacheDirectory string `yaml:"cache_directory"`
	RedisAddr      string `yaml:"redis_addr"`
}

type checkpointPolicyEntry struct {
	Enabled             bool   `yaml:"enabled"`
	CheckpointDirectory string `yaml:"checkpoint_directory"`
	RetainLast          int    `yaml:"retain_last"`
}

// loadProjectsFile reads and parses a projects YAML document, returning a
// ProjectRepository seeded from it plus each project's orchestrator.Config
// (still missing ProjectID/Requirements/OutputDirectory, filled in from the
// resolved ProjectDescriptor once a run actually picks a project id).
func loadProjectsFile(path string) (*orchestrator.StaticRepository, map[string]orchestrator.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading projects file: %w", err)
	}

	var doc projectsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing projects file: %w", err)
	}

	descriptors := make([]orchestrator.ProjectDescriptor, 0, len(doc.Projects))
	configs := make(map[string]orchestrator.Config, len(doc.Projects))
	for _, p := range doc.Projects {
		if p.ProjectID == "" {
			return nil, nil, fmt.Errorf("projects file: entry %q is missing project_id", p.Name)
		}
		descriptors = append(descriptors, orchestrator.ProjectDescriptor{
			ID:              p.ProjectID,
			Name:            p.Name,
			Requirements:    p.Requirements,
			LLMConfig:       p.LLM,
			OutputDirectory: p.OutputDirectory,
		})
		configs[p.ProjectID] = entryToConfig(p)
	}

	return orchestrator.NewStaticRepository(descriptors...), configs, nil
}

func entryToConfig(p projectEntry) orchestrator.Config {
	retryOn := make([]llm.Kind, 0, len(p.RetryPolicy.RetryOnErrors))
	for _, k := range p.RetryPolicy.RetryOnErrors {
		retryOn = append(retryOn, llm.Kind(k))
	}

	return orchestrator.Config{
		ExecutionStrategy: orchestrator.ExecutionStrategy(p.ExecutionStrategy),
		MaxIterations:     p.MaxIterations,
		SkipUIDesign:      p.SkipUIDesign,
		TimeoutPerStage:   p.TimeoutPerStage,
		MaxParallelAgents: p.MaxParallelAgents,
		RetryPolicy: orchestrator.RetryConfig{
			MaxRetries:      p.RetryPolicy.MaxRetries,
			InitialDelay:    p.RetryPolicy.InitialDelay,
			MaxDelay:        p.RetryPolicy.MaxDelay,
			ExponentialBase: p.RetryPolicy.ExponentialBase,
			RetryOnErrors:   retryOn,
		},
		CachePolicy: orchestrator.CachePolicy{
			Enabled:        p.CachePolicy.Enabled,
			MaxCacheSize:   p.CachePolicy.MaxCacheSize,
			CacheDirectory: p.CachePolicy.CacheDirectory,
			RedisAddr:      p.CachePolicy.RedisAddr,
		},
		CheckpointPolicy: checkpoint.Policy{
			Enabled:             p.CheckpointPolicy.Enabled,
			CheckpointDirectory: p.CheckpointPolicy.CheckpointDirectory,
			RetainLast:          p.CheckpointPolicy.RetainLast,
		},
	}
}
