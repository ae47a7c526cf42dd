package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/metrics"
	"github.com/kadirpekel/orchestrator/pkg/orchestrator"
	"github.com/kadirpekel/orchestrator/pkg/progress"
)

// RunCmd starts a fresh workflow for a project drawn from --projects-file.
type RunCmd struct {
	Project      string `arg:"" help:"Project id to load from --projects-file."`
	ProjectsFile string `name:"projects-file" required:"" type:"path" help:"YAML file describing projects and their orchestrator tuning."`
	Echo         bool   `help:"Use the EchoGenerator instead of the deterministic stub (manual smoke-testing only)."`
	Observe      bool   `help:"Expose Prometheus metrics on --metrics-addr."`
	MetricsAddr  string `name:"metrics-addr" default:":9090" help:"Address to serve /metrics on when --observe is set."`
}

func (c *RunCmd) Run(cli *CLI) error {
	return runProject(cli, c.ProjectsFile, c.Project, c.Echo, c.Observe, c.MetricsAddr, false)
}

// ResumeCmd resumes a previously interrupted workflow from its latest
// checkpoint (spec §8, S5). The project's checkpoint_policy must already
// point at the directory the earlier run wrote to.
type ResumeCmd struct {
	Project      string `arg:"" help:"Project id to load from --projects-file."`
	ProjectsFile string `name:"projects-file" required:"" type:"path" help:"YAML file describing projects and their orchestrator tuning."`
	Echo         bool   `help:"Use the EchoGenerator instead of the deterministic stub (manual smoke-testing only)."`
	Observe      bool   `help:"Expose Prometheus metrics on --metrics-addr."`
	MetricsAddr  string `name:"metrics-addr" default:":9090" help:"Address to serve /metrics on when --observe is set."`
}

func (c *ResumeCmd) Run(cli *CLI) error {
	return runProject(cli, c.ProjectsFile, c.Project, c.Echo, c.Observe, c.MetricsAddr, true)
}

func runProject(cli *CLI, projectsFilePath, projectID string, echo, observe bool, metricsAddr string, resume bool) error {
	log, err := newLogger(cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}

	repo, configs, err := loadProjectsFile(projectsFilePath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	descriptor, err := repo.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	cfg, ok := configs[projectID]
	if !ok {
		return fmt.Errorf("orchestrator: project %q has no tuning entry", projectID)
	}
	cfg.ProjectID = descriptor.ID
	cfg.Requirements = descriptor.Requirements
	cfg.OutputDirectory = descriptor.OutputDirectory

	var gen llm.Generator
	if echo {
		gen = llm.EchoGenerator{}
	} else {
		gen = llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithEventSink(progress.NewLoggingSink(log)),
	}

	var metricsServer *http.Server
	if observe {
		reg := prometheus.NewRegistry()
		sink, err := metrics.NewPrometheus(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		opts = append(opts, orchestrator.WithMetricsSink(sink))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
		log.Info("metrics server listening", "addr", metricsAddr)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	o, err := orchestrator.New(cfg, gen, opts...)
	if err != nil {
		return fmt.Errorf("constructing orchestrator: %w", err)
	}
	defer o.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal, canceling workflow")
		o.Cancel()
	}()

	var result *orchestrator.Result
	if resume {
		result, err = o.Resume(ctx)
	} else {
		result, err = o.Run(ctx)
	}
	if err != nil {
		return fmt.Errorf("running workflow: %w", err)
	}

	printSummary(result)
	if result.Outcome != progress.OutcomeCompleted {
		return fmt.Errorf("orchestrator: workflow ended with outcome %s", result.Outcome)
	}
	return nil
}

func printSummary(result *orchestrator.Result) {
	fmt.Printf("\nWorkflow %s: %s\n", result.State.ID, result.Outcome)
	fmt.Printf("  final stage:     %s\n", result.State.CurrentStage)
	fmt.Printf("  total tokens:    %d\n", result.Summary.TotalTokens)
	fmt.Printf("  cache hit rate:  %.1f%%\n", result.Summary.CacheHitRate*100)
	if len(result.Summary.StageDurations) > 0 {
		fmt.Println("  stage durations:")
		for s, d := range result.Summary.StageDurations {
			fmt.Printf("    - %-25s %s\n", s, d.Round(time.Millisecond))
		}
	}
	for _, e := range result.Summary.Errors {
		fmt.Printf("  error: [%s] %s: %s\n", e.Stage, e.Kind, e.Message)
	}
}
