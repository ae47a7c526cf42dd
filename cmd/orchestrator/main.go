// Command orchestrator is a small demonstration CLI for the Workflow
// Orchestrator library (spec §4.11). It is not part of the core's
// contract: the core has no CLI of its own (spec §6), this binary exists
// only to smoke-test the library end to end against a deterministic
// Generator.
//
// Usage:
//
//	orchestrator run demo --projects-file projects.yaml
//	orchestrator resume demo --projects-file projects.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Run a new workflow for a project."`
	Resume  ResumeCmd  `cmd:"" help:"Resume a workflow from its latest checkpoint."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("orchestrator %s\n", version)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("orchestrator"),
		kong.Description("Multi-agent software construction orchestrator - demonstration harness."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
