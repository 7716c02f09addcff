// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Command orchestrator runs the agent orchestration core from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jllopis/kairos-orchestrator/pkg/config"
	"github.com/jllopis/kairos-orchestrator/pkg/telemetry"
)

const (
	serviceName = "kairos-orchestrator"
	version     = "0.1.0"
)

type globalFlags struct {
	ConfigArgs []string
	ConfigPath string
	Timeout    time.Duration
	JSON       bool
	Watch      bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		exitWithError(NewInvalidArgumentError("flags", err.Error()), false)
	}
	if global.Help || len(args) == 0 {
		printUsage(os.Stdout)
		return
	}
	if args[0] == "help" {
		printUsage(os.Stdout)
		return
	}
	if args[0] == "version" {
		fmt.Println(serviceName, version)
		return
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		exitWithError(NewConfigError(err, global.ConfigPath), global.JSON)
	}

	shutdown, err := telemetry.InitWithConfig(serviceName, version, telemetry.Config{
		Exporter:           cfg.Telemetry.Exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
	})
	if err != nil {
		exitWithError(NewConfigError(fmt.Errorf("init telemetry: %w", err), global.ConfigPath), global.JSON)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
		}
	}()

	if err := run(ctx, global, cfg, args, os.Stdin, os.Stdout, os.Stderr); err != nil {
		exitWithError(err, global.JSON)
	}
}

// run builds the application and dispatches the command in args[0].
func run(ctx context.Context, global globalFlags, cfg *config.Config, args []string, in io.Reader, out, logOut io.Writer) error {
	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	if global.Watch {
		if global.ConfigPath == "" {
			return NewInvalidArgumentError("--watch", "a config file is required to watch")
		}
		watcher, err := config.NewWatcher(global.ConfigPath, config.WithWatchLogger(a.logger))
		if err != nil {
			return NewConfigError(err, global.ConfigPath)
		}
		watcher.OnChange(a.applyReload)
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	cmd := commandContext{
		app:     a,
		json:    global.JSON,
		timeout: global.Timeout,
		in:      in,
		out:     out,
	}
	switch args[0] {
	case "run":
		return cmd.runOnce(ctx, args[1:], cfg.LLM.Stream)
	case "stream":
		return cmd.runOnce(ctx, args[1:], true)
	case "chat":
		return cmd.chat(ctx)
	case "tools":
		return cmd.listTools()
	case "metrics":
		return cmd.metrics(ctx)
	case "mcp":
		return cmd.mcp(ctx, cfg, args[1:])
	default:
		return NewInvalidArgumentError(args[0], fmt.Sprintf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{Timeout: 2 * time.Minute}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		name := strings.TrimLeft(arg, "-")
		value, hasValue := "", false
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name, value, hasValue = name[:eq], name[eq+1:], true
		}
		next := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("missing value for --%s", name)
			}
			i++
			return args[i], nil
		}

		switch name {
		case "h", "help":
			flags.Help = true
			return flags, nil, nil
		case "json":
			flags.JSON = true
		case "watch":
			flags.Watch = true
		case "config":
			v, err := next()
			if err != nil {
				return flags, nil, err
			}
			flags.ConfigPath = v
			flags.ConfigArgs = append(flags.ConfigArgs, "--config", v)
		case "set":
			v, err := next()
			if err != nil {
				return flags, nil, err
			}
			flags.ConfigArgs = append(flags.ConfigArgs, "--set", v)
		case "timeout":
			v, err := next()
			if err != nil {
				return flags, nil, err
			}
			d, err := time.ParseDuration(v)
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = d
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Kairos orchestrator

Usage:
  orchestrator [global flags] <command> [args]

Global flags:
  --config <path>      YAML configuration file
  --set key=value      Override config (repeatable)
  --timeout <dur>      Per-request timeout (default 2m)
  --watch              Hot-reload the config file
  --json               JSON output

Commands:
  run <query>          Answer one query
  stream <query>       Answer one query, streaming the response
  chat                 Interactive session (:refine <feedback>, :metrics, :tools, :quit)
  tools                List registered tools
  metrics              Answer one query per input line, then print metrics
  mcp list             List the tools of the configured MCP servers
  mcp serve            Serve the tool registry over MCP on stdio
  version
`)
}

func printJSON(w io.Writer, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\t", " ")
	return strings.TrimSpace(value)
}
