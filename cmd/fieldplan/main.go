package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hanpama/fieldplan"
	"github.com/hanpama/fieldplan/internal/demo"
	"github.com/hanpama/fieldplan/internal/eventbus"
	"github.com/hanpama/fieldplan/internal/executor"
	"github.com/hanpama/fieldplan/internal/otel"
	"github.com/hanpama/fieldplan/internal/planner"
	"github.com/hanpama/fieldplan/internal/server"
)

const rootUsage = `fieldplan — batch field resolution over the demo model

USAGE:
  fieldplan <command> [flags]

COMMANDS:
  serve            Run the HTTP resolve endpoint
  plan             Print the execution plan for a field request
  resolve          Resolve a field request and print the records as JSON
  fields           List the declared fields in load order
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -fixture <file>                 YAML fixture (default: embedded demo data)
  -server.addr <addr>             HTTP listen address (default: :8080)
  -server.pretty                  Pretty-print JSON responses
  -server.timeout <duration>      Per-request timeout, e.g. 10s (default: 10s)
  -server.max-body <bytes>        Maximum request body size (default: 1048576)
  -server.cors <origin>           Allowed CORS origin. Repeatable; * allows any
  -server.option-header <name>    Copy HTTP header into resolve options. Repeatable
  -exec.parallelism N             Records computed concurrently per node (default: 1)
  -exec.drop-failed               Drop records holding a failure value
  -otel.endpoint <addr>           OTLP collector endpoint
  -otel.service <name>            OpenTelemetry service name (default: fieldplan)
  -log.level <level>              debug, info, warn or error (default: info)
`

const planUsage = `plan FLAGS:
  -fixture <file>     YAML fixture (default: embedded demo data)
  -fields <request>   Fields in selection syntax, e.g. "{ name posts(limit: 2) }" (required)
  -variables <json>   Variables referenced by the request
  -internal           Allow internal fields in the request
`

const resolveUsage = `resolve FLAGS:
  -fixture <file>     YAML fixture (default: embedded demo data)
  -fields <request>   Fields in selection syntax (required)
  -variables <json>   Variables referenced by the request
  -options <json>     Options passed to the enumerator and loaders
  -internal           Allow internal fields in the request
  -exec.parallelism N Records computed concurrently per node (default: 1)
  -exec.drop-failed   Drop records holding a failure value
  -pretty             Pretty-print the JSON output
  -log.level <level>  debug, info, warn or error (default: warn)
`

const fieldsUsage = `fields FLAGS:
  -fixture <file>     YAML fixture (default: embedded demo data)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("fieldplan", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "plan":
		return cmdPlan(cmdArgs, stdout, stderr)
	case "resolve":
		return cmdResolve(cmdArgs, stdout, stderr)
	case "fields":
		return cmdFields(cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "plan":
		fmt.Fprint(stdout, planUsage)
	case "resolve":
		fmt.Fprint(stdout, resolveUsage)
	case "fields":
		fmt.Fprint(stdout, fieldsUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// jsonFlag decodes a JSON object argument.
type jsonFlag map[string]any

func (j *jsonFlag) String() string { return "" }

func (j *jsonFlag) Set(v string) error {
	m := map[string]any{}
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		return fmt.Errorf("invalid JSON object: %w", err)
	}
	*j = m
	return nil
}

func setupLogging(level string, stderr io.Writer) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid -log.level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func loadStore(fixture string) (*demo.Store, error) {
	if fixture == "" {
		return demo.Default(), nil
	}
	s, err := demo.LoadFile(fixture)
	if err != nil {
		return nil, fmt.Errorf("load fixture: %w", err)
	}
	return s, nil
}

type modelFlags struct {
	fixture     string
	internal    bool
	parallelism int
	dropFailed  bool
}

func (f *modelFlags) model() (*fieldplan.Model, error) {
	store, err := loadStore(f.fixture)
	if err != nil {
		return nil, err
	}
	var opts []fieldplan.Option
	if f.internal {
		opts = append(opts, fieldplan.WithPlannerOptions(planner.WithInternal()))
	}
	var eopts []executor.Option
	if f.parallelism > 1 {
		eopts = append(eopts, executor.WithParallelism(f.parallelism))
	}
	if f.dropFailed {
		eopts = append(eopts, executor.WithDropFailed())
	}
	opts = append(opts, fieldplan.WithExecutorOptions(eopts...))
	m, err := fieldplan.NewModel(demo.Units(store), opts...)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	return m, nil
}

func cmdServe(args []string, stderr io.Writer) error {
	mf := modelFlags{parallelism: 1}
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	maxBody := int64(1 << 20)
	otelEndpoint := ""
	otelService := "fieldplan"
	logLevel := "info"
	var corsOrigins, optionHeaders stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&mf.fixture, "fixture", mf.fixture, "YAML fixture")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", timeout, "Per-request timeout")
	fs.Int64Var(&maxBody, "server.max-body", maxBody, "Maximum request body size")
	fs.Var(&corsOrigins, "server.cors", "Allowed CORS origin")
	fs.Var(&optionHeaders, "server.option-header", "Copy HTTP header into resolve options")
	fs.IntVar(&mf.parallelism, "exec.parallelism", mf.parallelism, "Records computed concurrently per node")
	fs.BoolVar(&mf.dropFailed, "exec.drop-failed", mf.dropFailed, "Drop records holding a failure value")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	fs.StringVar(&logLevel, "log.level", logLevel, "Log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	if err := setupLogging(logLevel, stderr); err != nil {
		return err
	}

	m, err := mf.model()
	if err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var sopts []server.Option
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if timeout > 0 {
		sopts = append(sopts, server.WithTimeout(timeout))
	}
	if maxBody > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(maxBody))
	}
	if len(corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(corsOrigins...))
	}
	if len(optionHeaders) > 0 {
		sopts = append(sopts, server.WithOptionHeaders(optionHeaders...))
	}

	mux := http.NewServeMux()
	mux.Handle("/resolve", server.New(m, sopts...))

	slog.Info("fieldplan server listening", "addr", addr, "fields", len(m.Fields()))
	return http.ListenAndServe(addr, mux)
}

func cmdPlan(args []string, stdout, stderr io.Writer) error {
	var mf modelFlags
	fields := ""
	var variables jsonFlag
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&mf.fixture, "fixture", mf.fixture, "YAML fixture")
	fs.StringVar(&fields, "fields", fields, "Fields in selection syntax")
	fs.Var(&variables, "variables", "Variables referenced by the request")
	fs.BoolVar(&mf.internal, "internal", mf.internal, "Allow internal fields")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, planUsage)
		return err
	}
	if strings.TrimSpace(fields) == "" {
		fmt.Fprint(stderr, planUsage)
		return fmt.Errorf("-fields is required")
	}

	m, err := mf.model()
	if err != nil {
		return err
	}
	set, err := fieldplan.ParseQuery(fieldplan.Query{Fields: fields, Variables: variables})
	if err != nil {
		return err
	}
	p, err := m.Plan(context.Background(), set)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, p.String())
	return nil
}

func cmdResolve(args []string, stdout, stderr io.Writer) error {
	mf := modelFlags{parallelism: 1}
	fields := ""
	pretty := false
	logLevel := "warn"
	var variables, options jsonFlag
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&mf.fixture, "fixture", mf.fixture, "YAML fixture")
	fs.StringVar(&fields, "fields", fields, "Fields in selection syntax")
	fs.Var(&variables, "variables", "Variables referenced by the request")
	fs.Var(&options, "options", "Options passed to the enumerator and loaders")
	fs.BoolVar(&mf.internal, "internal", mf.internal, "Allow internal fields")
	fs.IntVar(&mf.parallelism, "exec.parallelism", mf.parallelism, "Records computed concurrently per node")
	fs.BoolVar(&mf.dropFailed, "exec.drop-failed", mf.dropFailed, "Drop records holding a failure value")
	fs.BoolVar(&pretty, "pretty", pretty, "Pretty-print the JSON output")
	fs.StringVar(&logLevel, "log.level", logLevel, "Log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, resolveUsage)
		return err
	}
	if strings.TrimSpace(fields) == "" {
		fmt.Fprint(stderr, resolveUsage)
		return fmt.Errorf("-fields is required")
	}
	if err := setupLogging(logLevel, stderr); err != nil {
		return err
	}

	m, err := mf.model()
	if err != nil {
		return err
	}
	set, records, err := m.ResolveQuery(context.Background(), fieldplan.Query{Fields: fields, Variables: variables}, options)
	if err != nil {
		return err
	}

	names := set.Fields()
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		row := make(map[string]any, len(names))
		for _, name := range names {
			v, _ := r.Get(name)
			row[name] = v
		}
		rows[i] = row
	}
	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rows)
}

func cmdFields(args []string, stdout, stderr io.Writer) error {
	var mf modelFlags
	fs := flag.NewFlagSet("fields", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&mf.fixture, "fixture", mf.fixture, "YAML fixture")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, fieldsUsage)
		return err
	}
	m, err := mf.model()
	if err != nil {
		return err
	}
	for _, n := range m.Sorted().Nodes() {
		var deps []string
		for _, e := range n.Edges {
			deps = append(deps, e.Target)
		}
		line := fmt.Sprintf("%-12s %-9s %-8s %s", n.Name, strings.ToLower(n.Kind.String()), strings.ToLower(n.Visibility.String()), n.Unit)
		if len(deps) > 0 {
			line += " <- " + strings.Join(deps, ", ")
		}
		fmt.Fprintln(stdout, strings.TrimRight(line, " "))
	}
	return nil
}
