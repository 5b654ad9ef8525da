// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, catalog, adapter registry and transport assembly hidden
// - Narrative input resolution (sample, text, file) hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/config"
	"github.com/richinex/aecheck/llm"
	"github.com/richinex/aecheck/render"
	"github.com/richinex/aecheck/storage"
	"github.com/richinex/aecheck/stream"
	"github.com/richinex/aecheck/tui"
	"github.com/richinex/aecheck/web"
	"github.com/richinex/aecheck/workflow"
)

// Options holds CLI execution options shared by every command.
type Options struct {
	ConfigPath string
	// Transport overrides llm.transport from the settings when set.
	Transport string
}

// RunOptions selects the narrative and output of a single run.
type RunOptions struct {
	// Sample is a 1-based index into the configured samples; 0 means unset.
	Sample   int
	Text     string
	File     string
	Plain    bool
	JSON     bool
	SlowDown bool
}

// app is everything a command needs, resolved once from settings.
type app struct {
	settings *config.Settings
	catalog  *llm.Catalog
	registry *llm.Registry
	table    *workflow.Table
	defaults workflow.Config
}

func load(opts Options) (*app, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Transport != "" {
		settings.LLM.Transport = strings.ToLower(opts.Transport)
		if err := settings.Validate(); err != nil {
			return nil, err
		}
	}

	catalog := settings.Catalog()
	defaults, err := settings.WorkflowDefaults(catalog)
	if err != nil {
		return nil, err
	}
	return &app{
		settings: settings,
		catalog:  catalog,
		registry: llm.NewGatewayRegistry(settings.Gateway.BaseURL, settings.AdapterOptions()),
		table:    workflow.PharmacovigilanceTable(),
		defaults: defaults,
	}, nil
}

func (a *app) executor() *workflow.Executor {
	return workflow.NewExecutor(a.table, a.catalog, a.registry, workflow.Options{
		StepTimeout:   a.settings.Workflow.StepTimeout,
		SlowDownDelay: a.settings.Workflow.SlowDownDelay,
	})
}

// direct builds the SDK transport with keys from the environment.
func (a *app) direct() stream.Streamer {
	opts := []stream.DirectOption{stream.WithMaxTokens(a.settings.LLM.MaxTokens)}
	if t := a.settings.LLM.Temperature; t != nil {
		opts = append(opts, stream.WithTemperature(float32(*t)))
	}
	keys := func(p llm.ProviderType) string {
		key, err := config.APIKeyFor(p.String())
		if err != nil {
			klog.Warningf("%v", err)
		}
		return key
	}
	return stream.NewDirect(keys, opts...)
}

func (a *app) gateway() *stream.Gateway {
	var opts []stream.GatewayOption
	if token := a.settings.Gateway.Token; token != "" {
		opts = append(opts, stream.WithToken(token))
	}
	return stream.NewGateway(opts...)
}

// Serve runs the web front end until ctx is done.
func Serve(ctx context.Context, opts Options, addr string) error {
	a, err := load(opts)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = a.settings.Server.Addr
	}

	forms, err := storage.Open(a.settings.Storage.Driver, a.settings.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open form storage: %w", err)
	}
	defer forms.Close()

	var transport web.TransportFunc
	if a.settings.LLM.Transport == config.TransportGateway {
		transport = web.GatewayTransport(a.gateway())
	} else {
		transport = web.StaticTransport(a.direct())
	}

	srv, err := web.NewServer(web.Deps{
		Settings:  a.settings,
		Catalog:   a.catalog,
		Registry:  a.registry,
		Table:     a.table,
		Defaults:  a.defaults,
		Forms:     forms,
		Transport: transport,
	})
	if err != nil {
		return err
	}

	klog.Infof("transport %s, storage %s", a.settings.LLM.Transport, a.settings.Storage.Driver)
	return srv.Serve(ctx, addr)
}

// Run executes the workflow once for a narrative and shows the results.
func Run(ctx context.Context, opts Options, runOpts RunOptions) error {
	a, err := load(opts)
	if err != nil {
		return err
	}

	narrative, err := resolveNarrative(runOpts, a.settings.Samples)
	if err != nil {
		return err
	}

	var streamer stream.Streamer
	switch a.settings.LLM.Transport {
	case config.TransportGateway:
		if a.settings.Gateway.Token == "" {
			return fmt.Errorf("LLMFOUNDRY_TOKEN is required for the gateway transport (or use --transport direct with provider API keys)")
		}
		streamer = a.gateway()
	default:
		streamer = a.direct()
	}

	cfg := workflow.Config{Narrative: narrative, SlowDown: runOpts.SlowDown}.WithDefaults(a.defaults)
	job := workflow.Job{
		Config:   cfg,
		Store:    workflow.NewStore(),
		Streamer: streamer,
	}
	layout := render.NewLayout(a.table).WithSchema(cfg.Schema)
	exec := a.executor()

	var state workflow.State
	if runOpts.Plain || runOpts.JSON {
		state, err = runPlain(ctx, exec, job, layout, a.settings, runOpts.JSON, os.Stdout, os.Stderr)
	} else {
		state, err = tui.Run(ctx, exec, job, layout, a.settings.Workflow.RenderInterval)
	}
	if err != nil {
		return err
	}
	if state != workflow.StateCompleted {
		return fmt.Errorf("run %s", state)
	}
	return nil
}

// runPlain reports step progress on errw and prints the final view (or the
// results as JSON) on w.
func runPlain(ctx context.Context, exec *workflow.Executor, job workflow.Job, layout *render.Layout, settings *config.Settings, asJSON bool, w, errw io.Writer) (workflow.State, error) {
	var final render.View
	current := ""
	job.Renderer = render.NewRenderer(layout, render.NewThrottle(settings.Workflow.RenderInterval), func(v render.View) {
		if v.Loading && v.Current != "" && v.Current != current {
			current = v.Current
			fmt.Fprintf(errw, "→ %s\n", current)
		}
		final = v
	})

	state, err := exec.Execute(ctx, job)
	if err != nil {
		return state, err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return state, enc.Encode(job.Store.Snapshot())
	}
	fmt.Fprintln(w, render.NewTerminal(100).Render(final))
	return state, nil
}

func resolveNarrative(opts RunOptions, samples []string) (string, error) {
	set := 0
	for _, given := range []bool{opts.Sample != 0, opts.Text != "", opts.File != ""} {
		if given {
			set++
		}
	}
	if set != 1 {
		return "", fmt.Errorf("exactly one of --sample, --text or --file is required")
	}

	switch {
	case opts.Sample != 0:
		if opts.Sample < 1 || opts.Sample > len(samples) {
			return "", fmt.Errorf("--sample must be between 1 and %d", len(samples))
		}
		return samples[opts.Sample-1], nil
	case opts.File != "":
		var data []byte
		var err error
		if opts.File == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(opts.File)
		}
		if err != nil {
			return "", fmt.Errorf("failed to read narrative: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("narrative file %s is empty", opts.File)
		}
		return text, nil
	default:
		return strings.TrimSpace(opts.Text), nil
	}
}

// ListModels prints the model catalog.
func ListModels(w io.Writer, opts Options) error {
	a, err := load(opts)
	if err != nil {
		return err
	}
	for i, m := range a.catalog.All() {
		fmt.Fprintf(w, "%3d  %-10s %-30s %s\n", i, m.Provider, m.ID, m.Name)
	}
	return nil
}

// ListSteps prints the step table with each step's default model.
func ListSteps(w io.Writer, opts Options) error {
	a, err := load(opts)
	if err != nil {
		return err
	}
	for i, step := range a.table.Steps() {
		model, err := a.catalog.At(a.defaults.ModelIndex(step.Title))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d. %s [%s] model=%s\n", i+1, step.Title, step.Category, model.ID)
		if len(step.Uses) > 0 {
			fmt.Fprintf(w, "   uses: %s\n", strings.Join(step.Uses, ", "))
		}
	}
	return nil
}

// ListSamples prints the sample narratives, numbered for --sample.
func ListSamples(w io.Writer, opts Options) error {
	a, err := load(opts)
	if err != nil {
		return err
	}
	for i, s := range a.settings.Samples {
		fmt.Fprintf(w, "%2d. %s\n\n", i+1, truncateString(s, 160))
	}
	return nil
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
