// Package main provides the aecheck CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/richinex/aecheck/cli"
)

var (
	// Global flags
	configPath string
	transport  string
	verbosity  int

	klogFlags = flag.NewFlagSet("klog", flag.ExitOnError)
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	klog.InitFlags(klogFlags)
	defer klog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "aecheck",
		Short: "Cross-check adverse event narratives with several LLMs",
		Long: `Runs a clinical trial patient narrative through a fixed review pipeline:

- three independent analyses (basic, intermediate, advanced)
- judge feedback on the basic and intermediate analyses
- revisions that address the feedback
- a structured pharmacovigilance summary

Every step streams from the model selected for it and is rendered as it arrives.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return klogFlags.Set("v", strconv.Itoa(verbosity))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.aecheck/config.yaml, then ./aecheck.yaml)")
	rootCmd.PersistentFlags().StringVarP(&transport, "transport", "t", "", "LLM transport: gateway or direct (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "Log verbosity (0-4)")

	rootCmd.AddCommand(serveCmd(ctx))
	rootCmd.AddCommand(runCmd(ctx))
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(stepsCmd())
	rootCmd.AddCommand(samplesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		klog.Flush()
		os.Exit(1)
	}
}

func logToFile(path string) error {
	for name, value := range map[string]string{
		"logtostderr":     "false",
		"alsologtostderr": "false",
		"stderrthreshold": "FATAL",
		"log_file":        path,
	} {
		if err := klogFlags.Set(name, value); err != nil {
			return fmt.Errorf("configure logging: %w", err)
		}
	}
	return nil
}

func options() cli.Options {
	return cli.Options{ConfigPath: configPath, Transport: transport}
}

func serveCmd(ctx context.Context) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the browser front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(ctx, options(), addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config, :8080)")

	return cmd
}

func runCmd(ctx context.Context) *cobra.Command {
	var runOpts cli.RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze one narrative in the terminal",
		Long: `Analyze one narrative in the terminal.

Pick the narrative with exactly one of --sample, --text or --file ("-" reads stdin).
The gateway transport needs LLMFOUNDRY_TOKEN; the direct transport uses each
provider's API key (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY, ...).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !runOpts.Plain && !runOpts.JSON {
				// Log lines would tear the full-screen view.
				if err := logToFile(filepath.Join(os.TempDir(), "aecheck.log")); err != nil {
					return err
				}
			}
			return cli.Run(ctx, options(), runOpts)
		},
	}

	cmd.Flags().IntVarP(&runOpts.Sample, "sample", "s", 0, "Sample narrative number (see 'aecheck samples')")
	cmd.Flags().StringVar(&runOpts.Text, "text", "", "Narrative text")
	cmd.Flags().StringVarP(&runOpts.File, "file", "f", "", "Read the narrative from a file")
	cmd.Flags().BoolVar(&runOpts.Plain, "plain", false, "Print progress and the final results instead of the interactive view")
	cmd.Flags().BoolVar(&runOpts.JSON, "json", false, "Print the results as JSON")
	cmd.Flags().BoolVar(&runOpts.SlowDown, "slow", false, "Pause briefly after every streamed chunk")

	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the selectable models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListModels(cmd.OutOrStdout(), options())
		},
	}
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the workflow steps and their default models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListSteps(cmd.OutOrStdout(), options())
		},
	}
}

func samplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List the sample narratives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListSamples(cmd.OutOrStdout(), options())
		},
	}
}
