package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/common"
	"github.com/ternarybob/portal-smoke/internal/runner"
	"github.com/ternarybob/portal-smoke/internal/workflow"
)

type runFlags struct {
	configs  []string
	root     string
	engines  []string
	headless bool
}

func newRunCommand(app *cliApp) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the smoke scenario in every configured engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var headless *bool
			if cmd.Flags().Changed("headless") {
				headless = &flags.headless
			}
			return runSmoke(cmd, app, flags, headless)
		},
	}

	cmd.Flags().StringArrayVarP(&flags.configs, "config", "c", nil, "Configuration file (TOML or YAML, repeatable, later files override earlier ones)")
	cmd.Flags().StringVar(&flags.root, "root", "", "Directory served as the portal root (default: working directory)")
	cmd.Flags().StringArrayVar(&flags.engines, "engine", nil, "Browser engine to run: chromium, firefox or webkit (repeatable)")
	cmd.Flags().BoolVar(&flags.headless, "headless", true, "Run browsers headless")
	return cmd
}

func runSmoke(cmd *cobra.Command, app *cliApp, flags *runFlags, headless *bool) error {
	// Startup order: config files -> env -> flags -> validate -> logger -> banner
	config, err := common.LoadFromFiles(flags.configs...)
	if err != nil {
		printError(app.stderr, err)
		return NewExitError(exitUsage, err)
	}
	common.ApplyFlagOverrides(config, flags.root, flags.engines, headless)
	if err := config.Validate(); err != nil {
		printError(app.stderr, err)
		return NewExitError(exitUsage, err)
	}

	logger := common.InitLogger(config)
	if app.banner != nil {
		app.banner(common.Version)
	}

	engines, err := app.engines(config.Browser.Engines)
	if err != nil {
		printError(app.stderr, err)
		return NewExitError(exitUsage, err)
	}

	logger.Info().
		Strs("config_files", flags.configs).
		Str("root", config.Server.Root).
		Strs("engines", config.Browser.Engines).
		Bool("headless", config.Browser.Headless).
		Msg("Configuration loaded")

	stepTimeout := common.Duration(config.Timeouts.Step, workflow.DefaultStepTimeout)
	r := runner.New(runner.Options{
		Root:    config.Server.Root,
		Host:    config.Server.Host,
		Engines: engines,
		Launch: browser.LaunchOptions{
			Headless: config.Browser.Headless,
			Viewport: browser.Viewport{
				Width:  config.Browser.ViewportWidth,
				Height: config.Browser.ViewportHeight,
			},
			ActionTimeout: stepTimeout,
		},
		StepTimeout:       stepTimeout,
		NavigationTimeout: common.Duration(config.Timeouts.Navigation, workflow.DefaultNavigationTimeout),
		TimerWait:         common.Duration(config.Timeouts.TimerWait, workflow.DefaultTimerWait),
		Export: workflow.ExportOptions{
			MaxAttempts:   config.Export.MaxAttempts,
			AttemptDelay:  common.Duration(config.Export.AttemptDelay, workflow.ExportAttemptDelay),
			Overlay:       common.Duration(config.Timeouts.Overlay, workflow.DefaultOverlayTimeout),
			DownloadReady: common.Duration(config.Timeouts.DownloadReady, workflow.DefaultDownloadReady),
			Transcript:    common.Duration(config.Timeouts.Transcript, workflow.DefaultTranscript),
			StepTimeout:   stepTimeout,
		},
	}, logger)

	out := cmd.OutOrStdout()
	r.OnStart = func(engine string) { printStart(out, engine) }
	r.OnFinish = func(result runner.Result) { printResult(out, result) }

	results, err := r.Execute(cmd.Context())
	if err != nil {
		printError(app.stderr, err)
		return NewExitError(exitFailure, fmt.Errorf("smoke run failed: %w", err))
	}

	printSummary(out, results)
	return nil
}
