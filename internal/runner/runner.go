// Package runner coordinates a smoke run: it serves the portal, drives each configured
// browser engine through the wizard and decides pass or fail from assertions and the
// runtime signals the page produced.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/common"
	"github.com/ternarybob/portal-smoke/internal/models"
	"github.com/ternarybob/portal-smoke/internal/server"
	"github.com/ternarybob/portal-smoke/internal/signals"
	"github.com/ternarybob/portal-smoke/internal/workflow"
)

// EntryPage is the path navigated to on the asset server.
const EntryPage = "/index.html"

// ShutdownTimeout bounds the asset server shutdown after the last engine.
const ShutdownTimeout = 5 * time.Second

// Options configures a run.
type Options struct {
	Root        string
	Host        string
	Engines     []browser.Engine
	Launch      browser.LaunchOptions
	StepTimeout time.Duration
	// NavigationTimeout bounds the initial navigation and the reload check.
	NavigationTimeout time.Duration
	TimerWait         time.Duration
	Export            workflow.ExportOptions
	Candidate         models.Candidate
}

// Result is the outcome of one engine run.
type Result struct {
	Engine         string
	RunID          string
	Duration       time.Duration
	UnitID         string
	ExportAttempts int
	Expected       int
	Err            error
}

// Passed reports whether the engine run succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Runner executes the scenario against each engine in turn.
type Runner struct {
	opts   Options
	logger arbor.ILogger

	// OnStart and OnFinish, when set, are called around each engine run.
	OnStart  func(engine string)
	OnFinish func(result Result)
}

// New creates a runner. A zero Candidate uses models.DefaultCandidate and a nil logger
// the global logger.
func New(opts Options, logger arbor.ILogger) *Runner {
	if logger == nil {
		logger = common.GetLogger()
	}
	if opts.Candidate.FullName == "" {
		opts.Candidate = models.DefaultCandidate()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = workflow.DefaultNavigationTimeout
	}
	return &Runner{opts: opts, logger: logger}
}

// EngineNames returns the configured engine names in run order.
func (r *Runner) EngineNames() []string {
	names := make([]string, len(r.opts.Engines))
	for i, e := range r.opts.Engines {
		names[i] = e.Name()
	}
	return names
}

// Execute starts the asset server, runs every engine and stops the server on every exit path.
func (r *Runner) Execute(ctx context.Context) ([]Result, error) {
	srv, err := server.New(r.opts.Root, r.opts.Host, r.logger)
	if err != nil {
		return nil, err
	}
	baseURL, err := srv.Start()
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn().Err(err).Msg("Asset server shutdown failed")
		}
	}()

	return r.RunAll(ctx, baseURL)
}

// RunAll runs the engines sequentially against baseURL and stops at the first failure.
// The results of every engine attempted so far are returned alongside the error.
func (r *Runner) RunAll(ctx context.Context, baseURL string) ([]Result, error) {
	if len(r.opts.Engines) == 0 {
		return nil, fmt.Errorf("no browser engines configured")
	}

	results := make([]Result, 0, len(r.opts.Engines))
	for _, engine := range r.opts.Engines {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := r.RunEngine(ctx, engine, baseURL)
		results = append(results, result)
		if result.Err != nil {
			// A signals-only failure already names its engine.
			if _, ok := result.Err.(*signals.UnexpectedSignalsError); ok {
				return results, result.Err
			}
			return results, fmt.Errorf("%s: %w", result.Engine, result.Err)
		}
	}

	r.logger.Info().
		Str("engines", strings.Join(r.EngineNames(), ", ")).
		Msg("All engines passed")
	return results, nil
}

// RunEngine performs the full scenario on one engine.
func (r *Runner) RunEngine(ctx context.Context, engine browser.Engine, baseURL string) Result {
	result := Result{Engine: engine.Name(), RunID: uuid.New().String()}
	logger := r.logger.WithCorrelationId(result.RunID)

	if r.OnStart != nil {
		r.OnStart(result.Engine)
	}

	start := time.Now()
	result.Err = r.runEngine(ctx, engine, baseURL, logger, &result)
	result.Duration = time.Since(start)

	if result.Err != nil {
		logger.Error().
			Str("engine", result.Engine).
			Dur("duration", result.Duration).
			Err(result.Err).
			Msg("Engine run failed")
	} else {
		logger.Info().
			Str("engine", result.Engine).
			Str("unit_id", result.UnitID).
			Int("tolerated_signals", result.Expected).
			Dur("duration", result.Duration).
			Msg("Engine run passed")
	}

	if r.OnFinish != nil {
		r.OnFinish(result)
	}
	return result
}

// runEngine classifies the captured signals on every exit path once the page exists, so
// unexpected runtime errors are reported alongside a functional failure.
func (r *Runner) runEngine(ctx context.Context, engine browser.Engine, baseURL string, logger arbor.ILogger, result *Result) (err error) {
	logger.Info().Str("engine", engine.Name()).Msg("Launching browser")

	session, err := engine.Launch(ctx, r.opts.Launch)
	if err != nil {
		return fmt.Errorf("failed to launch %s: %w", engine.Name(), err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Str("engine", engine.Name()).Msg("Browser teardown failed")
		}
	}()

	page := session.Page()
	captured := signals.NewLog()
	page.Listen(captured)
	listening := time.Now()
	defer func() {
		sigErr := r.classify(engine.Name(), captured, listening, logger, result)
		switch {
		case sigErr == nil:
		case err == nil:
			err = sigErr
		default:
			err = errors.Join(err, sigErr)
		}
	}()

	if err := page.Navigate(strings.TrimSuffix(baseURL, "/")+EntryPage, r.opts.NavigationTimeout); err != nil {
		return err
	}

	driver := workflow.NewDriver(page, r.opts.Candidate, r.opts.StepTimeout, logger)
	err = driver.Run(workflow.Sections())
	result.UnitID = driver.UnitID()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	verifier := workflow.NewStateVerifier(page, r.opts.Candidate.FullName, r.opts.TimerWait, r.opts.StepTimeout, logger)
	verifier.NavigationTimeout = r.opts.NavigationTimeout
	if err := verifier.Verify(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	exportOpts := r.opts.Export
	if exportOpts.StepTimeout <= 0 {
		exportOpts.StepTimeout = r.opts.StepTimeout
	}
	exporter := workflow.NewExportController(page, r.opts.Candidate, exportOpts, logger)
	_, err = exporter.Run()
	result.ExportAttempts = exporter.Attempts()
	return err
}

func (r *Runner) classify(engine string, captured *signals.Log, since time.Time, logger arbor.ILogger, result *Result) error {
	classification := signals.Classify(captured.Signals())
	result.Expected = len(classification.Expected)
	for _, s := range classification.Expected {
		logger.Debug().
			Str("signal", s.String()).
			Dur("after", s.At.Sub(since)).
			Msg("Tolerated known flaky signal")
	}
	for _, s := range classification.Unexpected {
		logger.Warn().
			Str("signal", s.String()).
			Dur("after", s.At.Sub(since)).
			Msg("Unexpected runtime signal")
	}
	return classification.Err(engine)
}
