// Command portal-smoke drives real browsers through the candidate portal wizard and fails
// on any assertion mismatch or unexpected runtime error.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/portal-smoke/internal/browser"
	"github.com/ternarybob/portal-smoke/internal/common"
)

// cliApp holds the process-level dependencies of the commands
type cliApp struct {
	stdout io.Writer
	stderr io.Writer
	// engines resolves configured engine names
	engines func(names []string) ([]browser.Engine, error)
	// banner is printed before a run
	banner func(version string)
}

func newApp() *cliApp {
	return &cliApp{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		engines: browser.Lookup,
		banner:  common.PrintBanner,
	}
}

func newRootCommand(app *cliApp) *cobra.Command {
	runCmd := newRunCommand(app)

	root := &cobra.Command{
		Use:           "portal-smoke",
		Short:         "Runtime smoke tests for the candidate portal",
		Long:          "Serves the portal from a local directory and drives it end to end in each configured browser engine.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          runCmd.RunE,
	}
	root.Flags().AddFlagSet(runCmd.Flags())
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	root.AddCommand(runCmd, newVersionCommand())
	return root
}

// execute runs the CLI and returns the process exit code
func execute(ctx context.Context, app *cliApp, args []string) int {
	root := newRootCommand(app)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return code
		}
		printError(app.stderr, err)
		return exitUsage
	}
	return 0
}

func main() {
	defer common.RecoverWithCrashFile()

	common.LoadVersionFromFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newApp(), os.Args[1:])
	stop()
	os.Exit(code)
}
