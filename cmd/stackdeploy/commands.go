package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/artpar/stackdeploy/internal/core/descriptor"
)

// DefaultDescriptorFile is read when --file is not given.
const DefaultDescriptorFile = "stackdeploy.yml"

type rootOptions struct {
	configPath string
	file       string
	stage      string
	region     string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "stackdeploy",
		Short:         "Deploy packaged artifacts and a CloudFormation stack",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVarP(&opts.file, "file", "f", DefaultDescriptorFile, "Path to the deployment descriptor")
	cmd.PersistentFlags().StringVarP(&opts.stage, "stage", "s", "", "Target stage (overrides the descriptor)")
	cmd.PersistentFlags().StringVarP(&opts.region, "region", "r", "", "Target region (overrides the descriptor)")

	cmd.AddCommand(
		newDeployCommand(opts),
		newBuildCommand(opts),
		newHistoryCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// setup loads config and wires the app for a command.
func (o *rootOptions) setup(cmd *cobra.Command, offline, noDeploy bool) (*App, error) {
	cfg, err := LoadConfig(o.configPath)
	if err != nil {
		return nil, &AppError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
	}
	logger := SetupLogger(cfg, cmd.ErrOrStderr())

	return NewApp(cmd.Context(), cfg, AppOptions{
		DescriptorPath: o.file,
		Overrides: descriptor.Overrides{
			Stage:    o.stage,
			Region:   o.region,
			NoDeploy: noDeploy,
		},
		Offline: offline,
	}, logger)
}

// =============================================================================
// deploy
// =============================================================================

func newDeployCommand(root *rootOptions) *cobra.Command {
	var noDeploy bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build the template, upload artifacts and create or update the stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.setup(cmd, false, noDeploy)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.orchestrator.Deploy(cmd.Context(), app.descriptor)
			app.PushMetrics(cmd.Context())
			writeResult(cmd.OutOrStdout(), res)
			return err
		},
	}
	cmd.Flags().BoolVar(&noDeploy, "no-deploy", false, "Run the build phase only and skip the deploy phase")
	cmd.Example = `  # Deploy the dev stage
  stackdeploy deploy --stage dev

  # Validate and merge the template without touching the account
  stackdeploy deploy --no-deploy`
	return cmd
}

// =============================================================================
// build
// =============================================================================

func newBuildCommand(root *rootOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Validate the descriptor and print the merged template",
		Long: "Runs the build phase without AWS credentials: field checks, template " +
			"lookup and merging. Region availability is not checked.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.setup(cmd, true, true)
			if err != nil {
				return err
			}
			defer app.Close()

			run := app.orchestrator.NewRun(app.descriptor)
			if err := app.orchestrator.Build(cmd.Context(), run); err != nil {
				return err
			}
			body, err := run.Template.IndentedJSON()
			if err != nil {
				return err
			}
			body = append(body, '\n')

			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(outPath, body, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the merged template to this file instead of stdout")
	return cmd
}

// =============================================================================
// history
// =============================================================================

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deployments of the service and stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.setup(cmd, true, false)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.history == nil {
				return &AppError{Op: "history", Err: fmt.Errorf("run history is disabled (history.dsn is empty)"), ExitCode: ExitConfigError}
			}

			deploymentID := app.descriptor.DeploymentID()
			runs, err := app.orchestrator.History(cmd.Context(), deploymentID, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No deployments recorded for %s\n", deploymentID)
				return nil
			}

			writeHistoryTable(cmd.OutOrStdout(), runs, isTerminal(cmd.OutOrStdout()) && !color.NoColor)
			if dir, at, err := app.orchestrator.RollbackTarget(cmd.Context(), deploymentID); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nLast good artifacts: %s (%s)\n", dir, at.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

// =============================================================================
// version
// =============================================================================

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stackdeploy %s (built %s)\n", Version, BuildTime)
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
