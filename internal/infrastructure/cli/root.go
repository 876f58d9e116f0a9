package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/doeshing/preauth-guard/internal/app"
	"github.com/doeshing/preauth-guard/internal/infrastructure/cli/commands"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// annotationNoContainer marks commands that run without building the container.
const annotationNoContainer = "pguard/no-container"

// NewRootCmd wires the cobra root command. The container is built lazily in
// PersistentPreRunE so that --config and --timeout are honoured.
func NewRootCmd(ctx context.Context, opts Options) *cobra.Command {
	container := &app.Container{}

	var (
		configPath string
		timeout    time.Duration
		debug      bool
	)

	root := &cobra.Command{
		Use:   "pguard",
		Short: "pguard - clinical decision guardrails",
		Long: "pguard redacts PHI, verifies clinical notes against payer policy rules, " +
			"and applies hard gates to LLM critiques of prior-authorization and appeal letters.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipContainer(cmd) {
				return nil
			}
			built, err := app.BuildContainer(cmd.Context(), app.Options{
				ConfigPath: configPath,
				Verbose:    opts.Verbose || debug,
				Timeout:    timeout,
				LogWriter:  cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			*container = *built
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return container.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetContext(ctx)

	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.pguard/config.yaml or $PGUARD_CONFIG)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Override collaborator timeout (e.g. 45s)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable verbose logging")

	version := commands.NewVersionCommand()
	version.Annotations = map[string]string{annotationNoContainer: "true"}

	root.AddCommand(
		commands.NewRedactCommand(container),
		commands.NewVerifyCommand(container),
		commands.NewGuardrailCommand(container),
		commands.NewReviewCommand(container),
		commands.NewPolicyCommand(container),
		commands.NewServeCommand(container),
		commands.NewCacheCommand(container),
		commands.NewConfigCommand(container),
		commands.NewDoctorCommand(container),
		version,
	)
	return root
}

func skipContainer(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoContainer] == "true" {
			return true
		}
	}
	return cmd.Name() == "help" || cmd.Name() == "completion" || (cmd.Parent() != nil && cmd.Parent().Name() == "completion")
}
