package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/preauth-guard/internal/app"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/infrastructure/store"
)

// NewPolicyCommand creates the policy command with all subcommands
func NewPolicyCommand(container *app.Container) *cobra.Command {
	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage payer coverage policies",
	}

	policyCmd.AddCommand(
		newPolicyImportCommand(container),
		newPolicyListCommand(container),
		newPolicyShowCommand(container),
	)

	return policyCmd
}

// newPolicyImportCommand creates the 'policy import' subcommand
func newPolicyImportCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>...",
		Short: "Import policies from YAML files (replaces existing codes)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Store == nil {
				return errors.New(ErrPolicyStoreUnavailable)
			}
			total := 0
			for _, path := range args {
				policies, err := store.LoadPolicyFile(path)
				if err != nil {
					return err
				}
				n, err := store.Import(cmd.Context(), container.Store, policies)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d policies\n", path, n)
				total += n
			}
			container.Logger.Info("policies imported", map[string]interface{}{"count": total, "files": len(args)})
			return nil
		},
	}
}

// newPolicyListCommand creates the 'policy list' subcommand
func newPolicyListCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Store == nil {
				return errors.New(ErrPolicyStoreUnavailable)
			}
			policies, err := container.Store.ListPolicies(cmd.Context())
			if err != nil {
				return err
			}
			return renderPolicyList(cmd.OutOrStdout(), policies)
		},
	}
}

// newPolicyShowCommand creates the 'policy show' subcommand
func newPolicyShowCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Print a policy and its rules as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Store == nil {
				return errors.New(ErrPolicyStoreUnavailable)
			}
			policy, ok, err := container.Store.Policy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no policy for code %s", args[0])
			}
			data, err := yaml.Marshal(policy)
			if err != nil {
				return fmt.Errorf("failed to marshal policy: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func renderPolicyList(out io.Writer, policies []domain.Policy) error {
	if len(policies) == 0 {
		fmt.Fprintln(out, MsgNoPolicies)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tACTIVE\tRULES\tPAYER\tTITLE")
	for _, p := range policies {
		fmt.Fprintf(w, "%s\t%t\t%d\t%s\t%s\n", p.Code, p.Active, len(p.Rules), p.Payer, p.Title)
	}
	return w.Flush()
}
