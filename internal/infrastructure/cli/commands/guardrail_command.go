package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/doeshing/preauth-guard/internal/app"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/infrastructure/cli/helpers"
)

// guardrailOutput is what both guardrail subcommands print.
type guardrailOutput struct {
	Audit   domain.AuditData `json:"audit"`
	GateLog domain.GateLog   `json:"gateLog"`
}

// NewGuardrailCommand creates the guardrail command with clinical/appeal subcommands
func NewGuardrailCommand(container *app.Container) *cobra.Command {
	guardrailCmd := &cobra.Command{
		Use:   "guardrail",
		Short: "Apply hard gates to an LLM critique (JSON)",
	}

	guardrailCmd.AddCommand(
		newGuardrailClinicalCommand(container),
		newGuardrailAppealCommand(container),
	)

	return guardrailCmd
}

// newGuardrailClinicalCommand gates a pre-authorization critique
func newGuardrailClinicalCommand(container *app.Container) *cobra.Command {
	var file, specialty string

	cmd := &cobra.Command{
		Use:   "clinical",
		Short: "Apply the mismatch and specialty gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			critique, err := readCritique(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if specialty == "" {
				specialty = container.Config.Preferences.DefaultSpecialty
			}
			audit, log := container.Engine.ApplyGuardrails(critique, specialty)
			return writeGuardrailOutput(cmd.OutOrStdout(), audit, log)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Critique JSON file (default stdin)")
	cmd.Flags().StringVarP(&specialty, "specialty", "s", "", "Requesting specialty (e.g. orthopedics, dentistry)")
	return cmd
}

// newGuardrailAppealCommand gates an appeal critique
func newGuardrailAppealCommand(container *app.Container) *cobra.Command {
	var file, denialReason string

	cmd := &cobra.Command{
		Use:   "appeal",
		Short: "Apply the appeal gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			critique, err := readCritique(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			audit, log := container.Engine.ApplyAppealGuardrails(critique, denialReason)
			return writeGuardrailOutput(cmd.OutOrStdout(), audit, log)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Critique JSON file (default stdin)")
	cmd.Flags().StringVar(&denialReason, "denial-reason", "", "Payer denial reason")
	return cmd
}

func readCritique(in io.Reader, file string) (domain.Critique, error) {
	raw, err := helpers.ReadInput(file, in)
	if err != nil {
		return domain.Critique{}, err
	}
	critique, err := domain.ParseCritique([]byte(raw))
	if err != nil {
		return domain.Critique{}, fmt.Errorf("invalid critique: %w", err)
	}
	return critique, nil
}

func writeGuardrailOutput(out io.Writer, audit domain.AuditData, log domain.GateLog) error {
	if log == nil {
		log = domain.GateLog{}
	}
	return helpers.WriteJSON(out, guardrailOutput{Audit: audit, GateLog: log})
}
