package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/doeshing/preauth-guard/internal/app"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/infrastructure/cli/helpers"
)

// NewVerifyCommand creates the verify command
func NewVerifyCommand(container *app.Container) *cobra.Command {
	var (
		codes       []string
		file        string
		patientName string
		format      string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a clinical note against payer policy rules",
		Long: "Extracts facts from the note once per procedure code and evaluates every active rule.\n" +
			"All rules must pass (strict AND). A code without an active policy reports MISSING_INFO.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(codes) == 0 {
				return errors.New(ErrCodeRequired)
			}
			if container.VerifyService == nil {
				return errors.New(ErrVerifyServiceUnavailable)
			}
			note, err := helpers.ReadInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			note = container.Redactor.Redact(note, patientName)

			results, err := container.VerifyService.VerifyAll(cmd.Context(), codes, note)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			if format == FormatJSON {
				if len(results) == 1 {
					return helpers.WriteJSON(cmd.OutOrStdout(), results[0])
				}
				return helpers.WriteJSON(cmd.OutOrStdout(), results)
			}
			for _, result := range results {
				renderVerification(cmd.OutOrStdout(), result)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&codes, "code", "c", nil, "Procedure code (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Clinical note file (default stdin)")
	cmd.Flags().StringVar(&patientName, "patient-name", "", "Known patient name to redact before extraction")
	cmd.Flags().StringVarP(&format, "output", "o", FormatText, "Output format (text|json)")
	return cmd
}

func renderVerification(out io.Writer, result domain.VerificationResult) {
	fmt.Fprintf(out, "Code %s: %s\n", result.Code, result.Status)
	for _, rule := range result.Results {
		mark := "PASS"
		if !rule.Met {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "  [%s] %s (%s)\n", mark, rule.RuleID, rule.Category)
		if rule.Evidence != "" {
			fmt.Fprintf(out, "         evidence: %s\n", rule.Evidence)
		}
		if rule.FailureMessage != "" {
			fmt.Fprintf(out, "         %s\n", rule.FailureMessage)
		}
	}
	for _, missing := range result.MissingInfo {
		fmt.Fprintf(out, "  missing: %s\n", missing)
	}
}
