package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/preauth-guard/internal/app"
	"github.com/doeshing/preauth-guard/internal/domain"
	"github.com/doeshing/preauth-guard/internal/infrastructure/cli/helpers"
)

// NewReviewCommand creates the review command
func NewReviewCommand(container *app.Container) *cobra.Command {
	var (
		noteFile     string
		draftFile    string
		patientName  string
		specialty    string
		code         string
		mode         string
		denialReason string
		model        string
	)

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Critique a draft letter end to end and print the gated result",
		Long: "Redacts the note and draft, verifies the note when --code is given, asks the\n" +
			"configured model for a critique, and applies the clinical or appeal guardrails.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.ReviewService == nil {
				return errors.New(ErrReviewServiceUnavailable)
			}
			if strings.TrimSpace(draftFile) == "" {
				return errors.New(ErrDraftRequired)
			}
			draft, err := helpers.ReadInput(draftFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			note, err := helpers.ReadOptionalInput(noteFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if specialty == "" {
				specialty = container.Config.Preferences.DefaultSpecialty
			}

			resp, err := container.ReviewService.Run(cmd.Context(), domain.ReviewRequest{
				NoteText:      note,
				DraftLetter:   draft,
				PatientName:   patientName,
				Specialty:     specialty,
				ProcedureCode: code,
				Mode:          domain.ReviewMode(mode),
				DenialReason:  denialReason,
				ModelOverride: model,
			})
			if err != nil {
				return fmt.Errorf("review failed: %w", err)
			}
			return helpers.WriteJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVarP(&draftFile, "draft", "d", "", "Draft letter file (- for stdin)")
	cmd.Flags().StringVarP(&noteFile, "note", "n", "", "Clinical note file")
	cmd.Flags().StringVar(&patientName, "patient-name", "", "Known patient name to redact first")
	cmd.Flags().StringVarP(&specialty, "specialty", "s", "", "Requesting specialty")
	cmd.Flags().StringVarP(&code, "code", "c", "", "Procedure code to verify the note against")
	cmd.Flags().StringVar(&mode, "mode", string(domain.ReviewPreauth), "Review mode (preauth|appeal)")
	cmd.Flags().StringVar(&denialReason, "denial-reason", "", "Payer denial reason (appeal mode)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Override model name (default from config)")
	return cmd
}
