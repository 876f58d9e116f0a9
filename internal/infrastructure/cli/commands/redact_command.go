package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/doeshing/preauth-guard/internal/app"
	"github.com/doeshing/preauth-guard/internal/infrastructure/cli/helpers"
)

// NewRedactCommand creates the redact command
func NewRedactCommand(container *app.Container) *cobra.Command {
	var (
		file        string
		patientName string
	)

	cmd := &cobra.Command{
		Use:   "redact",
		Short: "Replace PHI in text with placeholder tokens",
		Long:  "Reads text from --file (or stdin) and prints it with names, dates, emails, phone numbers and IDs replaced.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRedact(cmd.InOrStdin(), cmd.OutOrStdout(), container, file, patientName)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Input file (default stdin)")
	cmd.Flags().StringVar(&patientName, "patient-name", "", "Known patient name to redact first")
	return cmd
}

func runRedact(in io.Reader, out io.Writer, container *app.Container, file, patientName string) error {
	text, err := helpers.ReadInput(file, in)
	if err != nil {
		return err
	}
	fmt.Fprint(out, container.Redactor.Redact(text, patientName))
	return nil
}
