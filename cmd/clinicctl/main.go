// Command clinicctl is an operator CLI for a running clinicmail server.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	clinicmail "github.com/clinicmail/clinicmail/sdk/go"
	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Manage patients and send notifications through a clinicmail server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("CLINICMAIL_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:3000"
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "clinicmail server URL (env CLINICMAIL_URL)")

	patients := &cobra.Command{
		Use:   "patients",
		Short: "Patient records",
	}
	patients.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered patients",
			Args:  cobra.NoArgs,
			RunE:  runPatientsList,
		},
		&cobra.Command{
			Use:   "attach [patient-id] [file]",
			Short: "Upload a file sent with every later message to the patient",
			Args:  cobra.ExactArgs(2),
			RunE:  runPatientsAttach,
		},
	)

	root.AddCommand(
		patients,
		&cobra.Command{
			Use:   "send [patient-id] [template]",
			Short: "Send a template to one patient",
			Args:  cobra.ExactArgs(2),
			RunE:  runSend,
		},
		&cobra.Command{
			Use:   "send-all [template]",
			Short: "Send a template to every patient",
			Args:  cobra.ExactArgs(1),
			RunE:  runSendAll,
		},
		&cobra.Command{
			Use:   "templates",
			Short: "List available templates",
			Args:  cobra.NoArgs,
			RunE:  runTemplates,
		},
		&cobra.Command{
			Use:   "health",
			Short: "Show server health",
			Args:  cobra.NoArgs,
			RunE:  runHealth,
		},
	)
	return root
}

func client() *clinicmail.Client {
	return clinicmail.NewClient(clinicmail.Config{BaseURL: serverURL})
}

func runPatientsList(cmd *cobra.Command, args []string) error {
	patients, err := client().ListPatients(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tBIRTH DATE\tSPECIALTIES")
	for _, p := range patients {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Email, p.BirthDate, len(p.Specialties))
	}
	return w.Flush()
}

func runPatientsAttach(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := client().UploadAttachment(cmd.Context(), args[0], filepath.Base(args[1]), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", res.Path)
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	res, err := client().SendMessage(cmd.Context(), args[0], args[1])
	if err != nil {
		return explain(err)
	}
	if !res.Success {
		return fmt.Errorf("send failed: %s", res.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}

func runSendAll(cmd *cobra.Command, args []string) error {
	summary, err := client().SendAll(cmd.Context(), args[0])
	if err != nil {
		return explain(err)
	}

	out := cmd.OutOrStdout()
	for _, o := range summary.Outcomes {
		status := "ok"
		if !o.Success {
			status = "FAILED"
		}
		fmt.Fprintf(out, "%-6s %s\n", status, o.Email)
	}
	fmt.Fprintf(out, "%d sent, %d failed, %d total\n", summary.SucceededCount, summary.FailedCount, summary.Total)
	if summary.FailedCount > 0 {
		return fmt.Errorf("%d of %d messages failed", summary.FailedCount, summary.Total)
	}
	return nil
}

func runTemplates(cmd *cobra.Command, args []string) error {
	templates, err := client().ListTemplates(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT")
	for _, t := range templates {
		fmt.Fprintf(w, "%s\t%s\n", t.ID, t.Subject)
	}
	return w.Flush()
}

func runHealth(cmd *cobra.Command, args []string) error {
	h, err := client().Health(cmd.Context())
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), h)
}

// explain rewrites the API errors an operator is expected to hit.
func explain(err error) error {
	switch {
	case clinicmail.IsRateLimited(err):
		return errors.New("the server is limiting sends from this address, try again in a minute")
	case clinicmail.HasCode(err, clinicmail.CodeTemplateNotFound):
		return errors.New("unknown template, run `clinicctl templates` to list them")
	case clinicmail.HasCode(err, clinicmail.CodeNoPatients):
		return errors.New("no patients are registered")
	}
	return err
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

