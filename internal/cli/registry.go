package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trafficwatch/internal/violation/registry"
)

// RegistryReport is the json output of registry check.
type RegistryReport struct {
	Valid      bool             `json:"valid"`
	Version    string           `json:"version,omitempty"`
	Violations []registry.Entry `json:"violations,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// NewRegistryCommand groups registry maintenance commands.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect violation registry files",
	}
	cmd.AddCommand(newRegistryCheckCommand(rootOpts))
	return cmd
}

func newRegistryCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "check <file>",
		Short:         "Validate a registry file and print its fines",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(args[0])
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				report := RegistryReport{Valid: err == nil}
				if err != nil {
					report.Error = err.Error()
				} else {
					report.Version = reg.Version()
					report.Violations = reg.Entries()
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid registry: %v\n", err)
				return err
			}
			return writeRegistryTable(out, reg)
		},
	}
}

func writeRegistryTable(w io.Writer, reg *registry.Registry) error {
	fmt.Fprintf(w, "registry version %s\n\n", reg.Version())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tFINE\tDESCRIPTION")
	for _, e := range reg.Entries() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Type, e.Fine, e.Description)
	}
	return tw.Flush()
}
