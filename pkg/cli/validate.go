package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mocify/mocify/pkg/cli/internal/output"
	"github.com/mocify/mocify/pkg/seed"
)

// ValidateOutput is the JSON result of `mocify validate`.
type ValidateOutput struct {
	Valid       bool                  `json:"valid"`
	Files       []string              `json:"files,omitempty"`
	Collections []ValidatedCollection `json:"collections,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// ValidatedCollection summarizes one collection of a validated seed file.
type ValidatedCollection struct {
	ID     string `json:"id"`
	Port   int    `json:"port"`
	Routes int    `json:"routes"`
	Source string `json:"source"`
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|glob>...",
		Short: "Check seed files without serving them",
		Example: `  mocify validate api.yaml
  mocify validate 'mocks/**/*.yaml'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			bundle, err := seed.Load(args, cwd)
			if err != nil {
				if g.jsonOutput {
					_ = output.JSON(w, ValidateOutput{Error: err.Error()})
				}
				return err
			}

			out := ValidateOutput{Valid: true, Files: bundle.Files}
			for _, e := range bundle.Entries {
				out.Collections = append(out.Collections, ValidatedCollection{
					ID:     e.Collection.ID,
					Port:   e.Collection.Port,
					Routes: len(e.Routes),
					Source: e.Source,
				})
			}
			if g.jsonOutput {
				return output.JSON(w, out)
			}

			tw := output.Table(w)
			fmt.Fprintln(tw, "COLLECTION\tPORT\tROUTES\tFILE")
			for _, c := range out.Collections {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", c.ID, c.Port, c.Routes, c.Source)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, c := range out.Collections {
				if c.Routes == 0 {
					output.Warn(w, "collection %q has no routes; every request to it will get 404", c.ID)
				}
			}
			fmt.Fprintf(w, "\n%d files OK: %d collections, %d routes\n",
				len(bundle.Files), len(out.Collections), bundle.RouteCount())
			return nil
		},
	}
}
