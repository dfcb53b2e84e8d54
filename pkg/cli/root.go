package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mocify/mocify/pkg/cliconfig"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	adminURL   string
	jsonOutput bool
}

// NewRootCommand builds the mocify command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "mocify",
		Short: "mocify serves mock HTTP APIs, one collection per port",
		Long: `mocify runs lightweight mock HTTP servers. Each collection of routes is
served on its own TCP port; requests are matched by method and exact path and
answered with the configured status, headers, body and delay.

Configuration can be provided via flags, MOCIFY_* environment variables, or a
mocify.yaml file in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.adminURL, "admin-url", "", "Admin API base URL (default: from config, http://127.0.0.1:4290)")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")

	root.AddCommand(
		newServeCmd(),
		newServersCmd(g),
		newValidateCmd(g),
		newVersionCmd(g),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return run(NewRootCommand(), os.Args[1:], os.Stderr)
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, FormatError(err))
		return 1
	}
	return 0
}

// resolveAdminURL picks the admin URL: flag, then MOCIFY_ADMIN_URL or the
// config file, then the default.
func (g *globalFlags) resolveAdminURL() string {
	if g.adminURL != "" {
		return g.adminURL
	}
	cfg, err := cliconfig.Load("")
	if err != nil {
		return cliconfig.NewDefault().ResolvedAdminURL()
	}
	return cfg.ResolvedAdminURL()
}
