package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mocify/mocify/pkg/cli/internal/output"
)

func newServersCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage mock servers of a running mocify instance",
	}
	cmd.AddCommand(
		newServersListCmd(g),
		newServersStartCmd(g),
		newServersStopCmd(g),
		newServersRequestsCmd(g),
		newServersReloadCmd(g),
	)
	return cmd
}

func newServersListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List collections and whether their server is running",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := NewAdminClient(g.resolveAdminURL())
			servers, err := client.ListServers(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return output.JSON(w, servers)
			}
			if len(servers) == 0 {
				fmt.Fprintln(w, "No collections")
				return nil
			}
			tw := output.Table(w)
			fmt.Fprintln(tw, "PORT\tCOLLECTION\tNAME\tSTATUS\tURL")
			for _, s := range servers {
				state := "stopped"
				if s.IsRunning {
					state = "running"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Port, s.CollectionID, s.CollectionName, state, s.BaseURL)
			}
			return tw.Flush()
		},
	}
}

func newServersStartCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start <collectionId>",
		Short: "Start the mock server of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAdminClient(g.resolveAdminURL())
			status, err := client.StartServer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return output.JSON(w, status)
			}
			fmt.Fprintf(w, "Started %s on %s\n", status.CollectionID, status.BaseURL)
			return nil
		},
	}
}

func newServersStopCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <port>",
		Short: "Stop the mock server on a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			client := NewAdminClient(g.resolveAdminURL())
			if err := client.StopServer(cmd.Context(), port); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return output.JSON(w, map[string]any{"port": port, "stopped": true})
			}
			fmt.Fprintf(w, "Stopped server on port %d\n", port)
			return nil
		},
	}
}

func newServersRequestsCmd(g *globalFlags) *cobra.Command {
	var (
		q         RequestQuery
		unmatched bool
	)
	cmd := &cobra.Command{
		Use:   "requests <port>",
		Short: "Show the request journal of a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			if unmatched {
				f := false
				q.Matched = &f
			}

			client := NewAdminClient(g.resolveAdminURL())
			resp, err := client.Requests(cmd.Context(), port, q)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return output.JSON(w, resp)
			}
			if resp.Count == 0 {
				fmt.Fprintf(w, "No requests recorded on port %d\n", port)
				return nil
			}
			tw := output.Table(w)
			fmt.Fprintln(tw, "TIME\tMETHOD\tPATH\tSTATUS\tMATCHED\tDURATION")
			for _, e := range resp.Requests {
				path := e.Path
				if e.Query != "" {
					path += "?" + e.Query
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\n",
					e.Timestamp.Format(time.TimeOnly), e.Method, path, e.StatusCode, e.Matched, e.Duration.Round(time.Microsecond))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 50, "Maximum number of entries")
	cmd.Flags().StringVar(&q.Method, "method", "", "Only requests with this method")
	cmd.Flags().StringVar(&q.Path, "path", "", "Only requests whose path starts with this prefix")
	cmd.Flags().BoolVar(&unmatched, "unmatched", false, "Only requests no route matched")
	return cmd
}

func newServersReloadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-apply the seed files of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := NewAdminClient(g.resolveAdminURL())
			res, err := client.ReloadSeed(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return output.JSON(w, res)
			}
			fmt.Fprintf(w, "Applied %d collections, %d routes (%d routes and %d collections removed)\n",
				res.Collections, res.Routes, res.RoutesRemoved, res.CollectionsRemoved)
			return nil
		},
	}
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q: must be an integer between 1 and 65535", s)
	}
	return port, nil
}
