package cli

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/homelabcmd/homelabcmd/pkg/unit/fleet"
)

func NewServerCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Inspect and manage fleet servers",
	}

	cmd.AddCommand(newServerListCommand(root))
	cmd.AddCommand(newServerGetCommand(root))
	cmd.AddCommand(newServerPauseCommand(root))
	cmd.AddCommand(newServerUnpauseCommand(root))

	return cmd
}

func newServerListCommand(root *RootCommand) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if status != "" {
				query.Set("status", status)
			}

			result, err := root.apiClient().ListServers(cmd.Context(), query)
			if err != nil {
				return err
			}

			return PrintOutput(result, root.OutputOptions(), func(w io.Writer) error {
				tw := newTabWriter(w)
				tableHeader(tw, "ID", "NAME", "STATUS", "PAUSED", "LAST SEEN")
				for _, s := range result.Servers {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
						s.ID, s.Name, s.Status, s.IsPaused, formatTimePtr(s.LastSeen))
				}
				fmt.Fprintf(tw, "\nTotal: %d\n", result.Total)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (online, offline, unknown)")

	return cmd
}

func newServerGetCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "get <server-id>",
		Short: "Show one server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := root.apiClient().GetServer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printServer(server, root)
		},
	}
}

func newServerPauseCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <server-id>",
		Short: "Put a server into maintenance mode",
		Long: `Put a server into maintenance mode. While paused, new remediation actions
for the server require manual approval instead of being auto-approved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := root.apiClient().PauseServer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printServer(server, root)
		},
	}
}

func newServerUnpauseCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "unpause <server-id>",
		Short: "Take a server out of maintenance mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := root.apiClient().UnpauseServer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printServer(server, root)
		},
	}
}

func printServer(s *fleet.Server, root *RootCommand) error {
	return PrintOutput(s, root.OutputOptions(), func(w io.Writer) error {
		tw := newTabWriter(w)
		fmt.Fprintf(tw, "ID\t%s\n", s.ID)
		fmt.Fprintf(tw, "Name\t%s\n", s.Name)
		fmt.Fprintf(tw, "Status\t%s\n", s.Status)
		fmt.Fprintf(tw, "Paused\t%t\n", s.IsPaused)
		fmt.Fprintf(tw, "Last seen\t%s\n", formatTimePtr(s.LastSeen))
		fmt.Fprintf(tw, "Registered\t%s\n", formatTime(s.CreatedAt))
		return tw.Flush()
	})
}
