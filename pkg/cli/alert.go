package cli

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
)

func NewAlertCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Inspect and manage alerts",
	}

	cmd.AddCommand(newAlertListCommand(root))
	cmd.AddCommand(newAlertGetCommand(root))
	cmd.AddCommand(newAlertAckCommand(root))
	cmd.AddCommand(newAlertResolveCommand(root))

	return cmd
}

func newAlertListCommand(root *RootCommand) *cobra.Command {
	var serverID, status, severity string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if serverID != "" {
				query.Set("server_id", serverID)
			}
			if status != "" {
				query.Set("status", status)
			}
			if severity != "" {
				query.Set("severity", severity)
			}
			if limit > 0 {
				query.Set("limit", fmt.Sprint(limit))
			}
			if offset > 0 {
				query.Set("offset", fmt.Sprint(offset))
			}

			result, err := root.apiClient().ListAlerts(cmd.Context(), query)
			if err != nil {
				return err
			}

			return PrintOutput(result, root.OutputOptions(), func(w io.Writer) error {
				tw := newTabWriter(w)
				tableHeader(tw, "ID", "SERVER", "TYPE", "SEVERITY", "STATUS", "CREATED", "MESSAGE")
				for _, a := range result.Alerts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						shortID(a.ID), a.ServerID, a.Type, a.Severity, a.Status,
						formatTime(a.CreatedAt), a.Message)
				}
				fmt.Fprintf(tw, "\nTotal: %d\n", result.Total)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&serverID, "server", "", "Filter by server ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (open, acknowledged, resolved)")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity (low, medium, high, critical)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	return cmd
}

func newAlertGetCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "get <alert-id>",
		Short: "Show one alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alert, err := root.apiClient().GetAlert(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printAlert(alert, root)
		},
	}
}

func newAlertAckCommand(root *RootCommand) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an open alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alert, err := root.apiClient().AcknowledgeAlert(cmd.Context(), args[0], by)
			if err != nil {
				return err
			}
			return printAlert(alert, root)
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Acknowledging operator")

	return cmd
}

func newAlertResolveCommand(root *RootCommand) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Resolve an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alert, err := root.apiClient().ResolveAlert(cmd.Context(), args[0], by)
			if err != nil {
				return err
			}
			return printAlert(alert, root)
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Resolving operator")

	return cmd
}

func printAlert(a *alerting.Alert, root *RootCommand) error {
	return PrintOutput(a, root.OutputOptions(), func(w io.Writer) error {
		tw := newTabWriter(w)
		fmt.Fprintf(tw, "ID\t%s\n", a.ID)
		fmt.Fprintf(tw, "Server\t%s\n", a.ServerID)
		fmt.Fprintf(tw, "Type\t%s\n", a.Type)
		fmt.Fprintf(tw, "Severity\t%s\n", a.Severity)
		fmt.Fprintf(tw, "Status\t%s\n", a.Status)
		fmt.Fprintf(tw, "Title\t%s\n", a.Title)
		fmt.Fprintf(tw, "Message\t%s\n", a.Message)
		fmt.Fprintf(tw, "Created\t%s\n", formatTime(a.CreatedAt))
		if a.AcknowledgedAt != nil {
			fmt.Fprintf(tw, "Acknowledged\t%s by %s\n", formatTimePtr(a.AcknowledgedAt), a.AcknowledgedBy)
		}
		if a.ResolvedAt != nil {
			fmt.Fprintf(tw, "Resolved\t%s (auto: %t)\n", formatTimePtr(a.ResolvedAt), a.AutoResolved)
		}
		return tw.Flush()
	})
}
