package cli

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

func NewActionCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action",
		Short: "Queue and manage remediation actions",
	}

	cmd.AddCommand(newActionListCommand(root))
	cmd.AddCommand(newActionGetCommand(root))
	cmd.AddCommand(newActionCreateCommand(root))
	cmd.AddCommand(newActionApproveCommand(root))
	cmd.AddCommand(newActionRejectCommand(root))

	return cmd
}

func newActionListCommand(root *RootCommand) *cobra.Command {
	var serverID, status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if serverID != "" {
				query.Set("server_id", serverID)
			}
			if status != "" {
				query.Set("status", status)
			}
			if limit > 0 {
				query.Set("limit", fmt.Sprint(limit))
			}
			if offset > 0 {
				query.Set("offset", fmt.Sprint(offset))
			}

			result, err := root.apiClient().ListActions(cmd.Context(), query)
			if err != nil {
				return err
			}

			return PrintOutput(result, root.OutputOptions(), func(w io.Writer) error {
				tw := newTabWriter(w)
				tableHeader(tw, "ID", "SERVER", "TYPE", "SERVICE", "STATUS", "CREATED", "BY")
				for _, a := range result.Actions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						shortID(a.ID), a.ServerID, a.Type, a.ServiceName, a.Status,
						formatTime(a.CreatedAt), a.CreatedBy)
				}
				fmt.Fprintf(tw, "\nTotal: %d\n", result.Total)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&serverID, "server", "", "Filter by server ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	return cmd
}

func newActionGetCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "get <action-id>",
		Short: "Show one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := root.apiClient().GetAction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printAction(action, root)
		},
	}
}

func newActionCreateCommand(root *RootCommand) *cobra.Command {
	var serverID, actionType, serviceName, alertID, by string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Queue a remediation action",
		Long: `Queue a whitelisted remediation action for a server. Unless the server is
in maintenance mode the action is approved automatically and delivered on
the server's next heartbeat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := root.apiClient().CreateAction(cmd.Context(), service.CreateActionInput{
				ServerID:    serverID,
				Type:        remediation.ActionType(actionType),
				ServiceName: serviceName,
				AlertID:     alertID,
				CreatedBy:   by,
			})
			if err != nil {
				return err
			}
			return printAction(action, root)
		},
	}

	cmd.Flags().StringVar(&serverID, "server", "", "Target server ID (required)")
	cmd.Flags().StringVar(&actionType, "type", "", "Action type (restart_service, stop_service, start_service, restart_container, reboot, clear_logs)")
	cmd.Flags().StringVar(&serviceName, "service", "", "Service or container name (for service/container actions)")
	cmd.Flags().StringVar(&alertID, "alert", "", "Linked alert ID")
	cmd.Flags().StringVar(&by, "by", "", "Creating operator")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newActionApproveCommand(root *RootCommand) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "approve <action-id>",
		Short: "Approve a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := root.apiClient().ApproveAction(cmd.Context(), args[0], by)
			if err != nil {
				return err
			}
			return printAction(action, root)
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Approving operator")

	return cmd
}

func newActionRejectCommand(root *RootCommand) *cobra.Command {
	var by, reason string

	cmd := &cobra.Command{
		Use:   "reject <action-id>",
		Short: "Reject a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := root.apiClient().RejectAction(cmd.Context(), args[0], by, reason)
			if err != nil {
				return err
			}
			return printAction(action, root)
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Rejecting operator")
	cmd.Flags().StringVar(&reason, "reason", "", "Rejection reason (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func printAction(a *remediation.Action, root *RootCommand) error {
	return PrintOutput(a, root.OutputOptions(), func(w io.Writer) error {
		tw := newTabWriter(w)
		fmt.Fprintf(tw, "ID\t%s\n", a.ID)
		fmt.Fprintf(tw, "Server\t%s\n", a.ServerID)
		fmt.Fprintf(tw, "Type\t%s\n", a.Type)
		if a.ServiceName != "" {
			fmt.Fprintf(tw, "Service\t%s\n", a.ServiceName)
		}
		fmt.Fprintf(tw, "Command\t%s\n", a.Command)
		fmt.Fprintf(tw, "Status\t%s\n", a.Status)
		fmt.Fprintf(tw, "Created\t%s by %s\n", formatTime(a.CreatedAt), a.CreatedBy)
		if a.ApprovedAt != nil {
			fmt.Fprintf(tw, "Approved\t%s by %s\n", formatTimePtr(a.ApprovedAt), a.ApprovedBy)
		}
		if a.RejectedAt != nil {
			fmt.Fprintf(tw, "Rejected\t%s by %s: %s\n", formatTimePtr(a.RejectedAt), a.RejectedBy, a.RejectReason)
		}
		if a.ExecutedAt != nil {
			fmt.Fprintf(tw, "Executed\t%s\n", formatTimePtr(a.ExecutedAt))
		}
		if a.CompletedAt != nil {
			fmt.Fprintf(tw, "Completed\t%s\n", formatTimePtr(a.CompletedAt))
		}
		if a.ExitCode != nil {
			fmt.Fprintf(tw, "Exit code\t%d\n", *a.ExitCode)
		}
		if a.Stdout != "" {
			fmt.Fprintf(tw, "Stdout\t%s\n", a.Stdout)
		}
		if a.Stderr != "" {
			fmt.Fprintf(tw, "Stderr\t%s\n", a.Stderr)
		}
		return tw.Flush()
	})
}
