package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewVersionCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			opts := root.OutputOptions()
			info := map[string]string{
				"version":   cliVersion,
				"buildDate": cliBuildDate,
				"gitCommit": cliGitCommit,
			}
			_ = PrintOutput(info, opts, func(w io.Writer) error {
				fmt.Fprintf(w, "homelabcmd version %s\n", cliVersion)
				fmt.Fprintf(w, "  Commit: %s\n", cliGitCommit)
				fmt.Fprintf(w, "  Built:  %s\n", cliBuildDate)
				return nil
			})
		},
	}
}
