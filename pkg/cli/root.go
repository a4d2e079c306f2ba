// Package cli implements the homelabcmd command tree: the coordinator
// (serve), the host agent (agent), and the operator commands that talk to a
// running coordinator over its API.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/homelabcmd/homelabcmd/pkg/config"
)

var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

type RootCommand struct {
	cmd       *cobra.Command
	cfg       *config.Config
	opts      *OutputOptions
	formatStr string
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{
		opts: NewOutputOptions(),
	}

	cmd := &cobra.Command{
		Use:   "homelabcmd",
		Short: "HomelabCmd - fleet monitoring, alerting and remediation",
		Long: `HomelabCmd watches a fleet of homelab servers through agent heartbeats,
raises alerts when metrics breach thresholds, and queues whitelisted
remediation actions that agents pick up on their next beat.

One binary serves all roles: run "serve" for the coordinator, "agent" on
each monitored host, and the remaining commands as an operator console.`,
		PersistentPreRunE: root.persistentPreRunE,
	}

	pflags := cmd.PersistentFlags()
	pflags.StringVarP(&root.formatStr, "output", "o", "table", "Output format (table, json, yaml)")
	pflags.BoolVarP(&root.opts.Quiet, "quiet", "q", false, "Suppress output")
	pflags.String("config", "", "Config file path (TOML)")
	pflags.String("server", "", "Coordinator base URL (default from config)")
	pflags.String("api-key", "", "API key for the coordinator")
	bindFlags(pflags)

	root.cmd = cmd
	root.addSubCommands()

	return root
}

// bindFlags registers every flag with viper, mapping dashed flag names to
// underscored config keys.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		viper.BindPFlag(key, f)
	})
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	r.opts.Format = OutputFormat(r.formatStr)

	cfgPath := viper.GetString("config")
	if cfgPath == "" {
		r.cfg = config.Default()
	} else {
		cfg, err := config.LoadFromFile(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		r.cfg = cfg
	}

	config.ApplyEnvOverrides(r.cfg)

	if err := r.cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func (r *RootCommand) addSubCommands() {
	r.cmd.AddCommand(NewVersionCommand(r))
	r.cmd.AddCommand(NewServeCommand(r))
	r.cmd.AddCommand(NewAgentCommand(r))
	r.cmd.AddCommand(NewAlertCommand(r))
	r.cmd.AddCommand(NewActionCommand(r))
	r.cmd.AddCommand(NewServerCommand(r))
}

// apiClient builds the client the operator commands use, honoring the
// --server and --api-key flags over the config file.
func (r *RootCommand) apiClient() *APIClient {
	baseURL := viper.GetString("server")
	if baseURL == "" {
		baseURL = r.cfg.Agent.ServerURL
	}
	apiKey := viper.GetString("api_key")
	if apiKey == "" {
		apiKey = r.cfg.Security.APIKey
	}
	return NewAPIClient(baseURL, apiKey)
}

func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

func (r *RootCommand) Config() *config.Config {
	return r.cfg
}

func (r *RootCommand) OutputOptions() *OutputOptions {
	return r.opts
}

func (r *RootCommand) Execute() error {
	return r.cmd.Execute()
}

func (r *RootCommand) ExecuteContext(ctx context.Context) error {
	return r.cmd.ExecuteContext(ctx)
}

func Execute() {
	root := NewRootCommand()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func SetVersion(version, buildDate, gitCommit string) {
	cliVersion = version
	cliBuildDate = buildDate
	cliGitCommit = gitCommit
}
