package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/homelabcmd/homelabcmd/pkg/agentd"
	"github.com/homelabcmd/homelabcmd/pkg/config"
	"github.com/homelabcmd/homelabcmd/pkg/infra/docker"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/infra/metrics"
)

func NewAgentCommand(root *RootCommand) *cobra.Command {
	var serverURL, serverID string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the host agent",
		Long: `Run the monitoring agent on this host. The agent reports metrics to the
coordinator on every heartbeat and executes whitelisted remediation
commands delivered in the response.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.Config()
			if serverURL != "" {
				cfg.Agent.ServerURL = serverURL
			}
			if serverID != "" {
				cfg.Agent.ServerID = serverID
			}
			return runAgent(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "", "Coordinator base URL (overrides config)")
	cmd.Flags().StringVar(&serverID, "server-id", "", "Server ID to report as (default: hostname)")

	return cmd
}

func runAgent(ctx context.Context, cfg *config.Config) error {
	logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})

	collector := metrics.NewCachedCollector(metrics.NewCollector(cfg.Agent.DiskPath), cfg.Agent.IntervalD)
	collector.Start(ctx)
	defer collector.Stop()

	// Docker is optional on agent hosts; without it restart_container falls
	// back to the shell command.
	var dockerClient docker.Client
	if sdk, err := docker.NewSDKClient(); err != nil {
		logger.Warn("docker unavailable, container restarts will shell out", "error", err)
	} else {
		dockerClient = sdk
		defer sdk.Close()
	}

	executor := agentd.NewExecutor(agentd.ExecutorConfig{
		CommandTimeout: cfg.Agent.CommandTimeoutD,
		RestartStagger: cfg.Agent.RestartStaggerD,
	}, dockerClient)

	client := agentd.NewClient(cfg.Agent.ServerURL, cfg.Security.APIKey, 0)

	agent, err := agentd.New(agentd.Config{
		ServerID: cfg.Agent.ServerID,
		Interval: cfg.Agent.IntervalD,
		DiskPath: cfg.Agent.DiskPath,
	}, client, collector, executor)
	if err != nil {
		return err
	}

	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
