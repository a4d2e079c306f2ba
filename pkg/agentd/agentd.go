// Package agentd implements the host agent: a heartbeat loop that reports
// metrics to the coordinator, executes at most one delivered command per
// cycle, and reports the result on the next beat.
package agentd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/infra/metrics"
	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

type Config struct {
	// ServerID identifies this host to the coordinator. Defaults to the
	// hostname.
	ServerID string

	// Interval is the heartbeat period.
	Interval time.Duration

	// DiskPath is the mount point whose usage is reported.
	DiskPath string

	Executor ExecutorConfig
}

func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		DiskPath: "/",
		Executor: DefaultExecutorConfig(),
	}
}

// Agent ties the collector, the heartbeat client and the executor together.
type Agent struct {
	config    Config
	client    *Client
	collector metrics.Collector
	executor  *Executor

	mu      sync.Mutex
	pending []remediation.Result
}

func New(config Config, client *Client, collector metrics.Collector, executor *Executor) (*Agent, error) {
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.ServerID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve hostname: %w", err)
		}
		config.ServerID = hostname
	}
	return &Agent{
		config:    config,
		client:    client,
		collector: collector,
		executor:  executor,
	}, nil
}

// Run beats until ctx is cancelled. A beat that fails to reach the
// coordinator is logged and retried on the next tick; queued results are
// kept until a beat succeeds.
func (a *Agent) Run(ctx context.Context) error {
	logger.Info("agent starting",
		"server_id", a.config.ServerID,
		"interval", a.config.Interval.String(),
	)

	a.beat(ctx)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.beat(ctx)
		case <-ctx.Done():
			logger.Info("agent stopping", "server_id", a.config.ServerID)
			return ctx.Err()
		}
	}
}

func (a *Agent) beat(ctx context.Context) {
	hostname, _ := os.Hostname()

	input := service.HeartbeatInput{
		ServerID: a.config.ServerID,
		Hostname: hostname,
		Results:  a.takeResults(),
	}

	// The beat still goes out when collection fails: liveness and queued
	// results must not depend on the collector, and omitting the metrics
	// block keeps the coordinator from evaluating zero-valued samples.
	sample, err := a.collector.Collect(ctx)
	if err != nil {
		logger.Warn("metric collection failed", "error", err)
	} else {
		input.Metrics = &service.MetricsInput{
			CPUPercent:    sample.CPUPercent,
			MemoryPercent: sample.MemoryPercent,
			DiskPercent:   sample.DiskPercent,
			UptimeSeconds: sample.UptimeSeconds,
		}
	}

	result, err := a.client.SendHeartbeat(ctx, input)
	if err != nil {
		// Results go back on the queue so the next beat retries them.
		a.requeueResults(input.Results)
		logger.Warn("heartbeat failed", "error", err)
		return
	}

	for _, cmd := range result.PendingCommands {
		res := a.executor.Execute(ctx, cmd)
		a.queueResult(res)
	}
}

func (a *Agent) queueResult(res remediation.Result) {
	a.mu.Lock()
	a.pending = append(a.pending, res)
	a.mu.Unlock()
}

func (a *Agent) takeResults() []remediation.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	results := a.pending
	a.pending = nil
	return results
}

func (a *Agent) requeueResults(results []remediation.Result) {
	if len(results) == 0 {
		return
	}
	a.mu.Lock()
	a.pending = append(results, a.pending...)
	a.mu.Unlock()
}
