package agentd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/homelabcmd/homelabcmd/pkg/infra/docker"
	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/service"
	"github.com/homelabcmd/homelabcmd/pkg/unit/ptrs"
	"github.com/homelabcmd/homelabcmd/pkg/unit/remediation"
)

// ExecutorConfig bounds command execution on the agent side.
type ExecutorConfig struct {
	// CommandTimeout is the hard deadline per command; the process group is
	// killed when it elapses.
	CommandTimeout time.Duration

	// RestartStagger is the minimum interval between restarts of the same
	// service or container on this host.
	RestartStagger time.Duration

	// DockerStopTimeout is the container stop grace period in seconds.
	DockerStopTimeout int
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		CommandTimeout:    2 * time.Minute,
		RestartStagger:    5 * time.Minute,
		DockerStopTimeout: 10,
	}
}

// Executor runs commands delivered over the heartbeat channel. It trusts
// nothing from the wire: the command string is recomputed from the action
// type and compared before anything runs.
type Executor struct {
	config ExecutorConfig
	docker docker.Client

	mu           sync.Mutex
	lastRestarts map[string]time.Time

	now    func() time.Time
	runner func(ctx context.Context, command string) (string, string, int, error)
}

func NewExecutor(config ExecutorConfig, dockerClient docker.Client) *Executor {
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 2 * time.Minute
	}
	if config.DockerStopTimeout == 0 {
		config.DockerStopTimeout = 10
	}
	e := &Executor{
		config:       config,
		docker:       dockerClient,
		lastRestarts: make(map[string]time.Time),
		now:          time.Now,
	}
	e.runner = e.runShell
	return e
}

// Execute runs one delivered command and returns its result record. Errors
// surface as a failed result, never as an error return, so the loop always
// has something to report back.
func (e *Executor) Execute(ctx context.Context, cmd service.PendingCommand) remediation.Result {
	expected, err := remediation.ResolveCommand(remediation.ActionType(cmd.ActionType), cmd.ServiceName)
	if err != nil || expected != cmd.Command {
		logger.Warn("command rejected by local whitelist",
			"action_id", cmd.ActionID,
			"action_type", cmd.ActionType,
			"command", cmd.Command,
		)
		return failedResult(cmd.ActionID, fmt.Sprintf("command rejected by local whitelist: %q", cmd.Command))
	}

	if isRestart(remediation.ActionType(cmd.ActionType)) {
		if wait := e.checkStagger(cmd.ServiceName); wait > 0 {
			return failedResult(cmd.ActionID, fmt.Sprintf(
				"restart of %s throttled, retry in %s", cmd.ServiceName, wait.Round(time.Second)))
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.CommandTimeout)
	defer cancel()

	var stdout, stderr string
	var exitCode int
	if remediation.ActionType(cmd.ActionType) == remediation.ActionRestartContainer && e.docker != nil {
		stdout, stderr, exitCode = e.restartContainer(execCtx, cmd.ServiceName)
	} else {
		stdout, stderr, exitCode, err = e.runner(execCtx, cmd.Command)
		if err != nil && stderr == "" {
			stderr = err.Error()
		}
	}

	if execCtx.Err() == context.DeadlineExceeded {
		stderr = fmt.Sprintf("command killed after %s timeout", e.config.CommandTimeout)
		exitCode = -1
	}

	if isRestart(remediation.ActionType(cmd.ActionType)) && exitCode == 0 {
		e.recordRestart(cmd.ServiceName)
	}

	logger.Info("command executed",
		"action_id", cmd.ActionID,
		"action_type", cmd.ActionType,
		"exit_code", exitCode,
	)

	return remediation.Result{
		ActionID: cmd.ActionID,
		ExitCode: &exitCode,
		Stdout:   remediation.TruncateOutput(stdout),
		Stderr:   remediation.TruncateOutput(stderr),
	}
}

func (e *Executor) runShell(ctx context.Context, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}
	return outBuf.String(), errBuf.String(), exitCode, err
}

func (e *Executor) restartContainer(ctx context.Context, name string) (string, string, int) {
	if err := e.docker.RestartContainer(ctx, name, e.config.DockerStopTimeout); err != nil {
		return "", fmt.Sprintf("restart container %s: %v", name, err), 1
	}
	return fmt.Sprintf("container %s restarted", name), "", 0
}

// checkStagger returns how long the caller must still wait before the named
// service may be restarted again, or zero when the restart may proceed.
func (e *Executor) checkStagger(service string) time.Duration {
	if e.config.RestartStagger <= 0 || service == "" {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	last, ok := e.lastRestarts[service]
	if !ok {
		return 0
	}
	elapsed := e.now().Sub(last)
	if elapsed >= e.config.RestartStagger {
		return 0
	}
	return e.config.RestartStagger - elapsed
}

func (e *Executor) recordRestart(service string) {
	if service == "" {
		return
	}
	e.mu.Lock()
	e.lastRestarts[service] = e.now()
	e.mu.Unlock()
}

func isRestart(t remediation.ActionType) bool {
	return t == remediation.ActionRestartService || t == remediation.ActionRestartContainer
}

func failedResult(actionID, stderr string) remediation.Result {
	return remediation.Result{
		ActionID: actionID,
		ExitCode: ptrs.Int(1),
		Stderr:   remediation.TruncateOutput(stderr),
	}
}
