package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
	"github.com/Harsh-BH/codr/internal/metrics"
)

const (
	// sandboxMount is where the work directory appears inside nsjail.
	sandboxMount = "/tmp/work"

	// killGrace is added to the time limit before the host side kills the
	// process group, leaving nsjail room to enforce its own limit first.
	killGrace = 2 * time.Second

	// waitDelay bounds how long Wait blocks on pipes held open by stray
	// descendants after the process exited.
	waitDelay = 2 * time.Second

	timeLimitMsg   = "\nTime limit exceeded"
	memoryLimitMsg = "\nMemory limit exceeded"
)

// Mode selects how programs are launched.
type Mode string

const (
	// ModeNsjail runs every program inside nsjail.
	ModeNsjail Mode = "nsjail"
	// ModeDirect runs programs as plain child processes. Development only.
	ModeDirect Mode = "direct"
)

// SandboxConfig configures a SandboxExecutor.
type SandboxConfig struct {
	Mode             Mode
	NsjailPath       string
	ConfigDir        string
	TimeLimit        time.Duration
	CompileTimeLimit time.Duration
	MemoryLimitKB    int
}

// SandboxExecutor compiles and runs code inside an nsjail sandbox, streaming
// output while the program runs.
type SandboxExecutor struct {
	cfg        SandboxConfig
	toolchains map[domain.Language]toolchain
	logger     *zap.Logger
}

var _ Executor = (*SandboxExecutor)(nil)

// NewSandboxExecutor creates a new sandbox executor.
func NewSandboxExecutor(cfg SandboxConfig, logger *zap.Logger) *SandboxExecutor {
	if cfg.Mode == "" {
		cfg.Mode = ModeNsjail
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = 10 * time.Second
	}
	if cfg.CompileTimeLimit <= 0 {
		cfg.CompileTimeLimit = 10 * time.Second
	}
	toolchains := make(map[domain.Language]toolchain, len(defaultToolchains))
	for lang, tc := range defaultToolchains {
		toolchains[lang] = tc
	}
	return &SandboxExecutor{cfg: cfg, toolchains: toolchains, logger: logger}
}

// Execute writes the source to an ephemeral directory, compiles it when the
// language needs it and runs the program.
func (e *SandboxExecutor) Execute(ctx context.Context, req *domain.ExecutionRequest, onOutput OutputFunc, input <-chan []byte) (*domain.ExecutionResult, error) {
	tc, ok := e.toolchains[req.Language]
	if !ok {
		return nil, fmt.Errorf("sandbox: %s: %w", req.Language, domain.ErrUnknownLanguage)
	}
	if onOutput == nil {
		onOutput = func(domain.Stream, []byte) {}
	}

	workDir, err := os.MkdirTemp("", fmt.Sprintf("codr-%s-*", req.JobID.String()))
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	src := tc.sourceName(req.Filename)
	if err := os.WriteFile(filepath.Join(workDir, src), []byte(req.Code), 0644); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	dir := sandboxMount
	if e.cfg.Mode == ModeDirect {
		dir = workDir
	}
	configPath := filepath.Join(e.cfg.ConfigDir, tc.Config)

	if tc.Compile != nil {
		// Compiler output of either stream is diagnostics for the user.
		toStderr := func(_ domain.Stream, data []byte) { onOutput(domain.StreamStderr, data) }

		result, err := e.run(ctx, req, configPath, workDir, e.cfg.CompileTimeLimit, toStderr, nil,
			expand(tc.Compile, dir, src)...)
		if err != nil {
			return nil, fmt.Errorf("compile: %w", err)
		}
		if result.ExitCode != 0 {
			result.Stderr = joinOutput(result.Stdout, result.Stderr)
			result.Stdout = ""
			return result, nil
		}
	}

	return e.run(ctx, req, configPath, workDir, e.cfg.TimeLimit, onOutput, input, expand(tc.Run, dir, src)...)
}

// command builds the argv that launches execArgs under the configured mode.
func (e *SandboxExecutor) command(configPath, workDir string, limit time.Duration, execArgs []string) []string {
	if e.cfg.Mode == ModeDirect {
		return execArgs
	}
	args := []string{
		e.cfg.NsjailPath,
		"--config", configPath,
		"--bindmount", workDir + ":" + sandboxMount,
		"--cwd", sandboxMount,
		"--time_limit", strconv.Itoa(int(limit/time.Second) + 1),
	}
	if e.cfg.MemoryLimitKB > 0 {
		args = append(args, "--cgroup_mem_max", strconv.Itoa(e.cfg.MemoryLimitKB*1024))
	}
	args = append(args, "--")
	return append(args, execArgs...)
}

func (e *SandboxExecutor) run(
	ctx context.Context,
	req *domain.ExecutionRequest,
	configPath, workDir string,
	limit time.Duration,
	onOutput OutputFunc,
	input <-chan []byte,
	execArgs ...string,
) (*domain.ExecutionResult, error) {
	argv := e.command(configPath, workDir, limit, execArgs)

	timeoutCtx, cancel := context.WithTimeout(ctx, limit+killGrace)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, argv[0], argv[1:]...)
	cmd.Dir = workDir

	// Own process group so the whole tree can be killed at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	stdout := newStreamWriter(domain.StreamStdout, onOutput, maxOutputBytes, false)
	stderr := newStreamWriter(domain.StreamStderr, onOutput, maxOutputBytes, e.cfg.Mode == ModeNsjail)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	var stdin io.WriteCloser
	if input != nil {
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	}

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.SandboxFailures.Inc()
		return nil, fmt.Errorf("start %s: %w", filepath.Base(argv[0]), err)
	}

	done := make(chan struct{})
	fed := make(chan struct{})
	if stdin != nil {
		go func() {
			defer close(fed)
			feedStdin(stdin, input, done)
		}()
	} else {
		close(fed)
	}

	err := cmd.Wait()
	elapsed := time.Since(startTime)
	close(done)
	<-fed
	stderr.Flush()

	result := &domain.ExecutionResult{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExecutionTime: elapsed.Seconds(),
	}

	e.logger.Debug("sandbox execution completed",
		zap.String("job_id", req.JobID.String()),
		zap.String("language", string(req.Language)),
		zap.Duration("elapsed", elapsed),
		zap.Int("memory_used_kb", readCgroupMemoryPeak()),
		zap.String("nsjail_log", stderr.Log()),
	)

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		onOutput(domain.StreamStderr, []byte(timeLimitMsg))
		result.Stderr += timeLimitMsg
		result.ExitCode = -1
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("sandbox: %w", ctx.Err())
	}

	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			metrics.SandboxFailures.Inc()
			return nil, fmt.Errorf("wait %s: %w", filepath.Base(argv[0]), err)
		}
		result.ExitCode = exitCode(exitErr)
		if e.cfg.Mode == ModeNsjail && isOOMKill(result.ExitCode, stderr.Log()) {
			onOutput(domain.StreamStderr, []byte(memoryLimitMsg))
			result.Stderr += memoryLimitMsg
		}
	}

	result.Success = result.ExitCode == 0
	return result, nil
}

// feedStdin copies input chunks to the process in arrival order and closes
// stdin once input is closed. After the process exits remaining chunks are
// discarded.
func feedStdin(w io.WriteCloser, input <-chan []byte, done <-chan struct{}) {
	defer w.Close()
	broken := false
	for {
		select {
		case <-done:
			return
		case data, ok := <-input:
			if !ok {
				return
			}
			if broken {
				continue
			}
			if _, err := w.Write(data); err != nil {
				broken = true
			}
		}
	}
}

// exitCode maps a process exit to a shell style code; signals become 128+n.
func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitErr.ExitCode()
}

func joinOutput(stdout, stderr string) string {
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	}
	return stdout + "\n" + stderr
}

// isOOMKill checks if the process was killed due to an OOM condition.
// Exit code 137 is SIGKILL (128 + 9), the signal the cgroup OOM killer sends.
func isOOMKill(exitCode int, nsjailLog string) bool {
	if exitCode == 137 {
		return true
	}
	lowerLog := strings.ToLower(nsjailLog)
	return strings.Contains(lowerLog, "oom") ||
		strings.Contains(lowerLog, "memory cgroup") ||
		strings.Contains(lowerLog, "cgroup_mem")
}

// readCgroupMemoryPeak reads the peak memory usage from cgroup v2 (or v1's
// equivalent). Returns 0 if unavailable.
func readCgroupMemoryPeak() int {
	paths := []string{
		"/sys/fs/cgroup/memory.peak",
		"/sys/fs/cgroup/memory/memory.max_usage_in_bytes",
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		s := strings.TrimSpace(string(data))
		if s == "max" || s == "" {
			continue
		}
		val, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		return int(val / 1024)
	}
	return 0
}
