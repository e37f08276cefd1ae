package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/dsablate/internal/dataset"
)

// Log file names written into the output path.
const (
	WrapperLog = "wrapper.log"
	TrainLog   = "train.log"
)

// DefaultInterpreter is used when Task.Interpreter is empty.
const DefaultInterpreter = "python"

// stderrTailSize bounds the stderr excerpt kept on ExitError.
const stderrTailSize = 4096

// waitDelay bounds how long Wait blocks on output after the script exits.
const waitDelay = 5 * time.Second

// ErrNoScript is returned when a task has no script configured.
var ErrNoScript = errors.New("trainer script is not configured")

// Task describes how to launch the training script.
type Task struct {
	Interpreter string
	Script      string
	Devices     string            // CUDA_VISIBLE_DEVICES value, empty to leave unset
	Env         map[string]string // Extra environment variables
	WorkDir     string            // Working directory, empty for the current one
	Logger      *slog.Logger
}

// Request is one training invocation.
type Request struct {
	Train      dataset.Descriptor
	Val        dataset.Descriptor // Optional; --valds is omitted when DataPath is empty
	OutputPath string
	Params     map[string]string
}

// Result describes a finished invocation.
type Result struct {
	Command  []string
	LogPath  string
	Duration time.Duration
}

// ExitError is returned when the script exits with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string // Last bytes of stderr
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("trainer exited with code %d", e.Code)
	}
	return fmt.Sprintf("trainer exited with code %d: %s", e.Code, strings.TrimSpace(e.Stderr))
}

func (t *Task) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return t.Logger
}

func (t *Task) interpreter() string {
	if t.Interpreter == "" {
		return DefaultInterpreter
	}
	return t.Interpreter
}

// Command returns the full argv for req, interpreter first.
func (t *Task) Command(req Request) []string {
	argv := []string{t.interpreter(), t.Script, "--trainds", req.Train.DataPath}
	if req.Val.DataPath != "" {
		argv = append(argv, "--valds", req.Val.DataPath)
	}
	argv = append(argv, "--outputpath", req.OutputPath)
	for _, k := range slices.Sorted(maps.Keys(req.Params)) {
		argv = append(argv, "--"+k, req.Params[k])
	}
	return argv
}

// Environ returns the environment the script runs with.
func (t *Task) Environ() []string {
	env := os.Environ()
	if t.Devices != "" {
		env = append(env, "CUDA_VISIBLE_DEVICES="+t.Devices)
	}
	env = append(env, "PYTHON_INTERPRETER="+t.interpreter())
	for _, k := range slices.Sorted(maps.Keys(t.Env)) {
		env = append(env, k+"="+t.Env[k])
	}
	return env
}

// Execute runs the script for req and waits for it to finish.
func (t *Task) Execute(ctx context.Context, req Request) (*Result, error) {
	if t.Script == "" {
		return nil, ErrNoScript
	}
	if req.OutputPath == "" {
		return nil, errors.New("output path is required")
	}

	if err := os.MkdirAll(req.OutputPath, 0o750); err != nil {
		return nil, &dataset.FilesystemError{Op: "create directory", Path: req.OutputPath, Err: err}
	}

	argv := t.Command(req)
	wrapperPath := filepath.Join(req.OutputPath, WrapperLog)
	if err := os.WriteFile(wrapperPath, []byte(strings.Join(argv, " ")+"\n"), 0o600); err != nil {
		return nil, &dataset.FilesystemError{Op: "write", Path: wrapperPath, Err: err}
	}

	logPath := filepath.Join(req.OutputPath, TrainLog)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, &dataset.FilesystemError{Op: "create", Path: logPath, Err: err}
	}
	defer func() { _ = logFile.Close() }()

	tail := &tailBuffer{max: stderrTailSize}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.WorkDir
	cmd.Env = t.Environ()
	cmd.Stdout = logFile
	cmd.Stderr = &lockedWriter{w: logFile, tail: tail}
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	log := t.logger()
	log.Info("starting trainer",
		"script", t.Script,
		"train", req.Train.DataPath,
		"val", req.Val.DataPath,
		"output", req.OutputPath)

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	result := &Result{Command: argv, LogPath: logPath, Duration: duration}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("trainer cancelled: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Warn("trainer failed", "code", exitErr.ExitCode(), "duration", duration)
			return result, &ExitError{Code: exitErr.ExitCode(), Stderr: tail.String()}
		}
		return result, fmt.Errorf("failed to start trainer: %w", err)
	}

	log.Info("trainer finished", "output", req.OutputPath, "duration", duration)
	return result, nil
}
