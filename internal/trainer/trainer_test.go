package trainer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/dsablate/internal/dataset"
	"github.com/leapstack-labs/dsablate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript writes a shell script that records its arguments and
// selected environment variables into the output path, then runs body.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	path := filepath.Join(t.TempDir(), "train.sh")
	script := `out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--outputpath" ]; then out="$a"; fi
  prev="$a"
done
printf '%s\n' "$@" > "$out/args"
echo "$CUDA_VISIBLE_DEVICES" > "$out/devices"
echo "$PYTHON_INTERPRETER" > "$out/interpreter"
echo "$EXTRA_FLAG" > "$out/extra"
` + body + "\n"
	testutil.WriteFile(t, path, script)
	return path
}

func readTrimmed(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func newRequest(t *testing.T) Request {
	t.Helper()
	root := t.TempDir()
	return Request{
		Train:      dataset.NewDescriptor(filepath.Join(root, "train1")),
		Val:        dataset.NewDescriptor(filepath.Join(root, "val1")),
		OutputPath: filepath.Join(root, "out"),
		Params:     map[string]string{"weights": "yolov5n.pt", "epochs": "3"},
	}
}

func TestTask_Command(t *testing.T) {
	task := &Task{Script: "train.py"}
	req := Request{
		Train:      dataset.NewDescriptor("/d/train7"),
		Val:        dataset.NewDescriptor("/d/val7"),
		OutputPath: "/o",
		Params:     map[string]string{"b": "2", "a": "1"},
	}

	assert.Equal(t, []string{
		"python", "train.py",
		"--trainds", "/d/train7",
		"--valds", "/d/val7",
		"--outputpath", "/o",
		"--a", "1",
		"--b", "2",
	}, task.Command(req))
}

func TestTask_Command_WithoutVal(t *testing.T) {
	task := &Task{Interpreter: "/usr/bin/python3", Script: "train.py"}
	got := task.Command(Request{Train: dataset.NewDescriptor("/d/train7"), OutputPath: "/o"})
	assert.Equal(t, []string{"/usr/bin/python3", "train.py", "--trainds", "/d/train7", "--outputpath", "/o"}, got)
}

func TestTask_Environ(t *testing.T) {
	t.Setenv("DSABLATE_PARENT_VAR", "kept")
	task := &Task{Interpreter: "py", Devices: "0,1", Env: map[string]string{"A": "b"}}

	env := task.Environ()
	assert.Contains(t, env, "DSABLATE_PARENT_VAR=kept")
	assert.Contains(t, env, "CUDA_VISIBLE_DEVICES=0,1")
	assert.Contains(t, env, "PYTHON_INTERPRETER=py")
	assert.Contains(t, env, "A=b")
}

func TestTask_Execute(t *testing.T) {
	script := writeScript(t, `echo "training on stdout"
echo "warning on stderr" >&2`)
	task := &Task{
		Interpreter: "sh",
		Script:      script,
		Devices:     "3",
		Env:         map[string]string{"EXTRA_FLAG": "on"},
		Logger:      testutil.NewTestLogger(t),
	}
	req := newRequest(t)

	res, err := task.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, task.Command(req), res.Command)
	assert.Equal(t, filepath.Join(req.OutputPath, TrainLog), res.LogPath)

	args := strings.Split(readTrimmed(t, filepath.Join(req.OutputPath, "args")), "\n")
	assert.Equal(t, task.Command(req)[2:], args)
	assert.Equal(t, "3", readTrimmed(t, filepath.Join(req.OutputPath, "devices")))
	assert.Equal(t, "sh", readTrimmed(t, filepath.Join(req.OutputPath, "interpreter")))
	assert.Equal(t, "on", readTrimmed(t, filepath.Join(req.OutputPath, "extra")))

	assert.Equal(t, strings.Join(task.Command(req), " "), readTrimmed(t, filepath.Join(req.OutputPath, WrapperLog)))

	trainLog := readTrimmed(t, res.LogPath)
	assert.Contains(t, trainLog, "training on stdout")
	assert.Contains(t, trainLog, "warning on stderr")
}

func TestTask_Execute_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "cuda out of memory" >&2
exit 3`)
	task := &Task{Interpreter: "sh", Script: script}

	_, err := task.Execute(context.Background(), newRequest(t))
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "cuda out of memory")
	assert.Contains(t, err.Error(), "code 3")
}

func TestTask_Execute_Cancelled(t *testing.T) {
	script := writeScript(t, `sleep 30`)
	task := &Task{Interpreter: "sh", Script: script}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := task.Execute(ctx, newRequest(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestTask_Execute_MissingInterpreter(t *testing.T) {
	task := &Task{Interpreter: filepath.Join(t.TempDir(), "no-such-python"), Script: "train.py"}

	_, err := task.Execute(context.Background(), newRequest(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start trainer")
}

func TestTask_Execute_Validation(t *testing.T) {
	_, err := (&Task{}).Execute(context.Background(), newRequest(t))
	assert.ErrorIs(t, err, ErrNoScript)

	_, err = (&Task{Script: "x"}).Execute(context.Background(), Request{})
	assert.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 5}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defgh"))
	assert.Equal(t, "defgh", b.String())

	_, _ = b.Write([]byte("ij"))
	assert.Equal(t, "fghij", b.String())
}
