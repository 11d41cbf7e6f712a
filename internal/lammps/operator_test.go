package lammps

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potflow/lmprun/internal/operr"
)

// chdirTemp moves the test into a fresh invocation directory, restoring
// the original working directory afterwards.
func chdirTemp(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("engine stubs require sh")
	}
	orig, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(orig))
	})
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	return dir
}

func writeStubScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// newTaskPath builds a task input directory holding the driver file and a
// placeholder conformation.
func newTaskPath(t *testing.T, dir, driver string) string {
	t.Helper()
	taskPath := filepath.Join(dir, "inputs")
	require.NoError(t, os.Mkdir(taskPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(taskPath, InputName), []byte(driver), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(taskPath, ConfName), []byte("# conf placeholder\n"), 0o644))
	return taskPath
}

func writeModel(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const stubEngineBody = `echo "LAMMPS run" > log.lammps
echo "frame 0" > traj.dump
echo "0 0.1 0.2" > model_devi.out`

func TestExecuteSuccess(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	model := writeModel(t, invDir, "candidate.pb", "dummy-model")
	engine := writeStubScript(t, invDir, "lmp_stub.sh", stubEngineBody)

	op := &RunLAMMPS{}
	out, err := op.Execute(context.Background(), &Input{
		Config:   map[string]any{"command": engine},
		TaskName: "task.000000",
		TaskPath: taskPath,
		Models:   []string{model},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("task.000000", LogName), out.Log)
	assert.Equal(t, filepath.Join("task.000000", TrajName), out.Traj)
	assert.Equal(t, filepath.Join("task.000000", ModelDeviName), out.ModelDevi)
	assert.Empty(t, out.PlmOutput, "no plumed output was produced")

	for _, p := range []string{out.Log, out.Traj, out.ModelDevi} {
		info, err := os.Stat(p)
		require.NoError(t, err, "output %s must exist", p)
		assert.True(t, info.Mode().IsRegular())
	}

	// Inputs and the model are linked into the task directory.
	staged, err := os.ReadFile(filepath.Join("task.000000", ModelNameFor(0)))
	require.NoError(t, err)
	assert.Equal(t, "dummy-model", string(staged))

	driver, err := os.ReadFile(filepath.Join("task.000000", InputName))
	require.NoError(t, err)
	assert.Equal(t, driverTemplate, string(driver))

	// The working directory is back where the invocation started.
	wd, err := os.Getwd()
	require.NoError(t, err)
	assertSamePath(t, invDir, wd)
}

func TestExecuteEngineFailureIsTransient(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	model := writeModel(t, invDir, "candidate.pb", "dummy-model")
	engine := writeStubScript(t, invDir, "lmp_stub.sh", `echo "ERROR: lost atoms" >&2
exit 1`)

	var logBuf bytes.Buffer
	op := &RunLAMMPS{Logger: slog.New(slog.NewTextHandler(&logBuf, nil))}

	_, err := op.Execute(context.Background(), &Input{
		Config:   map[string]any{"command": engine},
		TaskName: "task.000001",
		TaskPath: taskPath,
		Models:   []string{model},
	})
	require.Error(t, err)
	assert.True(t, operr.IsTransient(err), "engine failure must be retryable, got %v", err)
	assert.False(t, operr.IsFatal(err))

	diag := logBuf.String()
	assert.Contains(t, diag, "lost atoms", "diagnostic log must carry the engine's stderr")
	assert.Contains(t, diag, "-i in.lammps -log log.lammps", "diagnostic log must carry the command line")

	// Restoration also happens on the failure path.
	wd, err := os.Getwd()
	require.NoError(t, err)
	assertSamePath(t, invDir, wd)
}

func TestExecuteTeacherModel(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	student := writeModel(t, invDir, "student.pb", "student-bytes")
	teacher := writeModel(t, invDir, "teacher.pb", "teacher-bytes")
	engine := writeStubScript(t, invDir, "lmp_stub.sh", stubEngineBody)

	op := &RunLAMMPS{}
	_, err := op.Execute(context.Background(), &Input{
		Config: map[string]any{
			"command":            engine,
			"teacher_model_path": teacher,
		},
		TaskName: "task.000002",
		TaskPath: taskPath,
		Models:   []string{student},
	})
	require.NoError(t, err)

	// The teacher is materialized in the invocation directory and staged
	// as model index 0, shifting the student to index 1.
	materialized, err := os.ReadFile(filepath.Join(invDir, TeacherModelName))
	require.NoError(t, err)
	assert.Equal(t, "teacher-bytes", string(materialized))

	model0, err := os.ReadFile(filepath.Join("task.000002", ModelNameFor(0)))
	require.NoError(t, err)
	assert.Equal(t, "teacher-bytes", string(model0))

	model1, err := os.ReadFile(filepath.Join("task.000002", ModelNameFor(1)))
	require.NoError(t, err)
	assert.Equal(t, "student-bytes", string(model1))

	driver, err := os.ReadFile(filepath.Join("task.000002", InputName))
	require.NoError(t, err)
	assert.Contains(t, string(driver), "model_000.pb model_001.pb")
}

func TestExecuteTeacherRequiresSingleModel(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	m1 := writeModel(t, invDir, "a.pb", "a")
	m2 := writeModel(t, invDir, "b.pb", "b")
	teacher := writeModel(t, invDir, "teacher.pb", "t")

	op := &RunLAMMPS{}
	_, err := op.Execute(context.Background(), &Input{
		Config: map[string]any{
			"teacher_model_path": teacher,
		},
		TaskName: "task.000003",
		TaskPath: taskPath,
		Models:   []string{m1, m2},
	})
	require.Error(t, err)
	assert.True(t, operr.IsFatal(err), "expected fatal error, got %v", err)

	_, statErr := os.Stat("task.000003")
	assert.True(t, os.IsNotExist(statErr), "no task directory may be created on precondition failure")
}

func TestExecuteShuffleModels(t *testing.T) {
	invDir := chdirTemp(t)

	driver := `units metal
pair_style deepmd model_000.pb model_001.pb out_freq 10
timestep 0.001
`
	taskPath := newTaskPath(t, invDir, driver)
	m1 := writeModel(t, invDir, "a.pb", "a")
	m2 := writeModel(t, invDir, "b.pb", "b")
	engine := writeStubScript(t, invDir, "lmp_stub.sh", stubEngineBody)

	op := &RunLAMMPS{}
	_, err := op.Execute(context.Background(), &Input{
		Config: map[string]any{
			"command":        engine,
			"shuffle_models": true,
		},
		TaskName: "task.000004",
		TaskPath: taskPath,
		Models:   []string{m1, m2},
	})
	require.NoError(t, err)

	patched, err := os.ReadFile(filepath.Join("task.000004", InputName))
	require.NoError(t, err)
	fields := strings.Fields(strings.Split(string(patched), "\n")[1])
	require.Len(t, fields, 6)

	models := append([]string(nil), fields[2:4]...)
	sort.Strings(models)
	assert.Equal(t, []string{"model_000.pb", "model_001.pb"}, models)
}

// Teacher injection composes with shuffling: the teacher is added to the
// driver's model list first, then the grown list is permuted.
func TestExecuteTeacherThenShuffle(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	student := writeModel(t, invDir, "student.pb", "student-bytes")
	teacher := writeModel(t, invDir, "teacher.pb", "teacher-bytes")
	engine := writeStubScript(t, invDir, "lmp_stub.sh", stubEngineBody)

	op := &RunLAMMPS{}
	_, err := op.Execute(context.Background(), &Input{
		Config: map[string]any{
			"command":            engine,
			"teacher_model_path": teacher,
			"shuffle_models":     true,
		},
		TaskName: "task.000009",
		TaskPath: taskPath,
		Models:   []string{student},
	})
	require.NoError(t, err)

	patched, err := os.ReadFile(filepath.Join("task.000009", InputName))
	require.NoError(t, err)
	fields := strings.Fields(strings.Split(string(patched), "\n")[2])
	require.Len(t, fields, 8)

	models := append([]string(nil), fields[2:4]...)
	sort.Strings(models)
	assert.Equal(t, []string{"model_000.pb", "model_001.pb"}, models)
	assert.Equal(t, []string{"out_freq", "10", "out_file", "model_devi.out"}, fields[4:])

	// Staged artifacts keep their identity regardless of driver order.
	model0, err := os.ReadFile(filepath.Join("task.000009", ModelNameFor(0)))
	require.NoError(t, err)
	assert.Equal(t, "teacher-bytes", string(model0))

	model1, err := os.ReadFile(filepath.Join("task.000009", ModelNameFor(1)))
	require.NoError(t, err)
	assert.Equal(t, "student-bytes", string(model1))
}

func TestExecutePyTorchFreeze(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	checkpoint := writeModel(t, invDir, "model.ckpt", "checkpoint-bytes")
	engine := writeStubScript(t, invDir, "lmp_stub.sh", stubEngineBody)
	freeze := writeStubScript(t, invDir, "freeze_stub.sh", `echo "$@" > freeze_args.txt
cp "$1" "$3"`)

	op := &RunLAMMPS{FreezeCommand: freeze}
	_, err := op.Execute(context.Background(), &Input{
		Config: map[string]any{
			"command": engine,
			"impl":    "pytorch",
			"head":    "water",
		},
		TaskName: "task.000005",
		TaskPath: taskPath,
		Models:   []string{checkpoint},
	})
	require.NoError(t, err)

	frozen, err := os.ReadFile(filepath.Join("task.000005", ModelNameFor(0)))
	require.NoError(t, err)
	assert.Equal(t, "checkpoint-bytes", string(frozen))

	args, err := os.ReadFile(filepath.Join("task.000005", "freeze_args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "-o model_000.pb")
	assert.Contains(t, string(args), "--head water")
}

func TestExecuteFreezeFailureIsTransient(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	checkpoint := writeModel(t, invDir, "model.ckpt", "checkpoint-bytes")
	freeze := writeStubScript(t, invDir, "freeze_stub.sh", `echo "no such checkpoint" >&2
exit 2`)

	var logBuf bytes.Buffer
	op := &RunLAMMPS{
		Logger:        slog.New(slog.NewTextHandler(&logBuf, nil)),
		FreezeCommand: freeze,
	}
	_, err := op.Execute(context.Background(), &Input{
		Config: map[string]any{
			"impl": "pytorch",
		},
		TaskName: "task.000006",
		TaskPath: taskPath,
		Models:   []string{checkpoint},
	})
	require.Error(t, err)
	assert.True(t, operr.IsTransient(err), "freeze failure must be retryable, got %v", err)
	assert.Contains(t, logBuf.String(), "no such checkpoint")

	wd, err := os.Getwd()
	require.NoError(t, err)
	assertSamePath(t, invDir, wd)
}

func TestExecuteReportsPlumedOutput(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	model := writeModel(t, invDir, "candidate.pb", "dummy-model")
	engine := writeStubScript(t, invDir, "lmp_stub.sh", stubEngineBody+`
echo "bias 0.0" > output.plumed`)

	op := &RunLAMMPS{}
	out, err := op.Execute(context.Background(), &Input{
		Config:   map[string]any{"command": engine},
		TaskName: "task.000007",
		TaskPath: taskPath,
		Models:   []string{model},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("task.000007", PlmOutputName), out.PlmOutput)
}

func TestExecuteRejectsInvalidConfig(t *testing.T) {
	invDir := chdirTemp(t)

	taskPath := newTaskPath(t, invDir, driverTemplate)
	model := writeModel(t, invDir, "candidate.pb", "dummy-model")

	op := &RunLAMMPS{}
	_, err := op.Execute(context.Background(), &Input{
		Config:   map[string]any{"comand": "lmp"},
		TaskName: "task.000008",
		TaskPath: taskPath,
		Models:   []string{model},
	})
	require.Error(t, err)
	assert.True(t, operr.IsFatal(err))

	_, statErr := os.Stat("task.000008")
	assert.True(t, os.IsNotExist(statErr))
}

// assertSamePath compares paths after resolving symlinks, since TempDir
// may live behind one on some platforms.
func assertSamePath(t *testing.T, want, got string) {
	t.Helper()
	wantR, err := filepath.EvalSymlinks(want)
	require.NoError(t, err)
	gotR, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, wantR, gotR)
}
