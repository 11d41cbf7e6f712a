package lammps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/potflow/lmprun/internal/operr"
	"github.com/potflow/lmprun/internal/runcmd"
	"github.com/potflow/lmprun/internal/workdir"
)

// Input carries everything one exploration run needs from the caller.
type Input struct {
	// Config is the raw task config mapping, normalized per NormalizeConfig.
	Config map[string]any
	// TaskName names the working directory, created under the invocation
	// directory.
	TaskName string
	// TaskPath is the directory holding the pre-staged driver and template
	// files; every file in it is symlinked into the working directory.
	TaskPath string
	// Models are the candidate model artifacts, in order. The first model
	// drives the simulation.
	Models []string
}

// Output is the collected result bundle. Paths are relative to the
// invocation directory, under the task directory.
type Output struct {
	Log       string `json:"log"`
	Traj      string `json:"traj"`
	ModelDevi string `json:"model_devi"`
	PlmOutput string `json:"plm_output,omitempty"`
}

// RunLAMMPS executes one exploration task: stage the working directory,
// patch the driver file, invoke the engine, and collect outputs.
type RunLAMMPS struct {
	// Logger receives failure diagnostics (full command line and both
	// captured streams). nil means slog.Default().
	Logger *slog.Logger
	// FreezeCommand overrides DefaultFreezeCommand for pytorch checkpoints.
	FreezeCommand string
}

// Execute runs the task. It returns a transient error when the freeze
// conversion or the engine exits non-zero, and a fatal error when the
// config or the driver template violates a precondition.
func (op *RunLAMMPS) Execute(ctx context.Context, in *Input) (*Output, error) {
	cfg, err := NormalizeConfig(in.Config)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(in.TaskPath)
	if err != nil {
		return nil, fmt.Errorf("listing task path %s: %w", in.TaskPath, err)
	}
	inputFiles := make([]string, 0, len(entries))
	for _, e := range entries {
		abs, err := filepath.Abs(filepath.Join(in.TaskPath, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("resolving input %s: %w", e.Name(), err)
		}
		inputFiles = append(inputFiles, abs)
	}

	modelFiles := make([]string, 0, len(in.Models)+1)
	for _, m := range in.Models {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("resolving model %s: %w", m, err)
		}
		modelFiles = append(modelFiles, abs)
	}

	if cfg.TeacherModel != nil {
		if len(modelFiles) != 1 {
			return nil, operr.Fatalf("knowledge distillation requires exactly one model, got %d", len(modelFiles))
		}
		if err := cfg.TeacherModel.SaveAs(TeacherModelName); err != nil {
			return nil, fmt.Errorf("materializing teacher model: %w", err)
		}
		abs, err := filepath.Abs(TeacherModelName)
		if err != nil {
			return nil, fmt.Errorf("resolving teacher model: %w", err)
		}
		modelFiles = append([]string{abs}, modelFiles...)
	}

	if err := op.runInTaskDir(ctx, cfg, in.TaskName, inputFiles, modelFiles); err != nil {
		return nil, err
	}

	out := &Output{
		Log:       filepath.Join(in.TaskName, LogName),
		Traj:      filepath.Join(in.TaskName, TrajName),
		ModelDevi: filepath.Join(in.TaskName, ModelDeviName),
	}
	if plm := filepath.Join(in.TaskName, PlmOutputName); isFile(plm) {
		out.PlmOutput = plm
	}
	return out, nil
}

// runInTaskDir performs staging, patching, and the engine run with the
// working directory scoped to the task directory. The deferred restore
// runs on every exit path.
func (op *RunLAMMPS) runInTaskDir(ctx context.Context, cfg *Config, taskName string, inputFiles, modelFiles []string) (err error) {
	restore, err := workdir.Enter(taskName)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := restore(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	for _, f := range inputFiles {
		if err := os.Symlink(f, filepath.Base(f)); err != nil {
			return fmt.Errorf("linking input file: %w", err)
		}
	}

	for i, m := range modelFiles {
		name := ModelNameFor(i)
		switch cfg.Impl {
		case ImplTensorFlow:
			if err := os.Symlink(m, name); err != nil {
				return fmt.Errorf("linking model %d: %w", i, err)
			}
		case ImplPyTorch:
			if err := op.freezeModel(ctx, cfg, m, name); err != nil {
				return err
			}
		}
	}

	// Each transform re-reads the driver file and re-locates the
	// pair_style line, so their order here only affects which tokens the
	// shuffle sees.
	if cfg.TeacherModel != nil {
		if err := AddTeacherModel(InputName); err != nil {
			return err
		}
	}
	if cfg.ShuffleModels {
		if err := ShuffleModels(InputName); err != nil {
			return err
		}
	}

	command := strings.Join([]string{cfg.Command, "-i", InputName, "-log", LogName}, " ")
	op.logger().Debug("running engine", "command", command)

	res, err := runcmd.Shell(ctx, command)
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		op.logger().Error("lmp failed",
			"command", res.Command,
			"stdout", res.Stdout,
			"stderr", res.Stderr)
		return operr.Transientf("lmp failed with exit code %d", res.ExitCode)
	}
	return nil
}

// freezeModel converts the checkpoint at src into a deployable model file
// named dst in the current directory.
func (op *RunLAMMPS) freezeModel(ctx context.Context, cfg *Config, src, dst string) error {
	freeze := op.FreezeCommand
	if freeze == "" {
		freeze = DefaultFreezeCommand
	}
	command := fmt.Sprintf("%s %s -o %s", freeze, src, dst)
	if cfg.Head != "" {
		command += " --head " + cfg.Head
	}

	res, err := runcmd.Shell(ctx, command)
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		op.logger().Error("freeze failed",
			"command", res.Command,
			"stdout", res.Stdout,
			"stderr", res.Stderr)
		return operr.Transientf("freeze failed with exit code %d", res.ExitCode)
	}
	return nil
}

func (op *RunLAMMPS) logger() *slog.Logger {
	if op.Logger != nil {
		return op.Logger
	}
	return slog.Default()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
