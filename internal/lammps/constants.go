// Package lammps implements the exploration-run operator: it stages a
// per-task working directory, patches the LAMMPS driver file for
// teacher-model injection and model-order shuffling, invokes the engine,
// and collects the trajectory, log, and model-deviation outputs.
package lammps

import (
	"fmt"
	"regexp"
)

// Fixed file names inside a task directory.
const (
	ConfName      = "conf.lmp"
	InputName     = "in.lammps"
	TrajName      = "traj.dump"
	LogName       = "log.lammps"
	ModelDeviName = "model_devi.out"
	PlmInputName  = "input.plumed"
	PlmOutputName = "output.plumed"

	// TeacherModelName is where a configured teacher model is materialized,
	// in the invocation directory (not the task directory).
	TeacherModelName = "teacher_model.pb"
)

// ModelNamePattern names the staged model for a zero-based index, e.g.
// model_000.pb for index 0.
const ModelNamePattern = "model_%03d.pb"

// ModelNameFor returns the staged file name for the model at idx.
func ModelNameFor(idx int) string {
	return fmt.Sprintf(ModelNamePattern, idx)
}

// modelNameRegexp matches one whitespace-separated driver-file token that
// references a staged model.
var modelNameRegexp = regexp.MustCompile(`^model_[0-9]{3,}\.pb$`)

// pairStyleKey is the keyword pair identifying the one driver-file line
// that lists the deepmd model files.
var pairStyleKey = []string{"pair_style", "deepmd"}

// Recognized values for the impl config option.
const (
	ImplTensorFlow = "tensorflow"
	ImplPyTorch    = "pytorch"
)

// Command defaults. DefaultFreezeCommand converts a pytorch checkpoint
// into a deployable model file; RunLAMMPS.FreezeCommand overrides it.
const (
	DefaultCommand       = "lmp"
	DefaultFreezeCommand = "dp_pt freeze"
)
