// Package scaffold provides shared template content for generating
// exploration task directories used by lmprun new.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/potflow/lmprun/internal/lammps"
)

// ValidateTaskName rejects names with path-traversal characters or empty names.
func ValidateTaskName(name string) error {
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	cleaned := filepath.Clean(name)
	if cleaned == ".." || strings.Contains(cleaned, "/") || strings.Contains(cleaned, "\\") {
		return fmt.Errorf("task name %q contains invalid path characters", name)
	}
	return nil
}

// ReadProjectDefaults reads the engine command and implementation from
// .lmprun.yaml if one exists in the current directory or any parent.
// Falls back to the stock lmp command and the TensorFlow backend.
func ReadProjectDefaults() (command, impl string) {
	command = lammps.DefaultCommand
	impl = lammps.ImplTensorFlow

	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 10; i++ {
		configPath := filepath.Join(dir, ".lmprun.yaml")
		data, err := os.ReadFile(configPath)
		if err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				line = strings.TrimSpace(line)
				if strings.HasPrefix(line, "command:") {
					if v := strings.TrimSpace(strings.TrimPrefix(line, "command:")); v != "" {
						command = v
					}
				}
				if strings.HasPrefix(line, "impl:") {
					if v := strings.TrimSpace(strings.TrimPrefix(line, "impl:")); v != "" {
						impl = v
					}
				}
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return
}

// DriverFile returns a default in.lammps referencing modelCount staged models.
func DriverFile(modelCount int, plumed bool) string {
	names := make([]string, modelCount)
	for i := range names {
		names[i] = lammps.ModelNameFor(i)
	}

	plumedFix := ""
	if plumed {
		plumedFix = fmt.Sprintf("fix             dpgen_plm all plumed plumedfile %s outfile %s\n",
			lammps.PlmInputName, lammps.PlmOutputName)
	}

	return fmt.Sprintf(`variable        NSTEPS          equal 1000
variable        THERMO_FREQ     equal 10
variable        DUMP_FREQ       equal 10
variable        TEMP            equal 330.000000
variable        TAU_T           equal 0.100000

units           metal
boundary        p p p
atom_style      atomic

neighbor        1.0 bin

box             tilt large
read_data       %s
change_box      all triclinic
mass            1 16.000000
mass            2 1.000000

pair_style      deepmd %s out_freq ${THERMO_FREQ} out_file %s
pair_coeff      * *

thermo_style    custom step temp pe ke etotal press vol lx ly lz xy xz yz
thermo          ${THERMO_FREQ}
dump            1 all custom ${DUMP_FREQ} %s id type x y z

velocity        all create ${TEMP} 826513 dist gaussian
%sfix             1 all nvt temp ${TEMP} ${TEMP} ${TAU_T}
timestep        0.002000
run             ${NSTEPS}
`, lammps.ConfName, strings.Join(names, " "), lammps.ModelDeviName, lammps.TrajName, plumedFix)
}

// ConfFile returns a placeholder starting configuration (a single water
// molecule) meant to be replaced with real data.
func ConfFile() string {
	return `# Placeholder configuration. Replace with the real starting structure.

3 atoms
2 atom types

0.0 10.0 xlo xhi
0.0 10.0 ylo yhi
0.0 10.0 zlo zhi

Masses

1 16.000000
2 1.000000

Atoms # atomic

1 1 0.000000 0.000000 0.000000
2 2 0.957200 0.000000 0.000000
3 2 -0.239988 0.926627 0.000000
`
}

// PlumedFile returns a placeholder PLUMED input.
func PlumedFile() string {
	return `# Placeholder PLUMED input. Replace with the real bias definition.
d1: DISTANCE ATOMS=1,2
PRINT ARG=d1 FILE=colvar STRIDE=10
`
}
