package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/potflow/lmprun/internal/lammps"
	"github.com/potflow/lmprun/internal/scaffold"
	"github.com/potflow/lmprun/internal/wizard"
)

func newNewCommand() *cobra.Command {
	var modelCount int
	var plumed bool

	cmd := &cobra.Command{
		Use:   "new [task-name]",
		Short: "Scaffold a new exploration task",
		Long: `Scaffold a new exploration task directory.

Creates the layout the run command expects:

  <task-name>/
    task.yaml          task definition
    inputs/
      in.lammps        LAMMPS driver with the deepmd pair_style line
      conf.lmp         initial configuration (placeholder)
    models/            drop candidate model artifacts here

Inside an exploration suite (a directory containing tasks/), the new
task is placed under tasks/. When run from a terminal an interactive
wizard collects the settings; otherwise project defaults from
.lmprun.yaml apply and the task name argument is required.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newCommandE(cmd, args, modelCount, plumed)
		},
	}

	cmd.Flags().IntVarP(&modelCount, "models", "m", 4, "Number of candidate models the committee compares")
	cmd.Flags().BoolVar(&plumed, "plumed", false, "Stage a PLUMED input next to the driver file")

	return cmd
}

func newCommandE(cmd *cobra.Command, args []string, modelCount int, plumed bool) error {
	out := cmd.OutOrStdout()

	var taskName string
	if len(args) > 0 {
		taskName = args[0]
		if err := scaffold.ValidateTaskName(taskName); err != nil {
			return err
		}
	}

	command, impl := scaffold.ReadProjectDefaults()
	spec := &wizard.TaskSpec{
		Name:       taskName,
		Command:    command,
		ModelCount: modelCount,
		Plumed:     plumed,
		Impl:       impl,
	}

	inReader := cmd.InOrStdin()
	isTTY := false
	if f, ok := inReader.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	if isTTY {
		filled, err := wizard.RunTaskWizard(inReader, out, spec)
		if err != nil {
			return err
		}
		spec = filled
	} else if taskName == "" {
		return fmt.Errorf("task name is required when not running interactively")
	}

	rootDir := spec.Name
	if suiteRoot := findTasksRoot(); suiteRoot != "" {
		rootDir = filepath.Join(suiteRoot, "tasks", spec.Name)
	}

	fmt.Fprintf(out, "Scaffolding task %s:\n", spec.Name) //nolint:errcheck
	if err := scaffoldTask(out, rootDir, spec); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nNext steps:\n")                                                                                //nolint:errcheck
	fmt.Fprintf(out, "  1. Stage your model artifacts under %s\n", filepath.Join(rootDir, "models"))                   //nolint:errcheck
	fmt.Fprintf(out, "  2. Edit %s with your system's structure\n", filepath.Join(rootDir, "inputs", lammps.ConfName)) //nolint:errcheck
	fmt.Fprintf(out, "  3. Check readiness with 'lmprun check %s'\n", filepath.Join(rootDir, "task.yaml"))             //nolint:errcheck
	return nil
}

// findTasksRoot walks up from the current directory looking for a tasks/
// directory, which marks the root of an exploration suite. Returns "" when
// there is none.
func findTasksRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < 10; i++ {
		if info, err := os.Stat(filepath.Join(dir, "tasks")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

type fileEntry struct {
	path    string
	content string
}

func scaffoldTask(w writer, rootDir string, spec *wizard.TaskSpec) error {
	taskYAML, err := wizard.GenerateTaskYAML(spec)
	if err != nil {
		return err
	}

	inputsDir := filepath.Join(rootDir, "inputs")
	modelsDir := filepath.Join(rootDir, "models")
	for _, dir := range []string{inputsDir, modelsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	files := []fileEntry{
		{filepath.Join(rootDir, "task.yaml"), taskYAML},
		{filepath.Join(inputsDir, lammps.InputName), scaffold.DriverFile(spec.ModelCount, spec.Plumed)},
		{filepath.Join(inputsDir, lammps.ConfName), scaffold.ConfFile()},
	}
	if spec.Plumed {
		files = append(files, fileEntry{filepath.Join(inputsDir, lammps.PlmInputName), scaffold.PlumedFile()})
	}

	return writeFiles(w, files)
}

// writeFiles writes each entry, skipping files that already exist so
// rerunning new never clobbers hand-edited inputs.
//
//nolint:errcheck
func writeFiles(w writer, files []fileEntry) error {
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			fmt.Fprintf(w, "  skip %s (already exists)\n", f.path)
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
		fmt.Fprintf(w, "  create %s\n", f.path)
	}
	return nil
}
