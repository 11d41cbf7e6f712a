package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/potflow/lmprun/internal/lammps"
	"github.com/potflow/lmprun/internal/taskfile"
)

var (
	outputPath    string
	workDir       string
	freezeCommand string
	format        string
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task.yaml>",
		Short: "Run an exploration task",
		Long: `Run one LAMMPS exploration task from a task file.

The task file names the pre-staged input directory, the candidate models,
and the operator config. The working directory for the run is created
under the current directory (or --work-dir) using the task name.

Exit codes: 0 on success, 1 when the engine failed and the run may be
retried, 2 for configuration or runtime errors.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output JSON file for collected run artifacts")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Directory to create the task working directory in (default: current directory)")
	cmd.Flags().StringVar(&freezeCommand, "freeze-command", "", "Command used to freeze PyTorch checkpoints (default: "+lammps.DefaultFreezeCommand+")")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text | json")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: expected text or json", format)
	}

	// Resolve paths before any chdir so --work-dir cannot reanchor them.
	taskFile := args[0]
	if !filepath.IsAbs(taskFile) {
		if abs, err := filepath.Abs(taskFile); err == nil {
			taskFile = abs
		}
	}
	if outputPath != "" && !filepath.IsAbs(outputPath) {
		if abs, err := filepath.Abs(outputPath); err == nil {
			outputPath = abs
		}
	}

	task, err := taskfile.Load(taskFile)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	if workDir != "" {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("creating work directory: %w", err)
		}
		if err := os.Chdir(workDir); err != nil {
			return fmt.Errorf("entering work directory: %w", err)
		}
	}

	w := cmd.OutOrStdout()
	if format == "text" {
		fmt.Fprintf(w, "Running exploration task: %s\n", task.TaskName) //nolint:errcheck
		fmt.Fprintf(w, "Inputs: %s\n", task.TaskPath)                   //nolint:errcheck
		fmt.Fprintf(w, "Models: %d\n\n", len(task.Models))              //nolint:errcheck
	}

	op := &lammps.RunLAMMPS{
		Logger:        slog.Default(),
		FreezeCommand: freezeCommand,
	}

	output, err := op.Execute(cmd.Context(), &lammps.Input{
		Config:   task.Config,
		TaskName: task.TaskName,
		TaskPath: task.TaskPath,
		Models:   task.Models,
	})
	if err != nil {
		return err
	}

	switch format {
	case "json":
		if err := writeOutputJSON(w, output); err != nil {
			return err
		}
	default:
		printRunSummary(w, output)
	}

	if outputPath != "" {
		if err := saveOutput(output, outputPath); err != nil {
			return fmt.Errorf("failed to save output: %w", err)
		}
		if format == "text" {
			fmt.Fprintf(w, "\nOutputs saved to: %s\n", outputPath) //nolint:errcheck
		}
	}

	return nil
}

//nolint:errcheck
func printRunSummary(w writer, output *lammps.Output) {
	fmt.Fprintf(w, "Run completed.\n\n")
	fmt.Fprintf(w, "Log:             %s\n", output.Log)
	fmt.Fprintf(w, "Trajectory:      %s\n", output.Traj)
	fmt.Fprintf(w, "Model deviation: %s\n", output.ModelDevi)
	if output.PlmOutput != "" {
		fmt.Fprintf(w, "PLUMED output:   %s\n", output.PlmOutput)
	}
}

// writeOutputJSON marshals the collected artifacts as indented JSON.
func writeOutputJSON(w writer, output *lammps.Output) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err := fmt.Fprint(w, buf.String())
	return err
}

func saveOutput(output *lammps.Output, path string) error {
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
