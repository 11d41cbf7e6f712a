package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/potflow/lmprun/internal/lammps"
	"github.com/potflow/lmprun/internal/taskfile"
	"github.com/potflow/lmprun/internal/validation"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [task.yaml ...]",
		Short: "Check whether exploration tasks are ready to run",
		Long: `Check whether exploration tasks are ready to run.

Performs the following checks per task file:
  1. Schema - Validates the task file against the task schema
  2. Driver file - in.lammps present with exactly one deepmd pair_style line
  3. Models - All candidate model artifacts exist
  4. Config - The operator config normalizes cleanly

Provides a plain-language summary and suggests next steps.

With no arguments, checks task.yaml in the current directory:
  lmprun check                 # ./task.yaml
  lmprun check task.yaml       # one task
  lmprun check tasks/*/task.yaml  # a whole suite, with summary table`,
		Args:          cobra.ArbitraryArgs,
		RunE:          runCheck,
		SilenceErrors: true,
	}
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

// --- JSON output structs ---

type checkJSONReport struct {
	Timestamp string           `json:"timestamp"`
	Tasks     []taskJSONReport `json:"tasks"`
}

type taskJSONReport struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Ready     bool       `json:"ready"`
	Schema    schemaJSON `json:"schema"`
	Driver    driverJSON `json:"driver"`
	Models    modelsJSON `json:"models"`
	Config    configJSON `json:"config"`
	NextSteps []string   `json:"nextSteps"`
}

type schemaJSON struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type driverJSON struct {
	Found         bool   `json:"found"`
	PairStyleLine string `json:"pairStyleLine,omitempty"`
	Error         string `json:"error,omitempty"`
}

type modelsJSON struct {
	Found   int      `json:"found"`
	Total   int      `json:"total"`
	Missing []string `json:"missing,omitempty"`
}

type configJSON struct {
	Valid   bool   `json:"valid"`
	Command string `json:"command,omitempty"`
	Teacher bool   `json:"teacher"`
	Error   string `json:"error,omitempty"`
}

type readinessReport struct {
	taskFile      string // path to the task file that was checked
	taskName      string
	command       string // normalized engine command
	schemaErrs    []string
	inputsErr     string // task_path missing or not a directory
	driverErr     string // driver file missing or not patchable
	driverLine    string // the matched pair_style line (when found)
	modelsTotal   int
	modelsMissing []string
	configErr     string
	teacher       bool // config stages a teacher model
	teacherErr    string
}

// ready reports whether every check passed.
func (r *readinessReport) ready() bool {
	return len(r.schemaErrs) == 0 &&
		r.inputsErr == "" &&
		r.driverErr == "" &&
		len(r.modelsMissing) == 0 &&
		r.configErr == "" &&
		r.teacherErr == ""
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format %q: expected text or json", format)
	}

	paths := args
	if len(paths) == 0 {
		// Fallback: task.yaml in the current directory
		if _, err := os.Stat("task.yaml"); err != nil {
			return fmt.Errorf("no task files given and no task.yaml in the current directory")
		}
		paths = []string{"task.yaml"}
	}

	w := cmd.OutOrStdout()
	var reports []*readinessReport

	for _, path := range paths {
		report, err := checkReadiness(path)
		if err != nil {
			return fmt.Errorf("checking task %s: %w", path, err)
		}
		reports = append(reports, report)
		if format == "text" {
			displayReadinessReport(w, report)
		}
	}

	if format == "text" && len(reports) > 1 {
		printCheckSummaryTable(w, reports)
	}

	if format == "json" {
		return outputCheckJSON(cmd, reports)
	}
	return nil
}

func checkReadiness(path string) (*readinessReport, error) {
	report := &readinessReport{taskFile: path}

	// 1. Schema validation
	schemaErrs, err := validation.ValidateTaskFile(path)
	if err != nil {
		return nil, err
	}
	report.schemaErrs = schemaErrs
	if len(schemaErrs) > 0 {
		// The remaining checks need a well-formed task file.
		return report, nil
	}

	// 2. Parse and resolve paths
	task, err := taskfile.Load(path)
	if err != nil {
		return nil, err
	}
	report.taskName = task.TaskName
	report.modelsTotal = len(task.Models)

	// 3. Inputs directory and driver file
	if info, err := os.Stat(task.TaskPath); err != nil || !info.IsDir() {
		report.inputsErr = fmt.Sprintf("inputs directory %s not found", task.TaskPath)
	} else {
		driverPath := filepath.Join(task.TaskPath, lammps.InputName)
		if _, err := os.Stat(driverPath); err != nil {
			report.driverErr = fmt.Sprintf("driver file %s not found", driverPath)
		} else if line, err := lammps.CheckDriver(driverPath); err != nil {
			report.driverErr = err.Error()
		} else {
			report.driverLine = line
		}
	}

	// 4. Model artifacts
	for _, m := range task.Models {
		if _, err := os.Stat(m); err != nil {
			report.modelsMissing = append(report.modelsMissing, m)
		}
	}

	// 5. Operator config
	cfg, err := lammps.NormalizeConfig(task.Config)
	if err != nil {
		report.configErr = err.Error()
		return report, nil
	}
	report.command = cfg.Command

	// 6. Teacher model preconditions
	if cfg.TeacherModel != nil {
		report.teacher = true
		if len(task.Models) != 1 {
			report.teacherErr = fmt.Sprintf("knowledge distillation requires exactly one model, got %d", len(task.Models))
		} else if cfg.TeacherModel.Path != "" {
			if _, err := os.Stat(cfg.TeacherModel.Path); err != nil {
				report.teacherErr = fmt.Sprintf("teacher model %s not found", cfg.TeacherModel.Path)
			}
		}
	}

	return report, nil
}

func printCheckSummaryTable(w writer, reports []*readinessReport) {
	const maxNameWidth = 25
	const minNameWidth = 10

	// Compute dynamic column width from the longest task name.
	nameWidth := len("Task")
	for _, r := range reports {
		if runeLen := utf8.RuneCountInString(summaryName(r)); runeLen > nameWidth {
			nameWidth = runeLen
		}
	}
	if nameWidth > maxNameWidth {
		nameWidth = maxNameWidth
	}
	if nameWidth < minNameWidth {
		nameWidth = minNameWidth
	}

	// Fixed column widths (display columns) for emoji-safe alignment.
	const colSchema = 8
	const colDriver = 8
	const colModels = 8
	const colConfig = 8
	totalWidth := nameWidth + colSchema + colDriver + colModels + colConfig + len("Ready") + 10 // 5 gaps of 2 spaces

	fmt.Fprintf(w, "\n")                                      //nolint:errcheck
	fmt.Fprintf(w, "%s\n", strings.Repeat("═", totalWidth))   //nolint:errcheck
	fmt.Fprintf(w, " CHECK SUMMARY\n")                        //nolint:errcheck
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("═", totalWidth)) //nolint:errcheck

	fmt.Fprintf(w, "%s  %s  %s  %s  %s  %s\n", //nolint:errcheck
		padRight("Task", nameWidth),
		padRight("Schema", colSchema),
		padRight("Driver", colDriver),
		padRight("Models", colModels),
		padRight("Config", colConfig),
		"Ready")
	fmt.Fprintf(w, "%s\n", strings.Repeat("─", totalWidth)) //nolint:errcheck

	for _, r := range reports {
		name := truncateName(summaryName(r), nameWidth)

		schemaStatus := "✅"
		if len(r.schemaErrs) > 0 {
			schemaStatus = "❌"
		}
		driverStatus := "✅"
		if r.inputsErr != "" || r.driverErr != "" {
			driverStatus = "❌"
		} else if len(r.schemaErrs) > 0 {
			driverStatus = "—"
		}
		modelsStr := fmt.Sprintf("%d/%d", r.modelsTotal-len(r.modelsMissing), r.modelsTotal)
		if len(r.schemaErrs) > 0 {
			modelsStr = "—"
		}
		configStatus := "✅"
		if r.configErr != "" || r.teacherErr != "" {
			configStatus = "❌"
		} else if len(r.schemaErrs) > 0 {
			configStatus = "—"
		}
		readyStatus := "✅"
		if !r.ready() {
			readyStatus = "⚠️"
		}

		fmt.Fprintf(w, "%s  %s  %s  %s  %s  %s\n", //nolint:errcheck
			padRight(name, nameWidth),
			padRight(schemaStatus, colSchema),
			padRight(driverStatus, colDriver),
			padRight(modelsStr, colModels),
			padRight(configStatus, colConfig),
			readyStatus)
	}
	fmt.Fprintf(w, "\n") //nolint:errcheck
}

// summaryName prefers the parsed task name, falling back to the file path.
func summaryName(r *readinessReport) string {
	if r.taskName != "" {
		return r.taskName
	}
	return r.taskFile
}

// truncateName shortens a name to maxLen runes, replacing the last rune with "…" if needed.
func truncateName(name string, maxLen int) string {
	runes := []rune(name)
	if len(runes) <= maxLen {
		return name
	}
	return string(runes[:maxLen-1]) + "…"
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

// outputCheckJSON marshals reports as JSON to the command's stdout.
func outputCheckJSON(cmd *cobra.Command, reports []*readinessReport) error {
	jsonReport := checkJSONReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Tasks:     make([]taskJSONReport, 0, len(reports)),
	}
	for _, r := range reports {
		jsonReport.Tasks = append(jsonReport.Tasks, buildTaskJSON(r))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonReport); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), buf.String())
	return err
}

// buildTaskJSON converts a readinessReport to its JSON representation.
func buildTaskJSON(report *readinessReport) taskJSONReport {
	jr := taskJSONReport{
		Name:  summaryName(report),
		Path:  report.taskFile,
		Ready: report.ready(),
	}

	jr.Schema = schemaJSON{
		Valid:  len(report.schemaErrs) == 0,
		Errors: report.schemaErrs,
	}

	driverErr := report.inputsErr
	if driverErr == "" {
		driverErr = report.driverErr
	}
	jr.Driver = driverJSON{
		Found:         len(report.schemaErrs) == 0 && driverErr == "",
		PairStyleLine: report.driverLine,
		Error:         driverErr,
	}

	jr.Models = modelsJSON{
		Found:   report.modelsTotal - len(report.modelsMissing),
		Total:   report.modelsTotal,
		Missing: report.modelsMissing,
	}

	jr.Config = configJSON{
		Valid:   len(report.schemaErrs) == 0 && report.configErr == "" && report.teacherErr == "",
		Command: report.command,
		Teacher: report.teacher,
	}
	if report.configErr != "" {
		jr.Config.Error = report.configErr
	} else if report.teacherErr != "" {
		jr.Config.Error = report.teacherErr
	}

	jr.NextSteps = generateNextSteps(report)

	return jr
}

// ---------------------------------------------------------------------------
// Shared display helpers for check output formatting.
//
// Convention:
//   Section header:  "emoji Title: summary\n"
//   Status line:     "   emoji  message\n"   (3-space indent, emoji, 2-space gap)
//
// 3-state icons:  ✅ = ok/passed   ⚠️ = warning   ❌ = error/failed
// ---------------------------------------------------------------------------

type writer = interface{ Write([]byte) (int, error) }

// writeSection prints a section header: "emoji Title: summary\n".
//
//nolint:errcheck
func writeSection(w writer, emoji, title, summary string) {
	if summary != "" {
		fmt.Fprintf(w, "%s %s: %s\n", emoji, title, summary)
	} else {
		fmt.Fprintf(w, "%s %s\n", emoji, title)
	}
}

// writeStatus prints a status line: "   icon  message\n".
//
//nolint:errcheck
func writeStatus(w writer, icon, message string) {
	fmt.Fprintf(w, "   %s  %s\n", icon, message)
}

// statusIcon returns the standard 3-state icon for the given state.
func statusIcon(state string) string {
	switch state {
	case "ok":
		return "✅"
	case "warning":
		return "⚠️"
	case "error":
		return "❌"
	default:
		return "—"
	}
}

//nolint:errcheck // display function, Fprintf errors to stdout are not actionable
func displayReadinessReport(w writer, report *readinessReport) {
	// Header
	fmt.Fprintf(w, "\n🔍 Exploration Task Check\n")
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	fmt.Fprintf(w, "Task: %s\n\n", summaryName(report))

	// 1. Schema
	if len(report.schemaErrs) > 0 {
		writeSection(w, "📐", "Schema", fmt.Sprintf("%d error(s)", len(report.schemaErrs)))
		for _, e := range report.schemaErrs {
			writeStatus(w, statusIcon("error"), e)
		}
		fmt.Fprintf(w, "\n")
		displayReadinessVerdict(w, report)
		return
	}
	writeSection(w, "📐", "Schema", "Valid")
	writeStatus(w, statusIcon("ok"), "task file matches the schema")
	fmt.Fprintf(w, "\n")

	// 2. Driver file
	writeSection(w, "📄", "Driver File", lammps.InputName)
	switch {
	case report.inputsErr != "":
		writeStatus(w, statusIcon("error"), report.inputsErr)
	case report.driverErr != "":
		writeStatus(w, statusIcon("error"), report.driverErr)
	default:
		writeStatus(w, statusIcon("ok"), report.driverLine)
	}
	fmt.Fprintf(w, "\n")

	// 3. Models
	found := report.modelsTotal - len(report.modelsMissing)
	writeSection(w, "🧠", "Models", fmt.Sprintf("%d/%d present", found, report.modelsTotal))
	if len(report.modelsMissing) == 0 {
		writeStatus(w, statusIcon("ok"), "all model artifacts found")
	} else {
		for _, m := range report.modelsMissing {
			writeStatus(w, statusIcon("error"), fmt.Sprintf("missing %s", m))
		}
	}
	fmt.Fprintf(w, "\n")

	// 4. Config
	if report.configErr != "" {
		writeSection(w, "⚙️", "Config", "Invalid")
		writeStatus(w, statusIcon("error"), report.configErr)
	} else {
		writeSection(w, "⚙️", "Config", report.command)
		writeStatus(w, statusIcon("ok"), "config normalizes cleanly")
		if report.teacher {
			if report.teacherErr != "" {
				writeStatus(w, statusIcon("error"), report.teacherErr)
			} else {
				writeStatus(w, statusIcon("ok"), "teacher model staged for knowledge distillation")
			}
		}
	}
	fmt.Fprintf(w, "\n")

	displayReadinessVerdict(w, report)
}

//nolint:errcheck // display function, Fprintf errors to stdout are not actionable
func displayReadinessVerdict(w writer, report *readinessReport) {
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(w, "📈 Overall Readiness\n")
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	if report.ready() {
		fmt.Fprintf(w, "✅ Task is ready to run!\n\n")
		fmt.Fprintf(w, "Run it with 'lmprun run %s'\n", report.taskFile)
		fmt.Fprintf(w, "\n")
		return
	}

	fmt.Fprintf(w, "⚠️  Task needs some work before it can run.\n\n")

	fmt.Fprintf(w, "🎯 Next Steps\n")
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	for i, step := range generateNextSteps(report) {
		fmt.Fprintf(w, "%d. %s\n", i+1, step)
	}
	fmt.Fprintf(w, "\n")
}

func generateNextSteps(report *readinessReport) []string {
	var steps []string

	// Schema errors first: the other checks never ran
	if len(report.schemaErrs) > 0 {
		steps = append(steps, fmt.Sprintf("Fix %d schema error(s) in %s", len(report.schemaErrs), report.taskFile))
		return steps
	}

	if report.inputsErr != "" {
		steps = append(steps, "Create the inputs directory with a driver file, e.g. 'lmprun new <task-name>'")
	}
	if report.driverErr != "" {
		steps = append(steps, fmt.Sprintf("Fix the driver file: %s", report.driverErr))
	}
	if len(report.modelsMissing) > 0 {
		steps = append(steps, fmt.Sprintf("Stage %d missing model artifact(s)", len(report.modelsMissing)))
	}
	if report.configErr != "" {
		steps = append(steps, fmt.Sprintf("Fix the config block: %s", report.configErr))
	}
	if report.teacherErr != "" {
		steps = append(steps, fmt.Sprintf("Fix the teacher model setup: %s", report.teacherErr))
	}

	return steps
}
