// Package wizard provides the interactive prompts behind lmprun new.
package wizard

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/potflow/lmprun/internal/lammps"
	"github.com/potflow/lmprun/internal/scaffold"
)

// TaskSpec holds all fields collected during the interactive wizard.
type TaskSpec struct {
	Name       string
	Command    string
	ModelCount int
	Shuffle    bool
	Plumed     bool
	Impl       string
}

// ModelPaths returns the model artifact paths referenced from task.yaml,
// relative to the task directory.
func (s *TaskSpec) ModelPaths() []string {
	paths := make([]string, s.ModelCount)
	for i := range paths {
		paths[i] = fmt.Sprintf("models/model.%03d.pb", i)
	}
	return paths
}

const taskYAMLTemplate = `task_name: {{ .Name }}
task_path: inputs
models:
{{- range .ModelPaths }}
  - {{ . }}
{{- end }}
config:
  command: {{ .Command }}
  shuffle_models: {{ .Shuffle }}
  impl: {{ .Impl }}
`

// RunTaskWizard runs an interactive huh form to collect task settings.
// Fields already set on initial pre-populate the form.
func RunTaskWizard(in io.Reader, out io.Writer, initial *TaskSpec) (*TaskSpec, error) {
	var (
		name       = initial.Name
		command    = initial.Command
		modelCount = strconv.Itoa(initial.ModelCount)
		shuffle    = initial.Shuffle
		plumed     = initial.Plumed
		impl       = initial.Impl
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Task name").
				Description("Directory name for the new exploration task").
				Placeholder("task.000000").
				Value(&name).
				Validate(func(s string) error {
					return scaffold.ValidateTaskName(strings.TrimSpace(s))
				}),
			huh.NewInput().
				Title("Engine command").
				Description("Shell command that launches LAMMPS").
				Placeholder(lammps.DefaultCommand).
				Value(&command).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("engine command is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Candidate models").
				Description("How many models the committee compares").
				Placeholder("4").
				Value(&modelCount).
				Validate(validateModelCount),
			huh.NewSelect[string]().
				Title("Implementation").
				Description("DeePMD backend the models were trained with").
				Options(
					huh.NewOption("tensorflow", lammps.ImplTensorFlow),
					huh.NewOption("pytorch", lammps.ImplPyTorch),
				).
				Value(&impl),
			huh.NewConfirm().
				Title("Shuffle model order?").
				Description("Randomize which model drives the forces").
				Value(&shuffle),
			huh.NewConfirm().
				Title("Use PLUMED?").
				Description("Stage a PLUMED input next to the driver file").
				Value(&plumed),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(modelCount))
	if err != nil {
		return nil, fmt.Errorf("invalid model count %q: %w", modelCount, err)
	}

	return &TaskSpec{
		Name:       strings.TrimSpace(name),
		Command:    strings.TrimSpace(command),
		ModelCount: count,
		Shuffle:    shuffle,
		Plumed:     plumed,
		Impl:       impl,
	}, nil
}

func validateModelCount(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("model count must be a number")
	}
	if n < 1 {
		return fmt.Errorf("at least one model is required")
	}
	return nil
}

// GenerateTaskYAML renders a task.yaml from the given spec.
func GenerateTaskYAML(spec *TaskSpec) (string, error) {
	tmpl, err := template.New("taskyaml").Parse(taskYAMLTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, spec); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
