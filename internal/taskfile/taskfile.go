// Package taskfile loads exploration task files.
package taskfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/potflow/lmprun/internal/validation"
)

// Task describes one exploration run: where its pre-staged inputs live,
// which candidate models drive it, and the operator config.
type Task struct {
	TaskName string         `yaml:"task_name"`
	TaskPath string         `yaml:"task_path"`
	Models   []string       `yaml:"models"`
	Config   map[string]any `yaml:"config,omitempty"`
}

// Load reads a task from a YAML file, schema-validating it first.
// Relative task_path and models entries are resolved against the
// file's directory.
func Load(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if errs := validation.ValidateTaskBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("task file %s is invalid:\n  %s", path, strings.Join(errs, "\n  "))
	}

	var task Task
	if err := yaml.Unmarshal(data, &task); err != nil {
		return nil, err
	}

	task.ResolvePaths(filepath.Dir(path))
	return &task, nil
}

// ResolvePaths rewrites relative task_path, model entries, and the
// teacher_model_path string form so they are anchored at baseDir instead
// of the process working directory.
func (t *Task) ResolvePaths(baseDir string) {
	t.TaskPath = resolvePath(t.TaskPath, baseDir)
	for i, m := range t.Models {
		t.Models[i] = resolvePath(m, baseDir)
	}
	if p, ok := t.Config["teacher_model_path"].(string); ok {
		t.Config["teacher_model_path"] = resolvePath(p, baseDir)
	}
}

func resolvePath(p, baseDir string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
