package lammps

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// ModelSource references a model artifact either by filesystem path or by
// inline base64 content. Inline content travels inside the task config so
// a task file can carry a small teacher model without a shared filesystem.
type ModelSource struct {
	Path    string `mapstructure:"path"`
	Name    string `mapstructure:"name"`
	Content string `mapstructure:"content"`
}

// SaveAs materializes the model at dst, decoding inline content when
// present and copying from Path otherwise.
func (m *ModelSource) SaveAs(dst string) error {
	if m.Content != "" {
		data, err := base64.StdEncoding.DecodeString(m.Content)
		if err != nil {
			return fmt.Errorf("decoding inline model content: %w", err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("writing model %s: %w", dst, err)
		}
		return nil
	}

	if m.Path == "" {
		return fmt.Errorf("model source has neither path nor content")
	}

	src, err := os.Open(m.Path)
	if err != nil {
		return fmt.Errorf("opening model %s: %w", m.Path, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating model %s: %w", dst, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("copying model %s: %w", m.Path, err)
	}
	return out.Close()
}
