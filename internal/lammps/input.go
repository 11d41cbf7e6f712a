package lammps

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/potflow/lmprun/internal/operr"
)

// AddTeacherModel rewrites the driver file at path for knowledge
// distillation: on the single pair_style deepmd line, every reference to
// the index-0 model is replaced by the index-0 and index-1 models joined
// by a space. The line must already reference the index-0 model.
func AddTeacherModel(path string) error {
	lines, err := readDriverLines(path)
	if err != nil {
		return err
	}

	idx, err := findOnlyOneKey(lines, pairStyleKey)
	if err != nil {
		return err
	}

	model0 := ModelNameFor(0)
	if !strings.Contains(lines[idx], model0) {
		return operr.Fatalf("cannot find %q in driver line %q", model0, lines[idx])
	}

	both := model0 + " " + ModelNameFor(1)
	lines[idx] = strings.ReplaceAll(lines[idx], model0, both)

	return writeDriverLines(path, lines)
}

// ShuffleModels rewrites the driver file at path so the contiguous run of
// model tokens on the single pair_style deepmd line is randomly permuted.
// The run must be terminated by a non-model token and must be the only
// group of model tokens on the line.
func ShuffleModels(path string) error {
	lines, err := readDriverLines(path)
	if err != nil {
		return err
	}

	idx, err := findOnlyOneKey(lines, pairStyleKey)
	if err != nil {
		return err
	}

	terminator := lineTerminator(lines[idx])
	fields := strings.Fields(lines[idx])

	matchFirst := -1
	matchLast := -1
	for i, f := range fields {
		if modelNameRegexp.MatchString(f) {
			if matchFirst == -1 {
				matchFirst = i
			}
		} else if matchFirst != -1 {
			matchLast = i
			break
		}
	}
	if matchFirst == -1 {
		return operr.Fatalf("cannot find model pattern %s in driver line %q",
			modelNameRegexp, lines[idx])
	}
	if matchLast == -1 {
		return operr.Fatalf("model tokens run to end of driver line %q", lines[idx])
	}
	for i := matchLast; i < len(fields); i++ {
		if modelNameRegexp.MatchString(fields[i]) {
			return operr.Fatalf("unexpected second group of model pattern %s in driver line %q",
				modelNameRegexp, lines[idx])
		}
	}

	run := fields[matchFirst:matchLast]
	rand.Shuffle(len(run), func(i, j int) {
		run[i], run[j] = run[j], run[i]
	})

	lines[idx] = strings.Join(fields, " ") + terminator

	return writeDriverLines(path, lines)
}

// CheckDriver verifies the driver file at path can be patched: the deepmd
// pair style must appear on exactly one line. It returns that line.
func CheckDriver(path string) (string, error) {
	lines, err := readDriverLines(path)
	if err != nil {
		return "", err
	}

	idx, err := findOnlyOneKey(lines, pairStyleKey)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(lines[idx], "\r\n"), nil
}

// findOnlyOneKey returns the index of the single line whose first tokens
// equal key. Zero or multiple matching lines means the driver template is
// malformed.
func findOnlyOneKey(lines []string, key []string) (int, error) {
	var found []int
	for i, line := range lines {
		words := strings.Fields(line)
		if len(words) < len(key) {
			continue
		}
		match := true
		for j, k := range key {
			if words[j] != k {
				match = false
				break
			}
		}
		if match {
			found = append(found, i)
		}
	}
	if len(found) > 1 {
		return 0, operr.Fatalf("found %d lines with keywords %v", len(found), key)
	}
	if len(found) == 0 {
		return 0, operr.Fatalf("failed to find keywords %v", key)
	}
	return found[0], nil
}

// readDriverLines splits the file into lines, each keeping its terminator
// so the file can be written back byte-identically except for the one
// transformed line.
func readDriverLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading driver file %s: %w", path, err)
	}
	lines := strings.SplitAfter(string(data), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines, nil
}

func writeDriverLines(path string, lines []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(lines, "")), 0o644); err != nil {
		return fmt.Errorf("writing driver file %s: %w", path, err)
	}
	return nil
}

func lineTerminator(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	default:
		return ""
	}
}
