// Package validation checks task YAML files against the embedded JSON
// schema before any filesystem work happens, so a malformed task fails
// with field-level errors instead of a confusing staging failure.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/potflow/lmprun/schemas"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// taskSchema is the compiled JSON Schema for task YAML files.
var taskSchema = mustCompileSchema(schemas.TaskSchemaJSON, "task.schema.json")

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ValidateTaskFile validates the task file at the given path against the JSON schema.
func ValidateTaskFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}
	return ValidateTaskBytes(data), nil
}

// ValidateTaskBytes validates raw YAML bytes against the task schema.
// It returns one message per violation, each prefixed with the JSON
// pointer of the offending field, or nil when the document is valid.
func ValidateTaskBytes(data []byte) []string {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}

	err := taskSchema.Validate(jsonCompatible(doc))
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

// collectSchemaErrors flattens the validation error tree into leaf
// messages. Interior nodes only repeat what their causes already say.
func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// jsonCompatible rebuilds YAML-decoded values with JSON-compatible
// containers. yaml.v3 already yields map[string]any for mappings, so
// this only has to recurse; scalars (including ints) pass through.
func jsonCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, child := range val {
			m[k] = jsonCompatible(child)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, child := range val {
			s[i] = jsonCompatible(child)
		}
		return s
	default:
		return val
	}
}
