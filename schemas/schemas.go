// Package schemas embeds the JSON Schemas used to validate task files.
package schemas

import _ "embed"

//go:embed task.schema.json
var TaskSchemaJSON string
