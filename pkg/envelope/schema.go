package envelope

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// bodySchemaSource describes the generic wire shape every record body
// must satisfy before it is decoded into operator or package entries.
// It catches the bulk of malformed input — missing fields, wrong
// types, unknown top-level keys — cheaply and with a stable error
// shape, mirroring the firewall's schema-gated request validation.
const bodySchemaSource = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"$id": "warg://record-body.json",
	"type": "object",
	"required": ["kind", "timestamp", "version", "entries"],
	"additionalProperties": false,
	"properties": {
		"kind": {"type": "string", "enum": ["operator", "package"]},
		"prev": {"type": "string"},
		"timestamp": {"type": "string"},
		"version": {"type": "integer", "minimum": 0},
		"entries": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "data"],
				"additionalProperties": false,
				"properties": {
					"type": {"type": "string"},
					"data": {"type": "object"}
				}
			}
		}
	}
}`

var (
	bodySchemaOnce sync.Once
	bodySchema     *jsonschema.Schema
)

func compiledBodySchema() *jsonschema.Schema {
	bodySchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("warg://record-body.json", strings.NewReader(bodySchemaSource)); err != nil {
			panic("envelope: invalid embedded schema: " + err.Error())
		}
		bodySchema = c.MustCompile("warg://record-body.json")
	})
	return bodySchema
}
