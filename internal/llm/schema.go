package llm

import "encoding/json"

const clauseListSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"tag": {"type": "string"},
			"predicate": {"type": "string"}
		},
		"required": ["predicate"],
		"additionalProperties": false
	}
}`

// SpecificationSchema is the JSON schema of a routine specification reply:
// an object with precondition and postcondition clause lists.
func SpecificationSchema() *ResponseFormat {
	schema := `{
	"type": "object",
	"properties": {
		"precondition": ` + clauseListSchema + `,
		"postcondition": ` + clauseListSchema + `
	},
	"required": ["precondition", "postcondition"],
	"additionalProperties": false
}`
	return &ResponseFormat{Name: "routine_specification", Schema: json.RawMessage(schema)}
}
