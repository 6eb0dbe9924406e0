package tools

import (
	"bytes"
	"encoding/json"
	"io"
)

// toJSONReader marshals a Go value (typically a map[string]interface{}
// describing a JSON Schema) back into a reader suitable for
// jsonschema.Compiler.AddResource, which only accepts raw JSON.
func toJSONReader(v interface{}) io.Reader {
	data, err := json.Marshal(v)
	if err != nil {
		// Parameters is always a literal map built by the tool itself; a
		// marshal failure here is a programming error caught immediately
		// by Register's panic path, not a runtime condition.
		panic("tools: parameters not JSON-marshalable: " + err.Error())
	}
	return bytes.NewReader(data)
}
