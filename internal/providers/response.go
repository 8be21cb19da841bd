package providers

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var responseSchemaFS embed.FS

var (
	responseSchemasOnce sync.Once
	responseSchemas     map[string]*jsonschema.Schema
	responseSchemasErr  error
)

var responseSchemaNames = []string{"extract", "pages", "detect", "verify", "health"}

func loadResponseSchemas() (map[string]*jsonschema.Schema, error) {
	responseSchemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for _, name := range responseSchemaNames {
			raw, err := responseSchemaFS.ReadFile("schemas/" + name + ".json")
			if err != nil {
				responseSchemasErr = fmt.Errorf("failed to read %s schema: %w", name, err)
				return
			}
			if err := compiler.AddResource(name+".json", bytes.NewReader(raw)); err != nil {
				responseSchemasErr = fmt.Errorf("failed to load %s schema: %w", name, err)
				return
			}
		}
		compiled := make(map[string]*jsonschema.Schema, len(responseSchemaNames))
		for _, name := range responseSchemaNames {
			s, err := compiler.Compile(name + ".json")
			if err != nil {
				responseSchemasErr = fmt.Errorf("failed to compile %s schema: %w", name, err)
				return
			}
			compiled[name] = s
		}
		responseSchemas = compiled
	})
	return responseSchemas, responseSchemasErr
}

// decodeResponse validates body against the named response schema and
// decodes it into v.
func decodeResponse(op, schemaName string, body []byte, v any) error {
	schemas, err := loadResponseSchemas()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return &MalformedResponseError{Op: op, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := schemas[schemaName].Validate(doc); err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}
	return nil
}

// bodyError extracts an error message from a response body. With
// includeDetail, FastAPI style {"detail": ...} bodies are recognized too.
func bodyError(body []byte, includeDetail bool) (string, *QualityReport, bool) {
	var resp struct {
		Error   any            `json:"error"`
		Detail  any            `json:"detail"`
		Quality *QualityReport `json:"quality"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return "", nil, false
	}
	candidates := []any{resp.Error}
	if includeDetail {
		candidates = append(candidates, resp.Detail)
	}
	for _, v := range candidates {
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, resp.Quality, true
			}
		case nil:
		default:
			b, _ := json.Marshal(t)
			return string(b), resp.Quality, true
		}
	}
	return "", nil, false
}
